package memfsa

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"fsadict/internal/storage"
)

const (
	magic         = "MFSA"
	formatVersion = uint32(1)
)

// Save encodes r as a self-describing binary blob with a trailing SHA-256
// checksum and atomically writes it to finalPath, using tmpDir as a
// same-filesystem scratch directory for the write-fsync-rename sequence.
// This is a demonstration on-disk format for this repository's segment
// store, not a production FSA transducer format.
func (r *Reader) Save(finalPath, tmpDir string) error {
	payload := r.encode()
	sum := storage.ComputeChecksum(payload)
	full := make([]byte, 0, len(payload)+len(sum))
	full = append(full, payload...)
	full = append(full, []byte(sum)...)
	return storage.AtomicWriteFile(finalPath, full, tmpDir)
}

// Load reads and checksum-verifies a Reader previously written by Save.
func Load(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("memfsa load %s: %w", path, err)
	}

	trailerLen := len(storage.ChecksumPrefix) + 64
	if len(data) < trailerLen {
		return nil, fmt.Errorf("memfsa load %s: file too short to contain a checksum trailer", path)
	}
	split := len(data) - trailerLen
	payload, trailer := data[:split], storage.Checksum(data[split:])
	if got := storage.ComputeChecksum(payload); got != trailer {
		return nil, fmt.Errorf("memfsa load %s: %w", path, storage.ErrChecksumMismatch)
	}

	r, err := decode(payload)
	if err != nil {
		return nil, fmt.Errorf("memfsa load %s: %w", path, err)
	}
	return r, nil
}

func (r *Reader) encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(magic)
	writeUint32(&buf, formatVersion)
	writeUint32(&buf, uint32(len(r.nodes)))
	for _, n := range r.nodes {
		if n.final {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		writeUint64(&buf, n.ordinal)
		writeUint32(&buf, uint32(len(n.edges)))
		for _, e := range n.edges {
			buf.WriteByte(e.label)
			writeUint32(&buf, e.target)
		}
	}
	writeUint32(&buf, uint32(len(r.values)))
	for _, v := range r.values {
		writeUint32(&buf, uint32(len(v)))
		buf.Write(v)
	}
	return buf.Bytes()
}

func decode(data []byte) (*Reader, error) {
	r := bytes.NewReader(data)

	magicBuf := make([]byte, len(magic))
	if _, err := io.ReadFull(r, magicBuf); err != nil || string(magicBuf) != magic {
		return nil, fmt.Errorf("bad magic")
	}
	version, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if version != formatVersion {
		return nil, fmt.Errorf("unsupported format version %d", version)
	}

	nodeCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	nodes := make([]node, nodeCount)
	for i := range nodes {
		finalByte, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		ordinal, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		edgeCount, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		edges := make([]edge, edgeCount)
		for j := range edges {
			label, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			target, err := readUint32(r)
			if err != nil {
				return nil, err
			}
			edges[j] = edge{label: label, target: target}
		}
		nodes[i] = node{edges: edges, final: finalByte == 1, ordinal: ordinal}
	}

	valueCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	values := make([][]byte, valueCount)
	for i := range values {
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		v := make([]byte, n)
		if _, err := io.ReadFull(r, v); err != nil {
			return nil, err
		}
		values[i] = v
	}

	return &Reader{nodes: nodes, values: values}, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func readUint32(r io.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(tmp[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(tmp[:]), nil
}
