package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Request is one msgpack-encoded IPC message. Op selects fuzzy or near
// matching; the remaining fields follow the same short-tag convention as
// wordserve's completion request (id, prefix become q here since a fsadict
// key is arbitrary bytes, not necessarily text).
type Request struct {
	ID        string `msgpack:"id"`
	Op        string `msgpack:"op"` // "fuzzy" or "near"
	Query     []byte `msgpack:"q"`
	K         int    `msgpack:"k,omitempty"`
	MinPrefix int    `msgpack:"prefix,omitempty"`
	Greedy    bool   `msgpack:"greedy,omitempty"`
}

// MatchDTO is one match in a Response.
type MatchDTO struct {
	Key   []byte `msgpack:"key"`
	Value []byte `msgpack:"value,omitempty"`
	Score int    `msgpack:"score"`
}

// Response is the msgpack-encoded reply to a Request.
type Response struct {
	ID        string     `msgpack:"id"`
	Matches   []MatchDTO `msgpack:"matches"`
	Count     int        `msgpack:"count"`
	TimeTaken int64      `msgpack:"t"`
	Error     string     `msgpack:"error,omitempty"`
}

// IPCServer serves fuzzy/near requests over a msgpack stdio stream: each
// incoming Request is decoded, dispatched to Matcher, and answered with one
// Response before the next request is read. Grounded directly on
// wordserve's msgpack stdio IPC contract, generalized from word completion
// to approximate key matching.
type IPCServer struct {
	matcher *Matcher
	dec     *msgpack.Decoder
	enc     *msgpack.Encoder
	logger  *slog.Logger
}

// NewIPCServer returns a server reading Requests from r and writing
// Responses to w.
func NewIPCServer(matcher *Matcher, r io.Reader, w io.Writer, logger *slog.Logger) *IPCServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &IPCServer{
		matcher: matcher,
		dec:     msgpack.NewDecoder(r),
		enc:     msgpack.NewEncoder(w),
		logger:  logger,
	}
}

// Serve reads requests until r is exhausted or ctx is canceled, answering
// each one before reading the next.
func (s *IPCServer) Serve(ctx context.Context) error {
	s.logger.Debug("ipc server starting")
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		var req Request
		if err := s.dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		resp := s.handle(ctx, req)
		if err := s.enc.Encode(resp); err != nil {
			return err
		}
	}
}

func (s *IPCServer) handle(ctx context.Context, req Request) Response {
	start := time.Now()

	var it *ClosingIterator
	var err error
	switch req.Op {
	case "fuzzy":
		it, err = s.matcher.Fuzzy(ctx, req.Query, req.K, req.MinPrefix)
	case "near":
		it, err = s.matcher.Near(ctx, req.Query, req.MinPrefix, req.Greedy)
	default:
		return Response{ID: req.ID, Error: "unknown op: " + req.Op}
	}
	if err != nil {
		s.logger.Error("match request failed", "id", req.ID, "op", req.Op, "error", err)
		return Response{ID: req.ID, Error: err.Error()}
	}
	defer it.Close()

	var matches []MatchDTO
	for {
		m, ok := it.Next()
		if !ok {
			break
		}
		matches = append(matches, MatchDTO{Key: m.Key(), Value: m.Value(), Score: m.Score()})
	}
	if err := it.Err(); err != nil {
		return Response{ID: req.ID, Error: err.Error()}
	}

	return Response{
		ID:        req.ID,
		Matches:   matches,
		Count:     len(matches),
		TimeTaken: time.Since(start).Milliseconds(),
	}
}
