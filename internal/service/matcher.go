// Package service wires a segment.Manager to the fuzzy/near matching
// drivers behind a request-scoped API: acquire a snapshot, build an
// iterator over it, and tie the snapshot's release to the iterator's
// lifetime so a caller cannot forget to release what it acquired.
package service

import (
	"context"
	"fmt"

	"fsadict/internal/config"
	"fsadict/internal/matching"
	"fsadict/internal/segment"
)

// ClosingIterator is a matching.Iterator whose Close releases the
// segment.Snapshot it was built over. Callers must call Close when done,
// typically via defer, whether or not they drained every match.
type ClosingIterator struct {
	matching.Iterator
	snapshot *segment.Snapshot
}

// Close releases the underlying snapshot. Idempotent.
func (c *ClosingIterator) Close() error {
	return c.snapshot.Release()
}

// Matcher answers fuzzy and near queries against a store's current
// generation, acquiring an isolated snapshot per request.
type Matcher struct {
	manager *segment.Manager
	cfg     config.MatchingConfig
}

// NewMatcher returns a Matcher serving queries against manager's segments,
// using cfg for any parameter a caller leaves at its zero value.
func NewMatcher(manager *segment.Manager, cfg config.MatchingConfig) *Matcher {
	return &Matcher{manager: manager, cfg: cfg}
}

// Fuzzy returns matches within maxEditDistance of query after
// minimumExactPrefix bytes match exactly. A minimumExactPrefix of 0 uses
// the configured default; maxEditDistance is clamped to the configured
// cap.
func (m *Matcher) Fuzzy(ctx context.Context, query []byte, maxEditDistance, minimumExactPrefix int) (*ClosingIterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fuzzy: %w", err)
	}
	if minimumExactPrefix <= 0 {
		minimumExactPrefix = m.cfg.DefaultMinimumExactPrefix
	}
	if maxEditDistance <= 0 || maxEditDistance > m.cfg.MaxEditDistanceCap {
		maxEditDistance = m.cfg.MaxEditDistanceCap
	}

	snap, err := m.manager.Acquire()
	if err != nil {
		return nil, fmt.Errorf("fuzzy: acquire snapshot: %w", err)
	}
	it := matching.Fuzzy(snap.Segments(), query, maxEditDistance, minimumExactPrefix, snap.Deleted())
	return &ClosingIterator{Iterator: it, snapshot: snap}, nil
}

// Near returns matches sharing query's exact prefix and proximate by
// shared-suffix depth. A minimumExactPrefix of 0 uses the configured
// default; greedy overrides the configured default emission policy.
func (m *Matcher) Near(ctx context.Context, query []byte, minimumExactPrefix int, greedy bool) (*ClosingIterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("near: %w", err)
	}
	if minimumExactPrefix <= 0 {
		minimumExactPrefix = m.cfg.DefaultMinimumExactPrefix
	}

	snap, err := m.manager.Acquire()
	if err != nil {
		return nil, fmt.Errorf("near: acquire snapshot: %w", err)
	}
	it := matching.Near(snap.Segments(), query, minimumExactPrefix, greedy, snap.Deleted())
	return &ClosingIterator{Iterator: it, snapshot: snap}, nil
}
