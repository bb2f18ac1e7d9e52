// Package inmem provides an in-memory implementation of run.Store for
// tests and local development. Records are defensively copied on read and
// write so callers can never mutate stored state through an aliased slice
// or map.
package inmem

import (
	"context"
	"sync"

	"github.com/strukalex/agentic-assistant-framework-sub000/run"
	"github.com/strukalex/agentic-assistant-framework-sub000/state"
)

// Store implements run.Store in memory with no durability.
type Store struct {
	mu      sync.RWMutex
	records map[string]run.Record
}

// New constructs an empty Store.
func New() *Store {
	return &Store{records: make(map[string]run.Record)}
}

// Upsert inserts or updates a run record, keyed by r.RunID.
func (s *Store) Upsert(_ context.Context, r run.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := r
	cp.Sources = append([]state.SourceReference(nil), r.Sources...)
	cp.Metadata = cloneMetadata(r.Metadata)
	if r.PendingApproval != nil {
		pending := *r.PendingApproval
		cp.PendingApproval = &pending
	}
	s.records[r.RunID] = cp
	return nil
}

// Load retrieves the run record for runID. The bool reports whether the
// run exists.
func (s *Store) Load(_ context.Context, runID string) (run.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[runID]
	if !ok {
		return run.Record{}, false, nil
	}
	r.Sources = append([]state.SourceReference(nil), r.Sources...)
	r.Metadata = cloneMetadata(r.Metadata)
	if r.PendingApproval != nil {
		pending := *r.PendingApproval
		r.PendingApproval = &pending
	}
	return r, true, nil
}

// Reset clears all stored records. Test-only helper, not part of run.Store.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]run.Record)
}

func cloneMetadata(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
