// Package inmem provides an in-memory run.Store for testing and local
// single-process operation. Snapshots are lost when the process exits;
// durable deployments should use run/redis or run/mongo.
package inmem

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/itep-ai/router/run"
)

// Store implements run.Store using an in-process map keyed by run id. It is
// thread-safe. Snapshots are stored as encoded JSON so callers cannot
// mutate stored state through retained pointers.
type Store struct {
	mu   sync.RWMutex
	runs map[string][]byte
}

// New returns an empty in-memory store ready for use.
func New() *Store {
	return &Store{runs: make(map[string][]byte)}
}

// Save persists the run context, replacing any prior snapshot.
func (s *Store) Save(_ context.Context, rc *run.Context) error {
	raw, err := json.Marshal(rc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[rc.RunID] = raw
	return nil
}

// Load restores the run context for the given id.
func (s *Store) Load(_ context.Context, runID string) (*run.Context, error) {
	s.mu.RLock()
	raw, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, run.ErrNotFound
	}
	var rc run.Context
	if err := json.Unmarshal(raw, &rc); err != nil {
		return nil, err
	}
	return &rc, nil
}
