// Package memstore provides an in-memory implementation of alert.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/safewatch/internal/alert"
)

// Store holds alerts in memory for the lifetime of the process. Suitable
// for dev/testing; nothing survives a restart.
type Store struct {
	mu     sync.RWMutex
	order  []string                // insertion order of ids
	alerts map[string]*alert.Alert // id -> alert
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		alerts: make(map[string]*alert.Alert),
	}
}

// Append stores a copy of the alert.
func (s *Store) Append(_ context.Context, a *alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[a.ID]; ok {
		return alert.ErrDuplicateID
	}
	cp := *a
	cp.MarkStored()
	s.alerts[a.ID] = &cp
	s.order = append(s.order, a.ID)
	return nil
}

// List returns copies of all alerts in insertion order.
func (s *Store) List(_ context.Context) ([]alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]alert.Alert, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.alerts[id])
	}
	return out, nil
}

// Get retrieves an alert by id. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*alert.Alert, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, false, nil
	}
	cp := *a
	return &cp, true, nil
}

// MarkResolved flips resolved to true in place and returns a copy.
func (s *Store) MarkResolved(_ context.Context, id string) (*alert.Alert, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, false, nil
	}
	a.Resolved = true
	cp := *a
	return &cp, true, nil
}
