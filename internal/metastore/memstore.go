package metastore

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory [Store]. The zero value is ready to use.
type MemStore struct {
	mu       sync.RWMutex
	doc      []byte
	lastSync time.Time
	saves    int
}

// NewMemStore returns an empty [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Save implements [Store.Save].
func (s *MemStore) Save(ctx context.Context, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = slices.Clone(doc)
	s.lastSync = nowFunc().UTC()
	s.saves++
	return nil
}

// Load implements [Store.Load].
func (s *MemStore) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.doc), nil
}

// Clear implements [Store.Clear].
func (s *MemStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = nil
	s.lastSync = time.Time{}
	return nil
}

// LastSync implements [Store.LastSync].
func (s *MemStore) LastSync(ctx context.Context) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync, !s.lastSync.IsZero(), nil
}

// Saves returns how many times Save succeeded.
func (s *MemStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
