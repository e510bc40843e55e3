package blobstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// MemScheme prefixes references issued by [MemStore].
const MemScheme = "mem://"

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory [Store]. It is suitable for tests and
// ephemeral runs. The zero value is ready to use.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

// Put implements [Store.Put].
func (s *MemStore) Put(ctx context.Context, kind Kind, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !kind.IsValid() {
		return "", fmt.Errorf("blobstore: invalid kind %q", kind)
	}
	k := keyOrGenerate(kind, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blobs == nil {
		s.blobs = make(map[string][]byte)
	}
	s.blobs[k] = slices.Clone(data)
	return MemScheme + k, nil
}

// Get implements [Store.Get].
func (s *MemStore) Get(ctx context.Context, ref string) ([]byte, error) {
	key, ok := strings.CutPrefix(ref, MemScheme)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrForeignRef, ref)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, found := s.blobs[key]
	if !found {
		return nil, nil
	}
	return slices.Clone(data), nil
}

// Delete implements [Store.Delete].
func (s *MemStore) Delete(ctx context.Context, ref string) error {
	key, ok := strings.CutPrefix(ref, MemScheme)
	if !ok {
		return fmt.Errorf("%w: %q", ErrForeignRef, ref)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

// Clear implements [Store.Clear].
func (s *MemStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.blobs)
	return nil
}

// Owns implements [Store.Owns].
func (s *MemStore) Owns(ref string) bool {
	return strings.HasPrefix(ref, MemScheme)
}

// Len returns the number of stored blobs.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
