package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/soundboard/internal/blobstore"
	"github.com/MrWong99/soundboard/internal/metastore"
)

// ErrBackendNotRegistered is returned by Create* methods when no factory has
// been registered under the requested backend name.
var ErrBackendNotRegistered = errors.New("config: backend not registered")

// MetadataFactory builds a metadata store from the storage configuration.
type MetadataFactory func(ctx context.Context, cfg StorageConfig) (metastore.Store, error)

// BlobFactory builds a blob store from the storage configuration.
type BlobFactory func(ctx context.Context, cfg StorageConfig) (blobstore.Store, error)

// Registry maps backend names to their constructor functions for each
// store kind. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	metadata map[string]MetadataFactory
	blob     map[string]BlobFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		metadata: make(map[string]MetadataFactory),
		blob:     make(map[string]BlobFactory),
	}
}

// RegisterMetadata registers a metadata store factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterMetadata(name string, factory MetadataFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata[name] = factory
}

// RegisterBlob registers a blob store factory under name.
func (r *Registry) RegisterBlob(name string, factory BlobFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blob[name] = factory
}

// CreateMetadata instantiates the metadata store named by cfg.Metadata.Backend.
// Returns [ErrBackendNotRegistered] if no factory has been registered for it.
func (r *Registry) CreateMetadata(ctx context.Context, cfg StorageConfig) (metastore.Store, error) {
	r.mu.RLock()
	factory, ok := r.metadata[cfg.Metadata.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: metadata/%q", ErrBackendNotRegistered, cfg.Metadata.Backend)
	}
	return factory(ctx, cfg)
}

// CreateBlob instantiates the blob store named by cfg.Blob.Backend.
func (r *Registry) CreateBlob(ctx context.Context, cfg StorageConfig) (blobstore.Store, error) {
	r.mu.RLock()
	factory, ok := r.blob[cfg.Blob.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: blob/%q", ErrBackendNotRegistered, cfg.Blob.Backend)
	}
	return factory(ctx, cfg)
}

// Backends returns the sorted names registered for kind ("metadata" or
// "blob").
func (r *Registry) Backends(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "metadata":
		for n := range r.metadata {
			names = append(names, n)
		}
	case "blob":
		for n := range r.blob {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}
