// Package metastore persists the serialised avatar collection as a single
// document under one key of a small preference store, together with the
// time of the last successful save.
//
// Backends:
//   - [FileStore]: a JSON preference file replaced atomically on every save
//   - [BoltStore]: a bucket in an embedded bbolt database
//   - [PostgresStore]: a key/value table in PostgreSQL
//   - [MemStore]: in memory, for tests and ephemeral runs
//
// Saves are all-or-nothing: either both the document and the sync timestamp
// change, or neither does.
package metastore

import (
	"context"
	"time"
)

const (
	// DocumentKey is the versioned key holding the collection document.
	DocumentKey = "avatars_data_v2"

	// SyncKey holds the RFC 3339 timestamp of the last successful save.
	SyncKey = "avatars_last_sync"
)

// Store is the contract shared by all metadata backends.
//
// All implementations must be safe for concurrent use.
type Store interface {
	// Save replaces the stored document and records the sync time.
	Save(ctx context.Context, doc []byte) error

	// Load returns the stored document, or (nil, nil) if none exists yet.
	Load(ctx context.Context) ([]byte, error)

	// Clear removes the document and the sync time.
	Clear(ctx context.Context) error

	// LastSync returns the time of the last successful Save. ok is false
	// when nothing has been saved.
	LastSync(ctx context.Context) (t time.Time, ok bool, err error)
}

// nowFunc is replaced in tests.
var nowFunc = time.Now
