package metastore

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var bucketPrefs = []byte("prefs")

// Compile-time interface check.
var _ Store = (*BoltStore)(nil)

// BoltStore keeps the document and sync time in the prefs bucket of a bbolt
// database. Both keys are written in one transaction.
type BoltStore struct {
	db     *bbolt.DB
	ownsDB bool
}

// OpenBoltStore opens (or creates) the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("metastore: open bolt %q: %w", path, err)
	}
	s, err := NewBoltStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewBoltStore returns a store on an already open database. The caller keeps
// ownership of db.
func NewBoltStore(db *bbolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPrefs)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("metastore: create bucket %s: %w", bucketPrefs, err)
	}
	return &BoltStore{db: db}, nil
}

// Save implements [Store.Save].
func (s *BoltStore) Save(ctx context.Context, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stamp := nowFunc().UTC().Format(time.RFC3339Nano)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPrefs)
		if err := b.Put([]byte(DocumentKey), doc); err != nil {
			return err
		}
		return b.Put([]byte(SyncKey), []byte(stamp))
	})
	if err != nil {
		return fmt.Errorf("metastore: save: %w", err)
	}
	return nil
}

// Load implements [Store.Load].
func (s *BoltStore) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketPrefs).Get([]byte(DocumentKey)); v != nil {
			doc = make([]byte, len(v))
			copy(doc, v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("metastore: load: %w", err)
	}
	return doc, nil
}

// Clear implements [Store.Clear].
func (s *BoltStore) Clear(ctx context.Context) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPrefs)
		if err := b.Delete([]byte(DocumentKey)); err != nil {
			return err
		}
		return b.Delete([]byte(SyncKey))
	})
	if err != nil {
		return fmt.Errorf("metastore: clear: %w", err)
	}
	return nil
}

// LastSync implements [Store.LastSync].
func (s *BoltStore) LastSync(ctx context.Context) (time.Time, bool, error) {
	var raw string
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw = string(tx.Bucket(bucketPrefs).Get([]byte(SyncKey)))
		return nil
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("metastore: last sync: %w", err)
	}
	if raw == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("metastore: parse %s: %w", SyncKey, err)
	}
	return t, true, nil
}

// Close closes the database when the store opened it.
func (s *BoltStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
