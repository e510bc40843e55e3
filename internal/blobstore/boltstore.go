package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

// BoltScheme prefixes references issued by [BoltStore].
const BoltScheme = "bolt://"

var bucketBlobs = []byte("blobs")

// Compile-time interface check.
var _ Store = (*BoltStore)(nil)

// BoltStore keeps blobs in a single bbolt database file. It plays the role of
// an embedded binary key/value store for environments where a plain
// directory tree is not wanted. References look like bolt://audio_<uuid>.
type BoltStore struct {
	db     *bbolt.DB
	ownsDB bool
}

// OpenBoltStore opens (or creates) the bbolt database at path and returns a
// store that closes the database on [BoltStore.Close].
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("blobstore: open bolt %q: %w", path, err)
	}
	s, err := NewBoltStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewBoltStore returns a store on an already open database, creating the
// blobs bucket if needed. The caller keeps ownership of db.
func NewBoltStore(db *bbolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBlobs)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: create bucket %s: %w", bucketBlobs, err)
	}
	return &BoltStore{db: db}, nil
}

// Put implements [Store.Put].
func (s *BoltStore) Put(ctx context.Context, kind Kind, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !kind.IsValid() {
		return "", fmt.Errorf("blobstore: invalid kind %q", kind)
	}
	k := keyOrGenerate(kind, key)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBlobs).Put([]byte(k), data)
	})
	if err != nil {
		return "", fmt.Errorf("blobstore: put %q: %w", k, err)
	}
	return BoltScheme + k, nil
}

// Get implements [Store.Get].
func (s *BoltStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, ok := strings.CutPrefix(ref, BoltScheme)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrForeignRef, ref)
	}
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketBlobs).Get([]byte(key))
		if v == nil {
			return nil
		}
		// Values are only valid for the life of the transaction.
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: get %q: %w", key, err)
	}
	return data, nil
}

// Delete implements [Store.Delete].
func (s *BoltStore) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, ok := strings.CutPrefix(ref, BoltScheme)
	if !ok {
		return fmt.Errorf("%w: %q", ErrForeignRef, ref)
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBlobs).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("blobstore: delete %q: %w", key, err)
	}
	return nil
}

// Clear implements [Store.Clear] by recreating the blobs bucket.
func (s *BoltStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketBlobs); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(bucketBlobs)
		return err
	})
	if err != nil {
		return fmt.Errorf("blobstore: clear: %w", err)
	}
	return nil
}

// Owns implements [Store.Owns].
func (s *BoltStore) Owns(ref string) bool {
	return strings.HasPrefix(ref, BoltScheme)
}

// Close closes the underlying database when the store opened it.
func (s *BoltStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
