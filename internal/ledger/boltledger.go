package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

var bucketPending = []byte("pending")

// Compile-time interface check.
var _ Ledger = (*BoltLedger)(nil)

// BoltLedger stores msgpack-encoded entries keyed by ref in the pending
// bucket of a bbolt database.
type BoltLedger struct {
	db     *bbolt.DB
	opts   options
	ownsDB bool
}

// OpenBoltLedger opens (or creates) the database at path.
func OpenBoltLedger(path string, opts ...Option) (*BoltLedger, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("ledger: open bolt %q: %w", path, err)
	}
	l, err := NewBoltLedger(db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	l.ownsDB = true
	return l, nil
}

// NewBoltLedger returns a ledger on an already open database. The caller
// keeps ownership of db.
func NewBoltLedger(db *bbolt.DB, opts ...Option) (*BoltLedger, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPending)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: create bucket %s: %w", bucketPending, err)
	}
	return &BoltLedger{db: db, opts: buildOptions(opts)}, nil
}

// Add implements [Ledger.Add]. All refs are recorded in one transaction.
func (l *BoltLedger) Add(ctx context.Context, refs ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := l.opts.now().UTC()
	err := l.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPending)
		for _, ref := range refs {
			if ref == "" || b.Get([]byte(ref)) != nil {
				continue
			}
			if err := putEntry(b, Entry{Ref: ref, FirstSeen: now}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ledger: add: %w", err)
	}
	return nil
}

// Done implements [Ledger.Done].
func (l *BoltLedger) Done(ctx context.Context, ref string) error {
	err := l.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPending).Delete([]byte(ref))
	})
	if err != nil {
		return fmt.Errorf("ledger: done %q: %w", ref, err)
	}
	return nil
}

// Fail implements [Ledger.Fail].
func (l *BoltLedger) Fail(ctx context.Context, ref string, cause error) error {
	err := l.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPending)
		e := Entry{Ref: ref, FirstSeen: l.opts.now().UTC()}
		if v := b.Get([]byte(ref)); v != nil {
			if err := msgpack.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode entry: %w", err)
			}
		}
		e.Attempts++
		e.LastError = errString(cause)
		return putEntry(b, e)
	})
	if err != nil {
		return fmt.Errorf("ledger: fail %q: %w", ref, err)
	}
	return nil
}

// Pending implements [Ledger.Pending]. Entries that no longer decode are
// returned with only their ref set so they are still retried.
func (l *BoltLedger) Pending(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Entry
	err := l.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPending).ForEach(func(k, v []byte) error {
			var e Entry
			if err := msgpack.Unmarshal(v, &e); err != nil {
				e = Entry{}
			}
			// k is only valid inside the transaction; string() copies it.
			e.Ref = string(k)
			out = append(out, e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: pending: %w", err)
	}
	sortEntries(out)
	return out, nil
}

// Close closes the database when the ledger opened it.
func (l *BoltLedger) Close() error {
	if !l.ownsDB {
		return nil
	}
	return l.db.Close()
}

func putEntry(b *bbolt.Bucket, e Entry) error {
	v, err := msgpack.Marshal(&e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	return b.Put([]byte(e.Ref), v)
}
