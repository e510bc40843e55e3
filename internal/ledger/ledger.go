// Package ledger records blob references whose deletion has been promised
// but not yet confirmed. Entries survive restarts, so a deletion interrupted
// by a crash or a storage outage is retried by the next sweep instead of
// leaving an orphaned blob behind.
package ledger

import (
	"cmp"
	"context"
	"slices"
	"time"
)

// Entry is one pending blob deletion.
type Entry struct {
	Ref       string    `msgpack:"ref"`
	Attempts  int       `msgpack:"attempts"`
	FirstSeen time.Time `msgpack:"first_seen"`
	LastError string    `msgpack:"last_error,omitempty"`
}

// Ledger is the contract shared by all ledger backends.
//
// All implementations must be safe for concurrent use.
type Ledger interface {
	// Add records refs as pending. Refs that are already pending keep their
	// existing entry.
	Add(ctx context.Context, refs ...string) error

	// Done removes ref. Removing an unknown ref is not an error.
	Done(ctx context.Context, ref string) error

	// Fail increments the attempt count of ref and records cause.
	Fail(ctx context.Context, ref string, cause error) error

	// Pending returns every entry, oldest first.
	Pending(ctx context.Context) ([]Entry, error)

	// Close releases the backend.
	Close() error
}

// Option configures a ledger.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithNow overrides the clock used for [Entry.FirstSeen].
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func sortEntries(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := a.FirstSeen.Compare(b.FirstSeen); c != 0 {
			return c
		}
		return cmp.Compare(a.Ref, b.Ref)
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
