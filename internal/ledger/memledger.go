package ledger

import (
	"context"
	"sync"
)

// Compile-time interface check.
var _ Ledger = (*MemLedger)(nil)

// MemLedger is a thread-safe, in-memory [Ledger]. Its entries are lost on
// exit, so it suits tests and ephemeral runs only.
type MemLedger struct {
	mu      sync.Mutex
	opts    options
	entries map[string]Entry
}

// NewMemLedger returns an empty [MemLedger].
func NewMemLedger(opts ...Option) *MemLedger {
	return &MemLedger{
		opts:    buildOptions(opts),
		entries: make(map[string]Entry),
	}
}

// Add implements [Ledger.Add].
func (l *MemLedger) Add(_ context.Context, refs ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.opts.now().UTC()
	for _, ref := range refs {
		if _, ok := l.entries[ref]; ok || ref == "" {
			continue
		}
		l.entries[ref] = Entry{Ref: ref, FirstSeen: now}
	}
	return nil
}

// Done implements [Ledger.Done].
func (l *MemLedger) Done(_ context.Context, ref string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, ref)
	return nil
}

// Fail implements [Ledger.Fail]. Failing an unknown ref creates its entry.
func (l *MemLedger) Fail(_ context.Context, ref string, cause error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[ref]
	if !ok {
		e = Entry{Ref: ref, FirstSeen: l.opts.now().UTC()}
	}
	e.Attempts++
	e.LastError = errString(cause)
	l.entries[ref] = e
	return nil
}

// Pending implements [Ledger.Pending].
func (l *MemLedger) Pending(_ context.Context) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

// Close implements [Ledger.Close].
func (l *MemLedger) Close() error { return nil }
