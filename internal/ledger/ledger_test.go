package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func backends(t *testing.T) map[string]Ledger {
	t.Helper()
	c1 := &clock{t: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	c2 := &clock{t: c1.t}

	bl, err := OpenBoltLedger(filepath.Join(t.TempDir(), "ledger.db"), WithNow(c1.now))
	if err != nil {
		t.Fatalf("OpenBoltLedger: %v", err)
	}
	t.Cleanup(func() { _ = bl.Close() })
	return map[string]Ledger{
		"bolt":   bl,
		"memory": NewMemLedger(WithNow(c2.now)),
	}
}

func TestLedgerContract(t *testing.T) {
	t.Parallel()

	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := l.Add(ctx, "b", "a", ""); err != nil {
				t.Fatalf("Add: %v", err)
			}
			if err := l.Add(ctx, "c", "a"); err != nil {
				t.Fatalf("Add: %v", err)
			}

			got, err := l.Pending(ctx)
			if err != nil {
				t.Fatalf("Pending: %v", err)
			}
			// a and b share the first timestamp; c came later.
			want := []string{"a", "b", "c"}
			if len(got) != len(want) {
				t.Fatalf("Pending = %+v, want refs %v", got, want)
			}
			for i, e := range got {
				if e.Ref != want[i] {
					t.Errorf("Pending[%d].Ref = %q, want %q", i, e.Ref, want[i])
				}
			}
			if !got[0].FirstSeen.Before(got[2].FirstSeen) {
				t.Error("re-adding a pending ref reset its FirstSeen")
			}

			if err := l.Fail(ctx, "b", errors.New("disk busy")); err != nil {
				t.Fatalf("Fail: %v", err)
			}
			if err := l.Fail(ctx, "b", errors.New("still busy")); err != nil {
				t.Fatalf("Fail: %v", err)
			}
			if err := l.Done(ctx, "a"); err != nil {
				t.Fatalf("Done: %v", err)
			}
			if err := l.Done(ctx, "missing"); err != nil {
				t.Errorf("Done on unknown ref: %v", err)
			}

			got, err = l.Pending(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 || got[0].Ref != "b" {
				t.Fatalf("Pending = %+v", got)
			}
			if got[0].Attempts != 2 || got[0].LastError != "still busy" {
				t.Errorf("entry b = %+v, want 2 attempts with last error", got[0])
			}
		})
	}
}

func TestBoltLedger_SurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := OpenBoltLedger(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Add(context.Background(), "bolt://audio_1"); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	l, err = OpenBoltLedger(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	got, err := l.Pending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Ref != "bolt://audio_1" {
		t.Errorf("Pending after reopen = %+v", got)
	}
}
