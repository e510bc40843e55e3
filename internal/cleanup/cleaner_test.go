package cleanup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/soundboard/internal/blobstore"
	"github.com/MrWong99/soundboard/internal/ledger"
	"github.com/MrWong99/soundboard/internal/observe"
	"github.com/MrWong99/soundboard/internal/resilience"
)

// fakeStore fails the first failures[ref] deletions of ref; a negative count
// fails forever.
type fakeStore struct {
	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
	deleted  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{failures: map[string]int{}, calls: map[string]int{}}
}

func (s *fakeStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[ref]++
	if ref == "foreign" {
		return fmt.Errorf("fake: %w", blobstore.ErrForeignRef)
	}
	if n := s.failures[ref]; n != 0 {
		if n > 0 {
			s.failures[ref] = n - 1
		}
		return errors.New("disk busy")
	}
	s.deleted = append(s.deleted, ref)
	return nil
}

func (s *fakeStore) callCount(ref string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[ref]
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func newCleaner(t *testing.T, store Deleter, l ledger.Ledger, opts ...Option) *Cleaner {
	t.Helper()
	base := []Option{
		WithMetrics(testMetrics(t)),
		WithConfig(Config{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
			Concurrency:    2,
		}),
	}
	c := New(store, l, append(base, opts...)...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func pendingRefs(t *testing.T, l ledger.Ledger) map[string]ledger.Entry {
	t.Helper()
	entries, err := l.Pending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string]ledger.Entry, len(entries))
	for _, e := range entries {
		out[e.Ref] = e
	}
	return out
}

func TestSchedule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		refs        []string
		failures    map[string]int
		want        Result
		wantPending []string
	}{
		{
			name: "all deleted",
			refs: []string{"a", "b", "c", "a", ""},
			want: Result{Deleted: 3},
		},
		{
			name:     "transient failure is retried",
			refs:     []string{"a", "b"},
			failures: map[string]int{"a": 2},
			want:     Result{Deleted: 2},
		},
		{
			name:        "persistent failure stays pending",
			refs:        []string{"a", "b"},
			failures:    map[string]int{"b": -1},
			want:        Result{Deleted: 1, Failed: 1},
			wantPending: []string{"b"},
		},
		{
			name: "foreign ref is dropped",
			refs: []string{"foreign", "a"},
			want: Result{Deleted: 1, Failed: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := newFakeStore()
			for k, v := range tt.failures {
				store.failures[k] = v
			}
			l := ledger.NewMemLedger()
			results := make(chan Result, 1)
			c := newCleaner(t, store, l, WithOnBatch(func(r Result) { results <- r }))

			if err := c.Schedule(context.Background(), tt.refs); err != nil {
				t.Fatalf("Schedule: %v", err)
			}
			select {
			case got := <-results:
				if got != tt.want {
					t.Errorf("Result = %+v, want %+v", got, tt.want)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("batch did not finish")
			}
			if err := c.Wait(context.Background()); err != nil {
				t.Fatal(err)
			}

			pending := pendingRefs(t, l)
			if len(pending) != len(tt.wantPending) {
				t.Fatalf("pending = %v, want %v", pending, tt.wantPending)
			}
			for _, ref := range tt.wantPending {
				e, ok := pending[ref]
				if !ok {
					t.Errorf("%s not pending", ref)
					continue
				}
				if e.Attempts != 1 || e.LastError == "" {
					t.Errorf("entry %s = %+v, want one failed batch with error", ref, e)
				}
				if got := store.callCount(ref); got != 3 {
					t.Errorf("%s deleted %d times, want MaxAttempts=3", ref, got)
				}
			}
		})
	}
}

func TestSchedule_IgnoresCallerCancellation(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.failures["a"] = 1
	l := ledger.NewMemLedger()
	c := newCleaner(t, store, l)

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Schedule(ctx, []string{"a"}); err != nil {
		t.Fatal(err)
	}
	cancel()

	if err := c.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(pendingRefs(t, l)) != 0 {
		t.Error("deletion stopped with the caller's context")
	}
}

func TestSweep(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	l := ledger.NewMemLedger()
	ctx := context.Background()
	if err := l.Add(ctx, "left-1", "left-2"); err != nil {
		t.Fatal(err)
	}
	store.failures["left-2"] = -1

	c := newCleaner(t, store, l)
	res, err := c.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res != (Result{Deleted: 1, Failed: 1}) {
		t.Errorf("Result = %+v", res)
	}
	pending := pendingRefs(t, l)
	if _, ok := pending["left-2"]; !ok || len(pending) != 1 {
		t.Errorf("pending = %v, want only left-2", pending)
	}

	// A second sweep after the store recovers finishes the job.
	store.mu.Lock()
	store.failures["left-2"] = 0
	store.mu.Unlock()
	if res, _ := c.Sweep(ctx); res.Deleted != 1 {
		t.Errorf("second sweep = %+v", res)
	}
	if len(pendingRefs(t, l)) != 0 {
		t.Error("ledger not empty after recovery")
	}
}

func TestSchedule_AfterClose(t *testing.T) {
	t.Parallel()

	l := ledger.NewMemLedger()
	c := newCleaner(t, newFakeStore(), l)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	err := c.Schedule(context.Background(), []string{"a"})
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("Schedule after Close = %v, want ErrClosed", err)
	}
	if _, ok := pendingRefs(t, l)["a"]; !ok {
		t.Error("ref not recorded for the next sweep")
	}
}

func TestOpenBreakerLeavesRefsPending(t *testing.T) {
	t.Parallel()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name: "test", MaxFailures: 1, ResetTimeout: time.Hour,
	})
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("trip") })

	store := newFakeStore()
	l := ledger.NewMemLedger()
	c := newCleaner(t, store, l, WithBreaker(cb))

	res, err := c.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Deleted != 0 {
		t.Errorf("Result = %+v", res)
	}
	if err := l.Add(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	res, _ = c.Sweep(context.Background())
	if res != (Result{Failed: 1}) {
		t.Errorf("Result = %+v, want one failure", res)
	}
	if store.callCount("a") != 0 {
		t.Error("store called while breaker open")
	}
}

func TestSetConfig_AppliesToLaterBatches(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.failures["stuck"] = -1
	l := ledger.NewMemLedger()
	c := newCleaner(t, store, l)

	c.SetConfig(Config{MaxAttempts: 1, InitialBackoff: time.Millisecond})
	if err := l.Add(context.Background(), "stuck"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := store.callCount("stuck"); n != 1 {
		t.Errorf("Delete called %d times, want 1", n)
	}
}
