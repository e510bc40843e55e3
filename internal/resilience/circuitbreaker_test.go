package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("test error")

// fakeClock is advanced by hand.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func fail(context.Context) error    { return errTest }
func succeed(context.Context) error { return nil }

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test"})
	if cb.cfg.MaxFailures != 5 {
		t.Errorf("MaxFailures = %d, want 5", cb.cfg.MaxFailures)
	}
	if cb.cfg.ResetTimeout != 30*time.Second {
		t.Errorf("ResetTimeout = %v, want 30s", cb.cfg.ResetTimeout)
	}
	if cb.cfg.HalfOpenMax != 1 {
		t.Errorf("HalfOpenMax = %d, want 1", cb.cfg.HalfOpenMax)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_Transitions(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Unix(0, 0)}
	var changes []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "blobs",
		MaxFailures:  3,
		ResetTimeout: time.Minute,
		HalfOpenMax:  2,
		Now:          clock.Now,
		OnStateChange: func(_ string, from, to State) {
			changes = append(changes, from.String()+">"+to.String())
		},
	})
	ctx := context.Background()

	// Two failures then a success keep it closed.
	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, succeed)
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}

	for range 3 {
		_ = cb.Execute(ctx, fail)
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}
	if err := cb.Execute(ctx, succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute while open = %v, want ErrCircuitOpen", err)
	}

	clock.Advance(time.Minute)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after timeout", cb.State())
	}

	// A failed trial re-opens.
	_ = cb.Execute(ctx, fail)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after failed trial", cb.State())
	}

	clock.Advance(time.Minute)
	if err := cb.Execute(ctx, succeed); err != nil {
		t.Fatalf("trial 1: %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after one trial", cb.State())
	}
	if err := cb.Execute(ctx, succeed); err != nil {
		t.Fatalf("trial 2: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after trials", cb.State())
	}

	want := []string{
		"closed>open", "open>half-open", "half-open>open",
		"open>half-open", "half-open>closed",
	}
	if len(changes) != len(want) {
		t.Fatalf("changes = %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change[%d] = %s, want %s", i, changes[i], want[i])
		}
	}
}

func TestCircuitBreaker_IgnoredErrors(t *testing.T) {
	t.Parallel()

	notFound := errors.New("not found")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures: 1,
		IsFailure:   func(err error) bool { return !errors.Is(err, notFound) },
	})
	ctx := context.Background()

	_ = cb.Execute(ctx, func(context.Context) error { return notFound })
	_ = cb.Execute(ctx, func(context.Context) error { return Permanent(errTest) })
	_ = cb.Execute(ctx, func(context.Context) error { return context.Canceled })
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, ignored errors tripped the breaker", cb.State())
	}
	_ = cb.Execute(ctx, fail)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Errorf("Execute = %v, called = %v", err, called)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	_ = cb.Execute(context.Background(), fail)
	if cb.State() != StateOpen {
		t.Fatal("breaker did not open")
	}
	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("state after Reset = %v", cb.State())
	}
	if err := cb.Execute(context.Background(), succeed); err != nil {
		t.Errorf("Execute after Reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
