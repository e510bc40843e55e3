package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	t.Parallel()

	fast := RetryConfig{MaxAttempts: 4, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

	tests := []struct {
		name         string
		failures     int
		permanent    bool
		wantAttempts int
		wantErr      bool
	}{
		{name: "first try", failures: 0, wantAttempts: 1},
		{name: "succeeds after failures", failures: 2, wantAttempts: 3},
		{name: "exhausted", failures: 10, wantAttempts: 4, wantErr: true},
		{name: "permanent stops at once", failures: 10, permanent: true, wantAttempts: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			calls := 0
			attempts, err := Retry(context.Background(), fast, func(context.Context) error {
				calls++
				if calls <= tt.failures {
					if tt.permanent {
						return Permanent(errTest)
					}
					return errTest
				}
				return nil
			})
			if attempts != tt.wantAttempts || calls != tt.wantAttempts {
				t.Errorf("attempts = %d, calls = %d, want %d", attempts, calls, tt.wantAttempts)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errTest) {
				t.Errorf("err = %v, want wrapped errTest", err)
			}
			if tt.permanent && IsPermanent(err) {
				t.Error("permanent marker leaked to the caller")
			}
		})
	}
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: time.Hour}
	attempts, err := Retry(ctx, cfg, func(context.Context) error {
		cancel()
		return errTest
	})
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if !errors.Is(err, context.Canceled) || !errors.Is(err, errTest) {
		t.Errorf("err = %v, want both the last error and context.Canceled", err)
	}
}

func TestRetryConfig_Backoff(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second}
	want := []time.Duration{
		100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond,
		800 * time.Millisecond, time.Second, time.Second,
	}
	for i, w := range want {
		if got := cfg.Backoff(i + 1); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestPermanentNil(t *testing.T) {
	t.Parallel()

	if Permanent(nil) != nil {
		t.Error("Permanent(nil) != nil")
	}
}
