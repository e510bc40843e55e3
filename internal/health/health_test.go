package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/soundboard/internal/resilience"
)

func ok(context.Context) error { return nil }

func readyz(t *testing.T, h *Handler, ctx context.Context) (int, result) {
	t.Helper()
	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz_AlwaysReturns200(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	New(Checker{Name: "x", Check: func(context.Context) error { return errors.New("down") }}).
		Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	down := func(context.Context) error { return errors.New("down") }

	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "metadata", Check: ok},
				{Name: "repository", Check: ok},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"metadata": "ok", "repository": "ok"},
		},
		{
			name: "required failure",
			checkers: []Checker{
				{Name: "metadata", Check: down},
				{Name: "repository", Check: ok},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"metadata": "fail: down", "repository": "ok"},
		},
		{
			name: "optional failure degrades",
			checkers: []Checker{
				{Name: "metadata", Check: ok},
				{Name: "breaker", Check: down, Optional: true},
			},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
			wantChecks: map[string]string{"metadata": "ok", "breaker": "degraded: down"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, body := readyz(t, New(tt.checkers...), context.Background())
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			for k, v := range tt.wantChecks {
				if body.Checks[k] != v {
					t.Errorf("checks[%s] = %q, want %q", k, body.Checks[k], v)
				}
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code, _ := readyz(t, h, ctx)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", code, http.StatusServiceUnavailable)
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	New().Register(mux)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, rec.Code)
		}
	}
}

type fakeSync struct{ err error }

func (f fakeSync) LastSync(context.Context) (time.Time, bool, error) {
	return time.Time{}, false, f.err
}

type fakeRepo struct{ err error }

func (f fakeRepo) Ready() error { return f.err }

func TestDomainCheckers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if err := MetadataStore(fakeSync{}).Check(ctx); err != nil {
		t.Errorf("MetadataStore healthy: %v", err)
	}
	if err := MetadataStore(fakeSync{err: errors.New("locked")}).Check(ctx); err == nil {
		t.Error("MetadataStore did not report failure")
	}
	if err := Repository(fakeRepo{err: errors.New("loading")}).Check(ctx); err == nil {
		t.Error("Repository did not report failure")
	}

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name: "blobs", MaxFailures: 1, ResetTimeout: time.Hour,
	})
	c := Breaker(cb)
	if !c.Optional || !strings.HasSuffix(c.Name, "blobs") {
		t.Errorf("Breaker checker = %+v", c)
	}
	if err := c.Check(ctx); err != nil {
		t.Errorf("closed breaker: %v", err)
	}
	_ = cb.Execute(ctx, func(context.Context) error { return errors.New("boom") })
	if err := c.Check(ctx); err == nil {
		t.Error("open breaker not reported")
	}
}
