package health

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/soundboard/internal/resilience"
)

// SyncReporter is implemented by metadata stores.
type SyncReporter interface {
	LastSync(ctx context.Context) (time.Time, bool, error)
}

// MetadataStore checks that the metadata store answers a read.
func MetadataStore(s SyncReporter) Checker {
	return Checker{
		Name: "metadata",
		Check: func(ctx context.Context) error {
			_, _, err := s.LastSync(ctx)
			return err
		},
	}
}

// ReadinessReporter is implemented by the repository.
type ReadinessReporter interface {
	Ready() error
}

// Repository checks that the collection has been loaded.
func Repository(r ReadinessReporter) Checker {
	return Checker{
		Name: "repository",
		Check: func(context.Context) error {
			return r.Ready()
		},
	}
}

// Breaker reports an open circuit breaker. It is optional: blob cleanup is
// best-effort and an open breaker only delays it.
func Breaker(cb *resilience.CircuitBreaker) Checker {
	return Checker{
		Name:     "breaker:" + cb.Name(),
		Optional: true,
		Check: func(context.Context) error {
			if s := cb.State(); s != resilience.StateClosed {
				return fmt.Errorf("circuit %s", s)
			}
			return nil
		},
	}
}
