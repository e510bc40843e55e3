// Package observe provides application-wide observability primitives for the
// soundboard: OpenTelemetry metrics, tracing, trace-aware structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from /metrics. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all soundboard metrics.
const meterName = "github.com/MrWong99/soundboard"

// Status attribute values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Blob deletion outcomes recorded by [Metrics.RecordBlobDeletion].
const (
	DeletionDeleted  = "deleted"
	DeletionRetried  = "retried"
	DeletionFailed   = "failed"
	DeletionRejected = "rejected"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// StorageDuration tracks metadata and blob store call latency. Use with
	// attributes store ("metadata" or "blob"), op, and status.
	StorageDuration metric.Float64Histogram

	// Saves counts metadata document saves by status.
	Saves metric.Int64Counter

	// Mutations counts repository mutations by op and status.
	Mutations metric.Int64Counter

	// Rollbacks counts in-memory reverts after a failed save, by op.
	Rollbacks metric.Int64Counter

	// BlobDeletions counts background blob deletions by outcome.
	BlobDeletions metric.Int64Counter

	// DecodeRepairs counts records skipped or fields defaulted while loading
	// the collection. Use with attribute kind ("skipped" or "defaulted").
	DecodeRepairs metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes by breaker and
	// target state.
	BreakerTransitions metric.Int64Counter

	// PendingDeletions is the size of the pending-deletion ledger.
	PendingDeletions metric.Int64Gauge

	// Avatars and Voices are the collection size after the last change.
	Avatars metric.Int64Gauge
	Voices  metric.Int64Gauge

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes method and route.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for local
// storage calls.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StorageDuration, err = m.Float64Histogram("soundboard.storage.duration",
		metric.WithDescription("Latency of metadata and blob store calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Saves, err = m.Int64Counter("soundboard.metadata.saves",
		metric.WithDescription("Metadata document saves by status."),
	); err != nil {
		return nil, err
	}
	if met.Mutations, err = m.Int64Counter("soundboard.repository.mutations",
		metric.WithDescription("Repository mutations by operation and status."),
	); err != nil {
		return nil, err
	}
	if met.Rollbacks, err = m.Int64Counter("soundboard.repository.rollbacks",
		metric.WithDescription("In-memory reverts after a failed save, by operation."),
	); err != nil {
		return nil, err
	}
	if met.BlobDeletions, err = m.Int64Counter("soundboard.blob.deletions",
		metric.WithDescription("Background blob deletions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.DecodeRepairs, err = m.Int64Counter("soundboard.codec.repairs",
		metric.WithDescription("Records skipped or fields defaulted while loading."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("soundboard.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by breaker and target state."),
	); err != nil {
		return nil, err
	}
	if met.PendingDeletions, err = m.Int64Gauge("soundboard.cleanup.pending",
		metric.WithDescription("Blob deletions recorded but not yet confirmed."),
	); err != nil {
		return nil, err
	}
	if met.Avatars, err = m.Int64Gauge("soundboard.avatars",
		metric.WithDescription("Number of avatars in the collection."),
	); err != nil {
		return nil, err
	}
	if met.Voices, err = m.Int64Gauge("soundboard.voices",
		metric.WithDescription("Number of voices across all avatars."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("soundboard.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Status maps err to [StatusOK] or [StatusError].
func Status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

// ObserveStorage records the latency of a storage call that began at start.
func (m *Metrics) ObserveStorage(ctx context.Context, store, op string, start time.Time, err error) {
	m.StorageDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(
			attribute.String("store", store),
			attribute.String("op", op),
			attribute.String("status", Status(err)),
		),
	)
}

// RecordSave counts one metadata save.
func (m *Metrics) RecordSave(ctx context.Context, err error) {
	m.Saves.Add(ctx, 1, metric.WithAttributes(attribute.String("status", Status(err))))
}

// RecordMutation counts one repository mutation.
func (m *Metrics) RecordMutation(ctx context.Context, op string, err error) {
	m.Mutations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", Status(err)),
		),
	)
}

// RecordRollback counts one in-memory revert.
func (m *Metrics) RecordRollback(ctx context.Context, op string) {
	m.Rollbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordBlobDeletion counts one deletion outcome; see the Deletion constants.
func (m *Metrics) RecordBlobDeletion(ctx context.Context, outcome string) {
	m.BlobDeletions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordDecodeRepairs counts the repairs of one tolerant decode.
func (m *Metrics) RecordDecodeRepairs(ctx context.Context, skipped, defaulted int) {
	if skipped > 0 {
		m.DecodeRepairs.Add(ctx, int64(skipped), metric.WithAttributes(attribute.String("kind", "skipped")))
	}
	if defaulted > 0 {
		m.DecodeRepairs.Add(ctx, int64(defaulted), metric.WithAttributes(attribute.String("kind", "defaulted")))
	}
}

// RecordBreakerTransition counts one circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("to", to),
		),
	)
}

// RecordCollection sets the collection size gauges.
func (m *Metrics) RecordCollection(ctx context.Context, avatars, voices int) {
	m.Avatars.Record(ctx, int64(avatars))
	m.Voices.Record(ctx, int64(voices))
}
