// Package cleanup deletes orphaned blobs in the background.
//
// A mutation that drops voices or images only promises their deletion: the
// refs are written to a durable [ledger.Ledger] and a [Cleaner] removes them
// from the blob store after the mutation has returned. Failures are retried
// with backoff, guarded by a circuit breaker, and otherwise left in the
// ledger for the next [Cleaner.Sweep]. Nothing here ever fails a caller's
// mutation.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/soundboard/internal/avatar"
	"github.com/MrWong99/soundboard/internal/blobstore"
	"github.com/MrWong99/soundboard/internal/ledger"
	"github.com/MrWong99/soundboard/internal/observe"
	"github.com/MrWong99/soundboard/internal/resilience"
)

// ErrClosed is returned by [Cleaner.Schedule] after [Cleaner.Close]. The
// refs are still recorded and will be picked up by the next sweep.
var ErrClosed = errors.New("cleanup: cleaner closed")

// Deleter is the slice of the blob store the cleaner needs.
type Deleter interface {
	Delete(ctx context.Context, ref string) error
}

// Result counts the outcome of one batch.
type Result struct {
	Deleted int
	Failed  int
}

// Config tunes retries and fan-out.
type Config struct {
	// MaxAttempts per ref and batch. Default: 5.
	MaxAttempts int

	// InitialBackoff and MaxBackoff bound the wait between attempts.
	// Defaults: 200ms and 10s.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Concurrency limits parallel deletions. Default: 4.
	Concurrency int

	// Timeout bounds a single Delete call. Default: 10s.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// Option configures a [Cleaner].
type Option func(*Cleaner)

// WithConfig sets retry and fan-out limits.
func WithConfig(cfg Config) Option {
	return func(c *Cleaner) {
		c.cfg = cfg
	}
}

// WithMetrics records deletion outcomes on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Cleaner) {
		c.metrics = m
	}
}

// WithBreaker guards blob store calls with cb. By default each cleaner gets
// its own breaker named "blobstore".
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Cleaner) {
		c.breaker = cb
	}
}

// WithOnBatch registers fn to run after every background batch.
func WithOnBatch(fn func(Result)) Option {
	return func(c *Cleaner) {
		c.onBatch = fn
	}
}

// Cleaner deletes blobs promised for deletion. It is safe for concurrent use.
type Cleaner struct {
	store   Deleter
	ledger  ledger.Ledger
	cfg     Config
	metrics *observe.Metrics
	breaker *resilience.CircuitBreaker
	onBatch func(Result)

	life   context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// New returns a cleaner deleting from store and tracking progress in l.
func New(store Deleter, l ledger.Ledger, opts ...Option) *Cleaner {
	c := &Cleaner{store: store, ledger: l}
	for _, opt := range opts {
		opt(c)
	}
	c.cfg = c.cfg.withDefaults()
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.breaker == nil {
		c.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name: "blobstore",
			IsFailure: func(err error) bool {
				return !errors.Is(err, blobstore.ErrForeignRef) &&
					!errors.Is(err, blobstore.ErrUnknownScheme)
			},
		})
	}
	c.life, c.stop = context.WithCancel(context.Background())
	return c
}

// SetConfig replaces the retry and fan-out limits. Batches already running
// keep the previous values.
func (c *Cleaner) SetConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg.withDefaults()
}

func (c *Cleaner) config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Breaker returns the circuit breaker guarding blob deletions.
func (c *Cleaner) Breaker() *resilience.CircuitBreaker { return c.breaker }

// Schedule records refs in the ledger and deletes them in the background.
// It returns once the refs are recorded. The deletion keeps the values of
// ctx (for tracing) but not its cancellation: it stops only when the cleaner
// is closed. A ledger error is returned, but the deletion is still attempted.
func (c *Cleaner) Schedule(ctx context.Context, refs []string) error {
	refs = compact(refs)
	if len(refs) == 0 {
		return nil
	}
	ledgerErr := c.ledger.Add(ctx, refs...)
	if ledgerErr != nil {
		ledgerErr = fmt.Errorf("cleanup: record pending deletions: %w", ledgerErr)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.Join(ErrClosed, ledgerErr)
	}
	c.wg.Add(1)
	c.mu.Unlock()

	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	unlink := context.AfterFunc(c.life, cancel)
	go func() {
		defer c.wg.Done()
		defer cancel()
		defer unlink()

		res := c.run(bg, refs)
		observe.Logger(bg).Info("blob cleanup finished",
			"deleted", res.Deleted, "failed", res.Failed)
		if c.onBatch != nil {
			c.onBatch(res)
		}
	}()
	return ledgerErr
}

// Sweep deletes every ref left in the ledger, typically at startup. It
// blocks until the sweep is done or ctx ends.
func (c *Cleaner) Sweep(ctx context.Context) (Result, error) {
	entries, err := c.ledger.Pending(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("cleanup: sweep: %w", err)
	}
	c.metrics.PendingDeletions.Record(ctx, int64(len(entries)))
	if len(entries) == 0 {
		return Result{}, nil
	}
	refs := make([]string, len(entries))
	for i, e := range entries {
		refs[i] = e.Ref
	}
	slog.Info("sweeping pending blob deletions", "count", len(refs))
	return c.run(ctx, refs), ctx.Err()
}

// Wait blocks until every scheduled batch has finished or ctx ends.
func (c *Cleaner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work, cancels in-flight retries, and waits for the
// background goroutines to return. Interrupted refs stay in the ledger.
func (c *Cleaner) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.stop()
	c.wg.Wait()
	return nil
}

func (c *Cleaner) run(ctx context.Context, refs []string) Result {
	var (
		mu  sync.Mutex
		res Result
	)
	cfg := c.config()
	g := new(errgroup.Group)
	g.SetLimit(cfg.Concurrency)
	for _, ref := range refs {
		g.Go(func() error {
			ok := c.deleteOne(ctx, cfg, ref)
			mu.Lock()
			if ok {
				res.Deleted++
			} else {
				res.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if pending, err := c.ledger.Pending(context.WithoutCancel(ctx)); err == nil {
		c.metrics.PendingDeletions.Record(ctx, int64(len(pending)))
	}
	return res
}

// deleteOne reports whether ref is gone from the store.
func (c *Cleaner) deleteOne(ctx context.Context, cfg Config, ref string) bool {
	retry := resilience.RetryConfig{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		Jitter:         0.2,
	}
	attempts, err := resilience.Retry(ctx, retry, func(ctx context.Context) error {
		return c.breaker.Execute(ctx, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
			start := time.Now()
			err := c.store.Delete(callCtx, ref)
			c.metrics.ObserveStorage(ctx, "blob", "delete", start, err)
			if errors.Is(err, blobstore.ErrForeignRef) || errors.Is(err, blobstore.ErrUnknownScheme) {
				return resilience.Permanent(err)
			}
			return err
		})
	})
	for range attempts - 1 {
		c.metrics.RecordBlobDeletion(ctx, observe.DeletionRetried)
	}

	// Ledger bookkeeping must survive the cancellation that interrupted us.
	lctx := context.WithoutCancel(ctx)
	log := observe.Logger(ctx).With("ref", ref, "attempts", attempts)
	switch {
	case err == nil:
		c.metrics.RecordBlobDeletion(ctx, observe.DeletionDeleted)
		if lerr := c.ledger.Done(lctx, ref); lerr != nil {
			log.Warn("blob deleted but ledger entry kept", "err", lerr)
		}
		return true

	case errors.Is(err, blobstore.ErrForeignRef) || errors.Is(err, blobstore.ErrUnknownScheme):
		// Never deletable by this store; retrying cannot help.
		c.metrics.RecordBlobDeletion(ctx, observe.DeletionRejected)
		log.Warn("dropping undeletable blob ref", "err", err)
		if lerr := c.ledger.Done(lctx, ref); lerr != nil {
			log.Warn("ledger entry kept", "err", lerr)
		}
		return false

	default:
		c.metrics.RecordBlobDeletion(ctx, observe.DeletionFailed)
		cause := fmt.Errorf("%w: %w", avatar.ErrBlob, err)
		log.Warn("blob deletion failed, left for next sweep", "err", cause)
		if lerr := c.ledger.Fail(lctx, ref, cause); lerr != nil {
			log.Warn("record failed deletion", "err", lerr)
		}
		return false
	}
}

func compact(refs []string) []string {
	seen := make(map[string]bool, len(refs))
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
