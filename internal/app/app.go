// Package app wires the soundboard subsystems into a running application.
//
// The App struct owns the full lifecycle: New opens the configured stores
// and builds the repository and background cleaner, Start loads the
// collection, and Shutdown drains pending deletions and closes everything in
// order.
//
// For testing, inject stores via functional options (WithMetadataStore,
// WithBlobStore, WithLedger). When an option is not provided, New creates
// the backend named in the config through the [config.Registry].
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.etcd.io/bbolt"

	"github.com/MrWong99/soundboard/internal/blobstore"
	"github.com/MrWong99/soundboard/internal/cleanup"
	"github.com/MrWong99/soundboard/internal/config"
	"github.com/MrWong99/soundboard/internal/health"
	"github.com/MrWong99/soundboard/internal/ledger"
	"github.com/MrWong99/soundboard/internal/metastore"
	"github.com/MrWong99/soundboard/internal/observe"
	"github.com/MrWong99/soundboard/internal/repository"
)

// App owns all subsystem lifetimes.
type App struct {
	cfgMu    sync.Mutex
	cfg      *config.Config
	registry *config.Registry
	metrics  *observe.Metrics

	meta    metastore.Store
	blobs   blobstore.Store
	ledger  ledger.Ledger
	cleaner *cleanup.Cleaner
	repo    *repository.Repository

	// Shared handles opened on demand by the backend factories.
	bolt *bbolt.DB
	pool *pgxpool.Pool

	// closers run in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetadataStore injects a metadata store instead of creating one from config.
func WithMetadataStore(s metastore.Store) Option {
	return func(a *App) { a.meta = s }
}

// WithBlobStore injects a blob store instead of creating one from config.
func WithBlobStore(s blobstore.Store) Option {
	return func(a *App) { a.blobs = s }
}

// WithLedger injects the pending-deletion ledger.
func WithLedger(l ledger.Ledger) Option {
	return func(a *App) { a.ledger = l }
}

// WithRegistry replaces the default backend registry.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App from cfg. Defaults are applied to a copy of cfg.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	c := *cfg
	config.ApplyDefaults(&c)
	a := &App{cfg: &c}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.registry == nil {
		a.registry = a.defaultRegistry()
	}

	if err := a.initStores(ctx); err != nil {
		_ = a.closeAll()
		return nil, fmt.Errorf("app: init stores: %w", err)
	}
	if err := a.initLedger(); err != nil {
		_ = a.closeAll()
		return nil, fmt.Errorf("app: init ledger: %w", err)
	}

	a.cleaner = cleanup.New(a.blobs, a.ledger,
		cleanup.WithConfig(cleanupConfig(c.Cleanup, c.Storage.Timeout)),
		cleanup.WithMetrics(a.metrics),
	)
	a.repo = repository.New(a.meta, a.blobs,
		repository.WithScheduler(a.cleaner),
		repository.WithMetrics(a.metrics),
		repository.WithStorageTimeout(c.Storage.Timeout),
		repository.WithDiscardCorrupt(c.Storage.Metadata.DiscardCorrupt),
	)

	slog.Info("stores ready",
		"metadata", c.Storage.Metadata.Backend,
		"blob", c.Storage.Blob.Backend,
		"data_dir", c.Storage.DataDir,
	)
	return a, nil
}

// initStores creates the metadata and blob stores unless injected.
func (a *App) initStores(ctx context.Context) error {
	s := a.cfg.Storage
	if a.meta == nil {
		m, err := a.registry.CreateMetadata(ctx, s)
		if err != nil {
			return err
		}
		a.meta = m
		a.closeIfCloser(m)
	}
	if a.blobs == nil {
		b, err := a.registry.CreateBlob(ctx, s)
		if err != nil {
			return err
		}
		a.closeIfCloser(b)
		// Refs written under another backend stay deletable after a switch.
		var others []blobstore.Store
		if s.Blob.Backend != config.BlobFS {
			if fs, err := blobstore.NewFSStore(s.BlobDir()); err == nil {
				others = append(others, fs)
			}
		}
		a.blobs = blobstore.NewRouter(b, others...)
	}
	return nil
}

// initLedger keeps pending deletions in the shared bbolt file unless both
// stores are in-memory.
func (a *App) initLedger() error {
	if a.ledger != nil {
		return nil
	}
	s := a.cfg.Storage
	if s.Metadata.Backend == config.MetadataMemory && s.Blob.Backend == config.BlobMemory {
		a.ledger = ledger.NewMemLedger()
		return nil
	}
	db, err := a.openBolt()
	if err != nil {
		return err
	}
	l, err := ledger.NewBoltLedger(db)
	if err != nil {
		return err
	}
	a.ledger = l
	a.closers = append(a.closers, l.Close)
	return nil
}

// openBolt opens the shared database once.
func (a *App) openBolt() (*bbolt.DB, error) {
	if a.bolt != nil {
		return a.bolt, nil
	}
	path := a.cfg.Storage.BoltPath()
	if err := os.MkdirAll(a.cfg.Storage.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	a.bolt = db
	return db, nil
}

// openPool connects to PostgreSQL once.
func (a *App) openPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	a.pool = pool
	return pool, nil
}

func (a *App) closeIfCloser(v any) {
	if c, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
}

// Repository returns the avatar repository.
func (a *App) Repository() *repository.Repository { return a.repo }

// Cleaner returns the background blob cleaner.
func (a *App) Cleaner() *cleanup.Cleaner { return a.cleaner }

// Config returns a copy of the effective configuration.
func (a *App) Config() config.Config {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()
	return *a.cfg
}

// Health returns the readiness handler for the daemon.
func (a *App) Health() *health.Handler {
	return health.New(
		health.MetadataStore(a.meta),
		health.Repository(a.repo),
		health.Breaker(a.cleaner.Breaker()),
	)
}

// Start loads the collection and, when configured, replays deletions left
// over from a previous run. A failed load is returned but leaves the App
// usable: the repository stays in its error state until DeleteAll or a
// later Load succeeds.
func (a *App) Start(ctx context.Context) error {
	loadErr := a.repo.Load(ctx)
	if a.Config().Cleanup.Sweep() {
		res, err := a.cleaner.Sweep(ctx)
		if err != nil {
			slog.Warn("startup sweep failed", "err", err)
		} else if res.Deleted+res.Failed > 0 {
			slog.Info("startup sweep finished", "deleted", res.Deleted, "failed", res.Failed)
		}
	}
	if loadErr != nil {
		return fmt.Errorf("app: start: %w", loadErr)
	}
	return nil
}

// Reload applies the hot-reloadable parts of next. Changes that need a
// restart are logged.
func (a *App) Reload(next *config.Config) config.ConfigDiff {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()

	d := config.Diff(a.cfg, next)
	if d.CleanupChanged {
		a.cleaner.SetConfig(cleanupConfig(next.Cleanup, a.cfg.Storage.Timeout))
		a.cfg.Cleanup = next.Cleanup
		slog.Info("cleanup settings reloaded")
	}
	if d.LogLevelChanged {
		a.cfg.Server.LogLevel = next.Server.LogLevel
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes take effect after restart", "fields", d.RestartRequired)
	}
	return d
}

// Shutdown waits for scheduled blob deletions until ctx ends, then closes
// every subsystem. Deletions still running are cancelled and stay in the
// ledger for the next start.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if err := a.cleaner.Wait(ctx); err != nil {
			slog.Warn("shutdown deadline reached with blob deletions in flight", "err", err)
			shutdownErr = err
		}
		if err := a.cleaner.Close(); err != nil {
			slog.Warn("close cleaner", "err", err)
		}
		shutdownErr = errors.Join(shutdownErr, a.closeAll())
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs closers and then releases the shared handles.
func (a *App) closeAll() error {
	var errs []error
	for i, closer := range a.closers {
		if err := closer(); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.bolt != nil {
		errs = append(errs, a.bolt.Close())
		a.bolt = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return errors.Join(errs...)
}

func cleanupConfig(c config.CleanupConfig, timeout time.Duration) cleanup.Config {
	return cleanup.Config{
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: c.InitialBackoff,
		MaxBackoff:     c.MaxBackoff,
		Concurrency:    c.Concurrency,
		Timeout:        timeout,
	}
}
