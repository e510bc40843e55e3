// Command soundboard runs the avatar and voice storage daemon. It loads the
// collection, replays blob deletions left over from the last run, and serves
// health and Prometheus metrics until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/soundboard/internal/app"
	"github.com/MrWong99/soundboard/internal/config"
	"github.com/MrWong99/soundboard/internal/observe"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "soundboard.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload log level and cleanup settings when the config file changes")
	ephemeral := flag.Bool("ephemeral", false, "use in-memory stores and discard everything on exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(os.Stderr, "soundboard: config file %q not found, using defaults\n", *configPath)
		cfg = config.Default()
		*watch = false
	case err != nil:
		fmt.Fprintf(os.Stderr, "soundboard: %v\n", err)
		return 1
	}

	if *ephemeral {
		cfg.Storage.Metadata.Backend = config.MetadataMemory
		cfg.Storage.Blob.Backend = config.BlobMemory
	}

	lvl := &slog.LevelVar{}
	lvl.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(observe.NewLogger(os.Stderr, lvl))

	slog.Info("soundboard starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"profile", cfg.Storage.Profile,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	if err := application.Start(ctx); err != nil {
		// Keep serving: readiness reports the failure and DeleteAll recovers.
		slog.Error("collection not loaded", "err", err)
	}

	if *watch {
		w, err := config.NewWatcher(*configPath, func(_, next *config.Config) {
			d := application.Reload(next)
			if d.LogLevelChanged {
				lvl.Set(d.NewLogLevel.Level())
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case <-hup:
						if !w.Check(true) {
							slog.Info("SIGHUP: config unchanged")
						}
					}
				}
			}()
		}
	}

	mux := http.NewServeMux()
	application.Health().Register(mux)
	mux.Handle("GET /metrics", telemetry.Handler())
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	exit := 0
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping")
	case err := <-serveErr:
		slog.Error("http server failed", "err", err)
		exit = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return exit
}
