package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fileState identifies one revision of the watched file.
type fileState struct {
	mtime time.Time
	sum   [sha256.Size]byte
	empty bool
}

// Watcher keeps a config file in sync with the running process. It calls
// onChange with the previous and the new config whenever the content changes
// and still validates. An invalid edit is logged and the previous config
// stays current.
//
// File system notifications on the file's directory trigger a check right
// away; polling covers file systems without notification support.
type Watcher struct {
	path     string
	abs      string
	interval time.Duration
	onChange func(old, new *Config)
	log      *slog.Logger

	// checkMu serialises Check so onChange calls never overlap.
	checkMu sync.Mutex

	mu      sync.Mutex
	current *Config
	state   fileState

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithLogger sets the logger used for reload messages. The default is
// [slog.Default].
func WithLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWatcher reads path once and starts polling it in the background. The
// initial read must succeed.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		log:      slog.Default(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.abs = abs

	cfg, st, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.state = cfg, st

	go w.loop()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) loop() {
	t := time.NewTicker(w.interval)
	defer t.Stop()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if fw := w.notifier(); fw != nil {
		defer fw.Close()
		events, errs = fw.Events, fw.Errors
	}

	for {
		select {
		case <-w.done:
			return
		case <-t.C:
			w.Check(false)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 && filepath.Clean(ev.Name) == w.abs {
				w.Check(true)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.log.Warn("config: file notification error", "path", w.path, "err", err)
		}
	}
}

// notifier watches the directory holding the file, so editors that replace
// the file by rename are seen too. It returns nil when notifications are
// unavailable.
func (w *Watcher) notifier() *fsnotify.Watcher {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Debug("config: file notifications unavailable, polling only", "err", err)
		return nil
	}
	if err := fw.Add(filepath.Dir(w.abs)); err != nil {
		_ = fw.Close()
		w.log.Debug("config: file notifications unavailable, polling only", "err", err)
		return nil
	}
	return fw
}

// Check re-reads the file and applies it when the content changed. Unless
// force is set, a file whose modification time is unchanged is not read.
// It reports whether a new config was applied.
func (w *Watcher) Check(force bool) bool {
	w.checkMu.Lock()
	defer w.checkMu.Unlock()

	w.mu.Lock()
	prev := w.state
	w.mu.Unlock()

	if !force {
		info, err := os.Stat(w.path)
		if err != nil {
			w.log.Warn("config: cannot stat watched file", "path", w.path, "err", err)
			return false
		}
		if info.ModTime().Equal(prev.mtime) {
			return false
		}
	}

	cfg, st, err := w.read()
	if err != nil {
		w.log.Warn("config: ignoring invalid edit", "path", w.path, "err", err)
		return false
	}
	if st.empty && !prev.empty {
		// Most likely truncated by an editor that has not written yet.
		w.log.Debug("config: ignoring empty file", "path", w.path)
		return false
	}

	w.mu.Lock()
	w.state = st
	if st.sum == prev.sum {
		w.mu.Unlock()
		return false
	}
	old := w.current
	w.current = cfg
	w.mu.Unlock()

	w.log.Info("config: reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return true
}

// read parses and validates the file and returns it with its revision.
func (w *Watcher) read() (*Config, fileState, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileState{}, err
	}
	return cfg, fileState{
		mtime: info.ModTime(),
		sum:   sha256.Sum256(data),
		empty: len(bytes.TrimSpace(data)) == 0,
	}, nil
}
