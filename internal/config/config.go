// Package config provides the configuration schema, loader, and backend
// registry for the soundboard daemon and CLI.
package config

import (
	"log/slog"
	"path/filepath"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l onto a [slog.Level]. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Profile selects the default backend pair for a deployment.
type Profile string

const (
	// ProfileNative stores metadata in a JSON preferences file and blobs as
	// plain files under the data directory.
	ProfileNative Profile = "native"

	// ProfileEmbedded keeps both metadata and blobs in one bbolt database
	// file; blob references use the bolt:// scheme.
	ProfileEmbedded Profile = "embedded"
)

// IsValid reports whether p is a recognised profile.
func (p Profile) IsValid() bool {
	return p == ProfileNative || p == ProfileEmbedded
}

// Metadata backend names.
const (
	MetadataFile     = "file"
	MetadataBolt     = "bolt"
	MetadataPostgres = "postgres"
	MetadataMemory   = "memory"
)

// Blob backend names.
const (
	BlobFS     = "fs"
	BlobBolt   = "bolt"
	BlobGCS    = "gcs"
	BlobMemory = "memory"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Cleanup CleanupConfig `yaml:"cleanup"`
}

// ServerConfig holds network and logging settings for the daemon.
type ServerConfig struct {
	// ListenAddr is the TCP address serving health and metrics (e.g. ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// StorageConfig selects and configures the persistence backends.
type StorageConfig struct {
	// Profile picks default metadata and blob backends. Explicit backend
	// names below override it.
	Profile Profile `yaml:"profile"`

	// DataDir holds every file-based store. Defaults to "./data".
	DataDir string `yaml:"data_dir"`

	// Timeout bounds each storage call. Zero disables the timeout.
	Timeout time.Duration `yaml:"timeout"`

	Metadata MetadataConfig `yaml:"metadata"`
	Blob     BlobConfig     `yaml:"blob"`
}

// MetadataConfig configures the metadata store.
type MetadataConfig struct {
	// Backend is one of file, bolt, postgres, or memory.
	Backend string `yaml:"backend"`

	// PostgresDSN is required for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`

	// DiscardCorrupt clears an undecodable stored collection on load instead
	// of refusing to start.
	DiscardCorrupt bool `yaml:"discard_corrupt"`
}

// BlobConfig configures the blob store.
type BlobConfig struct {
	// Backend is one of fs, bolt, gcs, or memory.
	Backend string `yaml:"backend"`

	// GCSBucket is required for the gcs backend.
	GCSBucket string `yaml:"gcs_bucket"`
}

// CleanupConfig tunes background blob deletion.
type CleanupConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Concurrency    int           `yaml:"concurrency"`

	// SweepOnStart replays deletions left over from a previous run.
	SweepOnStart *bool `yaml:"sweep_on_start"`
}

// Sweep reports whether leftover deletions are replayed on start. It
// defaults to true.
func (c CleanupConfig) Sweep() bool {
	return c.SweepOnStart == nil || *c.SweepOnStart
}

// PrefsPath is the JSON preferences file used by the file metadata backend.
func (s StorageConfig) PrefsPath() string {
	return filepath.Join(s.DataDir, "prefs.json")
}

// BoltPath is the bbolt database shared by the bolt metadata backend, the
// bolt blob backend, and the deletion ledger.
func (s StorageConfig) BoltPath() string {
	return filepath.Join(s.DataDir, "soundboard.db")
}

// BlobDir is the root of the fs blob backend.
func (s StorageConfig) BlobDir() string {
	return filepath.Join(s.DataDir, "blobs")
}

// ApplyDefaults fills unset fields. Backends left empty are derived from
// the profile.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	s := &cfg.Storage
	if s.Profile == "" {
		s.Profile = ProfileNative
	}
	if s.DataDir == "" {
		s.DataDir = "./data"
	}
	if s.Timeout == 0 {
		s.Timeout = 10 * time.Second
	}
	if s.Metadata.Backend == "" {
		s.Metadata.Backend = MetadataFile
		if s.Profile == ProfileEmbedded {
			s.Metadata.Backend = MetadataBolt
		}
	}
	if s.Blob.Backend == "" {
		s.Blob.Backend = BlobFS
		if s.Profile == ProfileEmbedded {
			s.Blob.Backend = BlobBolt
		}
	}

	c := &cfg.Cleanup
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
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
