package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidBackends lists the backend names accepted per store kind.
var ValidBackends = map[string][]string{
	"metadata": {MetadataFile, MetadataBolt, MetadataPostgres, MetadataMemory},
	"blob":     {BlobFS, BlobBolt, BlobGCS, BlobMemory},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	s := cfg.Storage
	if s.Profile != "" && !s.Profile.IsValid() {
		errs = append(errs, fmt.Errorf("storage.profile %q is invalid; valid values: native, embedded", s.Profile))
	}
	if s.Timeout < 0 {
		errs = append(errs, fmt.Errorf("storage.timeout %s must not be negative", s.Timeout))
	}
	if err := validateBackend("metadata", s.Metadata.Backend); err != nil {
		errs = append(errs, err)
	}
	if err := validateBackend("blob", s.Blob.Backend); err != nil {
		errs = append(errs, err)
	}
	if s.Metadata.Backend == MetadataPostgres && s.Metadata.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.metadata.postgres_dsn is required when backend is postgres"))
	}
	if s.Blob.Backend == BlobGCS && s.Blob.GCSBucket == "" {
		errs = append(errs, errors.New("storage.blob.gcs_bucket is required when backend is gcs"))
	}

	// A memory store loses everything on exit; pairing it with a durable
	// store leaves dangling references.
	if (s.Metadata.Backend == MetadataMemory) != (s.Blob.Backend == BlobMemory) &&
		s.Metadata.Backend != "" && s.Blob.Backend != "" {
		slog.Warn("only one of the metadata and blob stores is in-memory; references will dangle after restart",
			"metadata", s.Metadata.Backend,
			"blob", s.Blob.Backend,
		)
	}

	c := cfg.Cleanup
	if c.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("cleanup.max_attempts %d must not be negative", c.MaxAttempts))
	}
	if c.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("cleanup.concurrency %d must not be negative", c.Concurrency))
	}
	if c.MaxBackoff > 0 && c.InitialBackoff > c.MaxBackoff {
		errs = append(errs, fmt.Errorf("cleanup.initial_backoff %s exceeds cleanup.max_backoff %s", c.InitialBackoff, c.MaxBackoff))
	}

	return errors.Join(errs...)
}

// validateBackend rejects a non-empty name missing from [ValidBackends].
func validateBackend(kind, name string) error {
	if name == "" {
		return nil
	}
	known := ValidBackends[kind]
	if slices.Contains(known, name) {
		return nil
	}
	return fmt.Errorf("storage.%s.backend %q is invalid; valid values: %v", kind, name, known)
}
