package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/soundboard/internal/config"
)

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(c *config.Config)
		wantLevel   bool
		wantCleanup bool
		wantRestart []string
	}{
		{name: "identical", mutate: func(*config.Config) {}},
		{
			name:      "log level",
			mutate:    func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			wantLevel: true,
		},
		{
			name:        "cleanup tuning",
			mutate:      func(c *config.Config) { c.Cleanup.MaxBackoff = time.Minute },
			wantCleanup: true,
		},
		{
			name: "storage and listen address",
			mutate: func(c *config.Config) {
				c.Server.ListenAddr = ":9999"
				c.Storage.Blob.Backend = config.BlobGCS
				c.Storage.Blob.GCSBucket = "b"
			},
			wantRestart: []string{"server.listen_addr", "storage.blob"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old := config.Default()
			next := config.Default()
			tt.mutate(next)

			d := config.Diff(old, next)
			if d.LogLevelChanged != tt.wantLevel {
				t.Errorf("LogLevelChanged = %v, want %v", d.LogLevelChanged, tt.wantLevel)
			}
			if tt.wantLevel && d.NewLogLevel != next.Server.LogLevel {
				t.Errorf("NewLogLevel = %q", d.NewLogLevel)
			}
			if d.CleanupChanged != tt.wantCleanup {
				t.Errorf("CleanupChanged = %v, want %v", d.CleanupChanged, tt.wantCleanup)
			}
			if !slices.Equal(d.RestartRequired, tt.wantRestart) {
				t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tt.wantRestart)
			}
		})
	}
}
