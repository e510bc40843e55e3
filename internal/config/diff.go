package config

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// CleanupChanged is set when any cleanup tuning changed. It applies to
	// deletions scheduled after the reload.
	CleanupChanged bool

	// RestartRequired lists changed settings that only take effect on the
	// next start, such as storage backends or the listen address.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oc, nc := old.Cleanup, new.Cleanup
	if oc.MaxAttempts != nc.MaxAttempts || oc.InitialBackoff != nc.InitialBackoff ||
		oc.MaxBackoff != nc.MaxBackoff || oc.Concurrency != nc.Concurrency {
		d.CleanupChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	ps, ns := old.Storage, new.Storage
	if ps.Profile != ns.Profile {
		d.RestartRequired = append(d.RestartRequired, "storage.profile")
	}
	if ps.DataDir != ns.DataDir {
		d.RestartRequired = append(d.RestartRequired, "storage.data_dir")
	}
	if ps.Timeout != ns.Timeout {
		d.RestartRequired = append(d.RestartRequired, "storage.timeout")
	}
	if ps.Metadata != ns.Metadata {
		d.RestartRequired = append(d.RestartRequired, "storage.metadata")
	}
	if ps.Blob != ns.Blob {
		d.RestartRequired = append(d.RestartRequired, "storage.blob")
	}

	return d
}
