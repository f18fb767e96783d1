package config

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SynthesisChanged is true if the default voice, language or speed
	// changed. These apply to the next request.
	SynthesisChanged bool

	// RetentionChanged is true if the retention policy changed.
	RetentionChanged bool

	// RestartRequired lists changed sections that only take effect on the
	// next start (e.g. "service", "settings").
	RestartRequired []string
}

// Empty reports whether d carries no changes.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.SynthesisChanged && !d.RetentionChanged && len(d.RestartRequired) == 0
}

// Live reports whether d changes anything that applies without a restart.
func (d ConfigDiff) Live() bool {
	return d.LogLevelChanged || d.SynthesisChanged || d.RetentionChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Synthesis != new.Synthesis {
		d.SynthesisChanged = true
	}
	if old.Recording.Retention != new.Recording.Retention {
		d.RetentionChanged = true
	}

	if old.Server.MetricsAddr != new.Server.MetricsAddr {
		d.RestartRequired = append(d.RestartRequired, "server.metrics_addr")
	}
	if old.Server.TraceSampleRatio != new.Server.TraceSampleRatio {
		d.RestartRequired = append(d.RestartRequired, "server.trace_sample_ratio")
	}
	if old.Service != new.Service {
		d.RestartRequired = append(d.RestartRequired, "service")
	}
	if old.Settings != new.Settings {
		d.RestartRequired = append(d.RestartRequired, "settings")
	}
	oldRec, newRec := old.Recording, new.Recording
	oldRec.Retention, newRec.Retention = RetentionConfig{}, RetentionConfig{}
	if oldRec != newRec {
		d.RestartRequired = append(d.RestartRequired, "recording")
	}
	if old.Playback != new.Playback {
		d.RestartRequired = append(d.RestartRequired, "playback")
	}

	return d
}
