package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

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

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
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

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %v must be within [0, 1]", r))
	}

	// Service
	if cfg.Service.BaseURL != "" {
		u, err := url.Parse(cfg.Service.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("service.base_url %q must be an absolute URL with scheme and host", cfg.Service.BaseURL))
		}
	}
	if cfg.Service.Timeout < 0 {
		errs = append(errs, fmt.Errorf("service.timeout %s must not be negative", cfg.Service.Timeout))
	}
	if cfg.Service.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("service.rate_limit %v must not be negative", cfg.Service.RateLimit))
	}
	if cfg.Service.RateBurst < 0 {
		errs = append(errs, fmt.Errorf("service.rate_burst %d must not be negative", cfg.Service.RateBurst))
	}
	if cfg.Service.FallbackURL != "" {
		u, err := url.Parse(cfg.Service.FallbackURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("service.fallback_url %q must be an absolute URL with scheme and host", cfg.Service.FallbackURL))
		}
	}
	if cfg.Service.BreakerFailures < 0 {
		errs = append(errs, fmt.Errorf("service.breaker_failures %d must not be negative", cfg.Service.BreakerFailures))
	}
	if cfg.Service.BreakerReset < 0 {
		errs = append(errs, fmt.Errorf("service.breaker_reset %s must not be negative", cfg.Service.BreakerReset))
	}

	// Settings
	switch b := cfg.Settings.Backend; {
	case b != "" && !b.IsValid():
		errs = append(errs, fmt.Errorf("settings.backend %q is invalid; valid values: file, sqlite, redis", b))
	case b == SettingsRedis:
		if cfg.Settings.RedisAddr == "" {
			errs = append(errs, errors.New("settings.redis_addr is required when backend is redis"))
		}
		if cfg.Settings.RedisDB < 0 {
			errs = append(errs, fmt.Errorf("settings.redis_db %d must not be negative", cfg.Settings.RedisDB))
		}
	case b == SettingsFile || b == SettingsSQLite:
		if cfg.Settings.Path == "" {
			errs = append(errs, fmt.Errorf("settings.path is required when backend is %s", b))
		}
	}

	// Recording
	rec := cfg.Recording
	if rec.Format != "" && !rec.Format.IsValid() {
		errs = append(errs, fmt.Errorf("recording.format %q is invalid; valid values: aac, wav", rec.Format))
	}
	if rec.TickInterval < 0 {
		errs = append(errs, fmt.Errorf("recording.tick_interval %s must not be negative", rec.TickInterval))
	}
	if rec.StopTimeout < 0 {
		errs = append(errs, fmt.Errorf("recording.stop_timeout %s must not be negative", rec.StopTimeout))
	}
	if rec.Retention.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("recording.retention.max_age %s must not be negative", rec.Retention.MaxAge))
	}
	if rec.Retention.MaxFiles < 0 {
		errs = append(errs, fmt.Errorf("recording.retention.max_files %d must not be negative", rec.Retention.MaxFiles))
	}
	if rec.Retention.SweepInterval < 0 {
		errs = append(errs, fmt.Errorf("recording.retention.sweep_interval %s must not be negative", rec.Retention.SweepInterval))
	}

	// Synthesis
	syn := cfg.Synthesis
	if syn.Language != "" && !syn.Language.IsValid() {
		errs = append(errs, fmt.Errorf("synthesis.language %q is invalid; valid values: zh-cn, yue-cn, en", syn.Language))
	}
	// The server decides what speeds it accepts; only warn.
	if syn.Speed != 0 && (syn.Speed < 0 || syn.Speed > 3) {
		slog.Warn("synthesis.speed is outside (0, 3]; the server may reject requests", "speed", syn.Speed)
	}

	return errors.Join(errs...)
}
