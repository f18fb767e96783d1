// Package config provides the configuration schema, loader, validation and
// hot-reload watcher for sheng.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/MrWong99/sheng/pkg/voice"
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

// SettingsBackend selects where the API key is persisted.
type SettingsBackend string

const (
	// SettingsFile stores settings in a YAML file.
	SettingsFile SettingsBackend = "file"

	// SettingsSQLite stores settings in an SQLite database.
	SettingsSQLite SettingsBackend = "sqlite"

	// SettingsRedis stores settings in Redis, shared between machines.
	SettingsRedis SettingsBackend = "redis"
)

// IsValid reports whether b is a recognised backend.
func (b SettingsBackend) IsValid() bool {
	switch b {
	case SettingsFile, SettingsSQLite, SettingsRedis:
		return true
	}
	return false
}

// RecordingFormat selects the capture container.
type RecordingFormat string

const (
	// FormatAAC records AAC in an .m4a container.
	FormatAAC RecordingFormat = "aac"

	// FormatWAV records 16-bit PCM WAV.
	FormatWAV RecordingFormat = "wav"
)

// IsValid reports whether f is a recognised recording format.
func (f RecordingFormat) IsValid() bool {
	return f == FormatAAC || f == FormatWAV
}

// Config is the root configuration structure for sheng.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Service   ServiceConfig   `yaml:"service"`
	Settings  SettingsConfig  `yaml:"settings"`
	Recording RecordingConfig `yaml:"recording"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
}

// ServerConfig holds logging and the local observability endpoint.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address serving /metrics, /healthz and /readyz
	// (e.g., "127.0.0.1:9464"). Empty disables the server.
	MetricsAddr string `yaml:"metrics_addr"`

	// TraceSampleRatio is the fraction of traces sampled, in [0, 1]. Zero
	// samples all of them.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// ServiceConfig configures the voice service client.
type ServiceConfig struct {
	// BaseURL is the OpenVoice server address.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds every request. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`

	// RateLimit caps requests per second. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`

	// RateBurst is the limiter's bucket size.
	RateBurst int `yaml:"rate_burst"`

	// UserAgent is sent with every request.
	UserAgent string `yaml:"user_agent"`

	// FallbackURL is a second OpenVoice server used while the primary is
	// failing. Empty disables failover.
	FallbackURL string `yaml:"fallback_url"`

	// BreakerFailures is the number of consecutive server failures after
	// which a server is skipped for BreakerReset.
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerReset    time.Duration `yaml:"breaker_reset"`
}

// SettingsConfig selects and configures the settings store.
type SettingsConfig struct {
	Backend SettingsBackend `yaml:"backend"`

	// Path is the file or database path for the file and sqlite backends.
	Path string `yaml:"path"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// RedisPrefix namespaces keys. Defaults to "sheng:settings:".
	RedisPrefix string `yaml:"redis_prefix"`
}

// RecordingConfig configures voice sample capture.
type RecordingConfig struct {
	// Dir receives one file per take.
	Dir string `yaml:"dir"`

	Format RecordingFormat `yaml:"format"`

	// TickInterval is the granularity of the elapsed-time counter.
	TickInterval time.Duration `yaml:"tick_interval"`

	// Command overrides the capture command template. Placeholders:
	// {rate}, {channels}, {codec}, {bitrate}, {output}.
	Command string `yaml:"command"`

	// StopTimeout bounds how long a capture command may take to exit after
	// being interrupted.
	StopTimeout time.Duration `yaml:"stop_timeout"`

	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig limits how many recordings are kept on disk.
type RetentionConfig struct {
	// MaxAge removes recordings older than this. Zero disables.
	MaxAge time.Duration `yaml:"max_age"`

	// MaxFiles keeps at most this many recordings. Zero disables.
	MaxFiles int `yaml:"max_files"`

	// SweepInterval is the period between background sweeps.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// PlaybackConfig configures audio output.
type PlaybackConfig struct {
	// Command overrides the playback command template. Placeholder: {input}.
	Command string `yaml:"command"`
}

// SynthesisConfig holds the defaults of every synthesis request.
type SynthesisConfig struct {
	Voice    string             `yaml:"voice"`
	Language voice.LanguageCode `yaml:"language"`
	Speed    float64            `yaml:"speed"`
}

// Defaults used by [ApplyDefaults].
const (
	DefaultBaseURL       = "http://localhost:8000"
	DefaultTimeout       = 60 * time.Second
	DefaultTickInterval  = 100 * time.Millisecond
	DefaultStopTimeout   = 5 * time.Second
	DefaultMaxAge        = 7 * 24 * time.Hour
	DefaultMaxFiles      = 50
	DefaultSweepInterval = 10 * time.Minute
	DefaultRedisPrefix   = "sheng:settings:"
	DefaultBreakerFails  = 5
	DefaultBreakerReset  = 30 * time.Second
)

// Default returns a configuration with every default applied, for running
// without a config file.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset fields of cfg. Fields whose zero value is
// meaningful (rate_limit, metrics_addr) are left alone.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	if cfg.Service.BaseURL == "" {
		cfg.Service.BaseURL = DefaultBaseURL
	}
	if cfg.Service.Timeout == 0 {
		cfg.Service.Timeout = DefaultTimeout
	}
	if cfg.Service.BreakerFailures == 0 {
		cfg.Service.BreakerFailures = DefaultBreakerFails
	}
	if cfg.Service.BreakerReset == 0 {
		cfg.Service.BreakerReset = DefaultBreakerReset
	}
	if cfg.Service.RateLimit > 0 && cfg.Service.RateBurst == 0 {
		cfg.Service.RateBurst = 1
	}

	if cfg.Settings.Backend == "" {
		cfg.Settings.Backend = SettingsFile
	}
	if cfg.Settings.Path == "" {
		switch cfg.Settings.Backend {
		case SettingsFile:
			cfg.Settings.Path = filepath.Join(configDir(), "settings.yaml")
		case SettingsSQLite:
			cfg.Settings.Path = filepath.Join(configDir(), "settings.db")
		}
	}
	if cfg.Settings.Backend == SettingsRedis && cfg.Settings.RedisPrefix == "" {
		cfg.Settings.RedisPrefix = DefaultRedisPrefix
	}

	if cfg.Recording.Dir == "" {
		cfg.Recording.Dir = filepath.Join(os.TempDir(), "sheng")
	}
	if cfg.Recording.Format == "" {
		cfg.Recording.Format = FormatAAC
	}
	if cfg.Recording.TickInterval == 0 {
		cfg.Recording.TickInterval = DefaultTickInterval
	}
	if cfg.Recording.StopTimeout == 0 {
		cfg.Recording.StopTimeout = DefaultStopTimeout
	}
	if cfg.Recording.Retention.MaxAge == 0 {
		cfg.Recording.Retention.MaxAge = DefaultMaxAge
	}
	if cfg.Recording.Retention.MaxFiles == 0 {
		cfg.Recording.Retention.MaxFiles = DefaultMaxFiles
	}
	if cfg.Recording.Retention.SweepInterval == 0 {
		cfg.Recording.Retention.SweepInterval = DefaultSweepInterval
	}

	if cfg.Synthesis.Voice == "" {
		cfg.Synthesis.Voice = voice.DefaultVoiceID
	}
	if cfg.Synthesis.Language == "" {
		cfg.Synthesis.Language = voice.DefaultLanguage
	}
	if cfg.Synthesis.Speed == 0 {
		cfg.Synthesis.Speed = voice.DefaultSpeed
	}
}

// configDir is the per-user directory holding sheng's settings.
func configDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "sheng")
}
