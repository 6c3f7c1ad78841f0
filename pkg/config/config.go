// Package config loads the extractor configuration from built-in defaults,
// an optional YAML file, CALLRAIL_* environment variables and command line
// overrides, in that order of precedence.
package config

import (
	"path/filepath"
	"time"
)

// Config is the complete extractor configuration.
type Config struct {
	API     APIConfig     `koanf:"api"`
	Batch   BatchConfig   `koanf:"batch"`
	Retry   RetryConfig   `koanf:"retry"`
	Log     LogConfig     `koanf:"log"`
	Output  OutputConfig  `koanf:"output"`
	Redis   RedisConfig   `koanf:"redis"`
	Upload  UploadConfig  `koanf:"upload"`
	Breaker BreakerConfig `koanf:"breaker"`
}

// APIConfig configures access to the CallRail API.
type APIConfig struct {
	Key     string `koanf:"key" validate:"required"`
	BaseURL string `koanf:"base_url" validate:"required,url"`

	TimeoutSeconds int `koanf:"timeout_seconds" validate:"min=1,max=600"`

	// MaxRecords is the per-endpoint limit when none is given.
	MaxRecords int `koanf:"max_records" validate:"min=1"`

	// AccountID skips the account lookup when set.
	AccountID string `koanf:"account_id"`

	RateLimitPerHour  int     `koanf:"rate_limit_per_hour" validate:"min=0"`
	RateLimitPerDay   int     `koanf:"rate_limit_per_day" validate:"min=0"`
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"min=0"`
}

// Timeout returns the HTTP timeout.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BatchConfig bounds the window size of a fetch.
type BatchConfig struct {
	DefaultSize int `koanf:"default_size" validate:"min=1"`
	MinSize     int `koanf:"min_size" validate:"min=1"`
	MaxSize     int `koanf:"max_size" validate:"min=1"`
}

// RetryConfig configures the backoff of transient failures.
type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts" validate:"min=1,max=20"`
	BaseDelay   time.Duration `koanf:"base_delay" validate:"min=0"`
	MaxDelay    time.Duration `koanf:"max_delay" validate:"min=0"`
	Multiplier  float64       `koanf:"multiplier" validate:"gte=1"`
	Jitter      bool          `koanf:"jitter"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR"`
	Pretty bool   `koanf:"pretty"`

	// File receives a copy of every log line, truncated on each run. Empty disables it.
	File string `koanf:"file"`
}

// OutputConfig configures where results are written.
type OutputConfig struct {
	DataDir string   `koanf:"data_dir" validate:"required"`
	Formats []string `koanf:"formats" validate:"min=1,dive,oneof=csv parquet"`

	// SummaryPath defaults to <data_dir>/run_summary.json.
	SummaryPath string `koanf:"summary_path"`

	// MetricsFile receives a Prometheus textfile dump after the run. Empty disables it.
	MetricsFile string `koanf:"metrics_file"`
}

// RedisConfig enables the shared request budget and scope cache.
type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db" validate:"min=0,max=15"`
	CacheTTL time.Duration `koanf:"cache_ttl" validate:"min=0"`
}

// Enabled reports whether a redis address is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// UploadConfig mirrors output files to an S3-compatible bucket.
type UploadConfig struct {
	Endpoint  string `koanf:"endpoint"`
	Bucket    string `koanf:"bucket"`
	Region    string `koanf:"region"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Prefix    string `koanf:"prefix"`
	UseSSL    bool   `koanf:"use_ssl"`
}

// BreakerConfig configures the transport circuit breaker.
type BreakerConfig struct {
	Enabled             bool          `koanf:"enabled"`
	ConsecutiveFailures int           `koanf:"consecutive_failures" validate:"min=1"`
	OpenTimeout         time.Duration `koanf:"open_timeout" validate:"min=0"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:           "https://api.callrail.com",
			TimeoutSeconds:    30,
			MaxRecords:        100,
			RateLimitPerHour:  1000,
			RateLimitPerDay:   10000,
			RequestsPerSecond: 5,
		},
		Batch: BatchConfig{
			DefaultSize: 100,
			MinSize:     10,
			MaxSize:     1000,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    60 * time.Second,
			Multiplier:  2.0,
			Jitter:      true,
		},
		Log: LogConfig{
			Level: "info",
		},
		Output: OutputConfig{
			DataDir: "data",
			Formats: []string{"csv"},
		},
		Redis: RedisConfig{
			CacheTTL: 24 * time.Hour,
		},
		Breaker: BreakerConfig{
			Enabled:             true,
			ConsecutiveFailures: 5,
			OpenTimeout:         30 * time.Second,
		},
	}
}

// SummaryFile returns where the run summary JSON goes.
func (c *Config) SummaryFile() string {
	if c.Output.SummaryPath != "" {
		return c.Output.SummaryPath
	}
	return filepath.Join(c.Output.DataDir, "run_summary.json")
}
