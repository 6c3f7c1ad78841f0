package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CALLRAIL_API_KEY", "secret")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.Key != "secret" {
		t.Errorf("API.Key = %q, want secret", cfg.API.Key)
	}
	if cfg.API.BaseURL != "https://api.callrail.com" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout() != 30*time.Second {
		t.Errorf("API.Timeout() = %v, want 30s", cfg.API.Timeout())
	}
	if cfg.API.MaxRecords != 100 {
		t.Errorf("API.MaxRecords = %d, want 100", cfg.API.MaxRecords)
	}
	if cfg.API.RateLimitPerHour != 1000 || cfg.API.RateLimitPerDay != 10000 {
		t.Errorf("rate limits = %d/h %d/d, want 1000/h 10000/d", cfg.API.RateLimitPerHour, cfg.API.RateLimitPerDay)
	}
	if want := (BatchConfig{DefaultSize: 100, MinSize: 10, MaxSize: 1000}); cfg.Batch != want {
		t.Errorf("Batch = %+v, want %+v", cfg.Batch, want)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelay != time.Second || cfg.Retry.MaxDelay != time.Minute {
		t.Errorf("Retry delays = %v..%v, want 1s..1m", cfg.Retry.BaseDelay, cfg.Retry.MaxDelay)
	}
	if !cfg.Retry.Jitter {
		t.Error("Retry.Jitter should default to true")
	}
	if !slices.Equal(cfg.Output.Formats, []string{"csv"}) {
		t.Errorf("Output.Formats = %v, want [csv]", cfg.Output.Formats)
	}
	if want := filepath.Join("data", "run_summary.json"); cfg.SummaryFile() != want {
		t.Errorf("SummaryFile() = %q, want %q", cfg.SummaryFile(), want)
	}
	if cfg.Redis.Enabled() {
		t.Error("Redis should be disabled without an address")
	}
	if !cfg.Breaker.Enabled {
		t.Error("Breaker should default to enabled")
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("CALLRAIL_API_KEY", "secret")
	t.Setenv("CALLRAIL_API_TIMEOUT", "45")
	t.Setenv("CALLRAIL_MAX_RECORDS", "500")
	t.Setenv("CALLRAIL_BATCH_SIZE", "50")
	t.Setenv("CALLRAIL_MAX_RETRIES", "5")
	t.Setenv("CALLRAIL_RETRY_BASE_DELAY", "250ms")
	t.Setenv("CALLRAIL_LOG_LEVEL", "DEBUG")
	t.Setenv("CALLRAIL_DATA_DIR", "/tmp/out")
	t.Setenv("CALLRAIL_OUTPUT_FORMATS", "csv, Parquet")
	t.Setenv("CALLRAIL_REDIS_ADDR", "localhost:6379")
	t.Setenv("CALLRAIL_OUTPUT_SUMMARY_PATH", "/tmp/summary.json")
	t.Setenv("CALLRAIL_UNKNOWN_SETTING", "ignored")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.TimeoutSeconds != 45 {
		t.Errorf("API.TimeoutSeconds = %d, want 45", cfg.API.TimeoutSeconds)
	}
	if cfg.API.MaxRecords != 500 {
		t.Errorf("API.MaxRecords = %d, want 500", cfg.API.MaxRecords)
	}
	if cfg.Batch.DefaultSize != 50 {
		t.Errorf("Batch.DefaultSize = %d, want 50", cfg.Batch.DefaultSize)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("Retry.MaxAttempts = %d, want 5", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelay != 250*time.Millisecond {
		t.Errorf("Retry.BaseDelay = %v, want 250ms", cfg.Retry.BaseDelay)
	}
	if cfg.Log.Level != "DEBUG" {
		t.Errorf("Log.Level = %q, want DEBUG", cfg.Log.Level)
	}
	if cfg.Output.DataDir != "/tmp/out" {
		t.Errorf("Output.DataDir = %q, want /tmp/out", cfg.Output.DataDir)
	}
	if !slices.Equal(cfg.Output.Formats, []string{"csv", "parquet"}) {
		t.Errorf("Output.Formats = %v, want [csv parquet]", cfg.Output.Formats)
	}
	if !cfg.Redis.Enabled() {
		t.Error("Redis should be enabled with an address")
	}
	if cfg.SummaryFile() != "/tmp/summary.json" {
		t.Errorf("SummaryFile() = %q, want /tmp/summary.json", cfg.SummaryFile())
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "callrail.yaml")
	if err := os.WriteFile(path, []byte(`
api:
  key: from-file
  max_records: 200
batch:
  default_size: 20
output:
  data_dir: file-dir
  formats: [parquet]
`), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CALLRAIL_API_KEY", "from-env")
	t.Setenv("CALLRAIL_MAX_RECORDS", "300")

	cfg, err := Load(path, map[string]any{
		"output.data_dir": "flag-dir",
		"api.account_id":  nil,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name      string
		got, want any
	}{
		{"env beats file", cfg.API.Key, "from-env"},
		{"env beats file for numbers", cfg.API.MaxRecords, 300},
		{"file beats defaults", cfg.Batch.DefaultSize, 20},
		{"overrides beat file", cfg.Output.DataDir, "flag-dir"},
		{"nil overrides are ignored", cfg.API.AccountID, ""},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if !slices.Equal(cfg.Output.Formats, []string{"parquet"}) {
		t.Errorf("Output.Formats = %v, want [parquet]", cfg.Output.Formats)
	}

	cfg, err = Load(path, map[string]any{"api.key": "from-flag"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Key != "from-flag" {
		t.Errorf("API.Key = %q, want from-flag (overrides beat env)", cfg.API.Key)
	}
}

func TestLoad_ConfigFileFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yml")
	if err := os.WriteFile(path, []byte("api:\n  key: env-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(PathEnvVar, path)
	t.Setenv("CALLRAIL_API_KEY", "")
	if err := os.Unsetenv("CALLRAIL_API_KEY"); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Key != "env-file" {
		t.Errorf("API.Key = %q, want env-file", cfg.API.Key)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want os.ErrNotExist", err)
	}
}

func TestLoad_MissingAPIKey(t *testing.T) {
	t.Setenv("CALLRAIL_API_KEY", "")

	_, err := Load("", nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if !verr.Has("api.key") {
		t.Errorf("%v should report api.key", verr)
	}
	if !strings.Contains(err.Error(), "api.key is required") {
		t.Errorf("error = %q, want api.key is required", err.Error())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"bad base url", func(c *Config) { c.API.BaseURL = "not a url" }, "api.base_url"},
		{"zero timeout", func(c *Config) { c.API.TimeoutSeconds = 0 }, "api.timeout_seconds"},
		{"unknown format", func(c *Config) { c.Output.Formats = []string{"xlsx"} }, "output.formats"},
		{"no formats", func(c *Config) { c.Output.Formats = nil }, "output.formats"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"default above max", func(c *Config) { c.Batch.DefaultSize = 2000 }, "batch.default_size"},
		{"default below min", func(c *Config) { c.Batch.DefaultSize = 5 }, "batch.default_size"},
		{"max delay below base", func(c *Config) { c.Retry.MaxDelay = time.Millisecond }, "retry.max_delay"},
		{"upload without bucket", func(c *Config) { c.Upload.Endpoint = "localhost:9000" }, "upload.bucket"},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.API.Key = "secret"
			tt.mutate(cfg)

			err := cfg.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if !verr.Has(tt.key) {
				t.Errorf("expected %s in %v", tt.key, verr)
			}
		})
	}

	t.Run("valid", func(t *testing.T) {
		cfg := Default()
		cfg.API.Key = "secret"
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})
}

func TestEnvTransform(t *testing.T) {
	tests := map[string]string{
		"CALLRAIL_API_KEY":             "api.key",
		"CALLRAIL_API_TIMEOUT":         "api.timeout_seconds",
		"CALLRAIL_BATCH_SIZE":          "batch.default_size",
		"CALLRAIL_BATCH_MAX_SIZE":      "batch.max_size",
		"CALLRAIL_REDIS_CACHE_TTL":     "redis.cache_ttl",
		"CALLRAIL_UPLOAD_REGION":       "upload.region",
		"CALLRAIL_OUTPUT_METRICS_FILE": "output.metrics_file",
		"CALLRAIL_CONFIG":              "",
		"CALLRAIL_SOMETHING":           "",
		"CALLRAIL_NOPE_KEY":            "",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			if got := envTransform(in); got != want {
				t.Errorf("envTransform(%q) = %q, want %q", in, got, want)
			}
		})
	}
}
