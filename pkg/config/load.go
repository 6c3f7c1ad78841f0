package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar overrides the config file location.
const PathEnvVar = "CALLRAIL_CONFIG"

// EnvPrefix is the prefix of every environment variable read.
const EnvPrefix = "CALLRAIL_"

// DefaultPaths are searched in order when no file is given.
var DefaultPaths = []string{
	"callrail.yaml",
	"callrail.yml",
}

// envMappings maps environment variables whose name does not follow the
// CALLRAIL_<SECTION>_<KEY> scheme, or whose key is ambiguous, to config keys.
var envMappings = map[string]string{
	"callrail_api_key":              "api.key",
	"callrail_api_base_url":         "api.base_url",
	"callrail_api_timeout":          "api.timeout_seconds",
	"callrail_max_records":          "api.max_records",
	"callrail_account_id":           "api.account_id",
	"callrail_rate_limit_per_hour":  "api.rate_limit_per_hour",
	"callrail_rate_limit_per_day":   "api.rate_limit_per_day",
	"callrail_requests_per_second":  "api.requests_per_second",
	"callrail_batch_size":           "batch.default_size",
	"callrail_max_retries":          "retry.max_attempts",
	"callrail_log_level":            "log.level",
	"callrail_log_pretty":           "log.pretty",
	"callrail_log_file":             "log.file",
	"callrail_data_dir":             "output.data_dir",
	"callrail_output_formats":       "output.formats",
	"callrail_redis_addr":           "redis.addr",
	"callrail_breaker_enabled":      "breaker.enabled",
	"callrail_upload_endpoint":      "upload.endpoint",
	"callrail_upload_bucket":        "upload.bucket",
	"callrail_upload_access_key":    "upload.access_key",
	"callrail_upload_secret_key":    "upload.secret_key",
	"callrail_upload_prefix":        "upload.prefix",
	"callrail_upload_use_ssl":       "upload.use_ssl",
	"callrail_retry_base_delay":     "retry.base_delay",
	"callrail_retry_max_delay":      "retry.max_delay",
	"callrail_retry_multiplier":     "retry.multiplier",
	"callrail_retry_jitter":         "retry.jitter",
	"callrail_breaker_open_timeout": "breaker.open_timeout",
}

// sections are the top-level keys reachable through CALLRAIL_<SECTION>_<KEY>.
var sections = map[string]bool{
	"api": true, "batch": true, "retry": true, "log": true, "output": true,
	"redis": true, "upload": true, "breaker": true,
}

// sliceKeys are parsed from comma separated strings.
var sliceKeys = []string{"output.formats"}

// Load builds the configuration. path may be empty, in which case
// CALLRAIL_CONFIG and DefaultPaths are tried. overrides, keyed by dotted
// config key, take precedence over every other source; nil values are
// ignored. The result is validated.
func Load(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath, err := findConfigFile(path)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	for key, val := range overrides {
		if val == nil {
			continue
		}
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	if err := splitSlices(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// findConfigFile returns the file to load, or "" when none exists. An
// explicitly requested file must exist.
func findConfigFile(path string) (string, error) {
	if path == "" {
		path = os.Getenv(PathEnvVar)
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file %s: %w", path, err)
		}
		return path, nil
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("config file %s: %w", p, err)
		}
	}
	return "", nil
}

// envTransform maps CALLRAIL_* variables to config keys. Variables that map
// to no known section are dropped.
func envTransform(name string) string {
	key := strings.ToLower(name)
	if key == strings.ToLower(PathEnvVar) {
		return ""
	}
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	section, rest, ok := strings.Cut(strings.TrimPrefix(key, "callrail_"), "_")
	if !ok || rest == "" || !sections[section] {
		return ""
	}
	return section + "." + rest
}

// splitSlices turns comma separated strings into lists for slice keys.
func splitSlices(k *koanf.Koanf) error {
	for _, key := range sliceKeys {
		s, ok := k.Get(key).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(key, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}
