// Package config loads the control plane's configuration in three
// layers: hardcoded defaults, an optional JSON file, then environment
// variable overrides — each layer applied on top of the last.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable of the control plane core and its
// external interface.
type Config struct {
	ControlPlaneBind string `json:"control_plane_bind"`
	ManagementBind   string `json:"management_bind"`

	RateLimitPerSecond int    `json:"rate_limit_per_second"`
	RateLimitBackend   string `json:"rate_limit_backend"` // "memory" or "redis"
	RedisAddr          string `json:"redis_addr"`

	DefaultQueueCapacity int `json:"default_queue_capacity"`
	SyncMaxConcurrency   int `json:"sync_max_concurrency"`

	ExecutionTTL        time.Duration `json:"execution_ttl"`
	ExecutionCleanupTTL time.Duration `json:"execution_cleanup_ttl"`
	ExecutionStaleTTL   time.Duration `json:"execution_stale_ttl"`
	JanitorInterval     time.Duration `json:"janitor_interval"`

	IdempotencyTTL time.Duration `json:"idempotency_ttl"`

	SchedulerPollInterval time.Duration `json:"scheduler_poll_interval"`

	LogLevel string `json:"log_level"`

	Tracing TracingConfig `json:"tracing"`
}

// TracingConfig controls the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled     bool    `json:"enabled"`
	Exporter    string  `json:"exporter"` // otlp-http, stdout
	Endpoint    string  `json:"endpoint"`
	ServiceName string  `json:"service_name"`
	SampleRate  float64 `json:"sample_rate"`
}

// DefaultConfig returns the hardcoded baseline every other layer
// overlays onto.
func DefaultConfig() *Config {
	return &Config{
		ControlPlaneBind:      ":8080",
		ManagementBind:        ":9090",
		RateLimitPerSecond:    1000,
		RateLimitBackend:      "memory",
		DefaultQueueCapacity:  100,
		SyncMaxConcurrency:    64,
		ExecutionTTL:          300 * time.Second,
		ExecutionCleanupTTL:   120 * time.Second,
		ExecutionStaleTTL:     600 * time.Second,
		JanitorInterval:       5 * time.Second,
		IdempotencyTTL:        300 * time.Second,
		SchedulerPollInterval: 200 * time.Millisecond,
		LogLevel:              "info",
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    "otlp-http",
			ServiceName: "nova-control-plane",
			SampleRate:  1.0,
		},
	}
}

// LoadFromFile overlays a JSON file's fields onto cfg. A missing file
// is not an error; callers check existence first if that matters.
func LoadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

// LoadFromEnv overlays environment variable values onto cfg, in the
// teacher's "if set, override" idiom: absent variables never zero out
// a value from an earlier layer.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("CONTROL_PLANE_BIND"); v != "" {
		cfg.ControlPlaneBind = v
	} else if v := os.Getenv("BIND_ADDR"); v != "" {
		cfg.ControlPlaneBind = v
	}
	if v := os.Getenv("MANAGEMENT_BIND"); v != "" {
		cfg.ManagementBind = v
	}
	if v := os.Getenv("NANOFAAS_RATE_MAX_PER_SECOND"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitPerSecond = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_BACKEND"); v != "" {
		cfg.RateLimitBackend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("NANOFAAS_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultQueueCapacity = n
		}
	}
	if v := os.Getenv("NANOFAAS_SYNC_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SyncMaxConcurrency = n
		}
	}
	if v := os.Getenv("NANOFAAS_EXECUTION_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ExecutionTTL = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("NANOFAAS_EXECUTION_CLEANUP_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ExecutionCleanupTTL = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("NANOFAAS_EXECUTION_STALE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ExecutionStaleTTL = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("NANOFAAS_IDEMPOTENCY_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.IdempotencyTTL = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Endpoint = v
	}
}
