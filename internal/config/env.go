package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays RUNQ_* environment variables onto cfg. Unparseable values
// are ignored.
func FromEnv(cfg *Config) {
	setString(&cfg.HTTPAddr, "RUNQ_HTTP_ADDR")
	setString(&cfg.GRPCAddr, "RUNQ_GRPC_ADDR")
	setString(&cfg.DataDir, "RUNQ_DATA_DIR")
	setString(&cfg.Fsync, "RUNQ_FSYNC")
	setInt(&cfg.FsyncIntervalMs, "RUNQ_FSYNC_INTERVAL_MS")

	setString(&cfg.Auth.Secret, "RUNQ_AUTH_SECRET")
	setInt64(&cfg.Auth.MaxSkewMs, "RUNQ_AUTH_MAX_SKEW_MS")
	if v := os.Getenv("RUNQ_AUTH_DISABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Auth.Disabled = b
		}
	}

	setInt64(&cfg.Queue.DefaultLeaseMs, "RUNQ_QUEUE_DEFAULT_LEASE_MS")
	setInt(&cfg.Queue.DefaultMaxRetries, "RUNQ_QUEUE_DEFAULT_MAX_RETRIES")
	setInt(&cfg.Queue.MaxLeaseBatch, "RUNQ_QUEUE_MAX_LEASE_BATCH")
	setInt64(&cfg.Queue.EmptyBackoffMs, "RUNQ_QUEUE_EMPTY_BACKOFF_MS")
	setInt64(&cfg.Queue.LeasedBackoffMs, "RUNQ_QUEUE_LEASED_BACKOFF_MS")

	setInt64(&cfg.Registry.RunnerTTLMs, "RUNQ_REGISTRY_RUNNER_TTL_MS")

	if v := os.Getenv("RUNQ_EVENTS_DISABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Events.Disabled = b
		}
	}
	setInt64(&cfg.Events.RetentionMs, "RUNQ_EVENTS_RETENTION_MS")
	setInt64(&cfg.Events.MaxBytes, "RUNQ_EVENTS_MAX_BYTES")
	setInt64(&cfg.Events.TrimIntervalMs, "RUNQ_EVENTS_TRIM_INTERVAL_MS")

	setString(&cfg.Tracing.Endpoint, "RUNQ_OTEL_ENDPOINT")
	setString(&cfg.Tracing.Environment, "RUNQ_OTEL_ENVIRONMENT")

	setString(&cfg.Log.Level, "RUNQ_LOG_LEVEL")
	setString(&cfg.Log.Format, "RUNQ_LOG_FORMAT")
	setString(&cfg.Log.File, "RUNQ_LOG_FILE")
	if v := os.Getenv("RUNQ_LOG_REDACT_KEYS"); v != "" {
		cfg.Log.RedactKeys = nil
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.Log.RedactKeys = append(cfg.Log.RedactKeys, p)
			}
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}
