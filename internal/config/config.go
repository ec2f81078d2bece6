package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	pebblestore "github.com/rzbill/runq/internal/storage/pebble"
	"github.com/rzbill/runq/internal/telemetry"
	logpkg "github.com/rzbill/runq/pkg/log"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	HTTPAddr        string           `json:"httpAddr" yaml:"httpAddr"`
	GRPCAddr        string           `json:"grpcAddr" yaml:"grpcAddr"`
	DataDir         string           `json:"dataDir" yaml:"dataDir"`
	Fsync           string           `json:"fsync" yaml:"fsync"`
	FsyncIntervalMs int              `json:"fsyncIntervalMs" yaml:"fsyncIntervalMs"`
	Auth            AuthConfig       `json:"auth" yaml:"auth"`
	Queue           QueueConfig      `json:"queue" yaml:"queue"`
	Registry        RegistryConfig   `json:"registry" yaml:"registry"`
	Events          EventsConfig     `json:"events" yaml:"events"`
	Log             logpkg.Config    `json:"log" yaml:"log"`
	Tracing         telemetry.Config `json:"tracing" yaml:"tracing"`
}

// AuthConfig controls the HMAC request gateway.
type AuthConfig struct {
	// Secret is the shared HMAC key. Required unless Disabled is set.
	Secret    string `json:"secret" yaml:"secret"`
	MaxSkewMs int64  `json:"maxSkewMs" yaml:"maxSkewMs"`
	// Disabled turns off signature checks. Local development only.
	Disabled bool `json:"disabled" yaml:"disabled"`
}

// QueueConfig holds task queue defaults.
type QueueConfig struct {
	DefaultLeaseMs    int64 `json:"defaultLeaseMs" yaml:"defaultLeaseMs"`
	DefaultMaxRetries int   `json:"defaultMaxRetries" yaml:"defaultMaxRetries"`
	MaxLeaseBatch     int   `json:"maxLeaseBatch" yaml:"maxLeaseBatch"`
	EmptyBackoffMs    int64 `json:"emptyBackoffMs" yaml:"emptyBackoffMs"`
	LeasedBackoffMs   int64 `json:"leasedBackoffMs" yaml:"leasedBackoffMs"`
}

// RegistryConfig controls runner liveness tracking.
type RegistryConfig struct {
	RunnerTTLMs int64 `json:"runnerTtlMs" yaml:"runnerTtlMs"`
}

// EventsConfig controls the task event journal.
type EventsConfig struct {
	Disabled bool `json:"disabled" yaml:"disabled"`
	// RetentionMs drops events older than this. Zero keeps them by age.
	RetentionMs int64 `json:"retentionMs" yaml:"retentionMs"`
	// MaxBytes caps the journal size. Zero means unbounded.
	MaxBytes       int64 `json:"maxBytes" yaml:"maxBytes"`
	TrimIntervalMs int64 `json:"trimIntervalMs" yaml:"trimIntervalMs"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr:        ":8080",
		GRPCAddr:        ":9090",
		DataDir:         DefaultDataDir(),
		Fsync:           "interval",
		FsyncIntervalMs: 5,
		Auth: AuthConfig{
			MaxSkewMs: int64(5 * time.Minute / time.Millisecond),
		},
		Queue: QueueConfig{
			DefaultLeaseMs:    60000,
			DefaultMaxRetries: 3,
			MaxLeaseBatch:     100,
			EmptyBackoffMs:    30000,
			LeasedBackoffMs:   5000,
		},
		Registry: RegistryConfig{
			RunnerTTLMs: int64(2 * time.Minute / time.Millisecond),
		},
		Events: EventsConfig{
			RetentionMs:    int64(7 * 24 * time.Hour / time.Millisecond),
			TrimIntervalMs: int64(time.Minute / time.Millisecond),
		},
		Log: logpkg.Config{
			Level:  "info",
			Format: "text",
		},
		Tracing: telemetry.Config{
			ServiceName: "runq",
			SampleRatio: 0.1,
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate reports the first setting that would prevent the server from starting.
func (c Config) Validate() error {
	if c.HTTPAddr == "" && c.GRPCAddr == "" {
		return errors.New("config: at least one of httpAddr or grpcAddr is required")
	}
	if c.DataDir == "" {
		return errors.New("config: dataDir is required")
	}
	if _, err := pebblestore.ParseFsyncMode(c.Fsync); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if !c.Auth.Disabled && c.Auth.Secret == "" {
		return errors.New("config: auth.secret is required (set RUNQ_AUTH_SECRET or auth.disabled)")
	}
	if c.Auth.MaxSkewMs <= 0 {
		return errors.New("config: auth.maxSkewMs must be positive")
	}
	q := c.Queue
	if q.DefaultLeaseMs <= 0 {
		return errors.New("config: queue.defaultLeaseMs must be positive")
	}
	if q.DefaultMaxRetries <= 0 {
		return errors.New("config: queue.defaultMaxRetries must be positive")
	}
	if q.MaxLeaseBatch <= 0 {
		return errors.New("config: queue.maxLeaseBatch must be positive")
	}
	if q.EmptyBackoffMs < 0 || q.LeasedBackoffMs < 0 {
		return errors.New("config: queue backoff hints must not be negative")
	}
	if c.Registry.RunnerTTLMs <= 0 {
		return errors.New("config: registry.runnerTtlMs must be positive")
	}
	if e := c.Events; e.RetentionMs < 0 || e.MaxBytes < 0 || e.TrimIntervalMs < 0 {
		return errors.New("config: events limits must not be negative")
	}
	return nil
}
