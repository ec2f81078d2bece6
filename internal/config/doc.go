// Package config provides loading and environment overlay for runq server
// configuration. It exposes a Default() baseline, JSON or YAML file loading,
// and a RUNQ_* environment overlay.
//
// Example:
//
//	cfg, err := config.Load("/etc/runq.yaml")
//	if err != nil { /* handle */ }
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil { /* handle */ }
package config
