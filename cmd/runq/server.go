package main

import (
	"fmt"
	"time"

	serverrun "github.com/rzbill/runq/internal/cmd/server"
	cfgpkg "github.com/rzbill/runq/internal/config"
	"github.com/spf13/cobra"
)

func newServerCommand() *cobra.Command {
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the runq server (gRPC and HTTP)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := serverConfig(cmd)
			if err != nil {
				return err
			}
			if err := serverrun.Run(cmd.Context(), serverrun.Options{Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	f := serverStartCmd.Flags()
	f.String("config", "", "Config file (.json, .yaml or .yml)")
	f.String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	f.String("http-addr", "", "HTTP listen address (default :8080)")
	f.String("grpc-addr", "", "gRPC listen address (default :9090)")
	f.String("fsync", "", "Fsync mode: always|interval|never (default interval)")
	f.Int("fsync-interval-ms", 0, "When --fsync=interval, group-commit window in ms (default 5)")
	f.String("log-level", "", "Log level: debug|info|warn|error")
	f.String("log-format", "", "Log format: text|json (default text)")
	f.String("log-file", "", "Also write logs to this rotating file")
	f.Bool("auth-disabled", false, "Accept unsigned requests (local development only)")
	f.String("otel-endpoint", "", "OTLP/HTTP endpoint for trace export")
	serverCmd.AddCommand(serverStartCmd)
	return serverCmd
}

// serverConfig merges defaults, the config file, RUNQ_* variables and flags,
// in increasing precedence.
func serverConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfg, err
	}
	cfgpkg.FromEnv(&cfg)

	f := cmd.Flags()
	if f.Changed("data-dir") {
		cfg.DataDir, _ = f.GetString("data-dir")
	}
	if f.Changed("http-addr") {
		cfg.HTTPAddr, _ = f.GetString("http-addr")
	}
	if f.Changed("grpc-addr") {
		cfg.GRPCAddr, _ = f.GetString("grpc-addr")
	}
	if f.Changed("fsync") {
		cfg.Fsync, _ = f.GetString("fsync")
	}
	if f.Changed("fsync-interval-ms") {
		cfg.FsyncIntervalMs, _ = f.GetInt("fsync-interval-ms")
	}
	if f.Changed("log-level") {
		cfg.Log.Level, _ = f.GetString("log-level")
	}
	if f.Changed("log-format") {
		cfg.Log.Format, _ = f.GetString("log-format")
	}
	if f.Changed("log-file") {
		cfg.Log.File, _ = f.GetString("log-file")
	}
	// --secret is the root flag shared with the client commands.
	if f.Changed("secret") {
		cfg.Auth.Secret, _ = f.GetString("secret")
	}
	if f.Changed("auth-disabled") {
		cfg.Auth.Disabled, _ = f.GetBool("auth-disabled")
	}
	if f.Changed("otel-endpoint") {
		cfg.Tracing.Endpoint, _ = f.GetString("otel-endpoint")
	}
	return cfg, nil
}
