package main

import (
	"os"
	"path/filepath"
	"testing"

	clientcmd "github.com/rzbill/runq/internal/cmd/client"
	"github.com/spf13/cobra"
)

// parseStart parses args as `runq server start ...` without running it.
func parseStart(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	root := clientcmd.NewRoot()
	root.AddCommand(newServerCommand())
	cmd, rest, err := root.Find(append([]string{"server", "start"}, args...))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if err := cmd.ParseFlags(rest); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return cmd
}

func TestServerConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runq.yaml")
	body := "httpAddr: \":7000\"\ngrpcAddr: \":7001\"\nauth:\n  secret: from-file\nqueue:\n  defaultLeaseMs: 1000\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RUNQ_GRPC_ADDR", ":7101")
	t.Setenv("RUNQ_AUTH_SECRET", "")

	cmd := parseStart(t, "--config", path, "--http-addr", ":7200", "--secret", "from-flag", "--log-format", "json")
	cfg, err := serverConfig(cmd)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.HTTPAddr != ":7200" {
		t.Fatalf("flag should win: %q", cfg.HTTPAddr)
	}
	if cfg.GRPCAddr != ":7101" {
		t.Fatalf("env should beat file: %q", cfg.GRPCAddr)
	}
	if cfg.Auth.Secret != "from-flag" || cfg.Log.Format != "json" {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.Queue.DefaultLeaseMs != 1000 || cfg.Queue.DefaultMaxRetries != 3 {
		t.Fatalf("file over defaults: %+v", cfg.Queue)
	}
}

func TestServerConfigMissingFile(t *testing.T) {
	cmd := parseStart(t, "--config", filepath.Join(t.TempDir(), "nope.json"))
	if _, err := serverConfig(cmd); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
