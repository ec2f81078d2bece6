package client

import (
	"os"

	"github.com/spf13/cobra"
)

// Environment variables read for flag defaults.
const (
	EnvServer    = "RUNQ_SERVER"
	EnvGRPC      = "RUNQ_GRPC"
	EnvTransport = "RUNQ_TRANSPORT"
	EnvSecret    = "RUNQ_AUTH_SECRET"
)

// NewRoot constructs the root Cobra command for the runq client.
// It registers the tasks, runners and runner command groups.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "runq",
		Short:         "runq task queue client",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	pf := root.PersistentFlags()
	pf.String("server", envOr(EnvServer, "http://127.0.0.1:8080"), "HTTP base URL of the server")
	pf.String("grpc", envOr(EnvGRPC, "127.0.0.1:9090"), "gRPC address of the server")
	pf.String("transport", envOr(EnvTransport, "http"), "Transport: http|grpc")
	pf.String("secret", os.Getenv(EnvSecret), "Shared HMAC secret used to sign requests")

	root.AddCommand(NewTasksCommand())
	root.AddCommand(NewRunnersCommand())
	root.AddCommand(NewRunnerCommand())
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
