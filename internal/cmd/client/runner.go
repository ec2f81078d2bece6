package client

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rzbill/runq/internal/runner"
	logpkg "github.com/rzbill/runq/pkg/log"
	"github.com/spf13/cobra"
)

// NewRunnerCommand constructs the `runner` command group.
func NewRunnerCommand() *cobra.Command {
	runnerCmd := &cobra.Command{
		Use:   "runner",
		Short: "Run a worker that leases and executes tasks",
	}
	runnerCmd.AddCommand(newRunnerRunCommand())
	return runnerCmd
}

// newRunnerRunCommand constructs the `runner run` subcommand.
func newRunnerRunCommand() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Lease tasks and run --exec for each one until interrupted",
		Long: `Registers the runner, then leases tasks in a loop. Each task runs --exec
through /bin/sh -c with the payload on stdin and RUNQ_TASK_ID, RUNQ_TASK_TYPE,
RUNQ_LEASE_ID and RUNQ_TASK_RETRIES in the environment. Stdout becomes the
result; a non-zero exit reports the task as failed.`,
		Example: `  runq runner run --runner-id w1 --label gpu --exec 'jq .n'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			command, _ := cmd.Flags().GetString("exec")
			if command == "" {
				return fmt.Errorf("--exec is required")
			}
			opts := runner.Options{}
			opts.RunnerID, _ = cmd.Flags().GetString("runner-id")
			if opts.RunnerID == "" {
				opts.RunnerID = defaultRunnerID()
			}
			opts.Labels, _ = cmd.Flags().GetStringArray("label")
			meta, _ := cmd.Flags().GetStringArray("meta")
			m, err := parseKV("meta", meta)
			if err != nil {
				return err
			}
			opts.Metadata = m
			opts.Max, _ = cmd.Flags().GetInt("max")
			opts.LeaseMs, _ = cmd.Flags().GetInt64("lease-ms")
			opts.MaxBackoff, _ = cmd.Flags().GetDuration("max-backoff")

			level, _ := cmd.Flags().GetString("log-level")
			format, _ := cmd.Flags().GetString("log-format")
			logger, err := logpkg.ApplyConfig(&logpkg.Config{Level: level, Format: format})
			if err != nil {
				return err
			}
			opts.Logger = logger

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			tr, err := openTransport(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			r, err := runner.New(tr, &runner.ShellExecutor{Command: command}, opts)
			if err != nil {
				return err
			}
			return r.Run(ctx)
		},
	}
	f := runCmd.Flags()
	f.String("exec", "", "Shell command executed per task")
	f.String("runner-id", "", "Runner id (default hostname-pid)")
	f.StringArray("label", nil, "Runner label (repeat)")
	f.StringArray("meta", nil, "Metadata key=value (repeat)")
	f.Int("max", runner.DefaultMax, "Tasks leased per call, run concurrently")
	f.Int64("lease-ms", runner.DefaultLeaseMs, "Lease duration in ms")
	f.Duration("max-backoff", runner.DefaultMaxBackoff, "Cap on the idle wait between lease calls")
	f.String("log-level", "info", "Log level: debug|info|warn|error")
	f.String("log-format", "text", "Log format: text|json")
	return runCmd
}

func defaultRunnerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "runner"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
