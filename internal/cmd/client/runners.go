package client

import (
	"context"

	apiv1 "github.com/rzbill/runq/api/v1"
	"github.com/rzbill/runq/internal/client"
	"github.com/spf13/cobra"
)

// NewRunnersCommand constructs the `runners` command group.
func NewRunnersCommand() *cobra.Command {
	runnersCmd := &cobra.Command{
		Use:   "runners",
		Short: "Inspect and register runners",
	}
	runnersCmd.AddCommand(newRunnersListCommand(), newRunnersRegisterCommand())
	return runnersCmd
}

// newRunnersListCommand constructs the `runners list` subcommand.
func newRunnersListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known runners and whether they are alive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTransport(cmd, func(ctx context.Context, tr client.Transport) error {
				resp, err := tr.ListRunners(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, resp)
			})
		},
	}
}

// newRunnersRegisterCommand constructs the `runners register` subcommand.
func newRunnersRegisterCommand() *cobra.Command {
	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Register a runner with labels and metadata",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := apiv1.RegisterRunnerRequest{}
			req.RunnerID, _ = cmd.Flags().GetString("runner-id")
			req.Labels, _ = cmd.Flags().GetStringArray("label")
			meta, _ := cmd.Flags().GetStringArray("meta")
			m, err := parseKV("meta", meta)
			if err != nil {
				return err
			}
			req.Metadata = m
			return withTransport(cmd, func(ctx context.Context, tr client.Transport) error {
				resp, err := tr.RegisterRunner(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd, resp)
			})
		},
	}
	registerCmd.Flags().String("runner-id", "", "Runner id")
	registerCmd.Flags().StringArray("label", nil, "Runner label (repeat)")
	registerCmd.Flags().StringArray("meta", nil, "Metadata key=value (repeat)")
	return registerCmd
}
