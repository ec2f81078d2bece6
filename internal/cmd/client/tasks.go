package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	apiv1 "github.com/rzbill/runq/api/v1"
	"github.com/rzbill/runq/internal/client"
	"github.com/spf13/cobra"
)

// NewTasksCommand constructs the `tasks` command group.
func NewTasksCommand() *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Submit, lease and report tasks",
		Long: `Task operations against the queue.

Lifecycle:
  pending → [lease] → leased → [result succeeded] → succeeded
                        ↓ (failed, retries left or lease expired)
                      pending
                        ↓ (failed, retries exhausted)
                      dead-letter`,
	}
	tasksCmd.AddCommand(
		newTasksSubmitCommand(),
		newTasksLeaseCommand(),
		newTasksHeartbeatCommand(),
		newTasksResultCommand(),
		newTasksStatsCommand(),
		newTasksEventsCommand(),
	)
	return tasksCmd
}

// newTasksSubmitCommand constructs the `tasks submit` subcommand.
func newTasksSubmitCommand() *cobra.Command {
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a task, or a batch with --file",
		Example: `  runq tasks submit --type email --payload '{"to":"a@example.com"}'
  runq tasks submit --type build --runner-id ci-1 --max-retries 5
  runq tasks submit --file tasks.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			batch, err := submitInput(cmd)
			if err != nil {
				return err
			}
			return withTransport(cmd, func(ctx context.Context, tr client.Transport) error {
				resp, err := tr.Submit(ctx, batch)
				if err != nil {
					return err
				}
				return printJSON(cmd, resp)
			})
		},
	}
	f := submitCmd.Flags()
	f.String("type", "", "Task type")
	f.String("payload", "", "JSON payload (inline, @file, or @- for stdin)")
	f.Int("priority", 0, "Priority (stored; ordering is FIFO)")
	f.Int("max-retries", -1, "Failures allowed before dead-letter (default: server default)")
	f.String("runner-id", "", "Only this runner may lease the task")
	f.StringArray("label", nil, "Runner must carry one of these labels (repeat)")
	f.String("expr", "", "CEL expression over runner_id and labels")
	f.String("shard-key", "", "Opaque shard key")
	f.String("file", "", "JSON file with a task object or array; overrides the other flags")
	return submitCmd
}

func submitInput(cmd *cobra.Command) ([]apiv1.TaskInput, error) {
	if file, _ := cmd.Flags().GetString("file"); file != "" {
		raw, err := readJSONArg(cmd, "file", "@"+file)
		if err != nil {
			return nil, err
		}
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var batch []apiv1.TaskInput
			if err := json.Unmarshal(trimmed, &batch); err != nil {
				return nil, fmt.Errorf("decode --file: %w", err)
			}
			return batch, nil
		}
		var one apiv1.TaskInput
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, fmt.Errorf("decode --file: %w", err)
		}
		return []apiv1.TaskInput{one}, nil
	}

	typ, _ := cmd.Flags().GetString("type")
	if typ == "" {
		return nil, fmt.Errorf("--type is required")
	}
	payloadArg, _ := cmd.Flags().GetString("payload")
	payload, err := readJSONArg(cmd, "payload", payloadArg)
	if err != nil {
		return nil, err
	}
	in := apiv1.TaskInput{Type: typ, Payload: payload}
	in.Priority, _ = cmd.Flags().GetInt("priority")
	in.ShardKey, _ = cmd.Flags().GetString("shard-key")
	if mr, _ := cmd.Flags().GetInt("max-retries"); mr >= 0 {
		in.MaxRetries = &mr
	}
	runnerID, _ := cmd.Flags().GetString("runner-id")
	labels, _ := cmd.Flags().GetStringArray("label")
	expr, _ := cmd.Flags().GetString("expr")
	if runnerID != "" || len(labels) > 0 || expr != "" {
		in.Selector = &apiv1.Selector{RunnerID: runnerID, Labels: labels, Expr: expr}
	}
	return []apiv1.TaskInput{in}, nil
}

// newTasksLeaseCommand constructs the `tasks lease` subcommand.
func newTasksLeaseCommand() *cobra.Command {
	leaseCmd := &cobra.Command{
		Use:   "lease",
		Short: "Lease pending tasks as a runner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := apiv1.LeaseRequest{}
			req.RunnerID, _ = cmd.Flags().GetString("runner-id")
			req.Max, _ = cmd.Flags().GetInt("max")
			req.LeaseMs, _ = cmd.Flags().GetInt64("lease-ms")
			req.Labels, _ = cmd.Flags().GetStringArray("label")
			return withTransport(cmd, func(ctx context.Context, tr client.Transport) error {
				resp, err := tr.Lease(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd, resp)
			})
		},
	}
	leaseCmd.Flags().String("runner-id", "", "Runner id")
	leaseCmd.Flags().Int("max", 1, "Maximum tasks to lease")
	leaseCmd.Flags().Int64("lease-ms", 0, "Lease duration in ms (default: server default)")
	leaseCmd.Flags().StringArray("label", nil, "Runner label (repeat)")
	return leaseCmd
}

// newTasksHeartbeatCommand constructs the `tasks heartbeat` subcommand.
func newTasksHeartbeatCommand() *cobra.Command {
	hbCmd := &cobra.Command{
		Use:   "heartbeat",
		Short: "Extend a lease",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := apiv1.HeartbeatRequest{}
			req.RunnerID, _ = cmd.Flags().GetString("runner-id")
			req.LeaseID, _ = cmd.Flags().GetString("lease-id")
			req.ExtendMs, _ = cmd.Flags().GetInt64("extend-ms")
			return withTransport(cmd, func(ctx context.Context, tr client.Transport) error {
				resp, err := tr.Heartbeat(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd, resp)
			})
		},
	}
	hbCmd.Flags().String("runner-id", "", "Runner id")
	hbCmd.Flags().String("lease-id", "", "Lease id")
	hbCmd.Flags().Int64("extend-ms", 0, "New lease length from now in ms (default: server default)")
	return hbCmd
}

// newTasksResultCommand constructs the `tasks result` subcommand.
func newTasksResultCommand() *cobra.Command {
	resultCmd := &cobra.Command{
		Use:   "result",
		Short: "Report the outcome of a leased task",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := apiv1.ResultRequest{}
			req.RunnerID, _ = cmd.Flags().GetString("runner-id")
			req.LeaseID, _ = cmd.Flags().GetString("lease-id")
			req.TaskID, _ = cmd.Flags().GetString("task-id")
			req.Status, _ = cmd.Flags().GetString("status")
			req.Error, _ = cmd.Flags().GetString("error")
			resultArg, _ := cmd.Flags().GetString("result")
			res, err := readJSONArg(cmd, "result", resultArg)
			if err != nil {
				return err
			}
			req.Result = res
			return withTransport(cmd, func(ctx context.Context, tr client.Transport) error {
				if err := tr.Result(ctx, req); err != nil {
					return err
				}
				return printJSON(cmd, apiv1.OKResponse{OK: true})
			})
		},
	}
	resultCmd.Flags().String("runner-id", "", "Runner id")
	resultCmd.Flags().String("lease-id", "", "Lease id")
	resultCmd.Flags().String("task-id", "", "Task id")
	resultCmd.Flags().String("status", apiv1.StatusSucceeded, "succeeded|failed")
	resultCmd.Flags().String("result", "", "JSON result (inline, @file, or @- for stdin)")
	resultCmd.Flags().String("error", "", "Error message for failed tasks")
	return resultCmd
}

// newTasksStatsCommand constructs the `tasks stats` subcommand.
func newTasksStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task counts per state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTransport(cmd, func(ctx context.Context, tr client.Transport) error {
				resp, err := tr.Stats(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, resp)
			})
		},
	}
}

// newTasksEventsCommand constructs the `tasks events` subcommand.
func newTasksEventsCommand() *cobra.Command {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Read the task event journal",
		Long: `Page through the task event journal.

Without --follow one page is printed as JSON. With --follow every event is
printed as one JSON line and the command long-polls for new ones until
interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := apiv1.EventsRequest{}
			req.Cursor, _ = cmd.Flags().GetUint64("cursor")
			req.Limit, _ = cmd.Flags().GetInt("limit")
			req.TaskID, _ = cmd.Flags().GetString("task-id")
			req.Reverse, _ = cmd.Flags().GetBool("reverse")
			req.WaitMs, _ = cmd.Flags().GetInt64("wait-ms")
			follow, _ := cmd.Flags().GetBool("follow")
			if follow && req.Reverse {
				return fmt.Errorf("--follow cannot be combined with --reverse")
			}
			return withTransport(cmd, func(ctx context.Context, tr client.Transport) error {
				if !follow {
					resp, err := tr.Events(ctx, req)
					if err != nil {
						return err
					}
					return printJSON(cmd, resp)
				}
				return followEvents(ctx, cmd, tr, req)
			})
		},
	}
	eventsCmd.Flags().Uint64("cursor", 0, "Start after this sequence (before it with --reverse)")
	eventsCmd.Flags().Int("limit", 0, "Maximum events per page (default: server default)")
	eventsCmd.Flags().String("task-id", "", "Only events for this task")
	eventsCmd.Flags().Bool("reverse", false, "Newest first")
	eventsCmd.Flags().Int64("wait-ms", 0, "Long-poll for up to this many ms when nothing is new")
	eventsCmd.Flags().Bool("follow", false, "Keep printing new events until interrupted")
	return eventsCmd
}

func followEvents(ctx context.Context, cmd *cobra.Command, tr client.Transport, req apiv1.EventsRequest) error {
	if req.WaitMs <= 0 {
		req.WaitMs = 20000
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for {
		resp, err := tr.Events(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, e := range resp.Events {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		req.Cursor = resp.Next
	}
}
