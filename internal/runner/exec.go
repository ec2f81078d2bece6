package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	apiv1 "github.com/rzbill/runq/api/v1"
)

// maxStderrInError bounds how much stderr is copied into a failure report.
const maxStderrInError = 2048

// ShellExecutor runs Command through the shell once per task. The task
// payload is written to stdin and stdout becomes the result: verbatim when it
// is JSON, as a JSON string otherwise. A non-zero exit fails the task.
type ShellExecutor struct {
	Command string
	// Shell defaults to /bin/sh -c.
	Shell []string
	// Env is appended to the process environment.
	Env []string
}

// Execute implements Executor.
func (e *ShellExecutor) Execute(ctx context.Context, task apiv1.Task) (json.RawMessage, error) {
	shell := e.Shell
	if len(shell) == 0 {
		shell = []string{"/bin/sh", "-c"}
	}
	args := append(append([]string{}, shell[1:]...), e.Command)
	cmd := exec.CommandContext(ctx, shell[0], args...)
	cmd.Env = append(os.Environ(), e.Env...)
	cmd.Env = append(cmd.Env,
		"RUNQ_TASK_ID="+task.ID,
		"RUNQ_TASK_TYPE="+task.Type,
		"RUNQ_LEASE_ID="+task.LeaseID,
		fmt.Sprintf("RUNQ_TASK_RETRIES=%d", task.Retries),
	)
	cmd.Stdin = bytes.NewReader(task.Payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderrInError {
			msg = msg[len(msg)-maxStderrInError:]
		}
		if msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return toResult(stdout.Bytes())
}

func toResult(out []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed), nil
	}
	b, err := json.Marshal(string(out))
	if err != nil {
		return nil, err
	}
	return b, nil
}
