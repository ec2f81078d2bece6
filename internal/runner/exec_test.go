package runner

import (
	"context"
	"encoding/json"
	"runtime"
	"strings"
	"testing"

	apiv1 "github.com/rzbill/runq/api/v1"
)

func TestShellExecutor(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	ctx := context.Background()
	task := apiv1.Task{ID: "7", Type: "echo", Payload: json.RawMessage(`{"n":1}`)}

	out, err := (&ShellExecutor{Command: "cat"}).Execute(ctx, task)
	if err != nil || string(out) != `{"n":1}` {
		t.Fatalf("cat: %s %v", out, err)
	}

	out, err = (&ShellExecutor{Command: `echo "id=$RUNQ_TASK_ID"`}).Execute(ctx, task)
	if err != nil || string(out) != `"id=7\n"` {
		t.Fatalf("env: %s %v", out, err)
	}

	out, err = (&ShellExecutor{Command: "true"}).Execute(ctx, task)
	if err != nil || out != nil {
		t.Fatalf("empty output: %s %v", out, err)
	}

	_, err = (&ShellExecutor{Command: "echo nope >&2; exit 3"}).Execute(ctx, task)
	if err == nil || !strings.Contains(err.Error(), "nope") || !strings.Contains(err.Error(), "exit status 3") {
		t.Fatalf("failure: %v", err)
	}
}
