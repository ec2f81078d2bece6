package tasks

import (
	"bytes"
	"encoding/json"

	apiv1 "github.com/rzbill/runq/api/v1"
)

// DecodeSubmit accepts either a single task object or an array of them.
func DecodeSubmit(body []byte) ([]apiv1.TaskInput, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, invalid("empty body")
	}
	if trimmed[0] == '[' {
		var in []apiv1.TaskInput
		if err := json.Unmarshal(trimmed, &in); err != nil {
			return nil, invalid("decode tasks: %v", err)
		}
		return in, nil
	}
	var one apiv1.TaskInput
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, invalid("decode task: %v", err)
	}
	return []apiv1.TaskInput{one}, nil
}

// Decode unmarshals a JSON request body into v. An empty body leaves v zero.
func Decode(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return invalid("decode request: %v", err)
	}
	return nil
}
