package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rzbill/runq/internal/client"
	"github.com/spf13/cobra"
)

// openTransport builds the transport selected by the persistent flags.
func openTransport(ctx context.Context, cmd *cobra.Command) (client.Transport, error) {
	kind, _ := cmd.Flags().GetString("transport")
	secret, _ := cmd.Flags().GetString("secret")
	switch strings.ToLower(kind) {
	case "", "http":
		server, _ := cmd.Flags().GetString("server")
		return client.NewHTTPTransport(server, secret, nil), nil
	case "grpc":
		addr, _ := cmd.Flags().GetString("grpc")
		return client.DialGRPC(ctx, addr, secret)
	default:
		return nil, fmt.Errorf("invalid --transport %q; use http|grpc", kind)
	}
}

// withTransport opens a transport for the duration of fn.
func withTransport(cmd *cobra.Command, fn func(context.Context, client.Transport) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	tr, err := openTransport(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = tr.Close() }()
	return fn(ctx, tr)
}

// printJSON writes v as indented JSON to the command's output.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readJSONArg returns the JSON given inline, or read from a file when the
// value starts with @ ("-" reads stdin). The result must be valid JSON.
func readJSONArg(cmd *cobra.Command, flag, value string) (json.RawMessage, error) {
	if value == "" {
		return nil, nil
	}
	var raw []byte
	switch {
	case value == "@-":
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read --%s from stdin: %w", flag, err)
		}
		raw = b
	case strings.HasPrefix(value, "@"):
		b, err := os.ReadFile(value[1:])
		if err != nil {
			return nil, fmt.Errorf("read --%s: %w", flag, err)
		}
		raw = b
	default:
		raw = []byte(value)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("invalid --%s: not valid JSON", flag)
	}
	return json.RawMessage(raw), nil
}

// parseKV parses repeated key=value flags into a map.
func parseKV(flag string, pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
			return nil, fmt.Errorf("invalid --%s, expected key=value: %s", flag, kv)
		}
		out[strings.TrimSpace(parts[0])] = parts[1]
	}
	return out, nil
}
