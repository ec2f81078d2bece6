package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apiv1 "github.com/rzbill/runq/api/v1"
	"github.com/rzbill/runq/internal/auth"
)

// DefaultHTTPTimeout bounds a single HTTP call.
const DefaultHTTPTimeout = 30 * time.Second

// HTTPTransport implements Transport against the JSON gateway.
type HTTPTransport struct {
	baseURL string
	secret  string
	client  *http.Client
}

// NewHTTPTransport returns a transport for baseURL (for example
// http://127.0.0.1:8080). Requests are signed with secret unless it is empty.
// A nil client gets one with DefaultHTTPTimeout.
func NewHTTPTransport(baseURL, secret string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &HTTPTransport{baseURL: strings.TrimRight(baseURL, "/"), secret: secret, client: client}
}

func (t *HTTPTransport) Submit(ctx context.Context, tasks []apiv1.TaskInput) (apiv1.SubmitResponse, error) {
	var out apiv1.SubmitResponse
	err := t.do(ctx, http.MethodPost, "/tasks/submit", tasks, &out)
	return out, err
}

func (t *HTTPTransport) Lease(ctx context.Context, req apiv1.LeaseRequest) (apiv1.LeaseResponse, error) {
	var out apiv1.LeaseResponse
	err := t.do(ctx, http.MethodPost, "/tasks/lease", req, &out)
	return out, err
}

func (t *HTTPTransport) Heartbeat(ctx context.Context, req apiv1.HeartbeatRequest) (apiv1.HeartbeatResponse, error) {
	var out apiv1.HeartbeatResponse
	err := t.do(ctx, http.MethodPost, "/tasks/heartbeat", req, &out)
	return out, err
}

func (t *HTTPTransport) Result(ctx context.Context, req apiv1.ResultRequest) error {
	return t.do(ctx, http.MethodPost, "/tasks/result", req, nil)
}

func (t *HTTPTransport) Stats(ctx context.Context) (apiv1.StatsResponse, error) {
	var out apiv1.StatsResponse
	err := t.do(ctx, http.MethodGet, "/tasks/stats", nil, &out)
	return out, err
}

func (t *HTTPTransport) RegisterRunner(ctx context.Context, req apiv1.RegisterRunnerRequest) (apiv1.RegisterRunnerResponse, error) {
	var out apiv1.RegisterRunnerResponse
	err := t.do(ctx, http.MethodPost, "/runners/register", req, &out)
	return out, err
}

func (t *HTTPTransport) ListRunners(ctx context.Context) (apiv1.ListRunnersResponse, error) {
	var out apiv1.ListRunnersResponse
	err := t.do(ctx, http.MethodGet, "/runners", nil, &out)
	return out, err
}

func (t *HTTPTransport) Events(ctx context.Context, req apiv1.EventsRequest) (apiv1.EventsResponse, error) {
	var out apiv1.EventsResponse
	path := "/tasks/events"
	if q := req.Query().Encode(); q != "" {
		path += "?" + q
	}
	err := t.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Close releases idle connections.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.secret != "" {
		auth.SignRequest(req, t.secret, body)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return decodeHTTPError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func decodeHTTPError(status int, raw []byte) error {
	var er apiv1.ErrorResponse
	if err := json.Unmarshal(raw, &er); err != nil || er.Error == "" {
		return &APIError{Status: status, Code: codeForStatus(status), Message: strings.TrimSpace(string(raw))}
	}
	return &APIError{Status: status, Code: er.Error, Message: er.Message}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return apiv1.CodeUnauthorized
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusMethodNotAllowed:
		return apiv1.CodeBadRequest
	case http.StatusConflict:
		return apiv1.CodeInvalidLease
	case http.StatusNotFound:
		return apiv1.CodeTaskNotFound
	default:
		return apiv1.CodeInternal
	}
}
