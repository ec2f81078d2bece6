package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newBufLogger(level Level, f Formatter) (Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewLogger(WithLevel(level), WithFormatter(f), WithOutput(NewWriterOutput(&buf)))
	return l, &buf
}

func TestJSONOutputCarriesFields(t *testing.T) {
	l, buf := newBufLogger(InfoLevel, &JSONFormatter{})
	l.With(Component("taskqueue")).Info("leased", Int("count", 2), Err(errors.New("boom")))

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, buf.String())
	}
	if got["msg"] != "leased" || got["level"] != "INFO" {
		t.Fatalf("unexpected entry: %v", got)
	}
	if got["component"] != "taskqueue" {
		t.Fatalf("component missing: %v", got)
	}
	if got["count"] != float64(2) {
		t.Fatalf("count: %v", got["count"])
	}
	if got["error"] != "boom" {
		t.Fatalf("error: %v", got["error"])
	}
}

func TestLevelGate(t *testing.T) {
	l, buf := newBufLogger(WarnLevel, &TextFormatter{})
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %q", buf.String())
	}
	l.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn should be written")
	}
	l.SetLevel(DebugLevel)
	l.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Fatalf("debug should pass after SetLevel")
	}
}

func TestTextFormatterSortsKeys(t *testing.T) {
	l, buf := newBufLogger(InfoLevel, &TextFormatter{})
	l.Info("hello", Str("b", "2"), Str("a", "1"))
	line := buf.String()
	if strings.Index(line, "a=1") > strings.Index(line, "b=2") {
		t.Fatalf("keys not sorted: %q", line)
	}
}

func TestWithContextRequestID(t *testing.T) {
	l, buf := newBufLogger(InfoLevel, &TextFormatter{})
	ctx := ContextWithRequestID(context.Background(), "req-1")
	l.WithContext(ctx).Info("handled")
	if !strings.Contains(buf.String(), "request_id=req-1") {
		t.Fatalf("missing request id: %q", buf.String())
	}
}

func TestApplyConfigRedacts(t *testing.T) {
	l, err := ApplyConfig(&Config{Level: "info", Format: "json", Quiet: true, RedactKeys: []string{"signature"}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	var buf bytes.Buffer
	bl := l.(*BaseLogger)
	bl.handler.logger.outputs = []Output{NewWriterOutput(&buf)}
	l.Info("auth", Str("signature", "deadbeef"))
	if strings.Contains(buf.String(), "deadbeef") || !strings.Contains(buf.String(), "[REDACTED]") {
		t.Fatalf("signature not redacted: %q", buf.String())
	}
}

func TestApplyConfigRejectsUnknownFormat(t *testing.T) {
	if _, err := ApplyConfig(&Config{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestSamplerAllowsInitialThenEveryNth(t *testing.T) {
	s := newSampler(2, 3)
	var allowed int
	for i := 0; i < 8; i++ {
		if s.allow(0, "m") {
			allowed++
		}
	}
	// 2 initial + n=2,5 thereafter
	if allowed != 4 {
		t.Fatalf("allowed=%d want 4", allowed)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		err  bool
	}{
		{"debug", DebugLevel, false},
		{"WARN", WarnLevel, false},
		{"", InfoLevel, false},
		{"loud", InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}
