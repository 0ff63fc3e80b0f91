package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufferLogger(component string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{Level: slog.LevelDebug, Component: component, Output: &buf}), &buf
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogger_ComponentAppearsOnce(t *testing.T) {
	logger, buf := newBufferLogger(ComponentModel)
	logger.With("k", "v").WithComponent(ComponentWorker).Info("hello")

	out := buf.String()
	if strings.Count(out, "component=") != 1 {
		t.Errorf("expected exactly one component attribute, got %q", out)
	}
	if !strings.Contains(out, "component=worker") || !strings.Contains(out, "k=v") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestMiddleware_AddsRequestLogger(t *testing.T) {
	logger, buf := newBufferLogger(ComponentApp)
	handler := Middleware(logger, ComponentHTTP, func(*http.Request) string { return "req_1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).Info("inside")
		}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	out := buf.String()
	for _, want := range []string{"component=http", "request_id=req_1", "msg=inside"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestFromContext_Default(t *testing.T) {
	if l := FromContext(context.Background()); l.Component() != "unknown" {
		t.Errorf("Component() = %q, want unknown", l.Component())
	}
}

func TestStructuredLogger(t *testing.T) {
	logger, buf := newBufferLogger(ComponentModel)
	sl := NewStructuredLogger(logger)
	acc := 0.75

	sl.LogRetrain(context.Background(), 12, 2, &acc)
	sl.LogError(context.Background(), "boom", errors.New("disk full"), OpRetrain, nil)

	out := buf.String()
	for _, want := range []string{"trained_on_rows=12", "accuracy=0.75", "error=\"disk full\"", "operation=retrain"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}
