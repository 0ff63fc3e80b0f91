package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	applog "spendwise/internal/log"
)

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Level: slog.LevelDebug, Output: &buf})
	m := NewMiddleware(logger, func(*http.Request) string { return "10.0.0.1" })

	var seenID string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		applog.FromContext(r.Context()).Info("handler ran")
		w.WriteHeader(http.StatusBadRequest)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/model/retrain", nil))

	if !strings.HasPrefix(seenID, "req_") {
		t.Errorf("request id = %q, want req_ prefix", seenID)
	}
	if rec.Header().Get(HeaderRequestID) != seenID {
		t.Errorf("response header = %q, want %q", rec.Header().Get(HeaderRequestID), seenID)
	}

	out := buf.String()
	for _, want := range []string{"msg=\"handler ran\"", "request_id=" + seenID, "status_code=400", "level=WARN", "client_ip=10.0.0.1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
	if got := m.GetMetrics().TotalRequests; got != 1 {
		t.Errorf("TotalRequests = %d, want 1", got)
	}
}

func TestMiddleware_RequestIDHeader(t *testing.T) {
	m := NewMiddleware(nil, nil)
	h := m.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"well formed id is reused", "abc-123", true},
		{"unsafe id is replaced", "bad id\nInjected: yes", false},
		{"missing id is generated", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			if tt.incoming != "" {
				req.Header.Set(HeaderRequestID, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(HeaderRequestID)
			if tt.keep && got != tt.incoming {
				t.Errorf("request id = %q, want %q", got, tt.incoming)
			}
			if !tt.keep && !strings.HasPrefix(got, "req_") {
				t.Errorf("request id = %q, want generated", got)
			}
		})
	}
}

func TestGenerateRequestID_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := GenerateRequestID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
