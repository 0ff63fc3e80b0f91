package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDetector_DetectSuspiciousRequest(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name   string
		method string
		target string
		agent  string
		xff    string
		want   bool
	}{
		{name: "plain predict", method: http.MethodPost, target: "/model/predict", agent: "Mozilla/5.0", want: false},
		{name: "curl is fine", method: http.MethodGet, target: "/model/metrics", agent: "curl/8.4.0", want: false},
		{name: "path traversal", method: http.MethodGet, target: "/static/../../etc/passwd", want: true},
		{name: "dotenv probe", method: http.MethodGet, target: "/.env", want: true},
		{name: "sql injection in query", method: http.MethodGet, target: "/model/metrics?q=1%20UNION%20SELECT", want: true},
		{name: "scanner agent", method: http.MethodGet, target: "/healthz", agent: "sqlmap/1.7", want: true},
		{name: "trace method", method: "TRACE", target: "/healthz", want: true},
		{name: "long url", method: http.MethodGet, target: "/healthz?x=" + strings.Repeat("a", 2100), want: true},
		{name: "many proxy hops", method: http.MethodGet, target: "/healthz", xff: "1.1.1.1,2.2.2.2,3.3.3.3,4.4.4.4,5.5.5.5,6.6.6.6,7.7.7.7", want: true},
	}

	suspicious := 0
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.agent != "" {
				req.Header.Set("User-Agent", tt.agent)
			}
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := d.DetectSuspiciousRequest(req); got != tt.want {
				t.Errorf("DetectSuspiciousRequest() = %v, want %v", got, tt.want)
			}
		})
		if tt.want {
			suspicious++
		}
	}

	if got := d.GetMetrics().SuspiciousRequests; got != int64(suspicious) {
		t.Errorf("SuspiciousRequests = %d, want %d", got, suspicious)
	}
}

func TestDetector_ExtractClientIP(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		realIP     string
		want       string
	}{
		{name: "direct client", remoteAddr: "203.0.113.9:1234", want: "203.0.113.9"},
		{name: "untrusted peer ignores headers", remoteAddr: "203.0.113.9:1234", xff: "198.51.100.1", want: "203.0.113.9"},
		{name: "trusted proxy forwards", remoteAddr: "10.0.0.2:80", xff: "198.51.100.1, 10.0.0.3", want: "198.51.100.1"},
		{name: "trusted proxy real ip", remoteAddr: "127.0.0.1:80", realIP: "198.51.100.7", want: "198.51.100.7"},
		{name: "garbage forwarded header", remoteAddr: "192.168.1.1:80", xff: "not-an-ip", want: "192.168.1.1"},
		{name: "unparseable remote addr", remoteAddr: "pipe", want: "pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := d.ExtractClientIP(req); got != tt.want {
				t.Errorf("ExtractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}

	if d.GetMetrics().InvalidIPAttempts != 1 {
		t.Errorf("InvalidIPAttempts = %d, want 1", d.GetMetrics().InvalidIPAttempts)
	}
}

func TestDetector_AddTrustedProxy(t *testing.T) {
	d := NewDetector()
	if err := d.AddTrustedProxy("bogus"); err == nil {
		t.Error("AddTrustedProxy(bogus) should fail")
	}
	if err := d.AddTrustedProxy("203.0.113.0/24"); err != nil {
		t.Fatalf("AddTrustedProxy() error = %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.5:443"
	req.Header.Set("X-Forwarded-For", "198.51.100.2")
	if got := d.ExtractClientIP(req); got != "198.51.100.2" {
		t.Errorf("ExtractClientIP() = %q", got)
	}
}

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig(), NewDetector()).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/model/metrics", nil))

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":         "no-referrer",
	}
	for name, value := range want {
		if got := rec.Header().Get(name); got != value {
			t.Errorf("%s = %q, want %q", name, got, value)
		}
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be sent over plain HTTP")
	}

	req := httptest.NewRequest(http.MethodGet, "/model/metrics", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("HSTS = %q", got)
	}
}
