package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	goahocorasick "github.com/anknown/ahocorasick"
)

var (
	suspiciousPatterns = []string{
		"../", "..\\", ".env", "wp-admin", "phpmyadmin",
		"admin.php", "config.php", ".git", ".ssh",
		"eval(", "javascript:", "<script", "union select",
		"etc/passwd", "cmd.exe",
	}
	suspiciousAgents = []string{
		"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab",
	}
	unusualMethods = map[string]bool{"TRACE": true, "TRACK": true, "DEBUG": true, "CONNECT": true}
)

const (
	maxURLLength   = 2048
	maxForwardHops = 5
)

type DetectionMetrics struct {
	SuspiciousRequests int64
	InvalidIPAttempts  int64
}

// Detector flags requests that look like probes or scans and resolves the
// client address behind trusted proxies.
type Detector struct {
	suspiciousRequests atomic.Int64
	invalidIPAttempts  atomic.Int64

	trustedProxies []*net.IPNet
	patterns       *goahocorasick.Machine
	agents         *goahocorasick.Machine
}

func NewDetector() *Detector {
	return &Detector{
		trustedProxies: []*net.IPNet{
			mustParseCIDR("127.0.0.0/8"),
			mustParseCIDR("10.0.0.0/8"),
			mustParseCIDR("172.16.0.0/12"),
			mustParseCIDR("192.168.0.0/16"),
		},
		patterns: mustMachine(suspiciousPatterns),
		agents:   mustMachine(suspiciousAgents),
	}
}

func mustParseCIDR(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse trusted proxy CIDR %s: %v", cidr, err))
	}
	return network
}

func mustMachine(words []string) *goahocorasick.Machine {
	dict := make([][]rune, len(words))
	for i, w := range words {
		dict[i] = []rune(w)
	}
	m := new(goahocorasick.Machine)
	if err := m.Build(dict); err != nil {
		panic(fmt.Sprintf("failed to build pattern matcher: %v", err))
	}
	return m
}

func contains(m *goahocorasick.Machine, s string) bool {
	if s == "" {
		return false
	}
	return len(m.MultiPatternSearch([]rune(strings.ToLower(s)), true)) > 0
}

func unescapeQuery(raw string) string {
	if q, err := url.QueryUnescape(raw); err == nil {
		return q
	}
	return raw
}

// DetectSuspiciousRequest reports whether r matches a known attack pattern
// and counts it if so.
func (d *Detector) DetectSuspiciousRequest(r *http.Request) bool {
	suspicious := contains(d.patterns, r.URL.Path) ||
		contains(d.patterns, unescapeQuery(r.URL.RawQuery)) ||
		contains(d.agents, r.Header.Get("User-Agent")) ||
		unusualMethods[r.Method] ||
		len(r.URL.String()) > maxURLLength ||
		strings.Count(r.Header.Get("X-Forwarded-For"), ",") > maxForwardHops

	if suspicious {
		d.suspiciousRequests.Add(1)
	}
	return suspicious
}

// ExtractClientIP returns the peer address, or the forwarded client address
// when the peer is a trusted proxy.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsed := net.ParseIP(directIP)
	if parsed == nil || !d.isTrustedProxy(parsed) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if net.ParseIP(first) != nil {
			return first
		}
		d.invalidIPAttempts.Add(1)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
		d.invalidIPAttempts.Add(1)
	}
	return directIP
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: d.suspiciousRequests.Load(),
		InvalidIPAttempts:  d.invalidIPAttempts.Load(),
	}
}

// AddTrustedProxy must be called before the detector serves requests.
func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.trustedProxies = append(d.trustedProxies, network)
	return nil
}
