package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port               string
	AllowedOrigins     []string
	RateLimitPerMinute int
	// TrustedProxies are CIDRs, beyond private and loopback ranges, whose
	// X-Forwarded-For headers are believed.
	TrustedProxies []string

	LogLevel string

	// Data backend
	DataBackend   string
	SQLiteDBPath  string
	MemorySeedDir string

	// Model store
	ModelStore      string
	ModelDir        string
	ModelBadgerPath string
	ModelCacheTTL   time.Duration

	// AMQP, optional for the API and required by the worker
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

var (
	validBackends    = []string{"memory", "sqlite"}
	validModelStores = []string{"file", "badger"}
	validLogLevels   = []string{"debug", "info", "warn", "error"}
)

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8000"),
		AllowedOrigins:     getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES", nil),

		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),

		DataBackend:   getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath:  getEnv("SQLITE_DB_PATH", "./data/spendwise.db"),
		MemorySeedDir: getEnv("MEMORY_SEED_DIR", "./data"),

		ModelStore:      getEnv("MODEL_STORE", "file"),
		ModelDir:        getEnv("MODEL_DIR", "./data/model"),
		ModelBadgerPath: getEnv("MODEL_BADGER_PATH", "./data/model-badger"),
		ModelCacheTTL:   getEnvDuration("MODEL_CACHE_TTL", 30*time.Second),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "spendwise"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "model_retrain"),
	}
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			continue
		}
		if u, err := url.Parse(origin); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid allowed origin '%s': must be scheme://host[:port] or *", origin))
		}
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR such as 203.0.113.0/24", cidr))
		}
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if msg := ensureDir(filepath.Dir(c.SQLiteDBPath)); msg != "" {
			errors = append(errors, "cannot create SQLite database directory: "+msg)
		}
	}

	if !slices.Contains(validModelStores, c.ModelStore) {
		errors = append(errors, fmt.Sprintf("invalid model store '%s': must be one of %v", c.ModelStore, validModelStores))
	}
	switch c.ModelStore {
	case "file":
		if c.ModelDir == "" {
			errors = append(errors, "model directory cannot be empty when using file model store")
		}
	case "badger":
		if c.ModelBadgerPath == "" {
			errors = append(errors, "badger path cannot be empty when using badger model store")
		}
	}
	if c.ModelCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid model cache TTL %v: must not be negative", c.ModelCacheTTL))
	} else if c.ModelCacheTTL > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid model cache TTL %v: must be at most 1 hour", c.ModelCacheTTL))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateWorker additionally requires a broker, which the worker cannot run without.
func (c *Config) ValidateWorker() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.AMQPURL == "" {
		return fmt.Errorf("configuration validation failed:\n- AMQP_URL is required for the retrain worker")
	}
	return nil
}

func ensureDir(dir string) string {
	if dir == "." || dir == "" {
		return ""
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Sprintf("'%s': %v", dir, err)
		}
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
