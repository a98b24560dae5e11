package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// FileEnv names the variable pointing at an optional YAML config file.
const FileEnv = "EMERALD_CONFIG_FILE"

type Config struct {
	ListenAddr      string        // ex: ":8000"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)
	AccessLog string // optional file receiving HTTP access lines

	Store            string        // "memory" | "redis" | "sqlite"
	SQLitePath       string        // database file for the sqlite store
	LivenessWindow   time.Duration // heartbeat freshness window (default: 180s)
	SweepInterval    time.Duration // liveness sweep period (default: 15s)
	MaxUpsertRetries int           // optimistic upsert attempts before giving up

	// Redis
	RedisAddr           string        // ex: "localhost:6379"
	RedisUser           string        // optional
	RedisPassword       string        // optional
	RedisDB             int           // Redis DB number
	RedisDT             time.Duration // Redis dial timeout (ex: 5s)
	RedisRT             time.Duration // Redis read timeout (ex: 3s)
	RedisWT             time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait        time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize       int           // Redis connection pool size
	RedisConnectTimeout time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold  int           // warn after this many attempts

	AllowedHosts []string // optional, restrict admin endpoints to specific Host headers
	AllowedCIDRS []string // optional, restrict admin endpoints to specific IPs or ranges
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)

	PingRateBurst  int // token bucket size for /api/ping per client
	PingRatePerMin int // token refill rate for /api/ping per client

	OTLPEndpoint string // OTLP/gRPC collector, empty disables metric export
	OTLPInsecure bool   // plaintext gRPC to the collector
}

// Load reads the configuration from the environment, falling back to the
// YAML file named by EMERALD_CONFIG_FILE, then to defaults. It only reports
// malformed values; callers run Validate once their own overrides are
// applied.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(FileEnv))
}

// LoadFile is Load with an explicit YAML file path. An empty path skips
// the file layer.
func LoadFile(path string) (*Config, error) {
	src, err := newSource(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		// Server settings
		ListenAddr:      src.getenv("EMERALD_LISTEN_ADDR", ":8000"),
		ShutdownTimeout: src.getenvDuration("EMERALD_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  src.getenv("EMERALD_LOG_LEVEL", "info"),
		PrettyLog: src.getenvBool("EMERALD_PRETTY_LOG", true),
		AccessLog: src.getenv("EMERALD_ACCESS_LOG", ""),

		// Registry
		Store:            strings.ToLower(src.getenv("EMERALD_STORE", StoreSQLite)),
		SQLitePath:       src.getenv("EMERALD_SQLITE_PATH", "emerald.sqlite3"),
		LivenessWindow:   src.getenvDuration("EMERALD_LIVENESS_WINDOW", 180*time.Second),
		SweepInterval:    src.getenvDuration("EMERALD_SWEEP_INTERVAL", 15*time.Second),
		MaxUpsertRetries: src.getenvInt("EMERALD_MAX_UPSERT_RETRIES", 10),

		// Redis settings
		RedisAddr:           src.getenv("EMERALD_REDIS_ADDR", ""),
		RedisUser:           src.getenv("EMERALD_REDIS_USERNAME", ""),
		RedisPassword:       src.getenv("EMERALD_REDIS_PASSWORD", ""),
		RedisDB:             src.getenvInt("EMERALD_REDIS_DB", 0),
		RedisDT:             src.getenvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             src.getenvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             src.getenvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        src.getenvDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    src.getenvDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       src.getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: src.getenvDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  src.getenvDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  src.getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedHosts: splitAndTrim(src.getenv("EMERALD_ALLOWED_HOSTS", "")),
		AllowedCIDRS: parseAllowedIPs(src.getenv("EMERALD_ALLOWED_CIDRS", "")),
		TrustProxy:   src.getenvBool("EMERALD_TRUST_PROXY", false),

		PingRateBurst:  src.getenvInt("EMERALD_PING_RATE_BURST", 60),
		PingRatePerMin: src.getenvInt("EMERALD_PING_RATE_PER_MIN", 120),

		OTLPEndpoint: src.getenv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure: src.getenvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
	}

	if len(src.errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(src.errs...))
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store {
	case StoreMemory, StoreSQLite:
	case StoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("EMERALD_REDIS_ADDR is required when EMERALD_STORE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q (want memory, redis or sqlite)", c.Store))
	}
	if c.Store == StoreSQLite && c.SQLitePath == "" {
		errs = append(errs, fmt.Errorf("EMERALD_SQLITE_PATH must not be empty"))
	}
	if c.LivenessWindow <= 0 {
		errs = append(errs, fmt.Errorf("liveness window must be > 0, got %v", c.LivenessWindow))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("sweep interval must be > 0, got %v", c.SweepInterval))
	}
	if c.MaxUpsertRetries < 1 {
		errs = append(errs, fmt.Errorf("max upsert retries must be >= 1, got %d", c.MaxUpsertRetries))
	}
	if c.PingRateBurst < 1 || c.PingRatePerMin < 1 {
		errs = append(errs, fmt.Errorf("ping rate limit must be positive, got burst=%d per_min=%d",
			c.PingRateBurst, c.PingRatePerMin))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Redacted returns a copy safe to log.
func (c *Config) Redacted() Config {
	cp := *c
	if cp.RedisPassword != "" {
		cp.RedisPassword = "***REDACTED***"
	}
	if cp.RedisUser != "" {
		cp.RedisUser = "***REDACTED***"
	}
	return cp
}

// source resolves a key from the environment first, then the YAML file.
type source struct {
	file map[string]string
	errs []error
}

func newSource(path string) (*source, error) {
	s := &source{file: map[string]string{}}
	if path == "" {
		return s, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	for k, v := range doc {
		s.file[strings.ToLower(k)] = flatten(v)
	}
	return s, nil
}

// fileKey maps an env name to its YAML key: EMERALD_LIVENESS_WINDOW -> liveness_window.
func fileKey(env string) string {
	return strings.ToLower(strings.TrimPrefix(env, "EMERALD_"))
}

func flatten(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(t)
	}
}

func (s *source) lookup(key string) (string, bool) {
	if v := os.Getenv(key); v != "" {
		return v, true
	}
	if v, ok := s.file[fileKey(key)]; ok && v != "" {
		return v, true
	}
	return "", false
}

// helpers
func (s *source) getenv(key, def string) string {
	if v, ok := s.lookup(key); ok {
		return v
	}
	return def
}

func (s *source) getenvInt(key string, def int) int {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("invalid integer value for %s: %q", key, v))
		return def
	}
	return i
}

func (s *source) getenvBool(key string, def bool) bool {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("invalid boolean value for %s: %q", key, v))
		return def
	}
	return b
}

func (s *source) getenvDuration(key string, def time.Duration) time.Duration {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("invalid duration value for %s: %q", key, v))
		return def
	}
	return d
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
