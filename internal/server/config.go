package server

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig defines optional per-connection message rate limiting. A
// Burst of zero turns the limit off, which is the default.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Enabled reports whether frames are subject to the token bucket.
func (rl RateLimitConfig) Enabled() bool {
	return rl.Burst > 0
}

// Config holds the relay configuration.
type Config struct {
	// Port is the TCP address the frame listener binds, e.g. ":4567".
	Port string
	// HTTPPort is the address of the health and WebSocket endpoints.
	// Empty disables the HTTP listener.
	HTTPPort       string
	AllowedOrigins []string
	// MaxMessageSize caps a single WebSocket message. Anything larger closes
	// the connection; anything between a frame and this size is dropped as
	// malformed.
	MaxMessageSize int64
	RateLimit      RateLimitConfig
}

const (
	defaultPort           = ":4567"
	defaultHTTPPort       = ":8080"
	defaultMaxMessageSize = 512
)

func defaultConfig() Config {
	return Config{
		Port:     defaultPort,
		HTTPPort: defaultHTTPPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: defaultMaxMessageSize,
		RateLimit: RateLimitConfig{
			RefillInterval: time.Second,
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.RateLimit.Burst < 0 {
		cfg.RateLimit.Burst = 0
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv returns the defaults overridden by SERVER_PORT, HTTP_PORT,
// ALLOWED_ORIGINS, MAX_MESSAGE_SIZE, RATE_LIMIT_BURST and
// RATE_LIMIT_REFILL_INTERVAL. Values that do not parse are ignored.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()
	applyEnv(&cfg)
	return &cfg
}

// envOverrides maps each environment variable to the setting it replaces.
// Setters only run for non-empty values.
var envOverrides = []struct {
	name string
	set  func(cfg *Config, value string)
}{
	{"SERVER_PORT", func(cfg *Config, v string) { cfg.Port = normalizePort(v) }},
	{"HTTP_PORT", func(cfg *Config, v string) {
		if strings.EqualFold(v, "off") {
			cfg.HTTPPort = ""
			return
		}
		cfg.HTTPPort = normalizePort(v)
	}},
	{"ALLOWED_ORIGINS", func(cfg *Config, v string) { cfg.AllowedOrigins = splitList(v) }},
	{"MAX_MESSAGE_SIZE", func(cfg *Config, v string) {
		if n, ok := positive[int64](v); ok {
			cfg.MaxMessageSize = n
		}
	}},
	{"RATE_LIMIT_BURST", func(cfg *Config, v string) {
		if strings.EqualFold(v, "off") || v == "0" {
			cfg.RateLimit.Burst = 0
		} else if n, ok := positive[int](v); ok {
			cfg.RateLimit.Burst = n
		}
	}},
	{"RATE_LIMIT_REFILL_INTERVAL", func(cfg *Config, v string) {
		if secs, ok := positive[int](v); ok {
			cfg.RateLimit.RefillInterval = time.Duration(secs) * time.Second
		}
	}},
}

func applyEnv(cfg *Config) {
	for _, o := range envOverrides {
		if v := strings.TrimSpace(os.Getenv(o.name)); v != "" {
			o.set(cfg, v)
		}
	}
}

// normalizePort turns a bare port number into a listen address.
func normalizePort(port string) string {
	port = strings.TrimSpace(port)
	if _, err := strconv.ParseUint(port, 10, 16); err == nil {
		return ":" + port
	}
	return port
}

func splitList(value string) []string {
	fields := strings.Split(value, ",")
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func positive[T int | int64](value string) (T, bool) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 || int64(T(n)) != n {
		return 0, false
	}
	return T(n), true
}
