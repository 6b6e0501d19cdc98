package server

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
)

// fileConfig mirrors Config in TOML form. Zero values leave the default in
// place, except rate_limit.burst where an explicit 0 turns limiting off.
type fileConfig struct {
	Port           string   `toml:"port"`
	HTTPPort       string   `toml:"http_port"`
	AllowedOrigins []string `toml:"allowed_origins"`
	MaxMessageSize int64    `toml:"max_message_size"`
	RateLimit      struct {
		Burst                 *int `toml:"burst"`
		RefillIntervalSeconds int  `toml:"refill_interval_seconds"`
	} `toml:"rate_limit"`
}

// LoadConfig reads a TOML configuration file over the defaults and then
// applies the environment, so environment variables win over the file.
//
//	port = "4567"
//	http_port = "off"
//	allowed_origins = ["https://chat.example.com"]
//
//	[rate_limit]
//	burst = 10
//	refill_interval_seconds = 2
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg := defaultConfig()
	fc.apply(&cfg)
	applyEnv(&cfg)
	return &cfg, nil
}

func (fc fileConfig) apply(cfg *Config) {
	if fc.Port != "" {
		cfg.Port = normalizePort(fc.Port)
	}
	if strings.EqualFold(fc.HTTPPort, "off") {
		cfg.HTTPPort = ""
	} else if fc.HTTPPort != "" {
		cfg.HTTPPort = normalizePort(fc.HTTPPort)
	}
	if len(fc.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = fc.AllowedOrigins
	}
	if fc.MaxMessageSize > 0 {
		cfg.MaxMessageSize = fc.MaxMessageSize
	}
	if fc.RateLimit.Burst != nil {
		cfg.RateLimit.Burst = max(*fc.RateLimit.Burst, 0)
	}
	if fc.RateLimit.RefillIntervalSeconds > 0 {
		cfg.RateLimit.RefillInterval = time.Duration(fc.RateLimit.RefillIntervalSeconds) * time.Second
	}
}
