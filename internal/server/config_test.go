package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, ":4567", cfg.Port)
	assert.Equal(t, ":8080", cfg.HTTPPort)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(512), cfg.MaxMessageSize)
	assert.Zero(t, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled())
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("HTTP_PORT", "127.0.0.1:9001")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com, http://localhost:3000")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "3")

	cfg := NewConfigFromEnv()

	assert.Equal(t, ":9000", cfg.Port)
	assert.Equal(t, "127.0.0.1:9001", cfg.HTTPPort)
	assert.Equal(t, []string{"https://chat.example.com", "http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(1024), cfg.MaxMessageSize)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Equal(t, 3*time.Second, cfg.RateLimit.RefillInterval)
}

func TestNewConfigFromEnvDisablesHTTP(t *testing.T) {
	t.Setenv("HTTP_PORT", "off")

	cfg := NewConfigFromEnv()

	assert.Empty(t, cfg.HTTPPort)
	assert.Equal(t, defaultPort, cfg.Port)
}

func TestNewConfigFromEnvIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "huge")
	t.Setenv("RATE_LIMIT_BURST", "-3")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "0")

	cfg := NewConfigFromEnv()

	assert.Equal(t, int64(defaultMaxMessageSize), cfg.MaxMessageSize)
	assert.Zero(t, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
}

func TestNewConfigFromEnvTurnsRateLimitOff(t *testing.T) {
	for _, value := range []string{"off", "OFF", "0"} {
		t.Run(value, func(t *testing.T) {
			t.Setenv("RATE_LIMIT_BURST", value)
			cfg := NewConfigFromEnv()
			assert.False(t, cfg.RateLimit.Enabled())
		})
	}
}

func TestSanitizeConfigClampsNegativeBurst(t *testing.T) {
	cfg := sanitizeConfig(Config{RateLimit: RateLimitConfig{Burst: -4}})

	assert.Zero(t, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled())
}

func TestSanitizeConfig(t *testing.T) {
	origins := []string{"http://a.example"}
	cfg := sanitizeConfig(Config{AllowedOrigins: origins})

	assert.Equal(t, defaultPort, cfg.Port)
	assert.Empty(t, cfg.HTTPPort)
	assert.Equal(t, int64(defaultMaxMessageSize), cfg.MaxMessageSize)
	assert.Zero(t, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)

	origins[0] = "http://changed.example"
	assert.Equal(t, []string{"http://a.example"}, cfg.AllowedOrigins)
}

func TestNormalizePort(t *testing.T) {
	tests := map[string]string{
		"4567":           ":4567",
		":4567":          ":4567",
		" 80 ":           ":80",
		"127.0.0.1:4567": "127.0.0.1:4567",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizePort(in), "normalizePort(%q)", in)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.toml")
	contents := `
port = "5000"
http_port = "off"
allowed_origins = ["https://chat.example.com"]
max_message_size = 256

[rate_limit]
burst = 7
refill_interval_seconds = 2
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.Port)
	assert.Empty(t, cfg.HTTPPort)
	assert.Equal(t, []string{"https://chat.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(256), cfg.MaxMessageSize)
	assert.Equal(t, 7, cfg.RateLimit.Burst)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.RefillInterval)
}

func TestLoadConfigEnvironmentWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.toml")
	require.NoError(t, os.WriteFile(path, []byte("port = \"5000\"\n"), 0o600))
	t.Setenv("SERVER_PORT", "6000")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":6000", cfg.Port)
	assert.Equal(t, defaultHTTPPort, cfg.HTTPPort)
}

func TestLoadConfigBurstZeroTurnsRateLimitOff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.toml")
	t.Setenv("RATE_LIMIT_BURST", "")

	require.NoError(t, os.WriteFile(path, []byte("[rate_limit]\nburst = 0\n"), 0o600))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.RateLimit.Enabled())

	require.NoError(t, os.WriteFile(path, []byte("[rate_limit]\nburst = 3\n"), 0o600))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.RateLimit.Burst)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("port = [unterminated"), 0o600))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}
