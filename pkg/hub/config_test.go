package hub

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		EndpointURL:       "wss://hub.example.com/wire",
		MaxRetryAttempts:  3,
		InitialRetryDelay: time.Second,
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		cfg := validConfig()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("MissingEndpoint", func(t *testing.T) {
		cfg := validConfig()
		cfg.EndpointURL = ""
		assert.ErrorIs(t, cfg.Validate(), ErrMissingEndpoint)
	})

	t.Run("NegativeRetryBudget", func(t *testing.T) {
		cfg := validConfig()
		cfg.MaxRetryAttempts = -1
		assert.ErrorIs(t, cfg.Validate(), ErrNegativeRetryBudget)
	})

	t.Run("ZeroRetryBudgetAllowed", func(t *testing.T) {
		cfg := validConfig()
		cfg.MaxRetryAttempts = 0
		assert.NoError(t, cfg.Validate())
	})

	t.Run("NonPositiveDelay", func(t *testing.T) {
		cfg := validConfig()
		cfg.InitialRetryDelay = 0
		assert.ErrorIs(t, cfg.Validate(), ErrNonPositiveDelay)
	})

	t.Run("UnknownTransport", func(t *testing.T) {
		cfg := validConfig()
		cfg.TransportPreference = "carrier-pigeon"
		assert.ErrorIs(t, cfg.Validate(), ErrUnknownTransport)
	})

	t.Run("WebsocketTransport", func(t *testing.T) {
		cfg := validConfig()
		cfg.TransportPreference = TransportWebsocket
		assert.NoError(t, cfg.Validate())
	})
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
endpoint_url: wss://hub.example.com/wire
max_retry_attempts: 5
initial_retry_delay: 250ms
enable_logging: true
keepalive_interval: 20s
stateful_resume: true
resume_buffer_size: 128
transport: websocket
headers:
  X-Tenant: acme
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://hub.example.com/wire", cfg.EndpointURL)
	assert.Equal(t, 5, cfg.MaxRetryAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.InitialRetryDelay)
	assert.True(t, cfg.EnableLogging)
	assert.Equal(t, 20*time.Second, cfg.KeepAliveInterval)
	assert.True(t, cfg.StatefulResume)
	assert.Equal(t, 128, cfg.ResumeBufferSize)
	assert.Equal(t, TransportWebsocket, cfg.TransportPreference)
	assert.Equal(t, map[string]string{"X-Tenant": "acme"}, cfg.Headers)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfigFile(t, "endpoint_url: wss://hub.example.com/wire\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxRetryAttempts, cfg.MaxRetryAttempts)
	assert.Equal(t, DefaultInitialRetryDelay, cfg.InitialRetryDelay)
}

func TestLoadConfigZeroRetryAttempts(t *testing.T) {
	path := writeConfigFile(t, `
endpoint_url: wss://hub.example.com/wire
max_retry_attempts: 0
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.MaxRetryAttempts)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("BadYAML", func(t *testing.T) {
		path := writeConfigFile(t, "endpoint_url: [unterminated\n")
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})

	t.Run("BadDuration", func(t *testing.T) {
		path := writeConfigFile(t, `
endpoint_url: wss://hub.example.com/wire
initial_retry_delay: soon
`)
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})

	t.Run("FailsValidation", func(t *testing.T) {
		path := writeConfigFile(t, "max_retry_attempts: 3\n")
		_, err := LoadConfig(path)
		assert.ErrorIs(t, err, ErrMissingEndpoint)
	})
}
