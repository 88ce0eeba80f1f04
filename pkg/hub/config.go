package hub

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hubwire-protocol/hubwire-go/pkg/transport"
)

// Configuration defaults.
const (
	// DefaultMaxRetryAttempts is the retry budget per reconnection cycle.
	DefaultMaxRetryAttempts = 10

	// DefaultInitialRetryDelay is the base delay before the first retry.
	DefaultInitialRetryDelay = time.Second

	// TransportWebsocket selects the websocket transport.
	TransportWebsocket = "websocket"
)

// Configuration errors.
var (
	ErrMissingEndpoint     = errors.New("endpoint URL is required")
	ErrNegativeRetryBudget = errors.New("max retry attempts must be >= 0")
	ErrNonPositiveDelay    = errors.New("initial retry delay must be > 0")
	ErrUnknownTransport    = errors.New("unknown transport preference")
)

// Config is the immutable configuration for a Supervisor. It is copied at
// construction; later mutation has no effect.
type Config struct {
	// EndpointURL is the hub endpoint (ws:// or wss://).
	EndpointURL string

	// MaxRetryAttempts is the number of retries after the first failed
	// connect in a cycle. 0 means a single attempt with no retry.
	MaxRetryAttempts int

	// InitialRetryDelay is the base for the exponential backoff.
	InitialRetryDelay time.Duration

	// EnableLogging turns on lifecycle logging.
	EnableLogging bool

	// TokenProvider supplies a bearer token per connect attempt. Optional.
	TokenProvider transport.TokenProvider

	// Headers are added to every connect request. Optional.
	Headers map[string]string

	// TransportPreference selects the transport ("websocket" or empty).
	TransportPreference string

	// KeepAliveInterval overrides the transport ping interval. Optional.
	KeepAliveInterval time.Duration

	// StatefulResume enables session resumption across reconnects.
	StatefulResume bool

	// ResumeBufferSize bounds the resume replay buffer. Optional.
	ResumeBufferSize int

	// OnClosed fires when the connection closes. The error is nil for a
	// deliberate local disconnect.
	OnClosed func(err error)

	// OnReconnecting fires when a reconnection attempt begins.
	OnReconnecting func(err error)

	// OnReconnected fires when a reconnection attempt succeeds.
	OnReconnected func(connectionID string)

	// OnRetriesExhausted fires when a reconnection cycle runs out of
	// attempts. The supervisor stays usable; a later closure starts a
	// fresh cycle.
	OnRetriesExhausted func()
}

// Validate checks the configuration invariants.
func (c *Config) Validate() error {
	if c.EndpointURL == "" {
		return ErrMissingEndpoint
	}
	if c.MaxRetryAttempts < 0 {
		return ErrNegativeRetryBudget
	}
	if c.InitialRetryDelay <= 0 {
		return ErrNonPositiveDelay
	}
	if c.TransportPreference != "" && c.TransportPreference != TransportWebsocket {
		return fmt.Errorf("%w: %q", ErrUnknownTransport, c.TransportPreference)
	}
	return nil
}

// withDefaults returns a copy with zero-value fields filled in.
func (c Config) withDefaults() Config {
	if c.InitialRetryDelay == 0 {
		c.InitialRetryDelay = DefaultInitialRetryDelay
	}
	if c.TransportPreference == "" {
		c.TransportPreference = TransportWebsocket
	}
	return c
}

// fileConfig is the YAML shape of a configuration file. Durations are
// strings in Go duration syntax ("500ms", "2s").
type fileConfig struct {
	EndpointURL       string            `yaml:"endpoint_url"`
	MaxRetryAttempts  *int              `yaml:"max_retry_attempts"`
	InitialRetryDelay string            `yaml:"initial_retry_delay"`
	EnableLogging     bool              `yaml:"enable_logging"`
	Headers           map[string]string `yaml:"headers"`
	Transport         string            `yaml:"transport"`
	KeepAliveInterval string            `yaml:"keepalive_interval"`
	StatefulResume    bool              `yaml:"stateful_resume"`
	ResumeBufferSize  int               `yaml:"resume_buffer_size"`
}

// LoadConfig reads a YAML configuration file. Callbacks and the token
// provider cannot come from a file and are left nil.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := Config{
		EndpointURL:         fc.EndpointURL,
		MaxRetryAttempts:    DefaultMaxRetryAttempts,
		InitialRetryDelay:   DefaultInitialRetryDelay,
		EnableLogging:       fc.EnableLogging,
		Headers:             fc.Headers,
		TransportPreference: fc.Transport,
		StatefulResume:      fc.StatefulResume,
		ResumeBufferSize:    fc.ResumeBufferSize,
	}
	if fc.MaxRetryAttempts != nil {
		cfg.MaxRetryAttempts = *fc.MaxRetryAttempts
	}
	if fc.InitialRetryDelay != "" {
		d, err := time.ParseDuration(fc.InitialRetryDelay)
		if err != nil {
			return nil, fmt.Errorf("parse initial_retry_delay: %w", err)
		}
		cfg.InitialRetryDelay = d
	}
	if fc.KeepAliveInterval != "" {
		d, err := time.ParseDuration(fc.KeepAliveInterval)
		if err != nil {
			return nil, fmt.Errorf("parse keepalive_interval: %w", err)
		}
		cfg.KeepAliveInterval = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
