package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Keep-alive constants.
const (
	// DefaultPingInterval is the default interval between pings.
	DefaultPingInterval = 15 * time.Second

	// DefaultPongTimeout is the default timeout waiting for a pong response.
	DefaultPongTimeout = 5 * time.Second

	// DefaultMaxMissedPongs is the default number of missed pongs before
	// the connection is considered dead.
	DefaultMaxMissedPongs = 2
)

// KeepAliveConfig configures keep-alive behavior.
type KeepAliveConfig struct {
	// PingInterval is the interval between pings.
	PingInterval time.Duration

	// PongTimeout is the timeout waiting for a pong response.
	PongTimeout time.Duration

	// MaxMissedPongs is the number of missed pongs before disconnect.
	MaxMissedPongs int
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// DetectionDelay returns the worst-case time to detect connection loss:
// PingInterval * MaxMissedPongs + PongTimeout.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

// keepAlive monitors connection liveness with envelope pings.
type keepAlive struct {
	config KeepAliveConfig

	sendPing  func(seq uint64) error
	onTimeout func()

	sequence atomic.Uint64

	mu           sync.Mutex
	missedPongs  int
	lastPingTime time.Time
	pendingPing  uint64
	hasPending   bool
	running      bool
	stopCh       chan struct{}
	pongCh       chan uint64
}

// newKeepAlive creates a keep-alive monitor. sendPing is called on each
// interval tick; onTimeout fires once when MaxMissedPongs is reached.
func newKeepAlive(config KeepAliveConfig, sendPing func(seq uint64) error, onTimeout func()) *keepAlive {
	if config.PingInterval <= 0 {
		config.PingInterval = DefaultPingInterval
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = DefaultPongTimeout
	}
	if config.MaxMissedPongs <= 0 {
		config.MaxMissedPongs = DefaultMaxMissedPongs
	}

	return &keepAlive{
		config:    config,
		sendPing:  sendPing,
		onTimeout: onTimeout,
		stopCh:    make(chan struct{}),
		pongCh:    make(chan uint64, 1),
	}
}

// Start begins the monitoring loop. Idempotent while running.
func (ka *keepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	if ka.running {
		ka.mu.Unlock()
		return
	}
	ka.running = true
	ka.stopCh = make(chan struct{})
	ka.mu.Unlock()

	go ka.loop(ctx)
}

// Stop stops the monitoring loop. Idempotent.
func (ka *keepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if !ka.running {
		return
	}
	ka.running = false
	close(ka.stopCh)
}

// PongReceived should be called when a pong envelope arrives.
func (ka *keepAlive) PongReceived(seq uint64) {
	select {
	case ka.pongCh <- seq:
	default:
		// Channel full, drop; the next pong resets the counter anyway.
	}
}

func (ka *keepAlive) loop(ctx context.Context) {
	ticker := time.NewTicker(ka.config.PingInterval)
	defer ticker.Stop()

	ka.sendPingEnvelope()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ka.stopCh:
			return
		case <-ticker.C:
			if dead := ka.handleTick(); dead {
				return
			}
		case seq := <-ka.pongCh:
			ka.handlePong(seq)
		}
	}
}

func (ka *keepAlive) sendPingEnvelope() {
	seq := ka.sequence.Add(1)

	ka.mu.Lock()
	ka.lastPingTime = time.Now()
	ka.pendingPing = seq
	ka.hasPending = true
	ka.mu.Unlock()

	if err := ka.sendPing(seq); err != nil {
		// Send failed; let the pong timeout path count it.
		ka.mu.Lock()
		ka.hasPending = false
		ka.missedPongs++
		ka.mu.Unlock()
	}
}

// handleTick checks the pending ping and sends the next one.
// Returns true when the connection is considered dead.
func (ka *keepAlive) handleTick() bool {
	ka.mu.Lock()
	if ka.hasPending && time.Since(ka.lastPingTime) >= ka.config.PongTimeout {
		ka.missedPongs++
		ka.hasPending = false
	}
	dead := ka.missedPongs >= ka.config.MaxMissedPongs
	ka.mu.Unlock()

	if dead {
		if ka.onTimeout != nil {
			ka.onTimeout()
		}
		return true
	}

	ka.sendPingEnvelope()
	return false
}

func (ka *keepAlive) handlePong(seq uint64) {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if ka.hasPending && seq == ka.pendingPing {
		ka.hasPending = false
		ka.missedPongs = 0
	}
	// Pongs with a stale sequence are ignored; they may be delayed
	// answers to an earlier ping.
}
