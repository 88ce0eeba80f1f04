package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hubwire-protocol/hubwire-go/pkg/backoff"
	"github.com/hubwire-protocol/hubwire-go/pkg/hublog"
	"github.com/hubwire-protocol/hubwire-go/pkg/retry"
	"github.com/hubwire-protocol/hubwire-go/pkg/transport"
)

// closeDisconnectTimeout bounds the graceful disconnect during Close.
const closeDisconnectTimeout = 5 * time.Second

// Supervisor owns a hub connection and keeps it alive. It starts the
// connection on Start, reconnects with backoff when the transport reports
// an unexpected closure, and stops on Stop or Close.
//
// The reconnection gate guarantees at most one reconnection cycle at a
// time. The disposal flag makes every operation a no-op after Close.
type Supervisor struct {
	config   Config
	conn     transport.Connection
	logger   hublog.Logger
	policy   backoff.Policy
	executor *retry.Executor

	// closed is the disposal flag. Set once, never cleared.
	closed atomic.Bool

	// reconnecting is the single-flight reconnection gate.
	reconnecting atomic.Bool

	// lifecycleCtx is cancelled by Close so in-flight cycles abandon
	// their remaining attempts.
	lifecycleCtx    context.Context
	lifecycleCancel context.CancelFunc

	// cycleMu guards cycleCancel, the cancel function of the cycle
	// currently inside the retry executor.
	cycleMu     sync.Mutex
	cycleCancel context.CancelFunc
}

// New creates a Supervisor with a websocket transport built from the
// configuration. The connection is not established until Start.
func New(config Config) (*Supervisor, error) {
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	keepAlive := transport.DefaultKeepAliveConfig()
	if config.KeepAliveInterval > 0 {
		keepAlive.PingInterval = config.KeepAliveInterval
	}

	var logger hublog.Logger = hublog.NoopLogger{}
	if config.EnableLogging {
		logger = hublog.NewSlogAdapter(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	}

	conn := transport.NewConn(transport.ConnConfig{
		Endpoint:         config.EndpointURL,
		Headers:          config.Headers,
		TokenProvider:    config.TokenProvider,
		KeepAlive:        keepAlive,
		StatefulResume:   config.StatefulResume,
		ResumeBufferSize: config.ResumeBufferSize,
		Logger:           logger,
	})

	return NewWithConnection(config, conn, logger)
}

// NewWithConnection creates a Supervisor around an existing connection.
// The Supervisor takes exclusive ownership of the connection: the caller
// must not call Connect or Disconnect on it afterwards.
func NewWithConnection(config Config, conn transport.Connection, logger hublog.Logger) (*Supervisor, error) {
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = hublog.NoopLogger{}
	}

	// Jitter stays on its default so synchronized clients spread their
	// retries instead of reconnecting in lockstep.
	policy := backoff.NewExponentialWithConfig(backoff.Config{
		Base:   config.InitialRetryDelay,
		Jitter: backoff.DefaultJitter,
	})
	executor := retry.NewExecutor(policy, config.MaxRetryAttempts)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		config:          config,
		conn:            conn,
		logger:          logger,
		policy:          policy,
		executor:        executor,
		lifecycleCtx:    ctx,
		lifecycleCancel: cancel,
	}

	// A competing success makes further attempts pointless.
	executor.SetProbe(func() bool {
		return conn.State() == transport.StateConnected
	})

	conn.SetClosedHandler(s.handleClosed)
	conn.SetReconnectingHandler(s.handleReconnecting)
	conn.SetReconnectedHandler(s.handleReconnected)

	return s, nil
}

// State returns the connection state.
func (s *Supervisor) State() transport.State {
	return s.conn.State()
}

// ConnectionID returns the current session's connection ID.
func (s *Supervisor) ConnectionID() string {
	return s.conn.ConnectionID()
}

// Start establishes the connection, retrying with backoff up to the
// configured budget. Exhaustion is reported only through the
// RetriesExhausted callback; Start returns nil in that case. A cancelled
// context is returned as its error. No-op after Close.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.closed.Load() {
		return nil
	}

	err := s.runCycle(ctx)
	switch {
	case err == nil:
		s.verifyConnected()
		return nil

	case errors.Is(err, retry.ErrRetriesExhausted):
		if !s.closed.Load() {
			s.invokeCallback("retries exhausted", func() {
				if s.config.OnRetriesExhausted != nil {
					s.config.OnRetriesExhausted()
				}
			})
		}
		return nil

	default:
		// Cancellation. Disposal mid-cycle is a clean exit.
		if s.closed.Load() {
			return nil
		}
		return err
	}
}

// Stop disconnects gracefully and cancels any in-flight reconnection
// cycle. The connection can be started again later. No-op after Close.
func (s *Supervisor) Stop(ctx context.Context) error {
	if s.closed.Load() {
		return nil
	}

	s.cancelCycle()
	return s.conn.Disconnect(ctx)
}

// Close disposes the Supervisor: unsubscribes from transport events,
// cancels in-flight reconnection, and disconnects. Idempotent; every
// later operation is a no-op.
func (s *Supervisor) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.conn.SetClosedHandler(nil)
	s.conn.SetReconnectingHandler(nil)
	s.conn.SetReconnectedHandler(nil)

	s.lifecycleCancel()
	s.cancelCycle()

	ctx, cancel := context.WithTimeout(context.Background(), closeDisconnectTimeout)
	defer cancel()
	return s.conn.Disconnect(ctx)
}

// runCycle executes one connect cycle through the retry executor. The
// cycle is cancelled by the caller's ctx, by Stop, or by Close.
func (s *Supervisor) runCycle(ctx context.Context) error {
	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	release := context.AfterFunc(s.lifecycleCtx, cancel)
	defer release()

	s.cycleMu.Lock()
	s.cycleCancel = cancel
	s.cycleMu.Unlock()
	defer func() {
		s.cycleMu.Lock()
		s.cycleCancel = nil
		s.cycleMu.Unlock()
	}()

	return s.executor.Execute(cycleCtx, s.connect, s.onAttemptFailure)
}

func (s *Supervisor) connect(ctx context.Context) error {
	err := s.conn.Connect(ctx)
	if errors.Is(err, transport.ErrAlreadyConnected) {
		return nil
	}
	return err
}

func (s *Supervisor) onAttemptFailure(err error, delay time.Duration, attempt int) {
	s.logger.Log(hublog.NewRetry(s.conn.ConnectionID(), attempt, delay, err))
}

// cancelCycle aborts the cycle currently inside the retry executor.
func (s *Supervisor) cancelCycle() {
	s.cycleMu.Lock()
	cancel := s.cycleCancel
	s.cycleMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// verifyConnected logs a warning when a nominally successful cycle left
// the transport in an unexpected state. Observability only, not fatal.
func (s *Supervisor) verifyConnected() {
	if state := s.conn.State(); state != transport.StateConnected {
		s.logger.Log(hublog.NewWarning(s.conn.ConnectionID(),
			fmt.Sprintf("connect cycle succeeded but transport reports %s", state)))
	}
}

// handleClosed runs on every transport closure. A nil error means a
// deliberate local disconnect; only unexpected closures trigger the
// reconnection path.
func (s *Supervisor) handleClosed(err error) {
	if s.closed.Load() {
		return
	}

	s.invokeCallback("closed", func() {
		if s.config.OnClosed != nil {
			s.config.OnClosed(err)
		}
	})

	if err == nil {
		return
	}

	// Concurrent closure notifications collapse into one cycle.
	if !s.reconnecting.CompareAndSwap(false, true) {
		return
	}

	go s.runReconnect()
}

// runReconnect owns the reconnection gate until the cycle finishes.
func (s *Supervisor) runReconnect() {
	defer s.reconnecting.Store(false)

	if s.closed.Load() {
		return
	}

	err := s.runCycle(s.lifecycleCtx)
	switch {
	case err == nil:
		s.verifyConnected()

	case errors.Is(err, retry.ErrRetriesExhausted):
		if s.closed.Load() {
			return
		}
		s.logger.Log(hublog.NewError(s.conn.ConnectionID(), err.Error()))
		s.invokeCallback("retries exhausted", func() {
			if s.config.OnRetriesExhausted != nil {
				s.config.OnRetriesExhausted()
			}
		})

	default:
		// Cancelled by Stop or Close; nothing to report.
	}
}

func (s *Supervisor) handleReconnecting(err error) {
	if s.closed.Load() {
		return
	}
	s.invokeCallback("reconnecting", func() {
		if s.config.OnReconnecting != nil {
			s.config.OnReconnecting(err)
		}
	})
}

func (s *Supervisor) handleReconnected(connectionID string) {
	if s.closed.Load() {
		return
	}
	s.invokeCallback("reconnected", func() {
		if s.config.OnReconnected != nil {
			s.config.OnReconnected(connectionID)
		}
	})
}

// invokeCallback runs a caller callback. A panicking callback is logged
// and contained; it never unwinds into the supervisor.
func (s *Supervisor) invokeCallback(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Log(hublog.NewError(s.conn.ConnectionID(),
				fmt.Sprintf("%s callback panicked: %v", name, r)))
		}
	}()
	fn()
}
