package hub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubwire-protocol/hubwire-go/pkg/hublog"
	"github.com/hubwire-protocol/hubwire-go/pkg/transport"
)

// fakeConn is a scriptable transport connection.
type fakeConn struct {
	mu              sync.Mutex
	state           transport.State
	connID          string
	connectFn       func(ctx context.Context) error
	silentSuccess   bool // succeed without reaching the Connected state
	connectCalls    atomic.Int32
	disconnectCalls atomic.Int32

	onClosed       func(error)
	onReconnecting func(error)
	onReconnected  func(string)
}

var _ transport.Connection = (*fakeConn)(nil)

func (f *fakeConn) Connect(ctx context.Context) error {
	f.connectCalls.Add(1)

	var err error
	if f.connectFn != nil {
		err = f.connectFn(ctx)
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	if !f.silentSuccess {
		f.state = transport.StateConnected
		f.connID = "fake-conn"
	}
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Disconnect(ctx context.Context) error {
	f.disconnectCalls.Add(1)

	f.mu.Lock()
	wasConnected := f.state == transport.StateConnected
	f.state = transport.StateDisconnected
	fn := f.onClosed
	f.mu.Unlock()

	if wasConnected && fn != nil {
		fn(nil)
	}
	return nil
}

func (f *fakeConn) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeConn) ConnectionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connID
}

func (f *fakeConn) SetClosedHandler(fn func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onClosed = fn
}

func (f *fakeConn) SetReconnectingHandler(fn func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onReconnecting = fn
}

func (f *fakeConn) SetReconnectedHandler(fn func(string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onReconnected = fn
}

// dropConnection simulates an unexpected transport closure.
func (f *fakeConn) dropConnection(err error) {
	f.mu.Lock()
	f.state = transport.StateDisconnected
	fn := f.onClosed
	f.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// eventRecorder collects logged events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []hublog.Event
}

func (r *eventRecorder) Log(event hublog.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) warnings() []hublog.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []hublog.Event
	for _, ev := range r.events {
		if ev.Error != nil && ev.Error.Warning {
			out = append(out, ev)
		}
	}
	return out
}

func fastConfig() Config {
	return Config{
		EndpointURL:       "wss://hub.test/wire",
		MaxRetryAttempts:  5,
		InitialRetryDelay: time.Millisecond,
	}
}

func newTestSupervisor(t *testing.T, cfg Config, conn *fakeConn) *Supervisor {
	t.Helper()
	s, err := NewWithConnection(cfg, conn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSupervisorRetryDelaysAreJittered(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialRetryDelay = time.Second
	s := newTestSupervisor(t, cfg, &fakeConn{})

	// The wired policy must spread retries: 2*base plus a random
	// addition below one second, varying between calls.
	lower := 2 * time.Second
	upper := lower + time.Second

	first := s.policy.Delay(1)
	varies := false
	for i := 0; i < 100; i++ {
		d := s.policy.Delay(1)
		require.GreaterOrEqual(t, d, lower)
		require.Less(t, d, upper)
		if d != first {
			varies = true
		}
	}
	assert.True(t, varies, "sampled retry delays never varied; jitter is inert")
}

func TestSupervisorStartFirstAttempt(t *testing.T) {
	conn := &fakeConn{}
	s := newTestSupervisor(t, fastConfig(), conn)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, transport.StateConnected, s.State())
	assert.Equal(t, int32(1), conn.connectCalls.Load())
}

func TestSupervisorStartSucceedsOnThirdAttempt(t *testing.T) {
	var calls atomic.Int32
	conn := &fakeConn{
		connectFn: func(ctx context.Context) error {
			if calls.Add(1) < 3 {
				return errors.New("connection refused")
			}
			return nil
		},
	}

	var exhausted atomic.Int32
	cfg := fastConfig()
	cfg.OnRetriesExhausted = func() { exhausted.Add(1) }

	s := newTestSupervisor(t, cfg, conn)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, transport.StateConnected, s.State())
	assert.Equal(t, int32(3), conn.connectCalls.Load())
	assert.Equal(t, int32(0), exhausted.Load(), "no exhaustion on eventual success")
}

func TestSupervisorStartExhaustion(t *testing.T) {
	conn := &fakeConn{
		connectFn: func(ctx context.Context) error {
			return errors.New("connection refused")
		},
	}

	var exhausted atomic.Int32
	cfg := fastConfig()
	cfg.MaxRetryAttempts = 2
	cfg.OnRetriesExhausted = func() { exhausted.Add(1) }

	s := newTestSupervisor(t, cfg, conn)

	// Exhaustion is reported via callback only; Start completes normally.
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, int32(3), conn.connectCalls.Load(), "first try plus two retries")
	assert.Equal(t, int32(1), exhausted.Load())
	assert.Equal(t, transport.StateDisconnected, s.State())
}

func TestSupervisorStartCancelDuringBackoff(t *testing.T) {
	attemptStarted := make(chan struct{}, 1)
	conn := &fakeConn{
		connectFn: func(ctx context.Context) error {
			select {
			case attemptStarted <- struct{}{}:
			default:
			}
			return errors.New("connection refused")
		},
	}

	var exhausted atomic.Int32
	cfg := fastConfig()
	cfg.InitialRetryDelay = time.Hour
	cfg.OnRetriesExhausted = func() { exhausted.Add(1) }

	s := newTestSupervisor(t, cfg, conn)

	ctx, cancel := context.WithCancel(context.Background())
	startErr := make(chan error, 1)
	go func() { startErr <- s.Start(ctx) }()

	<-attemptStarted
	cancel()

	select {
	case err := <-startErr:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
	assert.Equal(t, int32(1), conn.connectCalls.Load(), "no further attempt after cancel")
	assert.Equal(t, int32(0), exhausted.Load(), "cancellation is not exhaustion")
}

func TestSupervisorReconnectOnUnexpectedClosure(t *testing.T) {
	conn := &fakeConn{}

	var closedErrs []error
	var mu sync.Mutex
	cfg := fastConfig()
	cfg.OnClosed = func(err error) {
		mu.Lock()
		closedErrs = append(closedErrs, err)
		mu.Unlock()
	}

	s := newTestSupervisor(t, cfg, conn)
	require.NoError(t, s.Start(context.Background()))

	conn.dropConnection(errors.New("connection reset"))

	require.Eventually(t, func() bool {
		return s.State() == transport.StateConnected
	}, 2*time.Second, 5*time.Millisecond, "supervisor never reconnected")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, closedErrs, 1)
	assert.Error(t, closedErrs[0])
}

func TestSupervisorDeliberateDisconnectNoReconnect(t *testing.T) {
	conn := &fakeConn{}

	var closedErrs []error
	var mu sync.Mutex
	cfg := fastConfig()
	cfg.OnClosed = func(err error) {
		mu.Lock()
		closedErrs = append(closedErrs, err)
		mu.Unlock()
	}

	s := newTestSupervisor(t, cfg, conn)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	// Give a would-be reconnect goroutine time to run.
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(1), conn.connectCalls.Load(), "nil-error closure must not reconnect")
	assert.Equal(t, transport.StateDisconnected, s.State())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, closedErrs, 1)
	assert.NoError(t, closedErrs[0])
}

func TestSupervisorConcurrentClosuresSingleFlight(t *testing.T) {
	attemptStarted := make(chan struct{})
	release := make(chan struct{})
	var reconnectAttempts atomic.Int32
	firstConnect := true

	conn := &fakeConn{}
	conn.connectFn = func(ctx context.Context) error {
		if firstConnect {
			firstConnect = false
			return nil
		}
		reconnectAttempts.Add(1)
		close(attemptStarted)
		<-release
		return nil
	}

	s := newTestSupervisor(t, fastConfig(), conn)
	require.NoError(t, s.Start(context.Background()))

	// Two closure notifications for the same outage. The second must be
	// dropped by the gate.
	connErr := errors.New("connection reset")
	conn.dropConnection(connErr)
	conn.dropConnection(connErr)

	<-attemptStarted
	assert.True(t, s.reconnecting.Load(), "gate must be held while attempts are outstanding")
	close(release)

	require.Eventually(t, func() bool {
		return s.State() == transport.StateConnected
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return !s.reconnecting.Load()
	}, 2*time.Second, 5*time.Millisecond, "gate never released")

	assert.Equal(t, int32(1), reconnectAttempts.Load(), "concurrent closures must collapse into one cycle")
}

func TestSupervisorStopCancelsInFlightReconnect(t *testing.T) {
	attemptStarted := make(chan struct{}, 1)
	conn := &fakeConn{
		connectFn: func(ctx context.Context) error {
			select {
			case attemptStarted <- struct{}{}:
			default:
			}
			return errors.New("connection refused")
		},
	}

	var exhausted atomic.Int32
	cfg := fastConfig()
	cfg.InitialRetryDelay = time.Hour
	cfg.OnRetriesExhausted = func() { exhausted.Add(1) }

	s := newTestSupervisor(t, cfg, conn)

	conn.dropConnection(errors.New("connection reset"))
	<-attemptStarted

	require.NoError(t, s.Stop(context.Background()))

	require.Eventually(t, func() bool {
		return !s.reconnecting.Load()
	}, 2*time.Second, 5*time.Millisecond, "Stop did not cancel the reconnect cycle")

	assert.Equal(t, int32(1), conn.connectCalls.Load(), "no attempt after Stop")
	assert.Equal(t, int32(0), exhausted.Load(), "a cancelled cycle is not exhaustion")
}

func TestSupervisorReconnectExhaustion(t *testing.T) {
	conn := &fakeConn{
		connectFn: func(ctx context.Context) error {
			return errors.New("connection refused")
		},
	}

	var exhausted atomic.Int32
	cfg := fastConfig()
	cfg.MaxRetryAttempts = 1
	cfg.OnRetriesExhausted = func() { exhausted.Add(1) }

	s := newTestSupervisor(t, cfg, conn)

	conn.dropConnection(errors.New("connection reset"))

	// Each cycle may wait up to base plus jitter before its retry.
	require.Eventually(t, func() bool {
		return exhausted.Load() == 1
	}, 5*time.Second, 5*time.Millisecond, "exhaustion callback never fired")

	// The gate must be free so a later closure starts a fresh cycle.
	require.Eventually(t, func() bool {
		return !s.reconnecting.Load()
	}, 2*time.Second, 5*time.Millisecond)

	conn.dropConnection(errors.New("connection reset"))
	require.Eventually(t, func() bool {
		return exhausted.Load() == 2
	}, 5*time.Second, 5*time.Millisecond, "gate not reusable after exhaustion")
}

func TestSupervisorCloseIdempotent(t *testing.T) {
	conn := &fakeConn{}
	s := newTestSupervisor(t, fastConfig(), conn)
	require.NoError(t, s.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), conn.disconnectCalls.Load(), "teardown must run exactly once")
}

func TestSupervisorPostCloseNoOps(t *testing.T) {
	conn := &fakeConn{}

	var callbacks atomic.Int32
	cfg := fastConfig()
	cfg.OnClosed = func(error) { callbacks.Add(1) }
	cfg.OnReconnecting = func(error) { callbacks.Add(1) }
	cfg.OnReconnected = func(string) { callbacks.Add(1) }
	cfg.OnRetriesExhausted = func() { callbacks.Add(1) }

	s := newTestSupervisor(t, cfg, conn)
	require.NoError(t, s.Close())

	assert.NoError(t, s.Start(context.Background()))
	assert.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, int32(0), conn.connectCalls.Load(), "Start after Close must not connect")

	// Events delivered after disposal are dropped even if a stale handler
	// reference survives unsubscription.
	s.handleClosed(errors.New("late closure"))
	s.handleReconnecting(errors.New("late reconnecting"))
	s.handleReconnected("late-id")

	assert.Equal(t, int32(0), callbacks.Load(), "no callbacks after Close")
}

func TestSupervisorCallbackPanicContained(t *testing.T) {
	conn := &fakeConn{}

	cfg := fastConfig()
	cfg.OnClosed = func(error) { panic("listener bug") }

	recorder := &eventRecorder{}
	s, err := NewWithConnection(cfg, conn, recorder)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Start(context.Background()))
	conn.dropConnection(errors.New("connection reset"))

	// The panic is contained and the reconnection path still runs.
	require.Eventually(t, func() bool {
		return s.State() == transport.StateConnected
	}, 2*time.Second, 5*time.Millisecond, "reconnect blocked by panicking callback")
}

func TestSupervisorStateMismatchIsWarningOnly(t *testing.T) {
	conn := &fakeConn{silentSuccess: true}

	recorder := &eventRecorder{}
	s, err := NewWithConnection(fastConfig(), conn, recorder)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	// Connect reports success but the transport never reached Connected.
	require.NoError(t, s.Start(context.Background()))

	warnings := recorder.warnings()
	require.NotEmpty(t, warnings, "state mismatch must be observable")
	assert.Contains(t, warnings[0].Error.Message, "transport reports")
}

func TestNewWithConnectionValidates(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetryAttempts = -1
	_, err := NewWithConnection(cfg, &fakeConn{}, nil)
	assert.ErrorIs(t, err, ErrNegativeRetryBudget)
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrMissingEndpoint)
}
