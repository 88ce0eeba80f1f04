package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hubwire-protocol/hubwire-go/pkg/hublog"
)

// Connection defaults.
const (
	// DefaultConnectTimeout is the default dial + handshake timeout.
	DefaultConnectTimeout = 30 * time.Second

	// handshakeReadTimeout bounds the wait for the server's handshake ack.
	handshakeReadTimeout = 10 * time.Second
)

// Connection errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrKeepAliveTimeout = errors.New("keepalive timeout")
	ErrHandshakeFailed  = errors.New("handshake failed")
)

// TokenProvider supplies a bearer token for the connection handshake.
// Called on every connect attempt so expired tokens can be refreshed.
type TokenProvider func(ctx context.Context) (string, error)

// ConnConfig configures a websocket hub connection.
type ConnConfig struct {
	// Endpoint is the hub URL (ws:// or wss://).
	Endpoint string

	// Headers are added to the websocket upgrade request.
	Headers map[string]string

	// TokenProvider supplies the Authorization bearer token. Optional.
	TokenProvider TokenProvider

	// TLSConfig is used for wss endpoints. Optional.
	TLSConfig *tls.Config

	// ConnectTimeout bounds dial plus upgrade (default: 30s).
	ConnectTimeout time.Duration

	// KeepAlive configures liveness monitoring.
	KeepAlive KeepAliveConfig

	// StatefulResume keeps sent envelopes so a reconnect can continue
	// the previous session instead of starting fresh.
	StatefulResume bool

	// ResumeBufferSize is the resume buffer capacity (default: 64).
	ResumeBufferSize int

	// Logger receives transport events. Nil disables logging.
	Logger hublog.Logger
}

// Conn is a websocket hub connection.
//
// Conn is owned by a single supervisor: Connect and Disconnect must not be
// called concurrently with each other. Event handlers and Send are safe
// from any goroutine.
type Conn struct {
	config ConnConfig
	logger hublog.Logger
	resume *resumeBuffer

	mu            sync.Mutex
	state         State
	ws            *websocket.Conn
	connID        string
	prevConnID    string
	ka            *keepAlive
	sessionCancel context.CancelFunc
	closedRaised  bool
	deliberate    bool
	dataSeq       uint64

	writeMu sync.Mutex

	handlerMu      sync.Mutex
	onClosed       func(error)
	onReconnecting func(error)
	onReconnected  func(string)
	onMessage      func([]byte)
}

// NewConn creates a websocket hub connection. The connection is not
// established until Connect is called.
func NewConn(config ConnConfig) *Conn {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = hublog.NoopLogger{}
	}

	c := &Conn{
		config: config,
		logger: logger,
		state:  StateDisconnected,
	}
	if config.StatefulResume {
		c.resume = newResumeBuffer(config.ResumeBufferSize)
	}
	return c
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionID returns the current session's connection ID.
func (c *Conn) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

// SetClosedHandler registers the closed event handler. Nil unsubscribes.
func (c *Conn) SetClosedHandler(fn func(err error)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.onClosed = fn
}

// SetReconnectingHandler registers the reconnecting event handler. Nil unsubscribes.
func (c *Conn) SetReconnectingHandler(fn func(err error)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.onReconnecting = fn
}

// SetReconnectedHandler registers the reconnected event handler. Nil unsubscribes.
func (c *Conn) SetReconnectedHandler(fn func(connectionID string)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.onReconnected = fn
}

// SetMessageHandler registers the handler for incoming data payloads.
// Nil unsubscribes.
func (c *Conn) SetMessageHandler(fn func(payload []byte)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.onMessage = fn
}

// Connect dials the endpoint, performs the envelope handshake, and starts
// the read loop and keepalive. When stateful resume is enabled and a prior
// session exists, a resume handshake is attempted instead of a fresh one.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return ErrAlreadyConnected
	case StateConnecting, StateReconnecting, StateDisconnecting:
		c.mu.Unlock()
		return fmt.Errorf("connect rejected: connection is %s", c.state)
	}
	resuming := c.config.StatefulResume && c.prevConnID != ""
	prevID := c.prevConnID
	if resuming {
		c.state = StateReconnecting
	} else {
		c.state = StateConnecting
	}
	c.mu.Unlock()

	if resuming {
		c.raiseReconnecting(nil)
	}

	ws, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	ack, err := c.handshake(ws, resuming, prevID)
	if err != nil {
		ws.Close()
		c.setState(StateDisconnected)
		return err
	}

	connID := ack.ConnectionID
	if connID == "" {
		// Server left assignment to the client.
		connID = uuid.NewString()
	}

	sessionCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.ws = ws
	c.connID = connID
	c.sessionCancel = cancel
	c.closedRaised = false
	c.deliberate = false
	oldState := c.state
	c.state = StateConnected
	c.ka = newKeepAlive(c.config.KeepAlive,
		c.sendPingEnvelope,
		func() { c.teardown(ErrKeepAliveTimeout) },
	)
	ka := c.ka
	c.mu.Unlock()

	c.logger.Log(hublog.NewStateChange(connID, oldState.String(), StateConnected.String(), "handshake complete"))

	if resuming {
		c.replayBuffered(ack.Seq)
		c.raiseReconnected(connID)
	}

	go c.readLoop(ws, ka)
	ka.Start(sessionCtx)

	return nil
}

// Disconnect closes the connection gracefully. The closed event fires with
// a nil error. No-op when not connected.
func (c *Conn) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateDisconnecting
	c.deliberate = true
	ws := c.ws
	c.mu.Unlock()

	// Best-effort close announcement; the teardown below is authoritative.
	if ws != nil {
		deadline := time.Now().Add(time.Second)
		if d, ok := ctx.Deadline(); ok {
			deadline = d
		}
		if data, err := EncodeEnvelope(&Envelope{Type: EnvelopeClose}); err == nil {
			c.writeMu.Lock()
			ws.SetWriteDeadline(deadline)
			ws.WriteMessage(websocket.BinaryMessage, data)
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			ws.SetWriteDeadline(time.Time{})
			c.writeMu.Unlock()
		}
	}

	c.teardown(nil)
	return nil
}

// Send transmits an application payload as a data envelope.
func (c *Conn) Send(payload []byte) error {
	c.mu.Lock()
	if c.state != StateConnected || c.ws == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	ws := c.ws
	c.dataSeq++
	seq := c.dataSeq
	c.mu.Unlock()

	env := Envelope{Type: EnvelopeData, Seq: seq, Payload: payload}
	if c.resume != nil {
		c.resume.Add(env)
	}
	return c.writeEnvelope(ws, &env)
}

// dial performs the websocket upgrade with headers and bearer token.
func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	for k, v := range c.config.Headers {
		header.Set(k, v)
	}
	if c.config.TokenProvider != nil {
		token, err := c.config.TokenProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("token provider: %w", err)
		}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.ConnectTimeout,
		TLSClientConfig:  c.config.TLSConfig,
	}
	ws, resp, err := dialer.DialContext(ctx, c.config.Endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", c.config.Endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", c.config.Endpoint, err)
	}
	return ws, nil
}

// handshake sends the opening envelope and waits for the server's ack.
func (c *Conn) handshake(ws *websocket.Conn, resuming bool, prevID string) (*Envelope, error) {
	open := &Envelope{Type: EnvelopeHandshake}
	if resuming {
		open = &Envelope{Type: EnvelopeResume, ConnectionID: prevID}
	}
	if err := c.writeEnvelope(ws, open); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	ws.SetReadDeadline(time.Now().Add(handshakeReadTimeout))
	defer ws.SetReadDeadline(time.Time{})

	_, data, err := ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	ack, err := DecodeEnvelope(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	if ack.Type != EnvelopeHandshakeAck {
		return nil, fmt.Errorf("%w: unexpected envelope %s", ErrHandshakeFailed, ack.Type)
	}
	return ack, nil
}

// replayBuffered resends envelopes the server has not acknowledged.
// ackedSeq is the last sequence number the server confirmed.
func (c *Conn) replayBuffered(ackedSeq uint64) {
	if c.resume == nil {
		return
	}
	c.resume.Ack(ackedSeq)

	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return
	}

	for _, env := range c.resume.Snapshot() {
		if err := c.writeEnvelope(ws, &env); err != nil {
			c.logger.Log(hublog.NewWarning(c.ConnectionID(),
				fmt.Sprintf("resume replay aborted: %v", err)))
			return
		}
	}
}

// readLoop consumes envelopes until the connection dies, then raises the
// closed event exactly once for the session.
func (c *Conn) readLoop(ws *websocket.Conn, ka *keepAlive) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			deliberate := c.deliberate
			c.mu.Unlock()
			if deliberate {
				// Local Disconnect already tears down with a nil error.
				return
			}
			c.teardown(err)
			return
		}

		env, err := DecodeEnvelope(data)
		if err != nil {
			c.logger.Log(hublog.NewWarning(c.ConnectionID(),
				fmt.Sprintf("dropping undecodable envelope: %v", err)))
			continue
		}

		switch env.Type {
		case EnvelopePong:
			ka.PongReceived(env.Seq)

		case EnvelopePing:
			pong := &Envelope{Type: EnvelopePong, Seq: env.Seq}
			if err := c.writeEnvelope(ws, pong); err != nil {
				c.logger.Log(hublog.NewWarning(c.ConnectionID(),
					fmt.Sprintf("pong send failed: %v", err)))
			}

		case EnvelopeData:
			c.handlerMu.Lock()
			fn := c.onMessage
			c.handlerMu.Unlock()
			if fn != nil {
				fn(env.Payload)
			}

		case EnvelopeHandshakeAck:
			// Mid-session ack: the server confirms receipt up to Seq.
			if c.resume != nil {
				c.resume.Ack(env.Seq)
			}

		case EnvelopeClose:
			c.teardown(errors.New("server closed the connection"))
			return

		default:
			c.logger.Log(hublog.NewWarning(c.ConnectionID(),
				fmt.Sprintf("ignoring envelope type %s", env.Type)))
		}
	}
}

// teardown ends the current session and raises the closed event once.
func (c *Conn) teardown(err error) {
	c.mu.Lock()
	if c.closedRaised {
		c.mu.Unlock()
		return
	}
	c.closedRaised = true
	ws := c.ws
	ka := c.ka
	cancel := c.sessionCancel
	c.ws = nil
	c.ka = nil
	c.sessionCancel = nil
	if c.deliberate {
		// A deliberate stop ends the session; the next connect starts fresh.
		c.prevConnID = ""
	} else {
		c.prevConnID = c.connID
	}
	oldState := c.state
	connID := c.connID
	c.connID = ""
	c.state = StateDisconnected
	c.mu.Unlock()

	if ka != nil {
		ka.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if ws != nil {
		ws.Close()
	}

	reason := "connection lost"
	if err == nil {
		reason = "disconnect requested"
	}
	c.logger.Log(hublog.NewStateChange(connID, oldState.String(), StateDisconnected.String(), reason))

	c.raiseClosed(err)
}

func (c *Conn) sendPingEnvelope(seq uint64) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}
	return c.writeEnvelope(ws, &Envelope{Type: EnvelopePing, Seq: seq})
}

func (c *Conn) writeEnvelope(ws *websocket.Conn, env *Envelope) error {
	data, err := EncodeEnvelope(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteMessage(websocket.BinaryMessage, data)
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Conn) raiseClosed(err error) {
	c.handlerMu.Lock()
	fn := c.onClosed
	c.handlerMu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (c *Conn) raiseReconnecting(err error) {
	c.handlerMu.Lock()
	fn := c.onReconnecting
	c.handlerMu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (c *Conn) raiseReconnected(connID string) {
	c.handlerMu.Lock()
	fn := c.onReconnected
	c.handlerMu.Unlock()
	if fn != nil {
		fn(connID)
	}
}
