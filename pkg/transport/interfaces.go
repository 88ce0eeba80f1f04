package transport

import "context"

// Connection is the hub transport contract consumed by the supervisor.
// Implemented by Conn.
//
// Handler setters replace the previous handler; passing nil unsubscribes.
// Implementations must tolerate handler changes while events are firing.
type Connection interface {
	// Connect establishes the connection.
	Connect(ctx context.Context) error

	// Disconnect closes the connection gracefully.
	Disconnect(ctx context.Context) error

	// State returns the current connection state.
	State() State

	// ConnectionID returns the ID of the current session, or "" when
	// no session has been established yet.
	ConnectionID() string

	// SetClosedHandler registers the handler invoked when the connection
	// closes. The error is nil for a locally requested disconnect.
	SetClosedHandler(fn func(err error))

	// SetReconnectingHandler registers the handler invoked when the
	// transport begins a resume handshake.
	SetReconnectingHandler(fn func(err error))

	// SetReconnectedHandler registers the handler invoked when a resume
	// handshake succeeds, with the new connection ID.
	SetReconnectedHandler(fn func(connectionID string))
}

// Compile-time interface satisfaction check.
var _ Connection = (*Conn)(nil)
