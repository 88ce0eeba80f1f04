// Package transport defines the hub connection contract consumed by the
// supervisor and provides a websocket implementation of it.
//
// The supervisor in pkg/hub only depends on the Connection interface:
// Connect, Disconnect, a readable state, and three settable lifecycle
// handlers (closed, reconnecting, reconnected). Any transport satisfying
// that contract can be supervised; the websocket Conn in this package is
// the reference implementation.
//
// # Wire format
//
// Messages travel as CBOR-encoded envelopes over websocket binary frames.
// Envelope types cover handshake, data, ping/pong keepalive, graceful
// close, and session resume. Transport negotiation between streaming and
// polling modes happens outside this package.
//
// # Stateful resume
//
// When enabled, the connection keeps a bounded ring of sent data
// envelopes. After a reconnect it offers the previous connection ID in a
// resume envelope and replays the buffered envelopes, letting the server
// continue the prior session instead of starting fresh.
package transport
