// Package hub supervises the lifecycle of a persistent hub connection.
//
// The Supervisor owns a transport connection for its whole lifetime and
// reconciles the asynchronous signals acting on it (caller Start/Stop,
// transport closure, disposal) into one authoritative lifecycle. When the
// transport reports an unexpected closure, the Supervisor re-establishes
// the connection through a retry executor with exponential backoff, holding
// a single-flight gate so concurrent closure notifications collapse into
// one reconnection cycle.
//
// Connectivity is best-effort background state: retry exhaustion is
// reported through the RetriesExhausted callback, never as an error from
// Start.
package hub
