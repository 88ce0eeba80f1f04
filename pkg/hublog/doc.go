// Package hublog provides structured logging for hub connection lifecycle
// events.
//
// Applications receive events through the Logger interface and decide how
// to render or persist them. The package ships four implementations:
//
//   - NoopLogger: discards everything (logging disabled)
//   - SlogAdapter: renders events through a log/slog logger
//   - MultiLogger: fans events out to several loggers
//   - FileLogger: appends CBOR-encoded events to a capture file
//
// Capture files are read back with Reader, optionally filtered by
// connection ID, category, or time range.
package hublog
