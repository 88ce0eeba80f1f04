package hublog

import (
	"context"
	"log/slog"
)

// SlogAdapter writes lifecycle events to an slog.Logger.
// Useful for development when you want connection events in the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger.
// Errors log at Error level, warnings at Warn, everything else at Debug.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("category", event.Category.String()),
	}
	if event.ConnectionID != "" {
		attrs = append(attrs, slog.String("conn_id", event.ConnectionID))
	}
	if event.Endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", event.Endpoint))
	}

	level := slog.LevelDebug
	msg := "hub event"

	switch {
	case event.StateChange != nil:
		msg = "connection state changed"
		attrs = append(attrs,
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}

	case event.Retry != nil:
		msg = "connect attempt failed"
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.Int("attempt", event.Retry.Attempt),
			slog.Duration("delay", event.Retry.Delay),
		)
		if event.Retry.Cause != "" {
			attrs = append(attrs, slog.String("cause", event.Retry.Cause))
		}

	case event.Error != nil:
		msg = event.Error.Message
		if event.Error.Warning {
			level = slog.LevelWarn
		} else {
			level = slog.LevelError
		}
	}

	a.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
