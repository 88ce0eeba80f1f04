package hublog

import "time"

// Event represents a hub connection lifecycle event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID).
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Category classifies the event type.
	Category Category `cbor:"3,keyasint"`

	// Endpoint is the hub endpoint URL.
	Endpoint string `cbor:"4,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	StateChange *StateChangeEvent `cbor:"5,keyasint,omitempty"` // Lifecycle transitions
	Retry       *RetryEvent       `cbor:"6,keyasint,omitempty"` // Failed connect attempts
	Error       *ErrorEvent       `cbor:"7,keyasint,omitempty"` // Errors and warnings
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryLifecycle indicates a connection state transition.
	CategoryLifecycle Category = 0
	// CategoryRetry indicates a retry attempt or retry outcome.
	CategoryRetry Category = 1
	// CategoryTransport indicates a transport-level event (keepalive, close).
	CategoryTransport Category = 2
	// CategoryError indicates an error or warning event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryLifecycle:
		return "LIFECYCLE"
	case CategoryRetry:
		return "RETRY"
	case CategoryTransport:
		return "TRANSPORT"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures a connection lifecycle transition.
type StateChangeEvent struct {
	// OldState is the state before the transition.
	OldState string `cbor:"1,keyasint"`

	// NewState is the state after the transition.
	NewState string `cbor:"2,keyasint"`

	// Reason describes what caused the transition.
	Reason string `cbor:"3,keyasint,omitempty"`
}

// RetryEvent captures a failed connect attempt and the wait that follows.
type RetryEvent struct {
	// Attempt is the 1-based retry number.
	Attempt int `cbor:"1,keyasint"`

	// Delay is the backoff wait before the next attempt (nanoseconds).
	Delay time.Duration `cbor:"2,keyasint"`

	// Cause is the attempt error text.
	Cause string `cbor:"3,keyasint,omitempty"`
}

// ErrorEvent captures an error or warning at any layer.
type ErrorEvent struct {
	// Message is the error text.
	Message string `cbor:"1,keyasint"`

	// Warning marks observability events that are not failures.
	Warning bool `cbor:"2,keyasint,omitempty"`
}

// NewStateChange builds a lifecycle transition event.
func NewStateChange(connID, oldState, newState, reason string) Event {
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Category:     CategoryLifecycle,
		StateChange: &StateChangeEvent{
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	}
}

// NewRetry builds a retry attempt event.
func NewRetry(connID string, attempt int, delay time.Duration, cause error) Event {
	ev := Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Category:     CategoryRetry,
		Retry: &RetryEvent{
			Attempt: attempt,
			Delay:   delay,
		},
	}
	if cause != nil {
		ev.Retry.Cause = cause.Error()
	}
	return ev
}

// NewError builds an error event.
func NewError(connID, message string) Event {
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Category:     CategoryError,
		Error:        &ErrorEvent{Message: message},
	}
}

// NewWarning builds a warning event.
func NewWarning(connID, message string) Event {
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Category:     CategoryError,
		Error:        &ErrorEvent{Message: message, Warning: true},
	}
}
