package transport

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Envelope size limits.
const (
	// DefaultMaxEnvelopeSize is the default maximum encoded envelope size (64 KB).
	DefaultMaxEnvelopeSize = 65536
)

// Envelope errors.
var (
	// ErrEnvelopeTooLarge indicates the encoded envelope exceeds the maximum size.
	ErrEnvelopeTooLarge = errors.New("envelope too large")

	// ErrEnvelopeEmpty indicates an empty envelope buffer.
	ErrEnvelopeEmpty = errors.New("envelope is empty")
)

// EnvelopeType identifies the envelope's role on the hub channel.
type EnvelopeType uint8

const (
	// EnvelopeHandshake opens a fresh session.
	EnvelopeHandshake EnvelopeType = 1
	// EnvelopeHandshakeAck confirms a session; carries the connection ID.
	EnvelopeHandshakeAck EnvelopeType = 2
	// EnvelopeData carries an application message.
	EnvelopeData EnvelopeType = 3
	// EnvelopePing is a keepalive probe.
	EnvelopePing EnvelopeType = 4
	// EnvelopePong answers a ping, echoing its sequence number.
	EnvelopePong EnvelopeType = 5
	// EnvelopeClose announces a graceful close.
	EnvelopeClose EnvelopeType = 6
	// EnvelopeResume offers a previous connection ID to continue a session.
	EnvelopeResume EnvelopeType = 7
)

// String returns the envelope type name.
func (t EnvelopeType) String() string {
	switch t {
	case EnvelopeHandshake:
		return "HANDSHAKE"
	case EnvelopeHandshakeAck:
		return "HANDSHAKE_ACK"
	case EnvelopeData:
		return "DATA"
	case EnvelopePing:
		return "PING"
	case EnvelopePong:
		return "PONG"
	case EnvelopeClose:
		return "CLOSE"
	case EnvelopeResume:
		return "RESUME"
	default:
		return "UNKNOWN"
	}
}

// IsValid reports whether the type is a known envelope type.
func (t EnvelopeType) IsValid() bool {
	return t >= EnvelopeHandshake && t <= EnvelopeResume
}

// Envelope is the unit of exchange on the hub channel.
//
// CBOR encoding:
//
//	{
//	  1: type,          // uint8
//	  2: seq,           // uint64: ping/pong sequence or data envelope number
//	  3: connectionId,  // text: handshake ack / resume only
//	  4: payload        // bytes: data envelopes only
//	}
type Envelope struct {
	Type         EnvelopeType `cbor:"1,keyasint"`
	Seq          uint64       `cbor:"2,keyasint,omitempty"`
	ConnectionID string       `cbor:"3,keyasint,omitempty"`
	Payload      []byte       `cbor:"4,keyasint,omitempty"`
}

// Validate checks if the envelope is well-formed.
func (e *Envelope) Validate() error {
	if !e.Type.IsValid() {
		return fmt.Errorf("invalid envelope type: %d", e.Type)
	}
	if e.Type == EnvelopeResume && e.ConnectionID == "" {
		return fmt.Errorf("resume envelope requires a connection ID")
	}
	return nil
}

// encMode is the CBOR encoder mode for envelopes.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for envelopes.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create envelope CBOR encoder mode: %v", err))
	}

	// Lenient decoding for forward compatibility
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create envelope CBOR decoder mode: %v", err))
	}
}

// EncodeEnvelope encodes an envelope to CBOR bytes.
func EncodeEnvelope(env *Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	data, err := encMode.Marshal(env)
	if err != nil {
		return nil, err
	}
	if len(data) > DefaultMaxEnvelopeSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrEnvelopeTooLarge, len(data), DefaultMaxEnvelopeSize)
	}
	return data, nil
}

// DecodeEnvelope decodes CBOR bytes into an envelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	if len(data) == 0 {
		return nil, ErrEnvelopeEmpty
	}
	if len(data) > DefaultMaxEnvelopeSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrEnvelopeTooLarge, len(data), DefaultMaxEnvelopeSize)
	}
	var env Envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	return &env, nil
}
