package transport

import (
	"bytes"
	"errors"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
	}{
		{"Handshake", Envelope{Type: EnvelopeHandshake}},
		{"HandshakeAck", Envelope{Type: EnvelopeHandshakeAck, ConnectionID: "conn-1", Seq: 7}},
		{"Data", Envelope{Type: EnvelopeData, Seq: 42, Payload: []byte("hello")}},
		{"Ping", Envelope{Type: EnvelopePing, Seq: 3}},
		{"Pong", Envelope{Type: EnvelopePong, Seq: 3}},
		{"Close", Envelope{Type: EnvelopeClose}},
		{"Resume", Envelope{Type: EnvelopeResume, ConnectionID: "conn-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeEnvelope(&tt.env)
			if err != nil {
				t.Fatalf("EncodeEnvelope failed: %v", err)
			}

			got, err := DecodeEnvelope(data)
			if err != nil {
				t.Fatalf("DecodeEnvelope failed: %v", err)
			}

			if got.Type != tt.env.Type || got.Seq != tt.env.Seq || got.ConnectionID != tt.env.ConnectionID {
				t.Errorf("round trip mismatch: got %+v, want %+v", got, tt.env)
			}
			if !bytes.Equal(got.Payload, tt.env.Payload) {
				t.Errorf("payload mismatch: got %q, want %q", got.Payload, tt.env.Payload)
			}
		})
	}
}

func TestEnvelopeDeterministicEncoding(t *testing.T) {
	env := Envelope{Type: EnvelopeData, Seq: 9, ConnectionID: "c", Payload: []byte{1, 2, 3}}

	a, err := EncodeEnvelope(&env)
	if err != nil {
		t.Fatalf("EncodeEnvelope failed: %v", err)
	}
	b, err := EncodeEnvelope(&env)
	if err != nil {
		t.Fatalf("EncodeEnvelope failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("encoding is not deterministic")
	}
}

func TestEnvelopeValidate(t *testing.T) {
	t.Run("InvalidType", func(t *testing.T) {
		env := Envelope{Type: EnvelopeType(99)}
		if _, err := EncodeEnvelope(&env); err == nil {
			t.Error("EncodeEnvelope accepted an invalid type")
		}
	})

	t.Run("ResumeWithoutConnectionID", func(t *testing.T) {
		env := Envelope{Type: EnvelopeResume}
		if _, err := EncodeEnvelope(&env); err == nil {
			t.Error("EncodeEnvelope accepted a resume envelope with no connection ID")
		}
	})
}

func TestEnvelopeSizeLimit(t *testing.T) {
	env := Envelope{Type: EnvelopeData, Seq: 1, Payload: make([]byte, DefaultMaxEnvelopeSize+1)}

	_, err := EncodeEnvelope(&env)
	if !errors.Is(err, ErrEnvelopeTooLarge) {
		t.Errorf("EncodeEnvelope error = %v, want ErrEnvelopeTooLarge", err)
	}
}

func TestDecodeEnvelopeErrors(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		if _, err := DecodeEnvelope(nil); !errors.Is(err, ErrEnvelopeEmpty) {
			t.Errorf("error = %v, want ErrEnvelopeEmpty", err)
		}
	})

	t.Run("Garbage", func(t *testing.T) {
		if _, err := DecodeEnvelope([]byte{0xff, 0xff, 0xff}); err == nil {
			t.Error("DecodeEnvelope accepted garbage input")
		}
	})
}

func TestEnvelopeTypeString(t *testing.T) {
	tests := []struct {
		typ  EnvelopeType
		want string
	}{
		{EnvelopeHandshake, "HANDSHAKE"},
		{EnvelopeHandshakeAck, "HANDSHAKE_ACK"},
		{EnvelopeData, "DATA"},
		{EnvelopePing, "PING"},
		{EnvelopePong, "PONG"},
		{EnvelopeClose, "CLOSE"},
		{EnvelopeResume, "RESUME"},
		{EnvelopeType(0), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("EnvelopeType(%d).String() = %q, want %q", tt.typ, got, tt.want)
		}
	}
}
