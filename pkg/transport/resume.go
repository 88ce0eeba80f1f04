package transport

import "sync"

// DefaultResumeBufferSize is the default capacity of the resume buffer.
const DefaultResumeBufferSize = 64

// resumeBuffer keeps the most recently sent data envelopes so they can be
// replayed after a session resume. Oldest entries are evicted when the
// buffer is full.
type resumeBuffer struct {
	mu  sync.Mutex
	buf []Envelope
	cap int
}

func newResumeBuffer(capacity int) *resumeBuffer {
	if capacity <= 0 {
		capacity = DefaultResumeBufferSize
	}
	return &resumeBuffer{cap: capacity}
}

// Add records a sent envelope, evicting the oldest when full.
func (rb *resumeBuffer) Add(env Envelope) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(rb.buf) == rb.cap {
		copy(rb.buf, rb.buf[1:])
		rb.buf = rb.buf[:rb.cap-1]
	}
	rb.buf = append(rb.buf, env)
}

// Ack drops every buffered envelope with a sequence number at or below seq.
func (rb *resumeBuffer) Ack(seq uint64) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	keep := rb.buf[:0]
	for _, env := range rb.buf {
		if env.Seq > seq {
			keep = append(keep, env)
		}
	}
	rb.buf = keep
}

// Snapshot returns the buffered envelopes in send order.
func (rb *resumeBuffer) Snapshot() []Envelope {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]Envelope, len(rb.buf))
	copy(out, rb.buf)
	return out
}

// Len returns the number of buffered envelopes.
func (rb *resumeBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return len(rb.buf)
}
