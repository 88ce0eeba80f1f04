package backoff

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Defaults for the exponential policy.
const (
	// DefaultBase is the default delay unit for the first retry.
	DefaultBase = 1 * time.Second

	// MaxExponent caps the exponent applied to the base delay.
	MaxExponent = 30

	// DefaultJitter is the default upper bound (exclusive) of the random
	// addition applied to every delay.
	DefaultJitter = 1 * time.Second

	// maxDelay is the clamp for delays whose arithmetic would overflow.
	maxDelay = time.Duration(math.MaxInt64)
)

// Policy computes the wait before a retry attempt.
// Attempt numbers start at 1 for the first retry.
type Policy interface {
	Delay(attempt int) time.Duration
}

// Exponential is a Policy producing base*2^min(attempt,MaxExponent) plus a
// uniformly random jitter in [0, jitter). Safe for concurrent use.
type Exponential struct {
	mu     sync.Mutex
	base   time.Duration
	jitter time.Duration
	rng    *rand.Rand
}

// Config customizes an Exponential policy.
type Config struct {
	// Base is the delay unit; the first retry waits roughly 2*Base.
	Base time.Duration

	// Jitter is the exclusive upper bound of the random addition.
	// Zero selects DefaultJitter; a negative value disables jitter.
	// Jitter is always on by default so synchronized clients do not
	// retry in lockstep.
	Jitter time.Duration
}

// NewExponential creates an Exponential policy with default settings.
func NewExponential() *Exponential {
	return NewExponentialWithConfig(Config{Base: DefaultBase, Jitter: DefaultJitter})
}

// NewExponentialWithConfig creates an Exponential policy with custom settings.
func NewExponentialWithConfig(cfg Config) *Exponential {
	if cfg.Base <= 0 {
		cfg.Base = DefaultBase
	}
	switch {
	case cfg.Jitter == 0:
		cfg.Jitter = DefaultJitter
	case cfg.Jitter < 0:
		cfg.Jitter = 0
	}
	return &Exponential{
		base:   cfg.Base,
		jitter: cfg.Jitter,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Delay returns the wait for the given attempt number.
// Attempts below 1 are treated as 1.
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exp := attempt
	if exp > MaxExponent {
		exp = MaxExponent
	}

	// Large bases overflow the shift well before the exponent cap.
	delay := e.base << uint(exp)
	if delay <= 0 || delay>>uint(exp) != e.base {
		delay = maxDelay
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.jitter > 0 {
		jitter := time.Duration(e.rng.Int63n(int64(e.jitter)))
		if delay > maxDelay-jitter {
			return maxDelay
		}
		delay += jitter
	}
	return delay
}

// Compile-time interface satisfaction check.
var _ Policy = (*Exponential)(nil)
