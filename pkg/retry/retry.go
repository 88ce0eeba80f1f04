package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hubwire-protocol/hubwire-go/pkg/backoff"
)

// ErrRetriesExhausted indicates the operation failed on every attempt the
// budget allowed.
var ErrRetriesExhausted = errors.New("retry attempts exhausted")

// AttemptFunc is the operation to retry.
type AttemptFunc func(ctx context.Context) error

// FailureFunc observes a failed attempt before the executor waits.
// attempt is the 1-based number of the failed attempt's retry slot and
// delay is the wait about to be taken.
type FailureFunc func(err error, delay time.Duration, attempt int)

// ProbeFunc reports whether the operation's goal is already met through
// another path. A true result short-circuits the executor.
type ProbeFunc func() bool

// Executor retries an operation with delays from a backoff policy.
type Executor struct {
	policy      backoff.Policy
	maxAttempts int
	probe       ProbeFunc
}

// NewExecutor creates an executor that invokes the operation up to
// maxAttempts+1 times (the first try plus maxAttempts retries).
func NewExecutor(policy backoff.Policy, maxAttempts int) *Executor {
	if policy == nil {
		policy = backoff.NewExponential()
	}
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	return &Executor{
		policy:      policy,
		maxAttempts: maxAttempts,
	}
}

// SetProbe installs a short-circuit probe checked before every attempt.
func (e *Executor) SetProbe(probe ProbeFunc) {
	e.probe = probe
}

// Execute runs op until it succeeds, the budget is exhausted, or ctx is
// cancelled. onFailure may be nil.
func (e *Executor) Execute(ctx context.Context, op AttemptFunc, onFailure FailureFunc) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		// A competing path may have already reached the goal; retrying
		// on top of it is pointless.
		if e.probe != nil && e.probe() {
			return nil
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		if attempt >= e.maxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt+1, err)
		}

		retryNumber := attempt + 1
		delay := e.policy.Delay(retryNumber)
		if onFailure != nil {
			onFailure(err, delay, retryNumber)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
