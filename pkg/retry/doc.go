// Package retry runs an operation repeatedly until it succeeds, its
// attempt budget is exhausted, or the context is cancelled.
//
// The executor makes no attempt to classify errors: every error returned
// by the operation is treated as retryable. Callers that need to
// distinguish fatal conditions do so above this layer.
//
// # Outcomes
//
// Execute returns one of three outcomes:
//
//   - nil: an attempt returned without error, or the probe reported the
//     operation already satisfied by another path.
//   - ErrRetriesExhausted: the final attempt failed. The last attempt
//     error is wrapped and available through errors.Is/As.
//   - the context error: cancellation fired during an attempt or a
//     backoff wait. The wait is abandoned immediately.
package retry
