// Package backoff computes retry delays for reconnection attempts.
//
// The default policy is exponential with jitter:
//
//	delay = base * 2^min(attempt, 30) + random(0, jitter)
//
// With the default base of 1 second this yields 2s, 4s, 8s, ... capped at
// 2^30 seconds. The exponent cap bounds the shift against overflow and
// absurd waits; the jitter spreads simultaneous clients apart so they do
// not retry in lockstep after a shared outage.
package backoff
