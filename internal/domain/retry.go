// Package domain holds the scheduler's entities, ports, and the pure retry
// policy shared by the engine and its tests.
package domain

import "time"

// ShouldRetry reports whether a job that has been rescheduled retries times
// already is allowed another attempt.
func ShouldRetry(retries, maxRetries int) bool {
	return retries < maxRetries
}

// Backoff returns the next schedule time for a retry: baseDelayMinutes*2^retries
// minutes after t. The exponent is the job's retry count before the failed
// attempt, so with base 2 consecutive failures land at +2m, +4m, +8m from
// each prior schedule time. Anchoring to t (not wall clock) keeps the
// sequence deterministic under dispatch latency.
func Backoff(t time.Time, retries, baseDelayMinutes int) time.Time {
	return t.Add(time.Duration(baseDelayMinutes*(1<<retries)) * time.Minute)
}
