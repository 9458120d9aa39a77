// Package batch runs a configured number of independent replications
// concurrently and aggregates their results (spec §4.8).
//
// Breaker is adapted from the teacher's pkg/circuit.Breaker: that
// breaker tripped on consecutive remote-call failures to stop hammering
// a failing dependency, with a timeout-driven half-open recovery probe.
// A batch run has no remote dependency to recover from and no
// wall-clock to wait out — a replication failure means a
// simerrors.InvariantViolation or simerrors.NumericDomainError, which
// is deterministic and will recur on retry — so there is no
// half-open/closed recovery cycle, only closed and permanently
// tripped. Counters are atomic because replications run concurrently
// under errgroup (spec §5), unlike a Server or Node which the single
// dispatch goroutine owns exclusively.
package batch

import "sync/atomic"

// Breaker stops scheduling further replications after too many of them
// fail consecutively, isolating a systemic configuration problem from
// burning the rest of the batch (spec §4.8).
type Breaker struct {
	maxConsecutiveFailures int32
	consecutive            int32
	tripped                int32
}

// NewBreaker returns a Breaker that trips after maxConsecutiveFailures
// replications fail in a row, with no intervening success.
func NewBreaker(maxConsecutiveFailures int) *Breaker {
	return &Breaker{maxConsecutiveFailures: int32(maxConsecutiveFailures)}
}

// Allow reports whether a new replication may still be started.
func (b *Breaker) Allow() bool {
	return atomic.LoadInt32(&b.tripped) == 0
}

// RecordSuccess resets the consecutive-failure count.
func (b *Breaker) RecordSuccess() {
	atomic.StoreInt32(&b.consecutive, 0)
}

// RecordFailure increments the consecutive-failure count and trips the
// breaker if it has reached the configured threshold. Returns true if
// this call tripped the breaker.
func (b *Breaker) RecordFailure() bool {
	n := atomic.AddInt32(&b.consecutive, 1)
	if n >= b.maxConsecutiveFailures {
		return atomic.CompareAndSwapInt32(&b.tripped, 0, 1)
	}
	return false
}

// Tripped reports whether the breaker has tripped.
func (b *Breaker) Tripped() bool {
	return atomic.LoadInt32(&b.tripped) == 1
}
