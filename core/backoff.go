package core

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/linkmond/linkmond/state"
)

// newFlapBackoff returns a cenkalti/backoff/v4 ExponentialBackOff tuned to
// the spec §4.4 doubling-with-cap rule: Multiplier 2, no jitter (jitter
// would make invariant #5 - "active only once backoff has elapsed" -
// non-deterministic), and no elapsed-time cutoff (flap damping never gives
// up).
func newFlapBackoff(init, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = init
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// onFlap is the pure state-transition function from spec §9 Design Notes:
// "Backoff is a pure function (state, now) -> (active?, time-until-retry);
// it has no dependency on the dispatcher for testability." It is invoked
// once per interface state transition (up<->down). The doubling-with-cap
// math mirrors cenkalti/backoff/v4's own increment step, driven off the
// InitialInterval/MaxInterval/Multiplier of the config newFlapBackoff
// builds from BackoffInit/BackoffMax. The interface-sync retry loop in
// netlink_sync.go uses its own ExponentialBackOff (syncRetry), configured
// from SyncRetryInit/SyncRetryMax.
func onFlap(bs *state.BackoffState, now time.Time, init, max time.Duration) {
	cfg := newFlapBackoff(init, max)
	if bs.NextInterval <= 0 {
		bs.NextInterval = cfg.InitialInterval
	} else {
		next := time.Duration(float64(bs.NextInterval) * cfg.Multiplier)
		if next > cfg.MaxInterval {
			next = cfg.MaxInterval
		}
		bs.NextInterval = next
	}
	bs.BackoffRemaining = bs.NextInterval
	bs.LastEventTime = now
}

// tickBackoff recomputes BackoffRemaining given the current time, without
// mutating NextInterval. Returns true if the interface is still damped.
func tickBackoff(bs *state.BackoffState, now time.Time) bool {
	if bs.NextInterval <= 0 {
		return false
	}
	elapsed := now.Sub(bs.LastEventTime)
	remaining := bs.NextInterval - elapsed
	if remaining <= 0 {
		bs.BackoffRemaining = 0
		return false
	}
	bs.BackoffRemaining = remaining
	return true
}
