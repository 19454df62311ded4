// Package ratelimit implements the control plane's admission-rate
// gate: a single fixed-window per-second counter shared across all
// invocations, with an optional distributed backend for multi-instance
// deployments.
package ratelimit

import "sync"

// sentinelWindow is a value windowStart can never take on from a real
// now/1000 computation, so the very first call to TryAcquireAt always
// triggers a window reset.
const sentinelWindow = ^uint64(0)

// RateLimiter is a fixed-window per-second admission counter: no
// smoothing, no token bucket, the window snaps to epoch seconds.
type RateLimiter struct {
	mu                sync.Mutex
	capacityPerSecond int
	usedInWindow      int
	windowStart       uint64
}

// NewRateLimiter constructs a limiter admitting up to capacityPerSecond
// calls per epoch second.
func NewRateLimiter(capacityPerSecond int) *RateLimiter {
	return &RateLimiter{
		capacityPerSecond: capacityPerSecond,
		windowStart:       sentinelWindow,
	}
}

// TryAcquireAt implements spec.md §4.A exactly: compute s = nowMillis /
// 1000; if s differs from the stored window, reset usedInWindow to 0
// BEFORE the capacity check — the reset must precede the check, or the
// first call of a new second is incorrectly rejected.
func (r *RateLimiter) TryAcquireAt(nowMillis int64) bool {
	s := uint64(nowMillis) / 1000

	r.mu.Lock()
	defer r.mu.Unlock()

	if s != r.windowStart {
		r.windowStart = s
		r.usedInWindow = 0
	}
	if r.usedInWindow >= r.capacityPerSecond {
		return false
	}
	r.usedInWindow++
	return true
}

// Capacity returns the configured per-second capacity.
func (r *RateLimiter) Capacity() int {
	return r.capacityPerSecond
}
