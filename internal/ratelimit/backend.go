package ratelimit

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oriys/nova/internal/logging"
)

// Backend is a pluggable token-bucket check used by DistributedLimiter.
// It is a distinct abstraction from RateLimiter's fixed-window core:
// the core limiter (spec.md §4.A) always runs in-memory; Backend only
// backs the optional multi-instance extension described in
// SPEC_FULL.md's Domain Stack.
type Backend interface {
	CheckRateLimit(ctx context.Context, key string, maxTokens int, refillRate float64, requested int) (allowed bool, remaining int, err error)
}

// DistributedLimiter adapts a Backend to the same shape callers use for
// RateLimiter, so the invocation pipeline can be pointed at either
// without branching at every call site.
type DistributedLimiter struct {
	backend    Backend
	maxTokens  int
	refillRate float64
}

// NewDistributedLimiter builds a limiter backed by a pluggable Backend,
// admitting up to maxTokens burst at refillRate tokens/second.
func NewDistributedLimiter(backend Backend, maxTokens int, refillRate float64) *DistributedLimiter {
	return &DistributedLimiter{backend: backend, maxTokens: maxTokens, refillRate: refillRate}
}

// TryAcquireAt admits one call for key, ignoring nowMillis (the
// backend tracks its own clock); the parameter is kept so callers can
// swap a RateLimiter for a DistributedLimiter without changing call
// sites other than the key.
func (d *DistributedLimiter) TryAcquireAt(ctx context.Context, key string, _ int64) bool {
	allowed, _, err := d.backend.CheckRateLimit(ctx, key, d.maxTokens, d.refillRate, 1)
	if err != nil {
		logging.Op().Warn("distributed rate limit check failed, admitting by default", "error", err)
		return true
	}
	return allowed
}

// FallbackBackend wraps a primary Backend (typically Redis) with an
// in-memory local token bucket fallback. When the primary returns an
// error, it degrades to local rate limiting and periodically probes
// the primary to restore distributed behavior once it recovers.
type FallbackBackend struct {
	primary       Backend
	local         *LocalTokenBucketBackend
	degraded      atomic.Bool
	probeMu       sync.Mutex
	lastProbeTime atomic.Value // time.Time
}

// NewFallbackBackend creates a rate-limit backend that falls back to
// local in-memory token buckets when the primary backend errors.
func NewFallbackBackend(primary Backend) *FallbackBackend {
	fb := &FallbackBackend{primary: primary, local: NewLocalTokenBucketBackend()}
	fb.lastProbeTime.Store(time.Time{})
	return fb
}

const probeInterval = 5 * time.Second

func (f *FallbackBackend) CheckRateLimit(ctx context.Context, key string, maxTokens int, refillRate float64, requested int) (bool, int, error) {
	if f.degraded.Load() {
		if last, ok := f.lastProbeTime.Load().(time.Time); ok && time.Since(last) > probeInterval {
			go f.probeAndRecover(ctx)
		}
		return f.local.CheckRateLimit(ctx, key, maxTokens, refillRate, requested)
	}

	allowed, remaining, err := f.primary.CheckRateLimit(ctx, key, maxTokens, refillRate, requested)
	if err != nil {
		logging.Op().Warn("rate-limit primary backend error, degrading to local", "error", err)
		f.degraded.Store(true)
		f.lastProbeTime.Store(time.Now())
		return f.local.CheckRateLimit(ctx, key, maxTokens, refillRate, requested)
	}
	return allowed, remaining, nil
}

func (f *FallbackBackend) probeAndRecover(ctx context.Context) {
	if !f.probeMu.TryLock() {
		return
	}
	defer f.probeMu.Unlock()

	f.lastProbeTime.Store(time.Now())

	_, _, err := f.primary.CheckRateLimit(ctx, "nova:rl:probe:health", 1000, 1000, 0)
	if err == nil {
		logging.Op().Info("rate-limit primary backend recovered, resuming distributed mode")
		f.degraded.Store(false)
	}
}

// Degraded reports whether the backend is currently running in
// degraded (local) mode.
func (f *FallbackBackend) Degraded() bool {
	return f.degraded.Load()
}

// LocalTokenBucketBackend implements Backend using in-memory token
// buckets, used standalone in tests and as FallbackBackend's degrade
// target.
type LocalTokenBucketBackend struct {
	mu      sync.Mutex
	buckets map[string]*localBucket
}

type localBucket struct {
	tokens     float64
	lastRefill time.Time
}

func NewLocalTokenBucketBackend() *LocalTokenBucketBackend {
	return &LocalTokenBucketBackend{buckets: make(map[string]*localBucket)}
}

func (l *LocalTokenBucketBackend) CheckRateLimit(_ context.Context, key string, maxTokens int, refillRate float64, requested int) (bool, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		b = &localBucket{tokens: float64(maxTokens), lastRefill: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(float64(maxTokens), b.tokens+elapsed*refillRate)
		b.lastRefill = now
	}

	if b.tokens >= float64(requested) {
		b.tokens -= float64(requested)
		return true, int(b.tokens), nil
	}
	return false, int(b.tokens), nil
}

// KeyForFunction returns the rate limit key for a function name.
func KeyForFunction(name string) string {
	return "nova:rl:fn:" + name
}
