package ratelimit

import (
	"context"
	"testing"
)

func TestRateLimiterBoundaryWithinOneSecond(t *testing.T) {
	rl := NewRateLimiter(2)

	got := []bool{
		rl.TryAcquireAt(0),
		rl.TryAcquireAt(0),
		rl.TryAcquireAt(0),
		rl.TryAcquireAt(1000),
	}
	want := []bool{true, true, false, true}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRateLimiterBoundaryAcrossWindows(t *testing.T) {
	rl := NewRateLimiter(2)

	calls := []int64{0, 500, 999, 1000, 1001, 1002}
	want := []bool{true, true, false, true, true, false}

	for i, ms := range calls {
		if got := rl.TryAcquireAt(ms); got != want[i] {
			t.Fatalf("call %d (ms=%d): got %v, want %v", i, ms, got, want[i])
		}
	}
}

func TestRateLimiterFirstCallAlwaysResetsWindow(t *testing.T) {
	rl := NewRateLimiter(0)
	// Capacity 0 would reject unconditionally once a window is
	// established, but the sentinel must not itself look like a
	// saturated window on the very first call of all time.
	if rl.windowStart != sentinelWindow {
		t.Fatalf("expected sentinel windowStart before first call")
	}
	rl.TryAcquireAt(12345)
	if rl.windowStart == sentinelWindow {
		t.Fatalf("expected windowStart to be set after first call")
	}
}

func TestDistributedLimiterFallsBackOnBackendError(t *testing.T) {
	local := NewLocalTokenBucketBackend()
	dl := NewDistributedLimiter(local, 1, 1.0)
	ctx := context.Background()
	if !dl.TryAcquireAt(ctx, "fn", 0) {
		t.Fatalf("expected first call to be admitted")
	}
}
