package idempotency

import (
	"testing"
	"time"
)

func TestPutIfAbsentReturnsExistingOnSecondCall(t *testing.T) {
	s := New(300 * time.Second)

	existing, inserted := s.PutIfAbsent("fn", "key1", "exec-1", 0)
	if !inserted || existing != "" {
		t.Fatalf("expected fresh insert, got existing=%q inserted=%v", existing, inserted)
	}

	existing, inserted = s.PutIfAbsent("fn", "key1", "exec-2", 100)
	if inserted || existing != "exec-1" {
		t.Fatalf("expected replay of exec-1, got existing=%q inserted=%v", existing, inserted)
	}
}

func TestGetExecutionIDExpiresLazily(t *testing.T) {
	s := New(200 * time.Millisecond)
	s.PutWithTimestamp("fn", "key1", "exec-1", 0)

	if _, ok := s.GetExecutionID("fn", "key1", 100); !ok {
		t.Fatalf("expected hit before TTL elapses")
	}
	if _, ok := s.GetExecutionID("fn", "key1", 500); ok {
		t.Fatalf("expected miss after TTL elapses")
	}
	if s.Size() != 0 {
		t.Fatalf("expected expired entry to be purged, size=%d", s.Size())
	}
}

func TestExpiryTieIsNotExpired(t *testing.T) {
	s := New(200 * time.Millisecond)
	s.PutWithTimestamp("fn", "key1", "exec-1", 0)

	if _, ok := s.GetExecutionID("fn", "key1", 200); !ok {
		t.Fatalf("expected storedAt+ttl == now to NOT be expired")
	}
}

func TestDifferentFunctionsDoNotShareKeys(t *testing.T) {
	s := New(time.Minute)
	s.PutWithTimestamp("fn-a", "key1", "exec-a", 0)

	if _, ok := s.GetExecutionID("fn-b", "key1", 0); ok {
		t.Fatalf("expected composite key to isolate functions")
	}
}
