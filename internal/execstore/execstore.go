// Package execstore holds in-memory ExecutionRecords behind a 3-tier
// TTL eviction policy and a background janitor that applies it
// periodically. Records are never durably persisted: spec.md treats
// crash-safety as an explicit non-goal for the control plane core.
package execstore

import (
	"context"
	"sync"
	"time"

	"github.com/oriys/nova/internal/domain"
	"github.com/oriys/nova/internal/logging"
)

type stored struct {
	record    domain.ExecutionRecord
	createdAt int64
}

// Store is the execution id -> record map with three TTL regimes.
type Store struct {
	ttlMillis        int64
	cleanupTTLMillis int64
	staleTTLMillis   int64

	mu      sync.Mutex
	records map[string]*stored
}

// New constructs a Store with the three TTL tiers from spec.md §4.C:
// ttl < cleanupTtl is NOT required by construction, but ttl is the
// "remove" threshold, cleanupTtl the "scrub payload" threshold, and
// staleTtl the "remove regardless of status" threshold.
func New(ttl, cleanupTTL, staleTTL time.Duration) *Store {
	return &Store{
		ttlMillis:        ttl.Milliseconds(),
		cleanupTTLMillis: cleanupTTL.Milliseconds(),
		staleTTLMillis:   staleTTL.Milliseconds(),
		records:          make(map[string]*stored),
	}
}

// PutWithTimestamp sets record.CreatedAtMillis = now and inserts or
// replaces the stored entry.
func (s *Store) PutWithTimestamp(record domain.ExecutionRecord, now int64) {
	record.CreatedAtMillis = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ExecutionID] = &stored{record: record, createdAt: now}
}

// PutNow is PutWithTimestamp using the system clock.
func (s *Store) PutNow(record domain.ExecutionRecord) {
	s.PutWithTimestamp(record, time.Now().UnixMilli())
}

// Get returns an independent copy of the stored record.
func (s *Store) Get(id string) (domain.ExecutionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.records[id]
	if !ok {
		return domain.ExecutionRecord{}, false
	}
	return st.record.Snapshot(), true
}

// Remove deletes the record for id, if any.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
}

func saturatingSub(now, createdAt int64) int64 {
	if now < createdAt {
		return 0
	}
	return now - createdAt
}

// EvictExpired applies the 3-tier eviction rule (spec.md §4.C) to
// every stored record as of now. Rules are evaluated top-down per
// record: stale records are removed unconditionally; terminal records
// past ttl are removed; terminal records past cleanupTtl have their
// payload/output scrubbed and CleanedUp set; everything else is kept.
func (s *Store) EvictExpired(now int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, st := range s.records {
		age := saturatingSub(now, st.createdAt)

		switch {
		case age > s.staleTTLMillis:
			delete(s.records, id)
		case age > s.ttlMillis && st.record.Status.IsTerminal():
			delete(s.records, id)
		case age > s.cleanupTTLMillis && st.record.Status.IsTerminal():
			st.record.Output = nil
			st.record.Task.Payload = nil
			st.record.CleanedUp = true
		default:
			// keep as-is
		}
	}
}

// Size reports the number of records currently stored.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// RunJanitor evicts expired records every interval until ctx is
// canceled. A zero or negative interval is clamped to 1ms to avoid a
// busy-spinning ticker. Mirrors the teacher's background-sweep
// goroutine shape (internal/store's cache TTL sweep and
// internal/asyncqueue's poller loop): a ticker, a select on ctx.Done,
// no lock held across the sleep.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.EvictExpired(time.Now().UnixMilli())
			logging.Op().Debug("execution store janitor swept", "remaining", s.Size())
		}
	}
}
