// Package idempotency implements the (function, client key) -> execution
// id cache that lets clients safely retry a request within a TTL window
// and get back the original execution instead of a new one.
package idempotency

import (
	"sync"
	"time"
)

type entry struct {
	executionID string
	storedAt    int64
}

// Store maps composite (functionName, key) pairs to execution ids,
// honoring a single TTL. Entries are lazily purged on access; an
// expired entry is indistinguishable from a missing one.
type Store struct {
	ttlMillis int64

	mu      sync.Mutex
	entries map[string]entry
}

// New constructs a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		ttlMillis: ttl.Milliseconds(),
		entries:   make(map[string]entry),
	}
}

func compose(name, key string) string {
	return name + ":" + key
}

func (s *Store) expired(e entry, now int64) bool {
	return e.storedAt+s.ttlMillis < now
}

// GetExecutionID looks up the binding for (name, key) as of now. A
// found-but-expired entry is removed and reported as a miss; ties
// (storedAt + ttl == now) are NOT expired.
func (s *Store) GetExecutionID(name, key string, now int64) (string, bool) {
	k := compose(name, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[k]
	if !ok {
		return "", false
	}
	if s.expired(e, now) {
		delete(s.entries, k)
		return "", false
	}
	return e.executionID, true
}

// PutWithTimestamp unconditionally overwrites the binding for
// (name, key).
func (s *Store) PutWithTimestamp(name, key, executionID string, now int64) {
	k := compose(name, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[k] = entry{executionID: executionID, storedAt: now}
}

// PutIfAbsent inserts executionID for (name, key) iff there is no
// unexpired entry, returning ("", true) on a fresh insert or the
// existing execution id and false if one already bound the key.
func (s *Store) PutIfAbsent(name, key, executionID string, now int64) (existing string, inserted bool) {
	k := compose(name, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[k]; ok && !s.expired(e, now) {
		return e.executionID, false
	}
	s.entries[k] = entry{executionID: executionID, storedAt: now}
	return "", true
}

// Size reports the number of entries currently stored, including any
// not yet lazily expired.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
