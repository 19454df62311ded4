// Package queue implements the per-function bounded FIFO queue and
// in-flight slot semaphore the scheduler drains (spec.md §4.D), plus
// (via notifier.go) the wake signal a scheduler worker can subscribe
// to instead of waiting out its poll tick.
package queue

import (
	"container/list"
	"context"
	"sync"

	"github.com/oriys/nova/internal/domain"
)

// OverflowError is returned by EnqueueWithCapacity when the
// function's queue is already at capacity; the caller made no
// mutation to the queue or to any other state.
type OverflowError struct {
	Function string
	Capacity int
}

func (e *OverflowError) Error() string {
	return "queue overflow for function " + e.Function
}

type functionQueue struct {
	mu                   sync.Mutex
	tasks                *list.List // of domain.InvocationTask
	inFlight             int
	effectiveConcurrency int
}

// Manager holds one bounded FIFO + slot semaphore per function,
// created lazily on first reference, and a signaled-function wake
// set the scheduler drains each tick.
type Manager struct {
	notifier Notifier

	mu       sync.Mutex
	queues   map[string]*functionQueue
	signaled map[string]struct{}
	signalMu sync.Mutex
}

// NewManager constructs a Manager. notifier may be nil, in which case
// a NoopNotifier is used and callers must poll TakeSignaledFunctions.
func NewManager(notifier Notifier) *Manager {
	if notifier == nil {
		notifier = NewNoopNotifier()
	}
	return &Manager{
		notifier: notifier,
		queues:   make(map[string]*functionQueue),
		signaled: make(map[string]struct{}),
	}
}

func (m *Manager) queueFor(name string, concurrency int) *functionQueue {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[name]
	if !ok {
		if concurrency <= 0 {
			concurrency = 1
		}
		q = &functionQueue{tasks: list.New(), effectiveConcurrency: concurrency}
		m.queues[name] = q
	}
	return q
}

func (m *Manager) signal(name string) {
	m.signalMu.Lock()
	m.signaled[name] = struct{}{}
	m.signalMu.Unlock()
}

// TakeSignaledFunctions drains and returns the set of function names
// that transitioned empty->non-empty or released a slot while still
// non-empty since the last drain.
func (m *Manager) TakeSignaledFunctions() []string {
	m.signalMu.Lock()
	defer m.signalMu.Unlock()

	names := make([]string, 0, len(m.signaled))
	for name := range m.signaled {
		names = append(names, name)
	}
	m.signaled = make(map[string]struct{})
	return names
}

// EnqueueWithCapacity pushes task onto the function's FIFO under its
// per-function lock. On overflow (len >= capacity) it returns
// *OverflowError and makes NO mutation — callers must not have
// created any other visible state (e.g. an ExecutionRecord) before
// calling this, or must roll it back on overflow.
func (m *Manager) EnqueueWithCapacity(name string, task domain.InvocationTask, capacity int) error {
	if capacity < 1 {
		capacity = 1
	}
	q := m.queueFor(name, capacity)

	q.mu.Lock()
	wasEmpty := q.tasks.Len() == 0
	if q.tasks.Len() >= capacity {
		q.mu.Unlock()
		return &OverflowError{Function: name, Capacity: capacity}
	}
	q.tasks.PushBack(task)
	q.mu.Unlock()

	if wasEmpty {
		m.signal(name)
		_ = m.notifier.Notify(context.Background(), QueueType(name))
	}
	return nil
}

// TakeNext pops the front task for name, if any.
func (m *Manager) TakeNext(name string) (domain.InvocationTask, bool) {
	m.mu.Lock()
	q, ok := m.queues[name]
	m.mu.Unlock()
	if !ok {
		return domain.InvocationTask{}, false
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.tasks.Front()
	if front == nil {
		return domain.InvocationTask{}, false
	}
	q.tasks.Remove(front)
	return front.Value.(domain.InvocationTask), true
}

// TryAcquireSlot CAS-increments the in-flight counter for name iff it
// is below effectiveConcurrency (set on first reference via
// EnqueueWithCapacity/SetConcurrency). Concurrency for a function not
// yet referenced defaults to 1.
func (m *Manager) TryAcquireSlot(name string) bool {
	q := m.queueFor(name, 1)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inFlight >= q.effectiveConcurrency {
		return false
	}
	q.inFlight++
	return true
}

// ReleaseSlot decrements the in-flight counter for name. If the queue
// is still non-empty, the function is re-signaled so a worker picks
// up the next task.
func (m *Manager) ReleaseSlot(name string) {
	m.mu.Lock()
	q, ok := m.queues[name]
	m.mu.Unlock()
	if !ok {
		return
	}

	q.mu.Lock()
	if q.inFlight > 0 {
		q.inFlight--
	}
	stillNonEmpty := q.tasks.Len() > 0
	q.mu.Unlock()

	if stillNonEmpty {
		m.signal(name)
		_ = m.notifier.Notify(context.Background(), QueueType(name))
	}
}

// SetConcurrency sets the effective concurrency slot count for name,
// clamped to at least 1.
func (m *Manager) SetConcurrency(name string, concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q := m.queueFor(name, concurrency)
	q.mu.Lock()
	q.effectiveConcurrency = concurrency
	q.mu.Unlock()
}

// Len reports the current queue length for name.
func (m *Manager) Len(name string) int {
	m.mu.Lock()
	q, ok := m.queues[name]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.Len()
}

