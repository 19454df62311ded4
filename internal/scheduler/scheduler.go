// Package scheduler drains per-function queues: tickOnce dequeues one
// task, dispatches it, and applies the retry/terminal rule (spec.md
// §4.F), with no lock held across the dispatch I/O. A background
// worker loop wakes on the queue manager's signaled-function set and
// on a fallback poll tick, mirroring the poller/ticker/notify-channel
// shape of the teacher's asyncqueue worker pool.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/oriys/nova/internal/dispatch"
	"github.com/oriys/nova/internal/domain"
	"github.com/oriys/nova/internal/execstore"
	"github.com/oriys/nova/internal/logging"
	"github.com/oriys/nova/internal/metrics"
	"github.com/oriys/nova/internal/queue"
)

// Registry is the minimal read-only lookup the scheduler needs; it is
// satisfied by an immutable snapshot of the function registry
// captured at tick start.
type Registry interface {
	Lookup(name string) (domain.FunctionSpec, bool)
}

// Scheduler drains one function's queue at a time via TickOnce, and
// optionally runs a background loop over all registered functions.
type Scheduler struct {
	queues   *queue.Manager
	store    *execstore.Store
	router   *dispatch.Router
	registry Registry
	metrics  *metrics.Metrics
}

func New(queues *queue.Manager, store *execstore.Store, router *dispatch.Router, registry Registry, m *metrics.Metrics) *Scheduler {
	return &Scheduler{queues: queues, store: store, router: router, registry: registry, metrics: m}
}

// TickOnce implements spec.md §4.F exactly:
//  1. dequeue under the queue lock, release immediately;
//  2. look up the spec in the immutable registry snapshot;
//  3. dispatch with no lock held across the I/O;
//  4. reacquire the store (map-level, not a held mutex across steps)
//     and apply success/retry/terminal.
//
// Returns (dispatched, error). dispatched is false only when the
// queue was empty; a missing spec or exhausted retries still counts
// as dispatched=true (the task was taken and a terminal state was
// written).
func (s *Scheduler) TickOnce(ctx context.Context, name string) (bool, error) {
	task, ok := s.queues.TakeNext(name)
	if !ok {
		return false, nil
	}

	spec, ok := s.registry.Lookup(name)
	if !ok {
		logging.Op().Warn("scheduler: dropping task for unknown function", "function", name, "executionId", task.ExecutionID)
		return true, domain.NewError(domain.ErrNotFound, "function %q not found", name)
	}

	dispatchStart := time.Now()
	result := s.router.Dispatch(ctx, spec, task.Payload, task.ExecutionID)
	durationMs := time.Since(dispatchStart).Milliseconds()
	s.recordDispatchMetrics(name, task, dispatchStart, result)

	logging.Default().Log(&logging.RequestLog{
		ExecutionID: task.ExecutionID,
		Function:    name,
		Dispatcher:  string(spec.ExecutionMode),
		Status:      string(result.Status),
		DurationMs:  durationMs,
		ColdStart:   result.ColdStart,
		Success:     result.Status == domain.StatusSuccess,
		InputSize:   len(task.Payload),
		OutputSize:  len(result.Output),
		Retries:     task.Attempt,
	})

	record, found := s.store.Get(task.ExecutionID)
	if !found {
		// Record was evicted mid-flight; nothing to update.
		return true, nil
	}

	if result.Status == domain.StatusSuccess {
		record.Status = domain.StatusSuccess
		record.Output = result.Output
		s.store.PutNow(record)
		s.recordE2E(name, record)
		return true, nil
	}

	maxRetries := spec.EffectiveMaxRetries()
	if task.Attempt < maxRetries {
		retryTask := domain.InvocationTask{
			ExecutionID: task.ExecutionID,
			Payload:     task.Payload,
			Attempt:     task.Attempt + 1,
		}
		if err := s.queues.EnqueueWithCapacity(name, retryTask, spec.EffectiveQueueCapacity()); err == nil {
			record.Status = domain.StatusQueued
			record.Output = nil
			record.Task = retryTask
			s.store.PutNow(record)
			return true, nil
		}
	}

	record.Status = domain.StatusError
	record.Output = result.Output
	s.store.PutNow(record)
	s.recordE2E(name, record)
	return true, nil
}

// SyncConcurrency applies name's current configured concurrency to its
// queue's slot semaphore. The worker calls this before every
// TryAcquireSlot so a concurrency change on an already-registered
// function takes effect on the next drain, not just at registration.
func (s *Scheduler) SyncConcurrency(name string) {
	spec, ok := s.registry.Lookup(name)
	if !ok {
		return
	}
	s.queues.SetConcurrency(name, spec.EffectiveConcurrency())
}

func (s *Scheduler) recordDispatchMetrics(name string, task domain.InvocationTask, dispatchStart time.Time, result dispatch.Result) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncCounter(metrics.DispatchTotal, name, 1)
	s.metrics.RecordTimer(metrics.FunctionLatencyMs, name, float64(time.Since(dispatchStart).Milliseconds()))
	if result.Status == domain.StatusSuccess {
		s.metrics.IncCounter(metrics.SuccessTotal, name, 1)
	}
}

// recordE2E records the time between when the task's execution
// record was first created and when it reached a terminal state, the
// queueing-plus-retries-plus-dispatch latency a caller of :enqueue
// experiences end to end.
func (s *Scheduler) recordE2E(name string, record domain.ExecutionRecord) {
	if s.metrics == nil {
		return
	}
	elapsed := time.Now().UnixMilli() - record.CreatedAtMillis
	if elapsed < 0 {
		elapsed = 0
	}
	s.metrics.RecordTimer(metrics.E2ELatencyMs, name, float64(elapsed))
}

// Worker runs a background loop: it wakes whenever the queue manager
// signals a function has work, drains one task per signaled function
// per wake (releasing/reacquiring the concurrency slot around the
// dispatch), and also polls on a fallback interval in case a signal
// was missed.
type Worker struct {
	sched        *Scheduler
	queues       *queue.Manager
	pollInterval time.Duration
	functions    func() []string

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewWorker builds a background drain loop. functions returns the
// current set of registered function names to poll as a fallback to
// the signaled-function wake set.
func NewWorker(sched *Scheduler, queues *queue.Manager, pollInterval time.Duration, functions func() []string) *Worker {
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}
	return &Worker{
		sched:        sched,
		queues:       queues,
		pollInterval: pollInterval,
		functions:    functions,
		stopCh:       make(chan struct{}),
	}
}

// Start launches the background loop.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the background loop to exit and waits for it.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.drainSignaled(ctx)
			w.drainAll(ctx)
		}
	}
}

func (w *Worker) drainSignaled(ctx context.Context) {
	for _, name := range w.queues.TakeSignaledFunctions() {
		w.drainOne(ctx, name)
	}
}

func (w *Worker) drainAll(ctx context.Context) {
	if w.functions == nil {
		return
	}
	for _, name := range w.functions() {
		w.drainOne(ctx, name)
	}
}

func (w *Worker) drainOne(ctx context.Context, name string) {
	w.sched.SyncConcurrency(name)
	if !w.queues.TryAcquireSlot(name) {
		return
	}
	defer w.queues.ReleaseSlot(name)

	dispatched, err := w.sched.TickOnce(ctx, name)
	if err != nil {
		logging.Op().Warn("scheduler worker: tick failed", "function", name, "error", err)
	}
	if dispatched {
		logging.Op().Debug("scheduler worker: drained one task", "function", name)
	}
}
