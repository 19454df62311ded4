package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oriys/nova/internal/admission"
	"github.com/oriys/nova/internal/dispatch"
	"github.com/oriys/nova/internal/domain"
	"github.com/oriys/nova/internal/execstore"
	"github.com/oriys/nova/internal/idempotency"
	"github.com/oriys/nova/internal/metrics"
	"github.com/oriys/nova/internal/queue"
	"github.com/oriys/nova/internal/ratelimit"
	"github.com/oriys/nova/internal/scheduler"
)

type fakeRegistry map[string]domain.FunctionSpec

func (f fakeRegistry) Lookup(name string) (domain.FunctionSpec, bool) {
	spec, ok := f[name]
	return spec, ok
}

func newTestPipeline(registry fakeRegistry, router *dispatch.Router) *Pipeline {
	return New(
		registry,
		ratelimit.NewRateLimiter(1000),
		admission.NewGateway(64),
		idempotency.New(time.Minute),
		execstore.New(time.Minute, time.Minute, time.Minute),
		queue.NewManager(queue.NewNoopNotifier()),
		router,
		metrics.New(),
	)
}

func TestInvokeSyncEcho(t *testing.T) {
	reg := fakeRegistry{"echo": {Name: "echo", Image: "local", ExecutionMode: domain.ModeDeployment}}
	router := dispatch.NewRouter(dispatch.NewLocalDispatcher(), dispatch.NewPoolDispatcher())
	// DEPLOYMENT with no endpoint falls through to the pool dispatcher,
	// which per spec still "succeeds by returning the payload" when no
	// endpoint is configured — see dispatch.PoolDispatcher.
	p := newTestPipeline(reg, router)

	resp, rej, err := p.Invoke(context.Background(), "echo", "", []byte(`"payload"`))
	if err != nil || rej != nil {
		t.Fatalf("unexpected rejection/error: rej=%v err=%v", rej, err)
	}
	if resp.Status != domain.StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s (output=%s)", resp.Status, resp.Output)
	}
}

func TestInvokeLocalModeEchoesPayloadOnly(t *testing.T) {
	reg := fakeRegistry{"echo": {Name: "echo", Image: "any", ExecutionMode: domain.ModeLocal}}
	router := dispatch.NewRouter(dispatch.NewLocalDispatcher(), dispatch.NewPoolDispatcher())
	p := newTestPipeline(reg, router)

	resp, rej, err := p.Invoke(context.Background(), "echo", "", []byte(`"payload"`))
	if err != nil || rej != nil {
		t.Fatalf("unexpected rejection/error: rej=%v err=%v", rej, err)
	}
	if resp.Status != domain.StatusSuccess || string(resp.Output) != `"payload"` {
		t.Fatalf("expected echoed payload, got status=%s output=%s", resp.Status, resp.Output)
	}
}

func TestInvokeIdempotentReplayReturnsSameExecutionID(t *testing.T) {
	reg := fakeRegistry{"echo": {Name: "echo", ExecutionMode: domain.ModeLocal}}
	router := dispatch.NewRouter(dispatch.NewLocalDispatcher(), dispatch.NewPoolDispatcher())
	p := newTestPipeline(reg, router)

	first, _, err := p.Invoke(context.Background(), "echo", "abc", []byte(`"x"`))
	if err != nil {
		t.Fatalf("first invoke: %v", err)
	}
	second, _, err := p.Invoke(context.Background(), "echo", "abc", []byte(`"x"`))
	if err != nil {
		t.Fatalf("second invoke: %v", err)
	}
	if first.ExecutionID != second.ExecutionID {
		t.Fatalf("expected identical executionId on replay, got %s vs %s", first.ExecutionID, second.ExecutionID)
	}
}

func TestInvokeSyncRejectEstWaitHint(t *testing.T) {
	reg := fakeRegistry{"f": {Name: "f", Image: "sync-reject-est-wait", ExecutionMode: domain.ModeLocal}}
	router := dispatch.NewRouter(dispatch.NewLocalDispatcher(), dispatch.NewPoolDispatcher())
	p := newTestPipeline(reg, router)

	_, rej, err := p.Invoke(context.Background(), "f", "", []byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rej == nil {
		t.Fatal("expected rejection")
	}
	if rej.QueueRejectReason != "est_wait" || rej.RetryAfterSeconds != 7 {
		t.Fatalf("expected reason=est_wait retryAfter=7, got %+v", rej)
	}
}

func TestInvokeUnknownFunctionNotFound(t *testing.T) {
	p := newTestPipeline(fakeRegistry{}, dispatch.NewRouter(dispatch.NewLocalDispatcher(), dispatch.NewPoolDispatcher()))

	_, rej, err := p.Invoke(context.Background(), "missing", "", []byte(`{}`))
	if err == nil || rej != nil {
		t.Fatalf("expected NOT_FOUND error, got rej=%v err=%v", rej, err)
	}
	derr, ok := err.(*domain.Error)
	if !ok || derr.Code != domain.ErrNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestEnqueueThenDrainOnceSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"ok"}`))
	}))
	defer srv.Close()

	reg := fakeRegistry{"worker": {Name: "worker", ExecutionMode: domain.ModePool, EndpointURL: srv.URL}}
	router := dispatch.NewRouter(dispatch.NewLocalDispatcher(), dispatch.NewPoolDispatcher())
	p := newTestPipeline(reg, router)

	resp, rej, err := p.Enqueue(context.Background(), "worker", "", []byte(`{}`))
	if err != nil || rej != nil {
		t.Fatalf("unexpected rejection/error: rej=%v err=%v", rej, err)
	}
	if resp.Status != domain.StatusQueued {
		t.Fatalf("expected QUEUED, got %s", resp.Status)
	}

	task, ok := p.queues.TakeNext("worker")
	if !ok {
		t.Fatal("expected a queued task")
	}
	result := p.router.Dispatch(context.Background(), reg["worker"], task.Payload, task.ExecutionID)
	if result.Status != domain.StatusSuccess {
		t.Fatalf("expected dispatch success, got %s", result.Status)
	}
	unknown, notFound := p.Complete(resp.ExecutionID, domain.StatusSuccess, result.Output)
	if unknown || notFound {
		t.Fatalf("unexpected complete failure: unknown=%v notFound=%v", unknown, notFound)
	}

	rec, found := p.store.Get(resp.ExecutionID)
	if !found || rec.Status != domain.StatusSuccess {
		t.Fatalf("expected stored SUCCESS record, got found=%v rec=%+v", found, rec)
	}
}

func TestEnqueueOverflowLeavesNoRecord(t *testing.T) {
	reg := fakeRegistry{"f": {Name: "f", ExecutionMode: domain.ModeLocal, QueueSize: 1}}
	router := dispatch.NewRouter(dispatch.NewLocalDispatcher(), dispatch.NewPoolDispatcher())
	p := newTestPipeline(reg, router)

	first, rej, err := p.Enqueue(context.Background(), "f", "", []byte(`{}`))
	if err != nil || rej != nil {
		t.Fatalf("first enqueue should succeed: rej=%v err=%v", rej, err)
	}

	second, rej, err := p.Enqueue(context.Background(), "f", "", []byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rej == nil {
		t.Fatal("expected overflow rejection")
	}
	if second.ExecutionID != "" {
		t.Fatalf("expected no executionId on rejected enqueue, got %q", second.ExecutionID)
	}
	if p.store.Size() != 1 {
		t.Fatalf("expected only the first record to be persisted, store size=%d", p.store.Size())
	}
	_ = first
}

// TestEnqueueAppliesConfiguredConcurrency confirms Enqueue doesn't just
// validate FunctionSpec.Concurrency at registration time and drop it:
// the queue manager's slot semaphore must actually reflect it.
func TestEnqueueAppliesConfiguredConcurrency(t *testing.T) {
	two := 2
	reg := fakeRegistry{"f": {Name: "f", ExecutionMode: domain.ModeLocal, QueueSize: 10, Concurrency: &two}}
	router := dispatch.NewRouter(dispatch.NewLocalDispatcher(), dispatch.NewPoolDispatcher())
	p := newTestPipeline(reg, router)

	if _, rej, err := p.Enqueue(context.Background(), "f", "", []byte(`{}`)); err != nil || rej != nil {
		t.Fatalf("unexpected rejection/error: rej=%v err=%v", rej, err)
	}

	if !p.queues.TryAcquireSlot("f") {
		t.Fatal("expected first slot to be acquired")
	}
	if !p.queues.TryAcquireSlot("f") {
		t.Fatal("expected second slot to be acquired under configured concurrency 2")
	}
	if p.queues.TryAcquireSlot("f") {
		t.Fatal("expected third slot to be refused under configured concurrency 2")
	}
}

// TestEnqueueThenSchedulerDrainRetriesThenTerminalError drives the real
// enqueue-then-drain path end to end: with maxRetries=2, the task is
// requeued once on the first drain and reaches a terminal ERROR on the
// second, with the same executionId preserved throughout.
func TestEnqueueThenSchedulerDrainRetriesThenTerminalError(t *testing.T) {
	reg := fakeRegistry{"broken": {Name: "broken", ExecutionMode: domain.ModePool, MaxRetries: 2, QueueSize: 10}}
	router := dispatch.NewRouter(dispatch.NewLocalDispatcher(), dispatch.NewPoolDispatcher())
	p := newTestPipeline(reg, router)
	sched := scheduler.New(p.queues, p.store, p.router, reg, nil)

	resp, rej, err := p.Enqueue(context.Background(), "broken", "", []byte(`{}`))
	if err != nil || rej != nil {
		t.Fatalf("unexpected rejection/error: rej=%v err=%v", rej, err)
	}
	if resp.Status != domain.StatusQueued {
		t.Fatalf("expected QUEUED, got %s", resp.Status)
	}
	executionID := resp.ExecutionID

	if _, err := sched.TickOnce(context.Background(), "broken"); err != nil {
		t.Fatalf("first drain: unexpected error: %v", err)
	}
	rec, ok := p.store.Get(executionID)
	if !ok || rec.Status != domain.StatusQueued {
		t.Fatalf("expected re-queued after first drain, got ok=%v status=%s", ok, rec.Status)
	}
	if rec.ExecutionID != executionID {
		t.Fatalf("expected same executionId after first drain, got %s", rec.ExecutionID)
	}

	if _, err := sched.TickOnce(context.Background(), "broken"); err != nil {
		t.Fatalf("second drain: unexpected error: %v", err)
	}
	rec, ok = p.store.Get(executionID)
	if !ok || rec.Status != domain.StatusError {
		t.Fatalf("expected terminal ERROR after second drain, got ok=%v status=%s", ok, rec.Status)
	}
	if rec.ExecutionID != executionID {
		t.Fatalf("expected same executionId after terminal error, got %s", rec.ExecutionID)
	}
}

func TestCompleteUnknownStatusAndMissingRecord(t *testing.T) {
	p := newTestPipeline(fakeRegistry{}, dispatch.NewRouter(dispatch.NewLocalDispatcher(), dispatch.NewPoolDispatcher()))

	unknown, notFound := p.Complete("missing-id", domain.ExecutionStatus("BOGUS"), nil)
	if !unknown {
		t.Fatal("expected unknownStatus=true for bogus status")
	}

	unknown, notFound = p.Complete("missing-id", domain.StatusSuccess, nil)
	if unknown || !notFound {
		t.Fatalf("expected notFound=true, got unknown=%v notFound=%v", unknown, notFound)
	}
}
