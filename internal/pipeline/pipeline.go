// Package pipeline implements InvocationPipeline (spec.md §4.G): the
// orchestrator that sits in front of admission control, idempotency,
// dispatch, and persistence for both the synchronous :invoke path and
// the asynchronous :enqueue path. Nothing in here holds a lock across
// a suspension point — every collaborator is called with its own
// narrow internal locking and returns an owned value.
package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/nova/internal/admission"
	"github.com/oriys/nova/internal/dispatch"
	"github.com/oriys/nova/internal/domain"
	"github.com/oriys/nova/internal/execstore"
	"github.com/oriys/nova/internal/idempotency"
	"github.com/oriys/nova/internal/logging"
	"github.com/oriys/nova/internal/metrics"
	"github.com/oriys/nova/internal/observability"
	"github.com/oriys/nova/internal/queue"
)

// SpecLookup is the read-only registry access the pipeline needs.
// internal/registry.Registry satisfies this.
type SpecLookup interface {
	Lookup(name string) (domain.FunctionSpec, bool)
}

// InvocationResponse is the wire-agnostic result of a successful
// invoke or enqueue call.
type InvocationResponse struct {
	ExecutionID string                 `json:"executionId"`
	Status      domain.ExecutionStatus `json:"status"`
	Output      json.RawMessage        `json:"output,omitempty"`
}

// Rejection carries the 429 shape (possibly empty) for a rejected
// sync invocation or a full async queue.
type Rejection struct {
	RetryAfterSeconds    int
	HasRetryAfter        bool
	QueueRejectReason    string
	HasQueueRejectReason bool
}

// Pipeline is InvocationPipeline: the component that wires the
// rate limiter, sync admission gateway, idempotency store, execution
// store, queue manager, and dispatcher router together.
type Pipeline struct {
	registry     SpecLookup
	rateLimiter  RateLimiter
	admission    *admission.Gateway
	idem         *idempotency.Store
	store        *execstore.Store
	queues       *queue.Manager
	router       *dispatch.Router
	metrics      *metrics.Metrics
	HintsEnabled bool

	seenMu sync.Mutex
	seen   map[string]struct{}
}

// RateLimiter is the subset of ratelimit.RateLimiter the pipeline
// depends on; narrowed to an interface so tests can substitute a
// fake without touching the real fixed-window implementation.
type RateLimiter interface {
	TryAcquireAt(nowMillis int64) bool
}

func New(
	registry SpecLookup,
	rateLimiter RateLimiter,
	gateway *admission.Gateway,
	idem *idempotency.Store,
	store *execstore.Store,
	queues *queue.Manager,
	router *dispatch.Router,
	m *metrics.Metrics,
) *Pipeline {
	return &Pipeline{
		registry:     registry,
		rateLimiter:  rateLimiter,
		admission:    gateway,
		idem:         idem,
		store:        store,
		queues:       queues,
		router:       router,
		metrics:      m,
		HintsEnabled: true,
		seen:         make(map[string]struct{}),
	}
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// Invoke runs the synchronous path: admission, idempotency, dispatch,
// persistence. The bool-valued *Rejection return is non-nil only for
// a 429; err is non-nil only for NOT_FOUND.
func (p *Pipeline) Invoke(ctx context.Context, name, idempotencyKey string, payload []byte) (InvocationResponse, *Rejection, error) {
	ctx, span := observability.StartSpan(ctx, "InvocationPipeline.Invoke", observability.AttrFunctionName.String(name))
	defer span.End()

	spec, ok := p.registry.Lookup(name)
	if !ok {
		err := domain.NewError(domain.ErrNotFound, "function %q not found", name)
		observability.SetSpanError(span, err)
		return InvocationResponse{}, nil, err
	}

	admitted, rej := p.admission.TryAdmit()
	if !admitted {
		p.rejectSync(name)
		retryAfter := int(rej.EstWaitMs/1000) + 1
		observability.SetSpanOK(span)
		return InvocationResponse{}, &Rejection{
			RetryAfterSeconds:    retryAfter,
			HasRetryAfter:        true,
			QueueRejectReason:    rej.Reason,
			HasQueueRejectReason: true,
		}, nil
	}
	defer p.admission.Release()

	if p.HintsEnabled {
		if hinted, matched := syntheticSyncReject(spec.Image); matched {
			p.rejectSync(name)
			observability.SetSpanOK(span)
			return InvocationResponse{}, &hinted, nil
		}
	}

	now := nowMillis()
	if !p.rateLimiter.TryAcquireAt(now) {
		p.rejectSync(name)
		observability.SetSpanOK(span)
		return InvocationResponse{}, &Rejection{}, nil
	}

	if idempotencyKey != "" {
		if existingID, hit := p.idem.GetExecutionID(name, idempotencyKey, now); hit {
			if rec, found := p.store.Get(existingID); found {
				observability.SetSpanOK(span)
				return responseFromRecord(rec), nil, nil
			}
		}
	}

	executionID := uuid.NewString()
	p.metrics.IncCounter(metrics.SyncQueueAdmitted, name, 1)
	waitStart := now
	p.metrics.RecordTimer(metrics.SyncQueueWaitSeconds, name, float64(nowMillis()-waitStart)/1000.0)

	dispatchStart := time.Now()
	result := p.router.Dispatch(ctx, spec, payload, executionID)
	latencyMs := float64(time.Since(dispatchStart).Milliseconds())

	p.metrics.IncCounter(metrics.DispatchTotal, name, 1)
	p.metrics.RecordTimer(metrics.FunctionLatencyMs, name, latencyMs)

	status := mapDispatchStatus(result.Status)
	if status == domain.StatusSuccess {
		p.metrics.IncCounter(metrics.SuccessTotal, name, 1)
	}

	isCold := p.recordColdStart(name, result)

	span.SetAttributes(
		observability.AttrRequestID.String(executionID),
		observability.AttrRuntime.String(string(spec.ExecutionMode)),
		observability.AttrColdStart.Bool(isCold),
		observability.AttrDurationMs.Float64(latencyMs),
	)

	record := domain.ExecutionRecord{
		ExecutionID:     executionID,
		FunctionName:    name,
		Status:          status,
		Output:          result.Output,
		CreatedAtMillis: now,
		Task:            domain.InvocationTask{ExecutionID: executionID, Payload: payload, Attempt: 1},
	}
	p.store.PutWithTimestamp(record, now)
	if idempotencyKey != "" {
		p.idem.PutIfAbsent(name, idempotencyKey, executionID, now)
	}

	logging.Default().Log(&logging.RequestLog{
		ExecutionID: executionID,
		TraceID:     observability.GetTraceID(ctx),
		SpanID:      observability.GetSpanID(ctx),
		Function:    name,
		Dispatcher:  string(spec.ExecutionMode),
		Status:      string(status),
		DurationMs:  int64(latencyMs),
		ColdStart:   isCold,
		Success:     status == domain.StatusSuccess,
		InputSize:   len(payload),
		OutputSize:  len(result.Output),
	})

	observability.SetSpanOK(span)
	return responseFromRecord(record), nil, nil
}

// Enqueue runs the asynchronous path: idempotency, queue admission,
// record creation. Per spec's no-visible-state-on-failure rule, a
// queue-full rejection writes nothing: the record is only persisted
// after a successful enqueue.
func (p *Pipeline) Enqueue(ctx context.Context, name, idempotencyKey string, payload []byte) (InvocationResponse, *Rejection, error) {
	_, span := observability.StartSpan(ctx, "InvocationPipeline.Enqueue", observability.AttrFunctionName.String(name))
	defer span.End()

	spec, ok := p.registry.Lookup(name)
	if !ok {
		err := domain.NewError(domain.ErrNotFound, "function %q not found", name)
		observability.SetSpanError(span, err)
		return InvocationResponse{}, nil, err
	}

	if spec.Image == hintAsyncUnavailable {
		err := domain.NewError(domain.ErrNotImplemented, "async dispatch unavailable for %q", name)
		observability.SetSpanError(span, err)
		return InvocationResponse{}, nil, err
	}

	now := nowMillis()
	if idempotencyKey != "" {
		if existingID, hit := p.idem.GetExecutionID(name, idempotencyKey, now); hit {
			if rec, found := p.store.Get(existingID); found {
				observability.SetSpanOK(span)
				return responseFromRecord(rec), nil, nil
			}
		}
	}

	executionID := uuid.NewString()
	span.SetAttributes(
		observability.AttrRequestID.String(executionID),
		observability.AttrRuntime.String(string(spec.ExecutionMode)),
	)
	task := domain.InvocationTask{ExecutionID: executionID, Payload: payload, Attempt: 1}
	capacity := spec.EffectiveQueueCapacity()

	p.queues.SetConcurrency(name, spec.EffectiveConcurrency())
	if err := p.queues.EnqueueWithCapacity(name, task, capacity); err != nil {
		observability.SetSpanOK(span)
		return InvocationResponse{}, &Rejection{}, nil
	}

	record := domain.ExecutionRecord{
		ExecutionID:     executionID,
		FunctionName:    name,
		Status:          domain.StatusQueued,
		CreatedAtMillis: now,
		Task:            task,
	}
	p.store.PutNow(record)
	if idempotencyKey != "" {
		p.idem.PutIfAbsent(name, idempotencyKey, executionID, now)
	}
	p.metrics.IncCounter(metrics.EnqueueTotal, name, 1)

	observability.SetSpanOK(span)
	return responseFromRecord(record), nil, nil
}

// Complete mutates the stored record to a terminal status and output,
// as posted by a function runtime (or the internal drain path).
// unknownStatus reports whether status was not a recognized
// ExecutionStatus value (maps to 400); notFound reports a missing
// execution id (maps to 404).
func (p *Pipeline) Complete(executionID string, status domain.ExecutionStatus, output []byte) (unknownStatus, notFound bool) {
	switch status {
	case domain.StatusQueued, domain.StatusRunning, domain.StatusSuccess, domain.StatusError, domain.StatusTimeout:
	default:
		return true, false
	}

	record, found := p.store.Get(executionID)
	if !found {
		return false, true
	}
	record.Status = status
	record.Output = output
	p.store.PutNow(record)
	return false, false
}

func (p *Pipeline) rejectSync(name string) {
	p.metrics.IncCounter(metrics.SyncQueueRejected, name, 1)
}

func (p *Pipeline) recordColdStart(name string, result dispatch.Result) bool {
	isCold := result.ColdStart

	p.seenMu.Lock()
	if _, seen := p.seen[name]; !seen {
		isCold = true
		p.seen[name] = struct{}{}
	}
	p.seenMu.Unlock()

	if isCold {
		p.metrics.IncCounter(metrics.ColdStartTotal, name, 1)
		if result.HasInitDuration {
			p.metrics.RecordTimer(metrics.InitDurationMs, name, float64(result.InitDurationMs))
		}
		return true
	}
	p.metrics.IncCounter(metrics.WarmStartTotal, name, 1)
	return false
}

func mapDispatchStatus(s domain.ExecutionStatus) domain.ExecutionStatus {
	switch s {
	case domain.StatusSuccess, domain.StatusTimeout:
		return s
	default:
		return domain.StatusError
	}
}

func responseFromRecord(rec domain.ExecutionRecord) InvocationResponse {
	resp := InvocationResponse{ExecutionID: rec.ExecutionID, Status: rec.Status}
	if len(rec.Output) > 0 {
		resp.Output = json.RawMessage(rec.Output)
	}
	return resp
}
