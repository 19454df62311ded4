package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/oriys/nova/internal/domain"
	"github.com/oriys/nova/internal/execstore"
	"github.com/oriys/nova/internal/logging"
	"github.com/oriys/nova/internal/metrics"
	"github.com/oriys/nova/internal/observability"
	"github.com/oriys/nova/internal/pipeline"
	"github.com/oriys/nova/internal/registry"
	"github.com/oriys/nova/internal/scheduler"
)

type handler struct {
	registry  *registry.Registry
	pipeline  *pipeline.Pipeline
	scheduler *scheduler.Scheduler
	metrics   *metrics.Metrics
	store     *execstore.Store
	scaler    registry.ScalingMetricsSource
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

func (h *handler) prometheus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(h.metrics.ToPrometheusText()))
}

func (h *handler) createFunction(w http.ResponseWriter, r *http.Request) {
	var spec domain.FunctionSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeValidationError(w, "request body is not valid JSON")
		return
	}
	created, err := h.registry.Create(spec)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) listFunctions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.List())
}

func (h *handler) getFunction(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	spec, err := h.registry.Get(name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

func (h *handler) deleteFunction(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.registry.Delete(name); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) setReplicas(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var body struct {
		Replicas int `json:"replicas"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeValidationError(w, "request body is not valid JSON")
		return
	}
	spec, err := h.registry.SetReplicas(h.scaler, name, body.Replicas)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"function": spec.Name, "replicas": spec.Replicas})
}

// functionAction handles POST /v1/functions/{name}:invoke and
// POST /v1/functions/{name}:enqueue, the only two actions spec.md §6
// defines on this route.
func (h *handler) functionAction(w http.ResponseWriter, r *http.Request) {
	name, action, ok := splitRightmostColon(r.PathValue("nameAction"))
	if !ok {
		writeValidationError(w, "expected {name}:{action}")
		return
	}

	var req struct {
		Input json.RawMessage `json:"input"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeValidationError(w, "request body is not valid JSON")
			return
		}
	}
	idempotencyKey := r.Header.Get("Idempotency-Key")

	switch action {
	case "invoke":
		resp, rej, err := h.pipeline.Invoke(r.Context(), name, idempotencyKey, req.Input)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if rej != nil {
			writeRejection(w, rej)
			return
		}
		w.Header().Set("X-Execution-Id", resp.ExecutionID)
		writeJSON(w, http.StatusOK, resp)
	case "enqueue":
		resp, rej, err := h.pipeline.Enqueue(r.Context(), name, idempotencyKey, req.Input)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if rej != nil {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("X-Execution-Id", resp.ExecutionID)
		writeJSON(w, http.StatusAccepted, resp)
	default:
		writeDomainError(w, domain.NewError(domain.ErrNotFound, "unknown action %q", action))
	}
}

func (h *handler) getExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, found := h.store.Get(id)
	if !found {
		writeDomainError(w, domain.NewError(domain.ErrNotFound, "execution %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, toExecutionView(rec))
}

// executionView is ExecutionRecord's wire shape: output is embedded as
// raw JSON rather than the base64 string encoding/json would give a
// bare []byte field, and absent output is omitted rather than null.
type executionView struct {
	ExecutionID     string                 `json:"executionId"`
	FunctionName    string                 `json:"functionName"`
	Status          domain.ExecutionStatus `json:"status"`
	Output          json.RawMessage        `json:"output,omitempty"`
	CreatedAtMillis int64                  `json:"createdAtMillis"`
}

func toExecutionView(rec domain.ExecutionRecord) executionView {
	v := executionView{
		ExecutionID:     rec.ExecutionID,
		FunctionName:    rec.FunctionName,
		Status:          rec.Status,
		CreatedAtMillis: rec.CreatedAtMillis,
	}
	if len(rec.Output) > 0 {
		v.Output = json.RawMessage(rec.Output)
	}
	return v
}

// internalDrainOnce handles POST /v1/internal/functions/{name}:drain-once,
// the test-harness hook that ticks the scheduler once for a function
// without waiting on the background worker loop.
func (h *handler) internalDrainOnce(w http.ResponseWriter, r *http.Request) {
	name, action, ok := splitRightmostColon(r.PathValue("nameAction"))
	if !ok || action != "drain-once" {
		writeValidationError(w, "expected {name}:drain-once")
		return
	}
	dispatched, err := h.scheduler.TickOnce(r.Context(), name)
	if err != nil {
		logging.OpWithTrace(observability.GetTraceID(r.Context()), observability.GetSpanID(r.Context())).
			Warn("drain-once failed", "function", name, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"dispatched": dispatched})
}

// internalComplete handles POST /v1/internal/executions/{id}:complete,
// the callback a function runtime (or test harness) posts to once an
// async dispatch finishes.
func (h *handler) internalComplete(w http.ResponseWriter, r *http.Request) {
	id, action, ok := splitRightmostColon(r.PathValue("idAction"))
	if !ok || action != "complete" {
		writeValidationError(w, "expected {id}:complete")
		return
	}

	var body struct {
		Status domain.ExecutionStatus `json:"status"`
		Output json.RawMessage        `json:"output,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeValidationError(w, "request body is not valid JSON")
		return
	}

	unknown, notFound := h.pipeline.Complete(id, body.Status, body.Output)
	if unknown {
		writeValidationError(w, "unknown execution status")
		return
	}
	if notFound {
		writeDomainError(w, domain.NewError(domain.ErrNotFound, "execution %q not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeValidationError(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":   string(domain.ErrValidation),
		"details": []string{detail},
	})
}

func writeDomainError(w http.ResponseWriter, err error) {
	derr, ok := err.(*domain.Error)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": string(domain.ErrInternal)})
		return
	}
	status := httpStatusForCode(derr.Code)
	body := map[string]any{"error": string(derr.Code)}
	if len(derr.Details) > 0 {
		body["details"] = derr.Details
	}
	writeJSON(w, status, body)
}

func httpStatusForCode(code domain.ErrorCode) int {
	switch code {
	case domain.ErrValidation:
		return http.StatusBadRequest
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrConflict:
		return http.StatusConflict
	case domain.ErrTooManyRequests:
		return http.StatusTooManyRequests
	case domain.ErrNotImplemented:
		return http.StatusNotImplemented
	case domain.ErrScalerUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeRejection(w http.ResponseWriter, rej *pipeline.Rejection) {
	if rej.HasRetryAfter {
		w.Header().Set("Retry-After", strconv.Itoa(rej.RetryAfterSeconds))
	}
	if rej.HasQueueRejectReason {
		w.Header().Set("X-Queue-Reject-Reason", rej.QueueRejectReason)
	}
	w.WriteHeader(http.StatusTooManyRequests)
}
