// Package dispatch implements the two invocation dispatchers
// (spec.md §4.E): LocalDispatcher, an in-process echo, and
// PoolDispatcher, an HTTP client speaking the small request/response
// protocol a function runtime exposes. DispatcherRouter chooses
// between them by the function's execution mode.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oriys/nova/internal/domain"
)

// Result is what a Dispatcher returns for one invocation attempt.
type Result struct {
	Status          domain.ExecutionStatus
	Output          []byte
	ColdStart       bool
	InitDurationMs  int64
	HasInitDuration bool
}

// Dispatcher sends one invocation to a function and waits for its
// outcome.
type Dispatcher interface {
	Dispatch(ctx context.Context, spec domain.FunctionSpec, payload []byte, executionID string) Result
}

// LocalDispatcher always succeeds, echoing the payload back
// unchanged. Used for ModeLocal and in tests; no I/O.
type LocalDispatcher struct{}

func NewLocalDispatcher() *LocalDispatcher { return &LocalDispatcher{} }

func (d *LocalDispatcher) Dispatch(_ context.Context, _ domain.FunctionSpec, payload []byte, _ string) Result {
	return Result{Status: domain.StatusSuccess, Output: payload}
}

// Router picks LocalDispatcher for ModeLocal and PoolDispatcher for
// ModeDeployment/ModePool. It holds owned references to both and is
// cheap to copy.
type Router struct {
	local *LocalDispatcher
	pool  *PoolDispatcher
}

func NewRouter(local *LocalDispatcher, pool *PoolDispatcher) *Router {
	return &Router{local: local, pool: pool}
}

func (r *Router) Dispatch(ctx context.Context, spec domain.FunctionSpec, payload []byte, executionID string) Result {
	switch spec.ExecutionMode {
	case domain.ModeLocal:
		return r.local.Dispatch(ctx, spec, payload, executionID)
	case domain.ModeDeployment:
		// A DEPLOYMENT function with no endpoint configured yet (still
		// provisioning, or never wired to a real runtime in this
		// control plane's scope) echoes like LOCAL rather than
		// surfacing POOL_ENDPOINT_MISSING; only an explicit POOL
		// function is required to have a live endpoint.
		if strings.TrimSpace(spec.EndpointURL) == "" {
			return r.local.Dispatch(ctx, spec, payload, executionID)
		}
		return r.pool.Dispatch(ctx, spec, payload, executionID)
	case domain.ModePool:
		return r.pool.Dispatch(ctx, spec, payload, executionID)
	default:
		return Result{
			Status: domain.StatusError,
			Output: errorOutput(domain.ErrPoolError, "unknown execution mode %q", spec.ExecutionMode),
		}
	}
}

// errorOutput wraps a taxonomy error code and message as the JSON
// output body an ExecutionRecord carries for a failed dispatch.
func errorOutput(code domain.ErrorCode, format string, args ...any) []byte {
	msg := (&domain.Error{Code: code, Message: fmt.Sprintf(format, args...)}).Error()
	b, _ := json.Marshal(map[string]string{"error": string(code), "message": msg})
	return b
}
