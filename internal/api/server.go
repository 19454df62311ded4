// Package api implements the control plane's HTTP surface (spec.md
// §6): function registry CRUD, the sync/async invocation endpoints,
// the internal drain/complete endpoints used by the scheduler's test
// harness, and the health/metrics actuator endpoints. Route table and
// JSON wire shapes only — all of the interesting behavior lives in
// internal/pipeline, internal/registry, and internal/scheduler.
package api

import (
	"net/http"

	"github.com/oriys/nova/internal/execstore"
	"github.com/oriys/nova/internal/logging"
	"github.com/oriys/nova/internal/metrics"
	"github.com/oriys/nova/internal/observability"
	"github.com/oriys/nova/internal/pipeline"
	"github.com/oriys/nova/internal/registry"
	"github.com/oriys/nova/internal/scheduler"
)

// ServerConfig holds the collaborators the HTTP layer dispatches into.
type ServerConfig struct {
	Registry  *registry.Registry
	Pipeline  *pipeline.Pipeline
	Scheduler *scheduler.Scheduler
	Store     *execstore.Store
	Metrics   *metrics.Metrics
	Scaler    registry.ScalingMetricsSource
}

// NewMux builds the control plane's http.Handler: every route from
// spec.md §6, wrapped in the OTel tracing middleware.
func NewMux(cfg ServerConfig) http.Handler {
	if cfg.Scaler == nil {
		cfg.Scaler = registry.NoopScalingMetricsSource
	}
	h := &handler{
		registry:  cfg.Registry,
		pipeline:  cfg.Pipeline,
		scheduler: cfg.Scheduler,
		metrics:   cfg.Metrics,
		store:     cfg.Store,
		scaler:    cfg.Scaler,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /actuator/health", h.health)
	mux.HandleFunc("GET /actuator/prometheus", h.prometheus)

	mux.HandleFunc("POST /v1/functions", h.createFunction)
	mux.HandleFunc("GET /v1/functions", h.listFunctions)
	mux.HandleFunc("GET /v1/functions/{name}", h.getFunction)
	mux.HandleFunc("DELETE /v1/functions/{name}", h.deleteFunction)
	mux.HandleFunc("POST /v1/functions/{nameAction}", h.functionAction)
	mux.HandleFunc("PUT /v1/functions/{name}/replicas", h.setReplicas)

	mux.HandleFunc("GET /v1/executions/{id}", h.getExecution)

	mux.HandleFunc("POST /v1/internal/functions/{nameAction}", h.internalDrainOnce)
	mux.HandleFunc("POST /v1/internal/executions/{idAction}", h.internalComplete)

	var root http.Handler = mux
	root = observability.HTTPMiddleware(root)
	return root
}

// StartHTTPServer starts the control plane's HTTP server on addr,
// mirroring the teacher's background-goroutine ListenAndServe pattern.
func StartHTTPServer(addr string, cfg ServerConfig) *http.Server {
	server := &http.Server{
		Addr:    addr,
		Handler: NewMux(cfg),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("HTTP server error", "error", err)
		}
	}()
	return server
}
