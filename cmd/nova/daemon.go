package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/oriys/nova/internal/admission"
	"github.com/oriys/nova/internal/api"
	"github.com/oriys/nova/internal/config"
	"github.com/oriys/nova/internal/dispatch"
	"github.com/oriys/nova/internal/execstore"
	"github.com/oriys/nova/internal/idempotency"
	"github.com/oriys/nova/internal/logging"
	"github.com/oriys/nova/internal/metrics"
	"github.com/oriys/nova/internal/observability"
	"github.com/oriys/nova/internal/pipeline"
	"github.com/oriys/nova/internal/queue"
	"github.com/oriys/nova/internal/ratelimit"
	"github.com/oriys/nova/internal/registry"
	"github.com/oriys/nova/internal/scheduler"
)

func serveCmd() *cobra.Command {
	var (
		controlPlaneBind string
		managementBind   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control plane: registry, invocation pipeline, scheduler, and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("bind") {
				cfg.ControlPlaneBind = controlPlaneBind
			}
			if cmd.Flags().Changed("management-bind") {
				cfg.ManagementBind = managementBind
			}

			logging.SetLevelFromString(cfg.LogLevel)
			logging.InitStructured("json", cfg.LogLevel)

			if err := observability.Init(context.Background(), observability.Config{
				Enabled:     cfg.Tracing.Enabled,
				Exporter:    cfg.Tracing.Exporter,
				Endpoint:    cfg.Tracing.Endpoint,
				ServiceName: cfg.Tracing.ServiceName,
				SampleRate:  cfg.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(context.Background())

			return runControlPlane(cfg)
		},
	}

	cmd.Flags().StringVar(&controlPlaneBind, "bind", "", "control plane HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&managementBind, "management-bind", "", "management HTTP listen address (overrides config)")
	return cmd
}

// runControlPlane wires every component (spec.md §4.A-§4.K) together,
// starts the control plane and management HTTP servers, and blocks
// until SIGINT/SIGTERM.
func runControlPlane(cfg *config.Config) error {
	reg := registry.New()

	rateLimiter := buildRateLimiter(cfg)
	gateway := admission.NewGateway(cfg.SyncMaxConcurrency)
	idem := idempotency.New(cfg.IdempotencyTTL)
	store := execstore.New(cfg.ExecutionTTL, cfg.ExecutionCleanupTTL, cfg.ExecutionStaleTTL)
	queues := queue.NewManager(queue.NewChannelNotifier())
	router := dispatch.NewRouter(dispatch.NewLocalDispatcher(), dispatch.NewPoolDispatcher())
	m := metrics.New()

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go store.RunJanitor(janitorCtx, cfg.JanitorInterval)

	sched := scheduler.New(queues, store, router, reg, m)
	worker := scheduler.NewWorker(sched, queues, cfg.SchedulerPollInterval, reg.Names)
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	worker.Start(workerCtx)
	defer worker.Stop()

	p := pipeline.New(reg, rateLimiter, gateway, idem, store, queues, router, m)

	httpServer := api.StartHTTPServer(cfg.ControlPlaneBind, api.ServerConfig{
		Registry:  reg,
		Pipeline:  p,
		Scheduler: sched,
		Store:     store,
		Metrics:   m,
	})
	logging.Op().Info("control plane HTTP API started", "addr", cfg.ControlPlaneBind)

	managementServer := startManagementServer(cfg.ManagementBind)
	logging.Op().Info("management HTTP API started", "addr", cfg.ManagementBind)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logging.Op().Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = managementServer.Shutdown(shutdownCtx)
	return nil
}

// buildRateLimiter picks the in-memory fixed-window limiter the core
// invocation pipeline is specified against, or wraps it with a
// DistributedLimiter over Redis when RateLimitBackend is "redis" - an
// additive backend, never a replacement of the documented semantics
// (SPEC_FULL.md's Domain Stack).
func buildRateLimiter(cfg *config.Config) pipeline.RateLimiter {
	if cfg.RateLimitBackend != "redis" || cfg.RedisAddr == "" {
		return ratelimit.NewRateLimiter(cfg.RateLimitPerSecond)
	}

	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	backend := ratelimit.NewFallbackBackend(ratelimit.NewRedisBackend(client))
	distributed := ratelimit.NewDistributedLimiter(backend, cfg.RateLimitPerSecond, float64(cfg.RateLimitPerSecond))
	return redisRateLimiterAdapter{distributed: distributed}
}

// redisRateLimiterAdapter narrows DistributedLimiter's
// (ctx, key, now) shape to the pipeline.RateLimiter interface, which
// has no context parameter and limits globally rather than per key.
type redisRateLimiterAdapter struct {
	distributed *ratelimit.DistributedLimiter
}

func (a redisRateLimiterAdapter) TryAcquireAt(nowMillis int64) bool {
	return a.distributed.TryAcquireAt(context.Background(), "global", nowMillis)
}

// startManagementServer exposes process-level Go runtime metrics on a
// port separate from the control plane's own bespoke /metrics text
// format.
func startManagementServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/internal/metrics/runtime", metrics.NewRuntimeRegistry().Handler())

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("management HTTP server error", "error", err)
		}
	}()
	return server
}
