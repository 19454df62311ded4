package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RuntimeRegistry wraps a dedicated Prometheus registry for Go
// process-level metrics (GC pauses, goroutine count, memstats),
// exposed on the management port, kept entirely separate from the
// control plane's own /metrics endpoint served by ToPrometheusText.
// This is the one place client_golang's default exposition format is
// actually appropriate, since nothing here is a testable wire
// contract of the control plane itself.
type RuntimeRegistry struct {
	registry *prometheus.Registry
}

func NewRuntimeRegistry() *RuntimeRegistry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &RuntimeRegistry{registry: reg}
}

// Handler returns the http.Handler serving this registry's metrics in
// client_golang's standard exposition format.
func (r *RuntimeRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
