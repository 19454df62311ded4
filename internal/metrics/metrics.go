// Package metrics implements the control plane's own counters and
// timers (spec.md §4.H), keyed by (metric name, function name), and
// their deterministic sorted text serialization. This format is a
// testable property of the system and is intentionally NOT the
// default exposition format client_golang produces — see
// internal/metrics/runtime.go for where that library is used instead.
package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Key identifies one (metric, function) time series.
type Key struct {
	Name     string
	Function string
}

type timer struct {
	count int64
	sumMs float64
}

// Metrics holds every counter and timer the invocation pipeline and
// scheduler emit into, one map entry per (name, function) pair.
type Metrics struct {
	mu       sync.Mutex
	counters map[Key]float64
	timers   map[Key]*timer
}

func New() *Metrics {
	return &Metrics{
		counters: make(map[Key]float64),
		timers:   make(map[Key]*timer),
	}
}

// IncCounter adds delta to the named counter for function.
func (m *Metrics) IncCounter(name, function string, delta float64) {
	k := Key{Name: name, Function: function}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[k] += delta
}

// CounterValue returns the current value of a counter, 0 if unset.
func (m *Metrics) CounterValue(name, function string) float64 {
	k := Key{Name: name, Function: function}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[k]
}

// RecordTimer adds one observation of durationMs to the named timer
// for function.
func (m *Metrics) RecordTimer(name, function string, durationMs float64) {
	k := Key{Name: name, Function: function}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.timers[k]
	if !ok {
		t = &timer{}
		m.timers[k] = t
	}
	t.count++
	t.sumMs += durationMs
}

// Named counters and timers the invocation pipeline and scheduler
// emit into, per spec.md §4.H.
const (
	ColdStartTotal       = "function_cold_start_total"
	WarmStartTotal       = "function_warm_start_total"
	DispatchTotal        = "function_dispatch_total"
	SuccessTotal         = "function_success_total"
	EnqueueTotal         = "function_enqueue_total"
	SyncQueueAdmitted    = "sync_queue_admitted_total"
	SyncQueueRejected    = "sync_queue_rejected_total"
	SyncQueueDepth       = "sync_queue_depth"
	SyncQueueWaitSeconds = "sync_queue_wait_seconds"
	FunctionLatencyMs    = "function_latency_ms"
	InitDurationMs       = "function_init_duration_ms"
	QueueWaitMs          = "function_queue_wait_ms"
	E2ELatencyMs         = "function_e2e_latency_ms"
)

// ToPrometheusText serializes every counter and timer as one line per
// counter (`name{function="..."} value`) and two lines per timer
// (`name_count{...}`, `name_sum{...}`), all lines sorted for
// determinism. This exact shape (not client_golang's default
// exposition format) is required by spec.md §4.H/§8.
func (m *Metrics) ToPrometheusText() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	lines := make([]string, 0, len(m.counters)+2*len(m.timers))

	for k, v := range m.counters {
		lines = append(lines, formatLine(k.Name, k.Function, v))
	}
	for k, t := range m.timers {
		lines = append(lines, formatLine(k.Name+"_count", k.Function, float64(t.count)))
		lines = append(lines, formatLine(k.Name+"_sum", k.Function, t.sumMs))
	}

	sort.Strings(lines)
	return strings.Join(lines, "\n") + "\n"
}

func formatLine(name, function string, value float64) string {
	return fmt.Sprintf(`%s{function="%s"} %s`, name, function, formatFloat(value))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
