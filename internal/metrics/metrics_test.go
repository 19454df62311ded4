package metrics

import "testing"

func TestToPrometheusTextIsSortedAndExact(t *testing.T) {
	m := New()
	m.IncCounter(SuccessTotal, "echo", 2)
	m.IncCounter(DispatchTotal, "echo", 2)
	m.RecordTimer(FunctionLatencyMs, "echo", 12.5)
	m.RecordTimer(FunctionLatencyMs, "echo", 7.5)

	got := m.ToPrometheusText()
	want := "function_dispatch_total{function=\"echo\"} 2\n" +
		"function_latency_ms_count{function=\"echo\"} 2\n" +
		"function_latency_ms_sum{function=\"echo\"} 20\n" +
		"function_success_total{function=\"echo\"} 2\n"

	if got != want {
		t.Fatalf("unexpected serialization:\n got: %q\nwant: %q", got, want)
	}
}

func TestCounterValueAccumulates(t *testing.T) {
	m := New()
	m.IncCounter(ColdStartTotal, "f", 1)
	m.IncCounter(ColdStartTotal, "f", 1)
	if v := m.CounterValue(ColdStartTotal, "f"); v != 2 {
		t.Fatalf("expected 2, got %v", v)
	}
}

func TestDifferentFunctionsAreSeparateSeries(t *testing.T) {
	m := New()
	m.IncCounter(SuccessTotal, "a", 1)
	m.IncCounter(SuccessTotal, "b", 5)
	if m.CounterValue(SuccessTotal, "a") != 1 || m.CounterValue(SuccessTotal, "b") != 5 {
		t.Fatalf("expected independent series per function")
	}
}
