// Package admission implements the global in-flight counter gating
// the synchronous invocation path (spec.md §4.I), distinct from the
// per-function async queue in internal/queue.
package admission

import "sync/atomic"

// Rejection describes why TryAdmit declined a request.
type Rejection struct {
	Reason      string
	EstWaitMs   int64
	QueueDepth  int64
	HasEstWait  bool
	HasQueueDep bool
}

// Gateway bounds the number of concurrent synchronous invocations.
// Disabled (maxConcurrency <= 0) gateways always admit.
type Gateway struct {
	maxConcurrency int64
	inFlight       atomic.Int64
}

func NewGateway(maxConcurrency int) *Gateway {
	return &Gateway{maxConcurrency: int64(maxConcurrency)}
}

// TryAdmit CAS-increments the in-flight counter; if the pre-increment
// value was already at or above maxConcurrency, it rolls back and
// returns a rejection with reason EST_WAIT, estWaitMs = pre * 100,
// queueDepth = pre.
func (g *Gateway) TryAdmit() (bool, Rejection) {
	if g.maxConcurrency <= 0 {
		return true, Rejection{}
	}

	pre := g.inFlight.Add(1) - 1
	if pre >= g.maxConcurrency {
		g.inFlight.Add(-1)
		return false, Rejection{
			Reason:      "est_wait",
			EstWaitMs:   pre * 100,
			HasEstWait:  true,
			QueueDepth:  pre,
			HasQueueDep: true,
		}
	}
	return true, Rejection{}
}

// Release decrements the in-flight counter. Call exactly once per
// successful TryAdmit.
func (g *Gateway) Release() {
	if g.maxConcurrency <= 0 {
		return
	}
	g.inFlight.Add(-1)
}

// InFlight reports the current in-flight count, for diagnostics.
func (g *Gateway) InFlight() int64 {
	return g.inFlight.Load()
}
