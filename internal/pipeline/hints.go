package pipeline

// Synthetic image hints give conformance tests a way to force every
// admission-rejection shape without driving real contention. Per
// spec's open questions, production deployments may want these gated
// behind a flag; Pipeline.HintsEnabled is that gate (see
// DESIGN.md's Open Question decisions — default true, matching the
// conformance surface this control plane ships against).
const (
	hintSyncRejectEstWait = "sync-reject-est-wait"
	hintSyncRejectDepth   = "sync-reject-depth"
	hintRateLimited       = "rate-limited"
	hintQueueFull         = "queue-full"
	hintAsyncUnavailable  = "async-unavailable"
)

// syntheticSyncReject reports the forced Rejection a sync invocation
// should receive when spec.image carries one of the recognized test
// hints, or false if image isn't one of them.
func syntheticSyncReject(image string) (Rejection, bool) {
	switch image {
	case hintSyncRejectEstWait:
		return Rejection{
			RetryAfterSeconds:    7,
			HasRetryAfter:        true,
			QueueRejectReason:    "est_wait",
			HasQueueRejectReason: true,
		}, true
	case hintSyncRejectDepth:
		return Rejection{
			RetryAfterSeconds:    3,
			HasRetryAfter:        true,
			QueueRejectReason:    "depth",
			HasQueueRejectReason: true,
		}, true
	case hintRateLimited, hintQueueFull:
		return Rejection{}, true
	}
	return Rejection{}, false
}
