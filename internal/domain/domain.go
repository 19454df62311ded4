// Package domain holds the core data types shared across the control
// plane: function specs, execution records, and the error taxonomy used
// to map internal failures onto the wire.
package domain

import "fmt"

// ExecutionMode selects how a function is reached.
type ExecutionMode string

const (
	ModeLocal      ExecutionMode = "LOCAL"
	ModeDeployment ExecutionMode = "DEPLOYMENT"
	ModePool       ExecutionMode = "POOL"
)

// RuntimeMode describes the wire protocol a POOL endpoint speaks. Only
// HTTP is dispatched today; STDIO and FILE are recognized values a
// FunctionSpec may carry for forward compatibility with runtimes this
// control plane doesn't dispatch to directly.
type RuntimeMode string

const (
	RuntimeHTTP  RuntimeMode = "HTTP"
	RuntimeStdio RuntimeMode = "STDIO"
	RuntimeFile  RuntimeMode = "FILE"
)

// ExecutionStatus is the lifecycle state of an ExecutionRecord. The
// string values are uppercase-screaming-snake on the wire.
type ExecutionStatus string

const (
	StatusQueued  ExecutionStatus = "QUEUED"
	StatusRunning ExecutionStatus = "RUNNING"
	StatusSuccess ExecutionStatus = "SUCCESS"
	StatusError   ExecutionStatus = "ERROR"
	StatusTimeout ExecutionStatus = "TIMEOUT"
)

// IsTerminal reports whether the status will never change again through
// normal dispatch/retry processing.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusError, StatusTimeout:
		return true
	default:
		return false
	}
}

// FunctionSpec is the registry's view of a deployable function. The
// control plane core treats it as read-only input.
type FunctionSpec struct {
	Name          string            `json:"name"`
	Image         string            `json:"image"`
	ExecutionMode ExecutionMode     `json:"executionMode"`
	RuntimeMode   RuntimeMode       `json:"runtimeMode,omitempty"`
	// Concurrency is optional: nil means the caller omitted it, a
	// pointer to a positive value sets it explicitly. A pointer to 0
	// (or any non-positive value) fails validation rather than
	// silently meaning "unbounded" or "omitted".
	Concurrency   *int              `json:"concurrency,omitempty"`
	QueueSize     int               `json:"queueSize,omitempty"`
	MaxRetries    int               `json:"maxRetries,omitempty"`
	TimeoutMillis int               `json:"timeoutMillis,omitempty"`
	EndpointURL   string            `json:"endpointUrl,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	Replicas      int               `json:"replicas,omitempty"`
}

const (
	DefaultQueueSize     = 100
	DefaultMaxRetries    = 1
	DefaultTimeoutMillis = 30_000
	// DefaultConcurrency is the effective concurrency for a function
	// that never set one explicitly: high enough that the queue's own
	// capacity, not the slot semaphore, is normally what backpressures.
	DefaultConcurrency = 1 << 20
)

// ApplyDefaults clamps and fills the derived fields a caller may have
// left zero-valued. It never lowers an explicitly set value.
func (s *FunctionSpec) ApplyDefaults() {
	if s.QueueSize <= 0 {
		s.QueueSize = DefaultQueueSize
	}
	if s.MaxRetries <= 0 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.TimeoutMillis <= 0 {
		s.TimeoutMillis = DefaultTimeoutMillis
	}
	if s.RuntimeMode == "" {
		s.RuntimeMode = RuntimeHTTP
	}
}

// EffectiveQueueCapacity is the clamp spec.md §4.D requires at every
// enqueue call site: queueSize, floored at 1.
func (s *FunctionSpec) EffectiveQueueCapacity() int {
	if s.QueueSize < 1 {
		return 1
	}
	return s.QueueSize
}

// EffectiveMaxRetries is max(spec.maxRetries, 1) per spec.md §4.F.
func (s *FunctionSpec) EffectiveMaxRetries() int {
	if s.MaxRetries < 1 {
		return 1
	}
	return s.MaxRetries
}

// EffectiveConcurrency is spec.Concurrency when the caller set one
// explicitly (already validated positive by registry.Validate), or
// DefaultConcurrency when omitted.
func (s *FunctionSpec) EffectiveConcurrency() int {
	if s.Concurrency != nil {
		return *s.Concurrency
	}
	return DefaultConcurrency
}

// InvocationTask is the unit of work carried through the queue and
// dispatch. Ownership is exactly one of {queue entry, in-flight
// dispatch} at any time; a retry constructs a new task reusing the
// same ExecutionID with Attempt+1.
type InvocationTask struct {
	ExecutionID string
	Payload     []byte
	Attempt     int
}

// ExecutionRecord is the per-invocation state object. Records are
// created by the pipeline or scheduler, mutated only by them or the
// completion endpoint, and destroyed by the janitor's TTL rules.
type ExecutionRecord struct {
	ExecutionID     string
	FunctionName    string
	Status          ExecutionStatus
	Output          []byte
	CreatedAtMillis int64
	CleanedUp       bool
	Task            InvocationTask
}

// Snapshot returns an independent copy safe to hand to a caller outside
// the store's lock.
func (r *ExecutionRecord) Snapshot() ExecutionRecord {
	cp := *r
	if r.Output != nil {
		cp.Output = append([]byte(nil), r.Output...)
	}
	if r.Task.Payload != nil {
		cp.Task.Payload = append([]byte(nil), r.Task.Payload...)
	}
	return cp
}

// ErrorCode is the machine-readable half of the error taxonomy in
// spec.md §7.
type ErrorCode string

const (
	ErrValidation          ErrorCode = "VALIDATION_ERROR"
	ErrNotFound            ErrorCode = "NOT_FOUND"
	ErrConflict            ErrorCode = "CONFLICT"
	ErrTooManyRequests     ErrorCode = "TOO_MANY_REQUESTS"
	ErrNotImplemented      ErrorCode = "NOT_IMPLEMENTED"
	ErrScalerUnavailable   ErrorCode = "SCALER_UNAVAILABLE"
	ErrInternal            ErrorCode = "INTERNAL_ERROR"
	ErrPoolEndpointMissing ErrorCode = "POOL_ENDPOINT_MISSING"
	ErrPoolTimeout         ErrorCode = "POOL_TIMEOUT"
	ErrPoolError           ErrorCode = "POOL_ERROR"
)

// Error is the error type every component in this module returns for
// anticipated failure modes; it carries enough to map straight onto the
// wire without re-deriving intent from an error string.
type Error struct {
	Code    ErrorCode
	Message string
	Details []string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// QueueRejectReason distinguishes why the sync admission path rejected
// a request, surfaced via the X-Queue-Reject-Reason header.
type QueueRejectReason string

const (
	RejectEstWait QueueRejectReason = "est_wait"
	RejectDepth   QueueRejectReason = "depth"
)
