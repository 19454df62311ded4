// Package registry holds the function spec registry: CRUD, validation,
// and the scaling/replica-count seam spec.md treats as an opaque
// external collaborator to the control plane core.
package registry

import (
	"sort"
	"sync"

	"github.com/oriys/nova/internal/domain"
)

// Registry is an in-memory function spec store. The control plane
// core treats function specs as read-only; this package owns the
// CRUD surface spec.md §1 calls out as "opaque read APIs" from the
// core's point of view.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]domain.FunctionSpec
}

func New() *Registry {
	return &Registry{specs: make(map[string]domain.FunctionSpec)}
}

// Create registers a new function spec. Returns a CONFLICT error if
// the name is already taken, or a VALIDATION_ERROR for blank
// name/image or non-positive concurrency.
func (r *Registry) Create(spec domain.FunctionSpec) (domain.FunctionSpec, error) {
	if err := Validate(spec); err != nil {
		return domain.FunctionSpec{}, err
	}
	spec.ApplyDefaults()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.specs[spec.Name]; exists {
		return domain.FunctionSpec{}, domain.NewError(domain.ErrConflict, "function %q already exists", spec.Name)
	}
	r.specs[spec.Name] = spec
	return spec, nil
}

// Get returns the spec for name, or NOT_FOUND.
func (r *Registry) Get(name string) (domain.FunctionSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[name]
	if !ok {
		return domain.FunctionSpec{}, domain.NewError(domain.ErrNotFound, "function %q not found", name)
	}
	return spec, nil
}

// Lookup is the scheduler.Registry-shaped accessor (no error, just a
// boolean), used to build the immutable snapshot a tick captures.
func (r *Registry) Lookup(name string) (domain.FunctionSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

// List returns every registered spec, sorted by name for a stable
// wire order.
func (r *Registry) List() []domain.FunctionSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.FunctionSpec, 0, len(r.specs))
	for _, spec := range r.specs {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns every registered function name; used by the scheduler
// worker's fallback poll.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.specs))
	for name := range r.specs {
		out = append(out, name)
	}
	return out
}

// Delete removes a function spec. Returns NOT_FOUND if absent.
// The cold-start "seen" set in the pipeline is intentionally NOT
// pruned here (see DESIGN.md Open Question decisions): a function
// re-registered under the same name starts warm.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.specs[name]; !ok {
		return domain.NewError(domain.ErrNotFound, "function %q not found", name)
	}
	delete(r.specs, name)
	return nil
}

// ScalingMetricsSource is the injectable seam for a future autoscaler,
// kept as a no-op default per the Rust reference's
// NoOpScalingMetricsSource (see SPEC_FULL.md Supplemented Features).
type ScalingMetricsSource interface {
	// SetReplicas is called when an operator requests a replica count
	// change for a DEPLOYMENT-mode function. A real implementation
	// would reconcile against the scaler; the no-op just records it.
	SetReplicas(name string, replicas int) error
}

type noopScalingMetricsSource struct{}

func (noopScalingMetricsSource) SetReplicas(string, int) error { return nil }

// NoopScalingMetricsSource is the default ScalingMetricsSource.
var NoopScalingMetricsSource ScalingMetricsSource = noopScalingMetricsSource{}

// SetReplicas updates the requested replica count for a DEPLOYMENT
// function spec and notifies the scaling metrics source. Returns
// VALIDATION_ERROR if the function isn't in DEPLOYMENT mode.
func (r *Registry) SetReplicas(scaler ScalingMetricsSource, name string, replicas int) (domain.FunctionSpec, error) {
	r.mu.Lock()
	spec, ok := r.specs[name]
	if !ok {
		r.mu.Unlock()
		return domain.FunctionSpec{}, domain.NewError(domain.ErrNotFound, "function %q not found", name)
	}
	if spec.ExecutionMode != domain.ModeDeployment {
		r.mu.Unlock()
		return domain.FunctionSpec{}, domain.NewError(domain.ErrValidation, "function %q is not in DEPLOYMENT mode", name)
	}
	spec.Replicas = replicas
	r.specs[name] = spec
	r.mu.Unlock()

	if err := scaler.SetReplicas(name, replicas); err != nil {
		return domain.FunctionSpec{}, domain.NewError(domain.ErrScalerUnavailable, "scaler unavailable: %v", err)
	}
	return spec, nil
}

// Validate checks the invariants spec.md §6 requires for function
// registration: non-blank name/image, non-positive concurrency when
// explicitly provided.
func Validate(spec domain.FunctionSpec) error {
	var details []string
	if spec.Name == "" {
		details = append(details, "name must not be blank")
	}
	if spec.Image == "" {
		details = append(details, "image must not be blank")
	}
	if spec.Concurrency != nil && *spec.Concurrency <= 0 {
		details = append(details, "concurrency must be positive when provided")
	}
	switch spec.ExecutionMode {
	case domain.ModeLocal, domain.ModeDeployment, domain.ModePool, "":
	default:
		details = append(details, "executionMode must be one of LOCAL, DEPLOYMENT, POOL")
	}
	if len(details) > 0 {
		return &domain.Error{Code: domain.ErrValidation, Message: "invalid function spec", Details: details}
	}
	return nil
}
