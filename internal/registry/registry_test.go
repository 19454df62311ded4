package registry

import (
	"testing"

	"github.com/oriys/nova/internal/domain"
)

func TestCreateRejectsDuplicateName(t *testing.T) {
	r := New()
	spec := domain.FunctionSpec{Name: "echo", Image: "nova/echo:latest", ExecutionMode: domain.ModeLocal}

	if _, err := r.Create(spec); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := r.Create(spec)
	if err == nil {
		t.Fatal("expected conflict on duplicate create")
	}
	derr, ok := err.(*domain.Error)
	if !ok || derr.Code != domain.ErrConflict {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

func TestCreateRejectsBlankNameOrImage(t *testing.T) {
	r := New()
	if _, err := r.Create(domain.FunctionSpec{Image: "x"}); err == nil {
		t.Fatal("expected validation error for blank name")
	}
	if _, err := r.Create(domain.FunctionSpec{Name: "x"}); err == nil {
		t.Fatal("expected validation error for blank image")
	}
	if _, err := r.Create(domain.FunctionSpec{Name: "x", Image: "y", Concurrency: intPtr(-1)}); err == nil {
		t.Fatal("expected validation error for negative concurrency")
	}
}

func TestCreateRejectsExplicitZeroConcurrencyButAllowsOmitted(t *testing.T) {
	r := New()
	if _, err := r.Create(domain.FunctionSpec{Name: "x", Image: "y", Concurrency: intPtr(0)}); err == nil {
		t.Fatal("expected validation error for explicit zero concurrency")
	}
	if _, err := r.Create(domain.FunctionSpec{Name: "x", Image: "y"}); err != nil {
		t.Fatalf("expected omitted concurrency to be accepted, got %v", err)
	}
}

func intPtr(n int) *int { return &n }

func TestGetNotFound(t *testing.T) {
	r := New()
	_, err := r.Get("missing")
	derr, ok := err.(*domain.Error)
	if !ok || derr.Code != domain.ErrNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestDeleteThenRecreateStartsClean(t *testing.T) {
	r := New()
	spec := domain.FunctionSpec{Name: "echo", Image: "nova/echo:latest"}
	if _, err := r.Create(spec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.Delete("echo"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := r.Delete("echo"); err == nil {
		t.Fatal("expected not found on second delete")
	}
	if _, err := r.Create(spec); err != nil {
		t.Fatalf("recreate after delete should succeed, got: %v", err)
	}
}

func TestSetReplicasRequiresDeploymentMode(t *testing.T) {
	r := New()
	spec := domain.FunctionSpec{Name: "echo", Image: "nova/echo:latest", ExecutionMode: domain.ModeLocal}
	if _, err := r.Create(spec); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := r.SetReplicas(NoopScalingMetricsSource, "echo", 3)
	if err == nil {
		t.Fatal("expected validation error for non-deployment function")
	}

	depSpec := domain.FunctionSpec{Name: "worker", Image: "nova/worker:latest", ExecutionMode: domain.ModeDeployment}
	if _, err := r.Create(depSpec); err != nil {
		t.Fatalf("create deployment spec: %v", err)
	}
	updated, err := r.SetReplicas(NoopScalingMetricsSource, "worker", 5)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if updated.Replicas != 5 {
		t.Fatalf("expected replicas=5, got %d", updated.Replicas)
	}
}

func TestListIsSortedByName(t *testing.T) {
	r := New()
	for _, name := range []string{"zebra", "apple", "mango"} {
		if _, err := r.Create(domain.FunctionSpec{Name: name, Image: "img"}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	list := r.List()
	if len(list) != 3 || list[0].Name != "apple" || list[1].Name != "mango" || list[2].Name != "zebra" {
		t.Fatalf("expected sorted [apple mango zebra], got %v", list)
	}
}
