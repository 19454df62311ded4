package admission

import "testing"

func TestGatewayNeverAdmitsBeyondMaxConcurrency(t *testing.T) {
	g := NewGateway(2)

	ok1, _ := g.TryAdmit()
	ok2, _ := g.TryAdmit()
	ok3, rej := g.TryAdmit()

	if !ok1 || !ok2 {
		t.Fatalf("expected first two admissions to succeed")
	}
	if ok3 {
		t.Fatalf("expected third admission to be rejected at maxConcurrency=2")
	}
	if rej.Reason != "est_wait" || rej.EstWaitMs != 200 || rej.QueueDepth != 2 {
		t.Fatalf("unexpected rejection shape: %+v", rej)
	}
	if g.InFlight() != 2 {
		t.Fatalf("expected rollback to keep inFlight at 2, got %d", g.InFlight())
	}
}

func TestGatewayDisabledAlwaysAdmits(t *testing.T) {
	g := NewGateway(0)
	for i := 0; i < 100; i++ {
		if ok, _ := g.TryAdmit(); !ok {
			t.Fatalf("expected disabled gateway to always admit")
		}
	}
}

func TestGatewayReleaseFreesSlot(t *testing.T) {
	g := NewGateway(1)
	ok, _ := g.TryAdmit()
	if !ok {
		t.Fatalf("expected admission")
	}
	if ok, _ := g.TryAdmit(); ok {
		t.Fatalf("expected second admission to fail before release")
	}
	g.Release()
	if ok, _ := g.TryAdmit(); !ok {
		t.Fatalf("expected admission after release")
	}
}
