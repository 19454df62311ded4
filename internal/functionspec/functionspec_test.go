package functionspec

import (
	"strings"
	"testing"

	"github.com/oriys/nova/internal/domain"
)

func TestParseAppliesDefaultsAndExecutionMode(t *testing.T) {
	const doc = `
name: echo
image: local
`
	specs, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("expected 1 spec, got %d", len(specs))
	}
	got := specs[0]
	if got.ExecutionMode != domain.ModeLocal {
		t.Fatalf("expected default execution mode LOCAL, got %q", got.ExecutionMode)
	}
	if got.QueueSize != domain.DefaultQueueSize {
		t.Fatalf("expected default queue size %d, got %d", domain.DefaultQueueSize, got.QueueSize)
	}
	if got.RuntimeMode != domain.RuntimeHTTP {
		t.Fatalf("expected default runtime mode HTTP, got %q", got.RuntimeMode)
	}
}

func TestParseMultiDocumentFile(t *testing.T) {
	const doc = `
name: a
image: local
---
name: b
image: local
executionMode: POOL
endpointUrl: http://pool:9000
`
	specs, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
	if specs[1].ExecutionMode != domain.ModePool {
		t.Fatalf("expected second doc POOL mode, got %q", specs[1].ExecutionMode)
	}
}

func TestParseSkipsBlankDocuments(t *testing.T) {
	const doc = `
---
name: a
image: local
---
---
`
	specs, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("expected blank documents skipped, got %d specs", len(specs))
	}
}

func TestParseNoDocumentsErrors(t *testing.T) {
	if _, err := Parse(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty input")
	}
}
