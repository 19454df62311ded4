// Package functionspec parses the YAML function-spec shape `nova
// function apply` accepts, an alternative to posting a FunctionSpec as
// JSON directly. The shape mirrors the teacher's internal/spec
// package (apiVersion/kind envelope, one-or-more documents per file)
// adapted to this domain's fields.
package functionspec

import (
	"fmt"
	"io"
	"os"

	"github.com/oriys/nova/internal/domain"
	"gopkg.in/yaml.v3"
)

// YAMLSpec is the on-disk shape of one function document.
type YAMLSpec struct {
	APIVersion string `yaml:"apiVersion,omitempty"`
	Kind       string `yaml:"kind,omitempty"`

	Name          string            `yaml:"name"`
	Image         string            `yaml:"image"`
	ExecutionMode string            `yaml:"executionMode,omitempty"`
	RuntimeMode   string            `yaml:"runtimeMode,omitempty"`
	Concurrency   *int              `yaml:"concurrency,omitempty"`
	QueueSize     int               `yaml:"queueSize,omitempty"`
	MaxRetries    int               `yaml:"maxRetries,omitempty"`
	TimeoutMillis int               `yaml:"timeoutMillis,omitempty"`
	EndpointURL   string            `yaml:"endpointUrl,omitempty"`
	Env           map[string]string `yaml:"env,omitempty"`
	Replicas      int               `yaml:"replicas,omitempty"`
}

// ToFunctionSpec converts the YAML document to the registry's
// FunctionSpec, applying the same defaults the HTTP JSON path does.
func (s YAMLSpec) ToFunctionSpec() domain.FunctionSpec {
	spec := domain.FunctionSpec{
		Name:          s.Name,
		Image:         s.Image,
		ExecutionMode: domain.ExecutionMode(s.ExecutionMode),
		RuntimeMode:   domain.RuntimeMode(s.RuntimeMode),
		Concurrency:   s.Concurrency,
		QueueSize:     s.QueueSize,
		MaxRetries:    s.MaxRetries,
		TimeoutMillis: s.TimeoutMillis,
		EndpointURL:   s.EndpointURL,
		Env:           s.Env,
		Replicas:      s.Replicas,
	}
	if spec.ExecutionMode == "" {
		spec.ExecutionMode = domain.ModeLocal
	}
	spec.ApplyDefaults()
	return spec
}

// ParseFile reads path and decodes every YAML document in it into a
// FunctionSpec, skipping blank documents.
func ParseFile(path string) ([]domain.FunctionSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes every YAML document in r into a FunctionSpec.
func Parse(r io.Reader) ([]domain.FunctionSpec, error) {
	decoder := yaml.NewDecoder(r)
	var specs []domain.FunctionSpec

	for {
		var doc YAMLSpec
		err := decoder.Decode(&doc)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		if doc.Name == "" && doc.Image == "" {
			continue
		}
		specs = append(specs, doc.ToFunctionSpec())
	}

	if len(specs) == 0 {
		return nil, fmt.Errorf("no valid function specs found in file")
	}
	return specs, nil
}
