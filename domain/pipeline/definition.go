package pipeline

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/emergent-company/graphmerge/pkg/rdf"
)

//go:embed pipeline.yaml
var defaultDefinition []byte

// Definition is the parsed pipeline file.
type Definition struct {
	Transformers []string `yaml:"transformers"`
	Sweep        struct {
		Predicates []string `yaml:"predicates"`
	} `yaml:"sweep"`
}

// LoadDefinition reads path, or the embedded default when path is empty.
func LoadDefinition(path string) (*Definition, error) {
	data := defaultDefinition
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read pipeline file: %w", err)
		}
		data = b
	}
	return ParseDefinition(data)
}

// ParseDefinition decodes a pipeline file.
func ParseDefinition(data []byte) (*Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse pipeline file: %w", err)
	}
	if len(d.Transformers) == 0 {
		return nil, fmt.Errorf("pipeline file lists no transformers")
	}
	seen := make(map[string]bool, len(d.Transformers))
	for _, t := range d.Transformers {
		if seen[t] {
			return nil, fmt.Errorf("transformer %q listed twice", t)
		}
		seen[t] = true
	}
	return &d, nil
}

// SweepPredicates expands the configured sweep predicates to IRIs.
func (d *Definition) SweepPredicates() []rdf.Term {
	out := make([]rdf.Term, 0, len(d.Sweep.Predicates))
	for _, p := range d.Sweep.Predicates {
		out = append(out, rdf.IRI(rdf.Expand(p)))
	}
	return out
}
