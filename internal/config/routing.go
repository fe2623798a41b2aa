package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
)

const (
	BackendMemory   = "memory"
	BackendQdrant   = "qdrant"
	BackendPostgres = "postgres"
)

// IndexSpec describes how to open one knowledge index at startup.
type IndexSpec struct {
	Label      string `yaml:"label"`
	Backend    string `yaml:"backend"`
	CorpusPath string `yaml:"corpus_path,omitempty"`
	CorpusDir  string `yaml:"corpus_dir,omitempty"`
	Collection string `yaml:"collection,omitempty"`
}

// Routing is the static file describing indices and the intent routing table.
type Routing struct {
	Indices       []IndexSpec         `yaml:"indices"`
	DefaultIndex  string              `yaml:"default_index"`
	DefaultBudget domain.Budget       `yaml:"default_budget"`
	Domains       []domain.DomainRule `yaml:"domains"`
}

func (r Routing) Table() domain.RoutingTable {
	return domain.RoutingTable{
		DefaultIndex:  r.DefaultIndex,
		DefaultBudget: r.DefaultBudget.Normalize(),
		Domains:       append([]domain.DomainRule(nil), r.Domains...),
	}
}

func LoadRouting(path string) (Routing, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Routing{}, domain.WrapError(domain.ErrConfiguration, "read routing file", err)
	}
	r, err := ParseRouting(bytes.NewReader(raw))
	if err != nil {
		return Routing{}, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// ParseRouting decodes and validates a routing document. Unknown keys are rejected.
func ParseRouting(src io.Reader) (Routing, error) {
	dec := yaml.NewDecoder(src)
	dec.KnownFields(true)

	var r Routing
	if err := dec.Decode(&r); err != nil && !errors.Is(err, io.EOF) {
		return Routing{}, domain.WrapError(domain.ErrConfiguration, "decode routing", err)
	}
	if err := r.validate(); err != nil {
		return Routing{}, domain.WrapError(domain.ErrConfiguration, "validate routing", err)
	}
	return r, nil
}

func (r Routing) validate() error {
	var problems []string
	labels := make(map[string]struct{}, len(r.Indices))
	for i, spec := range r.Indices {
		label := strings.TrimSpace(spec.Label)
		if label == "" {
			problems = append(problems, fmt.Sprintf("indices[%d]: label is required", i))
			continue
		}
		if _, dup := labels[label]; dup {
			problems = append(problems, fmt.Sprintf("indices[%d]: duplicate label %q", i, label))
		}
		labels[label] = struct{}{}
		switch spec.Backend {
		case BackendMemory:
			if (spec.CorpusPath == "") == (spec.CorpusDir == "") {
				problems = append(problems, fmt.Sprintf("index %q: memory backend needs exactly one of corpus_path or corpus_dir", label))
			}
		case BackendQdrant:
			if spec.Collection == "" {
				problems = append(problems, fmt.Sprintf("index %q: qdrant backend needs collection", label))
			}
		case BackendPostgres:
		default:
			problems = append(problems, fmt.Sprintf("index %q: unknown backend %q", label, spec.Backend))
		}
	}

	if r.DefaultIndex == "" {
		problems = append(problems, "default_index is required")
	} else if _, ok := labels[r.DefaultIndex]; !ok {
		problems = append(problems, fmt.Sprintf("default_index %q is not a declared index", r.DefaultIndex))
	}
	if b := r.DefaultBudget; b.Candidates < 0 || b.Vector < 0 || b.Sparse < 0 || b.Normalize().Candidates == 0 {
		problems = append(problems, "default_budget must be positive")
	}

	domains := make(map[string]struct{}, len(r.Domains))
	for i, d := range r.Domains {
		if d.Label == "" {
			problems = append(problems, fmt.Sprintf("domains[%d]: label is required", i))
			continue
		}
		if _, dup := domains[d.Label]; dup {
			problems = append(problems, fmt.Sprintf("domains[%d]: duplicate label %q", i, d.Label))
		}
		domains[d.Label] = struct{}{}
		if _, ok := labels[d.Index]; !ok {
			problems = append(problems, fmt.Sprintf("domain %q: index %q is not declared", d.Label, d.Index))
		}
		if len(d.Keywords) == 0 && d.Description == "" {
			problems = append(problems, fmt.Sprintf("domain %q: needs keywords or a description", d.Label))
		}
		if d.Budget.Candidates < 0 || d.Budget.Vector < 0 || d.Budget.Sparse < 0 {
			problems = append(problems, fmt.Sprintf("domain %q: budget must not be negative", d.Label))
		} else if d.Budget.Normalize().Candidates == 0 {
			problems = append(problems, fmt.Sprintf("domain %q: budget must be positive", d.Label))
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
