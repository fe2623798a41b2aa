// Package index assembles the knowledge indices the pipeline reads from.
package index

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
	"github.com/kirillkom/retrieval-fusion/internal/core/ports"
)

// Registry resolves index labels. It is filled at startup and only read afterwards.
type Registry struct {
	mu      sync.RWMutex
	indices map[string]ports.KnowledgeIndex
}

func NewRegistry() *Registry {
	return &Registry{indices: make(map[string]ports.KnowledgeIndex)}
}

func (r *Registry) Register(idx ports.KnowledgeIndex) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	label := idx.Label()
	if _, exists := r.indices[label]; exists {
		return domain.WrapError(domain.ErrConfiguration, "register index", fmt.Errorf("duplicate label %q", label))
	}
	r.indices[label] = idx
	return nil
}

func (r *Registry) Get(label string) (ports.KnowledgeIndex, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.indices[label]
	return idx, ok
}

func (r *Registry) Labels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.indices))
	for label := range r.indices {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// Versions reports the version token of every registered index.
func (r *Registry) Versions() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.indices))
	for label, idx := range r.indices {
		out[label] = idx.Version()
	}
	return out
}
