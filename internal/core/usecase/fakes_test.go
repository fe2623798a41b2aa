package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
	"github.com/kirillkom/retrieval-fusion/internal/core/ports"
)

type retrieverFake struct {
	hits  []domain.Passage
	err   error
	delay time.Duration
	calls int32
	lastK int32
}

func (f *retrieverFake) Retrieve(ctx context.Context, _ string, k int) ([]domain.Passage, error) {
	atomic.AddInt32(&f.calls, 1)
	atomic.StoreInt32(&f.lastK, int32(k))
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.hits) {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

type indexFake struct {
	label  string
	dense  *retrieverFake
	sparse *retrieverFake
}

func (f *indexFake) Label() string                  { return f.label }
func (f *indexFake) Version() string                { return "v-" + f.label }
func (f *indexFake) Dense() ports.PassageRetriever  { return f.dense }
func (f *indexFake) Sparse() ports.PassageRetriever { return f.sparse }

func newIndexFake(label string, dense, sparse []domain.Passage) *indexFake {
	return &indexFake{
		label:  label,
		dense:  &retrieverFake{hits: dense},
		sparse: &retrieverFake{hits: sparse},
	}
}

// corpusIndex builds an index whose dense and sparse orderings are derived from the
// same passages: dense by descending score, sparse by ascending node id.
func corpusIndex(label string, n int) *indexFake {
	dense := make([]domain.Passage, 0, n)
	for i := 0; i < n; i++ {
		dense = append(dense, domain.Passage{
			NodeID:   label + "-" + string(rune('a'+i)),
			Text:     label + " passage " + string(rune('a'+i)),
			Metadata: map[string]string{"file_name": label + ".md"},
			Score:    1 - float64(i)/100,
		})
	}
	sparse := make([]domain.Passage, len(dense))
	copy(sparse, dense)
	sort.Slice(sparse, func(i, j int) bool { return sparse[i].NodeID > sparse[j].NodeID })
	return newIndexFake(label, dense, sparse)
}

type registryFake map[string]ports.KnowledgeIndex

func (r registryFake) Get(label string) (ports.KnowledgeIndex, bool) {
	idx, ok := r[label]
	return idx, ok
}

func (r registryFake) Labels() []string {
	out := make([]string, 0, len(r))
	for label := range r {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// overlapEncoder scores passages by how many question words they contain.
type overlapEncoder struct {
	err   error
	calls int32
}

func (e *overlapEncoder) Score(_ context.Context, question string, passages []string) ([]float64, error) {
	atomic.AddInt32(&e.calls, 1)
	if e.err != nil {
		return nil, e.err
	}
	words := strings.Fields(strings.ToLower(question))
	out := make([]float64, len(passages))
	for i, p := range passages {
		lower := strings.ToLower(p)
		for _, w := range words {
			if strings.Contains(lower, w) {
				out[i]++
			}
		}
	}
	return out, nil
}

// tableEncoder returns fixed scores keyed by passage text.
type tableEncoder struct {
	scores map[string]float64
}

func (e *tableEncoder) Score(_ context.Context, _ string, passages []string) ([]float64, error) {
	out := make([]float64, len(passages))
	for i, p := range passages {
		out[i] = e.scores[p]
	}
	return out, nil
}

type completerFake struct {
	mu        sync.Mutex
	responses map[string]string
	err       error
	prompts   []string
}

func (f *completerFake) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	for marker, resp := range f.responses {
		if strings.Contains(prompt, marker) {
			return resp, nil
		}
	}
	return "no", nil
}

type observerFake struct {
	mu        sync.Mutex
	stages    []string
	fallbacks int
	failures  map[string]int
}

func (o *observerFake) ObserveStage(stage string, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
}
func (o *observerFake) ObserveRoute(string, bool) {}
func (o *observerFake) ObserveIndexOutcome(index string, err error) {
	if err == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failures == nil {
		o.failures = make(map[string]int)
	}
	o.failures[index]++
}
func (o *observerFake) ObserveRerankFallback() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fallbacks++
}
func (o *observerFake) ObserveResult(int) {}
