package memory

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sort"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
	"github.com/kirillkom/retrieval-fusion/internal/core/ports"
)

const embedBatchSize = 32

// Index is an in-process knowledge index built once from a corpus. After Build returns
// nothing mutates it, so it is safe for any number of concurrent readers.
type Index struct {
	label    string
	version  string
	passages []domain.Passage
	vectors  [][]float32
	norms    []float64
	lexical  *bm25
	embedder ports.Embedder
}

// Build embeds passages without a precomputed vector and freezes the index.
// A nil embedder is allowed when every record carries an embedding, or when the
// index serves sparse retrieval only.
func Build(ctx context.Context, label string, records []Record, embedder ports.Embedder) (*Index, error) {
	idx := &Index{
		label:    label,
		passages: make([]domain.Passage, len(records)),
		vectors:  make([][]float32, len(records)),
		norms:    make([]float64, len(records)),
		embedder: embedder,
	}

	texts := make([]string, len(records))
	var pending []int
	for i, rec := range records {
		idx.passages[i] = domain.Passage{NodeID: rec.NodeID, Text: rec.Text, Metadata: rec.Metadata}
		texts[i] = rec.Text
		if len(rec.Embedding) > 0 {
			idx.vectors[i] = rec.Embedding
		} else {
			pending = append(pending, i)
		}
	}

	if len(pending) > 0 && embedder != nil {
		for start := 0; start < len(pending); start += embedBatchSize {
			batch := pending[start:min(start+embedBatchSize, len(pending))]
			inputs := make([]string, len(batch))
			for j, i := range batch {
				inputs[j] = texts[i]
			}
			vecs, err := embedder.Embed(ctx, inputs)
			if err != nil {
				return nil, fmt.Errorf("embed corpus %s: %w", label, err)
			}
			if len(vecs) != len(batch) {
				return nil, fmt.Errorf("embed corpus %s: expected %d vectors, got %d", label, len(batch), len(vecs))
			}
			for j, i := range batch {
				idx.vectors[i] = vecs[j]
			}
		}
	}

	for i, v := range idx.vectors {
		idx.norms[i] = l2(v)
	}
	idx.lexical = newBM25(texts)
	idx.version = contentVersion(idx.passages, idx.vectors)
	return idx, nil
}

func (i *Index) Label() string   { return i.label }
func (i *Index) Version() string { return i.version }
func (i *Index) Len() int        { return len(i.passages) }

func (i *Index) Dense() ports.PassageRetriever  { return denseRetriever{i} }
func (i *Index) Sparse() ports.PassageRetriever { return sparseRetriever{i} }

type denseRetriever struct{ idx *Index }

func (r denseRetriever) Retrieve(ctx context.Context, query string, k int) ([]domain.Passage, error) {
	// without a query embedder the index is sparse-only
	if k <= 0 || len(r.idx.passages) == 0 || r.idx.embedder == nil {
		return []domain.Passage{}, nil
	}
	q, err := r.idx.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	qn := l2(q)
	if qn == 0 {
		return []domain.Passage{}, nil
	}

	scores := make(map[int]float64, len(r.idx.passages))
	for doc, v := range r.idx.vectors {
		if r.idx.norms[doc] == 0 || len(v) != len(q) {
			continue
		}
		scores[doc] = dot(q, v) / (qn * r.idx.norms[doc])
	}
	return r.idx.top(scores, k), nil
}

type sparseRetriever struct{ idx *Index }

func (r sparseRetriever) Retrieve(ctx context.Context, query string, k int) ([]domain.Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []domain.Passage{}, nil
	}
	return r.idx.top(r.idx.lexical.score(query), k), nil
}

// top returns fresh passages for the k best docs, score desc then node id asc.
func (i *Index) top(scores map[int]float64, k int) []domain.Passage {
	docs := make([]int, 0, len(scores))
	for doc := range scores {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(a, b int) bool {
		sa, sb := scores[docs[a]], scores[docs[b]]
		if sa != sb {
			return sa > sb
		}
		return i.passages[docs[a]].NodeID < i.passages[docs[b]].NodeID
	})
	if len(docs) > k {
		docs = docs[:k]
	}

	out := make([]domain.Passage, len(docs))
	for n, doc := range docs {
		p := i.passages[doc]
		md := make(map[string]string, len(p.Metadata))
		for key, v := range p.Metadata {
			md[key] = v
		}
		out[n] = domain.Passage{NodeID: p.NodeID, Text: p.Text, Metadata: md, Score: scores[doc]}
	}
	return out
}

func contentVersion(passages []domain.Passage, vectors [][]float32) string {
	h := sha256.New()
	var buf [4]byte
	for n, p := range passages {
		fmt.Fprintf(h, "%s\x00%s\x00", p.NodeID, p.Text)
		keys := make([]string, 0, len(p.Metadata))
		for k := range p.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(h, "%s=%s\x00", k, p.Metadata[k])
		}
		for _, f := range vectors[n] {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
			h.Write(buf[:])
		}
	}
	return "mem-" + hex.EncodeToString(h.Sum(nil))[:16]
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func l2(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}
