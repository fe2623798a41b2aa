package memory

import (
	"math"

	"github.com/kirillkom/retrieval-fusion/internal/infrastructure/textproc"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// bm25 is an immutable Okapi BM25 index over the corpus text.
type bm25 struct {
	postings map[string][]posting
	docLen   []float64
	avgLen   float64
	n        float64
}

type posting struct {
	doc int
	tf  float64
}

func newBM25(texts []string) *bm25 {
	idx := &bm25{
		postings: make(map[string][]posting),
		docLen:   make([]float64, len(texts)),
		n:        float64(len(texts)),
	}
	total := 0.0
	for doc, text := range texts {
		tf := textproc.TermFrequencies(text)
		length := 0
		for term, count := range tf {
			idx.postings[term] = append(idx.postings[term], posting{doc: doc, tf: float64(count)})
			length += count
		}
		idx.docLen[doc] = float64(length)
		total += float64(length)
	}
	if idx.n > 0 {
		idx.avgLen = total / idx.n
	}
	return idx
}

// score returns a sparse map doc -> BM25 score for the query; docs without any
// query term are absent.
func (b *bm25) score(query string) map[int]float64 {
	scores := make(map[int]float64)
	if b.n == 0 || b.avgLen == 0 {
		return scores
	}
	for term := range textproc.TermFrequencies(query) {
		plist := b.postings[term]
		if len(plist) == 0 {
			continue
		}
		df := float64(len(plist))
		idf := math.Log(1 + (b.n-df+0.5)/(df+0.5))
		for _, p := range plist {
			norm := p.tf + bm25K1*(1-bm25B+bm25B*b.docLen[p.doc]/b.avgLen)
			scores[p.doc] += idf * p.tf * (bm25K1 + 1) / norm
		}
	}
	return scores
}
