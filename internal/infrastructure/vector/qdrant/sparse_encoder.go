package qdrant

import (
	"math"
	"sort"

	"github.com/kirillkom/retrieval-fusion/internal/infrastructure/textproc"
)

type sparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

const (
	querySaturationK = 1.2
	maxSparseTerms   = 256
)

// encodeSparseQuery builds the hashed, saturated term-frequency vector matched against
// the collection's "sparse" named vector. Documents are encoded the same way at ingestion.
func encodeSparseQuery(query string) sparseVector {
	tf := make(map[uint32]float64, 32)
	for _, tok := range textproc.Tokenize(query) {
		tf[textproc.HashToken(tok)]++
	}
	if len(tf) == 0 {
		return sparseVector{}
	}

	indices := make([]uint32, 0, len(tf))
	for idx := range tf {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	if len(indices) > maxSparseTerms {
		indices = indices[:maxSparseTerms]
	}

	values := make([]float32, 0, len(indices))
	for _, idx := range indices {
		f := tf[idx]
		w := (f * (querySaturationK + 1.0)) / (f + querySaturationK)
		if math.IsNaN(w) || math.IsInf(w, 0) {
			w = 0
		}
		values = append(values, float32(w))
	}
	return sparseVector{Indices: indices, Values: values}
}
