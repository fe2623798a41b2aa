// Package lexical is a model-free CrossEncoder used when no scoring service is
// configured. It ranks by query-term coverage with a bonus for the verbatim phrase.
package lexical

import (
	"context"
	"strings"

	"github.com/kirillkom/retrieval-fusion/internal/infrastructure/textproc"
)

const (
	coverageWeight = 0.8
	phraseWeight   = 0.2
)

type Scorer struct{}

func New() Scorer { return Scorer{} }

// Score is a pure function of its arguments and returns values in [0, 1].
func (Scorer) Score(ctx context.Context, question string, passages []string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := uniqueTokens(question)
	phrase := strings.Join(textproc.Tokenize(question), " ")

	out := make([]float64, len(passages))
	for i, p := range passages {
		out[i] = score(query, phrase, p)
	}
	return out, nil
}

func score(query map[string]struct{}, phrase, passage string) float64 {
	if len(query) == 0 {
		return 0
	}
	tokens := textproc.Tokenize(passage)
	present := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		present[tok] = struct{}{}
	}
	matches := 0
	for tok := range query {
		if _, ok := present[tok]; ok {
			matches++
		}
	}
	s := coverageWeight * float64(matches) / float64(len(query))
	if len(query) > 1 && strings.Contains(strings.Join(tokens, " "), phrase) {
		s += phraseWeight
	}
	return s
}

func uniqueTokens(s string) map[string]struct{} {
	tokens := textproc.Tokenize(s)
	out := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		out[tok] = struct{}{}
	}
	return out
}
