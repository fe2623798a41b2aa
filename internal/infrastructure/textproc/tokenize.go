// Package textproc holds the tokenizer shared by every lexical scorer, so sparse
// retrieval, hashed sparse vectors and lexical reranking agree on what a term is.
package textproc

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// Tokenize lowercases s and splits it on anything that is not a letter or digit.
func Tokenize(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		flush()
	}
	flush()
	return out
}

// TermFrequencies counts tokens of s.
func TermFrequencies(s string) map[string]int {
	tokens := Tokenize(s)
	tf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}
	return tf
}

// HashToken maps a token to a non-zero 32-bit sparse dimension.
func HashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	if sum := h.Sum32(); sum != 0 {
		return sum
	}
	return 1
}
