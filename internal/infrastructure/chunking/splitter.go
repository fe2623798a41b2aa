package chunking

import "strings"

// Splitter packs paragraphs into passages of at most ChunkSize runes. Paragraphs longer
// than ChunkSize fall back to a sliding rune window with Overlap.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []string {
	var (
		out     []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if chunk := strings.TrimSpace(current.String()); chunk != "" {
			out = append(out, chunk)
		}
		current.Reset()
		size = 0
	}

	for _, para := range paragraphs(text) {
		n := len([]rune(para))
		if n > s.ChunkSize {
			flush()
			out = append(out, s.window(para)...)
			continue
		}
		if size > 0 && size+2+n > s.ChunkSize {
			flush()
		}
		if size > 0 {
			current.WriteString("\n\n")
			size += 2
		}
		current.WriteString(para)
		size += n
	}
	flush()
	return out
}

func (s *Splitter) window(text string) []string {
	runes := []rune(text)
	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+s.ChunkSize, len(runes))
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		if block = strings.TrimSpace(block); block != "" {
			out = append(out, block)
		}
	}
	return out
}
