package memory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
)

// Record is one JSONL line of a corpus file. Embedding is optional; when absent the
// passage is embedded while the index is built.
type Record struct {
	NodeID    string            `json:"node_id"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding []float32         `json:"embedding,omitempty"`
}

func LoadCorpusFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "open corpus", err)
	}
	defer f.Close()
	records, err := ReadCorpus(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// ReadCorpus parses JSONL records. Blank lines are skipped, node ids must be unique.
func ReadCorpus(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var out []Record
	seen := make(map[string]struct{})
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, domain.WrapError(domain.ErrConfiguration, "parse corpus", fmt.Errorf("line %d: %w", line, err))
		}
		rec.NodeID = strings.TrimSpace(rec.NodeID)
		if rec.NodeID == "" {
			return nil, domain.WrapError(domain.ErrConfiguration, "parse corpus", fmt.Errorf("line %d: node_id is required", line))
		}
		if _, dup := seen[rec.NodeID]; dup {
			return nil, domain.WrapError(domain.ErrConfiguration, "parse corpus", fmt.Errorf("line %d: duplicate node_id %q", line, rec.NodeID))
		}
		seen[rec.NodeID] = struct{}{}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "read corpus", err)
	}
	return out, nil
}
