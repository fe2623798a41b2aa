// Package report renders debug replays as plain text.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
)

// WriteText writes the per-stage report. Metadata keys are printed sorted.
func WriteText(w io.Writer, r *domain.InspectReport) error {
	p := &printer{w: w}
	p.line("report_id: %s", r.ID)
	p.line("question: %s", r.Question)
	p.line("retriever_type: %s", r.RetrieverType)
	p.line("")

	p.line("== routes ==")
	for _, route := range r.Routes {
		status := "ok"
		if route.Error != "" {
			status = "error: " + route.Error
		}
		p.line("- index=%s version=%s budget=%d/%d/%d candidates=%d domains=%s %s",
			route.Route.Index, orDash(route.Version),
			route.Route.Budget.Candidates, route.Route.Budget.Vector, route.Route.Budget.Sparse,
			route.Candidates, orDash(strings.Join(route.Route.Domains, ",")), status)
	}
	for _, note := range r.Degraded {
		p.line("degraded: %s", note)
	}
	p.line("")

	p.line("== matches ==")
	if len(r.Matches) == 0 {
		p.line("(none)")
	}
	for _, m := range r.Matches {
		p.line("- stage=%s rank=%d node=%s file=%s", m.Stage, m.Rank, m.Candidate.NodeID, m.Candidate.Filename())
	}
	p.line("")

	p.stage(r.Retrieval)
	p.stage(r.Rerank)
	return p.err
}

// Text is WriteText into a string.
func Text(r *domain.InspectReport) string {
	var b strings.Builder
	_ = WriteText(&b, r)
	return b.String()
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) stage(s domain.StageResult) {
	p.line("== stage: %s ==", s.Stage)
	if s.Skipped {
		p.line("(skipped)")
		p.line("")
		return
	}
	if len(s.Candidates) == 0 {
		p.line("(no candidates)")
	}
	for i, c := range s.Candidates {
		p.line("#%d node=%s source=%s file=%s", i+1, c.NodeID, c.Source, c.Filename())
		p.line("   fused=%.6f vector=%s bm25=%s rerank=%s",
			c.FusedScore, optScore(c.VectorScore, c.VectorRank), optScore(c.BM25Score, c.BM25Rank), optRerank(c))
		keys := make([]string, 0, len(c.Metadata))
		for k := range c.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			p.line("   meta %s=%v", k, c.Metadata[k])
		}
		p.line("   text: %s", strings.ReplaceAll(c.Text, "\n", " "))
	}
	p.line("")
}

func optScore(score *float64, rank *int) string {
	if score == nil {
		return "-"
	}
	if rank == nil {
		return fmt.Sprintf("%.6f", *score)
	}
	return fmt.Sprintf("%.6f(rank %d)", *score, *rank)
}

func optRerank(c domain.Candidate) string {
	if c.RerankScore == nil {
		return "-"
	}
	return fmt.Sprintf("%.6f", *c.RerankScore)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
