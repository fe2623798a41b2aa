package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/retrieval-fusion/internal/adapters/report"
	"github.com/kirillkom/retrieval-fusion/internal/bootstrap"
	"github.com/kirillkom/retrieval-fusion/internal/config"
	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
)

var envKeyReplacer = strings.NewReplacer("-", "_")

type inspectOptions struct {
	Question      string
	Match         string
	NodeID        string
	MaxCandidates int
	FullText      bool
	SkipReranker  bool
	ReportPath    string
}

// run returns an error only when the pipeline cannot be built or the report cannot be
// written. Inspection failures end up inside the report.
func run(ctx context.Context, cfg config.Config, opts inspectOptions, logger *slog.Logger) (string, error) {
	app, err := bootstrap.New(ctx, cfg, bootstrap.WithLogger(logger))
	if err != nil {
		return "", fmt.Errorf("initialize pipeline: %w", err)
	}
	defer app.Close()

	rep, inspectErr := app.Inspector.Inspect(ctx, domain.InspectRequest{
		Question:        opts.Question,
		MatchSubstring:  opts.Match,
		MatchNodeID:     opts.NodeID,
		MaxCandidates:   opts.MaxCandidates,
		IncludeFullText: opts.FullText,
		RunReranker:     !opts.SkipReranker,
	})
	if inspectErr != nil {
		logger.Warn("inspect_failed", "error", inspectErr)
	}
	if err := writeReport(opts.ReportPath, opts.Question, rep, inspectErr); err != nil {
		return "", err
	}
	return opts.ReportPath, nil
}

func writeReport(path, question string, rep *domain.InspectReport, inspectErr error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}

	if inspectErr != nil {
		_, err = fmt.Fprintf(f, "question: %s\nerror: %v\n", question, inspectErr)
	} else {
		err = report.WriteText(f, rep)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
