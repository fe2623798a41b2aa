package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
	"github.com/kirillkom/retrieval-fusion/internal/core/ports"
)

// Index serves one label of the passages table: pgvector cosine for dense retrieval and
// ts_rank_cd full-text ranking for sparse retrieval.
type Index struct {
	db       *sql.DB
	label    string
	version  string
	config   string
	embedder ports.Embedder
}

type Option func(*Index)

// WithTextSearchConfig selects the regconfig used by the sparse query.
func WithTextSearchConfig(cfg string) Option {
	return func(i *Index) {
		if cfg != "" {
			i.config = cfg
		}
	}
}

// Open pins the version token of the label's rows at startup.
func Open(ctx context.Context, db *sql.DB, label string, embedder ports.Embedder, opts ...Option) (*Index, error) {
	idx := &Index{db: db, label: label, config: "simple", embedder: embedder}
	for _, opt := range opts {
		opt(idx)
	}

	var count int64
	var digest string
	err := db.QueryRowContext(ctx, `
SELECT count(*), coalesce(md5(string_agg(node_id || ':' || md5(text), ',' ORDER BY node_id)), '')
FROM passages
WHERE index_label = $1
`, label).Scan(&count, &digest)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "open postgres index "+label, err)
	}
	idx.version = fmt.Sprintf("pg-%d-%.16s", count, digest)

	if err := idx.checkTSVConfig(ctx); err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "open postgres index "+label, err)
	}
	return idx, nil
}

// checkTSVConfig fails when the stored tsv column was built with another regconfig than
// the sparse query uses; such a pair stems differently and silently matches nothing.
func (i *Index) checkTSVConfig(ctx context.Context) error {
	if err := checkTextSearchConfig(i.config); err != nil {
		return err
	}
	var expr sql.NullString
	err := i.db.QueryRowContext(ctx, `
SELECT generation_expression
FROM information_schema.columns
WHERE table_name = 'passages' AND column_name = 'tsv'
`).Scan(&expr)
	if err != nil {
		return fmt.Errorf("inspect tsv column: %w", err)
	}
	if !strings.Contains(expr.String, "'"+i.config+"'") {
		return fmt.Errorf("tsv column is generated as %q, text search config is %q", expr.String, i.config)
	}
	return nil
}

func (i *Index) Label() string   { return i.label }
func (i *Index) Version() string { return i.version }

func (i *Index) Dense() ports.PassageRetriever  { return denseRetriever{i} }
func (i *Index) Sparse() ports.PassageRetriever { return sparseRetriever{i} }

type denseRetriever struct{ idx *Index }

func (r denseRetriever) Retrieve(ctx context.Context, query string, k int) ([]domain.Passage, error) {
	if k <= 0 {
		return []domain.Passage{}, nil
	}
	vec, err := r.idx.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	rows, err := r.idx.db.QueryContext(ctx, `
SELECT node_id, text, metadata, 1 - (embedding <=> $2) AS score
FROM passages
WHERE index_label = $1 AND embedding IS NOT NULL
ORDER BY embedding <=> $2, node_id
LIMIT $3
`, r.idx.label, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, fmt.Errorf("dense query %s: %w", r.idx.label, err)
	}
	return scanPassages(rows)
}

type sparseRetriever struct{ idx *Index }

func (r sparseRetriever) Retrieve(ctx context.Context, query string, k int) ([]domain.Passage, error) {
	if k <= 0 {
		return []domain.Passage{}, nil
	}
	rows, err := r.idx.db.QueryContext(ctx, `
SELECT p.node_id, p.text, p.metadata, ts_rank_cd(p.tsv, q) AS score
FROM passages p, plainto_tsquery($2::regconfig, $3) q
WHERE p.index_label = $1 AND p.tsv @@ q
ORDER BY score DESC, p.node_id
LIMIT $4
`, r.idx.label, r.idx.config, query, k)
	if err != nil {
		return nil, fmt.Errorf("sparse query %s: %w", r.idx.label, err)
	}
	return scanPassages(rows)
}

func scanPassages(rows *sql.Rows) ([]domain.Passage, error) {
	defer rows.Close()

	out := make([]domain.Passage, 0)
	for rows.Next() {
		var p domain.Passage
		var metadataRaw []byte
		if err := rows.Scan(&p.NodeID, &p.Text, &metadataRaw, &p.Score); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		if len(metadataRaw) > 0 {
			if err := json.Unmarshal(metadataRaw, &p.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata of %s: %w", p.NodeID, err)
			}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passages: %w", err)
	}
	return out, nil
}
