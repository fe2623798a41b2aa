package qdrant

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
	"github.com/kirillkom/retrieval-fusion/internal/core/ports"
)

const (
	DenseVectorName  = "dense"
	SparseVectorName = "sparse"
)

// Index exposes one qdrant collection holding a named dense vector and a named sparse
// vector per passage.
type Index struct {
	client     *Client
	label      string
	collection string
	version    string
	embedder   ports.Embedder
}

// Open reads the collection description once and derives the version token from it.
// The collection is treated as read-only for the lifetime of the process.
func Open(ctx context.Context, client *Client, label, collection string, embedder ports.Embedder) (*Index, error) {
	info, err := client.collection(ctx, collection)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "open qdrant index "+label, err)
	}
	return &Index{
		client:     client,
		label:      label,
		collection: collection,
		version:    collectionVersion(collection, info),
		embedder:   embedder,
	}, nil
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
	vector, err := r.idx.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	points, err := r.idx.client.search(ctx, r.idx.collection, map[string]any{
		"vector":       map[string]any{"name": DenseVectorName, "vector": vector},
		"limit":        k,
		"with_payload": true,
	})
	if err != nil {
		return nil, err
	}
	return toPassages(points), nil
}

type sparseRetriever struct{ idx *Index }

func (r sparseRetriever) Retrieve(ctx context.Context, query string, k int) ([]domain.Passage, error) {
	sv := encodeSparseQuery(query)
	if k <= 0 || len(sv.Indices) == 0 {
		return []domain.Passage{}, nil
	}
	points, err := r.idx.client.search(ctx, r.idx.collection, map[string]any{
		"vector":       map[string]any{"name": SparseVectorName, "vector": sv},
		"limit":        k,
		"with_payload": true,
	})
	if err != nil {
		return nil, err
	}
	return toPassages(points), nil
}

func toPassages(points []scoredPoint) []domain.Passage {
	out := make([]domain.Passage, 0, len(points))
	for _, p := range points {
		nodeID := payloadString(p.Payload, "node_id")
		if nodeID == "" {
			nodeID = fmt.Sprint(p.ID)
		}
		md := make(map[string]string, len(p.Payload))
		for key, v := range p.Payload {
			if key == "text" || key == "node_id" {
				continue
			}
			md[key] = payloadString(p.Payload, key)
		}
		out = append(out, domain.Passage{
			NodeID:   nodeID,
			Text:     payloadString(p.Payload, "text"),
			Metadata: md,
			Score:    p.Score,
		})
	}
	return out
}

func payloadString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func collectionVersion(collection string, info collectionInfo) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00", collection, info.PointsCount)
	if len(info.Config) > 0 {
		keys := make([]string, 0, len(info.Config))
		for k := range info.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			raw, _ := json.Marshal(info.Config[k])
			fmt.Fprintf(h, "%s=%s\x00", k, raw)
		}
	}
	return "qdrant-" + hex.EncodeToString(h.Sum(nil))[:16]
}
