// Package mcpadapter exposes passage retrieval as an MCP tool.
package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
	"github.com/kirillkom/retrieval-fusion/internal/core/ports"
)

const ToolRetrievePassages = "retrieve_passages"

type Tools struct {
	retrieval ports.PassageRetrievalService
	logger    *slog.Logger
}

func NewTools(retrieval ports.PassageRetrievalService, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{retrieval: retrieval, logger: logger}
}

// NewServer registers the retrieval tool on a fresh MCP server.
func NewServer(name, version string, tools *Tools) *server.MCPServer {
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(false))
	s.AddTool(retrievePassagesTool(), tools.RetrievePassages)
	return s
}

func retrievePassagesTool() mcp.Tool {
	return mcp.NewTool(ToolRetrievePassages,
		mcp.WithDescription("Retrieve ranked knowledge base passages for a question. Returns JSON with passages, a reranked flag and degradation notes."),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Natural language question to retrieve passages for."),
		),
		mcp.WithNumber("top_n",
			mcp.Description("Maximum number of passages to return. Defaults to the service setting."),
		),
	)
}

type toolPassage struct {
	NodeID   string            `json:"node_id"`
	Source   string            `json:"source"`
	Score    float64           `json:"score"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type toolResult struct {
	Passages []toolPassage `json:"passages"`
	Reranked bool          `json:"reranked"`
	Degraded []string      `json:"degraded,omitempty"`
}

func (t *Tools) RetrievePassages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil || strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("question is required"), nil
	}
	topN := request.GetInt("top_n", 0)
	if topN < 0 {
		return mcp.NewToolResultError("top_n must not be negative"), nil
	}

	result, err := t.retrieval.Retrieve(ctx, question, domain.Overrides{TopN: topN})
	if err != nil {
		t.logger.Error("mcp_retrieve_failed", "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	out := toolResult{
		Passages: make([]toolPassage, 0, len(result.Candidates)),
		Reranked: result.Reranked,
		Degraded: result.Degraded,
	}
	for _, c := range result.Candidates {
		out.Passages = append(out.Passages, toolPassage{
			NodeID:   c.NodeID,
			Source:   c.Source,
			Score:    c.Score(),
			Text:     c.Text,
			Metadata: c.Metadata,
		})
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(payload)), nil
}
