package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/finchat/internal/access"
	"github.com/ziadkadry99/finchat/internal/rag"
)

// roleArg parses and validates the role argument shared by all tools.
func roleArg(request mcp.CallToolRequest) (access.Role, *mcp.CallToolResult) {
	raw, err := request.RequireString("role")
	if err != nil {
		return "", mcp.NewToolResultError("missing required parameter: role")
	}
	role, err := access.ParseRole(raw)
	if err != nil {
		return "", mcp.NewToolResultError(err.Error())
	}
	return role, nil
}

// handleAskQuestion runs the full answer pipeline for a question.
func (s *Server) handleAskQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: question"), nil
	}
	role, errResult := roleArg(request)
	if errResult != nil {
		return errResult, nil
	}

	answer, err := s.pipeline.Answer(ctx, rag.Request{Role: role, Message: question})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("answering failed: %v", err)), nil
	}

	return mcp.NewToolResultText(formatAnswer(answer)), nil
}

// handleSearchDocuments performs scoped retrieval without generation.
func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}
	role, errResult := roleArg(request)
	if errResult != nil {
		return errResult, nil
	}

	limit := request.GetInt("limit", rag.DefaultParams().TopK)
	if limit <= 0 {
		limit = rag.DefaultParams().TopK
	}

	out := s.retriever.Retrieve(ctx, []string{query}, access.NewScope(role))
	ranked := rag.RankChunks(out.Chunks, limit)

	if len(ranked) == 0 {
		return mcp.NewToolResultText("No matching documents found. The corpus may not be indexed yet. Run `finchat ingest` to index it."), nil
	}

	return mcp.NewToolResultText(formatSearchResults(ranked)), nil
}

// handleListCollections resolves a role to its readable departments and
// their document counts.
func (s *Server) handleListCollections(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	role, errResult := roleArg(request)
	if errResult != nil {
		return errResult, nil
	}

	counts := map[access.Collection][2]int{}
	if s.docs != nil {
		stats, err := s.docs.Stats(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("reading document stats: %v", err)), nil
		}
		for _, st := range stats {
			counts[st.Collection] = [2]int{st.Documents, st.Chunks}
		}
	}

	cols := access.ScopeFor(role)
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Role %q can read %d collection(s):\n", role, len(cols)))
	for _, c := range cols {
		n := counts[c]
		sb.WriteString(fmt.Sprintf("- %s: %d document(s), %d chunk(s)\n", c, n[0], n[1]))
	}

	return mcp.NewToolResultText(sb.String()), nil
}

// formatAnswer converts a pipeline answer into a rich text format
// optimized for AI agent consumption.
func formatAnswer(answer *rag.Answer) string {
	var sb strings.Builder
	sb.WriteString(answer.Text)
	sb.WriteString("\n")

	if len(answer.Citations) > 0 {
		sb.WriteString("\nSources:\n")
		for _, c := range answer.Citations {
			sb.WriteString(fmt.Sprintf("- %s (%s, relevance %.0f%%)\n", c.DocumentName, c.Department, c.Score*100))
		}
	}

	sb.WriteString(fmt.Sprintf("\nConfidence: %.0f%%\n", answer.Confidence*100))
	if answer.Degraded {
		sb.WriteString("Note: some pipeline stages were unavailable; the answer may be incomplete.\n")
	}

	return sb.String()
}

// formatSearchResults converts ranked chunks into a rich text format
// optimized for AI agent consumption.
func formatSearchResults(results []rag.RankedChunk) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d result(s):\n", len(results)))

	for i, r := range results {
		sb.WriteString(fmt.Sprintf("\n--- Result %d ---\n", i+1))
		sb.WriteString(fmt.Sprintf("Document: %s\n", r.DocumentName))
		sb.WriteString(fmt.Sprintf("Department: %s\n", r.Collection))
		sb.WriteString(fmt.Sprintf("Relevance: %.1f%%\n", r.Score*100))
		sb.WriteString("\n")
		sb.WriteString(r.Content)
		sb.WriteString("\n")
	}

	return sb.String()
}
