package mcp

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/finchat/internal/access"
	"github.com/ziadkadry99/finchat/internal/db"
	"github.com/ziadkadry99/finchat/internal/ingest"
	"github.com/ziadkadry99/finchat/internal/rag"
)

// fakeAnswerer implements Answerer for testing.
type fakeAnswerer struct {
	lastReq rag.Request
	answer  *rag.Answer
	err     error
}

func (f *fakeAnswerer) Answer(_ context.Context, req rag.Request) (*rag.Answer, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

// fakeRetriever implements Retriever for testing.
type fakeRetriever struct {
	lastVariants []string
	lastScope    access.Scope
	chunks       []rag.RetrievedChunk
}

func (f *fakeRetriever) Retrieve(_ context.Context, variants []string, scope access.Scope) *rag.RetrievalOutput {
	f.lastVariants = variants
	f.lastScope = scope
	return &rag.RetrievalOutput{Chunks: f.chunks}
}

func answeredFixture() *rag.Answer {
	return &rag.Answer{
		Text:            "The travel budget is 2000 EUR per year. [Source 1]",
		StandaloneQuery: "what is the travel budget",
		Citations: []rag.Citation{
			{DocumentName: "travel-policy.md", Department: access.CollectionFinance, Score: 0.9},
		},
		Confidence: 0.85,
	}
}

func chunkFixture(id, doc string, col access.Collection, score float64) rag.RetrievedChunk {
	return rag.RetrievedChunk{
		ID:           id,
		Collection:   col,
		DocumentName: doc,
		Content:      "chunk content for " + doc,
		Score:        score,
	}
}

func docsStore(t *testing.T) *ingest.Store {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return ingest.NewStore(database)
}

func callReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name     string
		tool     mcp.Tool
		wantName string
	}{
		{"ask_question", askQuestionTool, "ask_question"},
		{"search_documents", searchDocumentsTool, "search_documents"},
		{"list_collections", listCollectionsTool, "list_collections"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.tool.Name != tt.wantName {
				t.Errorf("tool name = %q, want %q", tt.tool.Name, tt.wantName)
			}
			if tt.tool.Description == "" {
				t.Error("tool description should not be empty")
			}
		})
	}
}

func TestNewServer(t *testing.T) {
	pipeline := &fakeAnswerer{answer: answeredFixture()}
	srv := NewServer(pipeline, &fakeRetriever{}, nil)

	if srv == nil {
		t.Fatal("NewServer returned nil")
	}
	if srv.mcp == nil {
		t.Fatal("MCP server not initialized")
	}
	if srv.pipeline != pipeline {
		t.Error("pipeline not set correctly")
	}
}

func TestHandleAskQuestion(t *testing.T) {
	ctx := context.Background()

	t.Run("basic question", func(t *testing.T) {
		pipeline := &fakeAnswerer{answer: answeredFixture()}
		srv := NewServer(pipeline, &fakeRetriever{}, nil)

		result, err := srv.handleAskQuestion(ctx, callReq(map[string]any{
			"question": "what is the travel budget?",
			"role":     "finance",
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}

		if pipeline.lastReq.Role != access.RoleFinance {
			t.Errorf("pipeline role = %q", pipeline.lastReq.Role)
		}
		if pipeline.lastReq.Message != "what is the travel budget?" {
			t.Errorf("pipeline message = %q", pipeline.lastReq.Message)
		}

		text := resultText(t, result)
		if !strings.Contains(text, "2000 EUR") {
			t.Errorf("answer text missing: %q", text)
		}
		if !strings.Contains(text, "travel-policy.md") {
			t.Errorf("sources missing: %q", text)
		}
		if !strings.Contains(text, "Confidence: 85%") {
			t.Errorf("confidence missing: %q", text)
		}
	})

	t.Run("missing question", func(t *testing.T) {
		srv := NewServer(&fakeAnswerer{answer: answeredFixture()}, &fakeRetriever{}, nil)

		result, err := srv.handleAskQuestion(ctx, callReq(map[string]any{"role": "finance"}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error for missing question")
		}
	})

	t.Run("missing role", func(t *testing.T) {
		srv := NewServer(&fakeAnswerer{answer: answeredFixture()}, &fakeRetriever{}, nil)

		result, err := srv.handleAskQuestion(ctx, callReq(map[string]any{"question": "hello"}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error for missing role")
		}
	})

	t.Run("invalid role", func(t *testing.T) {
		srv := NewServer(&fakeAnswerer{answer: answeredFixture()}, &fakeRetriever{}, nil)

		result, err := srv.handleAskQuestion(ctx, callReq(map[string]any{
			"question": "hello",
			"role":     "superuser",
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error for invalid role")
		}
	})

	t.Run("pipeline failure", func(t *testing.T) {
		srv := NewServer(&fakeAnswerer{err: fmt.Errorf("provider unavailable")}, &fakeRetriever{}, nil)

		result, err := srv.handleAskQuestion(ctx, callReq(map[string]any{
			"question": "hello",
			"role":     "employee",
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected tool error for pipeline failure")
		}
	})
}

func TestHandleSearchDocuments(t *testing.T) {
	ctx := context.Background()

	t.Run("basic search", func(t *testing.T) {
		retriever := &fakeRetriever{chunks: []rag.RetrievedChunk{
			chunkFixture("finance/budget.md#0", "budget.md", access.CollectionFinance, 0.9),
			chunkFixture("general/handbook.md#2", "handbook.md", access.CollectionGeneral, 0.7),
		}}
		srv := NewServer(&fakeAnswerer{}, retriever, nil)

		result, err := srv.handleSearchDocuments(ctx, callReq(map[string]any{
			"query": "budget",
			"role":  "finance",
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}

		if len(retriever.lastVariants) != 1 || retriever.lastVariants[0] != "budget" {
			t.Errorf("variants = %v, want the raw query only", retriever.lastVariants)
		}
		if retriever.lastScope.Role != access.RoleFinance {
			t.Errorf("scope role = %q", retriever.lastScope.Role)
		}

		text := resultText(t, result)
		if !strings.Contains(text, "Found 2 result(s)") {
			t.Errorf("result count missing: %q", text)
		}
		if !strings.Contains(text, "budget.md") || !strings.Contains(text, "handbook.md") {
			t.Errorf("documents missing: %q", text)
		}
	})

	t.Run("limit caps results", func(t *testing.T) {
		retriever := &fakeRetriever{chunks: []rag.RetrievedChunk{
			chunkFixture("a#0", "a.md", access.CollectionGeneral, 0.9),
			chunkFixture("b#0", "b.md", access.CollectionGeneral, 0.8),
			chunkFixture("c#0", "c.md", access.CollectionGeneral, 0.7),
		}}
		srv := NewServer(&fakeAnswerer{}, retriever, nil)

		result, err := srv.handleSearchDocuments(ctx, callReq(map[string]any{
			"query": "anything",
			"role":  "employee",
			"limit": 2,
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		text := resultText(t, result)
		if !strings.Contains(text, "Found 2 result(s)") {
			t.Errorf("expected 2 results, got: %q", text)
		}
	})

	t.Run("empty corpus", func(t *testing.T) {
		srv := NewServer(&fakeAnswerer{}, &fakeRetriever{}, nil)

		result, err := srv.handleSearchDocuments(ctx, callReq(map[string]any{
			"query": "anything",
			"role":  "employee",
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Error("empty results should not be an error")
		}
		if !strings.Contains(resultText(t, result), "No matching documents") {
			t.Error("expected the empty-corpus hint")
		}
	})

	t.Run("missing query", func(t *testing.T) {
		srv := NewServer(&fakeAnswerer{}, &fakeRetriever{}, nil)

		result, err := srv.handleSearchDocuments(ctx, callReq(map[string]any{"role": "employee"}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error for missing query")
		}
	})
}

func TestHandleListCollections(t *testing.T) {
	ctx := context.Background()
	docs := docsStore(t)

	seed := func(relPath string, dept access.Collection, chunks int) {
		err := docs.RecordDocument(ctx, ingest.FileInfo{
			Path:        "/corpus/" + relPath,
			RelPath:     relPath,
			Department:  dept,
			ContentHash: "hash-" + relPath,
		}, chunks, "system")
		if err != nil {
			t.Fatalf("RecordDocument: %v", err)
		}
	}
	seed("finance/budget.md", access.CollectionFinance, 4)
	seed("engineering/oncall.md", access.CollectionEngineering, 2)
	seed("general/handbook.md", access.CollectionGeneral, 6)

	srv := NewServer(&fakeAnswerer{}, &fakeRetriever{}, docs)

	t.Run("finance scope", func(t *testing.T) {
		result, err := srv.handleListCollections(ctx, callReq(map[string]any{"role": "finance"}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}

		text := resultText(t, result)
		if !strings.Contains(text, "2 collection(s)") {
			t.Errorf("expected 2 collections for finance: %q", text)
		}
		if !strings.Contains(text, "finance: 1 document(s), 4 chunk(s)") {
			t.Errorf("finance counts missing: %q", text)
		}
		if !strings.Contains(text, "general: 1 document(s), 6 chunk(s)") {
			t.Errorf("general counts missing: %q", text)
		}
		if strings.Contains(text, "engineering") {
			t.Errorf("finance should not list engineering: %q", text)
		}
	})

	t.Run("c-level scope", func(t *testing.T) {
		result, err := srv.handleListCollections(ctx, callReq(map[string]any{"role": "c-level"}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		text := resultText(t, result)
		if !strings.Contains(text, "5 collection(s)") {
			t.Errorf("expected all 5 collections for c-level: %q", text)
		}
	})

	t.Run("missing role", func(t *testing.T) {
		result, err := srv.handleListCollections(ctx, callReq(map[string]any{}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error for missing role")
		}
	})

	t.Run("no docs store", func(t *testing.T) {
		bare := NewServer(&fakeAnswerer{}, &fakeRetriever{}, nil)
		result, err := bare.handleListCollections(ctx, callReq(map[string]any{"role": "employee"}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected tool error: %v", result.Content)
		}
		if !strings.Contains(resultText(t, result), "general: 0 document(s)") {
			t.Errorf("expected zero counts: %q", resultText(t, result))
		}
	})
}

// resultText gets the text content from a CallToolResult.
func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("tool result has no content")
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatalf("tool result content is not text: %v", result.Content)
	return ""
}
