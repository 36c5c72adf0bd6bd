package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/finchat/internal/access"
	"github.com/ziadkadry99/finchat/internal/ingest"
	"github.com/ziadkadry99/finchat/internal/rag"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Answerer runs the full answer pipeline. Satisfied by *rag.Pipeline.
type Answerer interface {
	Answer(ctx context.Context, req rag.Request) (*rag.Answer, error)
}

// Retriever performs scoped retrieval without generation. Satisfied by
// *rag.Retriever.
type Retriever interface {
	Retrieve(ctx context.Context, variants []string, scope access.Scope) *rag.RetrievalOutput
}

// Server wraps an MCP server that exposes knowledge base tools.
type Server struct {
	pipeline  Answerer
	retriever Retriever
	docs      *ingest.Store
	mcp       *server.MCPServer
}

// NewServer creates a new MCP server with the given dependencies.
func NewServer(pipeline Answerer, retriever Retriever, docs *ingest.Store) *Server {
	s := &Server{
		pipeline:  pipeline,
		retriever: retriever,
		docs:      docs,
	}

	s.mcp = server.NewMCPServer(
		"finchat",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(askQuestionTool, s.handleAskQuestion)
	s.mcp.AddTool(searchDocumentsTool, s.handleSearchDocuments)
	s.mcp.AddTool(listCollectionsTool, s.handleListCollections)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
