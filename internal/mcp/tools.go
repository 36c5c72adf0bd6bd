package mcp

import "github.com/mark3labs/mcp-go/mcp"

// roleEnum is the closed set of access roles tools accept.
var roleEnum = []string{"finance", "marketing", "hr", "engineering", "employee", "c-level"}

// askQuestionTool defines the ask_question MCP tool.
var askQuestionTool = mcp.NewTool("ask_question",
	mcp.WithDescription("Ask the company knowledge base a question. Runs the full retrieval pipeline and returns a sourced answer with a confidence estimate."),
	mcp.WithString("question",
		mcp.Required(),
		mcp.Description("Natural language question"),
	),
	mcp.WithString("role",
		mcp.Required(),
		mcp.Description("Access role the question is asked under; controls which departments are searched"),
		mcp.Enum(roleEnum...),
	),
)

// searchDocumentsTool defines the search_documents MCP tool.
var searchDocumentsTool = mcp.NewTool("search_documents",
	mcp.WithDescription("Search the indexed documents directly without generating an answer. Returns matching chunks with relevance scores."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language search query"),
	),
	mcp.WithString("role",
		mcp.Required(),
		mcp.Description("Access role the search runs under"),
		mcp.Enum(roleEnum...),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of chunks to return (default 5)"),
	),
)

// listCollectionsTool defines the list_collections MCP tool.
var listCollectionsTool = mcp.NewTool("list_collections",
	mcp.WithDescription("List the department collections a role can read, with document and chunk counts."),
	mcp.WithString("role",
		mcp.Required(),
		mcp.Description("Access role to resolve"),
		mcp.Enum(roleEnum...),
	),
)
