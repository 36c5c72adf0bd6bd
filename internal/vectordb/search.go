package vectordb

import (
	"fmt"
	"strings"
)

// FormatResults renders search results as human-readable text.
func FormatResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No results found."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d result(s):\n\n", len(results)))

	for i, r := range results {
		sb.WriteString(fmt.Sprintf("--- Result %d (similarity: %.4f) ---\n", i+1, r.Similarity))
		sb.WriteString(fmt.Sprintf("Document: %s\n", r.Chunk.Metadata.DocumentName))
		sb.WriteString(fmt.Sprintf("Department: %s\n", r.Chunk.Metadata.Collection))
		if r.Chunk.Metadata.ChunkIndex >= 0 {
			sb.WriteString(fmt.Sprintf("Chunk: %d\n", r.Chunk.Metadata.ChunkIndex))
		}
		sb.WriteString("\n")
		sb.WriteString(r.Chunk.Content)
		sb.WriteString("\n\n")
	}

	return sb.String()
}
