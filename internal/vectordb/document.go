package vectordb

import (
	"fmt"
	"time"

	"github.com/ziadkadry99/finchat/internal/access"
)

// Chunk is a bounded span of document text stored and searched by embedding.
type Chunk struct {
	ID       string // document id + chunk index, e.g. "finance/policies.md#2"
	Content  string
	Metadata ChunkMetadata
}

// ChunkMetadata holds structured information about a chunk's origin.
type ChunkMetadata struct {
	DocumentID   string
	DocumentName string
	Collection   access.Collection
	ChunkIndex   int
	ContentHash  string
	UploaderRole string
	IndexedAt    time.Time
}

// ChunkID builds the canonical chunk identifier from a document id and the
// chunk's position within it.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s#%d", documentID, index)
}

// SearchResult pairs a chunk with its similarity to the query.
type SearchResult struct {
	Chunk      Chunk
	Similarity float32
}
