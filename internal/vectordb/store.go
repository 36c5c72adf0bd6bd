package vectordb

import (
	"context"

	"github.com/ziadkadry99/finchat/internal/access"
)

// Store defines the interface for storing and searching chunks by embedding.
// Every operation is scoped to a single department collection; cross-
// collection queries do not exist at this layer.
type Store interface {
	// Add adds or updates chunks in the given collection.
	Add(ctx context.Context, collection access.Collection, chunks []Chunk) error

	// SearchCollection performs a similarity search within one collection.
	SearchCollection(ctx context.Context, collection access.Collection, query string, k int) ([]SearchResult, error)

	// DeleteDocument removes all chunks belonging to the given document.
	DeleteDocument(ctx context.Context, collection access.Collection, documentID string) error

	// Count returns the number of chunks in one collection.
	Count(collection access.Collection) int

	// TotalCount returns the number of chunks across all collections.
	TotalCount() int

	// Persist saves the store's data under the given directory.
	Persist(ctx context.Context, dir string) error

	// Load restores the store's data from the given directory.
	Load(ctx context.Context, dir string) error
}

// Searcher is the read-only slice of Store the retrieval pipeline needs.
type Searcher interface {
	SearchCollection(ctx context.Context, collection access.Collection, query string, k int) ([]SearchResult, error)
}
