package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ziadkadry99/finchat/internal/access"
	"github.com/ziadkadry99/finchat/internal/vectordb"
)

// Retriever fans similarity searches out across every (variant, collection)
// pair the caller's scope allows, with bounded parallelism and a per-call
// timeout. A failed or slow search contributes an empty result and a
// warning, never an error for the turn.
type Retriever struct {
	searcher vectordb.Searcher
	params   Params
	logger   *slog.Logger
}

func NewRetriever(searcher vectordb.Searcher, params Params, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{searcher: searcher, params: params.Normalize(), logger: logger}
}

// Retrieve runs the fan-out and returns every hit at or above the
// similarity threshold, tagged with the variant and collection that
// produced it. Hits are unmerged; the ranker deduplicates.
func (r *Retriever) Retrieve(ctx context.Context, variants []string, scope access.Scope) *RetrievalOutput {
	collections := scope.Collections()
	out := &RetrievalOutput{}
	if len(variants) == 0 || len(collections) == 0 {
		return out
	}

	sem := make(chan struct{}, r.params.Concurrency)
	var mu sync.Mutex
	var wg sync.WaitGroup

scheduling:
	for vi, variant := range variants {
		for _, col := range collections {
			// Check before select: a canceled context must stop scheduling
			// even while semaphore slots are free.
			if err := ctx.Err(); err != nil {
				mu.Lock()
				out.Warnings = append(out.Warnings, fmt.Sprintf("retrieval canceled: %v", err))
				mu.Unlock()
				break scheduling
			}

			select {
			case <-ctx.Done():
				mu.Lock()
				out.Warnings = append(out.Warnings, fmt.Sprintf("retrieval canceled: %v", ctx.Err()))
				mu.Unlock()
				break scheduling
			case sem <- struct{}{}:
			}

			wg.Add(1)
			go func(vi int, variant string, col access.Collection) {
				defer wg.Done()
				defer func() { <-sem }()

				callCtx, cancel := context.WithTimeout(ctx, r.params.RetrievalTimeout)
				defer cancel()

				results, err := r.searcher.SearchCollection(callCtx, col, variant, r.params.TopK)
				if err != nil {
					mu.Lock()
					out.Warnings = append(out.Warnings, fmt.Sprintf("search %s (variant %d): %v", col, vi, err))
					mu.Unlock()
					r.logger.Warn("collection search failed", "collection", col, "variant", vi, "error", err)
					return
				}

				mu.Lock()
				defer mu.Unlock()
				for _, res := range results {
					// Compare in float32: stores report float32 similarity,
					// and widening 0.7 would drop exact-threshold hits.
					if res.Similarity < float32(r.params.SimilarityThreshold) {
						continue
					}
					if res.Chunk.Metadata.Collection != col {
						// A chunk tagged for another department must never
						// ride in on this collection's results.
						out.Warnings = append(out.Warnings, fmt.Sprintf("dropped mislabeled chunk %s returned by %s", res.Chunk.ID, col))
						continue
					}
					out.Chunks = append(out.Chunks, RetrievedChunk{
						ID:           res.Chunk.ID,
						Collection:   col,
						DocumentName: res.Chunk.Metadata.DocumentName,
						Content:      res.Chunk.Content,
						Score:        float64(res.Similarity),
						UploaderRole: res.Chunk.Metadata.UploaderRole,
						VariantIndex: vi,
					})
				}
			}(vi, variant, col)
		}
	}

	wg.Wait()

	// Goroutine completion order is nondeterministic; keep warnings stable.
	sort.Strings(out.Warnings)
	return out
}
