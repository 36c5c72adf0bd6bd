package vectordb

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/ziadkadry99/finchat/internal/access"
)

// mockEmbedder returns deterministic embeddings based on text content.
// It produces a simple hash-based vector for reproducible tests.
type mockEmbedder struct {
	dims int
}

func newMockEmbedder(dims int) *mockEmbedder {
	return &mockEmbedder{dims: dims}
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		results[i] = m.deterministicVector(text)
	}
	return results, nil
}

func (m *mockEmbedder) Dimensions() int { return m.dims }
func (m *mockEmbedder) Name() string    { return "mock" }

// deterministicVector produces a normalized vector from text. Similar texts
// produce similar vectors because shared characters contribute to the same
// positions.
func (m *mockEmbedder) deterministicVector(text string) []float32 {
	vec := make([]float32, m.dims)
	for i, ch := range text {
		idx := (int(ch) + i) % m.dims
		vec[idx] += 1.0
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

func testChunk(id, content string, collection access.Collection, docID string, index int) Chunk {
	return Chunk{
		ID:      id,
		Content: content,
		Metadata: ChunkMetadata{
			DocumentID:   docID,
			DocumentName: docID,
			Collection:   collection,
			ChunkIndex:   index,
			ContentHash:  "hash-" + id,
			UploaderRole: "hr",
			IndexedAt:    time.Now(),
		},
	}
}

func TestChromemStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	store, err := NewChromemStore(newMockEmbedder(64))
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}

	hrChunks := []Chunk{
		testChunk("hr/leave.md#0", "Employees accrue twenty days of paid vacation leave per year", access.CollectionHR, "hr/leave.md", 0),
		testChunk("hr/leave.md#1", "Parental leave extends to sixteen weeks for primary caregivers", access.CollectionHR, "hr/leave.md", 1),
	}
	generalChunks := []Chunk{
		testChunk("general/handbook.md#0", "The office opens at nine and closes at six on weekdays", access.CollectionGeneral, "general/handbook.md", 0),
	}

	if err := store.Add(ctx, access.CollectionHR, hrChunks); err != nil {
		t.Fatalf("Add hr: %v", err)
	}
	if err := store.Add(ctx, access.CollectionGeneral, generalChunks); err != nil {
		t.Fatalf("Add general: %v", err)
	}

	if got := store.Count(access.CollectionHR); got != 2 {
		t.Errorf("Count(hr): got %d, want 2", got)
	}
	if got := store.TotalCount(); got != 3 {
		t.Errorf("TotalCount: got %d, want 3", got)
	}

	results, err := store.SearchCollection(ctx, access.CollectionHR, "vacation leave days", 2)
	if err != nil {
		t.Fatalf("SearchCollection: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Chunk.Metadata.Collection != access.CollectionHR {
			t.Errorf("result from wrong collection: %s", r.Chunk.Metadata.Collection)
		}
	}
}

func TestChromemStore_SearchIsCollectionScoped(t *testing.T) {
	ctx := context.Background()
	store, err := NewChromemStore(newMockEmbedder(64))
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}

	finance := []Chunk{
		testChunk("finance/q4.md#0", "Quarterly revenue grew twelve percent year over year", access.CollectionFinance, "finance/q4.md", 0),
	}
	if err := store.Add(ctx, access.CollectionFinance, finance); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Searching the general collection must never surface finance chunks,
	// even with an identical query.
	results, err := store.SearchCollection(ctx, access.CollectionGeneral, "quarterly revenue growth", 5)
	if err != nil {
		t.Fatalf("SearchCollection: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results from empty general collection, got %d", len(results))
	}
}

func TestChromemStore_SearchEmptyCollection(t *testing.T) {
	ctx := context.Background()
	store, err := NewChromemStore(newMockEmbedder(32))
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}

	results, err := store.SearchCollection(ctx, access.CollectionMarketing, "campaign performance", 5)
	if err != nil {
		t.Fatalf("SearchCollection on empty collection: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results, got %v", results)
	}
}

func TestChromemStore_KLargerThanCollection(t *testing.T) {
	ctx := context.Background()
	store, err := NewChromemStore(newMockEmbedder(32))
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}

	chunks := []Chunk{
		testChunk("general/a.md#0", "alpha content block", access.CollectionGeneral, "general/a.md", 0),
	}
	if err := store.Add(ctx, access.CollectionGeneral, chunks); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := store.SearchCollection(ctx, access.CollectionGeneral, "alpha", 10)
	if err != nil {
		t.Fatalf("SearchCollection: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
}

func TestChromemStore_DeleteDocument(t *testing.T) {
	ctx := context.Background()
	store, err := NewChromemStore(newMockEmbedder(32))
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}

	chunks := []Chunk{
		testChunk("hr/old.md#0", "outdated policy text", access.CollectionHR, "hr/old.md", 0),
		testChunk("hr/old.md#1", "more outdated policy text", access.CollectionHR, "hr/old.md", 1),
		testChunk("hr/new.md#0", "current policy text", access.CollectionHR, "hr/new.md", 0),
	}
	if err := store.Add(ctx, access.CollectionHR, chunks); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := store.DeleteDocument(ctx, access.CollectionHR, "hr/old.md"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	if got := store.Count(access.CollectionHR); got != 1 {
		t.Errorf("Count after delete: got %d, want 1", got)
	}
}

func TestChromemStore_MetadataRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewChromemStore(newMockEmbedder(32))
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}

	in := testChunk("engineering/arch.md#4", "service boundaries and ownership", access.CollectionEngineering, "engineering/arch.md", 4)
	if err := store.Add(ctx, access.CollectionEngineering, []Chunk{in}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := store.SearchCollection(ctx, access.CollectionEngineering, "service boundaries", 1)
	if err != nil {
		t.Fatalf("SearchCollection: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	got := results[0].Chunk.Metadata
	if got.DocumentID != "engineering/arch.md" {
		t.Errorf("DocumentID: got %q", got.DocumentID)
	}
	if got.ChunkIndex != 4 {
		t.Errorf("ChunkIndex: got %d, want 4", got.ChunkIndex)
	}
	if got.Collection != access.CollectionEngineering {
		t.Errorf("Collection: got %s", got.Collection)
	}
	if got.UploaderRole != "hr" {
		t.Errorf("UploaderRole: got %q", got.UploaderRole)
	}
}
