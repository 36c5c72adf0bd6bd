package vectordb

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/ziadkadry99/finchat/internal/access"
	"github.com/ziadkadry99/finchat/internal/embeddings"
)

const chromemFile = "vectors.gob.gz"

// ChromemStore implements Store using chromem-go with one chromem
// collection per department.
type ChromemStore struct {
	db        *chromem.DB
	embedder  embeddings.Embedder
	embedFunc chromem.EmbeddingFunc
}

// NewChromemStore creates an in-memory ChromemStore with one collection per
// known department.
func NewChromemStore(embedder embeddings.Embedder) (*ChromemStore, error) {
	db := chromem.NewDB()
	ef := embeddings.ToChromemFunc(embedder)

	s := &ChromemStore{db: db, embedder: embedder, embedFunc: ef}
	for _, c := range access.AllCollections {
		if _, err := db.GetOrCreateCollection(string(c), nil, ef); err != nil {
			return nil, fmt.Errorf("creating collection %s: %w", c, err)
		}
	}
	return s, nil
}

// collection returns the chromem collection backing a department, creating
// it if needed (e.g. after an import that lacked it).
func (s *ChromemStore) collection(c access.Collection) (*chromem.Collection, error) {
	col := s.db.GetCollection(string(c), s.embedFunc)
	if col != nil {
		return col, nil
	}
	col, err := s.db.GetOrCreateCollection(string(c), nil, s.embedFunc)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", c, err)
	}
	return col, nil
}

func (s *ChromemStore) Add(ctx context.Context, collection access.Collection, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	col, err := s.collection(collection)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(chunks))
	for i, ch := range chunks {
		docs[i] = chromem.Document{
			ID:       ch.ID,
			Content:  ch.Content,
			Metadata: metadataToMap(ch.Metadata),
		}
	}

	return col.AddDocuments(ctx, docs, 1)
}

func (s *ChromemStore) SearchCollection(ctx context.Context, collection access.Collection, query string, k int) ([]SearchResult, error) {
	if k <= 0 {
		k = 5
	}

	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	// chromem-go requires nResults <= collection size.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := col.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{
			Chunk: Chunk{
				ID:       r.ID,
				Content:  r.Content,
				Metadata: mapToMetadata(r.Metadata),
			},
			Similarity: r.Similarity,
		}
	}
	return out, nil
}

func (s *ChromemStore) DeleteDocument(ctx context.Context, collection access.Collection, documentID string) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	if col.Count() == 0 {
		return nil
	}
	where := map[string]string{"document_id": documentID}
	return col.Delete(ctx, where, nil)
}

func (s *ChromemStore) Count(collection access.Collection) int {
	col := s.db.GetCollection(string(collection), s.embedFunc)
	if col == nil {
		return 0
	}
	return col.Count()
}

func (s *ChromemStore) TotalCount() int {
	total := 0
	for _, c := range access.AllCollections {
		total += s.Count(c)
	}
	return total
}

func (s *ChromemStore) Persist(ctx context.Context, dir string) error {
	return s.db.ExportToFile(filepath.Join(dir, chromemFile), true, "")
}

func (s *ChromemStore) Load(ctx context.Context, dir string) error {
	if err := s.db.ImportFromFile(filepath.Join(dir, chromemFile), ""); err != nil {
		return fmt.Errorf("import from file: %w", err)
	}
	return nil
}

// metadataToMap converts ChunkMetadata to a flat map[string]string for chromem.
func metadataToMap(m ChunkMetadata) map[string]string {
	return map[string]string{
		"document_id":   m.DocumentID,
		"document_name": m.DocumentName,
		"collection":    string(m.Collection),
		"chunk_index":   strconv.Itoa(m.ChunkIndex),
		"content_hash":  m.ContentHash,
		"uploader_role": m.UploaderRole,
		"indexed_at":    m.IndexedAt.Format(time.RFC3339),
	}
}

// mapToMetadata converts a flat map[string]string back to ChunkMetadata.
func mapToMetadata(m map[string]string) ChunkMetadata {
	chunkIndex, _ := strconv.Atoi(m["chunk_index"])
	indexedAt, _ := time.Parse(time.RFC3339, m["indexed_at"])

	return ChunkMetadata{
		DocumentID:   m["document_id"],
		DocumentName: m["document_name"],
		Collection:   access.Collection(m["collection"]),
		ChunkIndex:   chunkIndex,
		ContentHash:  m["content_hash"],
		UploaderRole: m["uploader_role"],
		IndexedAt:    indexedAt,
	}
}
