package vectordb

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/ziadkadry99/finchat/internal/access"
	"github.com/ziadkadry99/finchat/internal/embeddings"
)

const qdrantCollection = "finchat_chunks"

// QdrantStore implements Store using a Qdrant server. All departments share
// one Qdrant collection; the department tag lives in the point payload and
// every search carries a mandatory department filter.
type QdrantStore struct {
	client   *qdrant.Client
	embedder embeddings.Embedder
}

// NewQdrantStore connects to a Qdrant server. urlStr is the HTTP URL
// (e.g. "http://localhost:6333"); the gRPC port is derived from it.
func NewQdrantStore(urlStr string, embedder embeddings.Embedder) (*QdrantStore, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant URL: %w", err)
	}

	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}

	// gRPC listens one above the HTTP port by convention.
	port := 6334
	if parsed.Port() != "" {
		if httpPort, err := strconv.Atoi(parsed.Port()); err == nil {
			port = httpPort + 1
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	s := &QdrantStore{client: client, embedder: embedder}
	if err := s.ensureCollection(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureCollection creates the shared collection if missing and validates
// its vector size against the embedder.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, qdrantCollection)
	if err != nil {
		return fmt.Errorf("checking collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: qdrantCollection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.embedder.Dimensions()),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}
	return nil
}

// pointID derives a stable UUID point id from a chunk id so re-ingesting
// the same chunk upserts instead of duplicating.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func (s *QdrantStore) Add(ctx context.Context, collection access.Collection, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, ch := range chunks {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(ch.ID)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"chunk_id":      ch.ID,
				"content":       ch.Content,
				"document_id":   ch.Metadata.DocumentID,
				"document_name": ch.Metadata.DocumentName,
				"collection":    string(collection),
				"chunk_index":   int64(ch.Metadata.ChunkIndex),
				"content_hash":  ch.Metadata.ContentHash,
				"uploader_role": ch.Metadata.UploaderRole,
				"indexed_at":    ch.Metadata.IndexedAt.Format(time.RFC3339),
			}),
		}
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: qdrantCollection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}
	return nil
}

func (s *QdrantStore) SearchCollection(ctx context.Context, collection access.Collection, query string, k int) ([]SearchResult, error) {
	if k <= 0 {
		k = 5
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vector for query")
	}

	limit := uint64(k)
	scored, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: qdrantCollection,
		Query:          qdrant.NewQuery(vectors[0]...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("collection", string(collection)),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}

	results := make([]SearchResult, 0, len(scored))
	for _, point := range scored {
		payload := payloadToMap(point.Payload)

		similarity := point.Score
		if similarity < 0 {
			similarity = 0
		}

		chunkIndex, _ := strconv.Atoi(fmt.Sprintf("%v", payload["chunk_index"]))
		indexedAt, _ := time.Parse(time.RFC3339, stringField(payload, "indexed_at"))

		results = append(results, SearchResult{
			Chunk: Chunk{
				ID:      stringField(payload, "chunk_id"),
				Content: stringField(payload, "content"),
				Metadata: ChunkMetadata{
					DocumentID:   stringField(payload, "document_id"),
					DocumentName: stringField(payload, "document_name"),
					Collection:   access.Collection(stringField(payload, "collection")),
					ChunkIndex:   chunkIndex,
					ContentHash:  stringField(payload, "content_hash"),
					UploaderRole: stringField(payload, "uploader_role"),
					IndexedAt:    indexedAt,
				},
			},
			Similarity: similarity,
		})
	}
	return results, nil
}

func (s *QdrantStore) DeleteDocument(ctx context.Context, collection access.Collection, documentID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: qdrantCollection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("collection", string(collection)),
				qdrant.NewMatch("document_id", documentID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}
	return nil
}

func (s *QdrantStore) Count(collection access.Collection) int {
	count, err := s.client.Count(context.Background(), &qdrant.CountPoints{
		CollectionName: qdrantCollection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("collection", string(collection)),
			},
		},
	})
	if err != nil {
		return 0
	}
	return int(count)
}

func (s *QdrantStore) TotalCount() int {
	count, err := s.client.Count(context.Background(), &qdrant.CountPoints{
		CollectionName: qdrantCollection,
	})
	if err != nil {
		return 0
	}
	return int(count)
}

// Persist is a no-op: the Qdrant server owns durability.
func (s *QdrantStore) Persist(ctx context.Context, dir string) error {
	return nil
}

// Load is a no-op: the Qdrant server owns durability.
func (s *QdrantStore) Load(ctx context.Context, dir string) error {
	return nil
}

// payloadToMap converts a Qdrant payload to plain Go values.
func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		out[k] = convertValue(v)
	}
	return out
}

// convertValue converts a Qdrant Value to its Go equivalent.
func convertValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	default:
		return nil
	}
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
