package config

import (
	"time"

	"github.com/ziadkadry99/finchat/internal/rag"
)

// defaultModels maps each provider to a sensible chat model.
var defaultModels = map[ProviderType]string{
	ProviderGroq:      "llama-3.1-8b-instant",
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderAnthropic: "claude-sonnet-4-5-20250929",
	ProviderOllama:    "llama3",
}

// DefaultIncludes are the corpus file patterns ingested by default.
var DefaultIncludes = []string{
	"**/*.md",
	"**/*.txt",
	"**/*.csv",
}

// DefaultExcludes are glob patterns skipped during ingestion by default.
var DefaultExcludes = []string{
	"**/.git/**",
	"**/.finchat/**",
	"**/~$*",
	"**/*.tmp",
	"**/.DS_Store",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	p := rag.DefaultParams()
	return &Config{
		Provider:            ProviderGroq,
		Model:               defaultModels[ProviderGroq],
		EmbeddingProvider:   ProviderOpenAI,
		EmbeddingModel:      "text-embedding-3-small",
		EmbeddingDimensions: 768,
		DataDir:             ".finchat",
		CorpusDir:           "corpus",
		RAG: RAGConfig{
			TopK:                     p.TopK,
			SimilarityThreshold:      p.SimilarityThreshold,
			ChunkHistoryLimit:        p.HistoryLimit,
			AugmentationVariantCount: p.VariantCount,
			RetrievalTimeoutMS:       int(p.RetrievalTimeout / time.Millisecond),
			PromptTokenBudget:        p.PromptTokenBudget,
		},
		VectorStore: VectorStoreConfig{
			Backend:   BackendChromem,
			QdrantURL: "http://localhost:6333",
		},
		Server: ServerConfig{
			Port:            8080,
			AllowAllOrigins: false,
		},
		Ingest: IngestConfig{
			Include:      DefaultIncludes,
			Exclude:      DefaultExcludes,
			ChunkSize:    500,
			ChunkOverlap: 50,
			Concurrency:  4,
		},
		Bots: BotsConfig{
			Role: "employee",
		},
	}
}

// DefaultModelFor returns the default chat model for the given provider.
func DefaultModelFor(p ProviderType) string {
	if m, ok := defaultModels[p]; ok {
		return m
	}
	return defaultModels[ProviderGroq]
}

// Params converts the configured retrieval settings into pipeline
// parameters. Knobs without a config key keep their fixed defaults.
func (r RAGConfig) Params() rag.Params {
	p := rag.DefaultParams()
	p.TopK = r.TopK
	p.SimilarityThreshold = r.SimilarityThreshold
	p.HistoryLimit = r.ChunkHistoryLimit
	p.VariantCount = r.AugmentationVariantCount
	p.RetrievalTimeout = time.Duration(r.RetrievalTimeoutMS) * time.Millisecond
	p.PromptTokenBudget = r.PromptTokenBudget
	return p
}
