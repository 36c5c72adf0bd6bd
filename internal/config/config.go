package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (FINCHAT_*). Nested keys use a double
// underscore: FINCHAT_RAG__TOP_K overrides rag.top_k.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: FINCHAT_PROVIDER -> provider, etc.
	if err := k.Load(env.Provider("FINCHAT_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "FINCHAT_"))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// DBPath returns the SQLite database path under the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "finchat.db")
}

// VectorPath returns the chromem persistence path under the data directory.
func (c *Config) VectorPath() string {
	return filepath.Join(c.DataDir, "vectors.gob.gz")
}

// validProviders is the set of recognized provider values.
var validProviders = map[ProviderType]bool{
	ProviderGroq:      true,
	ProviderOpenAI:    true,
	ProviderAnthropic: true,
	ProviderOllama:    true,
}

// validEmbeddingProviders is the subset of providers that serve embeddings.
var validEmbeddingProviders = map[ProviderType]bool{
	ProviderOpenAI: true,
	ProviderOllama: true,
}

// validBackends is the set of recognized vector store backends.
var validBackends = map[VectorBackend]bool{
	BackendChromem: true,
	BackendQdrant:  true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if !validProviders[c.Provider] {
		return fmt.Errorf("invalid provider %q: must be one of groq, openai, anthropic, ollama", c.Provider)
	}

	if c.Model == "" {
		return fmt.Errorf("model is required")
	}

	if c.EmbeddingProvider == "" {
		return fmt.Errorf("embedding_provider is required")
	}
	if !validEmbeddingProviders[c.EmbeddingProvider] {
		return fmt.Errorf("invalid embedding_provider %q: must be openai or ollama", c.EmbeddingProvider)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.CorpusDir == "" {
		return fmt.Errorf("corpus_dir is required")
	}

	if c.RAG.TopK < 1 {
		return fmt.Errorf("rag.top_k must be at least 1")
	}
	if c.RAG.SimilarityThreshold < 0 || c.RAG.SimilarityThreshold > 1 {
		return fmt.Errorf("rag.similarity_threshold must be between 0 and 1")
	}
	if c.RAG.ChunkHistoryLimit < 1 {
		return fmt.Errorf("rag.chunk_history_limit must be at least 1")
	}
	if c.RAG.AugmentationVariantCount < 1 {
		return fmt.Errorf("rag.augmentation_variant_count must be at least 1")
	}
	if c.RAG.RetrievalTimeoutMS < 1 {
		return fmt.Errorf("rag.retrieval_timeout_ms must be positive")
	}
	if c.RAG.PromptTokenBudget < 1 {
		return fmt.Errorf("rag.prompt_token_budget must be positive")
	}

	if !validBackends[c.VectorStore.Backend] {
		return fmt.Errorf("invalid vector_store.backend %q: must be chromem or qdrant", c.VectorStore.Backend)
	}
	if c.VectorStore.Backend == BackendQdrant && c.VectorStore.QdrantURL == "" {
		return fmt.Errorf("vector_store.qdrant_url is required for the qdrant backend")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if c.Ingest.ChunkSize < 1 {
		return fmt.Errorf("ingest.chunk_size must be positive")
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap must be non-negative and smaller than chunk_size")
	}
	if c.Ingest.Concurrency < 1 {
		return fmt.Errorf("ingest.concurrency must be at least 1")
	}

	return nil
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	switch provider {
	case ProviderGroq:
		return "GROQ_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return ""
	}
}
