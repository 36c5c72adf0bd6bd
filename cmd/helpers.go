package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ziadkadry99/finchat/internal/config"
	"github.com/ziadkadry99/finchat/internal/db"
	"github.com/ziadkadry99/finchat/internal/embeddings"
	"github.com/ziadkadry99/finchat/internal/llm"
	"github.com/ziadkadry99/finchat/internal/rag"
	"github.com/ziadkadry99/finchat/internal/vectordb"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `finchat init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config in %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// newLogger builds the logger shared by all commands. Output goes to
// stderr so stdout stays free for command results and MCP protocol
// traffic; verbose mode lowers the level to debug.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openDatabase opens the SQLite database under the configured data
// directory, creating it (and running migrations) on first use.
func openDatabase(cfg *config.Config) (*db.DB, error) {
	return db.Open(cfg.DBPath())
}

// createEmbedderFromConfig creates an embeddings.Embedder based on config.
// This is the shared version used by the ingest, ask, serve, and mcp
// commands.
func createEmbedderFromConfig(cfg *config.Config) (embeddings.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case config.ProviderOllama:
		return embeddings.NewOllamaEmbedder(cfg.EmbeddingModel, cfg.EmbeddingDimensions, ""), nil
	default:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for OpenAI embeddings")
		}
		model := embeddings.ModelTextEmbedding3Small
		if cfg.EmbeddingModel != "" {
			model = embeddings.OpenAIModel(cfg.EmbeddingModel)
		}
		return embeddings.NewOpenAIEmbedder(apiKey, model), nil
	}
}

// createVectorStoreFromConfig creates the configured vector store
// backend. Loading a persisted index is left to the caller: commands
// differ in how they treat a missing one.
func createVectorStoreFromConfig(cfg *config.Config, embedder embeddings.Embedder) (vectordb.Store, error) {
	if cfg.VectorStore.Backend == config.BackendQdrant {
		return vectordb.NewQdrantStore(cfg.VectorStore.QdrantURL, embedder)
	}
	return vectordb.NewChromemStore(embedder)
}

// createLLMProviderFromConfig creates an LLM provider based on config settings.
func createLLMProviderFromConfig(cfg *config.Config) (llm.Provider, error) {
	return llm.NewProvider(string(cfg.Provider), cfg.Model)
}

// createPipelineFromConfig builds the answer pipeline over the given
// vector store, creating the LLM provider from config.
func createPipelineFromConfig(cfg *config.Config, store vectordb.Store, logger *slog.Logger) (*rag.Pipeline, error) {
	provider, err := createLLMProviderFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}
	gen := rag.NewGenerator(provider, cfg.Model)
	return rag.NewPipeline(gen, store, cfg.RAG.Params(), logger), nil
}
