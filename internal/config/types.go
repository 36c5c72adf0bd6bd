package config

// ProviderType identifies an LLM provider.
type ProviderType string

const (
	ProviderGroq      ProviderType = "groq"
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOllama    ProviderType = "ollama"
)

// VectorBackend identifies a vector store implementation.
type VectorBackend string

const (
	BackendChromem VectorBackend = "chromem"
	BackendQdrant  VectorBackend = "qdrant"
)

// Config is the top-level finchat configuration, corresponding to .finchat.yml.
type Config struct {
	Provider            ProviderType `yaml:"provider" koanf:"provider"`
	Model               string       `yaml:"model" koanf:"model"`
	EmbeddingProvider   ProviderType `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel      string       `yaml:"embedding_model" koanf:"embedding_model"`
	EmbeddingDimensions int          `yaml:"embedding_dimensions" koanf:"embedding_dimensions"`
	DataDir             string       `yaml:"data_dir" koanf:"data_dir"`
	CorpusDir           string       `yaml:"corpus_dir" koanf:"corpus_dir"`

	RAG         RAGConfig         `yaml:"rag" koanf:"rag"`
	VectorStore VectorStoreConfig `yaml:"vector_store" koanf:"vector_store"`
	Server      ServerConfig      `yaml:"server" koanf:"server"`
	Google      GoogleConfig      `yaml:"google" koanf:"google"`
	Ingest      IngestConfig      `yaml:"ingest" koanf:"ingest"`
	Bots        BotsConfig        `yaml:"bots" koanf:"bots"`
}

// RAGConfig holds the tunable retrieval parameters. Pipeline knobs not
// listed here (fan-out concurrency, generation limits, retry policy) are
// fixed and cannot be set from a config file.
type RAGConfig struct {
	TopK                     int     `yaml:"top_k" koanf:"top_k"`
	SimilarityThreshold      float64 `yaml:"similarity_threshold" koanf:"similarity_threshold"`
	ChunkHistoryLimit        int     `yaml:"chunk_history_limit" koanf:"chunk_history_limit"`
	AugmentationVariantCount int     `yaml:"augmentation_variant_count" koanf:"augmentation_variant_count"`
	RetrievalTimeoutMS       int     `yaml:"retrieval_timeout_ms" koanf:"retrieval_timeout_ms"`
	PromptTokenBudget        int     `yaml:"prompt_token_budget" koanf:"prompt_token_budget"`
}

// VectorStoreConfig selects and points at the vector search backend.
type VectorStoreConfig struct {
	Backend   VectorBackend `yaml:"backend" koanf:"backend"`
	QdrantURL string        `yaml:"qdrant_url" koanf:"qdrant_url"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int  `yaml:"port" koanf:"port"`
	AllowAllOrigins bool `yaml:"allow_all_origins" koanf:"allow_all_origins"`
}

// GoogleConfig holds Google SSO credentials. SSO is disabled when the
// client ID or secret is empty.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id" koanf:"client_id"`
	ClientSecret string `yaml:"client_secret" koanf:"client_secret"`
	RedirectURL  string `yaml:"redirect_url" koanf:"redirect_url"`
}

// IngestConfig controls the document ingestion pipeline.
type IngestConfig struct {
	Include      []string `yaml:"include" koanf:"include"`
	Exclude      []string `yaml:"exclude" koanf:"exclude"`
	ChunkSize    int      `yaml:"chunk_size" koanf:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap" koanf:"chunk_overlap"`
	Concurrency  int      `yaml:"concurrency" koanf:"concurrency"`
}

// BotConfig holds the credentials for one chat platform integration.
type BotConfig struct {
	Token         string `yaml:"token" koanf:"token"`
	SigningSecret string `yaml:"signing_secret" koanf:"signing_secret"`
	WebhookURL    string `yaml:"webhook_url" koanf:"webhook_url"`
}

// BotsConfig holds chat platform bot settings. Role is the access role
// bot questions are answered under; it defaults to employee so bots only
// ever read the general collection.
type BotsConfig struct {
	Role  string    `yaml:"role" koanf:"role"`
	Slack BotConfig `yaml:"slack" koanf:"slack"`
	Teams BotConfig `yaml:"teams" koanf:"teams"`
}
