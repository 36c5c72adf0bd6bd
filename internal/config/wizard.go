package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/manifoldco/promptui"
)

// departmentDirs are the collection subdirectories expected under the
// corpus root. Files outside them are ignored by ingestion.
var departmentDirs = []string{"finance", "marketing", "hr", "engineering", "general"}

// detectDepartments reports which department folders already exist under dir.
func detectDepartments(dir string) []string {
	var found []string
	for _, d := range departmentDirs {
		if info, err := os.Stat(filepath.Join(dir, d)); err == nil && info.IsDir() {
			found = append(found, d)
		}
	}
	return found
}

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .finchat.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to finchat! Let's configure your workspace.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Provider selection.
	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{"groq", "openai", "anthropic", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	cfg.Provider = ProviderType(providerStr)

	// 2. Chat model.
	modelPrompt := promptui.Prompt{
		Label:   "Chat model",
		Default: DefaultModelFor(cfg.Provider),
	}
	model, err := modelPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	cfg.Model = model
	cfg.EmbeddingProvider = embeddingProviderFor(cfg.Provider)
	if cfg.EmbeddingProvider == ProviderOllama {
		cfg.EmbeddingModel = "nomic-embed-text"
	}

	// 3. Corpus directory.
	corpusPrompt := promptui.Prompt{
		Label:   "Corpus directory (department folders live here)",
		Default: "corpus",
	}
	corpusDir, err := corpusPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("corpus dir: %w", err)
	}
	cfg.CorpusDir = corpusDir

	if found := detectDepartments(corpusDir); len(found) > 0 {
		fmt.Printf("Found department folders: %s\n", strings.Join(found, ", "))
	} else {
		fmt.Printf("Note: create department folders (%s) under %s before running finchat ingest.\n",
			strings.Join(departmentDirs, ", "), corpusDir)
	}

	// 4. Vector store backend.
	backendPrompt := promptui.Select{
		Label: "Select vector store",
		Items: []string{
			"chromem (embedded, persists to the data directory)",
			"qdrant (external server)",
		},
	}
	backendIdx, _, err := backendPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("vector store selection: %w", err)
	}
	if backendIdx == 1 {
		cfg.VectorStore.Backend = BackendQdrant
		urlPrompt := promptui.Prompt{
			Label:   "Qdrant URL",
			Default: cfg.VectorStore.QdrantURL,
		}
		qdrantURL, err := urlPrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("qdrant url: %w", err)
		}
		cfg.VectorStore.QdrantURL = qdrantURL
	}

	// 5. Include patterns.
	includePrompt := promptui.Prompt{
		Label:   "Ingest patterns (comma-separated globs)",
		Default: strings.Join(DefaultIncludes, ","),
	}
	includeStr, err := includePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("include patterns: %w", err)
	}
	if include := splitAndTrim(includeStr); len(include) > 0 {
		cfg.Ingest.Include = include
	}

	// Check for API keys.
	notifyMissingKey(cfg.Provider)
	if cfg.EmbeddingProvider != cfg.Provider {
		notifyMissingKey(cfg.EmbeddingProvider)
	}

	// Save to .finchat.yml.
	configPath := ".finchat.yml"
	if err := cfg.Save(configPath); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", configPath)
	return cfg, nil
}

// notifyMissingKey prints a reminder if the provider's API key is not set.
func notifyMissingKey(p ProviderType) {
	envVar := APIKeyEnvVar(p)
	if envVar != "" && os.Getenv(envVar) == "" {
		fmt.Printf("\nNote: Set %s in your environment before running finchat serve.\n", envVar)
	}
}

// embeddingProviderFor returns the default embedding provider for a given
// LLM provider. OpenAI embeddings are used for all cloud providers.
func embeddingProviderFor(p ProviderType) ProviderType {
	if p == ProviderOllama {
		return ProviderOllama
	}
	return ProviderOpenAI
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	var result []string
	for _, token := range strings.Split(s, ",") {
		token = strings.TrimSpace(token)
		if token != "" {
			result = append(result, token)
		}
	}
	return result
}
