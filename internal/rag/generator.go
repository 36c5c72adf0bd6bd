package rag

import (
	"context"
	"fmt"

	"github.com/ziadkadry99/finchat/internal/llm"
)

// llmGenerator adapts an llm.Provider to the pipeline's Generator interface.
type llmGenerator struct {
	provider    llm.Provider
	model       string
	temperature float64
}

// NewGenerator wraps an LLM provider for pipeline use. Generation runs at a
// low temperature so answers stay grounded in the supplied context.
func NewGenerator(provider llm.Provider, model string) Generator {
	return &llmGenerator{
		provider:    provider,
		model:       model,
		temperature: 0.3,
	}
}

func (g *llmGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (*GenerateResult, error) {
	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		Model: g.model,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("completing generation with %s: %w", g.provider.Name(), err)
	}
	return &GenerateResult{
		Text:       resp.Content,
		TokenCount: resp.InputTokens + resp.OutputTokens,
	}, nil
}
