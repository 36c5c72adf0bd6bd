// Package rag implements the retrieval-augmented answer pipeline:
// conversational contextualization, query augmentation, access-controlled
// retrieval, ranking, prompt composition and post-processing. Stages run
// strictly in order; the only network calls are the vector searches and the
// generation requests.
package rag

import (
	"context"
	"time"

	"github.com/ziadkadry99/finchat/internal/access"
)

// TurnRole identifies who produced a conversation turn.
type TurnRole string

const (
	TurnUser      TurnRole = "user"
	TurnAssistant TurnRole = "assistant"
)

// Turn is a single message in a conversation, decoupled from how the
// storage layer encodes it.
type Turn struct {
	Role      TurnRole
	Content   string
	Timestamp time.Time
}

// Request is one question entering the pipeline. History is a read-only
// snapshot of the most recent turns, oldest first; the pipeline never
// mutates or persists it.
type Request struct {
	Role    access.Role
	Message string
	History []Turn
}

// RetrievalQuery carries a question through its rewritten forms.
type RetrievalQuery struct {
	Original   string
	Standalone string
	Variants   []string // variant 0 is always Standalone verbatim
}

// RetrievedChunk is a raw similarity hit from one (variant, collection)
// search. Duplicates across variants are expected; the ranker merges them.
type RetrievedChunk struct {
	ID           string
	Collection   access.Collection
	DocumentName string
	Content      string
	Score        float64
	UploaderRole string
	VariantIndex int
}

// RankedChunk is a deduplicated chunk with its best observed score and the
// number of distinct variants that surfaced it.
type RankedChunk struct {
	RetrievedChunk
	MatchCount int
}

// RetrievalOutput is the unmerged result of the retrieval fan-out. Warnings
// record variant/collection calls that failed or timed out; their presence
// marks the turn as degraded but never aborts it.
type RetrievalOutput struct {
	Chunks   []RetrievedChunk
	Warnings []string
}

// Citation points a claim in the answer back to a retrieved chunk.
type Citation struct {
	DocumentName string            `json:"document_name"`
	Department   access.Collection `json:"department"`
	Score        float64           `json:"relevance_score"`
	Excerpt      string            `json:"excerpt"`
}

// Answer is the packaged result of one pipeline run.
type Answer struct {
	Text            string
	StandaloneQuery string
	Citations       []Citation
	Confidence      float64
	TokenCount      int
	NoContext       bool
	Degraded        bool
	Warnings        []string
}

// GenerateResult is what the generation backend returns. Certainty is an
// optional backend-reported signal in [0,1]; most backends leave it nil.
type GenerateResult struct {
	Text       string
	TokenCount int
	Certainty  *float64
}

// Generator is the text-generation backend the pipeline depends on.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (*GenerateResult, error)
}

// Params holds the tunable pipeline parameters. Zero values are replaced
// with defaults by Normalize.
type Params struct {
	TopK                int
	SimilarityThreshold float64
	HistoryLimit        int
	VariantCount        int
	RetrievalTimeout    time.Duration
	PromptTokenBudget   int
	Concurrency         int
	GenerationMaxTokens int
	GenerationTimeout   time.Duration
	MaxRetries          int
	RetryBaseDelay      time.Duration
}

// DefaultParams returns the standard pipeline configuration.
func DefaultParams() Params {
	return Params{
		TopK:                5,
		SimilarityThreshold: 0.7,
		HistoryLimit:        10,
		VariantCount:        5,
		RetrievalTimeout:    5 * time.Second,
		PromptTokenBudget:   6000,
		Concurrency:         8,
		GenerationMaxTokens: 1024,
		GenerationTimeout:   30 * time.Second,
		MaxRetries:          2,
		RetryBaseDelay:      500 * time.Millisecond,
	}
}

// Normalize fills in defaults for unset fields and clamps nonsense values.
func (p Params) Normalize() Params {
	def := DefaultParams()
	if p.TopK <= 0 {
		p.TopK = def.TopK
	}
	if p.SimilarityThreshold < 0 || p.SimilarityThreshold > 1 {
		p.SimilarityThreshold = def.SimilarityThreshold
	}
	if p.HistoryLimit <= 0 {
		p.HistoryLimit = def.HistoryLimit
	}
	if p.VariantCount <= 0 {
		p.VariantCount = def.VariantCount
	}
	if p.RetrievalTimeout <= 0 {
		p.RetrievalTimeout = def.RetrievalTimeout
	}
	if p.PromptTokenBudget <= 0 {
		p.PromptTokenBudget = def.PromptTokenBudget
	}
	if p.Concurrency <= 0 {
		p.Concurrency = def.Concurrency
	}
	if p.GenerationMaxTokens <= 0 {
		p.GenerationMaxTokens = def.GenerationMaxTokens
	}
	if p.GenerationTimeout <= 0 {
		p.GenerationTimeout = def.GenerationTimeout
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = def.MaxRetries
	}
	if p.RetryBaseDelay <= 0 {
		p.RetryBaseDelay = def.RetryBaseDelay
	}
	return p
}
