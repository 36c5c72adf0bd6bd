package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ziadkadry99/finchat/internal/access"
	"github.com/ziadkadry99/finchat/internal/llm"
	"github.com/ziadkadry99/finchat/internal/vectordb"
)

// Pipeline runs one question through every stage in strict order:
// contextualize, augment, retrieve, rank, compose, generate, post-process.
// A Pipeline is safe for concurrent use; each Answer call is an independent
// unit of work with no shared mutable state.
type Pipeline struct {
	params         Params
	gen            Generator
	contextualizer *Contextualizer
	augmenter      *Augmenter
	retriever      *Retriever
	composer       *Composer
	post           *PostProcessor
	logger         *slog.Logger
}

func NewPipeline(gen Generator, searcher vectordb.Searcher, params Params, logger *slog.Logger) *Pipeline {
	params = params.Normalize()
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		params:         params,
		gen:            gen,
		contextualizer: NewContextualizer(gen, logger),
		augmenter:      NewAugmenter(gen, logger),
		retriever:      NewRetriever(searcher, params, logger),
		composer:       NewComposer(params.PromptTokenBudget),
		post:           NewPostProcessor(params.TopK),
		logger:         logger,
	}
}

// Answer runs the full pipeline for one request. Degraded upstream stages
// (failed rewrite, failed augmentation, individual search failures) flag
// the answer but never abort it; composition and generation failures are
// fatal and the turn must not be persisted. On cancellation the context
// error comes back unchanged.
func (p *Pipeline) Answer(ctx context.Context, req Request) (*Answer, error) {
	if err := ValidateMessage(req.Message); err != nil {
		return nil, err
	}
	if !req.Role.Valid() {
		return nil, &ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", req.Role)}
	}

	message := SanitizeMessage(req.Message)
	scope := access.NewScope(req.Role)
	history := boundHistory(req.History, p.params.HistoryLimit)

	var warnings []string

	standalone, rewriteDegraded := p.contextualizer.Rewrite(ctx, history, message)
	if rewriteDegraded {
		warnings = append(warnings, "standalone rewrite unavailable, used original message")
	}

	variants, augmentDegraded := p.augmenter.Augment(ctx, standalone, p.params.VariantCount)
	if augmentDegraded {
		warnings = append(warnings, "query augmentation unavailable, recall may be reduced")
	}

	retrieved := p.retriever.Retrieve(ctx, variants, scope)
	warnings = append(warnings, retrieved.Warnings...)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranked := RankChunks(retrieved.Chunks, p.params.TopK)

	prompt, included, err := p.composer.Compose(standalone, ranked, history, scope)
	if err != nil {
		return nil, &FatalError{Stage: "compose", Err: err}
	}

	raw, err := p.generate(ctx, prompt)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &FatalError{Stage: "generate", Err: err}
	}

	answer := p.post.Process(raw, included)
	answer.StandaloneQuery = standalone
	answer.Warnings = warnings
	answer.Degraded = len(warnings) > 0

	p.logger.Info("answer pipeline complete",
		"role", req.Role,
		"variants", len(variants),
		"raw_hits", len(retrieved.Chunks),
		"ranked", len(ranked),
		"cited", len(answer.Citations),
		"confidence", answer.Confidence,
		"degraded", answer.Degraded,
	)
	return &answer, nil
}

// generate calls the generation backend with a per-attempt timeout,
// retrying transient failures with exponential backoff. This is the only
// retried call in the pipeline; every other stage degrades instead.
func (p *Pipeline) generate(ctx context.Context, prompt string) (*GenerateResult, error) {
	var lastErr error
	for attempt := 0; attempt <= p.params.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := llm.RetryDelay(attempt-1, p.params.RetryBaseDelay)
			p.logger.Warn("retrying generation", "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, p.params.GenerationTimeout)
		res, err := p.gen.Generate(callCtx, prompt, p.params.GenerationMaxTokens)
		cancel()
		if err == nil {
			return res, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return nil, err
		}
		if !llm.IsTransient(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("generation failed after %d retries: %w", p.params.MaxRetries, lastErr)
}

// boundHistory keeps only the most recent limit turns, oldest first.
func boundHistory(history []Turn, limit int) []Turn {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}
