package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Augmenter widens retrieval recall by expanding one standalone query into
// several lexically diverse phrasings. Variant 0 is always the input query
// verbatim, so recall never regresses below the single-query baseline.
type Augmenter struct {
	gen    Generator
	logger *slog.Logger
}

func NewAugmenter(gen Generator, logger *slog.Logger) *Augmenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Augmenter{gen: gen, logger: logger}
}

// Augment returns up to count variants of query, original first. The second
// return value reports whether the expansion degraded: a failed or unusable
// generation call falls back to deterministic synonym substitution, and to
// the original query alone when no synonym applies.
func (a *Augmenter) Augment(ctx context.Context, query string, count int) ([]string, bool) {
	if count <= 1 {
		return []string{query}, false
	}

	variants := []string{query}
	resp, err := a.gen.Generate(ctx, buildAugmentPrompt(query, count-1), 512)
	if err != nil {
		a.logger.Warn("query augmentation failed, falling back to synonyms", "error", err)
		return appendSynonymVariants(variants, query, count), true
	}

	parsed := parseVariants(resp.Text, query, count-1)
	if len(parsed) == 0 {
		a.logger.Warn("query augmentation produced no usable variants, falling back to synonyms")
		return appendSynonymVariants(variants, query, count), true
	}
	return append(variants, parsed...), false
}

func buildAugmentPrompt(query string, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, augmentInstructions, n)
	fmt.Fprintf(&b, "\n\nQuestion: %s\n", query)
	return b.String()
}

// parseVariants extracts one variant per line, stripping the numbering and
// bullets models add despite instructions. Duplicates of the original query
// or of earlier lines are dropped.
func parseVariants(raw, original string, max int) []string {
	seen := map[string]struct{}{
		strings.ToLower(strings.TrimSpace(original)): {},
	}
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• \t")
		line = stripNumbering(line)
		line = strings.Trim(line, `"'`)
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, ":") {
			// Preamble like "Here are five variations:".
			continue
		}
		lower := strings.ToLower(line)
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, line)
		if len(out) == max {
			break
		}
	}
	return out
}

func stripNumbering(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// appendSynonymVariants builds variants by swapping in workplace synonyms
// for words of the query, preserving trailing punctuation. Purely local, so
// it works even when the generation backend is down.
func appendSynonymVariants(variants []string, query string, count int) []string {
	words := strings.Fields(query)
	seen := make(map[string]struct{}, count)
	for _, v := range variants {
		seen[strings.ToLower(v)] = struct{}{}
	}
	for i, w := range words {
		key := strings.ToLower(strings.TrimRight(w, ".,!?;:"))
		syns, ok := domainSynonyms[key]
		if !ok {
			continue
		}
		suffix := w[len(key):]
		for _, syn := range syns {
			if len(variants) >= count {
				return variants
			}
			replaced := make([]string, len(words))
			copy(replaced, words)
			replaced[i] = syn + suffix
			v := strings.Join(replaced, " ")
			if _, dup := seen[strings.ToLower(v)]; dup {
				continue
			}
			seen[strings.ToLower(v)] = struct{}{}
			variants = append(variants, v)
		}
	}
	return variants
}

// domainSynonyms covers the vocabulary mismatches we see most between how
// employees ask and how policy documents are written.
var domainSynonyms = map[string][]string{
	"leave":      {"vacation", "time off", "PTO"},
	"vacation":   {"leave", "time off", "PTO"},
	"pto":        {"vacation", "leave"},
	"benefits":   {"perks", "compensation", "insurance"},
	"salary":     {"compensation", "pay"},
	"pay":        {"salary", "compensation"},
	"policy":     {"guideline", "procedure", "rules"},
	"process":    {"procedure", "workflow", "steps"},
	"onboarding": {"orientation", "new hire process"},
	"expense":    {"reimbursement", "spending"},
	"expenses":   {"reimbursements", "spending"},
	"budget":     {"spending plan", "allocation"},
	"remote":     {"work from home", "hybrid"},
	"sick":       {"medical", "illness"},
	"quit":       {"resign", "leave the company"},
	"fire":       {"terminate", "dismiss"},
	"raise":      {"salary increase", "promotion"},
}

const augmentInstructions = `Generate %d alternative phrasings of the question below for searching an internal company knowledge base. Vary the vocabulary and sentence structure while preserving the meaning. Output one phrasing per line with no numbering and no commentary.`
