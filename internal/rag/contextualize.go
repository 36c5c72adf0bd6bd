package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// rewriteHistoryWindow is how many trailing turns the rewrite prompt sees.
// Older turns rarely change what a follow-up refers to.
const rewriteHistoryWindow = 6

// Contextualizer rewrites follow-up questions into standalone ones so that
// retrieval does not depend on pronouns or ellipsis ("what about for
// managers?"). A first question in a conversation passes through verbatim.
type Contextualizer struct {
	gen    Generator
	logger *slog.Logger
}

func NewContextualizer(gen Generator, logger *slog.Logger) *Contextualizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Contextualizer{gen: gen, logger: logger}
}

// Rewrite returns a standalone form of message. The second return value
// reports whether the rewrite degraded to the original message because the
// generation call failed.
func (c *Contextualizer) Rewrite(ctx context.Context, history []Turn, message string) (string, bool) {
	if len(history) == 0 {
		return message, false
	}

	window := history
	if len(window) > rewriteHistoryWindow {
		window = window[len(window)-rewriteHistoryWindow:]
	}

	prompt := buildRewritePrompt(window, message)
	resp, err := c.gen.Generate(ctx, prompt, 256)
	if err != nil {
		c.logger.Warn("question rewrite failed, using original message", "error", err)
		return message, true
	}

	standalone := cleanRewrite(resp.Text)
	if standalone == "" {
		c.logger.Warn("question rewrite returned empty output, using original message")
		return message, true
	}
	return standalone, false
}

func buildRewritePrompt(history []Turn, message string) string {
	var b strings.Builder

	b.WriteString(rewriteInstructions)
	b.WriteString("\n## Conversation\n")
	for _, t := range history {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	fmt.Fprintf(&b, "\n## Follow-up Question\n%s\n", message)
	b.WriteString("\nStandalone question:")

	return b.String()
}

// cleanRewrite strips the decorations models like to add around a single
// rewritten question.
func cleanRewrite(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"Standalone question:", "Question:", "Rewritten question:"} {
		if strings.HasPrefix(strings.ToLower(s), strings.ToLower(prefix)) {
			s = strings.TrimSpace(s[len(prefix):])
		}
	}
	s = strings.Trim(s, `"'`)
	// A rewrite should be one question. If the model rambled, keep the
	// first non-empty line.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first != "" {
			s = first
		}
	}
	return strings.TrimSpace(s)
}

const rewriteInstructions = `Given a conversation and a follow-up question, rephrase the follow-up into a single standalone question that can be understood without the conversation. Resolve pronouns and implicit references. Do not answer the question. Output only the rewritten question.`
