package rag

import (
	"fmt"
	"strings"

	"github.com/ziadkadry99/finchat/internal/access"
)

// Composer builds the generation prompt from the ranked context, the
// conversation history and the standalone question, within a token budget.
type Composer struct {
	budget int
}

func NewComposer(budget int) *Composer {
	if budget <= 0 {
		budget = DefaultParams().PromptTokenBudget
	}
	return &Composer{budget: budget}
}

// Compose returns the prompt and the chunks that actually made it in.
// When the budget is exceeded it drops whole lowest-ranked chunks first,
// then the oldest history turns; chunks are never cut mid-text. If context
// was retrieved, at least the best chunk always survives so the model is
// never told "no context" when context exists. ErrPromptOverBudget is
// returned only when even the minimal prompt does not fit.
func (c *Composer) Compose(query string, ranked []RankedChunk, history []Turn, scope access.Scope) (string, []RankedChunk, error) {
	included := ranked
	hist := history
	minChunks := 0
	if len(ranked) > 0 {
		minChunks = 1
	}

	for {
		prompt := buildAnswerPrompt(query, included, hist, scope)
		if estimateTokens(prompt) <= c.budget {
			return prompt, included, nil
		}
		if len(included) > minChunks {
			included = included[:len(included)-1]
			continue
		}
		if len(hist) > 0 {
			hist = hist[1:]
			continue
		}
		return "", nil, ErrPromptOverBudget
	}
}

// estimateTokens approximates the token count of s. Four characters per
// token is the usual ballpark for English prose and errs on the safe side
// for a budget check.
func estimateTokens(s string) int {
	n := len(s) / 4
	if n < 1 && len(s) > 0 {
		n = 1
	}
	return n
}

func buildAnswerPrompt(query string, chunks []RankedChunk, history []Turn, scope access.Scope) string {
	var b strings.Builder

	b.WriteString(composerPersona)
	b.WriteString("\n\nCONTEXT:\n\n")
	if len(chunks) > 0 {
		for i, c := range chunks {
			fmt.Fprintf(&b, "[Source %d - %q from %s department]\n%s\n\n", i+1, c.DocumentName, c.Collection, c.Content)
		}
	} else {
		fmt.Fprintf(&b, "No relevant documents were found in the departments you can access (%s).\n\n", joinCollections(scope.Collections()))
	}

	if len(history) > 0 {
		b.WriteString("CONVERSATION HISTORY:\n")
		for _, t := range history {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "QUESTION: %s\n\n", query)
	if len(chunks) > 0 {
		b.WriteString(composerClosing)
	} else {
		b.WriteString(composerNoContextClosing)
	}

	return b.String()
}

func joinCollections(cols []access.Collection) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

const composerPersona = `You are an internal company assistant. Answer employee questions using only the context supplied below. Think through the context step by step before answering, and keep that reasoning out of the final answer.`

const composerClosing = `INSTRUCTIONS: Answer the question using only the context above. Cite the context block backing each claim as [Source N]. If the context does not contain enough information to answer, say so plainly instead of guessing. Never use knowledge from outside the context.`

const composerNoContextClosing = `INSTRUCTIONS: Tell the user that no relevant information was found in the knowledge base they can access. Do not answer from general knowledge. Suggest rephrasing the question or contacting the relevant department directly.`
