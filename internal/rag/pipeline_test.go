package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ziadkadry99/finchat/internal/access"
	"github.com/ziadkadry99/finchat/internal/llm"
	"github.com/ziadkadry99/finchat/internal/vectordb"
)

// scriptedGen routes generation calls by prompt shape: rewrite prompts,
// augmentation prompts and final answer prompts get independent scripts.
type scriptedGen struct {
	mu          sync.Mutex
	rewrite     string
	rewriteErr  error
	variants    string
	variantsErr error
	answer      string
	answerErrs  []error // consumed per answer call; nil entry means success
	certainty   *float64

	rewriteCalls  int
	augmentCalls  int
	answerCalls   int
	answerPrompts []string
}

func (g *scriptedGen) Generate(_ context.Context, prompt string, _ int) (*GenerateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case strings.Contains(prompt, "## Follow-up Question"):
		g.rewriteCalls++
		if g.rewriteErr != nil {
			return nil, g.rewriteErr
		}
		return &GenerateResult{Text: g.rewrite}, nil
	case strings.Contains(prompt, "alternative phrasings"):
		g.augmentCalls++
		if g.variantsErr != nil {
			return nil, g.variantsErr
		}
		return &GenerateResult{Text: g.variants}, nil
	default:
		g.answerCalls++
		g.answerPrompts = append(g.answerPrompts, prompt)
		if len(g.answerErrs) > 0 {
			err := g.answerErrs[0]
			g.answerErrs = g.answerErrs[1:]
			if err != nil {
				return nil, err
			}
		}
		return &GenerateResult{Text: g.answer, TokenCount: 64, Certainty: g.certainty}, nil
	}
}

func fastParams() Params {
	p := DefaultParams()
	p.RetryBaseDelay = time.Millisecond
	return p
}

func TestPipelineAnswersWithCitations(t *testing.T) {
	gen := &scriptedGen{
		variants: "How many vacation days are there?\nWhat is the PTO allowance?",
		answer:   "Employees get 25 days of vacation [Source 1].",
	}
	searcher := &fakeSearcher{
		results: map[access.Collection][]vectordb.SearchResult{
			access.CollectionGeneral: {
				hit("handbook#0", access.CollectionGeneral, "handbook.md", 0.9),
				hit("handbook#4", access.CollectionGeneral, "handbook.md", 0.8),
			},
		},
	}
	p := NewPipeline(gen, searcher, fastParams(), nil)

	answer, err := p.Answer(context.Background(), Request{
		Role:    access.RoleEmployee,
		Message: "What is the vacation policy?",
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if !strings.Contains(answer.Text, "25 days") {
		t.Errorf("unexpected answer text: %q", answer.Text)
	}
	if len(answer.Citations) != 1 || answer.Citations[0].DocumentName != "handbook.md" {
		t.Errorf("unexpected citations: %+v", answer.Citations)
	}
	if answer.Degraded {
		t.Errorf("clean run must not be degraded, warnings: %v", answer.Warnings)
	}
	if answer.NoContext {
		t.Error("context was found, NoContext must be false")
	}

	// First question of a conversation: no rewrite call, one augment call.
	if gen.rewriteCalls != 0 {
		t.Errorf("expected no rewrite without history, got %d", gen.rewriteCalls)
	}
	if gen.augmentCalls != 1 {
		t.Errorf("expected 1 augment call, got %d", gen.augmentCalls)
	}

	// Three variants (original + two parsed) across one allowed collection.
	if searcher.callCount() != 3 {
		t.Errorf("expected 3 searches, got %d", searcher.callCount())
	}

	wantConf := 0.7*float64(float32(0.9)) + 0.3*0.4
	if math.Abs(answer.Confidence-wantConf) > 1e-6 {
		t.Errorf("confidence = %v, want %v", answer.Confidence, wantConf)
	}
}

func TestPipelineFollowUpUsesRewrite(t *testing.T) {
	gen := &scriptedGen{
		rewrite:  "What is the vacation policy for managers?",
		variants: "Manager vacation allowance?",
		answer:   "Managers get 30 days [Source 1].",
	}
	searcher := &fakeSearcher{
		results: map[access.Collection][]vectordb.SearchResult{
			access.CollectionGeneral: {hit("handbook#2", access.CollectionGeneral, "handbook.md", 0.85)},
		},
	}
	p := NewPipeline(gen, searcher, fastParams(), nil)

	answer, err := p.Answer(context.Background(), Request{
		Role:    access.RoleEmployee,
		Message: "What about for managers?",
		History: historyOf("What is the vacation policy?", "Employees get 25 days."),
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if gen.rewriteCalls != 1 {
		t.Errorf("expected 1 rewrite call, got %d", gen.rewriteCalls)
	}
	if answer.StandaloneQuery != "What is the vacation policy for managers?" {
		t.Errorf("unexpected standalone query: %q", answer.StandaloneQuery)
	}

	// Variant 0 searches must use the rewritten question, not the raw
	// follow-up.
	searcher.mu.Lock()
	defer searcher.mu.Unlock()
	found := false
	for _, c := range searcher.calls {
		if c.query == "What is the vacation policy for managers?" {
			found = true
		}
		if c.query == "What about for managers?" {
			t.Error("raw follow-up must not be searched directly")
		}
	}
	if !found {
		t.Error("rewritten question never searched")
	}
}

func TestPipelineRoleScopingPreventsLeaks(t *testing.T) {
	gen := &scriptedGen{
		variants: "What was spent last quarter?",
		answer:   "Campaign spend was 40k [Source 1].",
	}
	searcher := &fakeSearcher{
		results: map[access.Collection][]vectordb.SearchResult{
			access.CollectionFinance: {
				hit("q3-financials#0", access.CollectionFinance, "q3-financials.md", 0.99),
			},
			access.CollectionMarketing: {
				hit("campaign#0", access.CollectionMarketing, "campaign-report.md", 0.9),
			},
			access.CollectionGeneral: {
				hit("handbook#0", access.CollectionGeneral, "handbook.md", 0.75),
			},
		},
	}
	p := NewPipeline(gen, searcher, fastParams(), nil)

	answer, err := p.Answer(context.Background(), Request{
		Role:    access.RoleMarketing,
		Message: "What was our Q3 spend?",
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	searcher.mu.Lock()
	for _, c := range searcher.calls {
		if c.collection == access.CollectionFinance {
			t.Errorf("marketing role must never search finance")
		}
	}
	searcher.mu.Unlock()

	for _, cit := range answer.Citations {
		if cit.Department == access.CollectionFinance {
			t.Errorf("finance chunk leaked into citations: %+v", cit)
		}
		if cit.DocumentName == "q3-financials.md" {
			t.Errorf("finance document leaked: %+v", cit)
		}
	}
}

func TestPipelineFinanceOrderingAcrossCollections(t *testing.T) {
	gen := &scriptedGen{
		variants: "How did Q3 close?",
		answer:   "Q3 closed ahead of plan.",
	}
	searcher := &fakeSearcher{
		results: map[access.Collection][]vectordb.SearchResult{
			access.CollectionGeneral: {
				hit("summary#0", access.CollectionGeneral, "summary.md", 0.95),
			},
			access.CollectionFinance: {
				hit("q3#0", access.CollectionFinance, "q3-report.md", 0.91),
				hit("q3#7", access.CollectionFinance, "q3-report.md", 0.78),
			},
		},
	}
	p := NewPipeline(gen, searcher, fastParams(), nil)

	answer, err := p.Answer(context.Background(), Request{
		Role:    access.RoleFinance,
		Message: "How did Q3 close?",
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	// No [Source N] markers in the answer, so all ranked chunks are cited,
	// in rank order: the general chunk outranks both finance chunks.
	wantDocs := []string{"summary.md", "q3-report.md", "q3-report.md"}
	if len(answer.Citations) != len(wantDocs) {
		t.Fatalf("expected %d citations, got %+v", len(wantDocs), answer.Citations)
	}
	for i, cit := range answer.Citations {
		if cit.DocumentName != wantDocs[i] {
			t.Errorf("citation %d: expected %s, got %s", i, wantDocs[i], cit.DocumentName)
		}
		if i > 0 && cit.Score > answer.Citations[i-1].Score {
			t.Errorf("citations out of score order at %d: %v after %v", i, cit.Score, answer.Citations[i-1].Score)
		}
	}
	if answer.Confidence <= 0 {
		t.Errorf("expected positive confidence, got %v", answer.Confidence)
	}
}

func TestPipelineNoContextFound(t *testing.T) {
	gen := &scriptedGen{
		variants: "unrelated phrasing",
		answer:   "I could not find this in the documents you can access.",
	}
	searcher := &fakeSearcher{}
	p := NewPipeline(gen, searcher, fastParams(), nil)

	answer, err := p.Answer(context.Background(), Request{
		Role:    access.RoleEmployee,
		Message: "What is the recipe for the cafeteria lasagna?",
	})
	if err != nil {
		t.Fatalf("no-context turns must not fail: %v", err)
	}

	if !answer.NoContext {
		t.Error("expected NoContext flag")
	}
	if answer.Confidence != 0 {
		t.Errorf("no-context confidence must be 0, got %v", answer.Confidence)
	}
	if len(answer.Citations) != 0 {
		t.Errorf("expected no citations, got %+v", answer.Citations)
	}
	if len(gen.answerPrompts) != 1 || !strings.Contains(gen.answerPrompts[0], "No relevant documents were found") {
		t.Error("generation prompt missing the no-context instruction")
	}
}

func TestPipelineAugmenterFailureDegrades(t *testing.T) {
	gen := &scriptedGen{
		variantsErr: errors.New("model overloaded"),
		answer:      "The roadmap is in the engineering wiki [Source 1].",
	}
	searcher := &fakeSearcher{
		results: map[access.Collection][]vectordb.SearchResult{
			access.CollectionEngineering: {
				hit("roadmap#0", access.CollectionEngineering, "roadmap.md", 0.88),
			},
		},
	}
	p := NewPipeline(gen, searcher, fastParams(), nil)

	answer, err := p.Answer(context.Background(), Request{
		Role:    access.RoleEngineering,
		Message: "Where is the quarterly roadmap?",
	})
	if err != nil {
		t.Fatalf("augmenter failure must not abort the turn: %v", err)
	}

	if !answer.Degraded {
		t.Error("expected degraded answer after augmentation failure")
	}
	if len(answer.Citations) != 1 {
		t.Errorf("expected the answer to still cite context, got %+v", answer.Citations)
	}

	// Only the original query could be searched: 1 variant x 2 collections.
	if searcher.callCount() != 2 {
		t.Errorf("expected 2 searches, got %d", searcher.callCount())
	}
}

func TestPipelineRejectsInvalidInput(t *testing.T) {
	p := NewPipeline(&scriptedGen{}, &fakeSearcher{}, fastParams(), nil)

	tests := []struct {
		name string
		req  Request
	}{
		{"empty message", Request{Role: access.RoleEmployee, Message: "   "}},
		{"oversized message", Request{Role: access.RoleEmployee, Message: strings.Repeat("a", MaxMessageLen+1)}},
		{"unknown role", Request{Role: access.Role("wizard"), Message: "hello"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Answer(context.Background(), tt.req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestPipelineRetriesTransientGeneration(t *testing.T) {
	gen := &scriptedGen{
		variants:   "alt",
		answer:     "Recovered answer [Source 1].",
		answerErrs: []error{llm.Transient(errors.New("overloaded")), llm.Transient(errors.New("overloaded")), nil},
	}
	searcher := &fakeSearcher{
		results: map[access.Collection][]vectordb.SearchResult{
			access.CollectionGeneral: {hit("handbook#0", access.CollectionGeneral, "handbook.md", 0.9)},
		},
	}
	p := NewPipeline(gen, searcher, fastParams(), nil)

	answer, err := p.Answer(context.Background(), Request{
		Role:    access.RoleEmployee,
		Message: "What is the policy?",
	})
	if err != nil {
		t.Fatalf("expected recovery after transient failures: %v", err)
	}
	if gen.answerCalls != 3 {
		t.Errorf("expected 3 generation attempts, got %d", gen.answerCalls)
	}
	if !strings.Contains(answer.Text, "Recovered") {
		t.Errorf("unexpected answer: %q", answer.Text)
	}
}

func TestPipelineFatalOnNonTransientGeneration(t *testing.T) {
	gen := &scriptedGen{
		variants:   "alt",
		answerErrs: []error{errors.New("invalid api key")},
	}
	searcher := &fakeSearcher{
		results: map[access.Collection][]vectordb.SearchResult{
			access.CollectionGeneral: {hit("handbook#0", access.CollectionGeneral, "handbook.md", 0.9)},
		},
	}
	p := NewPipeline(gen, searcher, fastParams(), nil)

	_, err := p.Answer(context.Background(), Request{
		Role:    access.RoleEmployee,
		Message: "What is the policy?",
	})
	if !IsFatal(err) {
		t.Fatalf("expected fatal pipeline error, got %v", err)
	}
	if gen.answerCalls != 1 {
		t.Errorf("non-transient failures must not be retried, got %d attempts", gen.answerCalls)
	}
}

func TestPipelineExhaustsRetries(t *testing.T) {
	transient := llm.Transient(errors.New("still overloaded"))
	gen := &scriptedGen{
		variants:   "alt",
		answerErrs: []error{transient, transient, transient},
	}
	searcher := &fakeSearcher{
		results: map[access.Collection][]vectordb.SearchResult{
			access.CollectionGeneral: {hit("handbook#0", access.CollectionGeneral, "handbook.md", 0.9)},
		},
	}
	p := NewPipeline(gen, searcher, fastParams(), nil)

	_, err := p.Answer(context.Background(), Request{
		Role:    access.RoleEmployee,
		Message: "What is the policy?",
	})
	if !IsFatal(err) {
		t.Fatalf("expected fatal error after exhausting retries, got %v", err)
	}
	if gen.answerCalls != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", gen.answerCalls)
	}
}

func TestPipelineBoundsHistory(t *testing.T) {
	gen := &scriptedGen{
		rewrite:  "standalone question",
		variants: "alt",
		answer:   "answer [Source 1]",
	}
	searcher := &fakeSearcher{
		results: map[access.Collection][]vectordb.SearchResult{
			access.CollectionGeneral: {hit("handbook#0", access.CollectionGeneral, "handbook.md", 0.9)},
		},
	}
	p := NewPipeline(gen, searcher, fastParams(), nil)

	var contents []string
	for i := 0; i < 15; i++ {
		contents = append(contents, fmt.Sprintf("hist-%02d", i))
	}

	_, err := p.Answer(context.Background(), Request{
		Role:    access.RoleEmployee,
		Message: "follow-up question",
		History: historyOf(contents...),
	})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	prompt := gen.answerPrompts[0]
	if !strings.Contains(prompt, "hist-14") {
		t.Error("most recent turn missing from the answer prompt")
	}
	if !strings.Contains(prompt, "hist-05") {
		t.Error("turn inside the 10-turn window missing from the answer prompt")
	}
	if strings.Contains(prompt, "hist-04") {
		t.Error("turn outside the 10-turn window leaked into the answer prompt")
	}
}

func TestPipelineCancellation(t *testing.T) {
	gen := &scriptedGen{variants: "alt", answer: "never used"}
	searcher := &fakeSearcher{
		results: map[access.Collection][]vectordb.SearchResult{
			access.CollectionGeneral: {hit("handbook#0", access.CollectionGeneral, "handbook.md", 0.9)},
		},
	}
	p := NewPipeline(gen, searcher, fastParams(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Answer(ctx, Request{
		Role:    access.RoleEmployee,
		Message: "What is the policy?",
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if gen.answerCalls != 0 {
		t.Errorf("generation must not run after cancellation, got %d calls", gen.answerCalls)
	}
}

func TestPipelineDeterministicAcrossRuns(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[access.Collection][]vectordb.SearchResult{
			access.CollectionFinance: {
				hit("budget#0", access.CollectionFinance, "budget.md", 0.9),
				hit("forecast#0", access.CollectionFinance, "forecast.md", 0.85),
			},
			access.CollectionGeneral: {
				hit("handbook#0", access.CollectionGeneral, "handbook.md", 0.85),
				hit("calendar#0", access.CollectionGeneral, "calendar.md", 0.8),
			},
		},
	}

	run := func() *Answer {
		gen := &scriptedGen{
			variants: "alt one\nalt two\nalt three",
			answer:   "Spend details [Source 1][Source 2].",
		}
		p := NewPipeline(gen, searcher, fastParams(), nil)
		answer, err := p.Answer(context.Background(), Request{
			Role:    access.RoleFinance,
			Message: "What was the Q3 spend?",
		})
		if err != nil {
			t.Fatalf("Answer: %v", err)
		}
		return answer
	}

	a1 := run()
	a2 := run()
	if a1.Text != a2.Text {
		t.Errorf("answer text differs across runs")
	}
	if !reflect.DeepEqual(a1.Citations, a2.Citations) {
		t.Errorf("citations differ across runs:\n%+v\n%+v", a1.Citations, a2.Citations)
	}
	if a1.Confidence != a2.Confidence {
		t.Errorf("confidence differs: %v vs %v", a1.Confidence, a2.Confidence)
	}
}
