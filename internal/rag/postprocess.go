package rag

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxExcerptLen bounds the excerpt carried on each citation.
const maxExcerptLen = 500

// sourceRefPattern matches the [Source N] citations the composer asks the
// model to emit.
var sourceRefPattern = regexp.MustCompile(`\[Source (\d+)\]`)

// PostProcessor turns a raw generation result into the final Answer:
// citation alignment, confidence scoring and cosmetic cleanup.
type PostProcessor struct {
	topK int
}

func NewPostProcessor(topK int) *PostProcessor {
	if topK <= 0 {
		topK = DefaultParams().TopK
	}
	return &PostProcessor{topK: topK}
}

// Process builds the final Answer from the model output and the chunks the
// prompt actually contained. Citations cover the chunks the model cited; if
// it cited nothing recognizable, every included chunk is listed so the user
// can still see what the answer drew on.
func (p *PostProcessor) Process(raw *GenerateResult, included []RankedChunk) Answer {
	text := cleanAnswerText(raw.Text)
	cited := citedChunks(text, included)

	citations := make([]Citation, 0, len(cited))
	for _, c := range cited {
		citations = append(citations, Citation{
			DocumentName: c.DocumentName,
			Department:   c.Collection,
			Score:        c.Score,
			Excerpt:      excerpt(c.Content, maxExcerptLen),
		})
	}

	return Answer{
		Text:       text,
		Citations:  citations,
		Confidence: p.confidence(included, raw.Certainty),
		TokenCount: raw.TokenCount,
		NoContext:  len(included) == 0,
	}
}

// confidence scores how much to trust the answer: mostly the best
// similarity, partly how full the top-k window is, plus a backend certainty
// signal when one exists. An answer generated without context always
// scores zero.
func (p *PostProcessor) confidence(included []RankedChunk, certainty *float64) float64 {
	if len(included) == 0 {
		return 0
	}
	top := included[0].Score
	fill := float64(len(included)) / float64(p.topK)
	if fill > 1 {
		fill = 1
	}
	score := 0.7*top + 0.3*fill
	if certainty != nil {
		score = 0.6*top + 0.25*fill + 0.15*clamp01(*certainty)
	}
	return clamp01(score)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// citedChunks resolves [Source N] references against the included chunks,
// in rank order. Out-of-range references are ignored; no recognizable
// reference at all falls back to the full included list.
func citedChunks(text string, included []RankedChunk) []RankedChunk {
	if len(included) == 0 {
		return nil
	}
	refs := sourceRefPattern.FindAllStringSubmatch(text, -1)
	if len(refs) == 0 {
		return included
	}

	seen := make(map[int]struct{}, len(refs))
	var idxs []int
	for _, m := range refs {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(included) {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		idxs = append(idxs, n-1)
	}
	if len(idxs) == 0 {
		return included
	}

	sort.Ints(idxs)
	out := make([]RankedChunk, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, included[i])
	}
	return out
}

func cleanAnswerText(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"Answer:", "ANSWER:", "Response:", "Final answer:"} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			break
		}
	}
	return s
}

func excerpt(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	if idx := strings.LastIndexByte(cut, ' '); idx > max/2 {
		cut = cut[:idx]
	}
	return cut + "..."
}
