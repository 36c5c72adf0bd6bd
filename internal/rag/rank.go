package rag

import "sort"

// RankChunks merges raw retrieval hits into a deduplicated, deterministic
// top-k list. A chunk surfaced by several variants keeps its best score and
// counts each distinct variant as a match. Ordering is total: score
// descending, then match count descending, then chunk ID ascending, so the
// same input set always yields the same output regardless of fan-out
// completion order.
func RankChunks(raw []RetrievedChunk, k int) []RankedChunk {
	if len(raw) == 0 {
		return nil
	}

	type agg struct {
		chunk    RetrievedChunk
		variants map[int]struct{}
	}
	byID := make(map[string]*agg, len(raw))
	for _, c := range raw {
		a, ok := byID[c.ID]
		if !ok {
			byID[c.ID] = &agg{
				chunk:    c,
				variants: map[int]struct{}{c.VariantIndex: {}},
			}
			continue
		}
		if c.Score > a.chunk.Score {
			a.chunk.Score = c.Score
		}
		a.variants[c.VariantIndex] = struct{}{}
	}

	ranked := make([]RankedChunk, 0, len(byID))
	for _, a := range byID {
		ranked = append(ranked, RankedChunk{
			RetrievedChunk: a.chunk,
			MatchCount:     len(a.variants),
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].MatchCount != ranked[j].MatchCount {
			return ranked[i].MatchCount > ranked[j].MatchCount
		}
		return ranked[i].ID < ranked[j].ID
	})

	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
