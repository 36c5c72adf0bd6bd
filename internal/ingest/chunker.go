package ingest

import "strings"

// ChunkText splits a document into chunks of at most size characters with
// roughly overlap characters repeated between neighbours, so a fact that
// straddles a cut survives in at least one chunk whole. Cuts prefer
// paragraph breaks, then line breaks, then spaces; only a window with no
// break at all is cut mid-word.
func ChunkText(text string, size, overlap int) []string {
	if size < 1 {
		size = 500
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			if chunk := strings.TrimSpace(text[start:]); chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		cut := cutBefore(text, start, end)
		if chunk := strings.TrimSpace(text[start:cut]); chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := cut - overlap
		if next <= start {
			// Overlap would stall the walk; drop it for this step.
			next = cut
		}
		start = next
	}

	return chunks
}

// cutBefore picks the cut position for the window text[start:end]. A break
// in the back half of the window wins; otherwise the window is cut at end.
func cutBefore(text string, start, end int) int {
	window := text[start:end]
	half := (end - start) / 2

	if idx := strings.LastIndex(window, "\n\n"); idx >= half {
		return start + idx
	}
	if idx := strings.LastIndexByte(window, '\n'); idx >= half {
		return start + idx
	}
	if idx := strings.LastIndexByte(window, ' '); idx >= half {
		return start + idx
	}
	return end
}
