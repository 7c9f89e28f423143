package ingestion

import (
	"strings"
)

// DefaultSeparators orders split candidates from strongest to weakest:
// paragraph break, line break, CJK sentence punctuation, then whitespace.
func DefaultSeparators() []string {
	return []string{"\n\n", "\n", "。", "！", "？", "；", "，", " "}
}

// GenericSegmenter splits unstructured text into size-bounded, overlapping
// chunks. All lengths are measured in runes so CJK text chunks the same as
// ASCII.
type GenericSegmenter struct {
	chunkSize  int
	overlap    int
	separators []string
}

func NewGenericSegmenter(chunkSize, overlap int) *GenericSegmenter {
	if overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	return &GenericSegmenter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: DefaultSeparators(),
	}
}

// WithSeparators overrides the separator priority list.
func (g *GenericSegmenter) WithSeparators(separators []string) *GenericSegmenter {
	g.separators = separators
	return g
}

// Segment splits the text and attaches the base metadata, sanitized, to every
// chunk along with content_type "generic_split".
func (g *GenericSegmenter) Segment(text string, base map[string]any) []Chunk {
	pieces := g.Split(text)
	chunks := make([]Chunk, 0, len(pieces))
	meta := SanitizeMetadata(base)
	meta["content_type"] = "generic_split"
	for _, piece := range pieces {
		chunks = append(chunks, Chunk{
			Text:     piece,
			Metadata: copyMetadata(meta),
		})
	}
	return chunks
}

// Split cuts text into pieces of at most chunkSize runes. Each cut prefers the
// last occurrence of the highest-priority separator inside the window; a
// window with no separator at all is extended forward to the next separator
// or end of text, so an oversized unbreakable token is emitted verbatim.
// Consecutive chunks share overlap runes.
func (g *GenericSegmenter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= g.chunkSize {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}

	pieces := make([]string, 0, len(runes)/g.chunkSize+1)
	start := 0
	for start < len(runes) {
		end := start + g.chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			cut := g.findSplit(runes, start, end)
			if cut > start {
				end = cut
			} else {
				end = g.findForward(runes, end)
			}
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			pieces = append(pieces, piece)
		}

		if end >= len(runes) {
			break
		}
		next := end - g.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return pieces
}

// findSplit returns the rune index just after the last occurrence of the
// highest-priority separator inside [start, end), or start when none occurs.
func (g *GenericSegmenter) findSplit(runes []rune, start, end int) int {
	window := string(runes[start:end])
	for _, sep := range g.separators {
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		prefix := window[:idx+len(sep)]
		cut := start + len([]rune(prefix))
		if cut > start {
			return cut
		}
	}
	return start
}

// findForward extends past end to the next separator occurrence, so a token
// longer than the chunk size is kept whole.
func (g *GenericSegmenter) findForward(runes []rune, end int) int {
	rest := string(runes[end:])
	best := -1
	for _, sep := range g.separators {
		idx := strings.Index(rest, sep)
		if idx < 0 {
			continue
		}
		cut := end + len([]rune(rest[:idx+len(sep)]))
		if best < 0 || cut < best {
			best = cut
		}
	}
	if best < 0 {
		return len(runes)
	}
	return best
}
