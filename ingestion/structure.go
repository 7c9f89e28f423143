package ingestion

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// StructurePattern binds a marker kind to the regular expression that detects
// it. Patterns are tested in slice order, highest level first.
type StructurePattern struct {
	Kind    MarkerKind
	Pattern *regexp.Regexp
}

// DefaultStructurePatterns matches the civil-code hierarchy: 编 (part/section),
// 章 (chapter), 节 (subsection). The first capture group is the marker label.
func DefaultStructurePatterns() []StructurePattern {
	return []StructurePattern{
		{Kind: KindSection, Pattern: regexp.MustCompile(`^第[一二三四五六七八九十百]+编\s+(\S+)`)},
		{Kind: KindChapter, Pattern: regexp.MustCompile(`^第[一二三四五六七八九十百]+章\s+(\S+)`)},
		{Kind: KindSubsection, Pattern: regexp.MustCompile(`^第[一二三四五六七八九十百]+节\s+(\S+)`)},
	}
}

// DefaultArticlePattern matches an atomic article line (第X条 ...).
func DefaultArticlePattern() *regexp.Regexp {
	return regexp.MustCompile(`^第[零一二三四五六七八九十百千]+条`)
}

// StructuralSegmenter splits legal text along detected hierarchy boundaries,
// tagging every chunk with the section/chapter/article context active where
// its content started. When no structure is found it delegates to a generic
// segmenter instead of failing.
type StructuralSegmenter struct {
	patterns    []StructurePattern
	article     *regexp.Regexp
	minChunkLen int
	fallback    *GenericSegmenter
}

// NewStructuralSegmenter builds a segmenter with the default civil-code
// patterns. minChunkLen is the flush threshold in runes.
func NewStructuralSegmenter(minChunkLen int, fallback *GenericSegmenter) *StructuralSegmenter {
	return &StructuralSegmenter{
		patterns:    DefaultStructurePatterns(),
		article:     DefaultArticlePattern(),
		minChunkLen: minChunkLen,
		fallback:    fallback,
	}
}

// WithPatterns overrides the structure and article patterns.
func (s *StructuralSegmenter) WithPatterns(patterns []StructurePattern, article *regexp.Regexp) *StructuralSegmenter {
	s.patterns = patterns
	s.article = article
	return s
}

// ExtractMarkers scans the text line by line and returns all structural and
// article markers in document order.
func (s *StructuralSegmenter) ExtractMarkers(text string) []StructureMarker {
	lines := strings.Split(normalizeNewlines(text), "\n")
	markers := make([]StructureMarker, 0)

	currentSection := ""
	currentChapter := ""

	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		matched := false
		for _, sp := range s.patterns {
			m := sp.Pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			label := ""
			if len(m) > 1 {
				label = m[1]
			}
			switch sp.Kind {
			case KindSection:
				currentSection = label
				currentChapter = ""
			case KindChapter:
				currentChapter = label
			}
			markers = append(markers, StructureMarker{
				Kind:       sp.Kind,
				Label:      label,
				Line:       i,
				ParentPath: joinPath(currentSection, currentChapter, label),
				Section:    currentSection,
				Chapter:    currentChapter,
			})
			matched = true
			break
		}
		if matched {
			continue
		}

		if m := s.article.FindString(line); m != "" {
			markers = append(markers, StructureMarker{
				Kind:       KindArticle,
				Label:      m,
				Line:       i,
				ParentPath: joinPath(currentSection, currentChapter, ""),
				Section:    currentSection,
				Chapter:    currentChapter,
			})
		}
	}

	return markers
}

// Segment splits the text along its structural markers. Each boundary flushes
// the pending buffer as a chunk when its content exceeds the minimum length;
// the metadata snapshot attached at flush time reflects the context active
// before the boundary. The boundary line itself opens the next chunk. A
// pending buffer below the threshold is not discarded; it rolls into the next
// chunk. When no markers are detected at all, the generic segmenter is used
// and an empty marker slice is returned.
func (s *StructuralSegmenter) Segment(text string, base map[string]any) ([]Chunk, []StructureMarker) {
	markers := s.ExtractMarkers(text)
	if len(markers) == 0 {
		return s.fallback.Segment(text, base), nil
	}

	byLine := make(map[int]StructureMarker, len(markers))
	for _, m := range markers {
		if _, ok := byLine[m.Line]; !ok {
			byLine[m.Line] = m
		}
	}

	lines := strings.Split(normalizeNewlines(text), "\n")
	meta := SanitizeMetadata(base)
	pending := make([]string, 0)
	pendingLen := 0
	chunks := make([]Chunk, 0)

	flush := func() {
		if len(pending) == 0 || pendingLen <= s.minChunkLen {
			return
		}
		chunks = append(chunks, Chunk{
			Text:     strings.Join(pending, "\n"),
			Metadata: copyMetadata(meta),
		})
		pending = pending[:0]
		pendingLen = 0
	}

	for i, line := range lines {
		line = strings.TrimSpace(line)

		marker, isBoundary := byLine[i]
		if isBoundary {
			flush()

			switch marker.Kind {
			case KindArticle:
				meta["article_number"] = marker.Label
				meta["section"] = marker.Section
				meta["chapter"] = marker.Chapter
				meta["content_type"] = "law_article"
				meta["is_law_article"] = true
			default:
				meta["section_name"] = marker.Label
				meta["full_path"] = marker.ParentPath
				meta["content_type"] = "section_header"
			}

			pending = append(pending, line)
			pendingLen += utf8.RuneCountInString(line)
			continue
		}

		if line != "" {
			pending = append(pending, line)
			pendingLen += utf8.RuneCountInString(line)
		}
	}

	flush()
	return chunks, markers
}

func joinPath(section, chapter, label string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{section, chapter, label} {
		if p != "" && (len(parts) == 0 || parts[len(parts)-1] != p) {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " - ")
}

func normalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}
