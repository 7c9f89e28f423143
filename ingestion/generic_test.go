package ingestion

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestGenericSplitShortTextIsOneChunk(t *testing.T) {
	pieces := NewGenericSegmenter(100, 20).Split("一段短文本。")
	if len(pieces) != 1 {
		t.Fatalf("expected 1 piece, got %d", len(pieces))
	}
	if pieces[0] != "一段短文本。" {
		t.Fatalf("short text modified: %q", pieces[0])
	}
}

func TestGenericSplitRespectsSizeBound(t *testing.T) {
	text := strings.Repeat("这是一个句子。", 100)
	g := NewGenericSegmenter(50, 10)

	pieces := g.Split(text)
	if len(pieces) < 2 {
		t.Fatalf("expected multiple pieces, got %d", len(pieces))
	}
	for i, piece := range pieces {
		if utf8.RuneCountInString(piece) > 50 {
			t.Fatalf("piece %d exceeds size bound: %d runes", i, utf8.RuneCountInString(piece))
		}
	}
}

func TestGenericSplitPrefersStrongerSeparator(t *testing.T) {
	// A paragraph break sits inside the window alongside sentence punctuation;
	// the cut must land after the paragraph break.
	text := "第一段的内容。\n\n第二段的内容开始了，并且继续延伸到窗口之外很远的地方，直到超过限制。"
	g := NewGenericSegmenter(20, 0)

	pieces := g.Split(text)
	if len(pieces) < 2 {
		t.Fatalf("expected multiple pieces, got %d", len(pieces))
	}
	if pieces[0] != "第一段的内容。" {
		t.Fatalf("expected cut at paragraph break, got %q", pieces[0])
	}
}

func TestGenericSplitOversizedTokenKeptVerbatim(t *testing.T) {
	token := strings.Repeat("字", 80)
	text := token + "。尾部句子。"
	g := NewGenericSegmenter(50, 10)

	pieces := g.Split(text)
	if len(pieces) == 0 {
		t.Fatal("no pieces produced")
	}
	if !strings.Contains(pieces[0], token) {
		t.Fatalf("oversized token was broken: %q", pieces[0])
	}
}

func TestGenericSplitOverlap(t *testing.T) {
	text := strings.Repeat("句子内容延续。", 40)
	g := NewGenericSegmenter(60, 20)

	pieces := g.Split(text)
	if len(pieces) < 2 {
		t.Fatalf("expected multiple pieces, got %d", len(pieces))
	}
	// The last overlap runes of each piece reappear at the head of the next.
	first := []rune(pieces[0])
	tail := string(first[len(first)-20:])
	if !strings.HasPrefix(pieces[1], tail) {
		t.Fatalf("expected overlap %q at start of %q", tail, pieces[1])
	}
}

func TestGenericSplitAlwaysTerminates(t *testing.T) {
	// No separators at all and shorter than the forward search can resolve.
	text := strings.Repeat("x", 500)
	g := NewGenericSegmenter(50, 49)

	done := make(chan []string, 1)
	go func() { done <- g.Split(text) }()

	pieces := <-done
	if len(pieces) == 0 {
		t.Fatal("no pieces produced")
	}
}

func TestGenericSegmentTagsChunks(t *testing.T) {
	chunks := NewGenericSegmenter(100, 20).Segment("普通文本内容。", map[string]any{"source": "a.txt"})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Metadata["content_type"] != "generic_split" {
		t.Fatalf("chunk not tagged: %v", chunks[0].Metadata)
	}
	if chunks[0].Metadata["source"] != "a.txt" {
		t.Fatalf("base metadata lost: %v", chunks[0].Metadata)
	}
}
