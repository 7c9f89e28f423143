package chat

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestRechunkerReleasesCompleteSentences(t *testing.T) {
	r := NewRechunker(5)

	units := r.Feed("这是第一句。这是第二句！")
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d: %v", len(units), units)
	}
	if units[0] != "这是第一句。" {
		t.Fatalf("unexpected first unit: %q", units[0])
	}
	if units[1] != "这是第二句！" {
		t.Fatalf("unexpected second unit: %q", units[1])
	}
	if rest := r.Flush(); rest != "" {
		t.Fatalf("expected empty remainder, got %q", rest)
	}
}

func TestRechunkerBuffersBelowMinimum(t *testing.T) {
	r := NewRechunker(20)

	if units := r.Feed("短句。"); len(units) != 0 {
		t.Fatalf("short fragment must stay buffered, got %v", units)
	}
	units := r.Feed("继续补充内容直到长度超过最小阈值为止。")
	if len(units) != 1 {
		t.Fatalf("expected 1 unit after threshold crossed, got %d", len(units))
	}
	if utf8.RuneCountInString(units[0]) < 20 {
		t.Fatalf("unit below minimum length: %q", units[0])
	}
}

func TestRechunkerTokenFragmentsAccumulate(t *testing.T) {
	r := NewRechunker(5)

	var units []string
	for _, token := range []string{"民", "法", "典", "保", "护", "。", "下一句开始"} {
		units = append(units, r.Feed(token)...)
	}
	if len(units) != 1 {
		t.Fatalf("expected 1 unit from token fragments, got %d: %v", len(units), units)
	}
	if units[0] != "民法典保护。" {
		t.Fatalf("unexpected unit: %q", units[0])
	}
	if rest := r.Flush(); rest != "下一句开始" {
		t.Fatalf("unexpected remainder: %q", rest)
	}
}

func TestRechunkerHoldsTerminatorAtExactMinimum(t *testing.T) {
	r := NewRechunker(5)

	// "答案成立。" is exactly 5 runes; the unit must strictly exceed the
	// minimum, so the terminator at the boundary does not release it.
	if units := r.Feed("答案成立。"); len(units) != 0 {
		t.Fatalf("boundary-length fragment must stay buffered, got %v", units)
	}
	units := r.Feed("补充说明。")
	if len(units) != 1 || units[0] != "答案成立。补充说明。" {
		t.Fatalf("unexpected units: %v", units)
	}
	if rest := r.Flush(); rest != "" {
		t.Fatalf("expected empty remainder, got %q", rest)
	}
}

func TestRechunkerContentPassesThroughUnmodified(t *testing.T) {
	r := NewRechunker(7)
	input := "依据民法典第一条，立法目的包括保护民事主体的合法权益；同时维护社会和经济秩序，适应中国特色社会主义发展要求。尾巴"

	var rebuilt strings.Builder
	for _, fragment := range strings.Split(input, "") {
		for _, unit := range r.Feed(fragment) {
			rebuilt.WriteString(unit)
		}
	}
	rebuilt.WriteString(r.Flush())

	if rebuilt.String() != input {
		t.Fatalf("content was modified:\n in: %q\nout: %q", input, rebuilt.String())
	}
}

func TestRechunkerFlushReturnsShortRemainder(t *testing.T) {
	r := NewRechunker(20)
	r.Feed("不足。")

	if rest := r.Flush(); rest != "不足。" {
		t.Fatalf("unexpected remainder: %q", rest)
	}
	if rest := r.Flush(); rest != "" {
		t.Fatalf("second flush must be empty, got %q", rest)
	}
}

func TestRechunkerNewlineIsATerminator(t *testing.T) {
	r := NewRechunker(3)

	units := r.Feed("第一行内容\n第二行")
	if len(units) != 1 {
		t.Fatalf("expected 1 unit, got %d: %v", len(units), units)
	}
	if units[0] != "第一行内容\n" {
		t.Fatalf("unexpected unit: %q", units[0])
	}
}
