package chat

import (
	"strings"
	"unicode/utf8"
)

// EndSentinel is the final frame of every stream, emitted after the last
// content unit.
const EndSentinel = "[END]"

// DefaultTerminators are the characters a streamed unit may end on.
const DefaultTerminators = "。！？；，.!?;,\n"

// Rechunker regroups arbitrary model fragments into readable units: a unit is
// released once it ends on a terminator and holds more than minLen runes.
// Flush returns whatever remains when the model is done. Content passes
// through unmodified; concatenating all units and the flush remainder
// reproduces the input exactly.
type Rechunker struct {
	minLen      int
	terminators string
	buf         strings.Builder
}

func NewRechunker(minLen int) *Rechunker {
	if minLen <= 0 {
		minLen = 20
	}
	return &Rechunker{minLen: minLen, terminators: DefaultTerminators}
}

// Feed appends a fragment and returns all complete units it released.
func (r *Rechunker) Feed(fragment string) []string {
	if fragment == "" {
		return nil
	}
	r.buf.WriteString(fragment)

	var units []string
	for {
		unit, ok := r.takeUnit()
		if !ok {
			break
		}
		units = append(units, unit)
	}
	return units
}

// Flush returns the buffered remainder, which may be below the minimum
// length, and resets the buffer.
func (r *Rechunker) Flush() string {
	rest := r.buf.String()
	r.buf.Reset()
	return rest
}

// takeUnit cuts the buffer at the first terminator positioned strictly past
// minLen runes.
func (r *Rechunker) takeUnit() (string, bool) {
	content := r.buf.String()
	runeCount := 0
	for i, ch := range content {
		runeCount++
		if runeCount <= r.minLen {
			continue
		}
		if strings.ContainsRune(r.terminators, ch) {
			cut := i + utf8.RuneLen(ch)
			r.buf.Reset()
			r.buf.WriteString(content[cut:])
			return content[:cut], true
		}
	}
	return "", false
}
