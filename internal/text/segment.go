// Package text splits target text into synthesis-sized segments.
package text

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/example/go-trait-tts/internal/fault"
)

// MinSegmentRunes is the merge threshold applied after cutting.
const MinSegmentRunes = 5

// sentenceEnds terminates an atomic sentence unit. It also defines which
// segment endings count as a terminator.
var sentenceEnds = map[rune]bool{
	'，': true, '。': true, '？': true, '！': true,
	',': true, '.': true, '?': true, '!': true,
	'~': true, ':': true, '：': true, '—': true, '…': true,
}

// cutMarks are the split points of the punctuation strategy.
var cutMarks = map[rune]bool{
	',': true, '.': true, ';': true, '?': true, '!': true,
	'、': true, '，': true, '。': true, '？': true, '！': true, '：': true, '…': true,
}

// Cut applies a strategy and returns its raw pieces, before blank-line
// collapsing, filtering and short-segment merging.
func Cut(input string, s Strategy) []string {
	input = strings.Trim(input, "\n")

	switch s {
	case StrategyEvery4:
		return cutEvery4(input)
	case StrategyEveryN:
		return cutEveryN(input, CharBudget)
	case StrategyChinesePeriod:
		return cutOn(input, "。")
	case StrategyEnglishPeriod:
		return cutOn(input, ".")
	case StrategyPunctuation:
		return cutPunctuation(input)
	default:
		if strings.TrimSpace(input) == "" {
			return nil
		}
		return []string{input}
	}
}

// Segment normalizes input and cuts it with s, then collapses blank lines,
// drops empty pieces and merges pieces shorter than MinSegmentRunes forward.
// It fails with an input error when no segment remains.
func Segment(input string, s Strategy) ([]string, error) {
	if !s.Valid() {
		return nil, fault.Input("segment", "unknown strategy %q", string(s))
	}

	norm, err := Normalize(input)
	if err != nil {
		return nil, err
	}

	joined := strings.Join(Cut(norm, s), "\n")
	for strings.Contains(joined, "\n\n") {
		joined = strings.ReplaceAll(joined, "\n\n", "\n")
	}

	var pieces []string
	for _, p := range strings.Split(joined, "\n") {
		if strings.TrimSpace(p) == "" {
			continue
		}
		pieces = append(pieces, p)
	}
	if len(pieces) == 0 {
		return nil, fault.Input("segment", "no text left after %s segmentation", s)
	}

	return mergeShort(pieces, MinSegmentRunes), nil
}

// EnsureTerminator appends a terminator when seg does not already end in one:
// "." for English text, "。" otherwise.
func EnsureTerminator(seg string, english bool) string {
	if seg == "" {
		return seg
	}
	last, _ := utf8.DecodeLastRuneInString(seg)
	if sentenceEnds[last] {
		return seg
	}
	if english {
		return seg + "."
	}
	return seg + "。"
}

// EndsWithTerminator reports whether seg ends in a sentence terminator.
func EndsWithTerminator(seg string) bool {
	last, _ := utf8.DecodeLastRuneInString(seg)
	return sentenceEnds[last]
}

// sentenceUnits splits text after every terminator, keeping the terminator
// attached. A terminator is appended when the text does not end in one.
func sentenceUnits(s string) []string {
	s = strings.ReplaceAll(s, "……", "。")
	s = strings.ReplaceAll(s, "——", "，")
	if s == "" {
		return nil
	}
	s = EnsureTerminator(s, false)

	var units []string
	start := 0
	for i, r := range s {
		if sentenceEnds[r] {
			end := i + utf8.RuneLen(r)
			units = append(units, s[start:end])
			start = end
		}
	}
	return units
}

func cutEvery4(input string) []string {
	units := sentenceUnits(input)
	if len(units) <= 4 {
		return dropPunctuationOnly([]string{input})
	}

	var groups []string
	for i := 0; i < len(units); i += 4 {
		end := min(i+4, len(units))
		groups = append(groups, strings.Join(units[i:end], ""))
	}
	return dropPunctuationOnly(groups)
}

func cutEveryN(input string, n int) []string {
	units := sentenceUnits(input)
	if len(units) < 2 {
		return dropPunctuationOnly([]string{input})
	}

	var (
		groups []string
		cur    strings.Builder
		count  int
	)
	for _, u := range units {
		count += utf8.RuneCountInString(u)
		cur.WriteString(u)
		if count > n {
			groups = append(groups, cur.String())
			cur.Reset()
			count = 0
		}
	}
	if cur.Len() > 0 {
		groups = append(groups, cur.String())
	}

	if last := len(groups) - 1; last > 0 && utf8.RuneCountInString(groups[last]) < n {
		groups[last-1] += groups[last]
		groups = groups[:last]
	}
	return dropPunctuationOnly(groups)
}

func cutOn(input, mark string) []string {
	input = strings.Trim(input, mark)
	return dropPunctuationOnly(strings.Split(input, mark))
}

func cutPunctuation(input string) []string {
	runes := []rune(input)

	var (
		pieces []string
		start  int
	)
	for i, r := range runes {
		if !cutMarks[r] {
			continue
		}
		if r == '.' && i > 0 && i < len(runes)-1 &&
			unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) {
			continue
		}
		pieces = append(pieces, string(runes[start:i+1]))
		start = i + 1
	}
	if start < len(runes) {
		pieces = append(pieces, string(runes[start:]))
	}
	return dropPunctuationOnly(pieces)
}

func dropPunctuationOnly(pieces []string) []string {
	out := pieces[:0]
	for _, p := range pieces {
		if !punctuationOnly(p) {
			out = append(out, p)
		}
	}
	return out
}

// punctuationOnly reports whether s holds nothing but punctuation and spaces.
// The empty string counts as punctuation-only.
func punctuationOnly(s string) bool {
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || sentenceEnds[r] || cutMarks[r] {
			continue
		}
		return false
	}
	return true
}

// mergeShort accumulates pieces until the buffer reaches threshold runes.
// A short remainder is appended to the previous result.
func mergeShort(pieces []string, threshold int) []string {
	if len(pieces) < 2 {
		return pieces
	}

	var (
		out []string
		buf string
	)
	for _, p := range pieces {
		buf += p
		if utf8.RuneCountInString(buf) >= threshold {
			out = append(out, buf)
			buf = ""
		}
	}
	if buf != "" {
		if len(out) == 0 {
			out = append(out, buf)
		} else {
			out[len(out)-1] += buf
		}
	}
	return out
}
