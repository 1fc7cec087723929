package lang

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// ScriptTagger splits text into spans by Unicode script: Han is Chinese, kana
// is Japanese, Hangul is Korean and Latin letters are English. Digits,
// punctuation and spaces stay with the span they follow; a leading run of
// them joins the first span.
type ScriptTagger struct{}

func (ScriptTagger) Tag(_ context.Context, text string) ([]Span, error) {
	var (
		spans   []Span
		cur     strings.Builder
		curLang Lang
	)

	flush := func() {
		if cur.Len() > 0 {
			spans = append(spans, Span{Lang: curLang, Text: cur.String()})
			cur.Reset()
		}
	}

	for _, r := range text {
		l, ok := scriptLang(r)
		if !ok {
			cur.WriteRune(r)
			continue
		}
		if curLang == "" {
			curLang = l
		}
		if l != curLang {
			// Kana after Han (or Han after kana) is Japanese text.
			if (l == JA && curLang == ZH) || (l == ZH && curLang == JA) {
				curLang = JA
			} else {
				flush()
				curLang = l
			}
		}
		cur.WriteRune(r)
	}

	if curLang == "" {
		curLang = EN
	}
	flush()

	return spans, nil
}

func scriptLang(r rune) (Lang, bool) {
	switch {
	case unicode.Is(unicode.Hiragana, r), unicode.Is(unicode.Katakana, r):
		return JA, true
	case unicode.Is(unicode.Hangul, r):
		return KO, true
	case unicode.Is(unicode.Han, r):
		return ZH, true
	case isLatinLetter(r):
		return EN, true
	}
	return "", false
}

// WidthNormalizer folds full-width Latin letters and digits to ASCII, leaving
// CJK punctuation untouched.
type WidthNormalizer struct{}

func (WidthNormalizer) NormalizeMixed(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if isFullwidthAlnum(r) {
			b.WriteString(width.Narrow.String(string(r)))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isFullwidthAlnum(r rune) bool {
	return (r >= '０' && r <= '９') || (r >= 'Ａ' && r <= 'Ｚ') || (r >= 'ａ' && r <= 'ｚ')
}
