package g2p

import (
	"context"
	"strings"
	"unicode"

	"github.com/example/go-trait-tts/internal/lang"
)

// English is a grapheme-level phonemizer: one symbol per Latin letter and per
// punctuation mark. Spaces are kept in the normalized text with no phonemes.
type English struct {
	symbols *SymbolTable
}

func NewEnglish(symbols *SymbolTable) *English {
	if symbols == nil {
		symbols = DefaultSymbols
	}
	return &English{symbols: symbols}
}

func (e *English) Phonemize(_ context.Context, text string, _ lang.Lang) (lang.Phonemes, error) {
	var (
		out  lang.Phonemes
		norm strings.Builder
	)

	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z':
			out.IDs = append(out.IDs, e.symbols.ID("en_"+string(r)))
			out.Word2Ph = append(out.Word2Ph, 1)
			norm.WriteRune(r)
		case unicode.IsSpace(r):
			if norm.Len() > 0 && !strings.HasSuffix(norm.String(), " ") {
				out.Word2Ph = append(out.Word2Ph, 0)
				norm.WriteByte(' ')
			}
		default:
			if p, ok := punctFold[r]; ok {
				out.IDs = append(out.IDs, e.symbols.ID(p))
				out.Word2Ph = append(out.Word2Ph, 1)
				norm.WriteString(p)
			}
		}
	}

	out.NormText = norm.String()
	return out, nil
}
