package g2p

import (
	"context"
	"strings"
	"unicode"

	"github.com/example/go-trait-tts/internal/lang"
	"github.com/mozillazg/go-pinyin"
)

// punctFold maps CJK punctuation to the ASCII symbol it is spoken as.
var punctFold = map[rune]string{
	'，': ",", '、': ",", '；': ",", '：': ",", ';': ",", ':': ",", ',': ",",
	'。': ".", '.': ".",
	'！': "!", '!': "!",
	'？': "?", '?': "?",
	'…': "…",
	'—': "-", '-': "-", '~': "-", '～': "-",
}

// Chinese phonemizes Mandarin text into initial/final pairs using pinyin.
// Each Han character yields two phonemes and each punctuation mark one;
// everything else is dropped from the normalized text.
type Chinese struct {
	symbols *SymbolTable
	initial pinyin.Args
	final   pinyin.Args
}

func NewChinese(symbols *SymbolTable) *Chinese {
	if symbols == nil {
		symbols = DefaultSymbols
	}

	initial := pinyin.NewArgs()
	initial.Style = pinyin.Initials

	final := pinyin.NewArgs()
	final.Style = pinyin.FinalsTone3

	return &Chinese{symbols: symbols, initial: initial, final: final}
}

func (c *Chinese) Phonemize(_ context.Context, text string, _ lang.Lang) (lang.Phonemes, error) {
	var (
		out  lang.Phonemes
		norm strings.Builder
	)

	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			ini, fin, ok := c.syllable(r)
			if !ok {
				continue
			}
			out.IDs = append(out.IDs, c.symbols.ID(ini), c.symbols.ID(fin))
			out.Word2Ph = append(out.Word2Ph, 2)
			norm.WriteRune(r)
			continue
		}
		if p, ok := punctFold[r]; ok {
			out.IDs = append(out.IDs, c.symbols.ID(p))
			out.Word2Ph = append(out.Word2Ph, 1)
			norm.WriteString(p)
		}
	}

	out.NormText = norm.String()
	return out, nil
}

func (c *Chinese) syllable(r rune) (string, string, bool) {
	finals := pinyin.Pinyin(string(r), c.final)
	if len(finals) == 0 || len(finals[0]) == 0 {
		return "", "", false
	}
	fin := finals[0][0]
	if last := fin[len(fin)-1]; last < '1' || last > '5' {
		fin += "5"
	}

	ini := ""
	if initials := pinyin.Pinyin(string(r), c.initial); len(initials) > 0 && len(initials[0]) > 0 {
		ini = initials[0][0]
	}
	if ini == "" {
		ini = zeroInitial(fin)
	}
	return ini, fin, true
}

// zeroInitial picks the placeholder initial for syllables without one, so
// every character still yields exactly two phonemes.
func zeroInitial(final string) string {
	switch final[0] {
	case 'e':
		return "EE"
	case 'o':
		return "OO"
	default:
		return "AA"
	}
}
