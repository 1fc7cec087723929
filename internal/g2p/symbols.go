// Package g2p provides the built-in grapheme-to-phoneme converters and the
// symbol table that maps phoneme symbols to ids.
package g2p

import "fmt"

const (
	symPad     = "_"
	symUnknown = "UNK"
)

var punctSymbols = []string{",", ".", "!", "?", "…", "-", "'"}

var initials = []string{
	"AA", "EE", "OO",
	"b", "p", "m", "f", "d", "t", "n", "l", "g", "k", "h",
	"j", "q", "x", "zh", "ch", "sh", "r", "z", "c", "s", "y", "w",
}

var finals = []string{
	"a", "ai", "an", "ang", "ao", "e", "ei", "en", "eng", "er",
	"i", "ia", "ian", "iang", "iao", "ie", "in", "ing", "iong", "iu",
	"o", "ong", "ou", "u", "ua", "uai", "uan", "uang", "ui", "un", "uo",
	"v", "van", "ve", "vn", "ü", "üan", "üe", "ün", "ir", "i0",
}

// SymbolTable assigns a stable id to every phoneme symbol.
type SymbolTable struct {
	ids     map[string]int64
	symbols []string
}

// DefaultSymbols is the table used by the built-in phonemizers.
var DefaultSymbols = newSymbolTable()

func newSymbolTable() *SymbolTable {
	var all []string
	all = append(all, symPad, symUnknown)
	all = append(all, punctSymbols...)
	all = append(all, initials...)
	for _, f := range finals {
		for tone := 1; tone <= 5; tone++ {
			all = append(all, fmt.Sprintf("%s%d", f, tone))
		}
	}
	for c := 'a'; c <= 'z'; c++ {
		all = append(all, "en_"+string(c))
	}

	t := &SymbolTable{ids: make(map[string]int64, len(all)), symbols: all}
	for i, s := range all {
		t.ids[s] = int64(i)
	}
	return t
}

// ID returns the id of sym, or the unknown-symbol id.
func (t *SymbolTable) ID(sym string) int64 {
	if id, ok := t.ids[sym]; ok {
		return id
	}
	return t.ids[symUnknown]
}

// Symbol returns the symbol for id, or "" when out of range.
func (t *SymbolTable) Symbol(id int64) string {
	if id < 0 || int(id) >= len(t.symbols) {
		return ""
	}
	return t.symbols[id]
}

// Len returns the number of symbols.
func (t *SymbolTable) Len() int {
	return len(t.symbols)
}
