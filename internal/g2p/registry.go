package g2p

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/go-trait-tts/internal/lang"
)

// Registry dispatches to the phonemizer registered for each language.
type Registry struct {
	mu     sync.RWMutex
	byLang map[lang.Lang]lang.Phonemizer
}

// NewRegistry returns a registry with the built-in Chinese and English
// phonemizers. Other languages must be registered explicitly.
func NewRegistry() *Registry {
	r := &Registry{byLang: make(map[lang.Lang]lang.Phonemizer)}
	r.Register(lang.ZH, NewChinese(DefaultSymbols))
	r.Register(lang.EN, NewEnglish(DefaultSymbols))
	return r
}

func (r *Registry) Register(l lang.Lang, p lang.Phonemizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLang[l] = p
}

// Languages reports which languages have a phonemizer.
func (r *Registry) Languages() []lang.Lang {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]lang.Lang, 0, len(r.byLang))
	for _, l := range []lang.Lang{lang.ZH, lang.EN, lang.JA, lang.KO, lang.YUE} {
		if _, ok := r.byLang[l]; ok {
			out = append(out, l)
		}
	}
	return out
}

func (r *Registry) Phonemize(ctx context.Context, text string, l lang.Lang) (lang.Phonemes, error) {
	r.mu.RLock()
	p, ok := r.byLang[l]
	r.mu.RUnlock()
	if !ok {
		return lang.Phonemes{}, fmt.Errorf("no phonemizer registered for %q", l)
	}
	return p.Phonemize(ctx, text, l)
}
