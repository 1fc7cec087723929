package lang

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/example/go-trait-tts/internal/fault"
)

// MinPhonemes is the shortest phoneme sequence the router hands downstream
// without retrying.
const MinPhonemes = 6

// maxShortRetries bounds the "." prefix retry.
const maxShortRetries = 1

// Phonemes is a phonemizer result. Word2Ph holds, per rune of NormText, how
// many phoneme ids that rune produced.
type Phonemes struct {
	IDs      []int64
	Word2Ph  []int
	NormText string
}

// Phonemizer converts text in one language to phoneme ids.
type Phonemizer interface {
	Phonemize(ctx context.Context, text string, l Lang) (Phonemes, error)
}

// FeatureExtractor returns one feature vector per rune of normText.
type FeatureExtractor interface {
	Extract(ctx context.Context, normText string, word2ph []int) ([][]float32, error)
}

// Span is a run of text in a single language.
type Span struct {
	Lang Lang
	Text string
}

// Tagger splits text into ordered same-language spans.
type Tagger interface {
	Tag(ctx context.Context, text string) ([]Span, error)
}

// MixedNormalizer rewrites Chinese or Cantonese text containing Latin letters
// before it is routed as mixed text.
type MixedNormalizer interface {
	NormalizeMixed(text string) string
}

// Router resolves text plus a declared tag into a PhoneticUnit.
type Router struct {
	phonemizer Phonemizer
	features   FeatureExtractor
	tagger     Tagger
	normalizer MixedNormalizer
	dim        int
	log        *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithFeatureDim overrides FeatureDim.
func WithFeatureDim(dim int) RouterOption {
	return func(r *Router) { r.dim = dim }
}

// WithTagger replaces the built-in ScriptTagger.
func WithTagger(t Tagger) RouterOption {
	return func(r *Router) { r.tagger = t }
}

// WithMixedNormalizer replaces WidthNormalizer.
func WithMixedNormalizer(n MixedNormalizer) RouterOption {
	return func(r *Router) { r.normalizer = n }
}

// WithRouterLogger sets the logger used for retry diagnostics.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.log = l }
}

func NewRouter(p Phonemizer, f FeatureExtractor, opts ...RouterOption) *Router {
	r := &Router{
		phonemizer: p,
		features:   f,
		tagger:     ScriptTagger{},
		normalizer: WidthNormalizer{},
		dim:        FeatureDim,
		log:        slog.Default(),
	}
	for _, fn := range opts {
		fn(r)
	}
	return r
}

// FeatureDim returns the feature width produced by this router.
func (r *Router) FeatureDim() int {
	return r.dim
}

// Route produces the PhoneticUnit for text under tag. A result shorter than
// MinPhonemes is retried once with "." prefixed to the text.
func (r *Router) Route(ctx context.Context, text string, tag Tag) (PhoneticUnit, error) {
	if !tag.Valid() {
		return PhoneticUnit{}, fault.Input("route", "unknown language tag %q", string(tag))
	}

	attempt := text
	for retries := 0; ; retries++ {
		unit, err := r.resolve(ctx, attempt, tag)
		if err != nil {
			return PhoneticUnit{}, err
		}
		if len(unit.PhonemeIDs) >= MinPhonemes || retries == maxShortRetries {
			if err := unit.Validate(); err != nil {
				return PhoneticUnit{}, err
			}
			return unit, nil
		}

		r.log.DebugContext(ctx, "short phoneme sequence, retrying with prefix",
			slog.String("tag", string(tag)),
			slog.Int("phonemes", len(unit.PhonemeIDs)),
		)
		attempt = "." + text
	}
}

func (r *Router) resolve(ctx context.Context, text string, tag Tag) (PhoneticUnit, error) {
	text = collapseSpaces(text)

	if tag.Mixed() {
		return r.resolveMixed(ctx, text, tag)
	}

	switch tag {
	case Chinese, Cantonese:
		if containsLatin(text) {
			hopped := upperLatin(r.normalizer.NormalizeMixed(text))
			return r.resolveMixed(ctx, hopped, tag.mixedCounterpart())
		}
		return r.resolveSpan(ctx, text, tag.Base(), true)
	case English:
		spans, err := r.tagger.Tag(ctx, text)
		if err != nil {
			return PhoneticUnit{}, fault.Capability("tag languages", err)
		}
		var english []string
		for _, sp := range spans {
			if sp.Lang == EN {
				english = append(english, sp.Text)
			}
		}
		if len(english) > 0 {
			text = collapseSpaces(strings.Join(english, " "))
		}
		return r.resolveSpan(ctx, text, EN, false)
	default:
		return r.resolveSpan(ctx, text, tag.Base(), false)
	}
}

func (r *Router) resolveMixed(ctx context.Context, text string, tag Tag) (PhoneticUnit, error) {
	spans, err := r.tagger.Tag(ctx, text)
	if err != nil {
		return PhoneticUnit{}, fault.Capability("tag languages", err)
	}
	spans = assignSpanLangs(spans, tag)
	if len(spans) == 0 {
		return PhoneticUnit{}, fault.Input("route", "no language spans found in %q", text)
	}

	ids := make([]int64, 0, len(text))
	feats := make([]Features, 0, len(spans))
	var norm strings.Builder

	for _, sp := range spans {
		unit, err := r.resolveSpan(ctx, sp.Text, sp.Lang, sp.Lang != EN)
		if err != nil {
			return PhoneticUnit{}, err
		}
		ids = append(ids, unit.PhonemeIDs...)
		feats = append(feats, unit.Features)
		norm.WriteString(unit.NormText)
	}

	joined, err := ConcatFeatures(feats...)
	if err != nil {
		return PhoneticUnit{}, err
	}
	return PhoneticUnit{PhonemeIDs: ids, Features: joined, NormText: norm.String()}, nil
}

// assignSpanLangs applies the tag's language policy to tagger output. Explicit
// mixed tags keep English spans, assign their own language to the rest and
// merge neighbors that end up in the same language.
func assignSpanLangs(spans []Span, tag Tag) []Span {
	out := make([]Span, 0, len(spans))
	for _, sp := range spans {
		if sp.Text == "" {
			continue
		}
		switch tag {
		case MixedAuto:
		case MixedAutoCantonese:
			if sp.Lang == ZH {
				sp.Lang = YUE
			}
		default:
			if sp.Lang != EN {
				sp.Lang = tag.Base()
			}
			if n := len(out); n > 0 && out[n-1].Lang == sp.Lang {
				out[n-1].Text += sp.Text
				continue
			}
		}
		out = append(out, sp)
	}
	return out
}

func (r *Router) resolveSpan(ctx context.Context, text string, l Lang, real bool) (PhoneticUnit, error) {
	ph, err := r.phonemizer.Phonemize(ctx, text, l)
	if err != nil {
		return PhoneticUnit{}, fault.Capability("phonemize "+string(l), err)
	}

	if !real {
		return PhoneticUnit{
			PhonemeIDs: ph.IDs,
			Features:   ZeroFeatures(r.dim, len(ph.IDs)),
			NormText:   ph.NormText,
		}, nil
	}

	feats, err := r.expand(ctx, ph)
	if err != nil {
		return PhoneticUnit{}, err
	}
	return PhoneticUnit{PhonemeIDs: ph.IDs, Features: feats, NormText: ph.NormText}, nil
}

// expand repeats each per-rune feature vector across the phonemes that rune
// produced.
func (r *Router) expand(ctx context.Context, ph Phonemes) (Features, error) {
	if n := utf8.RuneCountInString(ph.NormText); len(ph.Word2Ph) != n {
		return Features{}, fault.Consistency("expand features", "word2ph has %d entries for %d runes", len(ph.Word2Ph), n)
	}

	total := 0
	for _, c := range ph.Word2Ph {
		total += c
	}
	if total != len(ph.IDs) {
		return Features{}, fault.Consistency("expand features", "word2ph covers %d phonemes, got %d", total, len(ph.IDs))
	}

	vecs, err := r.features.Extract(ctx, ph.NormText, ph.Word2Ph)
	if err != nil {
		return Features{}, fault.Capability("extract features", err)
	}
	if len(vecs) != len(ph.Word2Ph) {
		return Features{}, fault.Consistency("expand features", "extractor returned %d vectors for %d runes", len(vecs), len(ph.Word2Ph))
	}

	out := ZeroFeatures(r.dim, total)
	col := 0
	for i, vec := range vecs {
		if len(vec) != r.dim {
			return Features{}, fault.Consistency("expand features", "vector %d has dim %d, want %d", i, len(vec), r.dim)
		}
		for k := 0; k < ph.Word2Ph[i]; k++ {
			for d, v := range vec {
				out.Data[d*total+col] = v
			}
			col++
		}
	}
	return out, nil
}

func collapseSpaces(s string) string {
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return s
}

func containsLatin(s string) bool {
	for _, r := range s {
		if isLatinLetter(r) {
			return true
		}
	}
	return false
}

func upperLatin(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return unicode.ToUpper(r)
		}
		return r
	}, s)
}

func isLatinLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= 'ａ' && r <= 'ｚ') || (r >= 'Ａ' && r <= 'Ｚ')
}
