package lang

import (
	"github.com/example/go-trait-tts/internal/fault"
)

// FeatureDim is the width of one linguistic feature vector.
const FeatureDim = 1024

// Features is a Dim×Width matrix stored row-major: row d holds feature d for
// every phoneme position.
type Features struct {
	Dim   int
	Width int
	Data  []float32
}

// ZeroFeatures returns the placeholder matrix used for languages without a
// feature model.
func ZeroFeatures(dim, width int) Features {
	return Features{Dim: dim, Width: width, Data: make([]float32, dim*width)}
}

// At returns feature d at phoneme position w.
func (f Features) At(d, w int) float32 {
	return f.Data[d*f.Width+w]
}

// IsZero reports whether every element is zero.
func (f Features) IsZero() bool {
	for _, v := range f.Data {
		if v != 0 {
			return false
		}
	}
	return true
}

// Shape returns the tensor shape [Dim, Width].
func (f Features) Shape() []int64 {
	return []int64{int64(f.Dim), int64(f.Width)}
}

// ConcatFeatures joins matrices along the width axis. All parts must share
// the same Dim; zero-width parts are allowed.
func ConcatFeatures(parts ...Features) (Features, error) {
	if len(parts) == 0 {
		return Features{}, nil
	}

	dim := parts[0].Dim
	width := 0
	for _, p := range parts {
		if p.Dim != dim {
			return Features{}, fault.Consistency("concat features", "feature dim %d != %d", p.Dim, dim)
		}
		if len(p.Data) != p.Dim*p.Width {
			return Features{}, fault.Consistency("concat features", "data length %d != %dx%d", len(p.Data), p.Dim, p.Width)
		}
		width += p.Width
	}

	out := Features{Dim: dim, Width: width, Data: make([]float32, dim*width)}
	col := 0
	for _, p := range parts {
		for d := 0; d < dim; d++ {
			copy(out.Data[d*width+col:], p.Data[d*p.Width:(d+1)*p.Width])
		}
		col += p.Width
	}
	return out, nil
}

// PhoneticUnit is a phoneme-id sequence with its aligned feature matrix and
// the normalized text both were derived from.
type PhoneticUnit struct {
	PhonemeIDs []int64
	Features   Features
	NormText   string
}

// Validate checks that the feature width matches the phoneme count.
func (u PhoneticUnit) Validate() error {
	if u.Features.Width != len(u.PhonemeIDs) {
		return fault.Consistency("phonetic unit", "feature width %d != phoneme count %d", u.Features.Width, len(u.PhonemeIDs))
	}
	if len(u.Features.Data) != u.Features.Dim*u.Features.Width {
		return fault.Consistency("phonetic unit", "feature data length %d != %dx%d", len(u.Features.Data), u.Features.Dim, u.Features.Width)
	}
	return nil
}

// Concat appends b after a: phonemes, features and normalized text.
func Concat(a, b PhoneticUnit) (PhoneticUnit, error) {
	if err := a.Validate(); err != nil {
		return PhoneticUnit{}, err
	}
	if err := b.Validate(); err != nil {
		return PhoneticUnit{}, err
	}
	feats, err := ConcatFeatures(a.Features, b.Features)
	if err != nil {
		return PhoneticUnit{}, err
	}

	ids := make([]int64, 0, len(a.PhonemeIDs)+len(b.PhonemeIDs))
	ids = append(ids, a.PhonemeIDs...)
	ids = append(ids, b.PhonemeIDs...)

	return PhoneticUnit{PhonemeIDs: ids, Features: feats, NormText: a.NormText + b.NormText}, nil
}
