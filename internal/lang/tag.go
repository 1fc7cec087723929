// Package lang maps text and a declared language tag to a PhoneticUnit.
package lang

import "strings"

// Lang is a single spoken language understood by the phonemizers.
type Lang string

const (
	ZH  Lang = "zh"
	EN  Lang = "en"
	JA  Lang = "ja"
	KO  Lang = "ko"
	YUE Lang = "yue"
)

// Tag is the language declared for a text unit. Single-language tags route the
// whole unit through one phonemizer; mixed tags split it with a tagger first.
type Tag string

const (
	Chinese            Tag = "all_zh"
	English            Tag = "en"
	Japanese           Tag = "all_ja"
	Korean             Tag = "all_ko"
	Cantonese          Tag = "all_yue"
	MixedChinese       Tag = "zh"
	MixedJapanese      Tag = "ja"
	MixedKorean        Tag = "ko"
	MixedCantonese     Tag = "yue"
	MixedAuto          Tag = "auto"
	MixedAutoCantonese Tag = "auto_yue"
	Unknown            Tag = "unknown"
)

var tagAliases = map[string]Tag{
	"all_zh":               Chinese,
	"chinese":              Chinese,
	"中文":                   Chinese,
	"en":                   English,
	"english":              English,
	"英文":                   English,
	"all_ja":               Japanese,
	"japanese":             Japanese,
	"日文":                   Japanese,
	"all_ko":               Korean,
	"korean":               Korean,
	"韩文":                   Korean,
	"all_yue":              Cantonese,
	"cantonese":            Cantonese,
	"粤语":                   Cantonese,
	"zh":                   MixedChinese,
	"mixed-chinese":        MixedChinese,
	"中英混合":                 MixedChinese,
	"ja":                   MixedJapanese,
	"mixed-japanese":       MixedJapanese,
	"日英混合":                 MixedJapanese,
	"ko":                   MixedKorean,
	"mixed-korean":         MixedKorean,
	"韩英混合":                 MixedKorean,
	"yue":                  MixedCantonese,
	"mixed-cantonese":      MixedCantonese,
	"粤英混合":                 MixedCantonese,
	"auto":                 MixedAuto,
	"mixed-auto":           MixedAuto,
	"多语种混合":                MixedAuto,
	"auto_yue":             MixedAutoCantonese,
	"mixed-auto-cantonese": MixedAutoCantonese,
	"多语种混合(粤语)":            MixedAutoCantonese,
}

// ParseTag canonicalizes a language name, code or UI label. Anything it does
// not recognize maps to Unknown.
func ParseTag(name string) Tag {
	key := strings.ToLower(strings.TrimSpace(name))
	if t, ok := tagAliases[key]; ok {
		return t
	}
	return Unknown
}

// Tags lists every valid tag.
func Tags() []Tag {
	return []Tag{
		Chinese, English, Japanese, Korean, Cantonese,
		MixedChinese, MixedJapanese, MixedKorean, MixedCantonese,
		MixedAuto, MixedAutoCantonese,
	}
}

func (t Tag) Valid() bool {
	switch t {
	case Chinese, English, Japanese, Korean, Cantonese,
		MixedChinese, MixedJapanese, MixedKorean, MixedCantonese,
		MixedAuto, MixedAutoCantonese:
		return true
	}
	return false
}

// Mixed reports whether the tag splits text into language spans.
func (t Tag) Mixed() bool {
	switch t {
	case MixedChinese, MixedJapanese, MixedKorean, MixedCantonese, MixedAuto, MixedAutoCantonese:
		return true
	}
	return false
}

// Base returns the language non-English spans are assigned to. Auto tags
// return the empty Lang.
func (t Tag) Base() Lang {
	switch t {
	case Chinese, MixedChinese:
		return ZH
	case English:
		return EN
	case Japanese, MixedJapanese:
		return JA
	case Korean, MixedKorean:
		return KO
	case Cantonese, MixedCantonese:
		return YUE
	}
	return ""
}

// RequiresFeatures reports whether text under this tag can produce real
// linguistic features, so a precomputed unit for it must carry them.
func (t Tag) RequiresFeatures() bool {
	switch t {
	case Chinese, Cantonese:
		return true
	}
	return t.Mixed()
}

// IsEnglish reports whether segments under this tag end with ".".
func (t Tag) IsEnglish() bool {
	return t == English
}

func (t Tag) mixedCounterpart() Tag {
	if t == Cantonese {
		return MixedCantonese
	}
	return MixedChinese
}

func (t Tag) String() string {
	return string(t)
}
