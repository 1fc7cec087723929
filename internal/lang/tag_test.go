package lang

import (
	"context"
	"slices"
	"testing"
)

func TestParseTag(t *testing.T) {
	tests := map[string]Tag{
		"all_zh":               Chinese,
		"Chinese":              Chinese,
		"英文":                   English,
		"粤英混合":                 MixedCantonese,
		"多语种混合(粤语)":            MixedAutoCantonese,
		"mixed-auto":           MixedAuto,
		" ko ":                 MixedKorean,
		"elvish":               Unknown,
		"":                     Unknown,
	}
	for in, want := range tests {
		if got := ParseTag(in); got != want {
			t.Errorf("ParseTag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTagProperties(t *testing.T) {
	tests := []struct {
		tag      Tag
		mixed    bool
		features bool
		base     Lang
	}{
		{Chinese, false, true, ZH},
		{English, false, false, EN},
		{Japanese, false, false, JA},
		{Cantonese, false, true, YUE},
		{MixedKorean, true, true, KO},
		{MixedAuto, true, true, ""},
		{Unknown, false, false, ""},
	}
	for _, tc := range tests {
		if tc.tag.Mixed() != tc.mixed || tc.tag.RequiresFeatures() != tc.features || tc.tag.Base() != tc.base {
			t.Errorf("%s: mixed=%v features=%v base=%q", tc.tag, tc.tag.Mixed(), tc.tag.RequiresFeatures(), tc.tag.Base())
		}
	}
	if Unknown.Valid() {
		t.Error("Unknown must not be valid")
	}
}

func TestScriptTagger(t *testing.T) {
	spans, err := ScriptTagger{}.Tag(context.Background(), "Hi, 你好! 한국")
	if err != nil {
		t.Fatal(err)
	}
	want := []Span{{EN, "Hi, "}, {ZH, "你好! "}, {KO, "한국"}}
	if !slices.Equal(spans, want) {
		t.Fatalf("spans = %+v, want %+v", spans, want)
	}

	spans, _ = ScriptTagger{}.Tag(context.Background(), "東京へ")
	if len(spans) != 1 || spans[0].Lang != JA {
		t.Fatalf("kana after han should be japanese: %+v", spans)
	}

	spans, _ = ScriptTagger{}.Tag(context.Background(), "123")
	if len(spans) != 1 || spans[0].Lang != EN {
		t.Fatalf("script-less text should default to english: %+v", spans)
	}
}

func TestWidthNormalizer(t *testing.T) {
	if got := (WidthNormalizer{}).NormalizeMixed("ＡＢｃ１２，。"); got != "ABc12，。" {
		t.Fatalf("NormalizeMixed = %q", got)
	}
}

func TestConcatFeatures(t *testing.T) {
	a := Features{Dim: 2, Width: 1, Data: []float32{1, 2}}
	b := Features{Dim: 2, Width: 2, Data: []float32{3, 4, 5, 6}}
	got, err := ConcatFeatures(a, b)
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{1, 3, 4, 2, 5, 6}
	if got.Width != 3 || !slices.Equal(got.Data, want) {
		t.Fatalf("ConcatFeatures = %+v", got)
	}

	if _, err := ConcatFeatures(a, Features{Dim: 3, Width: 1, Data: []float32{0, 0, 0}}); err == nil {
		t.Fatal("expected dim mismatch error")
	}
}
