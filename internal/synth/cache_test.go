package synth

import (
	"slices"
	"testing"

	"pgregory.net/rapid"

	"github.com/example/go-trait-tts/internal/lang"
)

func TestSegmentCachePositional(t *testing.T) {
	c := NewSegmentCache(CachePositional)
	segs := []string{"一。", "二。"}
	e := c.Begin(segs, lang.Chinese)

	c.Put(e, c.Key(0, segs[0], lang.Chinese), []int64{1, 2})
	if c.Key(1, "anything", lang.English) != 1 {
		t.Fatal("positional key must be the index")
	}

	if again := c.Begin(segs, lang.Chinese); again != e {
		t.Fatalf("same segmentation moved the epoch: %d -> %d", e, again)
	}
	if got, ok := c.Get(e, 0); !ok || !slices.Equal(got, []int64{1, 2}) {
		t.Fatalf("Get after same segmentation = %v, %v", got, ok)
	}

	e = c.Begin([]string{"一。", "三。"}, lang.Chinese)
	if c.Len() != 0 {
		t.Fatalf("cache kept %d entries after segmentation changed", c.Len())
	}

	c.Put(e, 0, []int64{9})
	c.Begin([]string{"一。", "三。"}, lang.English)
	if c.Len() != 0 {
		t.Fatal("cache kept entries after language changed")
	}
}

func TestSegmentCacheFingerprint(t *testing.T) {
	c := NewSegmentCache(CacheFingerprint)
	k := c.Key(0, "同一句。", lang.Chinese)
	if k != c.Key(5, " 同一句。", lang.Chinese) {
		t.Fatal("fingerprint must not depend on position or surrounding spaces")
	}
	if k == c.Key(0, "同一句。", lang.MixedChinese) {
		t.Fatal("fingerprint must depend on language")
	}

	e := c.Begin([]string{"first"}, lang.English)
	c.Put(e, k, []int64{4})
	e = c.Begin([]string{"other"}, lang.English)
	if _, ok := c.Get(e, k); !ok {
		t.Fatal("fingerprint entries must survive a new segmentation")
	}

	c.Reset()
	if c.Len() != 0 {
		t.Fatal("Reset left entries")
	}
}

func TestSegmentCacheCopies(t *testing.T) {
	c := NewSegmentCache(CachePositional)
	in := []int64{1, 2, 3}
	e := c.Begin([]string{"a"}, lang.English)
	c.Put(e, 0, in)
	in[0] = 99

	got, _ := c.Get(e, 0)
	got[1] = 99
	again, _ := c.Get(e, 0)
	if !slices.Equal(again, []int64{1, 2, 3}) {
		t.Fatalf("cache entry aliased caller slices: %v", again)
	}
}

func TestParseCacheMode(t *testing.T) {
	tests := map[string]struct {
		mode CacheMode
		ok   bool
	}{
		"":            {CachePositional, true},
		"positional":  {CachePositional, true},
		"Fingerprint": {CacheFingerprint, true},
		"lru":         {CachePositional, false},
	}
	for in, want := range tests {
		mode, ok := ParseCacheMode(in)
		if mode != want.mode || ok != want.ok {
			t.Errorf("ParseCacheMode(%q) = %v, %v", in, mode, ok)
		}
	}
}

func TestSegmentCacheSignatureProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		segs := rapid.SliceOfN(rapid.StringN(1, 8, -1), 1, 6).Draw(t, "segments")
		c := NewSegmentCache(CachePositional)
		e := c.Begin(segs, lang.Chinese)
		for i := range segs {
			c.Put(e, uint64(i), []int64{int64(i)})
		}

		c.Begin(slices.Clone(segs), lang.Chinese)
		if c.Len() != len(segs) {
			t.Fatalf("identical segmentation dropped entries: %d of %d", c.Len(), len(segs))
		}

		changed := slices.Clone(segs)
		changed[len(changed)-1] += "x"
		c.Begin(changed, lang.Chinese)
		if c.Len() != 0 {
			t.Fatal("changed segmentation kept entries")
		}
	})
}

func TestSegmentCacheStaleEpoch(t *testing.T) {
	c := NewSegmentCache(CachePositional)
	first := c.Begin([]string{"甲。"}, lang.Chinese)
	second := c.Begin([]string{"乙。"}, lang.Chinese)
	if first == second {
		t.Fatal("new segmentation must start a new epoch")
	}

	if c.Put(first, 0, []int64{7}) {
		t.Fatal("write from a superseded call was stored")
	}
	if _, ok := c.Get(second, 0); ok {
		t.Fatal("current call read a superseded write")
	}

	c.Put(second, 0, []int64{8})
	if _, ok := c.Get(first, 0); ok {
		t.Fatal("superseded call read the current segmentation's tokens")
	}

	c.Reset()
	if c.Put(second, 0, []int64{9}) {
		t.Fatal("write survived Reset")
	}
}
