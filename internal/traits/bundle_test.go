package traits

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/example/go-trait-tts/internal/fault"
	"github.com/example/go-trait-tts/internal/lang"
	"github.com/example/go-trait-tts/internal/safetensors"
	"github.com/example/go-trait-tts/internal/tensor"
)

func testSlot(t *testing.T, n int, seed float32) Slot {
	t.Helper()
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	feats := lang.ZeroFeatures(4, n)
	for i := range feats.Data {
		feats.Data[i] = seed
	}
	emb, err := tensor.New([]float32{seed, seed * 2, seed * 3}, []int64{1, 3, 1})
	if err != nil {
		t.Fatal(err)
	}
	return Slot{Phonemes: ids, Features: &feats, Prompt: []int64{7, 8, 9}, Embedding: emb}
}

func TestSlotPrefix(t *testing.T) {
	if got := SlotPrefix("happy", 3); got != "happy.3." {
		t.Fatalf("SlotPrefix = %q", got)
	}

	trait, index, field, ok := splitKey("canterlot.voice.12.phones1")
	if !ok || trait != "canterlot.voice" || index != 12 || field != FieldPhonemes {
		t.Fatalf("splitKey = %q %d %q %v", trait, index, field, ok)
	}
	for _, bad := range []string{"phones1", "happy.x.phones1", ".0.ge", "happy.-1.ge"} {
		if _, _, _, ok := splitKey(bad); ok {
			t.Errorf("splitKey(%q) accepted", bad)
		}
	}
}

func TestBundleRoundtrip(t *testing.T) {
	b := NewBuilder(lang.Chinese)
	for i := range 3 {
		idx, err := b.Add("happy", testSlot(t, 6, float32(i+1)))
		if err != nil {
			t.Fatal(err)
		}
		if idx != i {
			t.Fatalf("index = %d, want %d", idx, i)
		}
	}
	if _, err := b.Add("sad", testSlot(t, 2, 9)); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "twilight.safetensors")
	if err := b.WriteFile(path); err != nil {
		t.Fatal(err)
	}

	bundle, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer bundle.Close()

	if !slices.Equal(bundle.Traits(), []string{"happy", "sad"}) {
		t.Fatalf("traits = %v", bundle.Traits())
	}
	if bundle.Count("happy") != 3 || bundle.Count("sad") != 1 || bundle.Count("angry") != 0 {
		t.Fatalf("counts = %d %d %d", bundle.Count("happy"), bundle.Count("sad"), bundle.Count("angry"))
	}
	if bundle.Language() != lang.Chinese {
		t.Fatalf("language = %q", bundle.Language())
	}

	slot, err := bundle.Lookup("happy", 1)
	if err != nil {
		t.Fatal(err)
	}
	want := testSlot(t, 6, 2)
	if !slices.Equal(slot.Phonemes, want.Phonemes) || !slices.Equal(slot.Prompt, want.Prompt) {
		t.Fatalf("slot ids = %v prompt = %v", slot.Phonemes, slot.Prompt)
	}
	if !slices.Equal(slot.Embedding.RawData(), want.Embedding.RawData()) || !slot.Embedding.SameShape(want.Embedding) {
		t.Fatalf("embedding = %v %v", slot.Embedding.RawData(), slot.Embedding.Shape())
	}
	if slot.Features == nil || slot.Features.Dim != 4 || slot.Features.Width != 6 || slot.Features.Data[0] != 2 {
		t.Fatalf("features = %+v", slot.Features)
	}

	_, err = bundle.Lookup("happy", 3)
	if !errors.Is(err, fault.ErrInput) {
		t.Fatalf("missing slot err = %v", err)
	}
}

func TestBuilderOmitsFeaturesForPlaceholderLanguages(t *testing.T) {
	b := NewBuilder(lang.English)
	if _, err := b.Add("neutral", testSlot(t, 5, 1)); err != nil {
		t.Fatal(err)
	}
	data, err := b.Encode()
	if err != nil {
		t.Fatal(err)
	}

	bundle, err := OpenBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	slot, err := bundle.Lookup("neutral", 0)
	if err != nil {
		t.Fatal(err)
	}
	if slot.Features != nil {
		t.Fatal("english bundle must not store features")
	}

	unit, err := slot.Unit(lang.FeatureDim)
	if err != nil {
		t.Fatal(err)
	}
	if unit.Features.Width != 5 || unit.Features.Dim != lang.FeatureDim || !unit.Features.IsZero() {
		t.Fatalf("placeholder = %dx%d", unit.Features.Dim, unit.Features.Width)
	}
}

func TestBuilderRejectsInvalidSlots(t *testing.T) {
	b := NewBuilder(lang.English)
	good := testSlot(t, 3, 1)

	tests := []struct {
		name  string
		trait string
		slot  Slot
		kind  error
	}{
		{name: "empty trait", trait: " ", slot: good, kind: fault.ErrInput},
		{name: "no phonemes", trait: "x", slot: Slot{Embedding: good.Embedding}, kind: fault.ErrInput},
		{name: "no embedding", trait: "x", slot: Slot{Phonemes: good.Phonemes}, kind: fault.ErrInput},
		{name: "feature width", trait: "x", slot: Slot{Phonemes: []int64{1}, Features: good.Features, Embedding: good.Embedding}, kind: fault.ErrConsistency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := b.Add(tt.trait, tt.slot); !errors.Is(err, tt.kind) {
				t.Fatalf("err = %v, want %v", err, tt.kind)
			}
		})
	}

	if _, err := b.Encode(); !errors.Is(err, fault.ErrInput) {
		t.Fatalf("empty builder encode err = %v", err)
	}
}

func TestOpenRejectsSlotWithoutEmbedding(t *testing.T) {
	data, err := safetensors.EncodeTensors([]safetensors.Tensor{
		safetensors.IntTensor("happy.0.phones1", []int64{2}, []int64{1, 2}),
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := OpenBytes(data); !errors.Is(err, fault.ErrConsistency) {
		t.Fatalf("err = %v, want consistency error", err)
	}
}

func TestLibrary(t *testing.T) {
	lib := Library{Dir: t.TempDir()}
	for _, name := range []string{"rarity", "applejack"} {
		b := NewBuilder(lang.English)
		if _, err := b.Add("happy", testSlot(t, 3, 1)); err != nil {
			t.Fatal(err)
		}
		if err := b.WriteFile(lib.Path(name)); err != nil {
			t.Fatal(err)
		}
	}

	chars, err := lib.Characters()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(chars, []string{"applejack", "rarity"}) {
		t.Fatalf("characters = %v", chars)
	}

	bundle, err := lib.Open("rarity")
	if err != nil {
		t.Fatal(err)
	}
	bundle.Close()

	if _, err := lib.Open("spike"); err == nil {
		t.Fatal("expected error for missing bundle")
	}
}

func TestLibraryRejectsNamesOutsideDir(t *testing.T) {
	root := t.TempDir()
	lib := Library{Dir: filepath.Join(root, "lib")}

	outside := NewBuilder(lang.English)
	if _, err := outside.Add("happy", testSlot(t, 3, 1)); err != nil {
		t.Fatal(err)
	}
	if err := outside.WriteFile(filepath.Join(root, "secret"+Ext)); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"../secret", "..", ".", "", "a/b", `a\b`, "x..y", "/abs"} {
		if _, err := lib.Open(name); !errors.Is(err, ErrInvalidCharacter) {
			t.Errorf("Open(%q) err = %v, want ErrInvalidCharacter", name, err)
		}
	}
	for _, name := range []string{"rarity", "dr_caballeron", "twilight sparkle"} {
		if err := CheckCharacter(name); err != nil {
			t.Errorf("CheckCharacter(%q) = %v", name, err)
		}
	}
}
