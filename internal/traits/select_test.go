package traits

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/example/go-trait-tts/internal/lang"
	"github.com/example/go-trait-tts/internal/tensor"
	"pgregory.net/rapid"
)

func paths(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Path
	}
	return out
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name       string
		candidates []Candidate
		want       []string
	}{
		{
			name: "all ideal clean clips without a cap",
			candidates: []Candidate{
				{Path: "a", Noise: NoiseClean, Duration: 4},
				{Path: "b", Noise: NoiseClean, Duration: 5},
				{Path: "c", Noise: NoiseClean, Duration: 6},
				{Path: "d", Noise: NoiseClean, Duration: 7},
				{Path: "e", Noise: NoiseClean, Duration: 8},
				{Path: "f", Noise: NoiseClean, Duration: 9},
				{Path: "long", Noise: NoiseClean, Duration: 12},
				{Path: "noisy", Noise: NoiseNoisy, Duration: 5},
			},
			want: []string{"a", "b", "c", "d", "e", "f"},
		},
		{
			name: "long clean clips shortest first",
			candidates: []Candidate{
				{Path: "ideal", Noise: NoiseClean, Duration: 5},
				{Path: "l30", Noise: NoiseClean, Duration: 30},
				{Path: "l12", Noise: NoiseClean, Duration: 12},
				{Path: "l10", Noise: NoiseClean, Duration: 10},
				{Path: "l20", Noise: NoiseClean, Duration: 20},
				{Path: "l15", Noise: NoiseClean, Duration: 15},
				{Path: "noisy", Noise: NoiseNoisy, Duration: 5},
			},
			want: []string{"ideal", "l10", "l12", "l15", "l20"},
		},
		{
			name: "noise levels fill in order",
			candidates: []Candidate{
				{Path: "clean", Noise: NoiseClean, Duration: 5},
				{Path: "noisy-long", Noise: NoiseNoisy, Duration: 11},
				{Path: "noisy", Noise: NoiseNoisy, Duration: 4},
				{Path: "very", Noise: NoiseVeryNoisy, Duration: 6},
				{Path: "very-long", Noise: NoiseVeryNoisy, Duration: 10},
				{Path: "very-longer", Noise: NoiseVeryNoisy, Duration: 25},
			},
			want: []string{"clean", "noisy", "noisy-long", "very", "very-long"},
		},
		{
			name: "short clips longest first as filler",
			candidates: []Candidate{
				{Path: "clean", Noise: NoiseClean, Duration: 5},
				{Path: "s1", Noise: NoiseClean, Duration: 1},
				{Path: "s3", Noise: NoiseVeryNoisy, Duration: 3},
				{Path: "s2", Noise: NoiseNoisy, Duration: 2},
				{Path: "s2b", Noise: NoiseClean, Duration: 2},
				{Path: "s05", Noise: NoiseClean, Duration: 0.5},
			},
			want: []string{"clean", "s3", "s2", "s2b", "s1"},
		},
		{
			name: "unknown noise never selected",
			candidates: []Candidate{
				{Path: "u1", Noise: NoiseUnknown, Duration: 5},
				{Path: "u2", Noise: NoiseUnknown, Duration: 2},
				{Path: "ok", Noise: NoiseNoisy, Duration: 2},
			},
			want: []string{"ok"},
		},
		{
			name: "exactly ten seconds is long not ideal",
			candidates: []Candidate{
				{Path: "ten", Noise: NoiseClean, Duration: 10},
				{Path: "three", Noise: NoiseClean, Duration: 3},
			},
			want: []string{"ten", "three"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := paths(Select(tt.candidates, DefaultQuota))
			if !slices.Equal(got, tt.want) {
				t.Fatalf("Select = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelectCleanIdealCompleteness(t *testing.T) {
	noises := []Noise{NoiseClean, NoiseNoisy, NoiseVeryNoisy, NoiseUnknown}
	rapid.Check(t, func(rt *rapid.T) {
		nIdeal := rapid.IntRange(DefaultQuota, 12).Draw(rt, "ideal")
		var cands []Candidate
		want := make(map[string]bool)
		for i := range nIdeal {
			c := Candidate{
				Path:     fmt.Sprintf("ideal-%02d", i),
				Noise:    NoiseClean,
				Duration: rapid.Float64Range(3.01, 9.99).Draw(rt, "d"),
			}
			want[c.Path] = true
			cands = append(cands, c)
		}
		extra := rapid.IntRange(0, 10).Draw(rt, "extra")
		for i := range extra {
			noise := rapid.SampledFrom(noises).Draw(rt, "noise")
			d := rapid.Float64Range(0.1, 30).Draw(rt, "extra-d")
			if noise == NoiseClean && isIdeal(d) {
				d = 12
			}
			cands = append(cands, Candidate{Path: fmt.Sprintf("extra-%02d", i), Noise: noise, Duration: d})
		}

		got := Select(cands, DefaultQuota)
		if len(got) != nIdeal {
			rt.Fatalf("selected %d clips, want %d", len(got), nIdeal)
		}
		for _, c := range got {
			if !want[c.Path] {
				rt.Fatalf("unexpected clip %s selected", c.Path)
			}
		}
	})
}

type fakeConditioner struct {
	fail  map[string]bool
	calls []string
}

func (f *fakeConditioner) Condition(_ context.Context, path, transcript string) (Slot, error) {
	f.calls = append(f.calls, filepath.Base(path))
	if f.fail[filepath.Base(path)] {
		return Slot{}, errors.New("encoder failed")
	}
	emb, _ := tensor.New([]float32{1, 2}, []int64{1, 2, 1})
	ids := make([]int64, len([]rune(transcript)))
	for i := range ids {
		ids[i] = int64(i)
	}
	return Slot{Phonemes: ids, Embedding: emb}, nil
}

func TestPrecomputerRun(t *testing.T) {
	corpus := t.TempDir()
	sub := filepath.Join(corpus, "season1")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	durations := map[string]float64{
		"00_00_01_Twilight_Happy__Hello there.flac":           5,
		"00_00_02_Twilight_Happy Sad_Noisy_What now_.flac":    4,
		"00_00_03_Twilight_Sad__Broken clip.flac":             6,
		"00_00_04_Rarity_Happy_Super Noisy_Never picked.flac": 5,
		"00_00_05_Twilot_Happy__Unknown pony.flac":            5,
		"00_00_06_Rarity_Humanlike__No emotion.flac":          5,
	}
	for name := range durations {
		if err := os.WriteFile(filepath.Join(sub, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	for _, name := range []string{"notes.txt", "bad-name.flac"} {
		if err := os.WriteFile(filepath.Join(corpus, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cond := &fakeConditioner{fail: map[string]bool{"00_00_03_Twilight_Sad__Broken clip.flac": true}}
	probe := func(path string) (float64, error) { return durations[filepath.Base(path)], nil }

	out := filepath.Join(t.TempDir(), "library")
	p := NewPrecomputer(cond, WithDurationProbe(probe))
	report, err := p.Run(context.Background(), corpus, out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Slots != 3 || len(report.Bundles) != 1 {
		t.Fatalf("report = %+v", report)
	}

	bundle, err := Library{Dir: out}.Open("twilight")
	if err != nil {
		t.Fatal(err)
	}
	defer bundle.Close()

	if bundle.Count("happy") != 2 || bundle.Count("sad") != 1 {
		t.Fatalf("counts: happy=%d sad=%d", bundle.Count("happy"), bundle.Count("sad"))
	}
	if bundle.Language() != lang.English {
		t.Fatalf("language = %q", bundle.Language())
	}

	slot, err := bundle.Lookup("sad", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(slot.Phonemes) != len("What now?") {
		t.Fatalf("sad slot transcript length = %d", len(slot.Phonemes))
	}

	if _, err := os.Stat(filepath.Join(out, "rarity.safetensors")); !os.IsNotExist(err) {
		t.Fatalf("rarity bundle should not exist: %v", err)
	}
}

func TestPrecomputerHonorsCharacterFilter(t *testing.T) {
	corpus := t.TempDir()
	for _, name := range []string{"00_00_01_Twilight_Happy__Hello there.flac", "00_00_02_Spike_Happy__Hello there.flac"} {
		if err := os.WriteFile(filepath.Join(corpus, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cond := &fakeConditioner{}
	p := NewPrecomputer(cond,
		WithCharacters("spike"),
		WithDurationProbe(func(string) (float64, error) { return 5, nil }),
	)
	report, err := p.Run(context.Background(), corpus, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if report.Clips != 1 || len(cond.calls) != 1 || cond.calls[0] != "00_00_02_Spike_Happy__Hello there.flac" {
		t.Fatalf("report = %+v, calls = %v", report, cond.calls)
	}
}
