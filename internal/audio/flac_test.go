package audio_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-trait-tts/internal/audio"
	"github.com/example/go-trait-tts/internal/testutil"
)

func TestLoadFileDecodesFLAC(t *testing.T) {
	dir := t.TempDir()
	const rate = 32000
	path := testutil.WriteToneFLAC(t, dir, "ref.flac", rate, 0.5, 0.5)

	clip, err := audio.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if clip.SampleRate != rate {
		t.Fatalf("rate = %d, want %d", clip.SampleRate, rate)
	}
	if len(clip.Samples) != rate/2 {
		t.Fatalf("samples = %d, want %d", len(clip.Samples), rate/2)
	}
	if d := clip.Duration(); math.Abs(d-0.5) > 1e-9 {
		t.Fatalf("duration = %v", d)
	}

	wavPath := testutil.WriteToneWAV(t, dir, "ref.wav", rate, 0.5, 0.5)
	wav, err := audio.LoadFile(wavPath)
	if err != nil {
		t.Fatal(err)
	}
	for i := range clip.Samples {
		if math.Abs(float64(clip.Samples[i]-wav.Samples[i])) > 1e-4 {
			t.Fatalf("sample %d: flac %v, wav %v", i, clip.Samples[i], wav.Samples[i])
		}
	}
}

func TestLoadFileRejectsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ref.ogg")
	if err := os.WriteFile(path, []byte("OggS"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := audio.LoadFile(path); err == nil {
		t.Fatal("expected an error for .ogg")
	}
	if audio.Supported(path) {
		t.Fatal(".ogg reported as supported")
	}
	for _, name := range []string{"a.wav", "a.MP3", "a.Flac"} {
		if !audio.Supported(name) {
			t.Errorf("%s not supported", name)
		}
	}
}

func TestDecodeFLACRejectsGarbage(t *testing.T) {
	if _, err := audio.DecodeFLAC(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
	if _, err := audio.DecodeFLAC([]byte("RIFF....WAVE")); err == nil {
		t.Fatal("expected error for non-FLAC input")
	}
}
