package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

// makeWAV builds a 16-bit PCM WAV from interleaved samples.
func makeWAV(sampleRate uint32, numChannels uint16, samples []int16) []byte {
	const bitDepth = 16
	blockAlign := numChannels * bitDepth / 8
	byteRate := sampleRate * uint32(blockAlign)
	dataSize := uint32(len(samples) * 2)
	riffSize := 4 + (8 + 16) + (8 + dataSize)

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, riffSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(buf, binary.LittleEndian, numChannels)
	_ = binary.Write(buf, binary.LittleEndian, sampleRate)
	_ = binary.Write(buf, binary.LittleEndian, byteRate)
	_ = binary.Write(buf, binary.LittleEndian, blockAlign)
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitDepth))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, dataSize)
	_ = binary.Write(buf, binary.LittleEndian, samples)

	return buf.Bytes()
}

func TestDecodeWAV(t *testing.T) {
	t.Run("decodes any sample rate", func(t *testing.T) {
		clip, err := DecodeWAV(makeWAV(44100, 1, make([]int16, 441)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if clip.SampleRate != 44100 || len(clip.Samples) != 441 {
			t.Fatalf("clip = %d Hz, %d samples", clip.SampleRate, len(clip.Samples))
		}
		if d := clip.Duration(); math.Abs(d-0.01) > 1e-9 {
			t.Fatalf("duration = %v", d)
		}
	})

	t.Run("mixes stereo down to mono", func(t *testing.T) {
		clip, err := DecodeWAV(makeWAV(16000, 2, []int16{16384, 0, -16384, -16384}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(clip.Samples) != 2 {
			t.Fatalf("got %d samples, want 2", len(clip.Samples))
		}
		if math.Abs(float64(clip.Samples[0])-0.25) > 1e-3 || math.Abs(float64(clip.Samples[1])+0.5) > 1e-3 {
			t.Fatalf("samples = %v", clip.Samples)
		}
	})

	t.Run("rejects invalid WAV data", func(t *testing.T) {
		if _, err := DecodeWAV([]byte("not a wav file")); err == nil {
			t.Fatal("expected error for invalid WAV")
		}
	})

	t.Run("rejects empty input", func(t *testing.T) {
		if _, err := DecodeWAV(nil); err == nil {
			t.Fatal("expected error for nil input")
		}
	})
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	original := []float32{0.0, 0.5, -0.5, 0.25, -1.0}
	encoded, err := EncodeWAV(Clip{Samples: original, SampleRate: 32000})
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}

	decoded, err := DecodeWAV(encoded)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if decoded.SampleRate != 32000 || len(decoded.Samples) != len(original) {
		t.Fatalf("roundtrip: %d Hz, %d samples", decoded.SampleRate, len(decoded.Samples))
	}

	const tolerance = 1.0 / 32768.0 * 2
	for i, want := range original {
		if got := decoded.Samples[i]; math.Abs(float64(got-want)) > tolerance {
			t.Errorf("sample[%d] = %f, want %f", i, got, want)
		}
	}

	if _, err := EncodeWAV(Clip{Samples: original}); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestLoadClipResamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.wav")
	if err := os.WriteFile(path, makeWAV(48000, 1, make([]int16, 4800)), 0o644); err != nil {
		t.Fatal(err)
	}

	clip, err := LoadClip(path, 16000)
	if err != nil {
		t.Fatalf("LoadClip: %v", err)
	}
	if clip.SampleRate != 16000 || len(clip.Samples) != 1600 {
		t.Fatalf("clip = %d Hz, %d samples", clip.SampleRate, len(clip.Samples))
	}

	_, err = LoadClip(filepath.Join(t.TempDir(), "missing.wav"), 16000)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file err = %v", err)
	}
}

func TestResample(t *testing.T) {
	up := Resample([]float32{0, 1}, 1, 2)
	if !slices.Equal(up, []float32{0, 0.5, 1, 1}) {
		t.Fatalf("upsample = %v", up)
	}
	same := []float32{1, 2, 3}
	if got := Resample(same, 8000, 8000); !slices.Equal(got, same) {
		t.Fatalf("identity = %v", got)
	}
	if got := Resample(nil, 8000, 16000); len(got) != 0 {
		t.Fatalf("empty = %v", got)
	}
}

func TestPeakHandling(t *testing.T) {
	if got := GuardPeak([]float32{0.5, -0.9}); !slices.Equal(got, []float32{0.5, -0.9}) {
		t.Fatalf("quiet audio changed: %v", got)
	}
	if got := GuardPeak([]float32{1.5, -0.75}); !slices.Equal(got, []float32{1, -0.5}) {
		t.Fatalf("GuardPeak = %v", got)
	}
	if got := GuardPeak([]float32{4, 2}); !slices.Equal(got, []float32{2, 1}) {
		t.Fatalf("GuardPeak caps the divisor at 2: %v", got)
	}
	if got := RescalePeak([]float32{4, -2}); !slices.Equal(got, []float32{1, -0.5}) {
		t.Fatalf("RescalePeak = %v", got)
	}
}

func TestSilence(t *testing.T) {
	if n := len(Silence(32000, 0.3)); n != 9600 {
		t.Fatalf("silence = %d samples, want 9600", n)
	}
}

func TestQuantizePCM16(t *testing.T) {
	got := QuantizePCM16([]float32{0, 0.5, -0.5, 1, -1, 1.7, float32(math.NaN())})
	want := []int16{0, 16384, -16384, 32767, -32768, 32767, 0}
	if !slices.Equal(got, want) {
		t.Fatalf("QuantizePCM16 = %v, want %v", got, want)
	}
}

func TestEncodePCM16WAV(t *testing.T) {
	data, err := EncodePCM16WAV([]int16{1, -2, 3}, 32000)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 44+6 || string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("bad header: %q", data[:12])
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 32000 {
		t.Fatalf("sample rate = %d", rate)
	}
	if v := int16(binary.LittleEndian.Uint16(data[46:48])); v != -2 {
		t.Fatalf("sample[1] = %d", v)
	}
	if _, err := EncodePCM16WAV(nil, 0); err == nil {
		t.Fatal("expected error for invalid sample rate")
	}
}

func TestDecodeMP3Rejects(t *testing.T) {
	if _, err := DecodeMP3(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
	if _, err := DecodeMP3([]byte("not an mp3 stream at all")); err == nil {
		t.Fatal("expected error for junk input")
	}
}

func TestLoadFileDispatchesOnExtension(t *testing.T) {
	dir := t.TempDir()

	wavPath := filepath.Join(dir, "ref.wav")
	if err := os.WriteFile(wavPath, makeWAV(16000, 1, make([]int16, 160)), 0o644); err != nil {
		t.Fatal(err)
	}
	clip, err := LoadFile(wavPath)
	if err != nil || clip.SampleRate != 16000 || len(clip.Samples) != 160 {
		t.Fatalf("wav: %+v %v", clip.SampleRate, err)
	}

	mp3Path := filepath.Join(dir, "ref.MP3")
	if err := os.WriteFile(mp3Path, makeWAV(16000, 1, make([]int16, 160)), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(mp3Path); err == nil {
		t.Fatal("WAV bytes behind an .mp3 name should not decode as MP3")
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.mp3")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file err = %v", err)
	}
}
