// Package testutil provides skip helpers for integration tests, WAV fixtures
// and in-memory fakes of the model capabilities.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    testutil.RequireONNXRuntime(t)
//	    dir := testutil.RequireModelDir(t)
//	    ...
//	}
package testutil

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"

	"github.com/example/go-trait-tts/internal/audio"
)

// RequireONNXRuntime skips the test if no ONNX Runtime shared library can be
// located. It checks (in order): the ORT_LIBRARY_PATH env var, then the
// TRAITTTS_ORT_LIB env var, then common system library paths.
func RequireONNXRuntime(tb testing.TB) {
	tb.Helper()

	for _, env := range []string{"ORT_LIBRARY_PATH", "TRAITTTS_ORT_LIB"} {
		if p := os.Getenv(env); p != "" {
			// #nosec G703 -- Integration tests intentionally accept explicit env-provided local library paths.
			if _, err := os.Stat(p); err == nil {
				return
			}

			tb.Skipf("ONNX Runtime library not found at %s=%q", env, p)
			return
		}
	}

	candidates := []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return
		}
	}

	tb.Skipf("ONNX Runtime shared library not found; set ORT_LIBRARY_PATH or TRAITTTS_ORT_LIB")
}

// RequireModelDir skips the test unless TRAITTTS_MODEL_DIR points at a
// directory holding an ONNX manifest.json. It returns the directory.
func RequireModelDir(tb testing.TB) string {
	tb.Helper()

	dir := os.Getenv("TRAITTTS_MODEL_DIR")
	if dir == "" {
		tb.Skipf("TRAITTTS_MODEL_DIR not set")
		return ""
	}
	if _, err := os.Stat(filepath.Join(dir, "manifest.json")); err != nil {
		tb.Skipf("model manifest not available in %q: %v", dir, err)
		return ""
	}
	return dir
}

// WriteToneWAV writes a 16-bit mono sine tone of the given length and peak
// amplitude to dir/name and returns its path.
func WriteToneWAV(tb testing.TB, dir, name string, rate int, seconds float64, amplitude float32) string {
	tb.Helper()

	n := int(math.Round(float64(rate) * seconds))
	data, err := audio.EncodePCM16WAV(audio.QuantizePCM16(toneSamples(n, rate, amplitude)), rate)
	if err != nil {
		tb.Fatalf("encode tone: %v", err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatalf("write tone: %v", err)
	}
	return path
}

// WriteToneFLAC writes the same 440 Hz tone as WriteToneWAV as a 16-bit mono
// FLAC file with verbatim subframes.
func WriteToneFLAC(tb testing.TB, dir, name string, rate int, seconds float64, amplitude float32) string {
	tb.Helper()

	const blockSize = 4096
	n := int(math.Round(float64(rate) * seconds))
	pcm := audio.QuantizePCM16(toneSamples(n, rate, amplitude))

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		tb.Fatalf("create flac: %v", err)
	}
	info := &meta.StreamInfo{
		BlockSizeMin:  blockSize,
		BlockSizeMax:  blockSize,
		SampleRate:    uint32(rate),
		NChannels:     1,
		BitsPerSample: 16,
		NSamples:      uint64(n),
	}
	enc, err := flac.NewEncoder(f, info)
	if err != nil {
		_ = f.Close()
		tb.Fatalf("flac encoder: %v", err)
	}
	for num, start := 0, 0; start < n; num, start = num+1, start+blockSize {
		end := min(start+blockSize, n)
		samples := make([]int32, end-start)
		for i, v := range pcm[start:end] {
			samples[i] = int32(v)
		}
		fr := &frame.Frame{
			Header: frame.Header{
				HasFixedBlockSize: true,
				BlockSize:         uint16(len(samples)),
				SampleRate:        uint32(rate),
				Channels:          frame.ChannelsMono,
				BitsPerSample:     16,
				Num:               uint64(num),
			},
			Subframes: []*frame.Subframe{{
				SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
				Samples:   samples,
				NSamples:  len(samples),
			}},
		}
		if err := enc.WriteFrame(fr); err != nil {
			tb.Fatalf("write flac frame: %v", err)
		}
	}
	// Close also closes f.
	if err := enc.Close(); err != nil {
		tb.Fatalf("close flac: %v", err)
	}
	return path
}

func toneSamples(n, rate int, amplitude float32) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = amplitude * float32(math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	return samples
}
