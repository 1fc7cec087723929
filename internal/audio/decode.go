// Package audio loads reference clips and encodes synthesized speech.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/cwbudde/wav"
)

// ErrFormatMismatch is returned when a file header describes no usable audio.
var ErrFormatMismatch = errors.New("audio format mismatch")

// Clip is mono float32 audio in [-1, 1] at SampleRate.
type Clip struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// DecodeWAV decodes WAV bytes of any sample rate and channel count into a
// mono clip. Multi-channel audio is averaged down to one channel.
func DecodeWAV(data []byte) (Clip, error) {
	if len(data) == 0 {
		return Clip{}, errors.New("empty WAV input")
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Clip{}, errors.New("invalid WAV file")
	}

	rate := int(dec.SampleRate)
	channels := int(dec.NumChans)
	if rate <= 0 {
		return Clip{}, fmt.Errorf("%w: sample rate %d", ErrFormatMismatch, rate)
	}
	if channels <= 0 {
		return Clip{}, fmt.Errorf("%w: channels %d", ErrFormatMismatch, channels)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("reading PCM data: %w", err)
	}

	return Clip{Samples: mixdown(buf.Data, channels), SampleRate: rate}, nil
}

// LoadWAV reads and decodes a WAV file.
func LoadWAV(path string) (Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Clip{}, fmt.Errorf("read %s: %w", path, err)
	}
	clip, err := DecodeWAV(data)
	if err != nil {
		return Clip{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return clip, nil
}

func mixdown(interleaved []float32, channels int) []float32 {
	if channels == 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
