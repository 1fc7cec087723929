package audio

import (
	"fmt"
	"math"
)

// Resample converts samples from one rate to another by linear interpolation.
func Resample(samples []float32, from, to int) []float32 {
	if from == to || len(samples) == 0 {
		return append([]float32(nil), samples...)
	}

	n := int(math.Round(float64(len(samples)) * float64(to) / float64(from)))
	out := make([]float32, n)
	step := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = samples[j] + (samples[j+1]-samples[j])*frac
	}
	return out
}

// LoadClip loads a WAV or MP3 file as mono audio at the given rate.
func LoadClip(path string, rate int) (Clip, error) {
	if rate <= 0 {
		return Clip{}, fmt.Errorf("invalid sample rate: %d", rate)
	}
	clip, err := LoadFile(path)
	if err != nil {
		return Clip{}, err
	}
	return Clip{Samples: Resample(clip.Samples, clip.SampleRate, rate), SampleRate: rate}, nil
}

// Peak returns the largest absolute sample value.
func Peak(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// GuardPeak divides samples by min(2, peak) when the peak exceeds 1. It
// modifies samples in place.
func GuardPeak(samples []float32) []float32 {
	peak := Peak(samples)
	if peak <= 1 {
		return samples
	}
	div := min(peak, 2)
	for i := range samples {
		samples[i] /= div
	}
	return samples
}

// RescalePeak divides samples by their peak when it exceeds 1. It modifies
// samples in place.
func RescalePeak(samples []float32) []float32 {
	peak := Peak(samples)
	if peak <= 1 {
		return samples
	}
	for i := range samples {
		samples[i] /= peak
	}
	return samples
}

// Silence returns seconds of zero samples at rate.
func Silence(rate int, seconds float64) []float32 {
	return make([]float32, int(math.Round(float64(rate)*seconds)))
}
