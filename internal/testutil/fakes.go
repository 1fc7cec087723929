package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/example/go-trait-tts/internal/lang"
	"github.com/example/go-trait-tts/internal/model"
	"github.com/example/go-trait-tts/internal/tensor"
)

var errSpectrogram = errors.New("fake spectrogram failure")

// SamplesPerFrame is the 16 kHz hop of the fake acoustic encoder.
const SamplesPerFrame = 320

// Encoder emits one zero latent frame of width Dim per SamplesPerFrame
// input samples.
type Encoder struct {
	Dim int
	Err error

	mu      sync.Mutex
	LastLen int
}

func (e *Encoder) Encode(_ context.Context, samples []float32) (*tensor.Tensor, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	e.mu.Lock()
	e.LastLen = len(samples)
	e.mu.Unlock()

	dim := max(e.Dim, 1)
	frames := max(len(samples)/SamplesPerFrame, 1)
	return tensor.Zeros([]int64{1, int64(dim), int64(frames)})
}

// Quantizer emits one code per latent frame, numbered from zero.
type Quantizer struct {
	Err error
}

func (q *Quantizer) Quantize(_ context.Context, latent *tensor.Tensor) ([]int64, error) {
	if q.Err != nil {
		return nil, q.Err
	}
	shape := latent.Shape()
	codes := make([]int64, shape[len(shape)-1])
	for i := range codes {
		codes[i] = int64(i)
	}
	return codes, nil
}

// Spectrogram returns a [1, 2, 1] tensor holding the sample count and the
// peak of its input. Fail selects inputs that should error.
type Spectrogram struct {
	Err  error
	Fail func(samples []float32) bool

	mu    sync.Mutex
	Peaks []float32
}

func (s *Spectrogram) Spectrogram(_ context.Context, samples []float32) (*tensor.Tensor, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Fail != nil && s.Fail(samples) {
		return nil, errSpectrogram
	}

	var peak float32
	for _, v := range samples {
		peak = max(peak, v, -v)
	}
	s.mu.Lock()
	s.Peaks = append(s.Peaks, peak)
	s.mu.Unlock()

	return tensor.New([]float32{float32(len(samples)), peak}, []int64{1, 2, 1})
}

// Aggregator averages spectrograms and records how many it received.
type Aggregator struct {
	Err error

	mu  sync.Mutex
	Got []int
}

func (a *Aggregator) Aggregate(_ context.Context, specs []*tensor.Tensor) (*tensor.Tensor, error) {
	if a.Err != nil {
		return nil, a.Err
	}
	a.mu.Lock()
	a.Got = append(a.Got, len(specs))
	a.mu.Unlock()
	return tensor.Mean(specs)
}

// GenerateCall records one token generator invocation.
type GenerateCall struct {
	Phonemes []int64
	Features lang.Features
	Prompt   []int64
	Sampling model.Sampling
}

// Generator returns one token per phoneme, echoing the phoneme ids.
type Generator struct {
	Err error

	mu    sync.Mutex
	Calls []GenerateCall
}

func (g *Generator) Generate(_ context.Context, phonemes []int64, features lang.Features, prompt []int64, _ *tensor.Tensor, sampling model.Sampling) ([]int64, error) {
	if g.Err != nil {
		return nil, g.Err
	}
	g.mu.Lock()
	g.Calls = append(g.Calls, GenerateCall{Phonemes: phonemes, Features: features, Prompt: prompt, Sampling: sampling})
	g.mu.Unlock()
	return append([]int64(nil), phonemes...), nil
}

// CallCount returns the number of Generate calls so far.
func (g *Generator) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Calls)
}

// Vocoder renders SamplesPerToken/speed samples of Amplitude per token.
type Vocoder struct {
	SamplesPerToken int
	Amplitude       float32
	Err             error

	mu     sync.Mutex
	Speeds []float64
}

func (v *Vocoder) Decode(_ context.Context, tokens, _ []int64, _ *tensor.Tensor, speed float64) ([]float32, error) {
	if v.Err != nil {
		return nil, v.Err
	}
	v.mu.Lock()
	v.Speeds = append(v.Speeds, speed)
	v.mu.Unlock()

	per := max(v.SamplesPerToken, 1)
	n := int(float64(len(tokens)*per) / speed)
	out := make([]float32, n)
	for i := range out {
		out[i] = v.Amplitude
	}
	return out, nil
}
