package onnx

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/go-trait-tts/internal/tensor"
)

func waveformInput(samples []float32) (*Tensor, error) {
	if len(samples) == 0 {
		return nil, errors.New("empty waveform")
	}
	return NewTensor(samples, []int64{1, int64(len(samples))})
}

// Encode runs the acoustic encoder over a 16 kHz waveform.
func (e *Engine) Encode(ctx context.Context, samples []float32) (*tensor.Tensor, error) {
	in, err := waveformInput(samples)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", GraphSSLEncoder, err)
	}
	outs, err := e.run(ctx, GraphSSLEncoder, map[string]*Tensor{"audio": in})
	if err != nil {
		return nil, err
	}
	latent, err := output(outs, GraphSSLEncoder, "latent")
	if err != nil {
		return nil, err
	}
	return latent.ToTensor()
}

// Quantize extracts prompt tokens from encoder latents.
func (e *Engine) Quantize(ctx context.Context, latent *tensor.Tensor) ([]int64, error) {
	in, err := FromTensor(latent)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", GraphQuantizer, err)
	}
	outs, err := e.run(ctx, GraphQuantizer, map[string]*Tensor{"latent": in})
	if err != nil {
		return nil, err
	}
	codes, err := output(outs, GraphQuantizer, "codes")
	if err != nil {
		return nil, err
	}
	return codes.Int64s()
}

// Spectrogram computes the vocoder's reference spectrogram of a model-rate
// waveform.
func (e *Engine) Spectrogram(ctx context.Context, samples []float32) (*tensor.Tensor, error) {
	in, err := waveformInput(samples)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", GraphSpectrogram, err)
	}
	outs, err := e.run(ctx, GraphSpectrogram, map[string]*Tensor{"audio": in})
	if err != nil {
		return nil, err
	}
	spec, err := output(outs, GraphSpectrogram, "spec")
	if err != nil {
		return nil, err
	}
	return spec.ToTensor()
}

// Aggregate encodes every spectrogram and averages the embeddings.
func (e *Engine) Aggregate(ctx context.Context, specs []*tensor.Tensor) (*tensor.Tensor, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%s: no spectrograms", GraphRefEncoder)
	}
	embeddings := make([]*tensor.Tensor, 0, len(specs))
	for i, spec := range specs {
		in, err := FromTensor(spec)
		if err != nil {
			return nil, fmt.Errorf("%s: spectrogram %d: %w", GraphRefEncoder, i, err)
		}
		outs, err := e.run(ctx, GraphRefEncoder, map[string]*Tensor{"spec": in})
		if err != nil {
			return nil, err
		}
		ge, err := output(outs, GraphRefEncoder, "ge")
		if err != nil {
			return nil, err
		}
		t, err := ge.ToTensor()
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, t)
	}
	return tensor.Mean(embeddings)
}

// Decode renders generated tokens to a model-rate waveform.
func (e *Engine) Decode(ctx context.Context, tokens, phonemes []int64, embedding *tensor.Tensor, speed float64) ([]float32, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%s: no tokens", GraphVocoder)
	}
	codes, err := NewTensor(tokens, []int64{1, 1, int64(len(tokens))})
	if err != nil {
		return nil, err
	}
	ph, err := NewTensor(phonemes, []int64{1, int64(len(phonemes))})
	if err != nil {
		return nil, err
	}
	ge, err := FromTensor(embedding)
	if err != nil {
		return nil, fmt.Errorf("%s: embedding: %w", GraphVocoder, err)
	}

	outs, err := e.run(ctx, GraphVocoder, map[string]*Tensor{
		"codes":    codes,
		"phonemes": ph,
		"ge":       ge,
		"speed":    Scalar1(float32(speed)),
	})
	if err != nil {
		return nil, err
	}
	audio, err := output(outs, GraphVocoder, "audio")
	if err != nil {
		return nil, err
	}
	return audio.Float32s()
}
