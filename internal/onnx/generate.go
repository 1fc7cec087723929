package onnx

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/go-trait-tts/internal/lang"
	"github.com/example/go-trait-tts/internal/model"
	"github.com/example/go-trait-tts/internal/tensor"
)

// DefaultEOS is the end-of-sequence token of the stock token generator.
const DefaultEOS = 1024

// Generate runs the autoregressive token generator:
//
//	t2s_prefill → (sample → t2s_step)* until EOS or the early-stop budget
//
// The key/value caches returned by each graph call are fed to the next step.
// The embedding is not consumed by the generator graphs.
func (e *Engine) Generate(ctx context.Context, phonemes []int64, features lang.Features, prompt []int64, _ *tensor.Tensor, sampling model.Sampling) ([]int64, error) {
	if len(phonemes) == 0 {
		return nil, errors.New("generate: phoneme sequence must not be empty")
	}
	if features.Width != len(phonemes) || len(features.Data) != features.Dim*features.Width {
		return nil, fmt.Errorf("generate: features %dx%d do not match %d phonemes", features.Dim, features.Width, len(phonemes))
	}
	if err := sampling.Validate(); err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	ph, err := NewTensor(phonemes, []int64{1, int64(len(phonemes))})
	if err != nil {
		return nil, err
	}
	bert, err := NewTensor(features.Data, []int64{1, int64(features.Dim), int64(features.Width)})
	if err != nil {
		return nil, err
	}
	pr, err := NewTensor(prompt, []int64{1, int64(len(prompt))})
	if err != nil {
		return nil, err
	}

	outs, err := e.run(ctx, GraphT2SPrefill, map[string]*Tensor{
		"phonemes": ph,
		"bert":     bert,
		"prompt":   pr,
	})
	if err != nil {
		return nil, fmt.Errorf("generate: prefill: %w", err)
	}

	cfg := samplerConfig{
		topK:        sampling.TopK,
		topP:        sampling.TopP,
		temperature: sampling.Temperature,
		penalty:     RepetitionPenalty,
	}
	history := append([]int64(nil), prompt...)
	var generated []int64
	graph := GraphT2SPrefill

	for step := 0; ; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logitsT, err := output(outs, graph, "logits")
		if err != nil {
			return nil, err
		}
		logits, err := logitsT.Float32s()
		if err != nil {
			return nil, fmt.Errorf("generate step %d: %w", step, err)
		}
		if len(logits) == 0 {
			return nil, fmt.Errorf("generate step %d: empty logits", step)
		}

		eosInRange := e.eos >= 0 && int(e.eos) < len(logits)
		if step == 0 && eosInRange {
			logits[e.eos] = negInf
		}
		filterLogits(logits, history, cfg)
		top := argmax(logits)

		tok := top
		if !sampling.Greedy() {
			e.rngMu.Lock()
			tok = sampleToken(logits, e.rng)
			e.rngMu.Unlock()
		}

		if eosInRange && (tok == e.eos || top == e.eos) {
			e.logger.Debug("EOS sampled", "step", step)
			break
		}
		generated = append(generated, tok)
		history = append(history, tok)
		if len(generated) >= sampling.EarlyStop {
			e.logger.Debug("early stop budget reached", "tokens", len(generated))
			break
		}

		kCache, err := output(outs, graph, "k_cache")
		if err != nil {
			return nil, err
		}
		vCache, err := output(outs, graph, "v_cache")
		if err != nil {
			return nil, err
		}
		graph = GraphT2SStep
		tokT, _ := NewTensor([]int64{tok}, []int64{1, 1})
		outs, err = e.run(ctx, GraphT2SStep, map[string]*Tensor{
			"token":   tokT,
			"k_cache": kCache,
			"v_cache": vCache,
		})
		if err != nil {
			return nil, fmt.Errorf("generate step %d: %w", step, err)
		}
	}

	if len(generated) == 0 {
		return nil, errors.New("generate: no tokens before end of sequence")
	}
	e.logger.Debug("generation complete", "tokens", len(generated))
	return generated, nil
}
