package onnx

import (
	"math"
	"math/rand/v2"
	"slices"
)

// RepetitionPenalty divides positive logits (and multiplies negative ones)
// of tokens already present in the sequence.
const RepetitionPenalty = 1.35

const minTemperature = 1e-5

var negInf = float32(math.Inf(-1))

// samplerConfig is the per-step filter chain applied to raw logits.
type samplerConfig struct {
	topK        int
	topP        float64
	temperature float64
	penalty     float64
}

// filterLogits applies, in place and in order: repetition penalty over
// previous, nucleus filtering, temperature and top-k. Filtered entries
// become -Inf.
func filterLogits(logits []float32, previous []int64, cfg samplerConfig) {
	if cfg.penalty > 0 && cfg.penalty != 1 {
		seen := make(map[int64]struct{}, len(previous))
		for _, tok := range previous {
			if tok < 0 || int(tok) >= len(logits) {
				continue
			}
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			if s := logits[tok]; s < 0 {
				logits[tok] = s * float32(cfg.penalty)
			} else {
				logits[tok] = s / float32(cfg.penalty)
			}
		}
	}

	if cfg.topP > 0 && cfg.topP < 1 {
		order := sortedDesc(logits)
		probs := softmax(gather(logits, order))
		cum := 0.0
		for rank, idx := range order {
			cum += probs[rank]
			// The most likely token always survives.
			if rank > 0 && cum > cfg.topP {
				logits[idx] = negInf
			}
		}
	}

	temp := math.Max(cfg.temperature, minTemperature)
	for i := range logits {
		logits[i] = float32(float64(logits[i]) / temp)
	}

	if cfg.topK > 0 && cfg.topK < len(logits) {
		sorted := slices.Clone(logits)
		slices.SortFunc(sorted, func(a, b float32) int {
			switch {
			case a > b:
				return -1
			case a < b:
				return 1
			}
			return 0
		})
		pivot := sorted[cfg.topK-1]
		for i, v := range logits {
			if v < pivot {
				logits[i] = negInf
			}
		}
	}
}

// sampleToken draws an index from softmax(logits).
func sampleToken(logits []float32, rng *rand.Rand) int64 {
	probs := softmax(logits)
	u := rng.Float64()
	cum := 0.0
	last := -1
	for i, p := range probs {
		if p == 0 {
			continue
		}
		last = i
		cum += p
		if u < cum {
			return int64(i)
		}
	}
	if last < 0 {
		return argmax(logits)
	}
	return int64(last)
}

func argmax(values []float32) int64 {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return int64(best)
}

func softmax(logits []float32) []float64 {
	maxV := math.Inf(-1)
	for _, v := range logits {
		maxV = math.Max(maxV, float64(v))
	}
	out := make([]float64, len(logits))
	if math.IsInf(maxV, -1) {
		return out
	}
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(float64(v) - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func sortedDesc(values []float32) []int {
	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case values[a] > values[b]:
			return -1
		case values[a] < values[b]:
			return 1
		}
		return 0
	})
	return order
}

func gather(values []float32, order []int) []float32 {
	out := make([]float32, len(order))
	for i, idx := range order {
		out[i] = values[idx]
	}
	return out
}
