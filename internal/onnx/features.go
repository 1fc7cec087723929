package onnx

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

const (
	tokenCLS = "[CLS]"
	tokenSEP = "[SEP]"
	tokenUNK = "[UNK]"
)

// Vocab maps feature model tokens to ids. Chinese text is tokenized one rune
// per token.
type Vocab struct {
	ids map[string]int64
}

// LoadVocab reads a one-token-per-line vocabulary; the line number is the id.
func LoadVocab(path string) (*Vocab, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()

	ids := make(map[string]int64)
	sc := bufio.NewScanner(f)
	var n int64
	for sc.Scan() {
		tok := strings.TrimRight(sc.Text(), "\r")
		if _, dup := ids[tok]; !dup {
			ids[tok] = n
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vocab %s: %w", path, err)
	}
	return NewVocab(ids)
}

// NewVocab builds a vocabulary from a token map. The special tokens must be
// present.
func NewVocab(ids map[string]int64) (*Vocab, error) {
	for _, tok := range []string{tokenCLS, tokenSEP, tokenUNK} {
		if _, ok := ids[tok]; !ok {
			return nil, fmt.Errorf("vocab is missing %s", tok)
		}
	}
	return &Vocab{ids: ids}, nil
}

// Encode returns [CLS] ids... [SEP] for text.
func (v *Vocab) Encode(text string) []int64 {
	out := []int64{v.ids[tokenCLS]}
	for _, r := range text {
		id, ok := v.ids[string(r)]
		if !ok {
			id, ok = v.ids[strings.ToLower(string(r))]
		}
		if !ok {
			id = v.ids[tokenUNK]
		}
		out = append(out, id)
	}
	return append(out, v.ids[tokenSEP])
}

// Extract runs the feature model and returns one hidden vector per rune of
// normText.
func (e *Engine) Extract(ctx context.Context, normText string, word2ph []int) ([][]float32, error) {
	if e.vocab == nil {
		return nil, fmt.Errorf("%s: no vocabulary loaded", GraphFeatures)
	}
	ids := e.vocab.Encode(normText)
	runes := len(ids) - 2
	if len(word2ph) != runes {
		return nil, fmt.Errorf("%s: word2ph has %d entries for %d runes", GraphFeatures, len(word2ph), runes)
	}

	n := int64(len(ids))
	inputIDs, err := NewTensor(ids, []int64{1, n})
	if err != nil {
		return nil, err
	}
	mask := make([]int64, len(ids))
	for i := range mask {
		mask[i] = 1
	}
	attention, _ := NewTensor(mask, []int64{1, n})
	types, _ := NewTensor(make([]int64, len(ids)), []int64{1, n})

	outs, err := e.run(ctx, GraphFeatures, map[string]*Tensor{
		"input_ids":      inputIDs,
		"attention_mask": attention,
		"token_type_ids": types,
	})
	if err != nil {
		return nil, err
	}
	hidden, err := output(outs, GraphFeatures, "hidden")
	if err != nil {
		return nil, err
	}
	shape := hidden.Shape()
	if len(shape) != 3 || shape[1] != n {
		return nil, fmt.Errorf("%s: hidden shape %v, want [1 %d dim]", GraphFeatures, shape, n)
	}
	data, err := hidden.Float32s()
	if err != nil {
		return nil, err
	}

	dim := int(shape[2])
	vecs := make([][]float32, runes)
	for i := range vecs {
		row := i + 1
		vecs[i] = append([]float32(nil), data[row*dim:(row+1)*dim]...)
	}
	return vecs, nil
}
