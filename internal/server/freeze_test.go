package server_test

import (
	"bytes"
	"context"
	"net/http"
	"slices"
	"testing"

	"github.com/example/go-trait-tts/internal/lang"
	"github.com/example/go-trait-tts/internal/model"
	"github.com/example/go-trait-tts/internal/reference"
	"github.com/example/go-trait-tts/internal/server"
	"github.com/example/go-trait-tts/internal/synth"
	"github.com/example/go-trait-tts/internal/tensor"
	"github.com/example/go-trait-tts/internal/testutil"
)

type emptyPreparer struct{}

func (emptyPreparer) Prepare(context.Context, reference.Request) (reference.Conditioning, error) {
	return reference.Conditioning{}, nil
}

// codepointRouter emits one phoneme per rune.
type codepointRouter struct{}

func (codepointRouter) Route(_ context.Context, s string, _ lang.Tag) (lang.PhoneticUnit, error) {
	var ids []int64
	for _, r := range s {
		ids = append(ids, int64(r))
	}
	return lang.PhoneticUnit{PhonemeIDs: ids, Features: lang.ZeroFeatures(2, len(ids)), NormText: s}, nil
}

// heldGenerator blocks calls containing the hold phoneme until release closes.
type heldGenerator struct {
	testutil.Generator
	hold    int64
	entered chan struct{}
	release chan struct{}
}

func (g *heldGenerator) Generate(ctx context.Context, phonemes []int64, f lang.Features, prompt []int64, emb *tensor.Tensor, s model.Sampling) ([]int64, error) {
	if slices.Contains(phonemes, g.hold) {
		close(g.entered)
		<-g.release
	}
	return g.Generator.Generate(ctx, phonemes, f, prompt, emb, s)
}

func TestTTS_ConcurrentCallsDoNotPoisonFreezeCache(t *testing.T) {
	gen := &heldGenerator{hold: int64('甲'), entered: make(chan struct{}), release: make(chan struct{})}
	mctx := model.Context{
		GPT:    model.GPTConfig{Data: model.GPTData{MaxSec: 54}},
		SoVITS: model.SoVITSConfig{Data: model.SoVITSData{SamplingRate: testRate}},
	}
	orch := synth.NewOrchestrator(mctx, emptyPreparer{}, codepointRouter{}, gen,
		&testutil.Vocoder{SamplesPerToken: 10, Amplitude: 0.5})
	h := server.NewHandler(orch, writeLibrary(t), server.WithWorkers(2))

	slowDone := make(chan int, 1)
	go func() { slowDone <- postTTS(t, h, ttsBody("甲甲甲甲甲甲")).Code }()
	<-gen.entered

	fresh := postTTS(t, h, ttsBody("乙乙乙乙乙乙乙乙乙乙"))
	if fresh.Code != http.StatusOK {
		t.Fatalf("fresh call: %d %s", fresh.Code, fresh.Body.String())
	}
	close(gen.release)
	if code := <-slowDone; code != http.StatusOK {
		t.Fatalf("held call: %d", code)
	}

	frozen := postTTS(t, h, `{"text":"乙乙乙乙乙乙乙乙乙乙","character":"twilight","trait":"happy","freeze":true}`)
	if frozen.Code != http.StatusOK {
		t.Fatalf("frozen call: %d %s", frozen.Code, frozen.Body.String())
	}
	if !bytes.Equal(frozen.Body.Bytes(), fresh.Body.Bytes()) {
		t.Fatalf("frozen audio differs from the fresh call: %d bytes, want %d", frozen.Body.Len(), fresh.Body.Len())
	}
	if gen.CallCount() != 2 {
		t.Fatalf("generator calls = %d, want 2", gen.CallCount())
	}
}

func TestTTS_RejectsCharacterOutsideLibrary(t *testing.T) {
	s := &stubSynthesizer{res: okResult()}
	h := server.NewHandler(s, writeLibrary(t))

	for _, name := range []string{"../secret", "..", "a/b", `a\\b`} {
		rec := postTTS(t, h, `{"text":"Hi.","character":"`+name+`","trait":"happy"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("character %q: want 400, got %d", name, rec.Code)
		}
	}
	if s.lastRequest().Text != "" {
		t.Fatal("synthesizer ran for a rejected character")
	}
}
