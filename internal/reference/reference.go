// Package reference builds the voice conditioning shared by every segment of
// a synthesis call, from a reference clip or from a precomputed trait slot.
package reference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/go-trait-tts/internal/audio"
	"github.com/example/go-trait-tts/internal/fault"
	"github.com/example/go-trait-tts/internal/lang"
	"github.com/example/go-trait-tts/internal/tensor"
	"github.com/example/go-trait-tts/internal/text"
	"github.com/example/go-trait-tts/internal/traits"
)

// PromptSampleRate is the rate reference clips are loaded at for prompt
// token extraction.
const PromptSampleRate = 16000

// TailSeconds is the silence appended to the prompt clip, counted in
// samples of the model rate.
const TailSeconds = 0.3

// AcousticEncoder maps a 16 kHz waveform to latent frames.
type AcousticEncoder interface {
	Encode(ctx context.Context, samples []float32) (*tensor.Tensor, error)
}

// TokenQuantizer extracts prompt tokens from latent frames.
type TokenQuantizer interface {
	Quantize(ctx context.Context, latent *tensor.Tensor) ([]int64, error)
}

// SpectrogramExtractor computes a spectrogram feature from a model-rate
// waveform.
type SpectrogramExtractor interface {
	Spectrogram(ctx context.Context, samples []float32) (*tensor.Tensor, error)
}

// EmbeddingAggregator combines spectrograms into one speaker embedding.
type EmbeddingAggregator interface {
	Aggregate(ctx context.Context, specs []*tensor.Tensor) (*tensor.Tensor, error)
}

// Router resolves a transcript into a phonetic unit.
type Router interface {
	Route(ctx context.Context, text string, tag lang.Tag) (lang.PhoneticUnit, error)
	FeatureDim() int
}

// Capabilities groups the audio models the conditioner calls.
type Capabilities struct {
	Encoder     AcousticEncoder
	Quantizer   TokenQuantizer
	Spectrogram SpectrogramExtractor
	Aggregator  EmbeddingAggregator
}

// Request describes the reference side of a synthesis call.
type Request struct {
	ClipPath   string
	AuxClips   []string
	Transcript string
	Language   lang.Tag
	RefFree    bool

	// Slot holds precomputed values, typically from a trait bundle. Any
	// field left empty is computed from the clip.
	Slot *traits.Slot
}

func (r Request) precomputedPhonemes() bool {
	return r.Slot != nil && len(r.Slot.Phonemes) > 0
}

func (r Request) precomputedEmbedding() bool {
	return r.Slot != nil && r.Slot.Embedding != nil
}

// Conditioning is the immutable voice identity of one call. Prompt and Unit
// are nil in reference-free mode.
type Conditioning struct {
	Prompt    []int64
	Embedding *tensor.Tensor
	Unit      *lang.PhoneticUnit
	RefFree   bool
}

// Validate checks a request against the target text and language. Every
// problem found is reported in one InputError.
func Validate(req Request, targetText string, targetTag lang.Tag) error {
	var problems []string

	if req.ClipPath == "" && !req.precomputedEmbedding() {
		problems = append(problems, "supply a reference clip or a precomputed embedding")
	}

	hasText := req.precomputedPhonemes() || strings.TrimSpace(req.Transcript) != ""
	if !req.RefFree && (!hasText || !req.Language.Valid()) {
		problems = append(problems, "supply precomputed phonemes or a transcript together with the reference language, or enable reference-free mode")
	}

	if req.precomputedPhonemes() && req.Slot.Features == nil && req.Language.RequiresFeatures() {
		problems = append(problems, fmt.Sprintf("reference language %s requires precomputed features alongside precomputed phonemes", req.Language))
	}

	if strings.TrimSpace(targetText) == "" {
		problems = append(problems, "target text is empty")
	}
	if !targetTag.Valid() {
		problems = append(problems, "target language is not set")
	}

	if len(problems) > 0 {
		return fault.Input("validate", "%s", strings.Join(problems, "; "))
	}
	return nil
}

// Conditioner resolves requests into Conditioning values.
type Conditioner struct {
	router    Router
	caps      Capabilities
	modelRate int
	logger    *slog.Logger
}

// Option configures a Conditioner.
type Option func(*Conditioner)

// WithLogger sets the logger used for skipped auxiliary clips.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conditioner) { c.logger = l }
}

// NewConditioner returns a conditioner that loads spectrogram clips at
// modelRate.
func NewConditioner(router Router, caps Capabilities, modelRate int, opts ...Option) *Conditioner {
	c := &Conditioner{router: router, caps: caps, modelRate: modelRate, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Prepare resolves the phonetic side first, then prompt tokens and the
// speaker embedding. Precomputed values win; an explicit RefFree drops the
// reference phonemes and prompt even when precomputed; an empty transcript
// without precomputed phonemes falls back to reference-free mode.
func (c *Conditioner) Prepare(ctx context.Context, req Request) (Conditioning, error) {
	unit, refFree, err := c.phonetics(ctx, req)
	if err != nil {
		return Conditioning{}, err
	}

	out := Conditioning{Unit: unit, RefFree: refFree}

	if !refFree {
		if req.Slot != nil && len(req.Slot.Prompt) > 0 {
			out.Prompt = req.Slot.Prompt
		} else if out.Prompt, err = c.prompt(ctx, req.ClipPath); err != nil {
			return Conditioning{}, err
		}
	}

	if req.precomputedEmbedding() {
		out.Embedding = req.Slot.Embedding
	} else if out.Embedding, err = c.embedding(ctx, req.ClipPath, req.AuxClips); err != nil {
		return Conditioning{}, err
	}

	return out, nil
}

func (c *Conditioner) phonetics(ctx context.Context, req Request) (*lang.PhoneticUnit, bool, error) {
	if req.RefFree {
		return nil, true, nil
	}

	if req.precomputedPhonemes() {
		if req.Slot.Features == nil && req.Language.RequiresFeatures() {
			return nil, false, fault.Input("prepare reference", "reference language %s requires precomputed features", req.Language)
		}
		unit, err := req.Slot.Unit(c.router.FeatureDim())
		if err != nil {
			return nil, false, err
		}
		return &unit, false, nil
	}

	transcript := strings.Trim(req.Transcript, "\n")
	if strings.TrimSpace(transcript) == "" {
		return nil, true, nil
	}

	transcript = text.EnsureTerminator(transcript, req.Language.IsEnglish())
	unit, err := c.router.Route(ctx, transcript, req.Language)
	if err != nil {
		return nil, false, fmt.Errorf("route reference transcript: %w", err)
	}
	return &unit, false, nil
}

func (c *Conditioner) prompt(ctx context.Context, clipPath string) ([]int64, error) {
	if clipPath == "" {
		return nil, fault.Input("prepare reference", "prompt tokens need a reference clip")
	}

	clip, err := audio.LoadClip(clipPath, PromptSampleRate)
	if err != nil {
		return nil, fault.Capability("load reference clip", err)
	}
	samples := append(clip.Samples, audio.Silence(c.modelRate, TailSeconds)...)

	latent, err := c.caps.Encoder.Encode(ctx, samples)
	if err != nil {
		return nil, fault.Capability("acoustic encoder", err)
	}
	codes, err := c.caps.Quantizer.Quantize(ctx, latent)
	if err != nil {
		return nil, fault.Capability("token quantizer", err)
	}
	if len(codes) == 0 {
		return nil, fault.Capability("token quantizer", errors.New("no prompt tokens"))
	}
	return codes, nil
}

func (c *Conditioner) embedding(ctx context.Context, clipPath string, aux []string) (*tensor.Tensor, error) {
	if clipPath == "" {
		return nil, fault.Input("prepare reference", "speaker embedding needs a reference clip")
	}

	spec, err := c.spectrogram(ctx, clipPath)
	if err != nil {
		return nil, err
	}
	specs := []*tensor.Tensor{spec}

	for _, path := range aux {
		s, err := c.spectrogram(ctx, path)
		if err != nil {
			c.logger.Warn("skipping auxiliary reference clip", "path", path, "error", err.Error())
			continue
		}
		specs = append(specs, s)
	}

	emb, err := c.caps.Aggregator.Aggregate(ctx, specs)
	if err != nil {
		return nil, fault.Capability("embedding aggregator", err)
	}
	return emb, nil
}

func (c *Conditioner) spectrogram(ctx context.Context, path string) (*tensor.Tensor, error) {
	clip, err := audio.LoadClip(path, c.modelRate)
	if err != nil {
		return nil, fault.Capability("load reference clip", err)
	}
	spec, err := c.caps.Spectrogram.Spectrogram(ctx, audio.GuardPeak(clip.Samples))
	if err != nil {
		return nil, fault.Capability("spectrogram extractor", err)
	}
	return spec, nil
}

// SlotConditioner adapts a Conditioner for trait precomputation: each clip
// is conditioned in the given language and stored as a slot.
type SlotConditioner struct {
	Conditioner *Conditioner
	Language    lang.Tag
}

func (s SlotConditioner) Condition(ctx context.Context, clipPath, transcript string) (traits.Slot, error) {
	c, err := s.Conditioner.Prepare(ctx, Request{ClipPath: clipPath, Transcript: transcript, Language: s.Language})
	if err != nil {
		return traits.Slot{}, err
	}
	if c.Unit == nil {
		return traits.Slot{}, fault.Input("condition clip", "%s has an empty transcript", clipPath)
	}

	slot := traits.Slot{Phonemes: c.Unit.PhonemeIDs, Prompt: c.Prompt, Embedding: c.Embedding}
	if !c.Unit.Features.IsZero() {
		feats := c.Unit.Features
		slot.Features = &feats
	}
	return slot, nil
}
