// Package synth runs one synthesis call: it validates the request, prepares
// the reference conditioning, segments and routes the target text, generates
// and decodes every segment, and joins the result into 16-bit PCM.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/example/go-trait-tts/internal/audio"
	"github.com/example/go-trait-tts/internal/fault"
	"github.com/example/go-trait-tts/internal/lang"
	"github.com/example/go-trait-tts/internal/model"
	"github.com/example/go-trait-tts/internal/reference"
	"github.com/example/go-trait-tts/internal/tensor"
	"github.com/example/go-trait-tts/internal/text"
)

// SegmentPause is the silence appended after every decoded segment.
const SegmentPause = 0.3

// Sampling defaults used by the CLI and the HTTP server.
const (
	DefaultTopK        = 20
	DefaultTopP        = 0.6
	DefaultTemperature = 0.6
	DefaultSpeed       = 1.0
)

// TokenGenerator produces semantic tokens for a phoneme sequence, continuing
// from the prompt tokens when present.
type TokenGenerator interface {
	Generate(ctx context.Context, phonemes []int64, features lang.Features, prompt []int64, embedding *tensor.Tensor, sampling model.Sampling) ([]int64, error)
}

// Vocoder renders semantic tokens into a waveform at the model sample rate.
type Vocoder interface {
	Decode(ctx context.Context, tokens, phonemes []int64, embedding *tensor.Tensor, speed float64) ([]float32, error)
}

// Router resolves segment text into a phonetic unit.
type Router interface {
	Route(ctx context.Context, text string, tag lang.Tag) (lang.PhoneticUnit, error)
}

// Preparer resolves the reference side of a call.
type Preparer interface {
	Prepare(ctx context.Context, req reference.Request) (reference.Conditioning, error)
}

// Request is one synthesis call.
type Request struct {
	Text      string
	Language  lang.Tag
	Strategy  text.Strategy
	Reference reference.Request

	TopK        int
	TopP        float64
	Temperature float64
	Speed       float64

	// Freeze reuses cached tokens for segments generated by earlier calls.
	Freeze bool
}

// Result is the synthesized audio of one call.
type Result struct {
	CallID     string
	SampleRate int
	PCM        []int16
	Segments   int
	Reused     int
}

// Duration is the length of the output audio.
func (r Result) Duration() time.Duration {
	if r.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(r.PCM)) * time.Second / time.Duration(r.SampleRate)
}

// WAV encodes the result as a mono 16-bit WAV file.
func (r Result) WAV() ([]byte, error) {
	return audio.EncodePCM16WAV(r.PCM, r.SampleRate)
}

// Orchestrator runs synthesis calls against one model context.
type Orchestrator struct {
	mctx   model.Context
	prep   Preparer
	router Router
	gen    TokenGenerator
	voc    Vocoder

	cache       *SegmentCache
	parallelism int
	dumpDir     string
	logger      *slog.Logger
	observer    Observer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache shares a segment cache between orchestrators.
func WithCache(c *SegmentCache) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.cache = c
		}
	}
}

// WithParallelism generates and decodes up to n segments at once. Output
// order does not depend on n.
func WithParallelism(n int) Option {
	return func(o *Orchestrator) { o.parallelism = max(n, 1) }
}

// WithDumpDir writes every decoded segment to dir as a WAV file.
func WithDumpDir(dir string) Option {
	return func(o *Orchestrator) { o.dumpDir = dir }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver receives every state transition.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

func NewOrchestrator(mctx model.Context, prep Preparer, router Router, gen TokenGenerator, voc Vocoder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		mctx:        mctx,
		prep:        prep,
		router:      router,
		gen:         gen,
		voc:         voc,
		parallelism: 1,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cache == nil {
		o.cache = NewSegmentCache(CachePositional)
	}
	return o
}

// Cache returns the segment cache used by the orchestrator.
func (o *Orchestrator) Cache() *SegmentCache { return o.cache }

// SampleRate is the rate of every Result.
func (o *Orchestrator) SampleRate() int { return o.mctx.SampleRate() }

type segmentJob struct {
	index int
	text  string
	unit  lang.PhoneticUnit
	epoch Epoch
}

type segmentOut struct {
	samples []float32
	reused  bool
}

// Synthesize runs one call. Validation failures are InputErrors and leave
// the cache untouched.
func (o *Orchestrator) Synthesize(ctx context.Context, req Request) (Result, error) {
	callID := uuid.NewString()
	log := o.logger.With("call_id", callID)
	start := time.Now()
	res := Result{CallID: callID, SampleRate: o.mctx.SampleRate()}

	o.emit(callID, StateValidate, -1)
	sampling, err := o.validate(req)
	if err != nil {
		o.emit(callID, StateRejected, -1)
		log.Warn("synthesis rejected", "error", err.Error())
		return res, err
	}

	o.emit(callID, StatePreprocessReference, -1)
	cond, err := o.prep.Prepare(ctx, req.Reference)
	if err != nil {
		return res, fmt.Errorf("prepare reference: %w", err)
	}

	o.emit(callID, StateSegmentAndRoute, -1)
	jobs, err := o.route(ctx, req)
	if err != nil {
		return res, err
	}

	outs := make([]segmentOut, len(jobs))
	run := func(ctx context.Context, i int) error {
		out, err := o.synthesizeSegment(ctx, callID, req, cond, sampling, jobs[i])
		if err != nil {
			return fmt.Errorf("segment %d: %w", jobs[i].index, err)
		}
		outs[i] = out
		return nil
	}

	if o.parallelism > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.parallelism)
		for i := range jobs {
			g.Go(func() error { return run(gctx, i) })
		}
		err = g.Wait()
	} else {
		for i := range jobs {
			if err = ctx.Err(); err != nil {
				break
			}
			if err = run(ctx, i); err != nil {
				break
			}
		}
	}
	if err != nil {
		return res, err
	}

	o.emit(callID, StateConcatenate, -1)
	pause := audio.Silence(res.SampleRate, SegmentPause)
	var total int
	for _, out := range outs {
		total += len(out.samples) + len(pause)
	}
	merged := make([]float32, 0, total)
	for _, out := range outs {
		merged = append(merged, out.samples...)
		merged = append(merged, pause...)
		if out.reused {
			res.Reused++
		}
	}
	res.PCM = audio.QuantizePCM16(merged)
	res.Segments = len(outs)

	o.emit(callID, StateDone, -1)
	log.Info("synthesis complete",
		"segments", res.Segments,
		"reused", res.Reused,
		"audio_ms", res.Duration().Milliseconds(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (o *Orchestrator) validate(req Request) (model.Sampling, error) {
	var problems []string

	if err := reference.Validate(req.Reference, req.Text, req.Language); err != nil {
		var fe *fault.Error
		if !errors.As(err, &fe) {
			return model.Sampling{}, err
		}
		problems = append(problems, fe.Msg)
	}
	if !req.Strategy.Valid() {
		problems = append(problems, fmt.Sprintf("unknown segmentation strategy %q", string(req.Strategy)))
	}
	if req.Speed <= 0 {
		problems = append(problems, fmt.Sprintf("speed must be > 0, got %v", req.Speed))
	}

	sampling := model.Sampling{
		TopK:        req.TopK,
		TopP:        req.TopP,
		Temperature: req.Temperature,
		EarlyStop:   o.mctx.EarlyStop(),
	}
	if err := sampling.Validate(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return model.Sampling{}, fault.Input("validate", "%s", strings.Join(problems, "; "))
	}
	return sampling, nil
}

// route segments the target text and resolves every segment. Whitespace-only
// segments are skipped but keep their enumeration index.
func (o *Orchestrator) route(ctx context.Context, req Request) ([]segmentJob, error) {
	segments, err := text.Segment(req.Text, req.Strategy)
	if err != nil {
		return nil, err
	}
	epoch := o.cache.Begin(segments, req.Language)

	english := req.Language.IsEnglish()
	jobs := make([]segmentJob, 0, len(segments))
	for i, seg := range segments {
		seg = strings.Trim(seg, "\n")
		if strings.TrimSpace(seg) == "" {
			continue
		}
		seg = text.EnsureTerminator(seg, english)

		unit, err := o.router.Route(ctx, seg, req.Language)
		if err != nil {
			return nil, fmt.Errorf("route segment %d: %w", i, err)
		}
		jobs = append(jobs, segmentJob{index: i, text: seg, unit: unit, epoch: epoch})
	}
	if len(jobs) == 0 {
		return nil, fault.Input("segment", "no speakable segment in target text")
	}
	return jobs, nil
}

func (o *Orchestrator) synthesizeSegment(ctx context.Context, callID string, req Request, cond reference.Conditioning, sampling model.Sampling, job segmentJob) (segmentOut, error) {
	o.emit(callID, StateGenerate, job.index)
	tokens, reused, err := o.tokens(ctx, req, cond, sampling, job)
	if err != nil {
		return segmentOut{}, err
	}

	o.emit(callID, StateDecode, job.index)
	samples, err := o.voc.Decode(ctx, tokens, job.unit.PhonemeIDs, cond.Embedding, req.Speed)
	if err != nil {
		return segmentOut{}, fault.Capability("vocoder", err)
	}
	samples = audio.RescalePeak(samples)

	if o.dumpDir != "" {
		if err := o.dump(callID, job.index, samples); err != nil {
			o.logger.Warn("segment dump failed", "call_id", callID, "segment", job.index, "error", err.Error())
		}
	}
	return segmentOut{samples: samples, reused: reused}, nil
}

// tokens returns cached tokens when freezing, otherwise generates them from
// the reference unit followed by the segment unit.
func (o *Orchestrator) tokens(ctx context.Context, req Request, cond reference.Conditioning, sampling model.Sampling, job segmentJob) ([]int64, bool, error) {
	key := o.cache.Key(job.index, job.text, req.Language)
	if req.Freeze {
		if cached, ok := o.cache.Get(job.epoch, key); ok {
			return cached, true, nil
		}
	}

	unit := job.unit
	if cond.Unit != nil {
		joined, err := lang.Concat(*cond.Unit, job.unit)
		if err != nil {
			return nil, false, err
		}
		unit = joined
	}

	tokens, err := o.gen.Generate(ctx, unit.PhonemeIDs, unit.Features, cond.Prompt, cond.Embedding, sampling)
	if err != nil {
		return nil, false, fault.Capability("token generator", err)
	}
	if len(tokens) == 0 {
		return nil, false, fault.Capability("token generator", errors.New("no semantic tokens"))
	}
	if !o.cache.Put(job.epoch, key, tokens) {
		o.logger.Debug("segment tokens not cached, segmentation superseded", "segment", job.index)
	}
	return tokens, false, nil
}

func (o *Orchestrator) dump(callID string, index int, samples []float32) error {
	data, err := audio.EncodeWAV(audio.Clip{Samples: samples, SampleRate: o.mctx.SampleRate()})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(o.dumpDir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s-%03d.wav", callID, index)
	return os.WriteFile(filepath.Join(o.dumpDir, name), data, 0o644)
}

func (o *Orchestrator) emit(callID string, s State, segment int) {
	if o.observer != nil {
		o.observer(Event{CallID: callID, State: s, Segment: segment})
	}
}
