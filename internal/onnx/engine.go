package onnx

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/example/go-trait-tts/internal/config"
)

// Graph names expected in the manifests.
const (
	GraphSSLEncoder  = "ssl_encoder"
	GraphQuantizer   = "vq_encoder"
	GraphSpectrogram = "spectrogram"
	GraphRefEncoder  = "ref_encoder"
	GraphFeatures    = "bert"
	GraphT2SPrefill  = "t2s_prefill"
	GraphT2SStep     = "t2s_step"
	GraphVocoder     = "vocoder"
)

// AssetVocab names the feature model's vocabulary in a manifest's assets.
const AssetVocab = "bert_vocab"

// GraphRunner is the minimal runner contract the engine needs. Tests and
// alternate runtimes supply their own.
type GraphRunner interface {
	Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error)
	Name() string
	Close()
}

// Engine adapts a set of graphs to the synthesis capabilities: acoustic
// encoder, token quantizer, spectrogram extractor, embedding aggregator,
// feature extractor, token generator and vocoder.
type Engine struct {
	runners map[string]GraphRunner
	vocab   *Vocab
	eos     int64
	logger  *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

type EngineOption func(*Engine)

// WithEOS sets the end-of-sequence token of the token generator.
func WithEOS(id int64) EngineOption {
	return func(e *Engine) { e.eos = id }
}

// WithSeed makes token sampling deterministic.
func WithSeed(seed uint64) EngineOption {
	return func(e *Engine) { e.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithVocab sets the feature model vocabulary.
func WithVocab(v *Vocab) EngineOption {
	return func(e *Engine) { e.vocab = v }
}

func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine opens a runner for every graph in m. The vocabulary asset, when
// listed, is loaded unless WithVocab supplied one.
func NewEngine(cfg config.RuntimeConfig, m *Manifest, opts ...EngineOption) (*Engine, error) {
	info, err := Bootstrap(cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap onnx runtime: %w", err)
	}

	runners := make(map[string]GraphRunner)
	for _, s := range m.Sessions() {
		r, err := NewRunner(s, RunnerConfig{LibraryPath: info.LibraryPath, APIVersion: cfg.ORTAPIVersion})
		if err != nil {
			for _, opened := range runners {
				opened.Close()
			}
			return nil, err
		}
		runners[s.Name] = r
	}

	e := NewEngineWithRunners(runners, opts...)
	if e.vocab == nil {
		if path, ok := m.Asset(AssetVocab); ok {
			v, err := LoadVocab(path)
			if err != nil {
				e.Close()
				return nil, err
			}
			e.vocab = v
		}
	}
	caps := e.Capabilities()
	for _, role := range Roles {
		if !caps.Has(role) {
			e.logger.Warn("model role incomplete", "role", string(role), "missing", caps.Missing(role))
		}
	}
	e.logger.Debug("onnx engine ready", "library", info.LibraryPath, "source", info.Source, "version", info.Version)
	return e, nil
}

// NewEngineWithRunners builds an Engine from externally provided runners.
func NewEngineWithRunners(runners map[string]GraphRunner, opts ...EngineOption) *Engine {
	e := &Engine{
		runners: maps.Clone(runners),
		eos:     DefaultEOS,
		logger:  slog.Default(),
	}
	if e.runners == nil {
		e.runners = make(map[string]GraphRunner)
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		seed := uint64(time.Now().UnixNano())
		e.rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return e
}

// Has reports whether the named graph is loaded.
func (e *Engine) Has(graph string) bool {
	_, ok := e.runners[graph]
	return ok
}

// Close releases every runner.
func (e *Engine) Close() {
	for _, r := range e.runners {
		r.Close()
	}
}

func (e *Engine) run(ctx context.Context, graph string, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	r, ok := e.runners[graph]
	if !ok {
		return nil, fmt.Errorf("%s graph not found in manifest", graph)
	}
	outs, err := r.Run(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", graph, err)
	}
	return outs, nil
}

func output(outs map[string]*Tensor, graph, name string) (*Tensor, error) {
	t, ok := outs[name]
	if !ok || t == nil {
		return nil, fmt.Errorf("%s: missing %q in output", graph, name)
	}
	return t, nil
}
