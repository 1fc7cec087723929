package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/go-trait-tts/internal/config"
	"github.com/example/go-trait-tts/internal/g2p"
	"github.com/example/go-trait-tts/internal/lang"
	"github.com/example/go-trait-tts/internal/model"
	"github.com/example/go-trait-tts/internal/onnx"
	"github.com/example/go-trait-tts/internal/reference"
	"github.com/example/go-trait-tts/internal/synth"
)

// stack is the assembled synthesis pipeline of one process.
type stack struct {
	mctx   model.Context
	engine *onnx.Engine
	router *lang.Router
	cond   *reference.Conditioner
	orch   *synth.Orchestrator
}

func (s *stack) Close() {
	if s.engine != nil {
		s.engine.Close()
	}
}

// weightPaths resolves the token generator and vocoder exports. Explicit
// config wins; otherwise the current selection for the model version is
// read from the weights registry.
func weightPaths(ctx context.Context, cfg config.Config) (gpt, sovits string, err error) {
	gpt, sovits = cfg.Paths.GPT, cfg.Paths.SoVITS
	if gpt != "" && sovits != "" {
		return gpt, sovits, nil
	}

	reg, err := model.OpenRegistry(cfg.Paths.WeightsDB)
	if err != nil {
		return "", "", err
	}
	defer reg.Close()

	resolve := func(family, explicit string) (string, error) {
		if explicit != "" {
			return explicit, nil
		}
		sel, err := reg.Current(ctx, family, cfg.Paths.Version)
		if errors.Is(err, model.ErrNoSelection) {
			return "", fmt.Errorf("%w; pass --%s or run 'traittts weights select %s PATH'", err, flagForFamily(family), family)
		}
		if err != nil {
			return "", err
		}
		if ok, verr := sel.Verify(); verr != nil || !ok {
			slog.Warn("selected weights changed since selection", "family", family, "path", sel.Path, "error", verr)
		}
		return sel.Path, nil
	}

	if gpt, err = resolve(model.FamilyGPT, gpt); err != nil {
		return "", "", err
	}
	if sovits, err = resolve(model.FamilySoVITS, sovits); err != nil {
		return "", "", err
	}
	return gpt, sovits, nil
}

func flagForFamily(family string) string {
	if family == model.FamilyGPT {
		return "gpt"
	}
	return "sovits"
}

// buildStack loads the model context and graphs and wires the conditioner,
// router and orchestrator around one engine.
func buildStack(ctx context.Context, cfg config.Config, opts ...synth.Option) (*stack, error) {
	gptPath, sovitsPath, err := weightPaths(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mctx, err := model.LoadContext(model.SidecarPath(gptPath), model.SidecarPath(sovitsPath))
	if err != nil {
		return nil, fmt.Errorf("load model context: %w", err)
	}

	manifest, err := onnx.LoadManifest(cfg.Paths.Manifest, gptPath, sovitsPath)
	if err != nil {
		return nil, err
	}

	engineOpts := []onnx.EngineOption{onnx.WithEngineLogger(slog.Default())}
	if mctx.GPT.Model.VocabSize > 0 {
		engineOpts = append(engineOpts, onnx.WithEOS(int64(mctx.GPT.Model.EOS)))
	}
	engine, err := onnx.NewEngine(cfg.Runtime, manifest, engineOpts...)
	if err != nil {
		return nil, err
	}
	if err := engine.Capabilities().Require(onnx.RoleSSL, onnx.RoleGPT, onnx.RoleSoVITS); err != nil {
		engine.Close()
		return nil, err
	}

	mode, ok := synth.ParseCacheMode(cfg.Synth.CacheMode)
	if !ok {
		engine.Close()
		return nil, fmt.Errorf("unknown cache mode %q (want positional|fingerprint)", cfg.Synth.CacheMode)
	}

	router := lang.NewRouter(g2p.NewRegistry(), engine, lang.WithRouterLogger(slog.Default()))
	cond := reference.NewConditioner(router, reference.Capabilities{
		Encoder:     engine,
		Quantizer:   engine,
		Spectrogram: engine,
		Aggregator:  engine,
	}, mctx.SampleRate(), reference.WithLogger(slog.Default()))

	base := []synth.Option{
		synth.WithCache(synth.NewSegmentCache(mode)),
		synth.WithParallelism(cfg.Synth.Parallelism),
		synth.WithLogger(slog.Default()),
	}
	orch := synth.NewOrchestrator(mctx, cond, router, engine, engine, append(base, opts...)...)

	slog.Info("synthesis stack ready",
		"gpt", gptPath,
		"sovits", sovitsPath,
		"sample_rate", mctx.SampleRate(),
		"version", mctx.Version(),
		"cache_mode", mode.String(),
	)

	return &stack{mctx: mctx, engine: engine, router: router, cond: cond, orch: orch}, nil
}
