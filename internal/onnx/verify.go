package onnx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/example/go-trait-tts/internal/config"
)

type VerifyOptions struct {
	ManifestPaths []string
	Runtime       config.RuntimeConfig
	Stdout        io.Writer
	Stderr        io.Writer
}

// openRunner is swapped in tests.
var openRunner = func(s Session, cfg RunnerConfig) (GraphRunner, error) {
	return NewRunner(s, cfg)
}

// Verify loads every graph listed in the manifests and runs it once on zero
// inputs built from the declared node shapes. It prints one PASS or FAIL line
// per graph.
func Verify(ctx context.Context, opts VerifyOptions) error {
	if len(opts.ManifestPaths) == 0 {
		return errors.New("manifest path is required")
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}

	m, err := LoadManifest(opts.ManifestPaths...)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	for _, session := range m.Sessions() {
		for _, input := range session.Inputs {
			if _, err := NewZeroTensor(input.DType, input.Shape); err != nil {
				return fmt.Errorf("session %q input %q invalid: %w", session.Name, input.Name, err)
			}
		}
	}

	info, err := Bootstrap(opts.Runtime)
	if err != nil {
		return fmt.Errorf("bootstrap onnx runtime: %w", err)
	}
	rcfg := RunnerConfig{LibraryPath: info.LibraryPath, APIVersion: opts.Runtime.ORTAPIVersion}

	var failures []string
	for _, session := range m.Sessions() {
		if err := runSessionSmoke(ctx, session, rcfg); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "FAIL %s: %v\n", session.Name, err)
			failures = append(failures, session.Name)
			continue
		}
		_, _ = fmt.Fprintf(opts.Stdout, "PASS %s\n", session.Name)
	}

	if len(failures) > 0 {
		return fmt.Errorf("verify failed for %d session(s): %s", len(failures), strings.Join(failures, ", "))
	}
	return nil
}

func runSessionSmoke(ctx context.Context, session Session, cfg RunnerConfig) error {
	r, err := openRunner(session, cfg)
	if err != nil {
		return fmt.Errorf("load session model: %w", err)
	}
	defer r.Close()

	inputs := make(map[string]*Tensor, len(session.Inputs))
	for _, input := range session.Inputs {
		t, err := NewZeroTensor(input.DType, input.Shape)
		if err != nil {
			return fmt.Errorf("build input %q tensor: %w", input.Name, err)
		}
		inputs[input.Name] = t
	}

	outs, err := r.Run(ctx, inputs)
	if err != nil {
		return fmt.Errorf("run inference: %w", err)
	}
	for _, out := range session.Outputs {
		if _, ok := outs[out.Name]; !ok {
			return fmt.Errorf("declared output %q not produced", out.Name)
		}
	}
	return nil
}
