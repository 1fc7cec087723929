//go:build windows || (js && wasm)

package onnx

import (
	"context"
	"fmt"
)

const DefaultAPIVersion = 23

// RunnerConfig holds ORT library settings for creating runners.
type RunnerConfig struct {
	LibraryPath string
	APIVersion  uint32
}

// Runner is unavailable on this platform. Engines can still be built from
// custom GraphRunner implementations.
type Runner struct {
	name string
}

func NewRunner(meta Session, _ RunnerConfig) (*Runner, error) {
	return nil, fmt.Errorf("native onnx runner is unavailable on this platform for graph %q", meta.Name)
}

func (r *Runner) Run(_ context.Context, _ map[string]*Tensor) (map[string]*Tensor, error) {
	return nil, fmt.Errorf("native onnx runner is unavailable on this platform for graph %q", r.name)
}

func (r *Runner) Close() {}

func (r *Runner) Name() string {
	return r.name
}
