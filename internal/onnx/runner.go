//go:build !windows && !(js && wasm)

package onnx

import (
	"context"
	"fmt"
	"strings"
	"sync"

	ort "github.com/shota3506/onnxruntime-purego/onnxruntime"
)

// DefaultAPIVersion is the ONNX Runtime C API version requested when none is
// configured.
const DefaultAPIVersion = 23

// RunnerConfig holds ORT library settings for creating runners.
type RunnerConfig struct {
	LibraryPath string
	APIVersion  uint32
}

// ortHost is one loaded runtime library plus its env, shared by every runner
// opened with the same config and released when the last of them closes.
type ortHost struct {
	key     RunnerConfig
	runtime *ort.Runtime
	env     *ort.Env
	refs    int
}

var (
	hostsMu sync.Mutex
	hosts   = map[RunnerConfig]*ortHost{}
)

func acquireHost(cfg RunnerConfig) (*ortHost, error) {
	hostsMu.Lock()
	defer hostsMu.Unlock()

	if h, ok := hosts[cfg]; ok {
		h.refs++
		return h, nil
	}

	rt, err := ort.NewRuntime(cfg.LibraryPath, cfg.APIVersion)
	if err != nil {
		return nil, err
	}
	env, err := rt.NewEnv("traittts", ort.LoggingLevelWarning)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	h := &ortHost{key: cfg, runtime: rt, env: env, refs: 1}
	hosts[cfg] = h
	return h, nil
}

func (h *ortHost) release() {
	hostsMu.Lock()
	defer hostsMu.Unlock()

	h.refs--
	if h.refs > 0 {
		return
	}
	delete(hosts, h.key)
	h.env.Close()
	_ = h.runtime.Close()
}

// Runner executes one graph of a manifest.
type Runner struct {
	name     string
	required []string
	host     *ortHost
	session  *ort.Session
}

// NewRunner loads the graph described by meta.
func NewRunner(meta Session, cfg RunnerConfig) (*Runner, error) {
	if cfg.APIVersion == 0 {
		cfg.APIVersion = DefaultAPIVersion
	}

	host, err := acquireHost(cfg)
	if err != nil {
		return nil, fmt.Errorf("ort runtime for %q: %w", meta.Name, err)
	}
	session, err := host.runtime.NewSession(host.env, meta.Path, nil)
	if err != nil {
		host.release()
		return nil, fmt.Errorf("ort session for %q (%s): %w", meta.Name, meta.Path, err)
	}

	r := &Runner{name: meta.Name, host: host, session: session}
	for _, in := range meta.Inputs {
		r.required = append(r.required, in.Name)
	}
	return r, nil
}

// Run executes the graph with named inputs. Every input the manifest
// declares must be present.
func (r *Runner) Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	if r.session == nil {
		return nil, fmt.Errorf("run %q: runner is closed", r.name)
	}
	if missing := missingInputs(r.required, inputs); len(missing) > 0 {
		return nil, fmt.Errorf("run %q: missing inputs %s", r.name, strings.Join(missing, ", "))
	}

	values := make(map[string]*ort.Value, len(inputs))
	defer closeValues(values)
	for name, t := range inputs {
		v, err := toValue(r.host.runtime, t)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}
		values[name] = v
	}

	outs, err := r.session.Run(ctx, values)
	if err != nil {
		return nil, fmt.Errorf("run %q: %w", r.name, err)
	}
	defer closeValues(outs)

	results := make(map[string]*Tensor, len(outs))
	for name, v := range outs {
		t, err := fromValue(v)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", name, err)
		}
		results[name] = t
	}
	return results, nil
}

// Close releases the session and this runner's hold on the runtime. It is
// safe to call more than once.
func (r *Runner) Close() {
	if r.session != nil {
		r.session.Close()
		r.session = nil
	}
	if r.host != nil {
		r.host.release()
		r.host = nil
	}
}

func (r *Runner) Name() string { return r.name }

func missingInputs(required []string, inputs map[string]*Tensor) []string {
	var missing []string
	for _, name := range required {
		if _, ok := inputs[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func toValue(rt *ort.Runtime, t *Tensor) (*ort.Value, error) {
	switch t.dtype {
	case DTypeFloat32:
		return ort.NewTensorValue(rt, t.f32, t.shape)
	case DTypeInt64:
		return ort.NewTensorValue(rt, t.i64, t.shape)
	}
	return nil, fmt.Errorf("unsupported tensor dtype %q", t.dtype)
}

func fromValue(v *ort.Value) (*Tensor, error) {
	elem, err := v.GetTensorElementType()
	if err != nil {
		return nil, fmt.Errorf("element type: %w", err)
	}
	switch elem {
	case ort.ONNXTensorElementDataTypeFloat:
		data, shape, err := ort.GetTensorData[float32](v)
		if err != nil {
			return nil, err
		}
		return NewTensor(data, shape)
	case ort.ONNXTensorElementDataTypeInt64:
		data, shape, err := ort.GetTensorData[int64](v)
		if err != nil {
			return nil, err
		}
		return NewTensor(data, shape)
	}
	return nil, fmt.Errorf("unsupported ORT element type %d", elem)
}

func closeValues(vals map[string]*ort.Value) {
	for _, v := range vals {
		if v != nil {
			v.Close()
		}
	}
}
