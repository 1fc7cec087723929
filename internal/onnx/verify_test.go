package onnx

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/example/go-trait-tts/internal/config"
)

func stubOpenRunner(t *testing.T, fn func(Session, RunnerConfig) (GraphRunner, error)) {
	t.Helper()
	prev := openRunner
	openRunner = fn
	t.Cleanup(func() { openRunner = prev })
}

const verifyManifest = `{
  "graphs": [
    {"name": "vocoder", "filename": "vocoder.onnx",
     "inputs": [{"name": "codes", "dtype": "int64", "shape": [1, 1, "T"]}],
     "outputs": [{"name": "audio", "dtype": "float", "shape": [1, 1, "N"]}]},
    {"name": "bert", "filename": "bert.onnx",
     "inputs": [{"name": "input_ids", "dtype": "int64", "shape": [1, "L"]}],
     "outputs": [{"name": "hidden", "dtype": "float", "shape": [1, "L", 4]}]}
  ]
}`

func TestVerifyReportsPerGraph(t *testing.T) {
	resetRuntimeStateForTest(t)
	lib := writeFakeLib(t, "libonnxruntime.so")
	manifest := writeManifest(t, t.TempDir(), "manifest.json", verifyManifest, "vocoder.onnx", "bert.onnx")

	var gotLib string
	stubOpenRunner(t, func(s Session, cfg RunnerConfig) (GraphRunner, error) {
		gotLib = cfg.LibraryPath
		return &fakeRunner{name: s.Name, fn: func(_ context.Context, in map[string]*Tensor) (map[string]*Tensor, error) {
			if s.Name == GraphFeatures {
				return nil, errors.New("bad graph")
			}
			if shape := in["codes"].Shape(); len(shape) != 3 || shape[2] != 1 {
				t.Errorf("codes shape = %v", shape)
			}
			return map[string]*Tensor{"audio": Scalar1(float32(0))}, nil
		}}, nil
	})

	var stdout, stderr bytes.Buffer
	err := Verify(context.Background(), VerifyOptions{
		ManifestPaths: []string{manifest},
		Runtime:       config.RuntimeConfig{ORTLibraryPath: lib},
		Stdout:        &stdout,
		Stderr:        &stderr,
	})
	if err == nil || !strings.Contains(err.Error(), "1 session(s): bert") {
		t.Fatalf("err = %v", err)
	}
	if gotLib != lib {
		t.Fatalf("runner library = %q", gotLib)
	}
	if !strings.Contains(stdout.String(), "PASS vocoder") {
		t.Fatalf("stdout = %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "FAIL bert: run inference: bad graph") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestVerifyMissingOutput(t *testing.T) {
	resetRuntimeStateForTest(t)
	lib := writeFakeLib(t, "libonnxruntime.so")
	manifest := writeManifest(t, t.TempDir(), "manifest.json",
		`{"graphs": [{"name": "vocoder", "filename": "v.onnx", "outputs": [{"name": "audio", "dtype": "float", "shape": [1]}]}]}`,
		"v.onnx")

	stubOpenRunner(t, func(s Session, _ RunnerConfig) (GraphRunner, error) {
		return &fakeRunner{name: s.Name, fn: func(context.Context, map[string]*Tensor) (map[string]*Tensor, error) {
			return map[string]*Tensor{}, nil
		}}, nil
	})

	var stderr bytes.Buffer
	err := Verify(context.Background(), VerifyOptions{
		ManifestPaths: []string{manifest},
		Runtime:       config.RuntimeConfig{ORTLibraryPath: lib},
		Stderr:        &stderr,
	})
	if err == nil || !strings.Contains(stderr.String(), `declared output "audio" not produced`) {
		t.Fatalf("err = %v, stderr = %q", err, stderr.String())
	}
}

func TestVerifyInvalidInputShape(t *testing.T) {
	manifest := writeManifest(t, t.TempDir(), "manifest.json",
		`{"graphs": [{"name": "vocoder", "filename": "v.onnx", "inputs": [{"name": "x", "dtype": "float16", "shape": [1]}]}]}`,
		"v.onnx")

	err := Verify(context.Background(), VerifyOptions{ManifestPaths: []string{manifest}})
	if err == nil || !strings.Contains(err.Error(), `input "x" invalid`) {
		t.Fatalf("err = %v", err)
	}
}

func TestVerifyRequiresManifest(t *testing.T) {
	if err := Verify(context.Background(), VerifyOptions{}); err == nil {
		t.Fatal("expected error without manifest")
	}
}
