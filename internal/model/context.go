package model

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

// FrameRate is the semantic token rate of the token generator, in Hz.
const FrameRate = 50

// Context is the loaded pair of model families a synthesis call runs
// against. It is built once by the host and passed to every call.
type Context struct {
	GPTPath    string
	SoVITSPath string
	GPT        GPTConfig
	SoVITS     SoVITSConfig
}

// LoadContext reads both hyperparameter sidecars.
func LoadContext(gptSidecar, sovitsSidecar string) (Context, error) {
	gpt, err := LoadGPTConfig(gptSidecar)
	if err != nil {
		return Context{}, err
	}
	sovits, err := LoadSoVITSConfig(sovitsSidecar)
	if err != nil {
		return Context{}, err
	}
	return Context{GPTPath: gptSidecar, SoVITSPath: sovitsSidecar, GPT: gpt, SoVITS: sovits}, nil
}

// EarlyStop is the token budget of one generation: FrameRate × max_sec.
func (c Context) EarlyStop() int { return FrameRate * c.GPT.Data.MaxSec }

// SampleRate is the vocoder output rate.
func (c Context) SampleRate() int { return c.SoVITS.Data.SamplingRate }

// Version is the vocoder family version.
func (c Context) Version() string { return c.SoVITS.Model.Version }

func (c Context) Validate() error {
	if err := c.GPT.Validate(); err != nil {
		return err
	}
	return c.SoVITS.Validate()
}

// SidecarPath returns the hyperparameter sidecar that sits next to a
// weights file: "weights/s1.onnx" pairs with "weights/s1.yaml".
func SidecarPath(weightsPath string) string {
	return strings.TrimSuffix(weightsPath, filepath.Ext(weightsPath)) + ".yaml"
}

// Sampling holds the token generator's sampling parameters. Temperature 0
// selects greedy decoding and TopP 0 disables nucleus filtering, as TopP 1
// does.
type Sampling struct {
	TopK        int
	TopP        float64
	Temperature float64
	EarlyStop   int
}

func (s Sampling) Validate() error {
	if s.TopK < 1 {
		return fmt.Errorf("top_k must be >= 1, got %d", s.TopK)
	}
	if s.TopP < 0 || s.TopP > 1 || math.IsNaN(s.TopP) {
		return fmt.Errorf("top_p must be in [0, 1], got %v", s.TopP)
	}
	if s.Temperature < 0 || math.IsNaN(s.Temperature) || math.IsInf(s.Temperature, 1) {
		return fmt.Errorf("temperature must be finite and >= 0, got %v", s.Temperature)
	}
	if s.EarlyStop < 1 {
		return fmt.Errorf("early stop budget must be >= 1, got %d", s.EarlyStop)
	}
	return nil
}

// Greedy reports whether every step takes the most likely token.
func (s Sampling) Greedy() bool { return s.Temperature == 0 || s.TopK == 1 }
