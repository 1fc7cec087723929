// Package model holds the typed hyperparameters of the token generator and
// vocoder families and the record of which weights are current.
package model

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// GPTConfig is the token generator's hyperparameter sidecar.
type GPTConfig struct {
	Data  GPTData  `mapstructure:"data"`
	Model GPTModel `mapstructure:"model"`
}

type GPTData struct {
	MaxSec int `mapstructure:"max_sec"`
}

type GPTModel struct {
	VocabSize        int `mapstructure:"vocab_size"`
	PhonemeVocabSize int `mapstructure:"phoneme_vocab_size"`
	EOS              int `mapstructure:"eos"`
	HiddenDim        int `mapstructure:"hidden_dim"`
	Layers           int `mapstructure:"n_layer"`
	Heads            int `mapstructure:"head"`
}

// Validate checks the fields synthesis depends on.
func (c GPTConfig) Validate() error {
	if c.Data.MaxSec <= 0 {
		return fmt.Errorf("gpt config: data.max_sec must be > 0, got %d", c.Data.MaxSec)
	}
	if c.Model.VocabSize < 0 || c.Model.PhonemeVocabSize < 0 {
		return fmt.Errorf("gpt config: vocab sizes must not be negative")
	}
	if c.Model.VocabSize > 0 && (c.Model.EOS < 0 || c.Model.EOS >= c.Model.VocabSize) {
		return fmt.Errorf("gpt config: model.eos %d outside vocab of %d", c.Model.EOS, c.Model.VocabSize)
	}
	return nil
}

// SoVITSConfig is the vocoder's hyperparameter sidecar.
type SoVITSConfig struct {
	Data  SoVITSData  `mapstructure:"data"`
	Train SoVITSTrain `mapstructure:"train"`
	Model SoVITSModel `mapstructure:"model"`
}

type SoVITSData struct {
	SamplingRate int `mapstructure:"sampling_rate"`
	FilterLength int `mapstructure:"filter_length"`
	HopLength    int `mapstructure:"hop_length"`
	WinLength    int `mapstructure:"win_length"`
	Speakers     int `mapstructure:"n_speakers"`
}

type SoVITSTrain struct {
	SegmentSize int `mapstructure:"segment_size"`
}

type SoVITSModel struct {
	Version           string `mapstructure:"version"`
	SemanticFrameRate string `mapstructure:"semantic_frame_rate"`
}

const (
	VersionV1 = "v1"
	VersionV2 = "v2"
)

func (c *SoVITSConfig) applyDefaults() {
	if c.Model.Version == "" {
		c.Model.Version = VersionV2
	}
	if c.Model.SemanticFrameRate == "" {
		c.Model.SemanticFrameRate = "25hz"
	}
	if c.Data.WinLength == 0 {
		c.Data.WinLength = c.Data.FilterLength
	}
}

// Validate checks the fields synthesis depends on.
func (c SoVITSConfig) Validate() error {
	var problems []string
	if c.Data.SamplingRate <= 0 {
		problems = append(problems, fmt.Sprintf("data.sampling_rate must be > 0, got %d", c.Data.SamplingRate))
	}
	if c.Data.FilterLength <= 0 {
		problems = append(problems, fmt.Sprintf("data.filter_length must be > 0, got %d", c.Data.FilterLength))
	}
	if c.Data.HopLength <= 0 {
		problems = append(problems, fmt.Sprintf("data.hop_length must be > 0, got %d", c.Data.HopLength))
	}
	if c.Data.WinLength > c.Data.FilterLength {
		problems = append(problems, fmt.Sprintf("data.win_length %d exceeds filter_length %d", c.Data.WinLength, c.Data.FilterLength))
	}
	if c.Model.Version != VersionV1 && c.Model.Version != VersionV2 {
		problems = append(problems, fmt.Sprintf("model.version %q is not v1 or v2", c.Model.Version))
	}
	if len(problems) > 0 {
		return fmt.Errorf("sovits config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// SpecChannels returns the number of linear spectrogram bins.
func (c SoVITSConfig) SpecChannels() int { return c.Data.FilterLength/2 + 1 }

// LoadGPTConfig reads a YAML or JSON sidecar.
func LoadGPTConfig(path string) (GPTConfig, error) {
	var cfg GPTConfig
	if err := decodeSidecar(path, &cfg); err != nil {
		return GPTConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return GPTConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadSoVITSConfig reads a YAML or JSON sidecar.
func LoadSoVITSConfig(path string) (SoVITSConfig, error) {
	var cfg SoVITSConfig
	if err := decodeSidecar(path, &cfg); err != nil {
		return SoVITSConfig{}, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return SoVITSConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// decodeSidecar parses YAML (JSON being a subset) into a generic map and
// decodes it into out. Sidecars dumped from a checkpoint nest everything
// under "config"; that level is unwrapped.
func decodeSidecar(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read model sidecar: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse model sidecar %s: %w", path, err)
	}
	if inner, ok := raw["config"].(map[string]any); ok {
		raw = inner
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           out,
		WeaklyTypedInput: true,
		MatchName: func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		},
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("decode model sidecar %s: %w", path, err)
	}
	return nil
}

func normalizeKey(value string) string {
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "_", "")
	value = strings.ReplaceAll(value, "-", "")
	return value
}
