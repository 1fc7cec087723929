package onnx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/example/go-trait-tts/internal/config"
)

// LibraryEnv is the process-local variable holding the detected ORT library.
const LibraryEnv = "TRAITTTS_ORT_LIB"

// RuntimeInfo describes the resolved ORT library. Source names the resolver
// that produced LibraryPath.
type RuntimeInfo struct {
	LibraryPath string
	Version     string
	Source      string
	Initialized bool
}

var versionPattern = regexp.MustCompile(`([0-9]+\.[0-9]+\.[0-9]+)`)

var (
	bootstrapOnce sync.Once
	bootstrapInfo RuntimeInfo
	bootstrapErr  error
)

// Bootstrap detects the runtime once per process and exports its path in
// LibraryEnv so that later engines, verify runs and child tools agree on the
// library.
func Bootstrap(cfg config.RuntimeConfig) (RuntimeInfo, error) {
	bootstrapOnce.Do(func() {
		info, err := DetectRuntime(cfg)
		if err != nil {
			bootstrapErr = err
			return
		}
		if err := os.Setenv(LibraryEnv, info.LibraryPath); err != nil {
			bootstrapErr = fmt.Errorf("set %s: %w", LibraryEnv, err)
			return
		}
		bootstrapInfo = info
		bootstrapInfo.Initialized = true
	})

	if bootstrapErr != nil {
		return RuntimeInfo{}, bootstrapErr
	}
	return bootstrapInfo, nil
}

type libraryResolver struct {
	source  string
	resolve func(config.RuntimeConfig) string
}

func fromEnv(name string) func(config.RuntimeConfig) string {
	return func(config.RuntimeConfig) string { return os.Getenv(name) }
}

// libraryCandidates are probed when neither config nor environment names a
// library.
var libraryCandidates = []string{
	"/usr/lib/libonnxruntime.so",
	"/usr/local/lib/libonnxruntime.so",
	"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
	"/opt/homebrew/lib/libonnxruntime.dylib",
	"C:/onnxruntime/lib/onnxruntime.dll",
}

// libraryResolvers run in order. The first non-empty answer wins even if the
// file is missing.
var libraryResolvers = []libraryResolver{
	{"config", func(c config.RuntimeConfig) string { return c.ORTLibraryPath }},
	{LibraryEnv, fromEnv(LibraryEnv)},
	{"ORT_LIBRARY_PATH", fromEnv("ORT_LIBRARY_PATH")},
	{"system", func(config.RuntimeConfig) string {
		for _, c := range libraryCandidates {
			if _, err := os.Stat(c); err == nil {
				return c
			}
		}
		return ""
	}},
}

// DetectRuntime resolves the ORT shared library and its version.
func DetectRuntime(cfg config.RuntimeConfig) (RuntimeInfo, error) {
	info := RuntimeInfo{LibraryPath: "not found", Version: "unknown"}
	for _, r := range libraryResolvers {
		if p := r.resolve(cfg); p != "" {
			info.LibraryPath, info.Source = p, r.source
			break
		}
	}
	if info.Source == "" {
		return info, errors.New("unable to detect ONNX Runtime library path")
	}
	if _, err := os.Stat(info.LibraryPath); err != nil {
		return info, fmt.Errorf("onnx runtime library from %s: %w", info.Source, err)
	}

	switch {
	case cfg.ORTVersion != "":
		info.Version = cfg.ORTVersion
	case os.Getenv("ORT_VERSION") != "":
		info.Version = os.Getenv("ORT_VERSION")
	default:
		if v := inferVersionFromPath(info.LibraryPath); v != "" {
			info.Version = v
		}
	}
	return info, nil
}

func inferVersionFromPath(path string) string {
	if m := versionPattern.FindStringSubmatch(filepath.Base(path)); len(m) == 2 {
		return m[1]
	}
	return ""
}

// Role is one of the model components a synthesis stack is assembled from.
type Role string

const (
	// RoleGPT is the autoregressive semantic token generator.
	RoleGPT Role = "gpt"
	// RoleSoVITS covers the reference quantizer, spectrogram, timbre
	// encoder and vocoder of the SoVITS export.
	RoleSoVITS Role = "sovits"
	// RoleSSL is the self-supervised acoustic encoder.
	RoleSSL Role = "ssl"
	// RoleBERT is the Chinese feature model and its vocabulary.
	RoleBERT Role = "bert"
)

// Roles lists every role in load order.
var Roles = []Role{RoleSSL, RoleBERT, RoleGPT, RoleSoVITS}

var roleGraphs = map[Role][]string{
	RoleGPT:    {GraphT2SPrefill, GraphT2SStep},
	RoleSoVITS: {GraphQuantizer, GraphSpectrogram, GraphRefEncoder, GraphVocoder},
	RoleSSL:    {GraphSSLEncoder},
	RoleBERT:   {GraphFeatures},
}

// Capabilities records which graphs each role is missing. A role with no
// entry is complete.
type Capabilities struct {
	missing map[Role][]string
}

func probe(has func(graph string) bool, vocab bool) Capabilities {
	c := Capabilities{missing: make(map[Role][]string)}
	for _, role := range Roles {
		for _, g := range roleGraphs[role] {
			if !has(g) {
				c.missing[role] = append(c.missing[role], g)
			}
		}
	}
	if !vocab {
		c.missing[RoleBERT] = append(c.missing[RoleBERT], AssetVocab)
	}
	return c
}

// ProbeManifest reports the roles the graphs and assets of m can serve.
func ProbeManifest(m *Manifest) Capabilities {
	_, vocab := m.Asset(AssetVocab)
	return probe(func(g string) bool {
		_, ok := m.Session(g)
		return ok
	}, vocab)
}

// Capabilities reports the roles the loaded runners can serve.
func (e *Engine) Capabilities() Capabilities {
	return probe(e.Has, e.vocab != nil)
}

// Has reports whether every graph of role is available.
func (c Capabilities) Has(role Role) bool { return len(c.missing[role]) == 0 }

// Missing returns the graphs and assets role lacks.
func (c Capabilities) Missing(role Role) []string { return slices.Clone(c.missing[role]) }

// Require returns an error naming every missing piece of the given roles.
func (c Capabilities) Require(roles ...Role) error {
	var parts []string
	for _, r := range roles {
		if m := c.missing[r]; len(m) > 0 {
			parts = append(parts, fmt.Sprintf("%s (%s)", r, strings.Join(m, ", ")))
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return fmt.Errorf("model roles incomplete: %s", strings.Join(parts, "; "))
}
