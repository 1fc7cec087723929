// Package doctor provides environment preflight checks for traittts.
package doctor

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/example/go-trait-tts/internal/model"
	"github.com/example/go-trait-tts/internal/traits"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// RuntimeVersion returns the detected ONNX Runtime version.
	RuntimeVersion VersionFunc
	// APIVersion is the C API version the runners request. The runtime's
	// minor version must be at least this.
	APIVersion uint32
	// VerifyGraphs smoke-runs every manifest graph, writing one line per graph.
	VerifyGraphs func(w io.Writer) error
	// SkipGraphs skips the graph check.
	SkipGraphs bool
	// ModelRoles reports which model roles the manifests cannot serve.
	// Nil skips the check.
	ModelRoles func() error
	// GPTSidecar and SoVITSSidecar are the hyperparameter files to load.
	// Empty paths are skipped.
	GPTSidecar    string
	SoVITSSidecar string
	// TraitsDir is the trait library to open. Empty skips the check.
	TraitsDir string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- ONNX Runtime -----------------------------------------------------
	if cfg.RuntimeVersion == nil {
		fmt.Fprintf(w, "%s onnx runtime: skipped\n", PassMark)
	} else {
		ver, err := cfg.RuntimeVersion()
		switch {
		case err != nil:
			res.fail(fmt.Sprintf("onnx runtime: %v", err))
			fmt.Fprintf(w, "%s onnx runtime: not found (%v)\n", FailMark, err)
		case checkRuntimeVersion(ver, cfg.APIVersion) != nil:
			verErr := checkRuntimeVersion(ver, cfg.APIVersion)
			res.fail(fmt.Sprintf("onnx runtime: %v", verErr))
			fmt.Fprintf(w, "%s onnx runtime %s: %v\n", FailMark, ver, verErr)
		default:
			fmt.Fprintf(w, "%s onnx runtime: %s\n", PassMark, ver)
		}
	}

	// ---- model graphs -----------------------------------------------------
	if cfg.SkipGraphs || cfg.VerifyGraphs == nil {
		fmt.Fprintf(w, "%s model graphs: skipped\n", PassMark)
	} else if err := cfg.VerifyGraphs(w); err != nil {
		res.fail(fmt.Sprintf("model graphs: %v", err))
		fmt.Fprintf(w, "%s model graphs: %v\n", FailMark, err)
	} else {
		fmt.Fprintf(w, "%s model graphs: ok\n", PassMark)
	}

	// ---- model roles ------------------------------------------------------
	if cfg.ModelRoles != nil {
		if err := cfg.ModelRoles(); err != nil {
			res.fail(fmt.Sprintf("model roles: %v", err))
			fmt.Fprintf(w, "%s model roles: %v\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s model roles: complete\n", PassMark)
		}
	}

	// ---- hyperparameter sidecars ------------------------------------------
	if cfg.GPTSidecar != "" {
		if c, err := model.LoadGPTConfig(cfg.GPTSidecar); err != nil {
			res.fail(fmt.Sprintf("gpt sidecar %q: %v", cfg.GPTSidecar, err))
			fmt.Fprintf(w, "%s gpt sidecar %s: %v\n", FailMark, cfg.GPTSidecar, err)
		} else {
			fmt.Fprintf(w, "%s gpt sidecar: %s (max_sec %d)\n", PassMark, cfg.GPTSidecar, c.Data.MaxSec)
		}
	}
	if cfg.SoVITSSidecar != "" {
		if c, err := model.LoadSoVITSConfig(cfg.SoVITSSidecar); err != nil {
			res.fail(fmt.Sprintf("sovits sidecar %q: %v", cfg.SoVITSSidecar, err))
			fmt.Fprintf(w, "%s sovits sidecar %s: %v\n", FailMark, cfg.SoVITSSidecar, err)
		} else {
			fmt.Fprintf(w, "%s sovits sidecar: %s (%d Hz, %s)\n", PassMark, cfg.SoVITSSidecar, c.Data.SamplingRate, c.Model.Version)
		}
	}

	// ---- trait library ----------------------------------------------------
	if cfg.TraitsDir != "" {
		checkTraits(cfg.TraitsDir, w, &res)
	}

	return res
}

func checkTraits(dir string, w io.Writer, res *Result) {
	lib := traits.Library{Dir: dir}
	chars, err := lib.Characters()
	if err != nil {
		res.fail(fmt.Sprintf("traits dir %q: %v", dir, err))
		fmt.Fprintf(w, "%s traits dir %s: %v\n", FailMark, dir, err)
		return
	}
	if len(chars) == 0 {
		res.fail(fmt.Sprintf("traits dir %q: no bundles", dir))
		fmt.Fprintf(w, "%s traits dir %s: no bundles\n", FailMark, dir)
		return
	}

	for _, c := range chars {
		b, err := lib.Open(c)
		if err != nil {
			res.fail(fmt.Sprintf("trait bundle %q: %v", c, err))
			fmt.Fprintf(w, "%s trait bundle %s: %v\n", FailMark, c, err)
			continue
		}
		slots := 0
		for _, t := range b.Traits() {
			slots += b.Count(t)
		}
		fmt.Fprintf(w, "%s trait bundle: %s (%d traits, %d slots)\n", PassMark, c, len(b.Traits()), slots)
		b.Close()
	}
}

// checkRuntimeVersion returns an error if ver is not a 1.x release whose
// minor version reaches apiVersion. An undetectable version passes.
func checkRuntimeVersion(ver string, apiVersion uint32) error {
	if ver == "" || ver == "unknown" {
		return nil
	}
	major, minor, err := parseMajorMinor(ver)
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}
	if major != 1 {
		return fmt.Errorf("requires ONNX Runtime 1.x, got %d", major)
	}
	if apiVersion > 0 && minor < int(apiVersion) {
		return fmt.Errorf("API version %d requires ONNX Runtime >=1.%d, got 1.%d", apiVersion, apiVersion, minor)
	}
	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}
	return major, minor, nil
}
