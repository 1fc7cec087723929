package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-trait-tts/internal/config"
	"github.com/example/go-trait-tts/internal/doctor"
	"github.com/example/go-trait-tts/internal/model"
	"github.com/example/go-trait-tts/internal/onnx"
)

func newDoctorCmd() *cobra.Command {
	var skipGraphs bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local runtime, model and trait library checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			dcfg, weightsErr := doctorConfig(cmd.Context(), cfg, skipGraphs, os.Stderr)
			result := doctor.Run(dcfg, os.Stdout)
			if weightsErr != nil {
				result.AddFailure(fmt.Sprintf("weights: %v", weightsErr))
				_, _ = fmt.Fprintf(os.Stdout, "%s weights: %v\n", doctor.FailMark, weightsErr)
			}

			if result.Failed() {
				for _, f := range result.Failures() {
					// #nosec G705 -- Writes plain diagnostic text to stderr for CLI output, not HTML rendering.
					fmt.Fprintf(os.Stderr, "FAIL: %s\n", f)
				}
				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(os.Stdout, "doctor checks passed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipGraphs, "skip-graphs", false, "Skip the graph smoke run")

	return cmd
}

// doctorConfig maps the loaded configuration onto doctor checks. Graphs and
// sidecars are only checked for the weights that resolve; the resolution
// error is returned separately.
func doctorConfig(ctx context.Context, cfg config.Config, skipGraphs bool, stderr io.Writer) (doctor.Config, error) {
	dcfg := doctor.Config{
		RuntimeVersion: func() (string, error) {
			info, err := onnx.DetectRuntime(cfg.Runtime)
			return info.Version, err
		},
		APIVersion: cfg.Runtime.ORTAPIVersion,
		SkipGraphs: skipGraphs,
		TraitsDir:  cfg.Paths.TraitsDir,
	}

	manifests := []string{cfg.Paths.Manifest}
	gpt, sovits, err := weightPaths(ctx, cfg)
	if err == nil {
		dcfg.GPTSidecar = model.SidecarPath(gpt)
		dcfg.SoVITSSidecar = model.SidecarPath(sovits)
		manifests = append(manifests, gpt, sovits)
	}

	if _, statErr := os.Stat(cfg.Paths.Manifest); statErr != nil {
		dcfg.SkipGraphs = true
	} else {
		dcfg.ModelRoles = func() error {
			m, err := onnx.LoadManifest(manifests...)
			if err != nil {
				return err
			}
			return onnx.ProbeManifest(m).Require(onnx.Roles...)
		}
	}
	dcfg.VerifyGraphs = func(w io.Writer) error {
		return onnx.Verify(ctx, onnx.VerifyOptions{
			ManifestPaths: manifests,
			Runtime:       cfg.Runtime,
			Stdout:        w,
			Stderr:        stderr,
		})
	}
	return dcfg, err
}
