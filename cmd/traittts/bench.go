package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-trait-tts/internal/bench"
	"github.com/example/go-trait-tts/internal/traits"
)

func newBenchCmd() *cobra.Command {
	var (
		text         string
		ref          refArgs
		runs         int
		format       string
		freeze       bool
		rtfThreshold float64
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark synthesis latency, realtime factor and segment reuse",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("--text is required for bench")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}
			if err := validateRefArgs(ref); err != nil {
				return err
			}
			refReq, err := buildReference(ref, traits.Library{Dir: cfg.Paths.TraitsDir}, os.Stderr)
			if err != nil {
				return err
			}

			st, err := buildStack(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			req := synthRequest(cfg.Synth, text, refReq)
			req.Freeze = freeze
			results, err := bench.Run(cmd.Context(), st.orch, req, runs)
			if err != nil {
				return err
			}
			stats := bench.ComputeStats(results)

			switch format {
			case "json":
				if err := bench.FormatJSON(results, stats, os.Stdout); err != nil {
					return err
				}
			default:
				bench.FormatTable(results, stats, os.Stdout)
			}

			return bench.CheckRTFThreshold(stats.MeanRTF, rtfThreshold)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to synthesize for each run (required)")
	cmd.Flags().StringVar(&ref.Clip, "ref", "", "Reference clip (WAV or MP3)")
	cmd.Flags().StringVar(&ref.Transcript, "ref-text", "", "Transcript of the reference clip")
	cmd.Flags().StringVar(&ref.Language, "ref-language", "", "Language of the reference transcript")
	cmd.Flags().StringVar(&ref.Character, "character", "", "Character whose trait bundle to use")
	cmd.Flags().StringVar(&ref.Trait, "trait", "", "Trait of the character to use as reference")
	cmd.Flags().IntVar(&ref.TraitIndex, "trait-index", 0, "Which candidate of the trait to use")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of synthesis runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().BoolVar(&freeze, "freeze", false, "Reuse the tokens of earlier runs for unchanged segments")
	cmd.Flags().Float64Var(&rtfThreshold, "rtf-threshold", 0, "Exit non-zero if mean RTF exceeds this value (0 = disabled)")

	return cmd
}
