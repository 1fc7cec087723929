package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-trait-tts/internal/lang"
	"github.com/example/go-trait-tts/internal/reference"
	"github.com/example/go-trait-tts/internal/traits"
)

func newPrecomputeCmd() *cobra.Command {
	var corpusDir string
	var outDir string
	var characters []string
	var quota int
	var language string

	cmd := &cobra.Command{
		Use:   "precompute",
		Short: "Build per-character trait bundles from a sliced-dialog corpus",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if corpusDir == "" {
				return fmt.Errorf("--corpus is required")
			}
			if outDir == "" {
				outDir = cfg.Paths.TraitsDir
			}
			tag := lang.ParseTag(language)
			if !tag.Valid() {
				return fmt.Errorf("unknown --ref-language %q", language)
			}
			selected, err := parseCharacters(characters)
			if err != nil {
				return err
			}

			st, err := buildStack(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			opts := []traits.PrecomputeOption{
				traits.WithLanguage(tag),
				traits.WithQuota(quota),
				traits.WithPrecomputeLogger(slog.Default()),
			}
			if len(selected) > 0 {
				opts = append(opts, traits.WithCharacters(selected...))
			}
			p := traits.NewPrecomputer(reference.SlotConditioner{Conditioner: st.cond, Language: tag}, opts...)

			report, err := p.Run(cmd.Context(), corpusDir, outDir)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(os.Stdout, "clips: %d, skipped: %d, slots: %d, bundles: %d\n",
				report.Clips, report.Skipped, report.Slots, len(report.Bundles))
			return err
		},
	}

	cmd.Flags().StringVar(&corpusDir, "corpus", "", "Sliced-dialog corpus directory")
	cmd.Flags().StringVar(&outDir, "out", "", "Output trait library (default: configured traits dir)")
	cmd.Flags().StringArrayVar(&characters, "character", nil, "Restrict to this character (repeatable)")
	cmd.Flags().IntVar(&quota, "quota", traits.DefaultQuota, "Clips selected per trait")
	cmd.Flags().StringVar(&language, "ref-language", string(lang.English), "Language of the corpus transcripts")

	return cmd
}

func parseCharacters(names []string) ([]traits.Character, error) {
	out := make([]traits.Character, 0, len(names))
	for _, n := range names {
		c, ok := traits.ParseCharacter(n)
		if !ok {
			return nil, fmt.Errorf("unknown character %q", n)
		}
		out = append(out, c)
	}
	return out, nil
}
