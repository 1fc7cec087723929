package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/go-trait-tts/internal/traits"
)

func newTraitsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "traits [character...]",
		Short: "List the characters and traits of the trait library",
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			return listTraits(traits.Library{Dir: cfg.Paths.TraitsDir}, args, os.Stdout)
		},
	}
	return cmd
}

// listTraits prints one row per (character, trait) with the candidate count.
// With no characters given, every bundle in the library is listed.
func listTraits(lib traits.Library, characters []string, w io.Writer) error {
	if len(characters) == 0 {
		var err error
		if characters, err = lib.Characters(); err != nil {
			return err
		}
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "CHARACTER\tLANGUAGE\tTRAIT\tCANDIDATES")
	for _, c := range characters {
		b, err := lib.Open(c)
		if err != nil {
			return fmt.Errorf("open traits of %q: %w", c, err)
		}
		for _, t := range b.Traits() {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", c, b.Language(), t, b.Count(t))
		}
		b.Close()
	}
	return tw.Flush()
}
