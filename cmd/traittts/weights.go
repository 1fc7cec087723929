package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/go-trait-tts/internal/model"
)

func newWeightsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Record and inspect the selected model weights",
	}
	cmd.AddCommand(newWeightsSelectCmd())
	cmd.AddCommand(newWeightsListCmd())
	return cmd
}

func newWeightsSelectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select FAMILY PATH",
		Short: "Select the weights of a family (GPT|SoVITS) for the configured model version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			family, err := parseFamily(args[0])
			if err != nil {
				return err
			}
			if err := checkSidecar(family, model.SidecarPath(args[1])); err != nil {
				return err
			}

			reg, err := model.OpenRegistry(cfg.Paths.WeightsDB)
			if err != nil {
				return err
			}
			defer reg.Close()

			sel, err := reg.Select(cmd.Context(), family, cfg.Paths.Version, args[1])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(os.Stdout, "%s %s -> %s (sha256 %s)\n", sel.Family, sel.Version, sel.Path, sel.SHA256[:12])
			return err
		},
	}
}

func newWeightsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List weight selections and whether the files still match",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			reg, err := model.OpenRegistry(cfg.Paths.WeightsDB)
			if err != nil {
				return err
			}
			defer reg.Close()

			sels, err := reg.List(cmd.Context())
			if err != nil {
				return err
			}
			return printSelections(sels, os.Stdout)
		},
	}
}

func parseFamily(name string) (string, error) {
	switch strings.ToLower(name) {
	case "gpt":
		return model.FamilyGPT, nil
	case "sovits":
		return model.FamilySoVITS, nil
	default:
		return "", fmt.Errorf("unknown weights family %q (want GPT|SoVITS)", name)
	}
}

// loadSidecar checks that the weights have a valid hyperparameter sidecar.
func checkSidecar(family, path string) error {
	var err error
	if family == model.FamilyGPT {
		_, err = model.LoadGPTConfig(path)
	} else {
		_, err = model.LoadSoVITSConfig(path)
	}
	return err
}

func printSelections(sels []model.Selection, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "FAMILY\tVERSION\tPATH\tSELECTED\tSTATUS")
	for _, s := range sels {
		status := "ok"
		if ok, err := s.Verify(); err != nil {
			status = "missing"
		} else if !ok {
			status = "changed"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Family, s.Version, s.Path, s.SelectedAt.Format(time.RFC3339), status)
	}
	return tw.Flush()
}
