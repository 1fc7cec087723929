package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-trait-tts/internal/config"
	"github.com/example/go-trait-tts/internal/lang"
	"github.com/example/go-trait-tts/internal/reference"
	"github.com/example/go-trait-tts/internal/synth"
	textpkg "github.com/example/go-trait-tts/internal/text"
	"github.com/example/go-trait-tts/internal/traits"
)

// refArgs are the reference-side synth flags.
type refArgs struct {
	Clip       string
	Transcript string
	Language   string
	AuxClips   []string
	Character  string
	Trait      string
	TraitIndex int
	RefFree    bool
}

func newSynthCmd() *cobra.Command {
	var text string
	var out string
	var dumpDir string
	var ref refArgs

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize text to WAV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if err := validateRefArgs(ref); err != nil {
				return err
			}
			inputText, err := readSynthText(text, os.Stdin)
			if err != nil {
				return err
			}

			refReq, err := buildReference(ref, traits.Library{Dir: cfg.Paths.TraitsDir}, os.Stderr)
			if err != nil {
				return err
			}

			var opts []synth.Option
			if dumpDir != "" {
				opts = append(opts, synth.WithDumpDir(dumpDir))
			}
			st, err := buildStack(cmd.Context(), cfg, opts...)
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := st.orch.Synthesize(cmd.Context(), synthRequest(cfg.Synth, inputText, refReq))
			if err != nil {
				return err
			}
			wavData, err := res.WAV()
			if err != nil {
				return fmt.Errorf("encode output WAV: %w", err)
			}
			return writeSynthOutput(out, wavData, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to synthesize (if empty, read from stdin)")
	cmd.Flags().StringVar(&out, "out", "out.wav", "Output WAV path ('-' for stdout)")
	cmd.Flags().StringVar(&ref.Clip, "ref", "", "Reference clip (WAV or MP3)")
	cmd.Flags().StringVar(&ref.Transcript, "ref-text", "", "Transcript of the reference clip")
	cmd.Flags().StringVar(&ref.Language, "ref-language", "", "Language of the reference transcript")
	cmd.Flags().StringArrayVar(&ref.AuxClips, "aux-ref", nil, "Additional reference clip averaged into the speaker embedding (repeatable)")
	cmd.Flags().StringVar(&ref.Character, "character", "", "Character whose trait bundle to use")
	cmd.Flags().StringVar(&ref.Trait, "trait", "", "Trait of the character to use as reference")
	cmd.Flags().IntVar(&ref.TraitIndex, "trait-index", 0, "Which candidate of the trait to use")
	cmd.Flags().BoolVar(&ref.RefFree, "ref-free", false, "Do not condition on the reference transcript")
	cmd.Flags().StringVar(&dumpDir, "dump-segments", "", "Write every decoded segment as WAV into this directory")

	return cmd
}

// validateRefArgs enforces the reference flag combinations: a trait replaces
// the clip and transcript, a clip needs its transcript unless the call is
// reference-free, and a trait needs a character.
func validateRefArgs(a refArgs) error {
	hasTrait := a.Trait != "" || a.Character != ""
	switch {
	case hasTrait && (a.Clip != "" || a.Transcript != ""):
		return errors.New("--character/--trait cannot be combined with --ref or --ref-text")
	case a.Trait != "" && a.Character == "":
		return errors.New("--trait requires --character")
	case a.Character != "" && a.Trait == "":
		return errors.New("--character requires --trait")
	case a.Transcript != "" && a.Clip == "":
		return errors.New("--ref-text requires --ref")
	case a.Clip != "" && a.Transcript == "" && !a.RefFree:
		return errors.New("--ref requires --ref-text (or --ref-free)")
	case !hasTrait && a.Clip == "":
		return errors.New("supply --character with --trait, or --ref with --ref-text")
	case a.TraitIndex < 0:
		return fmt.Errorf("--trait-index must be >= 0, got %d", a.TraitIndex)
	}
	return nil
}

// buildReference turns the reference flags into a conditioner request. Trait
// lookups report how many candidates the trait has on w.
func buildReference(a refArgs, lib traits.Library, w io.Writer) (reference.Request, error) {
	req := reference.Request{
		ClipPath:   a.Clip,
		AuxClips:   a.AuxClips,
		Transcript: a.Transcript,
		Language:   lang.ParseTag(a.Language),
		RefFree:    a.RefFree,
	}
	if a.Trait == "" {
		return req, nil
	}

	slot, tag, err := lookupTrait(lib, a.Character, a.Trait, a.TraitIndex, w)
	if err != nil {
		return reference.Request{}, err
	}
	req.Slot = &slot
	if tag.Valid() {
		req.Language = tag
	}
	return req, nil
}

func lookupTrait(lib traits.Library, character, trait string, index int, w io.Writer) (traits.Slot, lang.Tag, error) {
	bundle, err := lib.Open(character)
	if err != nil {
		return traits.Slot{}, lang.Unknown, fmt.Errorf("open traits of %q: %w", character, err)
	}
	defer bundle.Close()

	n := bundle.Count(trait)
	_, _ = fmt.Fprintf(w, "%s/%s: %d candidate(s)\n", character, trait, n)
	if n == 0 {
		return traits.Slot{}, lang.Unknown, fmt.Errorf("character %q has no trait %q (available: %s)",
			character, trait, strings.Join(bundle.Traits(), ", "))
	}
	if index >= n {
		return traits.Slot{}, lang.Unknown, fmt.Errorf("--trait-index %d out of range (%d candidates)", index, n)
	}

	slot, err := bundle.Lookup(trait, index)
	if err != nil {
		return traits.Slot{}, lang.Unknown, err
	}
	return slot, bundle.Language(), nil
}

func synthRequest(d config.SynthConfig, text string, ref reference.Request) synth.Request {
	return synth.Request{
		Text:        text,
		Language:    lang.ParseTag(d.Language),
		Strategy:    textpkg.ParseStrategy(d.Strategy),
		Reference:   ref,
		TopK:        d.TopK,
		TopP:        d.TopP,
		Temperature: d.Temperature,
		Speed:       d.Speed,
	}
}

func writeSynthOutput(outPath string, wavData []byte, stdout io.Writer) error {
	if outPath == "-" {
		if stdout == nil {
			return fmt.Errorf("stdout writer is nil")
		}
		_, err := stdout.Write(wavData)
		return err
	}
	return os.WriteFile(outPath, wavData, 0o644)
}

func readSynthText(text string, stdin io.Reader) (string, error) {
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	input := strings.TrimSpace(string(b))
	if input == "" {
		return "", fmt.Errorf("either provide --text or pipe text on stdin")
	}
	return input, nil
}
