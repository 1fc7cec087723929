package traits

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/example/go-trait-tts/internal/audio"
	"github.com/example/go-trait-tts/internal/lang"
)

// Conditioner turns one reference clip and its transcript into a slot.
type Conditioner interface {
	Condition(ctx context.Context, clipPath, transcript string) (Slot, error)
}

// DurationProbe returns a clip's length in seconds.
type DurationProbe func(path string) (float64, error)

// ClipDuration decodes a WAV, MP3 or FLAC clip and returns its length in seconds.
func ClipDuration(path string) (float64, error) {
	clip, err := audio.LoadFile(path)
	if err != nil {
		return 0, err
	}
	return clip.Duration(), nil
}

// Precomputer builds a trait library from a sliced-dialog corpus: one bundle
// per character, one trait per emotion.
type Precomputer struct {
	cond       Conditioner
	language   lang.Tag
	quota      int
	characters map[Character]bool
	probe      DurationProbe
	logger     *slog.Logger
}

// PrecomputeOption configures a Precomputer.
type PrecomputeOption func(*Precomputer)

// WithLanguage sets the transcript language. Default English.
func WithLanguage(tag lang.Tag) PrecomputeOption {
	return func(p *Precomputer) { p.language = tag }
}

// WithQuota sets the per-trait selection quota. Default DefaultQuota.
func WithQuota(n int) PrecomputeOption {
	return func(p *Precomputer) {
		if n > 0 {
			p.quota = n
		}
	}
}

// WithCharacters restricts precomputation to the given characters.
func WithCharacters(cs ...Character) PrecomputeOption {
	return func(p *Precomputer) {
		p.characters = make(map[Character]bool, len(cs))
		for _, c := range cs {
			p.characters[c] = true
		}
	}
}

// WithDurationProbe replaces the file-decoding duration probe.
func WithDurationProbe(fn DurationProbe) PrecomputeOption {
	return func(p *Precomputer) { p.probe = fn }
}

// WithPrecomputeLogger sets the logger for skipped clips and progress.
func WithPrecomputeLogger(l *slog.Logger) PrecomputeOption {
	return func(p *Precomputer) { p.logger = l }
}

func NewPrecomputer(cond Conditioner, opts ...PrecomputeOption) *Precomputer {
	p := &Precomputer{
		cond:     cond,
		language: lang.English,
		quota:    DefaultQuota,
		probe:    ClipDuration,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Report summarizes a precompute run.
type Report struct {
	Clips   int
	Skipped int
	Slots   int
	Bundles []string
}

type corpusClip struct {
	path  string
	label ClipLabel
}

// Run scans corpusDir, selects clips per (character, emotion), conditions
// them and writes one bundle per character into outDir. Clips that fail to
// parse, probe or condition are logged and skipped.
func (p *Precomputer) Run(ctx context.Context, corpusDir, outDir string) (Report, error) {
	var report Report

	clips, err := p.scan(corpusDir, &report)
	if err != nil {
		return report, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return report, fmt.Errorf("create trait library: %w", err)
	}
	lib := Library{Dir: outDir}
	probe := p.memoProbe()

	byCharacter := make(map[Character][]corpusClip)
	for _, c := range clips {
		byCharacter[c.label.Character] = append(byCharacter[c.label.Character], c)
	}

	names := make([]string, 0, len(byCharacter))
	for c := range byCharacter {
		names = append(names, string(c))
	}
	sort.Strings(names)

	for _, name := range names {
		builder := NewBuilder(p.language)
		for _, emotion := range emotionsOf(byCharacter[Character(name)]) {
			if err := p.buildTrait(ctx, builder, probe, byCharacter[Character(name)], emotion, &report); err != nil {
				return report, err
			}
		}
		if builder.Len() == 0 {
			continue
		}

		path := lib.Path(name)
		if err := builder.WriteFile(path); err != nil {
			return report, fmt.Errorf("write bundle for %s: %w", name, err)
		}
		report.Slots += builder.Len()
		report.Bundles = append(report.Bundles, path)
		p.logger.Info("trait bundle written", "character", name, "slots", builder.Len(), "path", path)
	}

	return report, nil
}

func (p *Precomputer) buildTrait(ctx context.Context, b *Builder, probe DurationProbe, clips []corpusClip, emotion Emotion, report *Report) error {
	var candidates []Candidate
	for _, c := range clips {
		if !c.label.HasEmotion(emotion) || c.label.Noise == NoiseUnknown {
			continue
		}
		d, err := probe(c.path)
		if err != nil {
			p.logger.Warn("skipping clip", "path", c.path, "error", err.Error())
			report.Skipped++
			continue
		}
		candidates = append(candidates, Candidate{Path: c.path, Transcript: c.label.Transcript, Noise: c.label.Noise, Duration: d})
	}

	for _, c := range Select(candidates, p.quota) {
		if err := ctx.Err(); err != nil {
			return err
		}
		slot, err := p.cond.Condition(ctx, c.Path, c.Transcript)
		if err != nil {
			p.logger.Warn("skipping clip", "path", c.Path, "error", err.Error())
			report.Skipped++
			continue
		}
		if _, err := b.Add(string(emotion), slot); err != nil {
			p.logger.Warn("skipping clip", "path", c.Path, "error", err.Error())
			report.Skipped++
		}
	}
	return nil
}

// memoProbe probes each clip once per run; a clip carrying several emotions
// is considered once per emotion.
func (p *Precomputer) memoProbe() DurationProbe {
	type result struct {
		d   float64
		err error
	}
	seen := make(map[string]result)
	return func(path string) (float64, error) {
		if r, ok := seen[path]; ok {
			return r.d, r.err
		}
		d, err := p.probe(path)
		seen[path] = result{d, err}
		return d, err
	}
}

func (p *Precomputer) scan(dir string, report *Report) ([]corpusClip, error) {
	var clips []corpusClip
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".txt" || ext == ".zip" {
			return nil
		}

		label, err := ParseClipName(d.Name())
		if err != nil {
			p.logger.Warn("skipping file", "path", path, "error", err.Error())
			report.Skipped++
			return nil
		}
		if label.Character == UnknownCharacter {
			p.logger.Warn("unknown character", "path", path)
			report.Skipped++
			return nil
		}
		if p.characters != nil && !p.characters[label.Character] {
			return nil
		}

		report.Clips++
		clips = append(clips, corpusClip{path: path, label: label})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan corpus %s: %w", dir, err)
	}
	return clips, nil
}

func emotionsOf(clips []corpusClip) []Emotion {
	seen := make(map[Emotion]bool)
	var out []Emotion
	for _, c := range clips {
		for _, e := range c.label.Emotions {
			if e != UnknownEmotion && !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
