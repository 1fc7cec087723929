package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

// fakeBinder wraps a pflag.FlagSet to satisfy the flagBinder interface.
type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

func newFlagBinder(t *testing.T, defaults Config, args ...string) *fakeBinder {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return &fakeBinder{fs: fs}
}

// chdirTemp isolates Load from a traittts.yaml in the working directory.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Paths.Manifest != "models/manifest.json" {
		t.Errorf("Paths.Manifest = %q", cfg.Paths.Manifest)
	}
	if cfg.Paths.Version != "v2" {
		t.Errorf("Paths.Version = %q", cfg.Paths.Version)
	}
	if cfg.Runtime.ORTAPIVersion != 23 {
		t.Errorf("Runtime.ORTAPIVersion = %d", cfg.Runtime.ORTAPIVersion)
	}
	if cfg.Server.ListenAddr != ":8080" || cfg.Server.Workers != 2 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Synth.TopK != 20 || cfg.Synth.TopP != 0.6 || cfg.Synth.Temperature != 0.6 || cfg.Synth.Speed != 1 {
		t.Errorf("Synth sampling = %+v", cfg.Synth)
	}
	if cfg.Log.Level != "info" || cfg.Log.File != "" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestRegisterFlagsCoversEveryKey(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, DefaultConfig())

	for flag := range flagKeys {
		if fs.Lookup(flag) == nil {
			t.Errorf("flag %q is mapped but not registered", flag)
		}
	}
	fs.VisitAll(func(f *pflag.Flag) {
		if _, ok := flagKeys[f.Name]; !ok {
			t.Errorf("flag %q is registered but not mapped", f.Name)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ORT_LIBRARY_PATH", "")
	t.Setenv("TRAITTTS_ORT_LIB", "")
	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{Cmd: newFlagBinder(t, defaults), Defaults: defaults})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != defaults {
		t.Fatalf("Load() = %+v\nwant %+v", cfg, defaults)
	}
}

func TestLoadNilCmd(t *testing.T) {
	chdirTemp(t)
	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Synth.Strategy != "punctuation" {
		t.Fatalf("Synth.Strategy = %q", cfg.Synth.Strategy)
	}
}

func TestLoadFlagOverride(t *testing.T) {
	chdirTemp(t)
	defaults := DefaultConfig()
	binder := newFlagBinder(t, defaults,
		"--top-k=5",
		"--temperature=1",
		"--language=en",
		"--workers=8",
		"--log-level=debug",
		"--gpt=weights/gpt.json",
	)

	cfg, err := Load(LoadOptions{Cmd: binder, Defaults: defaults})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Synth.TopK != 5 || cfg.Synth.Temperature != 1 || cfg.Synth.Language != "en" {
		t.Errorf("Synth = %+v", cfg.Synth)
	}
	if cfg.Server.Workers != 8 {
		t.Errorf("Server.Workers = %d", cfg.Server.Workers)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Paths.GPT != "weights/gpt.json" {
		t.Errorf("Paths.GPT = %q", cfg.Paths.GPT)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TRAITTTS_LOG_LEVEL", "warn")
	t.Setenv("TRAITTTS_SERVER_LISTEN_ADDR", ":9999")
	t.Setenv("TRAITTTS_SYNTH_TOP_P", "0.9")

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("Server.ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Synth.TopP != 0.9 {
		t.Errorf("Synth.TopP = %v", cfg.Synth.TopP)
	}
}

func TestLoadORTLibraryEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ORT_LIBRARY_PATH", "/opt/ort/libonnxruntime.so")

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Runtime.ORTLibraryPath != "/opt/ort/libonnxruntime.so" {
		t.Fatalf("Runtime.ORTLibraryPath = %q", cfg.Runtime.ORTLibraryPath)
	}

	t.Setenv("TRAITTTS_ORT_LIB", "/usr/lib/libonnxruntime.so")
	cfg, err = Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Runtime.ORTLibraryPath != "/usr/lib/libonnxruntime.so" {
		t.Fatalf("TRAITTTS_ORT_LIB must win, got %q", cfg.Runtime.ORTLibraryPath)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := chdirTemp(t)
	cfgFile := filepath.Join(dir, "custom.yaml")
	content := `
paths:
  traits_dir: /data/traits
synth:
  strategy: every-4-sentences
  cache_mode: fingerprint
log:
  level: error
  file: /var/log/traittts.log
`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	defaults := DefaultConfig()
	cfg, err := Load(LoadOptions{Cmd: newFlagBinder(t, defaults, "--log-level=debug"), ConfigFile: cfgFile, Defaults: defaults})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.TraitsDir != "/data/traits" {
		t.Errorf("Paths.TraitsDir = %q", cfg.Paths.TraitsDir)
	}
	if cfg.Synth.Strategy != "every-4-sentences" || cfg.Synth.CacheMode != "fingerprint" {
		t.Errorf("Synth = %+v", cfg.Synth)
	}
	if cfg.Log.File != "/var/log/traittts.log" {
		t.Errorf("Log.File = %q", cfg.Log.File)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("explicit flag must beat the config file, got %q", cfg.Log.Level)
	}
	if cfg.Synth.TopK != 20 {
		t.Errorf("unset keys keep defaults, got top_k %d", cfg.Synth.TopK)
	}
}

func TestLoadDiscoversConfigInWorkingDir(t *testing.T) {
	dir := chdirTemp(t)
	if err := os.WriteFile(filepath.Join(dir, "traittts.yaml"), []byte("server:\n  workers: 6\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Workers != 6 {
		t.Fatalf("Server.Workers = %d", cfg.Server.Workers)
	}
}

func TestLoadInvalidConfigFile(t *testing.T) {
	dir := chdirTemp(t)
	cfgFile := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(cfgFile, []byte("synth: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(LoadOptions{ConfigFile: cfgFile, Defaults: DefaultConfig()}); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}

func TestLoadMissingExplicitConfigFile(t *testing.T) {
	dir := chdirTemp(t)
	_, err := Load(LoadOptions{ConfigFile: filepath.Join(dir, "missing.yaml"), Defaults: DefaultConfig()})
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}
