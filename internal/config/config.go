package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TRAITTTS_SYNTH_TOP_K.
const EnvPrefix = "TRAITTTS"

type Config struct {
	Paths   PathsConfig   `mapstructure:"paths"`
	Runtime RuntimeConfig `mapstructure:"runtime"`
	Server  ServerConfig  `mapstructure:"server"`
	Synth   SynthConfig   `mapstructure:"synth"`
	Log     LogConfig     `mapstructure:"log"`
}

type PathsConfig struct {
	// Manifest lists the shared graphs (acoustic encoder, feature model).
	Manifest string `mapstructure:"manifest"`
	// GPT and SoVITS are the token generator and vocoder exports. Empty
	// values fall back to the weights-selection record.
	GPT       string `mapstructure:"gpt"`
	SoVITS    string `mapstructure:"sovits"`
	Version   string `mapstructure:"version"`
	TraitsDir string `mapstructure:"traits_dir"`
	WeightsDB string `mapstructure:"weights_db"`
}

type RuntimeConfig struct {
	Threads        int    `mapstructure:"threads"`
	ORTLibraryPath string `mapstructure:"ort_library_path"`
	ORTVersion     string `mapstructure:"ort_version"`
	ORTAPIVersion  uint32 `mapstructure:"ort_api_version"`
}

type ServerConfig struct {
	ListenAddr      string  `mapstructure:"listen_addr"`
	Workers         int     `mapstructure:"workers"`
	MaxTextBytes    int     `mapstructure:"max_text_bytes"`
	RequestTimeout  int     `mapstructure:"request_timeout"`
	ShutdownTimeout int     `mapstructure:"shutdown_timeout"`
	RateLimit       float64 `mapstructure:"rate_limit"`
	RateBurst       int     `mapstructure:"rate_burst"`
}

type SynthConfig struct {
	Language    string  `mapstructure:"language"`
	Strategy    string  `mapstructure:"strategy"`
	TopK        int     `mapstructure:"top_k"`
	TopP        float64 `mapstructure:"top_p"`
	Temperature float64 `mapstructure:"temperature"`
	Speed       float64 `mapstructure:"speed"`
	CacheMode   string  `mapstructure:"cache_mode"`
	Parallelism int     `mapstructure:"parallelism"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			Manifest:  "models/manifest.json",
			Version:   "v2",
			TraitsDir: "traits",
			WeightsDB: "weights.db",
		},
		Runtime: RuntimeConfig{
			Threads:       4,
			ORTAPIVersion: 23,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         2,
			MaxTextBytes:    4096,
			RequestTimeout:  120,
			ShutdownTimeout: 30,
			RateBurst:       4,
		},
		Synth: SynthConfig{
			Language:    "all_zh",
			Strategy:    "punctuation",
			TopK:        20,
			TopP:        0.6,
			Temperature: 0.6,
			Speed:       1.0,
			CacheMode:   "positional",
			Parallelism: 1,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// flagKeys maps every flag to the config key it overrides.
var flagKeys = map[string]string{
	"manifest":         "paths.manifest",
	"gpt":              "paths.gpt",
	"sovits":           "paths.sovits",
	"model-version":    "paths.version",
	"traits-dir":       "paths.traits_dir",
	"weights-db":       "paths.weights_db",
	"runtime-threads":  "runtime.threads",
	"ort-lib":          "runtime.ort_library_path",
	"ort-version":      "runtime.ort_version",
	"ort-api-version":  "runtime.ort_api_version",
	"listen-addr":      "server.listen_addr",
	"workers":          "server.workers",
	"max-text-bytes":   "server.max_text_bytes",
	"request-timeout":  "server.request_timeout",
	"shutdown-timeout": "server.shutdown_timeout",
	"rate-limit":       "server.rate_limit",
	"rate-burst":       "server.rate_burst",
	"language":         "synth.language",
	"strategy":         "synth.strategy",
	"top-k":            "synth.top_k",
	"top-p":            "synth.top_p",
	"temperature":      "synth.temperature",
	"speed":            "synth.speed",
	"cache-mode":       "synth.cache_mode",
	"parallelism":      "synth.parallelism",
	"log-level":        "log.level",
	"log-file":         "log.file",
	"log-max-size-mb":  "log.max_size_mb",
	"log-max-backups":  "log.max_backups",
	"log-max-age-days": "log.max_age_days",
}

func RegisterFlags(fs *pflag.FlagSet, d Config) {
	fs.String("manifest", d.Paths.Manifest, "ONNX manifest of the shared graphs")
	fs.String("gpt", d.Paths.GPT, "Token generator export manifest (default: selected weights)")
	fs.String("sovits", d.Paths.SoVITS, "Vocoder export manifest (default: selected weights)")
	fs.String("model-version", d.Paths.Version, "Model version used for weights selection")
	fs.String("traits-dir", d.Paths.TraitsDir, "Directory of per-character trait bundles")
	fs.String("weights-db", d.Paths.WeightsDB, "SQLite file recording weight selections")
	fs.Int("runtime-threads", d.Runtime.Threads, "ONNX Runtime intra-op thread count")
	fs.String("ort-lib", d.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("ort-version", d.Runtime.ORTVersion, "Expected ONNX Runtime version")
	fs.Uint32("ort-api-version", d.Runtime.ORTAPIVersion, "ONNX Runtime C API version")
	fs.String("listen-addr", d.Server.ListenAddr, "HTTP listen address")
	fs.Int("workers", d.Server.Workers, "Concurrent synthesis requests")
	fs.Int("max-text-bytes", d.Server.MaxTextBytes, "Maximum request text size in bytes")
	fs.Int("request-timeout", d.Server.RequestTimeout, "Per-request timeout in seconds")
	fs.Int("shutdown-timeout", d.Server.ShutdownTimeout, "Graceful shutdown timeout in seconds")
	fs.Float64("rate-limit", d.Server.RateLimit, "Synthesis requests admitted per second (0 = unlimited)")
	fs.Int("rate-burst", d.Server.RateBurst, "Burst size of the request rate limit")
	fs.String("language", d.Synth.Language, "Target text language")
	fs.String("strategy", d.Synth.Strategy, "Text segmentation strategy")
	fs.Int("top-k", d.Synth.TopK, "Token sampling top-k")
	fs.Float64("top-p", d.Synth.TopP, "Token sampling top-p")
	fs.Float64("temperature", d.Synth.Temperature, "Token sampling temperature")
	fs.Float64("speed", d.Synth.Speed, "Speech speed factor")
	fs.String("cache-mode", d.Synth.CacheMode, "Segment cache keying (positional|fingerprint)")
	fs.Int("parallelism", d.Synth.Parallelism, "Segments generated concurrently")
	fs.String("log-level", d.Log.Level, "Log level (debug|info|warn|error)")
	fs.String("log-file", d.Log.File, "Also write logs to this rotating file")
	fs.Int("log-max-size-mb", d.Log.MaxSizeMB, "Rotate the log file after this many megabytes")
	fs.Int("log-max-backups", d.Log.MaxBackups, "Rotated log files to keep")
	fs.Int("log-max-age-days", d.Log.MaxAgeDays, "Days to keep rotated log files")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	if err := v.BindEnv("runtime.ort_library_path", EnvPrefix+"_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("traittts")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// bindFlags binds each registered flag to its key. Flags a command does not
// register are skipped.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for flag, key := range flagKeys {
		f := fs.Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", flag, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.manifest", c.Paths.Manifest)
	v.SetDefault("paths.gpt", c.Paths.GPT)
	v.SetDefault("paths.sovits", c.Paths.SoVITS)
	v.SetDefault("paths.version", c.Paths.Version)
	v.SetDefault("paths.traits_dir", c.Paths.TraitsDir)
	v.SetDefault("paths.weights_db", c.Paths.WeightsDB)
	v.SetDefault("runtime.threads", c.Runtime.Threads)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("runtime.ort_version", c.Runtime.ORTVersion)
	v.SetDefault("runtime.ort_api_version", c.Runtime.ORTAPIVersion)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.rate_limit", c.Server.RateLimit)
	v.SetDefault("server.rate_burst", c.Server.RateBurst)
	v.SetDefault("synth.language", c.Synth.Language)
	v.SetDefault("synth.strategy", c.Synth.Strategy)
	v.SetDefault("synth.top_k", c.Synth.TopK)
	v.SetDefault("synth.top_p", c.Synth.TopP)
	v.SetDefault("synth.temperature", c.Synth.Temperature)
	v.SetDefault("synth.speed", c.Synth.Speed)
	v.SetDefault("synth.cache_mode", c.Synth.CacheMode)
	v.SetDefault("synth.parallelism", c.Synth.Parallelism)
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.file", c.Log.File)
	v.SetDefault("log.max_size_mb", c.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", c.Log.MaxBackups)
	v.SetDefault("log.max_age_days", c.Log.MaxAgeDays)
}
