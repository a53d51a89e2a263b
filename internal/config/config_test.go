package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/spf13/pflag"

	"github.com/example/go-tacotron2/internal/text"
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

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Paths.Checkpoint != "models/tacotron2.safetensors" {
		t.Errorf("Checkpoint = %q", cfg.Paths.Checkpoint)
	}

	if cfg.Model.NumMels != 80 || cfg.Model.NFramesPerStep != 3 || cfg.Model.MaxDecoderSteps != 1000 {
		t.Errorf("Model = %+v", cfg.Model)
	}

	if cfg.Server.ListenAddr != ":8080" || cfg.Server.Workers != 1 {
		t.Errorf("Server = %+v", cfg.Server)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q; want info", cfg.Log.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestRegisterFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, DefaultConfig())

	for name := range flagKeys {
		if fs.Lookup(name) == nil {
			t.Errorf("flag %q not registered", name)
		}
	}

	checks := []struct {
		flag string
		want string
	}{
		{"checkpoint", "models/tacotron2.safetensors"},
		{"model-n-frames-per-step", "3"},
		{"server-listen-addr", ":8080"},
		{"log-level", "info"},
	}

	for _, c := range checks {
		if f := fs.Lookup(c.flag); f == nil || f.DefValue != c.want {
			t.Errorf("flag %q default = %v; want %q", c.flag, f, c.want)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{Cmd: newFlagBinder(t, defaults), Defaults: defaults})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Model.AttentionDim != 128 || cfg.Model.NSymbols != text.NumSymbols() {
		t.Errorf("Model = %+v", cfg.Model)
	}

	if cfg.Audio != defaults.Audio {
		t.Errorf("Audio = %+v; want %+v", cfg.Audio, defaults.Audio)
	}

	if !slices.Equal(cfg.Model.TextCleaners, []string{"english_cleaners"}) {
		t.Errorf("TextCleaners = %v", cfg.Model.TextCleaners)
	}
}

func TestLoad_FlagOverride(t *testing.T) {
	t.Chdir(t.TempDir())

	defaults := DefaultConfig()
	binder := newFlagBinder(t, defaults,
		"--model-n-frames-per-step=1",
		"--model-gate-threshold=0.7",
		"--model-text-cleaners=basic",
		"--seed=42",
		"--log-level=debug",
	)

	cfg, err := Load(LoadOptions{Cmd: binder, Defaults: defaults})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Model.NFramesPerStep != 1 || cfg.Model.GateThreshold != 0.7 {
		t.Errorf("Model = %+v", cfg.Model)
	}

	if !slices.Equal(cfg.Model.TextCleaners, []string{"basic_cleaners"}) {
		t.Errorf("TextCleaners = %v", cfg.Model.TextCleaners)
	}

	if cfg.Runtime.Seed != 42 || cfg.Log.Level != "debug" {
		t.Errorf("Runtime = %+v, Log = %+v", cfg.Runtime, cfg.Log)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TACOTRON_LOG_LEVEL", "warn")
	t.Setenv("TACOTRON_SERVER_LISTEN_ADDR", ":9999")
	t.Setenv("TACOTRON_MODEL_ATTENTION_DIM", "64")

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "warn" || cfg.Server.ListenAddr != ":9999" {
		t.Errorf("Log = %+v, Server = %+v", cfg.Log, cfg.Server)
	}

	if cfg.Model.AttentionDim != 64 {
		t.Errorf("AttentionDim = %d; want 64", cfg.Model.AttentionDim)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())

	content := `
log:
  level: error
  file: logs/tacotron.log
server:
  workers: 4
model:
  num_mels: 40
  text_cleaners: [transliteration_cleaners]
audio:
  num_mels: 40
  hop_length: 200
  peak_normalize: true
`
	if err := os.WriteFile("tacotron.yaml", []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{Cmd: newFlagBinder(t, defaults, "--server-workers=2"), Defaults: defaults})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "error" || cfg.Log.File != "logs/tacotron.log" {
		t.Errorf("Log = %+v", cfg.Log)
	}

	// flags beat the config file
	if cfg.Server.Workers != 2 {
		t.Errorf("Server.Workers = %d; want 2", cfg.Server.Workers)
	}

	if cfg.Model.NumMels != 40 || cfg.Audio.NumMels != 40 || cfg.Audio.HopLength != 200 {
		t.Errorf("Model.NumMels = %d, Audio = %+v", cfg.Model.NumMels, cfg.Audio)
	}

	if !cfg.Audio.PeakNormalize || cfg.Audio.DCBlock {
		t.Errorf("Audio hooks = dc_block %v, peak_normalize %v", cfg.Audio.DCBlock, cfg.Audio.PeakNormalize)
	}

	if cfg.Model.PrenetDim != 256 {
		t.Errorf("unset model field lost its default: PrenetDim = %d", cfg.Model.PrenetDim)
	}

	if !slices.Equal(cfg.Model.TextCleaners, []string{"transliteration_cleaners"}) {
		t.Errorf("TextCleaners = %v", cfg.Model.TextCleaners)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte(":\t:bad yaml:::"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(LoadOptions{ConfigFile: path, Defaults: DefaultConfig()}); err == nil {
		t.Error("Load() = nil; want error for invalid config file")
	}
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	_, err := Load(LoadOptions{ConfigFile: "/nonexistent/path/tacotron.yaml", Defaults: DefaultConfig()})
	if err == nil {
		t.Error("Load() = nil; want error for missing explicit config file")
	}
}

func TestLoad_UnknownCleaner(t *testing.T) {
	t.Chdir(t.TempDir())

	defaults := DefaultConfig()

	_, err := Load(LoadOptions{Cmd: newFlagBinder(t, defaults, "--model-text-cleaners=klingon"), Defaults: defaults})
	if !errors.Is(err, text.ErrUnknownCleaner) {
		t.Errorf("Load() error = %v; want ErrUnknownCleaner", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"mel mismatch", func(c *Config) { c.Audio.NumMels = 40 }},
		{"no server workers", func(c *Config) { c.Server.Workers = 0 }},
		{"bad hparams", func(c *Config) { c.Model.PostnetKernelSize = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil; want error")
			}
		})
	}
}

func TestNormalizeCleaners(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    []string
		wantErr bool
	}{
		{"empty defaults", nil, []string{"english_cleaners"}, false},
		{"blank defaults", []string{"  "}, []string{"english_cleaners"}, false},
		{"short names", []string{"Basic", " english "}, []string{"basic_cleaners", "english_cleaners"}, false},
		{"comma list", []string{"transliteration,basic"}, []string{"transliteration_cleaners", "basic_cleaners"}, false},
		{"unknown", []string{"bogus"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeCleaners(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NormalizeCleaners(%q) = %q; want error", tt.in, got)
				}

				return
			}

			if err != nil || !slices.Equal(got, tt.want) {
				t.Errorf("NormalizeCleaners(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}
