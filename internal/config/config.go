package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/example/go-tacotron2/internal/audio"
	"github.com/example/go-tacotron2/internal/tacotron"
)

type Config struct {
	Paths   PathsConfig      `mapstructure:"paths"`
	Model   tacotron.HParams `mapstructure:"model"`
	Audio   audio.MelConfig  `mapstructure:"audio"`
	Runtime RuntimeConfig    `mapstructure:"runtime"`
	Server  ServerConfig     `mapstructure:"server"`
	Log     LogConfig        `mapstructure:"log"`
}

type PathsConfig struct {
	Checkpoint string `mapstructure:"checkpoint"`
	OutputDir  string `mapstructure:"output_dir"`
	// StripPrefix is removed from checkpoint tensor names on load.
	StripPrefix string `mapstructure:"strip_prefix"`
}

type RuntimeConfig struct {
	// Workers bounds goroutines inside tensor kernels.
	Workers int `mapstructure:"workers"`
	// Seed drives weight initialisation and prenet dropout; 0 picks one at random.
	Seed int64 `mapstructure:"seed"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	Workers         int    `mapstructure:"workers"`
	MaxTextBytes    int    `mapstructure:"max_text_bytes"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	// File enables a rotating log file next to stderr.
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
			Checkpoint: "models/tacotron2.safetensors",
			OutputDir:  "out",
		},
		Model: tacotron.DefaultHParams(),
		Audio: audio.DefaultMelConfig(),
		Runtime: RuntimeConfig{
			Workers: 4,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         1,
			MaxTextBytes:    2048,
			RequestTimeout:  120,
			ShutdownTimeout: 30,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// flagKeys maps dashed flag names to their nested config keys.
var flagKeys = map[string]string{
	"checkpoint":              "paths.checkpoint",
	"paths-output-dir":        "paths.output_dir",
	"paths-strip-prefix":      "paths.strip_prefix",
	"model-n-frames-per-step": "model.n_frames_per_step",
	"model-max-decoder-steps": "model.max_decoder_steps",
	"model-gate-threshold":    "model.gate_threshold",
	"model-prenet-dropout":    "model.prenet_dropout",
	"model-mask-padding":      "model.mask_padding",
	"model-text-cleaners":     "model.text_cleaners",
	"audio-sample-rate":       "audio.sample_rate",
	"audio-dc-block":          "audio.dc_block",
	"audio-peak-normalize":    "audio.peak_normalize",
	"runtime-workers":         "runtime.workers",
	"seed":                    "runtime.seed",
	"server-listen-addr":      "server.listen_addr",
	"server-workers":          "server.workers",
	"server-max-text-bytes":   "server.max_text_bytes",
	"server-request-timeout":  "server.request_timeout",
	"server-shutdown-timeout": "server.shutdown_timeout",
	"log-level":               "log.level",
	"log-file":                "log.file",
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("checkpoint", defaults.Paths.Checkpoint, "Path to the safetensors checkpoint")
	fs.String("paths-output-dir", defaults.Paths.OutputDir, "Directory for generated files")
	fs.String("paths-strip-prefix", defaults.Paths.StripPrefix, "Prefix to strip from checkpoint tensor names (e.g. module.)")
	fs.Int("model-n-frames-per-step", defaults.Model.NFramesPerStep, "Mel frames emitted per decoder step")
	fs.Int("model-max-decoder-steps", defaults.Model.MaxDecoderSteps, "Decoder step limit for free-running inference")
	fs.Float64("model-gate-threshold", defaults.Model.GateThreshold, "Stop probability that ends inference")
	fs.Float64("model-prenet-dropout", defaults.Model.PrenetDropout, "Prenet dropout probability")
	fs.Bool("model-mask-padding", defaults.Model.MaskPadding, "Mask padded output frames")
	fs.StringSlice("model-text-cleaners", defaults.Model.TextCleaners, "Text cleaners applied before symbol lookup")
	fs.Int("audio-sample-rate", defaults.Audio.SampleRate, "Expected WAV sample rate for mel extraction")
	fs.Bool("audio-dc-block", defaults.Audio.DCBlock, "Remove DC offset from WAV input before mel extraction")
	fs.Bool("audio-peak-normalize", defaults.Audio.PeakNormalize, "Peak-normalize WAV input before mel extraction")
	fs.Int("runtime-workers", defaults.Runtime.Workers, "Goroutines used inside tensor kernels")
	fs.Int64("seed", defaults.Runtime.Seed, "Random seed for initialisation and dropout (0 = random)")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-workers", defaults.Server.Workers, "Max concurrent synthesis requests")
	fs.Int("server-max-text-bytes", defaults.Server.MaxTextBytes, "Max input text size in bytes")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request synthesis timeout in seconds")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout in seconds")
	fs.String("log-level", defaults.Log.Level, "Log level: debug|info|warn|error")
	fs.String("log-file", defaults.Log.File, "Also write logs to this rotating file")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	if err := setDefaults(v, opts.Defaults); err != nil {
		return Config{}, err
	}

	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("TACOTRON")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)

		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read config file: %w", err)
		}
	} else {
		v.SetConfigName("tacotron")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("config: read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode config: %w", err)
	}

	cleaners, err := NormalizeCleaners(cfg.Model.TextCleaners)
	if err != nil {
		return Config{}, err
	}

	cfg.Model.TextCleaners = cleaners

	return cfg, nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}

		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("config: bind flag %s: %w", name, err)
		}
	}

	return nil
}

func setDefaults(v *viper.Viper, c Config) error {
	v.SetDefault("paths.checkpoint", c.Paths.Checkpoint)
	v.SetDefault("paths.output_dir", c.Paths.OutputDir)
	v.SetDefault("paths.strip_prefix", c.Paths.StripPrefix)

	// Every hyperparameter gets a default so env overrides resolve.
	raw, err := json.Marshal(c.Model)
	if err != nil {
		return fmt.Errorf("config: encode model defaults: %w", err)
	}

	var model map[string]any
	if err := json.Unmarshal(raw, &model); err != nil {
		return fmt.Errorf("config: decode model defaults: %w", err)
	}

	for k, val := range model {
		v.SetDefault("model."+k, val)
	}

	v.SetDefault("audio.sample_rate", c.Audio.SampleRate)
	v.SetDefault("audio.n_fft", c.Audio.NFFT)
	v.SetDefault("audio.hop_length", c.Audio.HopLength)
	v.SetDefault("audio.win_length", c.Audio.WinLength)
	v.SetDefault("audio.num_mels", c.Audio.NumMels)
	v.SetDefault("audio.fmin", c.Audio.FMin)
	v.SetDefault("audio.fmax", c.Audio.FMax)
	v.SetDefault("audio.preemphasis", c.Audio.PreEmphasis)
	v.SetDefault("audio.min_level_db", c.Audio.MinLevelDB)
	v.SetDefault("audio.ref_level_db", c.Audio.RefLevelDB)
	v.SetDefault("audio.dc_block", c.Audio.DCBlock)
	v.SetDefault("audio.peak_normalize", c.Audio.PeakNormalize)
	v.SetDefault("runtime.workers", c.Runtime.Workers)
	v.SetDefault("runtime.seed", c.Runtime.Seed)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.file", c.Log.File)
	v.SetDefault("log.max_size_mb", c.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", c.Log.MaxBackups)
	v.SetDefault("log.max_age_days", c.Log.MaxAgeDays)

	return nil
}

// RequestTimeoutDuration is the per-request timeout as a duration.
func (c ServerConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// ShutdownTimeoutDuration is the graceful shutdown window as a duration.
func (c ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return time.Duration(c.ShutdownTimeout) * time.Second
}

// HParams returns a copy of the model hyperparameters.
func (c Config) HParams() tacotron.HParams {
	hp := c.Model
	hp.TextCleaners = append([]string(nil), c.Model.TextCleaners...)

	return hp
}

// Validate checks cross-section consistency and the model hyperparameters.
func (c Config) Validate() error {
	if c.Audio.NumMels != c.Model.NumMels {
		return fmt.Errorf("config: audio.num_mels %d does not match model.num_mels %d", c.Audio.NumMels, c.Model.NumMels)
	}

	if c.Server.Workers < 1 {
		return fmt.Errorf("config: server.workers must be >= 1, got %d", c.Server.Workers)
	}

	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	return nil
}
