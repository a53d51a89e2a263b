package main

import (
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/example/go-tacotron2/internal/config"
	"github.com/example/go-tacotron2/internal/runtime/tensor"
	"github.com/example/go-tacotron2/internal/server"
	"github.com/example/go-tacotron2/internal/tacotron"
)

var (
	cfgFile   string
	activeCfg config.Config
	cfgLoaded bool
	logFile   io.Closer
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "tacotron",
		Short:         "Tacotron 2 acoustic model command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}

			if err := loaded.Validate(); err != nil {
				return err
			}

			activeCfg, cfgLoaded = loaded, true
			setupLogger(loaded.Log)
			tensor.SetWorkers(loaded.Runtime.Workers)

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newInferCmd())
	cmd.AddCommand(newTeacherCmd())
	cmd.AddCommand(newMelCmd())
	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newBenchCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHealthCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger. When a log
// file is configured, records go to stderr and a rotating file.
func setupLogger(cfg config.LogConfig) {
	lvl, err := server.ParseLogLevel(cfg.Level)
	if err != nil {
		lvl = slog.LevelInfo
	}

	var out io.Writer = os.Stderr

	if cfg.File != "" {
		_ = closeLogFile()

		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		logFile = lj
		out = io.MultiWriter(os.Stderr, lj)
	}

	h := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

func closeLogFile() error {
	if logFile == nil {
		return nil
	}

	err := logFile.Close()
	logFile = nil

	return err
}

func requireConfig() (config.Config, error) {
	if !cfgLoaded {
		return config.Config{}, errors.New("configuration not loaded")
	}

	return activeCfg, nil
}

// modelOptions returns the seed and logger options shared by every command.
func modelOptions(cfg config.Config) []tacotron.Option {
	seed := uint64(cfg.Runtime.Seed)
	if seed == 0 {
		seed = rand.Uint64()
	}

	return []tacotron.Option{tacotron.WithSeed(seed), tacotron.WithLogger(slog.Default())}
}

// loadModel opens the configured checkpoint. Architecture comes from the
// checkpoint metadata; inference settings come from the configuration.
func loadModel(cfg config.Config) (*tacotron.Model, error) {
	return tacotron.Load(cfg.Paths.Checkpoint, tacotron.LoadOptions{
		StripPrefix: cfg.Paths.StripPrefix,
		Tune: func(hp *tacotron.HParams) {
			hp.MaxDecoderSteps = cfg.Model.MaxDecoderSteps
			hp.GateThreshold = cfg.Model.GateThreshold
			hp.PrenetDropout = cfg.Model.PrenetDropout
			hp.MaskPadding = cfg.Model.MaskPadding
			hp.TextCleaners = append([]string(nil), cfg.Model.TextCleaners...)
		},
	}, modelOptions(cfg)...)
}
