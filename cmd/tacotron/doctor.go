package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/example/go-tacotron2/internal/doctor"
)

func newDoctorCmd() *cobra.Command {
	var wavs []string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run checkpoint and environment checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			res := doctor.Run(doctor.Config{
				ValidateConfig: cfg.Validate,
				CheckpointPath: cfg.Paths.Checkpoint,
				StripPrefix:    cfg.Paths.StripPrefix,
				OutputDir:      cfg.Paths.OutputDir,
				WAVFiles:       wavs,
				SampleRate:     cfg.Audio.SampleRate,
			}, cmd.OutOrStdout())

			if res.Failed() {
				return errors.New("doctor: one or more checks failed")
			}

			return nil
		},
	}

	cmd.Flags().StringSliceVar(&wavs, "wav", nil, "Reference WAV files to check (repeatable)")

	return cmd
}
