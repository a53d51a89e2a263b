package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-tacotron2/internal/audio"
	"github.com/example/go-tacotron2/internal/runtime/tensor"
)

func newMelCmd() *cobra.Command {
	var (
		wav string
		out string
	)

	cmd := &cobra.Command{
		Use:   "mel",
		Short: "Extract a mel-spectrogram from a WAV file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if wav == "" {
				return fmt.Errorf("--wav is required for mel")
			}

			mel, err := extractMel(cfg.Audio, wav, cfg.Model.NFramesPerStep)
			if err != nil {
				return err
			}

			path := outputPath(out, cfg.Paths.OutputDir, "target.safetensors")
			if err := writeTensors(path, []namedTensor{{"mel", mel}}, map[string]string{"wav": wav}); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: mel %v\n", path, mel.Shape())

			return err
		},
	}

	cmd.Flags().StringVar(&wav, "wav", "", "Input WAV file")
	cmd.Flags().StringVar(&out, "out", "", "Output safetensors path (default <output-dir>/target.safetensors)")

	return cmd
}

// extractMel reads a WAV at the configured sample rate and returns a
// [1, num_mels, T] target with T padded to a multiple of framesPerStep.
func extractMel(cfg audio.MelConfig, path string, framesPerStep int) (*tensor.Tensor, error) {
	samples, _, err := audio.ReadWAVFile(path, audio.Format{SampleRate: cfg.SampleRate})
	if err != nil {
		return nil, err
	}

	ex, err := audio.NewMelExtractor(cfg)
	if err != nil {
		return nil, err
	}

	return ex.Tensor(samples, framesPerStep)
}
