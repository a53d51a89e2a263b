package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-tacotron2/internal/text"
)

func newTeacherCmd() *cobra.Command {
	var (
		input string
		wav   string
		out   string
	)

	cmd := &cobra.Command{
		Use:   "teacher",
		Short: "Run teacher-forced inference against a reference recording",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if wav == "" {
				return fmt.Errorf("--wav is required for teacher")
			}

			s, err := readText(input, os.Stdin)
			if err != nil {
				return err
			}

			m, err := loadModel(cfg)
			if err != nil {
				return err
			}

			hp := m.HParams()

			target, err := extractMel(cfg.Audio, wav, hp.NFramesPerStep)
			if err != nil {
				return err
			}

			seq, err := text.TextToSequence(s, hp.TextCleaners)
			if err != nil {
				return err
			}

			res, _, err := m.TeacherInfer([][]int64{seq}, target)
			if err != nil {
				return err
			}

			path := outputPath(out, cfg.Paths.OutputDir, "teacher.safetensors")

			err = writeTensors(path, []namedTensor{
				{"target", target},
				{"mel", res.Mel},
				{"mel_postnet", res.MelPostnet},
				{"gate", res.Gate},
				{"alignments", res.Alignments},
			}, map[string]string{"text": s, "wav": wav})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d target frames, %d symbols\n",
				path, target.Dim(-1), len(seq))

			return err
		},
	}

	cmd.Flags().StringVar(&input, "text", "", "Transcript of the recording (if empty, read from stdin)")
	cmd.Flags().StringVar(&wav, "wav", "", "Reference WAV file")
	cmd.Flags().StringVar(&out, "out", "", "Output safetensors path (default <output-dir>/teacher.safetensors)")

	return cmd
}
