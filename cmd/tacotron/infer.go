package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newInferCmd() *cobra.Command {
	var (
		text          string
		out           string
		chunk         bool
		maxChunkChars int
	)

	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Synthesise a mel-spectrogram from text",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			input, err := readText(text, os.Stdin)
			if err != nil {
				return err
			}

			m, err := loadModel(cfg)
			if err != nil {
				return err
			}

			chars := 0
			if chunk {
				chars = maxChunkChars
			}

			mel, post, aligns, err := m.InferChunked(input, chars)
			if err != nil {
				return err
			}

			outputs := []namedTensor{{"mel", mel}, {"mel_postnet", post}}
			for i, a := range aligns {
				outputs = append(outputs, namedTensor{fmt.Sprintf("alignments.%d", i), a})
			}

			path := outputPath(out, cfg.Paths.OutputDir, "mel.safetensors")
			if err := writeTensors(path, outputs, map[string]string{"text": input}); err != nil {
				return err
			}

			frames := post.Dim(-1)

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d frames (%.2fs), %d chunk(s)\n",
				path, frames, durationSeconds(frames, cfg.Audio.HopLength, cfg.Audio.SampleRate), len(aligns))

			return err
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to synthesise (if empty, read from stdin)")
	cmd.Flags().StringVar(&out, "out", "", "Output safetensors path (default <output-dir>/mel.safetensors)")
	cmd.Flags().BoolVar(&chunk, "chunk", false, "Split text into sentence chunks and synthesise sequentially")
	cmd.Flags().IntVar(&maxChunkChars, "max-chunk-chars", 220, "Maximum characters per chunk when --chunk is enabled")

	return cmd
}
