package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/go-tacotron2/internal/runtime/tensor"
	"github.com/example/go-tacotron2/internal/safetensors"
)

// namedTensor pairs an output name with its tensor.
type namedTensor struct {
	name string
	t    *tensor.Tensor
}

// writeTensors stores outputs as a safetensors file, creating parent
// directories as needed.
func writeTensors(path string, outputs []namedTensor, metadata map[string]string) error {
	tensors := make([]safetensors.Tensor, 0, len(outputs))
	for _, o := range outputs {
		if o.t == nil {
			continue
		}

		tensors = append(tensors, safetensors.Tensor{Name: o.name, Shape: o.t.Shape(), Data: o.t.RawData()})
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	return safetensors.WriteFile(path, tensors, metadata)
}

// outputPath resolves --out against the configured output directory.
func outputPath(out, outputDir, fallback string) string {
	if out == "" {
		out = fallback
	}

	if filepath.IsAbs(out) || strings.ContainsRune(out, filepath.Separator) || outputDir == "" {
		return out
	}

	return filepath.Join(outputDir, out)
}

func readText(text string, stdin io.Reader) (string, error) {
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}

	input := strings.TrimSpace(string(b))
	if input == "" {
		return "", fmt.Errorf("either provide --text or pipe text on stdin")
	}

	return input, nil
}

// durationSeconds converts a frame count to audio seconds.
func durationSeconds(frames int64, hop, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}

	return float64(frames) * float64(hop) / float64(sampleRate)
}
