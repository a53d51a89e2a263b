// Package doctor provides preflight checks for checkpoints, output paths and
// reference recordings.
package doctor

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/example/go-tacotron2/internal/audio"
	"github.com/example/go-tacotron2/internal/tacotron"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// Config selects what Run checks. Empty fields skip their check.
type Config struct {
	// ValidateConfig reports configuration errors.
	ValidateConfig func() error
	// CheckpointPath is loaded end to end, including every weight shape.
	CheckpointPath string
	StripPrefix    string
	// OutputDir must be creatable and writable.
	OutputDir string
	// WAVFiles are decoded at SampleRate.
	WAVFiles   []string
	SampleRate int
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes the configured checks and writes one line per check to w.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	_, _ = fmt.Fprintf(w, "%s go runtime: %s %s/%s, %d CPUs\n", PassMark, runtime.Version(), runtime.GOOS, runtime.GOARCH, runtime.NumCPU())

	if cfg.ValidateConfig != nil {
		if err := cfg.ValidateConfig(); err != nil {
			res.fail(fmt.Sprintf("config: %v", err))
			_, _ = fmt.Fprintf(w, "%s config: %v\n", FailMark, err)
		} else {
			_, _ = fmt.Fprintf(w, "%s config: valid\n", PassMark)
		}
	}

	if cfg.CheckpointPath != "" {
		checkCheckpoint(&res, cfg, w)
	}

	if cfg.OutputDir != "" {
		if err := checkWritable(cfg.OutputDir); err != nil {
			res.fail(fmt.Sprintf("output dir %q: %v", cfg.OutputDir, err))
			_, _ = fmt.Fprintf(w, "%s output dir %s: %v\n", FailMark, cfg.OutputDir, err)
		} else {
			_, _ = fmt.Fprintf(w, "%s output dir: %s\n", PassMark, cfg.OutputDir)
		}
	}

	for _, path := range cfg.WAVFiles {
		samples, f, err := audio.ReadWAVFile(path, audio.Format{SampleRate: cfg.SampleRate})
		if err != nil {
			res.fail(fmt.Sprintf("wav %q: %v", path, err))
			_, _ = fmt.Fprintf(w, "%s wav %s: %v\n", FailMark, path, err)

			continue
		}

		_, _ = fmt.Fprintf(w, "%s wav %s: %d Hz, %d ch, %d samples\n", PassMark, path, f.SampleRate, f.Channels, len(samples))
	}

	return res
}

func checkCheckpoint(res *Result, cfg Config, w io.Writer) {
	if _, err := os.Stat(cfg.CheckpointPath); err != nil {
		res.fail(fmt.Sprintf("checkpoint %q: %v", cfg.CheckpointPath, err))
		_, _ = fmt.Fprintf(w, "%s checkpoint %s: not found\n", FailMark, cfg.CheckpointPath)

		return
	}

	m, err := tacotron.Load(cfg.CheckpointPath, tacotron.LoadOptions{StripPrefix: cfg.StripPrefix}, tacotron.WithSeed(1))
	if err != nil {
		res.fail(fmt.Sprintf("checkpoint %q: %v", cfg.CheckpointPath, err))
		_, _ = fmt.Fprintf(w, "%s checkpoint %s: %v\n", FailMark, cfg.CheckpointPath, err)

		return
	}

	hp := m.HParams()
	_, _ = fmt.Fprintf(w, "%s checkpoint: %s (%d parameters, %d mels, r=%d)\n",
		PassMark, cfg.CheckpointPath, m.ParamCount(), hp.NumMels, hp.NFramesPerStep)
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}

	name := f.Name()
	_ = f.Close()

	return os.Remove(name)
}
