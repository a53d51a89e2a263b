// Package bench provides timing primitives for the tacotron bench command.
package bench

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// RunResult holds the timing and output size of a single inference run.
type RunResult struct {
	Index    int
	Cold     bool // true for the first run
	Duration time.Duration
	Frames   int64
	Audio    time.Duration
	RTF      float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
}

// ComputeStats calculates min, max and mean over durations.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}

	mn, mx := durations[0], durations[0]

	var sum time.Duration

	for _, d := range durations {
		mn = min(mn, d)
		mx = max(mx, d)
		sum += d
	}

	return Stats{Min: mn, Max: mx, Mean: sum / time.Duration(len(durations))}
}

// CalcRTF returns synthesis_duration / audio_duration, or 0 for empty audio.
func CalcRTF(synthDur, audioDur time.Duration) float64 {
	if audioDur <= 0 {
		return 0
	}

	return float64(synthDur) / float64(audioDur)
}

// FramesDuration is the playback time covered by mel frames.
func FramesDuration(frames int64, hopLength, sampleRate int) time.Duration {
	if sampleRate <= 0 || frames <= 0 {
		return 0
	}

	return time.Duration(frames * int64(hopLength) * int64(time.Second) / int64(sampleRate))
}

// InferFunc runs one inference and reports the number of mel frames.
type InferFunc func() (frames int64, err error)

// Run times runs calls of fn. The first run is marked cold.
func Run(runs, hopLength, sampleRate int, fn InferFunc) ([]RunResult, error) {
	if runs < 1 {
		return nil, fmt.Errorf("bench: runs must be at least 1, got %d", runs)
	}

	results := make([]RunResult, 0, runs)

	for i := range runs {
		start := time.Now()

		frames, err := fn()
		if err != nil {
			return nil, fmt.Errorf("bench: run %d: %w", i+1, err)
		}

		d := time.Since(start)
		audio := FramesDuration(frames, hopLength, sampleRate)

		results = append(results, RunResult{
			Index:    i,
			Cold:     i == 0,
			Duration: d,
			Frames:   frames,
			Audio:    audio,
			RTF:      CalcRTF(d, audio),
		})
	}

	return results, nil
}

// MeanRTF averages the realtime factor over results.
func MeanRTF(results []RunResult) float64 {
	if len(results) == 0 {
		return 0
	}

	var total float64
	for _, r := range results {
		total += r.RTF
	}

	return total / float64(len(results))
}

// CheckRTFThreshold returns an error if meanRTF > threshold.
// A threshold of 0 disables the gate.
func CheckRTFThreshold(meanRTF, threshold float64) error {
	if threshold <= 0 {
		return nil
	}

	if meanRTF > threshold {
		return fmt.Errorf("mean RTF %.3f exceeds threshold %.3f", meanRTF, threshold)
	}

	return nil
}

// FormatTable writes a human-readable table of results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %8s  %12s  %8s\n", "Run", "Cold", "MS", "Frames", "Audio(ms)", "RTF")
	fmt.Fprintln(sb, strings.Repeat("-", 58))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}

		fmt.Fprintf(sb, "%-5d  %-5s  %10.1f  %8d  %12.1f  %8.3f\n",
			r.Index+1,
			cold,
			millis(r.Duration),
			r.Frames,
			millis(r.Audio),
			r.RTF,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 58))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  (min)\n", "", "", millis(stats.Min))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  (mean)\n", "", "", millis(stats.Mean))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  (max)\n", "", "", millis(stats.Max))

	fmt.Fprint(w, sb.String())
}

type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
	Frames     int64   `json:"frames"`
	AudioMS    float64 `json:"audio_ms"`
	RTF        float64 `json:"rtf"`
}

type jsonStats struct {
	MinMS   float64 `json:"min_ms"`
	MeanMS  float64 `json:"mean_ms"`
	MaxMS   float64 `json:"max_ms"`
	MeanRTF float64 `json:"mean_rtf"`
}

func millis(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }

// FormatJSON writes a JSON report of results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) error {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:   millis(stats.Min),
			MeanMS:  millis(stats.Mean),
			MaxMS:   millis(stats.Max),
			MeanRTF: MeanRTF(runs),
		},
	}

	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:      r.Index,
			Cold:       r.Cold,
			DurationMS: millis(r.Duration),
			Frames:     r.Frames,
			AudioMS:    millis(r.Audio),
			RTF:        r.RTF,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(jr)
}
