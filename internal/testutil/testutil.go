// Package testutil provides shared fixtures and assertions for tests.
//
// Skip helpers call t.Skip with a readable reason when an optional
// prerequisite is absent, so integration tests stay runnable in partial
// environments:
//
//	func TestPretrained(t *testing.T) {
//	    path := testutil.RequireCheckpoint(t)
//	    ...
//	}
package testutil

import (
	"math"
	"os"
	"testing"
)

// CheckpointEnv names the environment variable pointing at a pretrained
// safetensors checkpoint.
const CheckpointEnv = "TACOTRON_TEST_CHECKPOINT"

// RequireCheckpoint returns the pretrained checkpoint path, skipping the test
// if the variable is unset or the file is missing.
func RequireCheckpoint(tb testing.TB) string {
	tb.Helper()

	p := os.Getenv(CheckpointEnv)
	if p == "" {
		tb.Skipf("pretrained checkpoint not configured; set %s", CheckpointEnv)
	}

	if _, err := os.Stat(p); err != nil {
		tb.Skipf("pretrained checkpoint not found at %s=%q", CheckpointEnv, p)
	}

	return p
}

// Sine returns n samples of a half-amplitude sine at freq Hz.
func Sine(freq float64, sampleRate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}

	return out
}

// AssertClose fails unless got and want have equal length and agree
// element-wise within tol.
func AssertClose(tb testing.TB, name string, got, want []float32, tol float64) {
	tb.Helper()

	if len(got) != len(want) {
		tb.Fatalf("%s length = %d, want %d", name, len(got), len(want))
	}

	for i := range got {
		if math.Abs(float64(got[i]-want[i])) > tol {
			tb.Fatalf("%s[%d] = %v, want %v", name, i, got[i], want[i])
		}
	}
}
