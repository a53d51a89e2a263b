package audio

import (
	"math"
	"testing"
)

func TestPeakNormalize(t *testing.T) {
	got := PeakNormalize([]float32{0.25, -0.5, 0.1})
	if got[1] != -1 || got[0] != 0.5 {
		t.Fatalf("PeakNormalize = %v", got)
	}

	silent := []float32{0, 0}
	if out := PeakNormalize(silent); &out[0] != &silent[0] {
		t.Fatal("silent input should be returned unchanged")
	}
}

func TestDCBlockRemovesOffset(t *testing.T) {
	in := make([]float32, 22050)
	for i := range in {
		in[i] = 0.5
	}

	out := DCBlock(in, 22050)

	if tail := out[len(out)-1]; math.Abs(float64(tail)) > 1e-3 {
		t.Fatalf("DC offset not removed: tail = %v", tail)
	}
}

func TestPreEmphasis(t *testing.T) {
	got := PreEmphasis([]float32{1, 1, 1}, 0.5)
	want := []float32{1, 0.5, 0.5}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("PreEmphasis = %v, want %v", got, want)
		}
	}
}

func TestApplyHooks(t *testing.T) {
	double := func(s []float32) []float32 {
		out := make([]float32, len(s))
		for i, v := range s {
			out[i] = 2 * v
		}

		return out
	}

	got := ApplyHooks([]float32{0.1, 0.2}, double, PeakNormalize)
	if got[1] != 1 {
		t.Fatalf("ApplyHooks = %v", got)
	}
}
