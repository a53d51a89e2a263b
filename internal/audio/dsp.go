package audio

import "math"

// Hook transforms a block of samples.
type Hook func(samples []float32) []float32

// ApplyHooks runs hooks in order.
func ApplyHooks(samples []float32, hooks ...Hook) []float32 {
	out := samples
	for _, hook := range hooks {
		out = hook(out)
	}

	return out
}

// PeakNormalize scales samples so the peak amplitude reaches 1.0. Silent
// input is returned unchanged.
func PeakNormalize(samples []float32) []float32 {
	var peak float32
	for _, s := range samples {
		peak = max(peak, float32(math.Abs(float64(s))))
	}

	if peak == 0 {
		return samples
	}

	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = s / peak
	}

	return out
}

// DCBlock removes DC offset with a one-pole high-pass filter at ~20 Hz.
func DCBlock(samples []float32, sampleRate int) []float32 {
	if len(samples) == 0 || sampleRate <= 0 {
		return samples
	}

	r := float32(1 - 2*math.Pi*20/float64(sampleRate))
	out := make([]float32, len(samples))

	var x1, y1 float32
	for i, x := range samples {
		y := x - x1 + r*y1
		out[i] = y
		x1, y1 = x, y
	}

	return out
}

// PreEmphasis applies y[n] = x[n] - coef*x[n-1].
func PreEmphasis(samples []float32, coef float32) []float32 {
	if coef == 0 {
		return samples
	}

	out := make([]float32, len(samples))

	var prev float32
	for i, x := range samples {
		out[i] = x - coef*prev
		prev = x
	}

	return out
}
