package tacotron

import (
	"math/rand/v2"
	"testing"

	"github.com/example/go-tacotron2/internal/runtime/tensor"
	"github.com/example/go-tacotron2/internal/testutil"
	"github.com/example/go-tacotron2/internal/text"
)

func tinyHParams() HParams {
	return HParams{
		NumMels:         4,
		NFramesPerStep:  2,
		MaskPadding:     true,
		NSymbols:        text.NumSymbols(),
		SymbolsEmbedDim: 8,

		EncoderKernelSize:    3,
		EncoderNConvolutions: 2,
		EncoderEmbeddingDim:  8,

		AttentionRNNDim: 8,
		DecoderRNNDim:   8,
		PrenetDim:       4,
		PrenetDropout:   0,
		MaxDecoderSteps: 5,
		GateThreshold:   0.5,

		AttentionDim:                4,
		AttentionLocationNFilters:   2,
		AttentionLocationKernelSize: 3,

		PostnetEmbeddingDim:  4,
		PostnetKernelSize:    3,
		PostnetNConvolutions: 2,

		TextCleaners: []string{"english_cleaners"},
	}
}

func mustModel(t *testing.T, hp HParams) *Model {
	t.Helper()

	m, err := New(hp, WithSeed(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return m
}

func randomMels(t *testing.T, seed uint64, shape ...int64) *tensor.Tensor {
	t.Helper()

	rng := rand.New(rand.NewPCG(seed, seed))
	n := int64(1)

	for _, d := range shape {
		n *= d
	}

	data := make([]float32, n)
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}

	mels, err := tensor.New(data, shape)
	if err != nil {
		t.Fatalf("tensor.New: %v", err)
	}

	return mels
}

func assertShape(t *testing.T, name string, x *tensor.Tensor, want ...int64) {
	t.Helper()

	if x == nil {
		t.Fatalf("%s is nil", name)
	}

	if !sameShape(x.Shape(), want) {
		t.Fatalf("%s shape = %v, want %v", name, x.Shape(), want)
	}
}

func assertClose(t *testing.T, name string, got, want []float32, tol float64) {
	t.Helper()
	testutil.AssertClose(t, name, got, want, tol)
}

// row returns item b of a [B, ...] tensor as a flat slice.
func row(t *testing.T, x *tensor.Tensor, b int64) []float32 {
	t.Helper()

	r, err := x.Narrow(0, b, 1)
	if err != nil {
		t.Fatalf("Narrow: %v", err)
	}

	return r.Data()
}
