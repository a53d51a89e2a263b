package ops

import (
	"math"
	"testing"
)

func TestBatchNorm1D(t *testing.T) {
	x := mustTensorT(t, []float32{1, 2, 3, 4}, []int64{1, 2, 2})
	w := mustTensorT(t, []float32{1, 2}, []int64{2})
	b := mustTensorT(t, []float32{0, 1}, []int64{2})
	mean := mustTensorT(t, []float32{1, 0}, []int64{2})
	variance := mustTensorT(t, []float32{1, 4}, []int64{2})

	out, err := BatchNorm1D(x, w, b, mean, variance, 0)
	if err != nil {
		t.Fatalf("batchnorm: %v", err)
	}

	want := []float32{0, 1, 4, 5}
	if got := out.Data(); !equalApprox(got, want, 1e-6) {
		t.Fatalf("batchnorm = %v, want %v", got, want)
	}
}

func TestBatchNorm1DShapeMismatch(t *testing.T) {
	x := mustTensorT(t, seqDataT(6), []int64{1, 3, 2})
	p := mustTensorT(t, []float32{1, 1}, []int64{2})

	if _, err := BatchNorm1D(x, p, p, p, p, BatchNormEps); err == nil {
		t.Fatal("expected channel mismatch error")
	}
}

func TestLSTMCellZeroWeights(t *testing.T) {
	state, err := ZeroLSTMState(1, 2)
	if err != nil {
		t.Fatalf("zero state: %v", err)
	}

	x := mustTensorT(t, []float32{1, -1, 0.5}, []int64{1, 3})
	wIH := mustTensorT(t, make([]float32, 8*3), []int64{8, 3})
	wHH := mustTensorT(t, make([]float32, 8*2), []int64{8, 2})

	// Cell-candidate bias 1, everything else 0: i=f=o=0.5, g=tanh(1).
	bias := mustTensorT(t, []float32{0, 0, 0, 0, 1, 1, 0, 0}, []int64{8})

	next, err := LSTMCell(x, state, wIH, wHH, bias, nil)
	if err != nil {
		t.Fatalf("lstm cell: %v", err)
	}

	wantC := float32(0.5 * math.Tanh(1))
	wantH := float32(0.5 * math.Tanh(float64(wantC)))

	if got := next.C.Data(); !equalApprox(got, []float32{wantC, wantC}, 1e-6) {
		t.Fatalf("c = %v, want %v", got, wantC)
	}

	if got := next.H.Data(); !equalApprox(got, []float32{wantH, wantH}, 1e-6) {
		t.Fatalf("h = %v, want %v", got, wantH)
	}
}

func TestLSTMCellRejectsBadWeights(t *testing.T) {
	state, _ := ZeroLSTMState(1, 2)
	x := mustTensorT(t, []float32{1, 2}, []int64{1, 2})
	wIH := mustTensorT(t, make([]float32, 4*2), []int64{4, 2})
	wHH := mustTensorT(t, make([]float32, 4*2), []int64{4, 2})

	if _, err := LSTMCell(x, state, wIH, wHH, nil, nil); err == nil {
		t.Fatal("expected gate shape error")
	}
}

func TestLengthMask(t *testing.T) {
	mask := LengthMask([]int64{3, 1}, 0)
	if len(mask) != 2 || len(mask[0]) != 3 {
		t.Fatalf("mask dims = %dx%d", len(mask), len(mask[0]))
	}

	want := [][]bool{{true, true, true}, {true, false, false}}
	for b := range want {
		for i := range want[b] {
			if mask[b][i] != want[b][i] {
				t.Fatalf("mask[%d][%d] = %v", b, i, mask[b][i])
			}
		}
	}

	padded := LengthMask([]int64{2}, 4)
	if len(padded[0]) != 4 || padded[0][2] {
		t.Fatalf("padded mask = %v", padded)
	}
}

func TestMaskTimeWithStride(t *testing.T) {
	x := mustTensorT(t, []float32{1, 2, 3, 4}, []int64{2, 2})
	valid := LengthMask([]int64{4, 2}, 4)

	out, err := MaskTime(x, valid, 2, 1e3)
	if err != nil {
		t.Fatalf("mask time: %v", err)
	}

	want := []float32{1, 2, 3, 1e3}
	if got := out.Data(); !equalApprox(got, want, 0) {
		t.Fatalf("masked = %v, want %v", got, want)
	}

	if x.RawData()[3] != 4 {
		t.Fatal("MaskTime mutated its input")
	}
}

func TestMaskTimeChannels(t *testing.T) {
	x := mustTensorT(t, []float32{1, 2, 3, 4, 5, 6}, []int64{1, 2, 3})
	out, err := MaskTime(x, LengthMask([]int64{2}, 3), 1, 0)
	if err != nil {
		t.Fatalf("mask time: %v", err)
	}

	want := []float32{1, 2, 0, 4, 5, 0}
	if got := out.Data(); !equalApprox(got, want, 0) {
		t.Fatalf("masked = %v, want %v", got, want)
	}
}
