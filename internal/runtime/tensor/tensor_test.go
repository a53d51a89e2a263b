package tensor

import (
	"math"
	"strings"
	"testing"
)

func TestNewRejectsLengthMismatch(t *testing.T) {
	_, err := New([]float32{1, 2, 3}, []int64{2, 2})
	if err == nil || !strings.Contains(err.Error(), "does not match shape") {
		t.Fatalf("expected length mismatch error, got %v", err)
	}
}

func TestNewCopiesInput(t *testing.T) {
	src := []float32{1, 2}
	x, err := New(src, []int64{2})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	src[0] = 9
	if x.RawData()[0] != 1 {
		t.Fatalf("tensor aliases caller slice")
	}
}

func TestReshapeInfersDimension(t *testing.T) {
	x, _ := New([]float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})
	y, err := x.Reshape([]int64{3, -1})
	if err != nil {
		t.Fatalf("reshape: %v", err)
	}
	if got := y.Shape(); !equalI64(got, []int64{3, 2}) {
		t.Fatalf("shape = %v, want [3 2]", got)
	}
	if got := y.Data(); !equalF32(got, []float32{1, 2, 3, 4, 5, 6}, 0) {
		t.Fatalf("data = %v", got)
	}
	if _, err := x.Reshape([]int64{4, -1}); err == nil {
		t.Fatal("expected error reshaping 6 elements to [4,-1]")
	}
}

func TestUnsqueezeSqueeze(t *testing.T) {
	x, _ := New([]float32{1, 2, 3}, []int64{3})
	u, err := x.Unsqueeze(0)
	if err != nil {
		t.Fatalf("unsqueeze: %v", err)
	}
	if !equalI64(u.Shape(), []int64{1, 3}) {
		t.Fatalf("unsqueeze shape = %v", u.Shape())
	}
	s, err := u.Squeeze(0)
	if err != nil {
		t.Fatalf("squeeze: %v", err)
	}
	if !equalI64(s.Shape(), []int64{3}) {
		t.Fatalf("squeeze shape = %v", s.Shape())
	}
	if _, err := u.Squeeze(1); err == nil {
		t.Fatal("expected error squeezing dim of size 3")
	}
}

func TestTranspose3D(t *testing.T) {
	x, _ := New([]float32{1, 2, 3, 4, 5, 6}, []int64{1, 2, 3})
	y, err := x.Transpose(1, 2)
	if err != nil {
		t.Fatalf("transpose: %v", err)
	}
	if !equalI64(y.Shape(), []int64{1, 3, 2}) {
		t.Fatalf("shape = %v", y.Shape())
	}
	want := []float32{1, 4, 2, 5, 3, 6}
	if got := y.Data(); !equalF32(got, want, 0) {
		t.Fatalf("data = %v, want %v", got, want)
	}
}

func TestConcatLastDim(t *testing.T) {
	a, _ := New([]float32{1, 2, 3, 4}, []int64{2, 2})
	b, _ := New([]float32{5, 6}, []int64{2, 1})
	out, err := Concat([]*Tensor{a, b}, -1)
	if err != nil {
		t.Fatalf("concat: %v", err)
	}
	want := []float32{1, 2, 5, 3, 4, 6}
	if got := out.Data(); !equalF32(got, want, 0) {
		t.Fatalf("data = %v, want %v", got, want)
	}
}

func TestConcatShapeMismatch(t *testing.T) {
	a, _ := New([]float32{1, 2}, []int64{1, 2})
	b, _ := New([]float32{1, 2, 3}, []int64{1, 3})
	if _, err := Concat([]*Tensor{a, b}, 0); err == nil {
		t.Fatal("expected shape mismatch error")
	}
}

func TestNarrowMiddleDim(t *testing.T) {
	x, _ := New([]float32{1, 2, 3, 4, 5, 6, 7, 8}, []int64{2, 2, 2})
	out, err := x.Narrow(1, 1, 1)
	if err != nil {
		t.Fatalf("narrow: %v", err)
	}
	want := []float32{3, 4, 7, 8}
	if got := out.Data(); !equalF32(got, want, 0) {
		t.Fatalf("data = %v, want %v", got, want)
	}
	if _, err := x.Narrow(1, 1, 2); err == nil {
		t.Fatal("expected out-of-bounds error")
	}
}

func TestIndexSelectReorders(t *testing.T) {
	x, _ := New([]float32{1, 2, 3, 4, 5, 6}, []int64{3, 2})
	out, err := x.IndexSelect(0, []int64{2, 0})
	if err != nil {
		t.Fatalf("index select: %v", err)
	}
	want := []float32{5, 6, 1, 2}
	if got := out.Data(); !equalF32(got, want, 0) {
		t.Fatalf("data = %v, want %v", got, want)
	}
	if _, err := x.IndexSelect(0, []int64{3}); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestBroadcastAdd(t *testing.T) {
	a, _ := New([]float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})
	b, _ := New([]float32{10, 20, 30}, []int64{3})
	out, err := BroadcastAdd(a, b)
	if err != nil {
		t.Fatalf("broadcast add: %v", err)
	}
	want := []float32{11, 22, 33, 14, 25, 36}
	if got := out.Data(); !equalF32(got, want, 0) {
		t.Fatalf("data = %v, want %v", got, want)
	}
}

func TestBroadcastIncompatible(t *testing.T) {
	a, _ := New([]float32{1, 2, 3}, []int64{3})
	b, _ := New([]float32{1, 2}, []int64{2})
	if _, err := BroadcastMul(a, b); err == nil {
		t.Fatal("expected broadcast error")
	}
}

func TestAddInPlace(t *testing.T) {
	a, _ := New([]float32{1, 2}, []int64{2})
	b, _ := New([]float32{3, 4}, []int64{2})
	if err := a.AddInPlace(b); err != nil {
		t.Fatalf("add in place: %v", err)
	}
	if got := a.Data(); !equalF32(got, []float32{4, 6}, 0) {
		t.Fatalf("data = %v", got)
	}
	c, _ := New([]float32{1}, []int64{1})
	if err := a.AddInPlace(c); err == nil {
		t.Fatal("expected shape mismatch error")
	}
}

func TestSoftmaxRows(t *testing.T) {
	x, _ := New([]float32{1, 2, 3, 0, 0, 0}, []int64{2, 3})
	out, err := Softmax(x, -1)
	if err != nil {
		t.Fatalf("softmax: %v", err)
	}
	data := out.Data()
	for r := range 2 {
		var sum float64
		for c := range 3 {
			sum += float64(data[r*3+c])
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Fatalf("row %d sums to %f", r, sum)
		}
	}
	if math.Abs(float64(data[3])-1.0/3) > 1e-6 {
		t.Fatalf("uniform row = %v", data[3:])
	}
}

func TestSoftmaxMaskedEntries(t *testing.T) {
	negInf := float32(math.Inf(-1))
	x, _ := New([]float32{0, 0, negInf}, []int64{1, 3})
	out, err := Softmax(x, 1)
	if err != nil {
		t.Fatalf("softmax: %v", err)
	}
	want := []float32{0.5, 0.5, 0}
	if got := out.Data(); !equalF32(got, want, 1e-6) {
		t.Fatalf("data = %v, want %v", got, want)
	}

	all, _ := New([]float32{negInf, negInf}, []int64{1, 2})
	if _, err := Softmax(all, 1); err == nil {
		t.Fatal("expected error for fully masked slice")
	}
}

func TestMatMulBatched(t *testing.T) {
	a, _ := New([]float32{1, 2, 3, 4, 1, 0, 0, 1}, []int64{2, 2, 2})
	b, _ := New([]float32{5, 6, 7, 8}, []int64{2, 2})
	out, err := MatMul(a, b)
	if err != nil {
		t.Fatalf("matmul: %v", err)
	}
	want := []float32{19, 22, 43, 50, 5, 6, 7, 8}
	if got := out.Data(); !equalF32(got, want, 1e-6) {
		t.Fatalf("data = %v, want %v", got, want)
	}
}

func TestMatMulMismatch(t *testing.T) {
	a, _ := New(make([]float32, 6), []int64{2, 3})
	b, _ := New(make([]float32, 4), []int64{2, 2})
	if _, err := MatMul(a, b); err == nil {
		t.Fatal("expected K mismatch error")
	}
}

func TestLinearWithBiasParallel(t *testing.T) {
	prev := Workers()
	SetWorkers(3)
	t.Cleanup(func() { SetWorkers(prev) })

	x, _ := New([]float32{1, 2, 3, 4}, []int64{2, 2})
	w, _ := New([]float32{1, 0, 0, 1, 1, 1}, []int64{3, 2})
	b, _ := New([]float32{0, 1, 2}, []int64{3})
	out, err := Linear(x, w, b)
	if err != nil {
		t.Fatalf("linear: %v", err)
	}
	if !equalI64(out.Shape(), []int64{2, 3}) {
		t.Fatalf("shape = %v", out.Shape())
	}
	want := []float32{1, 3, 5, 3, 5, 9}
	if got := out.Data(); !equalF32(got, want, 1e-6) {
		t.Fatalf("data = %v, want %v", got, want)
	}
}

func TestActivations(t *testing.T) {
	x, _ := New([]float32{-1, 0, 2}, []int64{3})
	if got := ReLU(x).Data(); !equalF32(got, []float32{0, 0, 2}, 0) {
		t.Fatalf("relu = %v", got)
	}
	if got := Sigmoid(x).Data()[1]; got != 0.5 {
		t.Fatalf("sigmoid(0) = %v", got)
	}
	if got := Tanh(x).Data()[1]; got != 0 {
		t.Fatalf("tanh(0) = %v", got)
	}
}

func TestDotProductUnrolled(t *testing.T) {
	a := []float32{1, 2, 3, 4, 5, 6, 7}
	b := []float32{1, 1, 1, 1, 1, 1, 1}
	if got := DotProduct(a, b); got != 28 {
		t.Fatalf("dot = %v, want 28", got)
	}
}

func TestParallelForCoversRange(t *testing.T) {
	seen := make([]int, 10)
	parallelFor(10, 4, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			seen[i]++
		}
	})
	for i, n := range seen {
		if n != 1 {
			t.Fatalf("index %d visited %d times", i, n)
		}
	}
}
