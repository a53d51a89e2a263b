package tensor

import (
	"errors"
	"fmt"
)

// BroadcastAdd performs element-wise add with NumPy-style broadcasting.
func BroadcastAdd(a, b *Tensor) (*Tensor, error) {
	return broadcastBinary(a, b, func(x, y float32) float32 { return x + y }, "add")
}

// BroadcastMul performs element-wise multiply with NumPy-style broadcasting.
func BroadcastMul(a, b *Tensor) (*Tensor, error) {
	return broadcastBinary(a, b, func(x, y float32) float32 { return x * y }, "mul")
}

// Add sums two tensors of identical shape. It is the fast path used for
// residual connections.
func Add(a, b *Tensor) (*Tensor, error) {
	if a == nil || b == nil {
		return nil, errors.New("tensor: add requires non-nil inputs")
	}

	if !equalShape(a.shape, b.shape) {
		return BroadcastAdd(a, b)
	}

	out := make([]float32, len(a.data))
	for i := range out {
		out[i] = a.data[i] + b.data[i]
	}

	return wrap(out, append([]int64(nil), a.shape...)), nil
}

// AddInPlace accumulates b into t. Shapes must match exactly.
func (t *Tensor) AddInPlace(b *Tensor) error {
	if t == nil || b == nil {
		return errors.New("tensor: add in place requires non-nil inputs")
	}

	if !equalShape(t.shape, b.shape) {
		return fmt.Errorf("tensor: add in place shape %v does not match %v", b.shape, t.shape)
	}

	for i := range t.data {
		t.data[i] += b.data[i]
	}

	return nil
}

func broadcastBinary(a, b *Tensor, fn func(x, y float32) float32, opName string) (*Tensor, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("tensor: broadcast %s requires non-nil inputs", opName)
	}

	outShape, err := broadcastShape(a.shape, b.shape)
	if err != nil {
		return nil, fmt.Errorf("tensor: broadcast %s: %w", opName, err)
	}

	total, err := shapeElemCount(outShape)
	if err != nil {
		return nil, err
	}

	aPad := leftPadShape(a.shape, len(outShape))
	bPad := leftPadShape(b.shape, len(outShape))
	aStrides := computeStrides(aPad)
	bStrides := computeStrides(bPad)
	outStrides := computeStrides(outShape)
	coord := make([]int64, len(outShape))
	out := make([]float32, total)

	for i := range out {
		linearToCoord(int64(i), outShape, outStrides, coord)

		var aOff, bOff int64

		for d, c := range coord {
			if aPad[d] != 1 {
				aOff += c * aStrides[d]
			}

			if bPad[d] != 1 {
				bOff += c * bStrides[d]
			}
		}

		out[i] = fn(a.data[aOff], b.data[bOff])
	}

	return wrap(out, outShape), nil
}

func broadcastShape(a, b []int64) ([]int64, error) {
	rank := max(len(a), len(b))
	aPad := leftPadShape(a, rank)
	bPad := leftPadShape(b, rank)
	out := make([]int64, rank)

	for i := range rank {
		switch {
		case aPad[i] == bPad[i] || aPad[i] == 1:
			out[i] = bPad[i]
		case bPad[i] == 1:
			out[i] = aPad[i]
		default:
			return nil, fmt.Errorf("cannot broadcast shapes %v and %v", a, b)
		}
	}

	return out, nil
}

func leftPadShape(shape []int64, rank int) []int64 {
	out := make([]int64, rank)
	pad := rank - len(shape)

	for i := range pad {
		out[i] = 1
	}

	copy(out[pad:], shape)

	return out
}
