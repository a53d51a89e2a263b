package tensor

import (
	"errors"
	"fmt"
	"math"
)

// Softmax applies softmax along dim. Entries equal to -Inf receive zero
// probability; a slice that is entirely -Inf is an error.
func Softmax(x *Tensor, dim int) (*Tensor, error) {
	if x == nil {
		return nil, errors.New("tensor: softmax on nil tensor")
	}

	if len(x.shape) == 0 {
		return nil, errors.New("tensor: softmax requires rank >= 1")
	}

	dim, err := normalizeDim(dim, len(x.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: softmax: %w", err)
	}

	axis := x.shape[dim]
	if axis <= 0 {
		return nil, fmt.Errorf("tensor: softmax axis dimension must be > 0, got %d", axis)
	}

	outer, inner := splitAround(x.shape, dim)
	out := x.Clone()

	for o := range outer {
		for in := range inner {
			base := o*axis*inner + in
			maxV := float32(math.Inf(-1))

			for k := range axis {
				maxV = max(maxV, out.data[base+k*inner])
			}

			if math.IsInf(float64(maxV), -1) {
				return nil, errors.New("tensor: softmax slice is fully masked")
			}

			var sum float64

			for k := range axis {
				i := base + k*inner
				e := math.Exp(float64(out.data[i] - maxV))
				out.data[i] = float32(e)
				sum += e
			}

			inv := float32(1.0 / sum)
			for k := range axis {
				out.data[base+k*inner] *= inv
			}
		}
	}

	return out, nil
}

// MatMul performs batched matrix multiplication with broadcasting over batch dims.
func MatMul(a, b *Tensor) (*Tensor, error) {
	if a == nil || b == nil {
		return nil, errors.New("tensor: matmul requires non-nil inputs")
	}

	if a.Rank() < 2 || b.Rank() < 2 {
		return nil, fmt.Errorf("tensor: matmul requires rank >= 2, got %d and %d", a.Rank(), b.Rank())
	}

	aRank, bRank := len(a.shape), len(b.shape)
	m, k := a.shape[aRank-2], a.shape[aRank-1]
	k2, n := b.shape[bRank-2], b.shape[bRank-1]

	if k != k2 {
		return nil, fmt.Errorf("tensor: matmul mismatch: A shape %v and B shape %v (K dims %d vs %d)", a.shape, b.shape, k, k2)
	}

	batchShape, err := broadcastShape(a.shape[:aRank-2], b.shape[:bRank-2])
	if err != nil {
		return nil, fmt.Errorf("tensor: matmul batch broadcast: %w", err)
	}

	batchCount, err := shapeElemCount(batchShape)
	if err != nil {
		return nil, err
	}

	outShape := append(append([]int64(nil), batchShape...), m, n)
	out := make([]float32, int64(batchCount)*m*n)

	aPad := leftPadShape(a.shape[:aRank-2], len(batchShape))
	bPad := leftPadShape(b.shape[:bRank-2], len(batchShape))
	aStrides := computeStrides(aPad)
	bStrides := computeStrides(bPad)
	batchStrides := computeStrides(batchShape)

	ParallelFor(batchCount, func(lo, hi int) {
		coord := make([]int64, len(batchShape))
		col := make([]float32, k)

		for batch := lo; batch < hi; batch++ {
			linearToCoord(int64(batch), batchShape, batchStrides, coord)

			var aIdx, bIdx int64

			for d, c := range coord {
				if aPad[d] != 1 {
					aIdx += c * aStrides[d]
				}

				if bPad[d] != 1 {
					bIdx += c * bStrides[d]
				}
			}

			aMat := a.data[aIdx*m*k : (aIdx+1)*m*k]
			bMat := b.data[bIdx*k*n : (bIdx+1)*k*n]
			oMat := out[int64(batch)*m*n : int64(batch+1)*m*n]

			for j := range n {
				for kk := range k {
					col[kk] = bMat[kk*n+j]
				}

				for i := range m {
					oMat[i*n+j] = dotF32(aMat[i*k:(i+1)*k], col)
				}
			}
		}
	})

	return wrap(out, outShape), nil
}

// Linear applies y = x * W^T + b where weight shape is [out, in]. bias may be nil.
func Linear(x, weight, bias *Tensor) (*Tensor, error) {
	if x == nil || weight == nil {
		return nil, errors.New("tensor: linear requires non-nil x and weight")
	}

	if x.Rank() < 1 {
		return nil, errors.New("tensor: linear requires x rank >= 1")
	}

	if weight.Rank() != 2 {
		return nil, fmt.Errorf("tensor: linear weight must be rank 2, got %d", weight.Rank())
	}

	in := int(x.shape[x.Rank()-1])
	outDim := int(weight.shape[0])

	if int(weight.shape[1]) != in {
		return nil, fmt.Errorf("tensor: linear mismatch: x last dim %d, weight in dim %d", in, weight.shape[1])
	}

	if bias != nil && (bias.Rank() != 1 || int(bias.shape[0]) != outDim) {
		return nil, fmt.Errorf("tensor: linear bias shape %v does not match out dim %d", bias.shape, outDim)
	}

	rows := 0
	if in > 0 {
		rows = len(x.data) / in
	}

	out := make([]float32, rows*outDim)
	w := weight.data

	ParallelFor(outDim, func(lo, hi int) {
		for r := range rows {
			xRow := x.data[r*in : (r+1)*in]
			yRow := out[r*outDim : (r+1)*outDim]

			for o := lo; o < hi; o++ {
				sum := dotF32(xRow, w[o*in:(o+1)*in])
				if bias != nil {
					sum += bias.data[o]
				}

				yRow[o] = sum
			}
		}
	})

	outShape := append([]int64(nil), x.shape...)
	outShape[len(outShape)-1] = int64(outDim)

	return wrap(out, outShape), nil
}

// Map returns fn applied to every element.
func Map(x *Tensor, fn func(float32) float32) *Tensor {
	if x == nil {
		return nil
	}

	out := make([]float32, len(x.data))
	for i, v := range x.data {
		out[i] = fn(v)
	}

	return wrap(out, append([]int64(nil), x.shape...))
}

func Tanh(x *Tensor) *Tensor {
	return Map(x, func(v float32) float32 { return float32(math.Tanh(float64(v))) })
}

func ReLU(x *Tensor) *Tensor {
	return Map(x, func(v float32) float32 { return max(v, 0) })
}

// Sigmoid applies the logistic function element-wise.
func Sigmoid(x *Tensor) *Tensor {
	return Map(x, sigmoid)
}

func sigmoid(v float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(-float64(v))))
}
