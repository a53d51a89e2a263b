package tensor

import (
	"errors"
	"fmt"
)

// Narrow returns the slice [start, start+length) of dimension dim.
func (t *Tensor) Narrow(dim int, start, length int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: narrow on nil tensor")
	}

	dim, err := normalizeDim(dim, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: narrow: %w", err)
	}

	size := t.shape[dim]
	if start < 0 || length < 0 || start+length > size {
		return nil, fmt.Errorf("tensor: narrow: range [%d:%d] out of bounds for dim %d size %d", start, start+length, dim, size)
	}

	outShape := append([]int64(nil), t.shape...)
	outShape[dim] = length

	outer, inner := splitAround(t.shape, dim)
	span := length * inner
	out := make([]float32, outer*span)

	for o := range outer {
		src := o*size*inner + start*inner
		copy(out[o*span:(o+1)*span], t.data[src:src+span])
	}

	return wrap(out, outShape), nil
}

// IndexSelect picks entries of dimension dim in the order given by indices.
// Indices may repeat.
func (t *Tensor) IndexSelect(dim int, indices []int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: index select on nil tensor")
	}

	dim, err := normalizeDim(dim, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: index select: %w", err)
	}

	size := t.shape[dim]
	for i, idx := range indices {
		if idx < 0 || idx >= size {
			return nil, fmt.Errorf("tensor: index select index %d (%d) out of range for dim %d size %d", i, idx, dim, size)
		}
	}

	outShape := append([]int64(nil), t.shape...)
	outShape[dim] = int64(len(indices))

	outer, inner := splitAround(t.shape, dim)
	n := int64(len(indices))
	out := make([]float32, outer*n*inner)

	for o := range outer {
		for j, idx := range indices {
			src := (o*size + idx) * inner
			dst := (o*n + int64(j)) * inner
			copy(out[dst:dst+inner], t.data[src:src+inner])
		}
	}

	return wrap(out, outShape), nil
}

// Transpose swaps dim1 and dim2.
func (t *Tensor) Transpose(dim1, dim2 int) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: transpose on nil tensor")
	}

	rank := len(t.shape)

	d1, err := normalizeDim(dim1, rank)
	if err != nil {
		return nil, fmt.Errorf("tensor: transpose dim1: %w", err)
	}

	d2, err := normalizeDim(dim2, rank)
	if err != nil {
		return nil, fmt.Errorf("tensor: transpose dim2: %w", err)
	}

	if d1 == d2 {
		return t.Clone(), nil
	}

	outShape := append([]int64(nil), t.shape...)
	outShape[d1], outShape[d2] = outShape[d2], outShape[d1]

	out := make([]float32, len(t.data))
	srcStrides := computeStrides(t.shape)
	outStrides := computeStrides(outShape)
	coord := make([]int64, rank)

	for i := range out {
		linearToCoord(int64(i), outShape, outStrides, coord)
		coord[d1], coord[d2] = coord[d2], coord[d1]
		out[i] = t.data[coordToLinear(coord, srcStrides)]
	}

	return wrap(out, outShape), nil
}

// Concat joins tensors along dim. All other dimensions must agree.
func Concat(tensors []*Tensor, dim int) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, errors.New("tensor: concat requires at least one tensor")
	}

	first := tensors[0]
	if first == nil {
		return nil, errors.New("tensor: concat tensor 0 is nil")
	}

	rank := len(first.shape)

	dim, err := normalizeDim(dim, rank)
	if err != nil {
		return nil, fmt.Errorf("tensor: concat: %w", err)
	}

	outShape := append([]int64(nil), first.shape...)
	outShape[dim] = 0

	for i, t := range tensors {
		if t == nil {
			return nil, fmt.Errorf("tensor: concat tensor %d is nil", i)
		}

		if len(t.shape) != rank {
			return nil, fmt.Errorf("tensor: concat tensor %d rank %d does not match rank %d", i, len(t.shape), rank)
		}

		for d := range rank {
			if d != dim && t.shape[d] != first.shape[d] {
				return nil, fmt.Errorf("tensor: concat tensor %d shape %v does not match base shape %v on dim %d", i, t.shape, first.shape, d)
			}
		}

		outShape[dim] += t.shape[dim]
	}

	outer, inner := splitAround(outShape, dim)
	rowSpan := outShape[dim] * inner
	out := make([]float32, outer*rowSpan)

	for o := range outer {
		pos := o * rowSpan

		for _, t := range tensors {
			span := t.shape[dim] * inner
			copy(out[pos:pos+span], t.data[o*span:(o+1)*span])
			pos += span
		}
	}

	return wrap(out, outShape), nil
}
