// Package tensor is the dense float32 tensor runtime the acoustic model runs
// on. Every operation allocates its result; inputs are never mutated unless
// the method name says so (the *InPlace family).
package tensor

import (
	"errors"
	"fmt"
)

// Tensor is a dense, row-major float32 tensor.
type Tensor struct {
	shape []int64
	data  []float32
}

// New creates a tensor from a copy of data with the given shape.
func New(data []float32, shape []int64) (*Tensor, error) {
	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	if len(data) != total {
		return nil, fmt.Errorf("tensor: data length %d does not match shape %v (%d elements)", len(data), shape, total)
	}

	return &Tensor{
		shape: append([]int64(nil), shape...),
		data:  append([]float32(nil), data...),
	}, nil
}

// wrap takes ownership of data and shape. len(data) must match shape.
func wrap(data []float32, shape []int64) *Tensor {
	return &Tensor{shape: shape, data: data}
}

// Zeros creates a zero-initialized tensor.
func Zeros(shape []int64) (*Tensor, error) {
	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	return wrap(make([]float32, total), append([]int64(nil), shape...)), nil
}

// Full creates a tensor with every element set to value.
func Full(shape []int64, value float32) (*Tensor, error) {
	t, err := Zeros(shape)
	if err != nil {
		return nil, err
	}

	for i := range t.data {
		t.data[i] = value
	}

	return t, nil
}

func (t *Tensor) Shape() []int64 {
	if t == nil {
		return nil
	}

	return append([]int64(nil), t.shape...)
}

// Dim returns the size of dimension d; negative d counts from the end.
func (t *Tensor) Dim(d int) int64 {
	if t == nil {
		return 0
	}

	d, err := normalizeDim(d, len(t.shape))
	if err != nil {
		return 0
	}

	return t.shape[d]
}

// Data returns a copy of the underlying values.
func (t *Tensor) Data() []float32 {
	if t == nil {
		return nil
	}

	return append([]float32(nil), t.data...)
}

// RawData returns the underlying slice. Writes through it are visible to the
// tensor; callers that only read must not modify it.
func (t *Tensor) RawData() []float32 {
	if t == nil {
		return nil
	}

	return t.data
}

func (t *Tensor) ElemCount() int {
	if t == nil {
		return 0
	}

	return len(t.data)
}

func (t *Tensor) Rank() int {
	if t == nil {
		return 0
	}

	return len(t.shape)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}

	return wrap(append([]float32(nil), t.data...), append([]int64(nil), t.shape...))
}

// Reshape returns a copy of t with a new shape of the same element count.
// A single -1 dimension is inferred.
func (t *Tensor) Reshape(shape []int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: reshape on nil tensor")
	}

	shape, err := inferShape(shape, len(t.data))
	if err != nil {
		return nil, fmt.Errorf("tensor: cannot reshape %v: %w", t.shape, err)
	}

	return wrap(append([]float32(nil), t.data...), shape), nil
}

// Unsqueeze inserts a size-1 dimension at dim.
func (t *Tensor) Unsqueeze(dim int) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: unsqueeze on nil tensor")
	}

	rank := len(t.shape) + 1
	if dim < 0 {
		dim += rank
	}

	if dim < 0 || dim >= rank {
		return nil, fmt.Errorf("tensor: unsqueeze dim %d out of range for rank %d", dim, rank-1)
	}

	shape := make([]int64, 0, rank)
	shape = append(shape, t.shape[:dim]...)
	shape = append(shape, 1)
	shape = append(shape, t.shape[dim:]...)

	return wrap(append([]float32(nil), t.data...), shape), nil
}

// Squeeze removes dimension dim, which must have size 1.
func (t *Tensor) Squeeze(dim int) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: squeeze on nil tensor")
	}

	dim, err := normalizeDim(dim, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: squeeze: %w", err)
	}

	if t.shape[dim] != 1 {
		return nil, fmt.Errorf("tensor: squeeze dim %d has size %d", dim, t.shape[dim])
	}

	shape := make([]int64, 0, len(t.shape)-1)
	shape = append(shape, t.shape[:dim]...)
	shape = append(shape, t.shape[dim+1:]...)

	return wrap(append([]float32(nil), t.data...), shape), nil
}

func inferShape(shape []int64, total int) ([]int64, error) {
	out := append([]int64(nil), shape...)
	infer := -1
	known := int64(1)

	for i, d := range out {
		switch {
		case d == -1:
			if infer >= 0 {
				return nil, fmt.Errorf("shape %v has more than one -1 dimension", shape)
			}
			infer = i
		case d < 0:
			return nil, fmt.Errorf("shape %v has negative dimension at %d", shape, i)
		default:
			known *= d
		}
	}

	if infer >= 0 {
		if known == 0 || int64(total)%known != 0 {
			return nil, fmt.Errorf("cannot infer dimension of %v for %d elements", shape, total)
		}
		out[infer] = int64(total) / known
	}

	n, err := shapeElemCount(out)
	if err != nil {
		return nil, err
	}

	if n != total {
		return nil, fmt.Errorf("target shape %v has %d elements, want %d", out, n, total)
	}

	return out, nil
}
