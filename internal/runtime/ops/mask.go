package ops

import (
	"errors"
	"fmt"

	"github.com/example/go-tacotron2/internal/runtime/tensor"
)

// LengthMask returns a [batch][maxLen] mask that is true at valid positions
// (t < lengths[b]). maxLen <= 0 uses the largest length.
func LengthMask(lengths []int64, maxLen int64) [][]bool {
	if maxLen <= 0 {
		for _, l := range lengths {
			maxLen = max(maxLen, l)
		}
	}

	mask := make([][]bool, len(lengths))
	for b, l := range lengths {
		row := make([]bool, maxLen)
		for t := range min(l, maxLen) {
			row[t] = true
		}

		mask[b] = row
	}

	return mask
}

// MaskTime sets x[b, ..., t] to value wherever valid[b][t*stride] is false.
// x has shape [batch, ..., T] and valid has width >= (T-1)*stride+1.
func MaskTime(x *tensor.Tensor, valid [][]bool, stride int64, value float32) (*tensor.Tensor, error) {
	if x == nil {
		return nil, errors.New("ops: mask time on nil tensor")
	}

	if stride <= 0 {
		return nil, fmt.Errorf("ops: mask time stride must be > 0, got %d", stride)
	}

	shape := x.Shape()
	if len(shape) < 2 {
		return nil, fmt.Errorf("ops: mask time requires rank >= 2, got %v", shape)
	}

	batch := shape[0]
	if int64(len(valid)) != batch {
		return nil, fmt.Errorf("ops: mask has %d rows for batch %d", len(valid), batch)
	}

	steps := shape[len(shape)-1]
	rows := int64(x.ElemCount()) / (batch * max(steps, 1))

	out := x.Clone()
	data := out.RawData()

	for b := range batch {
		row := valid[b]
		if steps > 0 && int64(len(row)) < (steps-1)*stride+1 {
			return nil, fmt.Errorf("ops: mask row %d has width %d, need %d", b, len(row), (steps-1)*stride+1)
		}

		for r := range rows {
			base := (b*rows + r) * steps
			for t := range steps {
				if !row[t*stride] {
					data[base+t] = value
				}
			}
		}
	}

	return out, nil
}
