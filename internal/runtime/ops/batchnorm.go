package ops

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-tacotron2/internal/runtime/tensor"
)

// BatchNormEps matches torch.nn.BatchNorm1d.
const BatchNormEps = 1e-5

// BatchNorm1D applies inference-mode batch normalization with running
// statistics over the channel axis of x [batch, channels, length].
func BatchNorm1D(x, weight, bias, runningMean, runningVar *tensor.Tensor, eps float32) (*tensor.Tensor, error) {
	if x == nil || weight == nil || bias == nil || runningMean == nil || runningVar == nil {
		return nil, errors.New("ops: batchnorm requires non-nil input and parameters")
	}

	shape := x.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("ops: batchnorm expects rank-3 input, got %v", shape)
	}

	channels := shape[1]
	for name, p := range map[string]*tensor.Tensor{"weight": weight, "bias": bias, "running_mean": runningMean, "running_var": runningVar} {
		ps := p.Shape()
		if len(ps) != 1 || ps[0] != channels {
			return nil, fmt.Errorf("ops: batchnorm %s shape %v does not match channels %d", name, ps, channels)
		}
	}

	w, b := weight.RawData(), bias.RawData()
	mean, variance := runningMean.RawData(), runningVar.RawData()

	scale := make([]float32, channels)
	shift := make([]float32, channels)

	for c := range channels {
		inv := float32(1 / math.Sqrt(float64(variance[c])+float64(eps)))
		scale[c] = w[c] * inv
		shift[c] = b[c] - mean[c]*scale[c]
	}

	out := x.Clone()
	data := out.RawData()
	length := shape[2]

	for bi := range shape[0] {
		for c := range channels {
			base := (bi*channels + c) * length
			for t := range length {
				data[base+t] = data[base+t]*scale[c] + shift[c]
			}
		}
	}

	return out, nil
}
