package ops

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-tacotron2/internal/runtime/tensor"
)

// LSTMState is the (hidden, cell) pair of an LSTM cell, each [batch, hidden].
type LSTMState struct {
	H *tensor.Tensor
	C *tensor.Tensor
}

// ZeroLSTMState returns an all-zero state.
func ZeroLSTMState(batch, hidden int64) (LSTMState, error) {
	h, err := tensor.Zeros([]int64{batch, hidden})
	if err != nil {
		return LSTMState{}, err
	}

	c, err := tensor.Zeros([]int64{batch, hidden})
	if err != nil {
		return LSTMState{}, err
	}

	return LSTMState{H: h, C: c}, nil
}

// LSTMCell advances one step of a torch.nn.LSTMCell.
// x: [batch, in]; wIH: [4H, in]; wHH: [4H, H]; biases: optional [4H].
// Gate order is input, forget, cell, output.
func LSTMCell(x *tensor.Tensor, state LSTMState, wIH, wHH, bIH, bHH *tensor.Tensor) (LSTMState, error) {
	if x == nil || state.H == nil || state.C == nil {
		return LSTMState{}, errors.New("ops: lstm cell requires non-nil input and state")
	}

	gx, err := tensor.Linear(x, wIH, bIH)
	if err != nil {
		return LSTMState{}, fmt.Errorf("ops: lstm input projection: %w", err)
	}

	gh, err := tensor.Linear(state.H, wHH, bHH)
	if err != nil {
		return LSTMState{}, fmt.Errorf("ops: lstm hidden projection: %w", err)
	}

	hShape := state.H.Shape()
	batch, hidden := hShape[0], hShape[1]

	if gx.Dim(-1) != 4*hidden || gx.Dim(0) != batch {
		return LSTMState{}, fmt.Errorf("ops: lstm gate shape %v does not match state %v", gx.Shape(), hShape)
	}

	gxd, ghd := gx.RawData(), gh.RawData()
	prevC := state.C.RawData()
	h := make([]float32, batch*hidden)
	c := make([]float32, batch*hidden)

	for b := range batch {
		g := b * 4 * hidden
		for j := range hidden {
			i := sigmoid(gxd[g+j] + ghd[g+j])
			f := sigmoid(gxd[g+hidden+j] + ghd[g+hidden+j])
			cand := tanh(gxd[g+2*hidden+j] + ghd[g+2*hidden+j])
			o := sigmoid(gxd[g+3*hidden+j] + ghd[g+3*hidden+j])

			k := b*hidden + j
			c[k] = f*prevC[k] + i*cand
			h[k] = o * tanh(c[k])
		}
	}

	hT, err := tensor.New(h, hShape)
	if err != nil {
		return LSTMState{}, err
	}

	cT, err := tensor.New(c, hShape)
	if err != nil {
		return LSTMState{}, err
	}

	return LSTMState{H: hT, C: cT}, nil
}

func sigmoid(v float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(v))))
}

func tanh(v float32) float32 {
	return float32(math.Tanh(float64(v)))
}
