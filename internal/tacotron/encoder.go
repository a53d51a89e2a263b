package tacotron

import (
	"fmt"
	"math/rand/v2"

	"github.com/example/go-tacotron2/internal/runtime/ops"
	"github.com/example/go-tacotron2/internal/runtime/tensor"
)

// encoder is a conv stack followed by a bidirectional LSTM.
type encoder struct {
	convs    []convBlock
	forward  lstmWeights
	backward lstmWeights
}

func newEncoder(rng *rand.Rand, hp HParams) encoder {
	dim := hp.EncoderEmbeddingDim
	e := encoder{convs: make([]convBlock, hp.EncoderNConvolutions)}

	for i := range e.convs {
		e.convs[i] = newConvBlock(rng, dim, dim, hp.EncoderKernelSize, gainReLU)
	}

	e.forward = newLSTMWeights(rng, dim, dim/2)
	e.backward = newLSTMWeights(rng, dim, dim/2)

	return e
}

func (e *encoder) params(list *paramList) {
	for i := range e.convs {
		e.convs[i].params(list, fmt.Sprintf("encoder.convolutions.%d", i))
	}

	e.forward.params(list, "encoder.lstm", "_l0")
	e.backward.params(list, "encoder.lstm", "_l0_reverse")
}

// run maps x [B, C, T] to [B, T', C]. With lengths, each item is treated as
// a packed sequence of lengths[b] steps, T' is the largest length and padded
// positions are zero. Without lengths every item spans all T steps.
func (e *encoder) run(x *tensor.Tensor, lengths []int64) (*tensor.Tensor, error) {
	var err error

	for i := range e.convs {
		x, err = e.convs[i].forward(x)
		if err != nil {
			return nil, fmt.Errorf("tacotron: encoder conv %d: %w", i, err)
		}

		x = tensor.ReLU(x)
	}

	x, err = x.Transpose(1, 2)
	if err != nil {
		return nil, err
	}

	batch, steps := x.Dim(0), x.Dim(1)

	if lengths == nil {
		lengths = make([]int64, batch)
		for b := range lengths {
			lengths[b] = steps
		}
	}

	if int64(len(lengths)) != batch {
		return nil, fmt.Errorf("tacotron: encoder got %d lengths for batch %d", len(lengths), batch)
	}

	outSteps := int64(0)
	for b, l := range lengths {
		if l < 0 || l > steps {
			return nil, fmt.Errorf("tacotron: encoder length %d of item %d outside [0, %d]", l, b, steps)
		}

		outSteps = max(outSteps, l)
	}

	hidden := e.forward.hidden
	out := make([]float32, batch*outSteps*2*hidden)

	if err := e.direction(x, lengths, &e.forward, false, out, outSteps); err != nil {
		return nil, fmt.Errorf("tacotron: encoder lstm: %w", err)
	}

	if err := e.direction(x, lengths, &e.backward, true, out, outSteps); err != nil {
		return nil, fmt.Errorf("tacotron: encoder lstm reverse: %w", err)
	}

	return tensor.New(out, []int64{batch, outSteps, 2 * hidden})
}

// direction runs one LSTM direction over x [B, T, C], writing its half of
// each output row. Items whose sequence has not started (reverse) or has
// ended (forward) keep a zero state and emit zeros.
func (e *encoder) direction(x *tensor.Tensor, lengths []int64, w *lstmWeights, reverse bool, out []float32, outSteps int64) error {
	batch := x.Dim(0)
	hidden := w.hidden

	state, err := ops.ZeroLSTMState(batch, hidden)
	if err != nil {
		return err
	}

	offset := int64(0)
	if reverse {
		offset = hidden
	}

	for i := range outSteps {
		t := i
		if reverse {
			t = outSteps - 1 - i
		}

		xt, err := stepSlice(x, t)
		if err != nil {
			return err
		}

		state, err = w.step(xt, state)
		if err != nil {
			return err
		}

		h, c := state.H.RawData(), state.C.RawData()

		for b := range batch {
			row := h[b*hidden : (b+1)*hidden]
			if t >= lengths[b] {
				clear(row)
				clear(c[b*hidden : (b+1)*hidden])

				continue
			}

			dst := (b*outSteps+t)*2*hidden + offset
			copy(out[dst:dst+hidden], row)
		}
	}

	return nil
}

// stepSlice returns x[:, t, :] as [B, C].
func stepSlice(x *tensor.Tensor, t int64) (*tensor.Tensor, error) {
	xt, err := x.Narrow(1, t, 1)
	if err != nil {
		return nil, err
	}

	return xt.Reshape([]int64{x.Dim(0), x.Dim(2)})
}
