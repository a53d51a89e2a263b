package tacotron

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/example/go-tacotron2/internal/runtime/ops"
	"github.com/example/go-tacotron2/internal/runtime/tensor"
)

// ErrFrameCount is returned when a teacher-forcing target is not a whole
// number of decoder steps long.
var ErrFrameCount = errors.New("tacotron: target frames not a multiple of frames per step")

// prenet is the bottleneck applied to the previous frame group. Dropout is
// applied at inference too.
type prenet struct {
	layers  []linearNorm
	dropout float64
}

func newPrenet(rng *rand.Rand, in int, sizes []int, dropout float64) prenet {
	p := prenet{layers: make([]linearNorm, len(sizes)), dropout: dropout}

	for i, size := range sizes {
		p.layers[i] = newLinearNorm(rng, in, size, false, gainLinear)
		in = size
	}

	return p
}

func (p *prenet) params(list *paramList) {
	for i := range p.layers {
		p.layers[i].params(list, fmt.Sprintf("decoder.prenet.layers.%d", i))
	}
}

func (p *prenet) forward(x *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, error) {
	for i := range p.layers {
		y, err := p.layers[i].forward(x)
		if err != nil {
			return nil, fmt.Errorf("tacotron: prenet layer %d: %w", i, err)
		}

		x = tensor.ReLU(y)

		if p.dropout > 0 {
			scale := float32(1 / (1 - p.dropout))
			data := x.RawData()

			for j := range data {
				if rng.Float64() < p.dropout {
					data[j] = 0
				} else {
					data[j] *= scale
				}
			}
		}
	}

	return x, nil
}

type decoder struct {
	numMels       int64
	framesPerStep int64
	maxSteps      int
	gateThreshold float32

	prenet       prenet
	attentionRNN lstmWeights
	attention    locationAttention
	decoderRNN   lstmWeights
	projection   linearNorm
	gate         linearNorm
}

func newDecoder(rng *rand.Rand, hp HParams) decoder {
	frameDim := hp.NumMels * hp.NFramesPerStep
	enc := hp.EncoderEmbeddingDim

	return decoder{
		numMels:       int64(hp.NumMels),
		framesPerStep: int64(hp.NFramesPerStep),
		maxSteps:      hp.MaxDecoderSteps,
		gateThreshold: float32(hp.GateThreshold),

		prenet:       newPrenet(rng, frameDim, []int{hp.PrenetDim, hp.PrenetDim}, hp.PrenetDropout),
		attentionRNN: newLSTMWeights(rng, hp.PrenetDim+enc, hp.AttentionRNNDim),
		attention:    newLocationAttention(rng, hp),
		decoderRNN:   newLSTMWeights(rng, hp.AttentionRNNDim+enc, hp.DecoderRNNDim),
		projection:   newLinearNorm(rng, hp.DecoderRNNDim+enc, frameDim, true, gainLinear),
		gate:         newLinearNorm(rng, hp.DecoderRNNDim+enc, 1, true, gainSigmoid),
	}
}

func (d *decoder) params(list *paramList) {
	d.prenet.params(list)
	d.attentionRNN.params(list, "decoder.attention_rnn", "")
	d.attention.params(list)
	d.decoderRNN.params(list, "decoder.decoder_rnn", "")
	d.projection.params(list, "decoder.linear_projection")
	d.gate.params(list, "decoder.gate_layer")
}

// decoderState is the recurrent state carried between decoder steps.
type decoderState struct {
	attentionHidden ops.LSTMState
	decoderHidden   ops.LSTMState
	weights         *tensor.Tensor // [B, T]
	weightsCum      *tensor.Tensor // [B, T]
	context         *tensor.Tensor // [B, D]

	memory    *tensor.Tensor // [B, T, D]
	processed *tensor.Tensor // [B, T, A]
	valid     [][]bool
}

func (d *decoder) initState(memory *tensor.Tensor, valid [][]bool) (*decoderState, error) {
	batch, steps, dim := memory.Dim(0), memory.Dim(1), memory.Dim(2)

	processed, err := d.attention.memory.forward(memory)
	if err != nil {
		return nil, fmt.Errorf("tacotron: memory layer: %w", err)
	}

	att, err := ops.ZeroLSTMState(batch, d.attentionRNN.hidden)
	if err != nil {
		return nil, err
	}

	dec, err := ops.ZeroLSTMState(batch, d.decoderRNN.hidden)
	if err != nil {
		return nil, err
	}

	weights, err := tensor.Zeros([]int64{batch, steps})
	if err != nil {
		return nil, err
	}

	context, err := tensor.Zeros([]int64{batch, dim})
	if err != nil {
		return nil, err
	}

	return &decoderState{
		attentionHidden: att,
		decoderHidden:   dec,
		weights:         weights,
		weightsCum:      weights.Clone(),
		context:         context,
		memory:          memory,
		processed:       processed,
		valid:           valid,
	}, nil
}

// step runs one decoder step on a prenet output [B, prenet_dim] and returns
// the frame group [B, num_mels*r], the gate logit [B, 1] and the attention
// weights [B, T].
func (d *decoder) step(st *decoderState, input *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, *tensor.Tensor, error) {
	cellInput, err := tensor.Concat([]*tensor.Tensor{input, st.context}, 1)
	if err != nil {
		return nil, nil, nil, err
	}

	st.attentionHidden, err = d.attentionRNN.step(cellInput, st.attentionHidden)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tacotron: attention rnn: %w", err)
	}

	batch, steps := st.weights.Dim(0), st.weights.Dim(1)

	weightsCat, err := tensor.Concat([]*tensor.Tensor{st.weights, st.weightsCum}, 1)
	if err != nil {
		return nil, nil, nil, err
	}

	weightsCat, err = weightsCat.Reshape([]int64{batch, 2, steps})
	if err != nil {
		return nil, nil, nil, err
	}

	st.context, st.weights, err = d.attention.attend(st.attentionHidden.H, st.memory, st.processed, weightsCat, st.valid)
	if err != nil {
		return nil, nil, nil, err
	}

	if err := st.weightsCum.AddInPlace(st.weights); err != nil {
		return nil, nil, nil, err
	}

	decInput, err := tensor.Concat([]*tensor.Tensor{st.attentionHidden.H, st.context}, 1)
	if err != nil {
		return nil, nil, nil, err
	}

	st.decoderHidden, err = d.decoderRNN.step(decInput, st.decoderHidden)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tacotron: decoder rnn: %w", err)
	}

	hc, err := tensor.Concat([]*tensor.Tensor{st.decoderHidden.H, st.context}, 1)
	if err != nil {
		return nil, nil, nil, err
	}

	frames, err := d.projection.forward(hc)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tacotron: linear projection: %w", err)
	}

	gate, err := d.gate.forward(hc)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tacotron: gate layer: %w", err)
	}

	return frames, gate, st.weights, nil
}

// teacherForce decodes memory [B, T_enc, D] against targets [B, num_mels, T].
// memoryLengths may be nil, in which case no position is masked.
func (d *decoder) teacherForce(memory, targets *tensor.Tensor, memoryLengths []int64, rng *rand.Rand) (*tensor.Tensor, *tensor.Tensor, *tensor.Tensor, error) {
	if targets.Rank() != 3 || targets.Dim(0) != memory.Dim(0) || targets.Dim(1) != d.numMels {
		return nil, nil, nil, shapeError("mel target", targets.Shape(), memory.Dim(0), d.numMels, -1)
	}

	batch, frames := targets.Dim(0), targets.Dim(2)
	if frames%d.framesPerStep != 0 {
		return nil, nil, nil, fmt.Errorf("%w: %d frames, %d per step", ErrFrameCount, frames, d.framesPerStep)
	}

	steps := frames / d.framesPerStep
	groupDim := d.numMels * d.framesPerStep

	// [B, M, T] -> [B, T, M] -> [B, steps, M*r]
	grouped, err := targets.Transpose(1, 2)
	if err != nil {
		return nil, nil, nil, err
	}

	grouped, err = grouped.Reshape([]int64{batch, steps, groupDim})
	if err != nil {
		return nil, nil, nil, err
	}

	var valid [][]bool
	if memoryLengths != nil {
		valid = ops.LengthMask(memoryLengths, memory.Dim(1))
	}

	st, err := d.initState(memory, valid)
	if err != nil {
		return nil, nil, nil, err
	}

	input, err := tensor.Zeros([]int64{batch, groupDim})
	if err != nil {
		return nil, nil, nil, err
	}

	var melSteps, gateSteps, alignSteps []*tensor.Tensor

	for s := range steps {
		if s > 0 {
			if input, err = stepSlice(grouped, s-1); err != nil {
				return nil, nil, nil, err
			}
		}

		x, err := d.prenet.forward(input, rng)
		if err != nil {
			return nil, nil, nil, err
		}

		mel, gate, weights, err := d.step(st, x)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("tacotron: decoder step %d: %w", s, err)
		}

		melSteps = append(melSteps, mel)
		gateSteps = append(gateSteps, gate)
		alignSteps = append(alignSteps, weights)
	}

	return d.assemble(batch, melSteps, gateSteps, alignSteps)
}

// freeRun decodes memory autoregressively, feeding back its own frames,
// until every item's gate fires or maxSteps is reached.
func (d *decoder) freeRun(memory *tensor.Tensor, rng *rand.Rand, logger *slog.Logger) (*tensor.Tensor, *tensor.Tensor, *tensor.Tensor, error) {
	batch := memory.Dim(0)

	st, err := d.initState(memory, nil)
	if err != nil {
		return nil, nil, nil, err
	}

	input, err := tensor.Zeros([]int64{batch, d.numMels * d.framesPerStep})
	if err != nil {
		return nil, nil, nil, err
	}

	var melSteps, gateSteps, alignSteps []*tensor.Tensor

	stopped := make([]bool, batch)

	for {
		x, err := d.prenet.forward(input, rng)
		if err != nil {
			return nil, nil, nil, err
		}

		mel, gate, weights, err := d.step(st, x)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("tacotron: decoder step %d: %w", len(melSteps), err)
		}

		melSteps = append(melSteps, mel)
		gateSteps = append(gateSteps, gate)
		alignSteps = append(alignSteps, weights)

		done := true

		for b, p := range tensor.Sigmoid(gate).RawData() {
			if p > d.gateThreshold {
				stopped[b] = true
			}

			done = done && stopped[b]
		}

		if done {
			break
		}

		if len(melSteps) >= d.maxSteps {
			logger.Warn("reached max decoder steps", "max_decoder_steps", d.maxSteps)
			break
		}

		input = mel
	}

	return d.assemble(batch, melSteps, gateSteps, alignSteps)
}

// assemble stacks per-step outputs into mel [B, num_mels, steps*r],
// gate [B, steps] and alignments [B, steps, T_enc].
func (d *decoder) assemble(batch int64, melSteps, gateSteps, alignSteps []*tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, *tensor.Tensor, error) {
	steps := int64(len(melSteps))

	mel, err := stackSteps(melSteps)
	if err != nil {
		return nil, nil, nil, err
	}

	// [B, steps, M*r] -> [B, steps*r, M] -> [B, M, steps*r]
	mel, err = mel.Reshape([]int64{batch, steps * d.framesPerStep, d.numMels})
	if err != nil {
		return nil, nil, nil, err
	}

	mel, err = mel.Transpose(1, 2)
	if err != nil {
		return nil, nil, nil, err
	}

	gate, err := stackSteps(gateSteps)
	if err != nil {
		return nil, nil, nil, err
	}

	gate, err = gate.Reshape([]int64{batch, steps})
	if err != nil {
		return nil, nil, nil, err
	}

	alignments, err := stackSteps(alignSteps)
	if err != nil {
		return nil, nil, nil, err
	}

	return mel, gate, alignments, nil
}

// stackSteps turns a list of [B, F] tensors into [B, steps, F].
func stackSteps(list []*tensor.Tensor) (*tensor.Tensor, error) {
	if len(list) == 0 {
		return nil, errors.New("tacotron: no decoder steps")
	}

	expanded := make([]*tensor.Tensor, len(list))

	for i, t := range list {
		u, err := t.Unsqueeze(1)
		if err != nil {
			return nil, err
		}

		expanded[i] = u
	}

	return tensor.Concat(expanded, 1)
}
