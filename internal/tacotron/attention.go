package tacotron

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/example/go-tacotron2/internal/runtime/ops"
	"github.com/example/go-tacotron2/internal/runtime/tensor"
)

// locationLayer convolves the previous and cumulative attention weights and
// projects the result into attention space.
type locationLayer struct {
	conv  convNorm
	dense linearNorm
}

// locationAttention scores encoder steps from the attention LSTM state and
// the location features of earlier alignments.
type locationAttention struct {
	query    linearNorm
	memory   linearNorm
	v        linearNorm
	location locationLayer
}

func newLocationAttention(rng *rand.Rand, hp HParams) locationAttention {
	return locationAttention{
		query:  newLinearNorm(rng, hp.AttentionRNNDim, hp.AttentionDim, false, gainTanh),
		memory: newLinearNorm(rng, hp.EncoderEmbeddingDim, hp.AttentionDim, false, gainTanh),
		v:      newLinearNorm(rng, hp.AttentionDim, 1, false, gainLinear),
		location: locationLayer{
			conv:  newConvNorm(rng, 2, hp.AttentionLocationNFilters, hp.AttentionLocationKernelSize, false, gainLinear),
			dense: newLinearNorm(rng, hp.AttentionLocationNFilters, hp.AttentionDim, false, gainTanh),
		},
	}
}

func (a *locationAttention) params(list *paramList) {
	const p = "decoder.attention_layer"

	a.query.params(list, p+".query_layer")
	a.memory.params(list, p+".memory_layer")
	a.v.params(list, p+".v")
	a.location.conv.params(list, p+".location_layer.location_conv")
	a.location.dense.params(list, p+".location_layer.location_dense")
}

// attend returns the context [B, D] and the attention weights [B, T].
// query is [B, attention_rnn_dim]; memory is [B, T, D]; processed is the
// memory projection [B, T, A]; weightsCat is [B, 2, T]. valid may be nil.
func (a *locationAttention) attend(query, memory, processed, weightsCat *tensor.Tensor, valid [][]bool) (*tensor.Tensor, *tensor.Tensor, error) {
	batch, steps := memory.Dim(0), memory.Dim(1)

	q, err := a.query.forward(query)
	if err != nil {
		return nil, nil, fmt.Errorf("tacotron: attention query: %w", err)
	}

	q, err = q.Unsqueeze(1)
	if err != nil {
		return nil, nil, err
	}

	loc, err := a.location.conv.forward(weightsCat)
	if err != nil {
		return nil, nil, fmt.Errorf("tacotron: attention location conv: %w", err)
	}

	loc, err = loc.Transpose(1, 2)
	if err != nil {
		return nil, nil, err
	}

	loc, err = a.location.dense.forward(loc)
	if err != nil {
		return nil, nil, fmt.Errorf("tacotron: attention location dense: %w", err)
	}

	sum, err := tensor.BroadcastAdd(loc, q)
	if err != nil {
		return nil, nil, err
	}

	if err := sum.AddInPlace(processed); err != nil {
		return nil, nil, fmt.Errorf("tacotron: attention energies: %w", err)
	}

	energies, err := a.v.forward(tensor.Tanh(sum))
	if err != nil {
		return nil, nil, fmt.Errorf("tacotron: attention v: %w", err)
	}

	energies, err = energies.Reshape([]int64{batch, steps})
	if err != nil {
		return nil, nil, err
	}

	if valid != nil {
		energies, err = ops.MaskTime(energies, valid, 1, float32(math.Inf(-1)))
		if err != nil {
			return nil, nil, fmt.Errorf("tacotron: attention mask: %w", err)
		}
	}

	weights, err := tensor.Softmax(energies, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("tacotron: attention softmax: %w", err)
	}

	w3, err := weights.Reshape([]int64{batch, 1, steps})
	if err != nil {
		return nil, nil, err
	}

	context, err := tensor.MatMul(w3, memory)
	if err != nil {
		return nil, nil, fmt.Errorf("tacotron: attention context: %w", err)
	}

	context, err = context.Reshape([]int64{batch, memory.Dim(2)})
	if err != nil {
		return nil, nil, err
	}

	return context, weights, nil
}
