package tacotron

import (
	"fmt"
	"math/rand/v2"

	"github.com/example/go-tacotron2/internal/runtime/tensor"
)

// postnet predicts a residual that refines the decoder mel output.
type postnet struct {
	convs []convBlock
}

func newPostnet(rng *rand.Rand, hp HParams) postnet {
	n := hp.PostnetNConvolutions
	p := postnet{convs: make([]convBlock, n)}

	for i := range n {
		in, out, gain := hp.PostnetEmbeddingDim, hp.PostnetEmbeddingDim, gainTanh

		switch i {
		case 0:
			in = hp.NumMels
		case n - 1:
			out, gain = hp.NumMels, gainLinear
		}

		p.convs[i] = newConvBlock(rng, in, out, hp.PostnetKernelSize, gain)
	}

	return p
}

func (p *postnet) params(list *paramList) {
	for i := range p.convs {
		p.convs[i].params(list, fmt.Sprintf("postnet.convolutions.%d", i))
	}
}

// forward maps mel [B, num_mels, T] to a residual of the same shape.
func (p *postnet) forward(mel *tensor.Tensor) (*tensor.Tensor, error) {
	x := mel

	for i := range p.convs {
		y, err := p.convs[i].forward(x)
		if err != nil {
			return nil, fmt.Errorf("tacotron: postnet conv %d: %w", i, err)
		}

		if i < len(p.convs)-1 {
			y = tensor.Tanh(y)
		}

		x = y
	}

	return x, nil
}
