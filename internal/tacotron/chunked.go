package tacotron

import (
	"fmt"

	"github.com/example/go-tacotron2/internal/runtime/tensor"
	"github.com/example/go-tacotron2/internal/text"
)

// InferChunked runs Infer on each sentence chunk of at most maxChars runes
// and joins the mel outputs along time. Alignments are returned per chunk
// since their encoder axes differ. maxChars <= 0 runs a single pass.
func (m *Model) InferChunked(s string, maxChars int) (mel, melPostnet *tensor.Tensor, alignments []*tensor.Tensor, err error) {
	chunks := text.ChunkBySentence(s, maxChars)
	mels := make([]*tensor.Tensor, 0, len(chunks))
	posts := make([]*tensor.Tensor, 0, len(chunks))

	for i, chunk := range chunks {
		cm, cp, ca, cerr := m.Infer(chunk)
		if cerr != nil {
			return nil, nil, nil, fmt.Errorf("tacotron: chunk %d: %w", i, cerr)
		}

		mels = append(mels, cm)
		posts = append(posts, cp)
		alignments = append(alignments, ca)
	}

	if len(chunks) > 1 {
		m.logger.Debug("joined chunked inference", "chunks", len(chunks))
	}

	mel, err = tensor.Concat(mels, 2)
	if err != nil {
		return nil, nil, nil, err
	}

	melPostnet, err = tensor.Concat(posts, 2)
	if err != nil {
		return nil, nil, nil, err
	}

	return mel, melPostnet, alignments, nil
}
