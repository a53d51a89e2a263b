package server

import (
	"context"
	"sync"

	"github.com/example/go-tacotron2/internal/tacotron"
)

// ModelSynthesizer serializes access to a single model. Inference is not
// interruptible; a cancelled request returns early while the pass it started
// finishes in the background and releases the model.
type ModelSynthesizer struct {
	mu         sync.Mutex
	model      *tacotron.Model
	chunkChars int
}

// NewModelSynthesizer wraps m. chunkChars bounds sentence chunks when a
// request asks for chunking.
func NewModelSynthesizer(m *tacotron.Model, chunkChars int) *ModelSynthesizer {
	return &ModelSynthesizer{model: m, chunkChars: chunkChars}
}

func (s *ModelSynthesizer) Synthesize(ctx context.Context, text string, chunk bool) (Synthesis, error) {
	type result struct {
		res Synthesis
		err error
	}

	done := make(chan result, 1)

	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := ctx.Err(); err != nil {
			done <- result{err: err}
			return
		}

		maxChars := 0
		if chunk {
			maxChars = s.chunkChars
		}

		mel, post, align, err := s.model.InferChunked(text, maxChars)
		done <- result{res: Synthesis{Mel: mel, MelPostnet: post, Alignments: align}, err: err}
	}()

	select {
	case r := <-done:
		return r.res, r.err
	case <-ctx.Done():
		return Synthesis{}, ctx.Err()
	}
}
