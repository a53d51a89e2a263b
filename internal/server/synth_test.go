package server

import (
	"context"
	"errors"
	"testing"

	"github.com/example/go-tacotron2/internal/config"
	"github.com/example/go-tacotron2/internal/tacotron"
)

func configForTest(addr string) config.ServerConfig {
	cfg := config.DefaultConfig().Server
	cfg.ListenAddr = addr
	cfg.ShutdownTimeout = 1

	return cfg
}

func tinyModel(t *testing.T) *tacotron.Model {
	t.Helper()

	hp := tacotron.DefaultHParams()
	hp.NumMels, hp.NFramesPerStep = 4, 1
	hp.SymbolsEmbedDim, hp.EncoderEmbeddingDim = 4, 4
	hp.EncoderKernelSize, hp.EncoderNConvolutions = 3, 1
	hp.AttentionRNNDim, hp.DecoderRNNDim, hp.PrenetDim = 4, 4, 4
	hp.PrenetDropout, hp.MaxDecoderSteps = 0, 3
	hp.AttentionDim, hp.AttentionLocationNFilters, hp.AttentionLocationKernelSize = 2, 2, 3
	hp.PostnetEmbeddingDim, hp.PostnetKernelSize, hp.PostnetNConvolutions = 4, 3, 2

	m, err := tacotron.New(hp, tacotron.WithSeed(3))
	if err != nil {
		t.Fatalf("tacotron.New: %v", err)
	}

	return m
}

func TestModelSynthesizer(t *testing.T) {
	s := NewModelSynthesizer(tinyModel(t), 4)

	res, err := s.Synthesize(context.Background(), "Hi. There.", true)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if len(res.Alignments) != 2 {
		t.Fatalf("got %d chunks, want 2", len(res.Alignments))
	}

	if res.Mel.Dim(1) != 4 || res.MelPostnet.Dim(-1) != res.Mel.Dim(-1) {
		t.Fatalf("mel shape %v / %v", res.Mel.Shape(), res.MelPostnet.Shape())
	}
}

func TestModelSynthesizerCancelled(t *testing.T) {
	s := NewModelSynthesizer(tinyModel(t), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Synthesize(ctx, "hi", false); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
