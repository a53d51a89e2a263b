package tacotron

import (
	"testing"

	"github.com/example/go-tacotron2/internal/testutil"
)

func TestPretrainedCheckpointInference(t *testing.T) {
	path := testutil.RequireCheckpoint(t)

	m, err := Load(path, LoadOptions{StripPrefix: "module.", Tune: func(hp *HParams) {
		hp.MaxDecoderSteps = 200
	}}, WithSeed(1))
	if err != nil {
		t.Fatalf("Load(%s): %v", path, err)
	}

	hp := m.HParams()

	mel, post, align, err := m.Infer("Hello world.")
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}

	if mel.Dim(1) != int64(hp.NumMels) || post.Dim(-1) != mel.Dim(-1) {
		t.Fatalf("mel %v, postnet %v", mel.Shape(), post.Shape())
	}

	if align.Dim(1) != mel.Dim(-1)/int64(hp.NFramesPerStep) {
		t.Fatalf("alignments %v do not match %d decoder steps", align.Shape(), mel.Dim(-1)/int64(hp.NFramesPerStep))
	}
}
