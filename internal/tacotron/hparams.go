package tacotron

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/go-tacotron2/internal/text"
)

// HParams holds the model hyperparameters. It is passed explicitly to New
// and stored in checkpoint metadata so a checkpoint is self-describing.
type HParams struct {
	NumMels         int  `json:"num_mels" mapstructure:"num_mels"`
	NFramesPerStep  int  `json:"n_frames_per_step" mapstructure:"n_frames_per_step"`
	MaskPadding     bool `json:"mask_padding" mapstructure:"mask_padding"`
	NSymbols        int  `json:"n_symbols" mapstructure:"n_symbols"`
	SymbolsEmbedDim int  `json:"symbols_embedding_dim" mapstructure:"symbols_embedding_dim"`

	EncoderKernelSize    int `json:"encoder_kernel_size" mapstructure:"encoder_kernel_size"`
	EncoderNConvolutions int `json:"encoder_n_convolutions" mapstructure:"encoder_n_convolutions"`
	EncoderEmbeddingDim  int `json:"encoder_embedding_dim" mapstructure:"encoder_embedding_dim"`

	AttentionRNNDim int     `json:"attention_rnn_dim" mapstructure:"attention_rnn_dim"`
	DecoderRNNDim   int     `json:"decoder_rnn_dim" mapstructure:"decoder_rnn_dim"`
	PrenetDim       int     `json:"prenet_dim" mapstructure:"prenet_dim"`
	PrenetDropout   float64 `json:"prenet_dropout" mapstructure:"prenet_dropout"`
	MaxDecoderSteps int     `json:"max_decoder_steps" mapstructure:"max_decoder_steps"`
	GateThreshold   float64 `json:"gate_threshold" mapstructure:"gate_threshold"`

	AttentionDim                int `json:"attention_dim" mapstructure:"attention_dim"`
	AttentionLocationNFilters   int `json:"attention_location_n_filters" mapstructure:"attention_location_n_filters"`
	AttentionLocationKernelSize int `json:"attention_location_kernel_size" mapstructure:"attention_location_kernel_size"`

	PostnetEmbeddingDim  int `json:"postnet_embedding_dim" mapstructure:"postnet_embedding_dim"`
	PostnetKernelSize    int `json:"postnet_kernel_size" mapstructure:"postnet_kernel_size"`
	PostnetNConvolutions int `json:"postnet_n_convolutions" mapstructure:"postnet_n_convolutions"`

	TextCleaners []string `json:"text_cleaners" mapstructure:"text_cleaners"`
}

// DefaultHParams returns the LJSpeech Tacotron 2 configuration.
func DefaultHParams() HParams {
	return HParams{
		NumMels:         80,
		NFramesPerStep:  3,
		MaskPadding:     true,
		NSymbols:        text.NumSymbols(),
		SymbolsEmbedDim: 512,

		EncoderKernelSize:    5,
		EncoderNConvolutions: 3,
		EncoderEmbeddingDim:  512,

		AttentionRNNDim: 1024,
		DecoderRNNDim:   1024,
		PrenetDim:       256,
		PrenetDropout:   0.5,
		MaxDecoderSteps: 1000,
		GateThreshold:   0.5,

		AttentionDim:                128,
		AttentionLocationNFilters:   32,
		AttentionLocationKernelSize: 31,

		PostnetEmbeddingDim:  512,
		PostnetKernelSize:    5,
		PostnetNConvolutions: 5,

		TextCleaners: []string{"english_cleaners"},
	}
}

// Validate rejects configurations the layers cannot be built from.
func (hp HParams) Validate() error {
	positive := []struct {
		name string
		v    int
	}{
		{"num_mels", hp.NumMels},
		{"n_frames_per_step", hp.NFramesPerStep},
		{"n_symbols", hp.NSymbols},
		{"symbols_embedding_dim", hp.SymbolsEmbedDim},
		{"encoder_kernel_size", hp.EncoderKernelSize},
		{"encoder_n_convolutions", hp.EncoderNConvolutions},
		{"encoder_embedding_dim", hp.EncoderEmbeddingDim},
		{"attention_rnn_dim", hp.AttentionRNNDim},
		{"decoder_rnn_dim", hp.DecoderRNNDim},
		{"prenet_dim", hp.PrenetDim},
		{"max_decoder_steps", hp.MaxDecoderSteps},
		{"attention_dim", hp.AttentionDim},
		{"attention_location_n_filters", hp.AttentionLocationNFilters},
		{"attention_location_kernel_size", hp.AttentionLocationKernelSize},
		{"postnet_embedding_dim", hp.PostnetEmbeddingDim},
		{"postnet_kernel_size", hp.PostnetKernelSize},
		{"postnet_n_convolutions", hp.PostnetNConvolutions},
	}

	var errs []error

	for _, p := range positive {
		if p.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0, got %d", p.name, p.v))
		}
	}

	for _, k := range []struct {
		name string
		v    int
	}{
		{"encoder_kernel_size", hp.EncoderKernelSize},
		{"attention_location_kernel_size", hp.AttentionLocationKernelSize},
		{"postnet_kernel_size", hp.PostnetKernelSize},
	} {
		if k.v > 0 && k.v%2 == 0 {
			errs = append(errs, fmt.Errorf("%s must be odd, got %d", k.name, k.v))
		}
	}

	if hp.EncoderEmbeddingDim%2 != 0 {
		errs = append(errs, fmt.Errorf("encoder_embedding_dim must be even, got %d", hp.EncoderEmbeddingDim))
	}

	if hp.SymbolsEmbedDim != hp.EncoderEmbeddingDim {
		errs = append(errs, fmt.Errorf("symbols_embedding_dim %d must equal encoder_embedding_dim %d", hp.SymbolsEmbedDim, hp.EncoderEmbeddingDim))
	}

	if hp.PrenetDropout < 0 || hp.PrenetDropout >= 1 {
		errs = append(errs, fmt.Errorf("prenet_dropout must be in [0, 1), got %g", hp.PrenetDropout))
	}

	if hp.PostnetNConvolutions < 2 && hp.PostnetNConvolutions > 0 {
		errs = append(errs, fmt.Errorf("postnet_n_convolutions must be >= 2, got %d", hp.PostnetNConvolutions))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("tacotron: invalid hparams: %w", err)
	}

	return nil
}

const hparamsMetadataKey = "tacotron.hparams"

func (hp HParams) metadata() (map[string]string, error) {
	raw, err := json.Marshal(hp)
	if err != nil {
		return nil, fmt.Errorf("tacotron: encode hparams: %w", err)
	}

	return map[string]string{hparamsMetadataKey: string(raw)}, nil
}

// HParamsFromMetadata decodes hyperparameters stored by Save. Fields missing
// from the metadata keep their DefaultHParams values.
func HParamsFromMetadata(md map[string]string) (HParams, bool, error) {
	raw, ok := md[hparamsMetadataKey]
	if !ok {
		return HParams{}, false, nil
	}

	hp := DefaultHParams()
	if err := json.Unmarshal([]byte(raw), &hp); err != nil {
		return HParams{}, true, fmt.Errorf("tacotron: decode hparams metadata: %w", err)
	}

	return hp, true, nil
}
