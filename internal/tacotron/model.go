// Package tacotron implements the Tacotron 2 acoustic model: a symbol
// embedding, a convolutional BiLSTM encoder, a location-sensitive attention
// decoder and a residual postnet, composed into teacher-forced and
// free-running passes over mel-spectrogram frames.
package tacotron

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/example/go-tacotron2/internal/runtime/ops"
	"github.com/example/go-tacotron2/internal/runtime/tensor"
	"github.com/example/go-tacotron2/internal/text"
)

// GatePadValue is written to gate logits at padded frame groups.
const GatePadValue = 1e3

// Symbols is a padded [B][T] batch of symbol IDs.
type Symbols [][]int64

// Batch is a collated training batch as produced by a data loader.
type Batch struct {
	Text          [][]int
	InputLengths  []int
	Mels          *tensor.Tensor // [B, num_mels, T]
	Gates         *tensor.Tensor // [B, T]
	OutputLengths []int
}

// Inputs feed Forward.
type Inputs struct {
	Text          Symbols
	TextLengths   []int64
	Mels          *tensor.Tensor
	MaxLen        int64
	OutputLengths []int64
}

// Targets are the supervision tensors of a batch.
type Targets struct {
	Mels  *tensor.Tensor
	Gates *tensor.Tensor
}

// Outputs of a model pass.
type Outputs struct {
	Mel        *tensor.Tensor // [B, num_mels, T]
	MelPostnet *tensor.Tensor // [B, num_mels, T]
	Gate       *tensor.Tensor // [B, T/r]
	Alignments *tensor.Tensor // [B, T/r, T_enc]
}

// Model is a Tacotron 2 network. It is not safe for concurrent use: the
// prenet dropout draws from a shared random source.
type Model struct {
	hp        HParams
	embedding *tensor.Tensor // [n_symbols, embedding_dim]
	encoder   encoder
	decoder   decoder
	postnet   postnet

	rng    *rand.Rand
	logger *slog.Logger
}

// Option configures a Model.
type Option func(*Model)

// WithSeed seeds weight initialisation and prenet dropout.
func WithSeed(seed uint64) Option {
	return func(m *Model) { m.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithLogger sets the logger used for pass diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) {
		if l != nil {
			m.logger = l
		}
	}
}

// New builds a randomly initialised model.
func New(hp HParams, opts ...Option) (*Model, error) {
	if err := hp.Validate(); err != nil {
		return nil, err
	}

	m := &Model{hp: hp, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}

	if m.rng == nil {
		WithSeed(rand.Uint64())(m)
	}

	std := math.Sqrt(2.0 / float64(hp.NSymbols+hp.SymbolsEmbedDim))
	m.embedding = uniform(m.rng, math.Sqrt(3.0)*std, int64(hp.NSymbols), int64(hp.SymbolsEmbedDim))
	m.encoder = newEncoder(m.rng, hp)
	m.decoder = newDecoder(m.rng, hp)
	m.postnet = newPostnet(m.rng, hp)

	return m, nil
}

// HParams returns the model hyperparameters.
func (m *Model) HParams() HParams {
	hp := m.hp
	hp.TextCleaners = slices.Clone(hp.TextCleaners)

	return hp
}

// Embedding returns a copy of the symbol embedding table.
func (m *Model) Embedding() *tensor.Tensor {
	return m.embedding.Clone()
}

// ParseBatch converts a collated batch into model inputs and targets.
// MaxLen is the largest input length.
func (m *Model) ParseBatch(b Batch) (Inputs, Targets) {
	ids := make(Symbols, len(b.Text))
	for i, row := range b.Text {
		ids[i] = make([]int64, len(row))
		for j, v := range row {
			ids[i][j] = int64(v)
		}
	}

	in := Inputs{
		Text:          ids,
		TextLengths:   toInt64(b.InputLengths),
		Mels:          b.Mels,
		OutputLengths: toInt64(b.OutputLengths),
	}

	for _, l := range in.TextLengths {
		in.MaxLen = max(in.MaxLen, l)
	}

	return in, Targets{Mels: b.Mels, Gates: b.Gates}
}

// ParseOutput masks padded positions when masking is enabled and lengths
// are given: mel frames at t >= length become 0 and gate logits of padded
// frame groups become GatePadValue. Otherwise out is returned unchanged.
func (m *Model) ParseOutput(out Outputs, outputLengths []int64) (Outputs, error) {
	if !m.hp.MaskPadding || outputLengths == nil {
		return out, nil
	}

	valid := ops.LengthMask(outputLengths, out.Mel.Dim(-1))

	mel, err := ops.MaskTime(out.Mel, valid, 1, 0)
	if err != nil {
		return Outputs{}, fmt.Errorf("tacotron: mask mel: %w", err)
	}

	post, err := ops.MaskTime(out.MelPostnet, valid, 1, 0)
	if err != nil {
		return Outputs{}, fmt.Errorf("tacotron: mask postnet mel: %w", err)
	}

	gate, err := ops.MaskTime(out.Gate, valid, int64(m.hp.NFramesPerStep), GatePadValue)
	if err != nil {
		return Outputs{}, fmt.Errorf("tacotron: mask gate: %w", err)
	}

	return Outputs{Mel: mel, MelPostnet: post, Gate: gate, Alignments: out.Alignments}, nil
}

// Forward runs the teacher-forced pass against in.Mels and masks the result
// by in.OutputLengths.
func (m *Model) Forward(in Inputs) (Outputs, error) {
	out, err := m.teacherForced(in.Text, in.TextLengths, in.Mels)
	if err != nil {
		return Outputs{}, err
	}

	return m.ParseOutput(out, in.OutputLengths)
}

// Inference free-runs the decoder until the gate fires. Outputs are not
// masked.
func (m *Model) Inference(ids Symbols) (Outputs, error) {
	x, err := m.embed(ids)
	if err != nil {
		return Outputs{}, err
	}

	memory, err := m.encoder.run(x, nil)
	if err != nil {
		return Outputs{}, err
	}

	mel, gate, align, err := m.decoder.freeRun(memory, m.rng, m.logger)
	if err != nil {
		return Outputs{}, err
	}

	out, err := m.withPostnet(mel, gate, align)
	if err != nil {
		return Outputs{}, err
	}

	m.logger.Debug("inference pass",
		"batch", len(ids), "encoder_steps", memory.Dim(1), "decoder_steps", gate.Dim(1))

	return m.ParseOutput(out, nil)
}

// TeacherInfer runs the teacher-forced pass with lengths derived from the
// unpadded inputs. Items are reordered by descending length (stable) and
// mels [B, num_mels, T] are reordered with them; outputs are in that order
// and order[i] is the original index of output row i. Outputs are not
// masked.
func (m *Model) TeacherInfer(inputs [][]int64, mels *tensor.Tensor) (Outputs, []int, error) {
	if mels == nil || mels.Rank() != 3 || mels.Dim(0) != int64(len(inputs)) {
		var shape []int64
		if mels != nil {
			shape = mels.Shape()
		}

		return Outputs{}, nil, shapeError("teacher mels", shape, int64(len(inputs)), int64(m.hp.NumMels), -1)
	}

	order := make([]int, len(inputs))
	for i := range order {
		order[i] = i
	}

	slices.SortStableFunc(order, func(a, b int) int { return len(inputs[b]) - len(inputs[a]) })

	lengths := make([]int64, len(order))
	idx := make([]int64, len(order))

	var maxLen int64

	for i, o := range order {
		lengths[i] = int64(len(inputs[o]))
		idx[i] = int64(o)
		maxLen = max(maxLen, lengths[i])
	}

	ids := make(Symbols, len(order))
	for i, o := range order {
		row := make([]int64, maxLen)
		copy(row, inputs[o])
		ids[i] = row
	}

	sorted, err := mels.IndexSelect(0, idx)
	if err != nil {
		return Outputs{}, nil, err
	}

	out, err := m.teacherForced(ids, lengths, sorted)
	if err != nil {
		return Outputs{}, nil, err
	}

	out, err = m.ParseOutput(out, nil)

	return out, order, err
}

// Infer synthesises the mel-spectrogram of raw text with the configured
// cleaners. The gate output is dropped.
func (m *Model) Infer(s string) (mel, melPostnet, alignments *tensor.Tensor, err error) {
	seq, err := text.TextToSequence(s, m.hp.TextCleaners)
	if err != nil {
		return nil, nil, nil, err
	}

	out, err := m.Inference(Symbols{seq})
	if err != nil {
		return nil, nil, nil, err
	}

	return out.Mel, out.MelPostnet, out.Alignments, nil
}

func (m *Model) teacherForced(ids Symbols, lengths []int64, mels *tensor.Tensor) (Outputs, error) {
	if mels == nil {
		return Outputs{}, errors.New("tacotron: teacher-forced pass requires mel targets")
	}

	x, err := m.embed(ids)
	if err != nil {
		return Outputs{}, err
	}

	memory, err := m.encoder.run(x, lengths)
	if err != nil {
		return Outputs{}, err
	}

	mel, gate, align, err := m.decoder.teacherForce(memory, mels, lengths, m.rng)
	if err != nil {
		return Outputs{}, err
	}

	m.logger.Debug("teacher-forced pass",
		"batch", len(ids), "encoder_steps", memory.Dim(1), "decoder_steps", gate.Dim(1))

	return m.withPostnet(mel, gate, align)
}

func (m *Model) withPostnet(mel, gate, align *tensor.Tensor) (Outputs, error) {
	residual, err := m.postnet.forward(mel)
	if err != nil {
		return Outputs{}, err
	}

	post, err := tensor.Add(mel, residual)
	if err != nil {
		return Outputs{}, err
	}

	return Outputs{Mel: mel, MelPostnet: post, Gate: gate, Alignments: align}, nil
}

// embed looks up ids [B][T] and returns [B, embedding_dim, T].
func (m *Model) embed(ids Symbols) (*tensor.Tensor, error) {
	if len(ids) == 0 {
		return nil, errors.New("tacotron: empty symbol batch")
	}

	steps := len(ids[0])
	flat := make([]int64, 0, len(ids)*steps)

	for b, row := range ids {
		if len(row) != steps {
			return nil, fmt.Errorf("tacotron: symbol row %d has length %d, want %d", b, len(row), steps)
		}

		flat = append(flat, row...)
	}

	emb, err := m.embedding.IndexSelect(0, flat)
	if err != nil {
		return nil, fmt.Errorf("tacotron: embedding: %w", err)
	}

	emb, err = emb.Reshape([]int64{int64(len(ids)), int64(steps), int64(m.hp.SymbolsEmbedDim)})
	if err != nil {
		return nil, err
	}

	return emb.Transpose(1, 2)
}

func toInt64(v []int) []int64 {
	if v == nil {
		return nil
	}

	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = int64(x)
	}

	return out
}
