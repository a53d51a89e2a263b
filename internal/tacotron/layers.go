package tacotron

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/example/go-tacotron2/internal/runtime/ops"
	"github.com/example/go-tacotron2/internal/runtime/tensor"
)

// Xavier gains as computed by torch.nn.init.calculate_gain.
const (
	gainLinear  = 1.0
	gainSigmoid = 1.0
	gainTanh    = 5.0 / 3.0
)

var gainReLU = math.Sqrt2

// param names a learned tensor slot for checkpoint load and save.
type param struct {
	name  string
	shape []int64
	ptr   **tensor.Tensor
}

type paramList []param

func (l *paramList) add(name string, ptr **tensor.Tensor, shape ...int64) {
	*l = append(*l, param{name: name, shape: shape, ptr: ptr})
}

func uniform(rng *rand.Rand, bound float64, shape ...int64) *tensor.Tensor {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}

	data := make([]float32, n)
	for i := range data {
		data[i] = float32((rng.Float64()*2 - 1) * bound)
	}

	t, err := tensor.New(data, shape)
	if err != nil {
		panic(err)
	}

	return t
}

func constant(v float32, shape ...int64) *tensor.Tensor {
	t, err := tensor.Full(shape, v)
	if err != nil {
		panic(err)
	}

	return t
}

// xavierUniform matches torch.nn.init.xavier_uniform_ for a weight of shape
// [out, in] or [out, in, k].
func xavierUniform(rng *rand.Rand, gain float64, shape ...int64) *tensor.Tensor {
	receptive := int64(1)
	for _, d := range shape[2:] {
		receptive *= d
	}

	fanIn := float64(shape[1] * receptive)
	fanOut := float64(shape[0] * receptive)

	return uniform(rng, gain*math.Sqrt(6/(fanIn+fanOut)), shape...)
}

// linearNorm is a Linear layer with Xavier-initialized weights.
type linearNorm struct {
	weight *tensor.Tensor // [out, in]
	bias   *tensor.Tensor // [out] or nil
}

func newLinearNorm(rng *rand.Rand, in, out int, withBias bool, gain float64) linearNorm {
	l := linearNorm{weight: xavierUniform(rng, gain, int64(out), int64(in))}
	if withBias {
		l.bias = uniform(rng, 1/math.Sqrt(float64(in)), int64(out))
	}

	return l
}

func (l *linearNorm) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.Linear(x, l.weight, l.bias)
}

func (l *linearNorm) params(list *paramList, prefix string) {
	list.add(prefix+".linear_layer.weight", &l.weight, l.weight.Shape()...)
	if l.bias != nil {
		list.add(prefix+".linear_layer.bias", &l.bias, l.bias.Shape()...)
	}
}

// convNorm is a same-padded Conv1d with Xavier-initialized weights.
type convNorm struct {
	weight  *tensor.Tensor // [out, in, k]
	bias    *tensor.Tensor // [out] or nil
	padding int64
}

func newConvNorm(rng *rand.Rand, in, out, kernel int, withBias bool, gain float64) convNorm {
	c := convNorm{
		weight:  xavierUniform(rng, gain, int64(out), int64(in), int64(kernel)),
		padding: ops.SamePadding(int64(kernel), 1),
	}
	if withBias {
		c.bias = uniform(rng, 1/math.Sqrt(float64(in*kernel)), int64(out))
	}

	return c
}

func (c *convNorm) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return ops.Conv1D(x, c.weight, c.bias, 1, c.padding, 1)
}

func (c *convNorm) params(list *paramList, prefix string) {
	list.add(prefix+".conv.weight", &c.weight, c.weight.Shape()...)
	if c.bias != nil {
		list.add(prefix+".conv.bias", &c.bias, c.bias.Shape()...)
	}
}

// batchNorm holds inference-mode BatchNorm1d parameters and running stats.
type batchNorm struct {
	weight, bias, mean, variance *tensor.Tensor
}

func newBatchNorm(channels int) batchNorm {
	c := int64(channels)

	return batchNorm{
		weight:   constant(1, c),
		bias:     constant(0, c),
		mean:     constant(0, c),
		variance: constant(1, c),
	}
}

func (b *batchNorm) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return ops.BatchNorm1D(x, b.weight, b.bias, b.mean, b.variance, ops.BatchNormEps)
}

func (b *batchNorm) params(list *paramList, prefix string) {
	c := b.weight.Dim(0)
	list.add(prefix+".weight", &b.weight, c)
	list.add(prefix+".bias", &b.bias, c)
	list.add(prefix+".running_mean", &b.mean, c)
	list.add(prefix+".running_var", &b.variance, c)
}

// convBlock is the Conv1d + BatchNorm1d pair used by encoder and postnet,
// saved as "<prefix>.0" and "<prefix>.1".
type convBlock struct {
	conv convNorm
	bn   batchNorm
}

func newConvBlock(rng *rand.Rand, in, out, kernel int, gain float64) convBlock {
	return convBlock{
		conv: newConvNorm(rng, in, out, kernel, true, gain),
		bn:   newBatchNorm(out),
	}
}

func (c *convBlock) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := c.conv.forward(x)
	if err != nil {
		return nil, err
	}

	return c.bn.forward(y)
}

func (c *convBlock) params(list *paramList, prefix string) {
	c.conv.params(list, prefix+".0")
	c.bn.params(list, prefix+".1")
}

// lstmWeights holds one direction of a torch LSTM or an LSTMCell.
type lstmWeights struct {
	wIH, wHH, bIH, bHH *tensor.Tensor
	hidden             int64
}

func newLSTMWeights(rng *rand.Rand, in, hidden int) lstmWeights {
	bound := 1 / math.Sqrt(float64(hidden))
	h := int64(hidden)

	return lstmWeights{
		wIH:    uniform(rng, bound, 4*h, int64(in)),
		wHH:    uniform(rng, bound, 4*h, h),
		bIH:    uniform(rng, bound, 4*h),
		bHH:    uniform(rng, bound, 4*h),
		hidden: h,
	}
}

func (l *lstmWeights) step(x *tensor.Tensor, state ops.LSTMState) (ops.LSTMState, error) {
	return ops.LSTMCell(x, state, l.wIH, l.wHH, l.bIH, l.bHH)
}

// params registers the tensors under torch naming: suffix is "" for an
// LSTMCell, "_l0" or "_l0_reverse" for an nn.LSTM direction.
func (l *lstmWeights) params(list *paramList, prefix, suffix string) {
	list.add(prefix+".weight_ih"+suffix, &l.wIH, l.wIH.Shape()...)
	list.add(prefix+".weight_hh"+suffix, &l.wHH, l.wHH.Shape()...)
	list.add(prefix+".bias_ih"+suffix, &l.bIH, l.bIH.Shape()...)
	list.add(prefix+".bias_hh"+suffix, &l.bHH, l.bHH.Shape()...)
}

func shapeError(what string, got []int64, want ...int64) error {
	return fmt.Errorf("tacotron: %s shape %v, want %v", what, got, want)
}
