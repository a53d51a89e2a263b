package ops

import (
	"errors"
	"fmt"

	"github.com/example/go-tacotron2/internal/runtime/tensor"
)

// Conv1D performs a CPU Conv1d with groups=1.
// input: [batch, in_channels, length]
// kernel: [out_channels, in_channels, kernel_size]
// bias: optional [out_channels]
//
// The convolution is lowered to a GEMM over an im2col patch matrix of shape
// [outLength, inChannels*kernelSize], so both the kernel row and the patch
// row are contiguous for the dot product.
func Conv1D(input, kernel, bias *tensor.Tensor, stride, padding, dilation int64) (*tensor.Tensor, error) {
	p, err := prepareConv1D(input, kernel, bias, stride, padding, dilation)
	if err != nil {
		return nil, err
	}

	out, err := tensor.Zeros([]int64{p.batch, p.outChannels, p.outLength})
	if err != nil {
		return nil, err
	}

	var biasData []float32
	if bias != nil {
		biasData = bias.RawData()
	}

	inputData := input.RawData()
	kernelData := kernel.RawData()
	outData := out.RawData()

	patchLen := int(p.inChannels * p.kernelSize)
	outLen := int(p.outLength)
	outCh := int(p.outChannels)
	imcol := make([]float32, outLen*patchLen)

	for b := range p.batch {
		clear(imcol)

		for ic := range p.inChannels {
			inBase := (b*p.inChannels + ic) * p.length
			for kx := range p.kernelSize {
				col := int(ic*p.kernelSize + kx)
				for ox := range p.outLength {
					pos := ox*stride - padding + kx*dilation
					if pos >= 0 && pos < p.length {
						imcol[int(ox)*patchLen+col] = inputData[inBase+pos]
					}
				}
			}
		}

		outBase := int(b) * outCh * outLen

		tensor.ParallelFor(outCh, func(lo, hi int) {
			for oc := lo; oc < hi; oc++ {
				row := kernelData[oc*patchLen : (oc+1)*patchLen]

				var bv float32
				if biasData != nil {
					bv = biasData[oc]
				}

				dst := outData[outBase+oc*outLen : outBase+(oc+1)*outLen]
				for ox := range outLen {
					dst[ox] = tensor.DotProduct(row, imcol[ox*patchLen:(ox+1)*patchLen]) + bv
				}
			}
		})
	}

	return out, nil
}

// SamePadding returns the padding that keeps the output length equal to the
// input length for stride 1 and an odd kernel.
func SamePadding(kernelSize, dilation int64) int64 {
	return dilation * (kernelSize - 1) / 2
}

type conv1DParams struct {
	batch       int64
	inChannels  int64
	length      int64
	outChannels int64
	kernelSize  int64
	outLength   int64
}

func prepareConv1D(input, kernel, bias *tensor.Tensor, stride, padding, dilation int64) (conv1DParams, error) {
	if input == nil || kernel == nil {
		return conv1DParams{}, errors.New("ops: conv1d requires non-nil input/kernel")
	}

	if stride <= 0 || dilation <= 0 || padding < 0 {
		return conv1DParams{}, errors.New("ops: conv1d stride/dilation must be > 0 and padding >= 0")
	}

	inShape := input.Shape()
	kShape := kernel.Shape()

	if len(inShape) != 3 || len(kShape) != 3 {
		return conv1DParams{}, fmt.Errorf("ops: conv1d expects input/kernel rank 3, got %v and %v", inShape, kShape)
	}

	p := conv1DParams{
		batch:       inShape[0],
		inChannels:  inShape[1],
		length:      inShape[2],
		outChannels: kShape[0],
		kernelSize:  kShape[2],
	}

	if kShape[1] != p.inChannels {
		return conv1DParams{}, fmt.Errorf("ops: conv1d kernel in_channels mismatch: got %d want %d", kShape[1], p.inChannels)
	}

	if bias != nil {
		bShape := bias.Shape()
		if len(bShape) != 1 || bShape[0] != p.outChannels {
			return conv1DParams{}, fmt.Errorf("ops: conv1d bias shape %v does not match out_channels %d", bShape, p.outChannels)
		}
	}

	p.outLength = (p.length+2*padding-dilation*(p.kernelSize-1)-1)/stride + 1
	if p.outLength <= 0 {
		return conv1DParams{}, fmt.Errorf("ops: conv1d produced non-positive output length %d", p.outLength)
	}

	return p, nil
}
