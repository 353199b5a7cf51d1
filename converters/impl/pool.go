// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package impl

import (
	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/network"
	"github.com/gomlx/torchlower/types/shapes"
)

// PoolingOptions configures MaxPool. KernelSize defines the number of spatial axes, the other values
// can have one value per spatial axis or a single value. A nil Stride defaults to the kernel size.
type PoolingOptions struct {
	KernelSize, Stride, Padding, Dilation []int
	CeilMode                              bool
}

// MaxPool takes the maximum over windows of the last len(opts.KernelSize) axes of input.
func MaxPool(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input any, opts PoolingOptions) (network.Tensor, error) {
	t, err := converters.ToTensor(target, "input", input)
	if err != nil {
		return nil, err
	}
	numSpatial := len(opts.KernelSize)
	if numSpatial == 0 {
		return nil, converters.NewInvalidOperandError(target, "kernel_size", opts.KernelSize, "kernel size is required")
	}
	if t.Shape().Rank() < numSpatial+1 {
		return nil, converters.NewInvalidOperandError(target, "input", t.Shape(), "not enough axes for a %dD pooling", numSpatial)
	}
	dilation, err := spatialParam(target, "dilation", opts.Dilation, numSpatial, 1)
	if err != nil {
		return nil, err
	}
	for _, d := range dilation {
		if d != 1 {
			return nil, converters.NewUnsupportedConfigurationError(target, "dilation", opts.Dilation, "only dilation=1 supported")
		}
	}
	config := network.PoolingConfig{Type: network.PoolingMax, Window: opts.KernelSize, CeilMode: opts.CeilMode}
	stride := opts.Stride
	if len(stride) == 0 {
		stride = opts.KernelSize
	}
	if config.Stride, err = spatialParam(target, "stride", stride, numSpatial, 1); err != nil {
		return nil, err
	}
	if config.Padding, err = spatialParam(target, "padding", opts.Padding, numSpatial, 0); err != nil {
		return nil, err
	}
	layer, err := net.AddPooling(t, config)
	if err != nil {
		return nil, err
	}
	SetLayerName(layer, target, source, name)
	return layer.Output(0), nil
}

// AdaptiveAvgPool averages the last len(outputSize) axes of input down to outputSize, with windows
// of a fixed size: stride = in/out and window = in - (out-1)*stride. An output size of -1 keeps the
// input dimension. The pooled axes of input must be static.
func AdaptiveAvgPool(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input any, outputSize []int) (network.Tensor, error) {
	t, err := converters.ToTensor(target, "input", input)
	if err != nil {
		return nil, err
	}
	numSpatial := len(outputSize)
	inputDims := t.Shape().Dimensions
	if numSpatial == 0 || len(inputDims) < numSpatial+1 {
		return nil, converters.NewInvalidOperandError(target, "output_size", outputSize, "invalid output size for input %s", t.Shape())
	}
	config := network.PoolingConfig{
		Type:    network.PoolingAverage,
		Window:  make([]int, numSpatial),
		Stride:  make([]int, numSpatial),
		Padding: make([]int, numSpatial),
	}
	spatialDims := inputDims[len(inputDims)-numSpatial:]
	for ii, in := range spatialDims {
		if in == shapes.DynamicDim {
			return nil, converters.NewUnsupportedConfigurationError(target, "input", t.Shape(),
				"adaptive pooling requires static spatial dimensions")
		}
		out := outputSize[ii]
		if out == -1 {
			out = in
		}
		if out <= 0 || out > in {
			return nil, converters.NewInvalidOperandError(target, "output_size", outputSize,
				"output size must be between 1 and the input dimension %d", in)
		}
		config.Stride[ii] = in / out
		config.Window[ii] = in - (out-1)*config.Stride[ii]
	}
	layer, err := net.AddPooling(t, config)
	if err != nil {
		return nil, err
	}
	SetLayerName(layer, target, source, name)
	return layer.Output(0), nil
}
