// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package impl

import (
	"slices"

	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/network"
	"github.com/gomlx/torchlower/types/shapes"
)

// ConvolutionOptions configures Convolution. Stride, Padding and Dilation can have one value per spatial axis,
// or a single value used for all of them. Nil values take the defaults (1, 0 and 1).
type ConvolutionOptions struct {
	Stride, Padding, Dilation []int
	Groups                    int
}

// spatialParam expands the per-spatial-axis parameter values to numSpatial values.
func spatialParam(target converters.OpKey, field string, values []int, numSpatial, defaultValue int) ([]int, error) {
	switch len(values) {
	case 0:
		return slices.Repeat([]int{defaultValue}, numSpatial), nil
	case 1:
		return slices.Repeat(values, numSpatial), nil
	case numSpatial:
		return slices.Clone(values), nil
	}
	return nil, converters.NewInvalidOperandError(target, field, values, "expected 1 or %d values", numSpatial)
}

// Convolution convolves input (shaped [batch, channels, spatial...]) with kernel (shaped
// [outChannels, channels/groups, window...]), and adds the optional bias (nil) shaped [outChannels].
// The number of spatial axes is taken from the kernel.
func Convolution(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input, kernel, bias any, opts ConvolutionOptions) (network.Tensor, error) {
	t, err := converters.ToTensor(target, "input", input)
	if err != nil {
		return nil, err
	}
	kernelT, err := GetTensor(net, target, "weight", kernel, t.Shape().DType, name)
	if err != nil {
		return nil, err
	}
	if shapes.HasDynamicShape(kernelT.Shape()) {
		return nil, converters.NewUnsupportedConfigurationError(target, "weight", kernelT.Shape(), "kernel must have a static shape")
	}
	numSpatial := kernelT.Shape().Rank() - 2
	if numSpatial < 1 {
		return nil, converters.NewInvalidOperandError(target, "weight", kernelT.Shape(), "kernel must have rank >= 3")
	}
	var config network.ConvolutionConfig
	if config.Stride, err = spatialParam(target, "stride", opts.Stride, numSpatial, 1); err != nil {
		return nil, err
	}
	if config.Padding, err = spatialParam(target, "padding", opts.Padding, numSpatial, 0); err != nil {
		return nil, err
	}
	if config.Dilation, err = spatialParam(target, "dilation", opts.Dilation, numSpatial, 1); err != nil {
		return nil, err
	}
	config.Groups = max(opts.Groups, 1)
	var biasT network.Tensor
	if bias != nil {
		if biasT, err = GetTensor(net, target, "bias", bias, t.Shape().DType, name); err != nil {
			return nil, err
		}
	}
	layer, err := net.AddConvolution(t, kernelT, biasT, config)
	if err != nil {
		return nil, err
	}
	SetLayerName(layer, target, source, name)
	return layer.Output(0), nil
}

// Convolution1D lowers a 1D convolution as a 2D one: the input gets a trailing spatial axis of
// dimension 1, the kernel is reshaped to [outChannels, channels/groups, window, 1] and the
// trailing axis is squeezed from the result.
func Convolution1D(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input, kernel, bias any, opts ConvolutionOptions) (network.Tensor, error) {
	t, err := converters.ToTensor(target, "input", input)
	if err != nil {
		return nil, err
	}
	kernelT, err := GetTensor(net, target, "weight", kernel, t.Shape().DType, name)
	if err != nil {
		return nil, err
	}
	kernelDims := kernelT.Shape().Dimensions
	if len(kernelDims) != 3 || shapes.HasDynamicShape(kernelT.Shape()) {
		return nil, converters.NewInvalidOperandError(target, "weight", kernelT.Shape(), "1D kernel must have a static rank 3 shape")
	}
	opts2D := ConvolutionOptions{Groups: opts.Groups}
	for _, param := range []struct {
		field        string
		values       []int
		defaultValue int
		extra        int
		to           *[]int
	}{
		{"stride", opts.Stride, 1, 1, &opts2D.Stride},
		{"padding", opts.Padding, 0, 0, &opts2D.Padding},
		{"dilation", opts.Dilation, 1, 1, &opts2D.Dilation},
	} {
		values, err := spatialParam(target, param.field, param.values, 1, param.defaultValue)
		if err != nil {
			return nil, err
		}
		*param.to = append(values, param.extra)
	}
	unsqueezed, err := Unsqueeze(net, target, source, name+"_unsqueeze", t, -1)
	if err != nil {
		return nil, err
	}
	kernel2D, err := reshape(net, target, source, name+"_kernel", kernelT, append(slices.Clone(kernelDims), 1), []int{0, 1, 2, 0})
	if err != nil {
		return nil, err
	}
	output, err := Convolution(net, target, source, name+"_conv", unsqueezed, kernel2D, bias, opts2D)
	if err != nil {
		return nil, err
	}
	squeezeAxis := -1
	return Squeeze(net, target, source, name+"_squeeze", output, &squeezeAxis)
}
