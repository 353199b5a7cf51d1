// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package aten

import (
	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/converters/acc"
	"github.com/gomlx/torchlower/converters/adapt"
	"github.com/gomlx/torchlower/network"
)

var (
	batchNormSignature = adapt.Signature{Op: "batch_norm", Params: []adapt.Param{
		required("input", 0),
		required("weight", 1),
		required("bias", 2),
		required("running_mean", 3),
		required("running_var", 4),
		optional("training", 5, false),
		optional("momentum", 6, 0.1),
		optional("eps", 7, 1e-5),
	}}

	convolutionSignature = adapt.Signature{Op: "convnd", Params: []adapt.Param{
		required("input", 0),
		required("weight", 1),
		optional("bias", 2, nil),
		optional("stride", 3, []int{1}),
		optional("padding", 4, []int{0}),
		optional("dilation", 5, []int{1}),
		optional("transposed", 6, false),
		optional("output_padding", 7, nil),
		optional("groups", 8, 1),
	}}

	linearSignature = adapt.Signature{Op: "linear", Params: []adapt.Param{
		required("input", 0), required("weight", 1), optional("bias", 2, nil),
	}}

	maxPoolSignature = adapt.Signature{Op: "max_poolnd", Params: []adapt.Param{
		required("input", 0),
		required("kernel_size", 1),
		optional("stride", 2, nil),
		optional("padding", 3, 0),
		optional("dilation", 4, 1),
		optional("ceil_mode", 5, false),
	}}

	adaptiveAvgPoolSignature = adapt.Signature{Op: "adaptive_avg_poolnd", Params: []adapt.Param{
		required("input", 0), required("output_size", 1),
	}}

	// Embedding options are all read from the positional arguments.
	embeddingSignature = adapt.Signature{Op: "embedding", Params: []adapt.Param{
		required("input", 0),
		required("weight", 1),
		optional("max_norm", 2, nil),
		optional("norm_type", 3, 2.0),
		optional("scale_grad_by_freq", 4, false),
		optional("sparse", 5, false),
	}}
)

// BatchNorm converts aten.batch_norm(input, weight, bias, running_mean, running_var, training, momentum, eps).
func BatchNorm(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return delegate(net, target, args, kwargs, name, batchNormSignature, acc.BatchNorm)
}

// Convolution converts aten.convolution.default(input, weight, bias, stride, padding, dilation, transposed,
// output_padding, groups). Transposed convolutions and output paddings are not supported.
// 1D convolutions are lowered as 2D ones.
func Convolution(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	repacked, err := adapt.Repack(convolutionSignature, target, args, kwargs)
	if err != nil {
		return nil, err
	}
	transposed, err := converters.ToBool(target, "transposed", repacked["transposed"])
	if err != nil {
		return nil, err
	}
	if transposed {
		return nil, converters.NewUnsupportedConfigurationError(target, "transposed", true, "transposed convolutions are not supported")
	}
	if outputPadding := repacked["output_padding"]; outputPadding != nil {
		values, err := converters.ToInts(target, "output_padding", outputPadding)
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			if v != 0 {
				return nil, converters.NewUnsupportedConfigurationError(target, "output_padding", values, "output padding must be 0")
			}
		}
	}
	if is1D(target, repacked) {
		return acc.Conv1D(net, target, nil, repacked, name)
	}
	return acc.ConvND(net, target, nil, repacked, name)
}

// is1D returns whether the convolution has one spatial axis: taken from the rank of the weight if it is a tensor,
// otherwise from the number of strides.
func is1D(target converters.OpKey, kwargs map[string]any) bool {
	if weight, ok := kwargs["weight"].(network.Tensor); ok && weight != nil {
		return weight.Shape().Rank() == 3
	}
	stride, err := converters.ToInts(target, "stride", kwargs["stride"])
	return err == nil && len(stride) == 1
}

// Linear converts aten.linear(input, weight, bias=None).
func Linear(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return delegate(net, target, args, kwargs, name, linearSignature, acc.Linear)
}

// MaxPool converts aten.max_pool2d and aten.max_pool3d (input, kernel_size, stride=None, padding=0, dilation=1,
// ceil_mode=False).
func MaxPool(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return delegate(net, target, args, kwargs, name, maxPoolSignature, acc.MaxPoolND)
}

// AdaptiveAvgPool converts aten._adaptive_avg_pool2d and aten._adaptive_avg_pool3d (input, output_size).
func AdaptiveAvgPool(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return delegate(net, target, args, kwargs, name, adaptiveAvgPoolSignature, acc.AdaptiveAvgPoolND)
}

// Embedding converts aten.embedding.default(indices, weight, max_norm=None, norm_type=2.0,
// scale_grad_by_freq=False, sparse=False).
func Embedding(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return delegate(net, target, args, kwargs, name, embeddingSignature, acc.Embedding)
}
