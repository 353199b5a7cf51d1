// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package acc

import (
	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/converters/impl"
	"github.com/gomlx/torchlower/network"
)

// Linear converts acc.linear(input, weight, bias=None).
func Linear(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	weight, err := converters.RequiredKwarg(target, kwargs, "weight")
	if err != nil {
		return nil, err
	}
	return single(impl.Linear(net, target, Source, name, kwargs["input"], weight, kwargs["bias"]))
}

func convolutionOptions(target converters.OpKey, kwargs map[string]any) (opts impl.ConvolutionOptions, err error) {
	if opts.Stride, err = intsKwarg(target, kwargs, "stride"); err != nil {
		return
	}
	if opts.Padding, err = intsKwarg(target, kwargs, "padding"); err != nil {
		return
	}
	if opts.Dilation, err = intsKwarg(target, kwargs, "dilation"); err != nil {
		return
	}
	opts.Groups, err = converters.ToInt(target, "groups", converters.Kwarg(kwargs, "groups", 1))
	return
}

// Conv1D converts acc.conv1d(input, weight, bias=None, stride=1, padding=0, dilation=1, groups=1),
// lowered as a 2D convolution.
func Conv1D(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	opts, err := convolutionOptions(target, kwargs)
	if err != nil {
		return nil, err
	}
	weight, err := converters.RequiredKwarg(target, kwargs, "weight")
	if err != nil {
		return nil, err
	}
	return single(impl.Convolution1D(net, target, Source, name, kwargs["input"], weight, kwargs["bias"], opts))
}

// ConvND converts acc.convnd(input, weight, bias=None, stride=1, padding=0, dilation=1, groups=1).
// The number of spatial axes is given by the rank of the weight.
func ConvND(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	opts, err := convolutionOptions(target, kwargs)
	if err != nil {
		return nil, err
	}
	weight, err := converters.RequiredKwarg(target, kwargs, "weight")
	if err != nil {
		return nil, err
	}
	return single(impl.Convolution(net, target, Source, name, kwargs["input"], weight, kwargs["bias"], opts))
}

// MaxPoolND converts acc.max_poolnd(input, kernel_size, stride=None, padding=0, dilation=1, ceil_mode=False).
func MaxPoolND(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	var opts impl.PoolingOptions
	var err error
	if opts.KernelSize, err = converters.ToInts(target, "kernel_size", kwargs["kernel_size"]); err != nil {
		return nil, err
	}
	if opts.Stride, err = intsKwarg(target, kwargs, "stride"); err != nil {
		return nil, err
	}
	if opts.Padding, err = intsKwarg(target, kwargs, "padding"); err != nil {
		return nil, err
	}
	if opts.Dilation, err = intsKwarg(target, kwargs, "dilation"); err != nil {
		return nil, err
	}
	if opts.CeilMode, err = converters.ToBool(target, "ceil_mode", kwargs["ceil_mode"]); err != nil {
		return nil, err
	}
	return single(impl.MaxPool(net, target, Source, name, kwargs["input"], opts))
}

// AdaptiveAvgPoolND converts acc.adaptive_avg_poolnd(input, output_size). Nil elements of output_size
// keep the input dimension.
func AdaptiveAvgPoolND(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	value, err := converters.RequiredKwarg(target, kwargs, "output_size")
	if err != nil {
		return nil, err
	}
	if list, ok := value.([]any); ok {
		sizes := make([]any, len(list))
		for ii, elem := range list {
			sizes[ii] = elem
			if elem == nil {
				sizes[ii] = -1
			}
		}
		value = sizes
	}
	outputSize, err := converters.ToInts(target, "output_size", value)
	if err != nil {
		return nil, err
	}
	return single(impl.AdaptiveAvgPool(net, target, Source, name, kwargs["input"], outputSize))
}

// BatchNorm converts acc.batch_norm(input, weight, bias, running_mean, running_var, training, momentum, eps).
// training=True is lowered as inference.
func BatchNorm(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	opts := impl.DefaultBatchNormOptions()
	var err error
	if opts.Training, err = converters.ToBool(target, "training", kwargs["training"]); err != nil {
		return nil, err
	}
	if opts.Momentum, err = converters.ToFloat(target, "momentum", converters.Kwarg(kwargs, "momentum", opts.Momentum)); err != nil {
		return nil, err
	}
	if opts.Epsilon, err = converters.ToFloat(target, "eps", converters.Kwarg(kwargs, "eps", opts.Epsilon)); err != nil {
		return nil, err
	}
	return single(impl.BatchNorm(net, target, Source, name, kwargs["input"], kwargs["weight"], kwargs["bias"],
		kwargs["running_mean"], kwargs["running_var"], opts))
}

// Embedding converts acc.embedding(input, weight, padding_idx=None, max_norm=None, norm_type=2.0,
// scale_grad_by_freq=False, sparse=False). padding_idx only matters for training and is ignored.
func Embedding(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	opts := impl.DefaultEmbeddingOptions()
	var err error
	if opts.MaxNorm, err = converters.ToOptionalFloat(target, "max_norm", kwargs["max_norm"]); err != nil {
		return nil, err
	}
	if opts.NormType, err = converters.ToFloat(target, "norm_type", converters.Kwarg(kwargs, "norm_type", opts.NormType)); err != nil {
		return nil, err
	}
	if opts.ScaleGradByFreq, err = converters.ToBool(target, "scale_grad_by_freq", kwargs["scale_grad_by_freq"]); err != nil {
		return nil, err
	}
	if opts.Sparse, err = converters.ToBool(target, "sparse", kwargs["sparse"]); err != nil {
		return nil, err
	}
	weight, err := converters.RequiredKwarg(target, kwargs, "weight")
	if err != nil {
		return nil, err
	}
	return single(impl.Embedding(net, target, Source, name, kwargs["input"], weight, opts))
}
