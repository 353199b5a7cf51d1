// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package impl

import (
	"slices"

	"k8s.io/klog/v2"

	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/network"
	"github.com/gomlx/torchlower/types/shapes"
)

// BatchNormOptions configures BatchNorm.
type BatchNormOptions struct {
	// Training is ignored: the lowered network always uses the running statistics.
	Training bool
	Momentum float64
	Epsilon  float64
}

// DefaultBatchNormOptions returns the default options of a batch normalization.
func DefaultBatchNormOptions() BatchNormOptions {
	return BatchNormOptions{Momentum: 0.1, Epsilon: 1e-5}
}

// onesLike returns the dimensions of a tensor of the given rank that broadcasts a [dim] vector along axis.
func onesLike(rank, axis, dim int) []int {
	dims := slices.Repeat([]int{1}, rank)
	dims[axis] = dim
	return dims
}

// BatchNorm normalizes input (shaped [batch, channels, ...]) with the running statistics of each channel:
//
//	output = (input - runningMean) / sqrt(runningVar + eps) * weight + bias
//
// It is lowered as input * scale + shift, with the per-channel scale and shift computed by the network.
// A nil weight defaults to ones and a nil bias to zeros.
func BatchNorm(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input, weight, bias, runningMean, runningVar any, opts BatchNormOptions) (network.Tensor, error) {
	t, err := converters.ToTensor(target, "input", input)
	if err != nil {
		return nil, err
	}
	if opts.Training {
		klog.Warningf("%s: batch_norm(training=true) is lowered with the running statistics", name)
	}
	channelAxis := 1
	if net.HasImplicitBatchDimension() {
		channelAxis = 0
	}
	rank := t.Shape().Rank()
	if rank <= channelAxis {
		return nil, converters.NewInvalidOperandError(target, "input", t.Shape(), "input has no channels axis")
	}
	channels := t.Shape().Dimensions[channelAxis]
	if channels == shapes.DynamicDim {
		return nil, converters.NewUnsupportedConfigurationError(target, "input", t.Shape(), "channels axis must be static")
	}
	dtype := t.Shape().DType
	perChannel := func(operand string, value any, defaultValue float64) (network.Tensor, error) {
		if value == nil {
			if operand == "running_mean" || operand == "running_var" {
				return nil, converters.NewInvalidOperandError(target, operand, value, "running statistics are required")
			}
			return Constant(net, dtype, []int{channels}, slices.Repeat([]float64{defaultValue}, channels), name+"_"+operand)
		}
		param, err := GetTensor(net, target, operand, value, dtype, name)
		if err != nil {
			return nil, err
		}
		if !param.Shape().EqualDimensions(shapes.Make(dtype, channels)) {
			return nil, converters.NewInvalidOperandError(target, operand, param.Shape(), "expected shape [%d]", channels)
		}
		return param, nil
	}
	weightT, err := perChannel("weight", weight, 1)
	if err != nil {
		return nil, err
	}
	biasT, err := perChannel("bias", bias, 0)
	if err != nil {
		return nil, err
	}
	meanT, err := perChannel("running_mean", runningMean, 0)
	if err != nil {
		return nil, err
	}
	varT, err := perChannel("running_var", runningVar, 0)
	if err != nil {
		return nil, err
	}

	varEps, err := ElementWise(net, target, source, name+"_var_eps", varT, opts.Epsilon, network.ElementWiseSum)
	if err != nil {
		return nil, err
	}
	invStd, err := Rsqrt(net, target, source, name+"_rsqrt", varEps)
	if err != nil {
		return nil, err
	}
	scale, err := ElementWise(net, target, source, name+"_scale", weightT, invStd, network.ElementWiseProd)
	if err != nil {
		return nil, err
	}
	meanScale, err := ElementWise(net, target, source, name+"_mean_scale", meanT, scale, network.ElementWiseProd)
	if err != nil {
		return nil, err
	}
	shift, err := ElementWise(net, target, source, name+"_shift", biasT, meanScale, network.ElementWiseSub)
	if err != nil {
		return nil, err
	}

	broadcastDims := onesLike(rank, channelAxis, channels)
	sources := make([]int, rank)
	if scale, err = reshape(net, target, source, name+"_scale_reshape", scale, broadcastDims, sources); err != nil {
		return nil, err
	}
	if shift, err = reshape(net, target, source, name+"_shift_reshape", shift, broadcastDims, sources); err != nil {
		return nil, err
	}
	scaled, err := ElementWise(net, target, source, name+"_mul", t, scale, network.ElementWiseProd)
	if err != nil {
		return nil, err
	}
	return ElementWise(net, target, source, name+"_add", scaled, shift, network.ElementWiseSum)
}
