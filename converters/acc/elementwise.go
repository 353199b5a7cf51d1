// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package acc

import (
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/converters/impl"
	"github.com/gomlx/torchlower/network"
)

func binaryOperands(target converters.OpKey, kwargs map[string]any, otherKey string) (lhs, rhs any, err error) {
	if lhs, err = converters.RequiredKwarg(target, kwargs, "input"); err != nil {
		return
	}
	rhs, err = converters.RequiredKwarg(target, kwargs, otherKey)
	return
}

func elementWise(net network.Network, target converters.OpKey, kwargs map[string]any, name string,
	op network.ElementWiseOp) ([]network.Tensor, error) {
	lhs, rhs, err := binaryOperands(target, kwargs, "other")
	if err != nil {
		return nil, err
	}
	return single(impl.ElementWise(net, target, Source, name, lhs, rhs, op))
}

// Add converts acc.add(input, other).
func Add(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return elementWise(net, target, kwargs, name, network.ElementWiseSum)
}

// Sub converts acc.sub(input, other).
func Sub(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return elementWise(net, target, kwargs, name, network.ElementWiseSub)
}

// Mul converts acc.mul(input, other).
func Mul(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return elementWise(net, target, kwargs, name, network.ElementWiseProd)
}

// Div converts acc.div(input, other), the true division: integer tensors are cast to Float32 first.
func Div(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	lhs, rhs, err := binaryOperands(target, kwargs, "other")
	if err != nil {
		return nil, err
	}
	if lhs, err = toFloat(net, target, name+"_input_cast", lhs); err != nil {
		return nil, err
	}
	if rhs, err = toFloat(net, target, name+"_other_cast", rhs); err != nil {
		return nil, err
	}
	return single(impl.ElementWise(net, target, Source, name, lhs, rhs, network.ElementWiseDiv))
}

// toFloat casts integer tensors to Float32, other values are returned as is.
func toFloat(net network.Network, target converters.OpKey, name string, value any) (any, error) {
	t, ok := value.(network.Tensor)
	if !ok || t == nil || t.Shape().DType.IsFloat() {
		return value, nil
	}
	return impl.Cast(net, target, Source, name, t, dtypes.Float32)
}

// FloorDiv converts acc.floor_div(input, other).
func FloorDiv(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return elementWise(net, target, kwargs, name, network.ElementWiseFloorDiv)
}

// Fmod converts acc.fmod(input, other): the remainder of the division rounded towards zero.
func Fmod(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	lhs, rhs, err := binaryOperands(target, kwargs, "other")
	if err != nil {
		return nil, err
	}
	return single(impl.Fmod(net, target, Source, name, lhs, rhs))
}

// Pow converts acc.pow(input, exponent).
func Pow(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	lhs, rhs, err := binaryOperands(target, kwargs, "exponent")
	if err != nil {
		return nil, err
	}
	return single(impl.ElementWise(net, target, Source, name, lhs, rhs, network.ElementWisePow))
}

// Relu converts acc.relu(input).
func Relu(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return single(impl.Relu(net, target, Source, name, kwargs["input"]))
}

// Sigmoid converts acc.sigmoid(input).
func Sigmoid(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return single(impl.Sigmoid(net, target, Source, name, kwargs["input"]))
}

// Tanh converts acc.tanh(input).
func Tanh(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return single(impl.Tanh(net, target, Source, name, kwargs["input"]))
}

// HardTanh converts acc.hardtanh(input, min_val=-1, max_val=1).
func HardTanh(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	minValue, err := converters.ToFloat(target, "min_val", converters.Kwarg(kwargs, "min_val", -1.0))
	if err != nil {
		return nil, err
	}
	maxValue, err := converters.ToFloat(target, "max_val", converters.Kwarg(kwargs, "max_val", 1.0))
	if err != nil {
		return nil, err
	}
	return single(impl.HardTanh(net, target, Source, name, kwargs["input"], minValue, maxValue))
}

// LeakyRelu converts acc.leaky_relu(input, negative_slope=0.01).
func LeakyRelu(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	slope, err := converters.ToFloat(target, "negative_slope", converters.Kwarg(kwargs, "negative_slope", impl.DefaultLeakyReluSlope))
	if err != nil {
		return nil, err
	}
	return single(impl.LeakyRelu(net, target, Source, name, kwargs["input"], slope))
}
