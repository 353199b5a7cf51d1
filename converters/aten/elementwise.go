// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package aten

import (
	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/converters/acc"
	"github.com/gomlx/torchlower/converters/adapt"
	"github.com/gomlx/torchlower/converters/impl"
	"github.com/gomlx/torchlower/network"
)

var (
	addSignature      = binarySignature("add")
	subSignature      = binarySignature("sub")
	mulSignature      = binarySignature("mul")
	floorDivSignature = binarySignature("floor_div")
	fmodSignature     = binarySignature("fmod")
	divSignature      = adapt.Signature{Op: "div", Params: []adapt.Param{
		required("input", 0),
		required("other", 1),
		optional("rounding_mode", adapt.KeywordOnly, nil),
	}}
	powSignature = adapt.Signature{Op: "pow", Params: []adapt.Param{required("input", 0), required("exponent", 1)}}
	alphaParam   = optional("alpha", adapt.KeywordOnly, nil)
)

// scaleOther multiplies kwargs["other"] by the alpha keyword of aten.add/aten.sub, if given and not 1.
func scaleOther(net network.Network, target converters.OpKey, kwargs map[string]any, name string) error {
	alpha := kwargs["alpha"]
	if alpha == nil {
		return nil
	}
	if f, err := converters.ToFloat(target, "alpha", alpha); err == nil && f == 1 {
		return nil
	}
	if converters.IsTensor(alpha) {
		return converters.NewUnsupportedConfigurationError(target, "alpha", alpha, "alpha must be a constant")
	}
	other := kwargs["other"]
	if !converters.IsTensor(other) {
		// Constants are scaled here, without adding layers.
		o, err := converters.ToFloat(target, "other", other)
		if err != nil {
			return err
		}
		a, err := converters.ToFloat(target, "alpha", alpha)
		if err != nil {
			return err
		}
		kwargs["other"] = o * a
		return nil
	}
	scaled, err := impl.ElementWise(net, target, Source, name+"_alpha", other, alpha, network.ElementWiseProd)
	if err != nil {
		return err
	}
	kwargs["other"] = scaled
	return nil
}

func withAlpha(sig adapt.Signature) adapt.Signature {
	sig.Params = append(sig.Params[:len(sig.Params):len(sig.Params)], alphaParam)
	return sig
}

// Add converts aten.add.Tensor(input, other, *, alpha=1): input + alpha*other.
func Add(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	repacked, err := adapt.Repack(withAlpha(addSignature), target, args, kwargs)
	if err != nil {
		return nil, err
	}
	if err = scaleOther(net, target, repacked, name); err != nil {
		return nil, err
	}
	return acc.Add(net, target, nil, repacked, name)
}

// Sub converts aten.sub.Tensor(input, other, *, alpha=1): input - alpha*other.
func Sub(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	repacked, err := adapt.Repack(withAlpha(subSignature), target, args, kwargs)
	if err != nil {
		return nil, err
	}
	if err = scaleOther(net, target, repacked, name); err != nil {
		return nil, err
	}
	return acc.Sub(net, target, nil, repacked, name)
}

// Mul converts aten.mul.Tensor(input, other).
func Mul(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return delegate(net, target, args, kwargs, name, mulSignature, acc.Mul)
}

// Rounding modes of aten.div.
const (
	RoundingFloor = "floor"
	RoundingTrunc = "trunc"
)

// Div converts aten.div(input, other, *, rounding_mode=None). The rounding mode selects the lowering:
// true division (nil), floor division ("floor") or division rounded towards zero ("trunc").
// Other rounding modes return a converters.UnsupportedConfigurationError.
func Div(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	repacked, err := adapt.Repack(divSignature, target, args, kwargs)
	if err != nil {
		return nil, err
	}
	mode, err := converters.ToOptionalString(target, "rounding_mode", repacked["rounding_mode"])
	if err != nil {
		return nil, err
	}
	switch {
	case mode == nil:
		return acc.Div(net, target, nil, repacked, name)
	case *mode == RoundingFloor:
		return acc.FloorDiv(net, target, nil, repacked, name)
	case *mode == RoundingTrunc:
		return single(impl.TruncDiv(net, target, Source, name, repacked["input"], repacked["other"]))
	}
	return nil, converters.NewUnsupportedConfigurationError(target, "rounding_mode", *mode,
		"rounding mode must be None, %q or %q", RoundingFloor, RoundingTrunc)
}

// FloorDivide converts aten.floor_divide.default(input, other).
func FloorDivide(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return delegate(net, target, args, kwargs, name, floorDivSignature, acc.FloorDiv)
}

// Fmod converts aten.fmod.Scalar and aten.fmod.Tensor (input, other).
func Fmod(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return delegate(net, target, args, kwargs, name, fmodSignature, acc.Fmod)
}

// Pow converts aten.pow.Tensor_Scalar and aten.pow.Tensor_Tensor (input, exponent).
func Pow(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return delegate(net, target, args, kwargs, name, powSignature, acc.Pow)
}

// Rsqrt converts aten.rsqrt.default(input).
func Rsqrt(net network.Network, target converters.OpKey, args []any, _ map[string]any, name string) ([]network.Tensor, error) {
	return single(impl.Rsqrt(net, target, Source, name, converters.Arg(args, 0, nil)))
}

// Clamp converts aten.clamp.default(input, min=None, max=None).
func Clamp(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	minValue, err := converters.ToOptionalFloat(target, "min", converters.Arg(args, 1, kwargs["min"]))
	if err != nil {
		return nil, err
	}
	maxValue, err := converters.ToOptionalFloat(target, "max", converters.Arg(args, 2, kwargs["max"]))
	if err != nil {
		return nil, err
	}
	return single(impl.Clamp(net, target, Source, name, converters.Arg(args, 0, nil), minValue, maxValue))
}

// Relu converts aten.relu.default(input).
func Relu(net network.Network, target converters.OpKey, args []any, _ map[string]any, name string) ([]network.Tensor, error) {
	return single(impl.Relu(net, target, Source, name, converters.Arg(args, 0, nil)))
}

// Sigmoid converts aten.sigmoid.default(input).
func Sigmoid(net network.Network, target converters.OpKey, args []any, _ map[string]any, name string) ([]network.Tensor, error) {
	return single(impl.Sigmoid(net, target, Source, name, converters.Arg(args, 0, nil)))
}

// Tanh converts aten.tanh.default(input).
func Tanh(net network.Network, target converters.OpKey, args []any, _ map[string]any, name string) ([]network.Tensor, error) {
	return single(impl.Tanh(net, target, Source, name, converters.Arg(args, 0, nil)))
}

var (
	hardTanhSignature = adapt.Signature{Op: "hardtanh", Params: []adapt.Param{
		required("input", 0), optional("min_val", 1, -1.0), optional("max_val", 2, 1.0),
	}}
	leakyReluSignature = adapt.Signature{Op: "leaky_relu", Params: []adapt.Param{
		required("input", 0), optional("negative_slope", 1, impl.DefaultLeakyReluSlope),
	}}
)

// HardTanh converts aten.hardtanh.default(input, min_val=-1, max_val=1).
func HardTanh(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return delegate(net, target, args, kwargs, name, hardTanhSignature, acc.HardTanh)
}

// LeakyRelu converts aten.leaky_relu.default(input, negative_slope=0.01).
func LeakyRelu(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return delegate(net, target, args, kwargs, name, leakyReluSignature, acc.LeakyRelu)
}

// OperatorAdd converts Python's operator.add(a, b).
func OperatorAdd(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return delegate(net, target, args, kwargs, name, addSignature, acc.Add)
}

// OperatorSub converts Python's operator.sub(a, b).
func OperatorSub(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return delegate(net, target, args, kwargs, name, subSignature, acc.Sub)
}

// OperatorMul converts Python's operator.mul(a, b).
func OperatorMul(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return delegate(net, target, args, kwargs, name, mulSignature, acc.Mul)
}

// OperatorFloorDiv converts Python's operator.floordiv(a, b).
func OperatorFloorDiv(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return delegate(net, target, args, kwargs, name, floorDivSignature, acc.FloorDiv)
}
