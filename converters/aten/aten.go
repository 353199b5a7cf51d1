// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package aten implements the converters of the "aten" operator set, the operators of traced graphs that take
// positional arguments (e.g. aten.add.Tensor(x, y)), plus the Python "operator" functions found in the same
// graphs (operator.add, ...).
//
// Most converters repack their positional arguments as the keywords of the equivalent acc operator, with a
// per-operator adapt.Signature, and call the acc converter directly. Operators whose semantics differ, like
// division with a rounding mode, are dispatched here before delegating.
package aten

import (
	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/converters/adapt"
	"github.com/gomlx/torchlower/network"
)

// Source of the layers created directly by the converters in this package.
const Source = converters.SourceATen

type registration struct {
	converter converters.Converter
	keys      []converters.OpKey
}

func aten(name string, overloads ...string) []converters.OpKey {
	if len(overloads) == 0 {
		return []converters.OpKey{converters.Aten(name, "")}
	}
	keys := make([]converters.OpKey, len(overloads))
	for ii, overload := range overloads {
		keys[ii] = converters.Aten(name, overload)
	}
	return keys
}

func operator(name string) []converters.OpKey {
	return []converters.OpKey{converters.Operator(name)}
}

var registrations = []registration{
	{Add, aten("add", "Tensor")},
	{Sub, aten("sub", "Tensor")},
	{Mul, aten("mul", "Tensor")},
	{Div, aten("div", "default", "Tensor", "Tensor_mode")},
	{FloorDivide, aten("floor_divide", "default")},
	{Fmod, aten("fmod", "Scalar", "Tensor")},
	{Pow, aten("pow", "Tensor_Scalar", "Tensor_Tensor")},
	{Rsqrt, aten("rsqrt", "default")},
	{Clamp, aten("clamp", "default")},
	{Relu, aten("relu", "default")},
	{Sigmoid, aten("sigmoid", "default")},
	{Tanh, aten("tanh", "default")},
	{HardTanh, aten("hardtanh", "default")},
	{LeakyRelu, aten("leaky_relu", "default")},
	{Mean, aten("mean", "default", "dim")},
	{Sum, aten("sum", "default", "dim_IntList")},
	{BatchNorm, aten("batch_norm")},
	{Convolution, aten("convolution", "default")},
	{Linear, aten("linear")},
	{MaxPool, aten("max_pool2d")},
	{MaxPool, aten("max_pool3d")},
	{AdaptiveAvgPool, aten("_adaptive_avg_pool2d", "default")},
	{AdaptiveAvgPool, aten("_adaptive_avg_pool3d", "default")},
	{View, aten("view", "default")},
	{Cat, aten("cat", "default")},
	{Expand, aten("expand", "default")},
	{ToCopy, aten("_to_copy", "default")},
	{Embedding, aten("embedding", "default")},
	{Select, aten("select", "int")},
	{Slice, aten("slice", "Tensor")},
	{SymSize, aten("sym_size")},
	{SymNumel, aten("sym_numel")},
	{Permute, aten("permute", "default")},
	{Transpose, aten("transpose", "int")},
	{Squeeze, aten("squeeze", "dim", "default")},
	{Unsqueeze, aten("unsqueeze", "default")},
	{OperatorAdd, operator("add")},
	{OperatorSub, operator("sub")},
	{OperatorMul, operator("mul")},
	{OperatorFloorDiv, operator("floordiv")},
}

// Register all aten and operator converters in r.
func Register(r *converters.Registry) error {
	for _, reg := range registrations {
		for _, key := range reg.keys {
			if err := r.Register(key, reg.converter); err != nil {
				return err
			}
		}
	}
	return nil
}

// delegate repacks args and kwargs with sig and calls the keyword based converter.
func delegate(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string,
	sig adapt.Signature, converter converters.Converter) ([]network.Tensor, error) {
	repacked, err := adapt.Repack(sig, target, args, kwargs)
	if err != nil {
		return nil, err
	}
	return converter(net, target, nil, repacked, name)
}

// single wraps the one output of a converter.
func single(t network.Tensor, err error) ([]network.Tensor, error) {
	if err != nil {
		return nil, err
	}
	return []network.Tensor{t}, nil
}

func required(name string, position int) adapt.Param {
	return adapt.Param{Name: name, Position: position, Required: true}
}

func optional(name string, position int, defaultValue any) adapt.Param {
	return adapt.Param{Name: name, Position: position, Default: defaultValue}
}

// binarySignature is shared by the binary operators delegating to acc.
func binarySignature(op string) adapt.Signature {
	return adapt.Signature{Op: op, Params: []adapt.Param{required("input", 0), required("other", 1)}}
}
