// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package aten

import (
	"math"

	"github.com/gomlx/gopjrt/dtypes"

	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/converters/acc"
	"github.com/gomlx/torchlower/converters/adapt"
	"github.com/gomlx/torchlower/converters/impl"
	"github.com/gomlx/torchlower/network"
)

var (
	reduceSignature = adapt.Signature{Op: "reduce", Params: []adapt.Param{
		required("input", 0), optional("dim", 1, nil), optional("keepdim", 2, false),
	}}
	viewSignature   = adapt.Signature{Op: "reshape", Params: []adapt.Param{required("input", 0), required("shape", 1)}}
	catSignature    = adapt.Signature{Op: "cat", Params: []adapt.Param{required("tensors", 0), optional("dim", 1, 0)}}
	expandSignature = adapt.Signature{Op: "expand", Params: []adapt.Param{required("input", 0), required("sizes", 1)}}
)

// Mean converts aten.mean.default(input) and aten.mean.dim(input, dim, keepdim=False).
func Mean(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return delegate(net, target, args, kwargs, name, reduceSignature, acc.Mean)
}

// Sum converts aten.sum.default(input) and aten.sum.dim_IntList(input, dim, keepdim=False).
func Sum(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return delegate(net, target, args, kwargs, name, reduceSignature, acc.Sum)
}

// View converts aten.view.default(input, shape). The elements of shape can be integers or
// 1-element tensors (e.g. from aten.sym_size), in which case the shape is computed at execution time.
func View(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return delegate(net, target, args, kwargs, name, viewSignature, acc.Reshape)
}

// Cat converts aten.cat.default(tensors, dim=0).
func Cat(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return delegate(net, target, args, kwargs, name, catSignature, acc.Cat)
}

// Expand converts aten.expand.default(input, sizes).
func Expand(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return delegate(net, target, args, kwargs, name, expandSignature, acc.Expand)
}

// ToCopy converts aten._to_copy.default(input, dtype=None, ...): a cast if dtype is given, otherwise the input
// itself. Layout, device and memory format are ignored.
func ToCopy(net network.Network, target converters.OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	input, err := converters.RequiredArg(target, args, 0, "input")
	if err != nil {
		return nil, err
	}
	dtypeValue := converters.Arg(args, 1, kwargs["dtype"])
	if dtypeValue == nil {
		return single(impl.GetTensor(net, target, "input", input, dtypes.InvalidDType, name))
	}
	dtype, err := acc.ParseDType(target, "dtype", dtypeValue)
	if err != nil {
		return nil, err
	}
	return single(impl.Cast(net, target, Source, name, input, dtype))
}

// Select converts aten.select.int(input, dim, index).
func Select(net network.Network, target converters.OpKey, args []any, _ map[string]any, name string) ([]network.Tensor, error) {
	dim, index, err := twoInts(target, args, "dim", "index")
	if err != nil {
		return nil, err
	}
	return single(impl.Select(net, target, Source, name, args[0], dim, index))
}

// twoInts reads the integer arguments args[1] and args[2].
func twoInts(target converters.OpKey, args []any, name1, name2 string) (int, int, error) {
	v1, err := converters.RequiredArg(target, args, 1, name1)
	if err != nil {
		return 0, 0, err
	}
	v2, err := converters.RequiredArg(target, args, 2, name2)
	if err != nil {
		return 0, 0, err
	}
	i1, err := converters.ToInt(target, name1, v1)
	if err != nil {
		return 0, 0, err
	}
	i2, err := converters.ToInt(target, name2, v2)
	return i1, i2, err
}

// Slice converts aten.slice.Tensor(input, dim=0, start=None, end=None, step=1).
// The bounds can also be given as a pair, aten.slice.Tensor(input, dim, [start, end], step).
func Slice(net network.Network, target converters.OpKey, args []any, _ map[string]any, name string) ([]network.Tensor, error) {
	input, err := converters.RequiredArg(target, args, 0, "input")
	if err != nil {
		return nil, err
	}
	dim, err := converters.ToInt(target, "dim", converters.Arg(args, 1, 0))
	if err != nil {
		return nil, err
	}
	startValue, endValue, stepValue := converters.Arg(args, 2, nil), converters.Arg(args, 3, nil), converters.Arg(args, 4, 1)
	if pair, ok := startValue.([]int); ok {
		bounds := make([]any, len(pair))
		for ii, v := range pair {
			bounds[ii] = v
		}
		startValue = bounds
	}
	if bounds, ok := startValue.([]any); ok {
		if len(bounds) != 2 {
			return nil, converters.NewInvalidOperandError(target, "start", startValue, "expected [start, end]")
		}
		startValue, endValue, stepValue = bounds[0], bounds[1], converters.Arg(args, 3, 1)
	}
	start := 0
	if startValue != nil {
		if start, err = converters.ToInt(target, "start", startValue); err != nil {
			return nil, err
		}
	}
	end := math.MaxInt
	if endValue != nil {
		if end, err = converters.ToInt(target, "end", endValue); err != nil {
			return nil, err
		}
	}
	step, err := converters.ToInt(target, "step", stepValue)
	if err != nil {
		return nil, err
	}
	return single(impl.Slice(net, target, Source, name, input, start, end, step, dim))
}

// SymSize converts aten.sym_size(input, dim): the runtime dimension of the axis, as a 1-element tensor.
func SymSize(net network.Network, target converters.OpKey, args []any, _ map[string]any, name string) ([]network.Tensor, error) {
	value, err := converters.RequiredArg(target, args, 1, "dim")
	if err != nil {
		return nil, err
	}
	dim, err := converters.ToInt(target, "dim", value)
	if err != nil {
		return nil, err
	}
	return single(impl.SymSize(net, target, Source, name, args[0], dim))
}

// SymNumel converts aten.sym_numel(input): the runtime number of elements, as a 1-element tensor.
func SymNumel(net network.Network, target converters.OpKey, args []any, _ map[string]any, name string) ([]network.Tensor, error) {
	return single(impl.SymNumel(net, target, Source, name, converters.Arg(args, 0, nil)))
}

// Permute converts aten.permute.default(input, dims). The dims can also be given as separate arguments.
func Permute(net network.Network, target converters.OpKey, args []any, _ map[string]any, name string) ([]network.Tensor, error) {
	if len(args) < 2 {
		return nil, converters.NewInvalidOperandError(target, "dims", nil, "missing permutation")
	}
	var dims any = args[1:]
	if len(args) == 2 {
		dims = args[1]
	}
	order, err := converters.ToInts(target, "dims", dims)
	if err != nil {
		return nil, err
	}
	return single(impl.Permute(net, target, Source, name, args[0], order))
}

// Transpose converts aten.transpose.int(input, dim0, dim1). Without dims, the order of all axes is reversed.
func Transpose(net network.Network, target converters.OpKey, args []any, _ map[string]any, name string) ([]network.Tensor, error) {
	switch len(args) {
	case 1:
		return single(impl.Transpose(net, target, Source, name, args[0]))
	case 3:
		dim0, dim1, err := twoInts(target, args, "dim0", "dim1")
		if err != nil {
			return nil, err
		}
		return single(impl.Transpose(net, target, Source, name, args[0], dim0, dim1))
	}
	return nil, converters.NewInvalidOperandError(target, "args", args, "transpose takes the input and either no or two dims, got %d arguments", len(args))
}

// Squeeze converts aten.squeeze.default(input) and aten.squeeze.dim(input, dim).
func Squeeze(net network.Network, target converters.OpKey, args []any, _ map[string]any, name string) ([]network.Tensor, error) {
	dim, err := converters.ToOptionalInt(target, "dim", converters.Arg(args, 1, nil))
	if err != nil {
		return nil, err
	}
	return single(impl.Squeeze(net, target, Source, name, converters.Arg(args, 0, nil), dim))
}

// Unsqueeze converts aten.unsqueeze.default(input, dim).
func Unsqueeze(net network.Network, target converters.OpKey, args []any, _ map[string]any, name string) ([]network.Tensor, error) {
	value, err := converters.RequiredArg(target, args, 1, "dim")
	if err != nil {
		return nil, err
	}
	dim, err := converters.ToInt(target, "dim", value)
	if err != nil {
		return nil, err
	}
	return single(impl.Unsqueeze(net, target, Source, name, args[0], dim))
}
