// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package acc

import (
	"math"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"

	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/converters/impl"
	"github.com/gomlx/torchlower/network"
)

// Reshape converts acc.reshape(input, shape). Elements of shape can be integers or 1-element tensors.
func Reshape(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	value, err := converters.RequiredKwarg(target, kwargs, "shape")
	if err != nil {
		return nil, err
	}
	var shape []any
	if list, ok := value.([]any); ok {
		shape = list
	} else {
		dims, err := converters.ToInts(target, "shape", value)
		if err != nil {
			return nil, err
		}
		shape = make([]any, len(dims))
		for ii, dim := range dims {
			shape[ii] = dim
		}
	}
	return single(impl.Reshape(net, target, Source, name, kwargs["input"], shape))
}

// Permute converts acc.permute(input, permutation).
func Permute(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	permutation, err := converters.ToInts(target, "permutation", kwargs["permutation"])
	if err != nil {
		return nil, err
	}
	return single(impl.Permute(net, target, Source, name, kwargs["input"], permutation))
}

// Squeeze converts acc.squeeze(input, dim=None).
func Squeeze(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	dim, err := converters.ToOptionalInt(target, "dim", kwargs["dim"])
	if err != nil {
		return nil, err
	}
	return single(impl.Squeeze(net, target, Source, name, kwargs["input"], dim))
}

// Unsqueeze converts acc.unsqueeze(input, dim).
func Unsqueeze(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	dim, err := converters.ToInt(target, "dim", kwargs["dim"])
	if err != nil {
		return nil, err
	}
	return single(impl.Unsqueeze(net, target, Source, name, kwargs["input"], dim))
}

// SliceTensor converts acc.slice_tensor(input, dim, start=0, stop=None, step=1). A nil stop slices to the end.
func SliceTensor(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	dim, err := converters.ToInt(target, "dim", kwargs["dim"])
	if err != nil {
		return nil, err
	}
	start, err := converters.ToInt(target, "start", converters.Kwarg(kwargs, "start", 0))
	if err != nil {
		return nil, err
	}
	stop := math.MaxInt
	if value := kwargs["stop"]; value != nil {
		if stop, err = converters.ToInt(target, "stop", value); err != nil {
			return nil, err
		}
	}
	step, err := converters.ToInt(target, "step", converters.Kwarg(kwargs, "step", 1))
	if err != nil {
		return nil, err
	}
	return single(impl.Slice(net, target, Source, name, kwargs["input"], start, stop, step, dim))
}

func reduce(net network.Network, target converters.OpKey, kwargs map[string]any, name string, op network.ReduceOp) ([]network.Tensor, error) {
	dims, err := intsKwarg(target, kwargs, "dim")
	if err != nil {
		return nil, err
	}
	keepDim, err := converters.ToBool(target, "keepdim", kwargs["keepdim"])
	if err != nil {
		return nil, err
	}
	return single(impl.Reduce(net, target, Source, name, kwargs["input"], dims, keepDim, op))
}

// Sum converts acc.sum(input, dim=None, keepdim=False).
func Sum(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return reduce(net, target, kwargs, name, network.ReduceSum)
}

// Mean converts acc.mean(input, dim=None, keepdim=False).
func Mean(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	return reduce(net, target, kwargs, name, network.ReduceAvg)
}

// Cat converts acc.cat(tensors, dim=0).
func Cat(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	tensors, err := tensorsKwarg(target, kwargs, "tensors")
	if err != nil {
		return nil, err
	}
	dim, err := converters.ToInt(target, "dim", converters.Kwarg(kwargs, "dim", 0))
	if err != nil {
		return nil, err
	}
	return single(impl.Concatenate(net, target, Source, name, tensors, dim))
}

// Expand converts acc.expand(input, sizes).
func Expand(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	sizes, err := converters.ToInts(target, "sizes", kwargs["sizes"])
	if err != nil {
		return nil, err
	}
	return single(impl.Expand(net, target, Source, name, kwargs["input"], sizes))
}

// torchDTypes maps the names of torch dtypes that differ from the dtypes names.
var torchDTypes = map[string]dtypes.DType{
	"float":  dtypes.Float32,
	"double": dtypes.Float64,
	"half":   dtypes.Float16,
	"int":    dtypes.Int32,
	"long":   dtypes.Int64,
	"short":  dtypes.Int16,
}

// ParseDType converts a dtype given as dtypes.DType or as a name ("float32", "torch.half", "Int32", ...).
func ParseDType(target converters.OpKey, operand string, value any) (dtypes.DType, error) {
	switch v := value.(type) {
	case dtypes.DType:
		return v, nil
	case string:
		name := strings.TrimPrefix(v, "torch.")
		if dtype, found := torchDTypes[name]; found {
			return dtype, nil
		}
		if dtype, found := dtypes.MapOfNames[name]; found && dtype != dtypes.InvalidDType {
			return dtype, nil
		}
		for key, dtype := range dtypes.MapOfNames {
			if strings.EqualFold(key, name) && dtype != dtypes.InvalidDType {
				return dtype, nil
			}
		}
	}
	return dtypes.InvalidDType, converters.NewInvalidOperandError(target, operand, value, "unknown dtype")
}

// ToDType converts acc.to_dtype(input, dtype): a cast, or the input itself if it already has the dtype.
func ToDType(net network.Network, target converters.OpKey, _ []any, kwargs map[string]any, name string) ([]network.Tensor, error) {
	dtype, err := ParseDType(target, "dtype", kwargs["dtype"])
	if err != nil {
		return nil, err
	}
	return single(impl.Cast(net, target, Source, name, kwargs["input"], dtype))
}
