// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package impl

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/network"
	"github.com/gomlx/torchlower/types/shapes"
)

// ShapeWithDynamicShape returns a 1D shape tensor for the given shape, where dimensions set to shapes.DynamicDim are
// taken at execution time from the shape of input: select(shape < 0, shape(input), shape).
//
// shape must have the rank of input.
func ShapeWithDynamicShape(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	shape []int, input network.Tensor) (network.Tensor, error) {
	if len(shape) != input.Shape().Rank() {
		return nil, errors.Errorf("%s: shape %v doesn't match the rank of input %s", target, shape, input.Shape())
	}
	inputShape, err := net.AddShape(input)
	if err != nil {
		return nil, err
	}
	SetLayerName(inputShape, target, source, name+"_shape")
	static, err := IntConstant(net, shape, fmt.Sprintf("%s_static_shape", name))
	if err != nil {
		return nil, err
	}
	zeros, err := IntConstant(net, make([]int, len(shape)), fmt.Sprintf("%s_zeros", name))
	if err != nil {
		return nil, err
	}
	isDynamic, err := net.AddElementWise(static, zeros, network.ElementWiseLess)
	if err != nil {
		return nil, err
	}
	SetLayerName(isDynamic, target, source, name+"_is_dynamic")
	selected, err := net.AddSelect(isDynamic.Output(0), inputShape.Output(0), static)
	if err != nil {
		return nil, err
	}
	SetLayerName(selected, target, source, name+"_dynamic_shape")
	return selected.Output(0), nil
}

// reshape emits a shuffle reshaping t to dims. Dimensions set to shapes.DynamicDim are taken at execution time
// from the axis sources[i] of t.
//
// With at most one dynamic dimension the reshape is static (the dynamic dimension is inferred), otherwise the
// shuffle is fed with a runtime shape built from the static dimensions and slices of shape(t).
func reshape(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	t network.Tensor, dims, sources []int) (network.Tensor, error) {
	numDynamic := 0
	for _, dim := range dims {
		if dim == shapes.DynamicDim {
			numDynamic++
		}
	}
	config := network.ShuffleConfig{ReshapeDims: dims}
	if numDynamic > 1 {
		config.ReshapeDims = nil
	}
	layer, err := net.AddShuffle(t, config)
	if err != nil {
		return nil, err
	}
	if numDynamic > 1 {
		runtimeShape, err := runtimeShapeOf(net, target, source, name, t, dims, sources)
		if err != nil {
			return nil, err
		}
		if err = layer.SetInput(1, runtimeShape); err != nil {
			return nil, err
		}
	}
	SetLayerName(layer, target, source, name)
	return layer.Output(0), nil
}

// runtimeShapeOf builds the 1D shape tensor for dims, see reshape.
func runtimeShapeOf(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	t network.Tensor, dims, sources []int) (network.Tensor, error) {
	shapeLayer, err := net.AddShape(t)
	if err != nil {
		return nil, err
	}
	SetLayerName(shapeLayer, target, source, name+"_shape")
	parts := make([]network.Tensor, len(dims))
	for ii, dim := range dims {
		if dim != shapes.DynamicDim {
			if parts[ii], err = IntConstant(net, []int{dim}, fmt.Sprintf("%s_dim%d", name, ii)); err != nil {
				return nil, err
			}
			continue
		}
		slice, err := net.AddSlice(shapeLayer.Output(0), []int{sources[ii]}, []int{1}, []int{1})
		if err != nil {
			return nil, err
		}
		SetLayerName(slice, target, source, fmt.Sprintf("%s_dim%d", name, ii))
		parts[ii] = slice.Output(0)
	}
	concat, err := net.AddConcatenation(parts, 0)
	if err != nil {
		return nil, err
	}
	SetLayerName(concat, target, source, name+"_output_shape")
	return concat.Output(0), nil
}

// Reshape reshapes input to the given shape (which includes the batch axis in implicit batch networks).
// Elements of shape are either integers (-1 for one inferred dimension) or 1-element integer tensors,
// typically the output of SymSize. In the latter case the reshape dimensions are computed at execution time.
func Reshape(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input any, shape []any) (network.Tensor, error) {
	t, err := GetTensor(net, target, "input", input, dtypes.InvalidDType, name)
	if err != nil {
		return nil, err
	}
	if net.HasImplicitBatchDimension() {
		if len(shape) == 0 {
			return nil, converters.NewInvalidOperandError(target, "shape", shape, "shape must include the batch dimension")
		}
		shape = shape[1:]
	}
	allStatic := true
	dims := make([]int, len(shape))
	for ii, s := range shape {
		if converters.IsTensor(s) {
			allStatic = false
			continue
		}
		if dims[ii], err = converters.ToInt(target, fmt.Sprintf("shape[%d]", ii), s); err != nil {
			return nil, err
		}
	}
	if allStatic {
		layer, err := net.AddShuffle(t, network.ShuffleConfig{ReshapeDims: dims})
		if err != nil {
			return nil, err
		}
		SetLayerName(layer, target, source, name)
		return layer.Output(0), nil
	}

	parts := make([]network.Tensor, len(shape))
	for ii, s := range shape {
		if converters.IsTensor(s) {
			parts[ii] = s.(network.Tensor)
			continue
		}
		if parts[ii], err = IntConstant(net, []int{dims[ii]}, fmt.Sprintf("%s_%d", name, ii)); err != nil {
			return nil, err
		}
	}
	for ii, part := range parts {
		if part.Shape().Rank() == 0 {
			// Scalars (e.g. the output of select) are reshaped to [1].
			if parts[ii], err = reshape(net, target, source, fmt.Sprintf("%s_%d", name, ii), part, []int{1}, nil); err != nil {
				return nil, err
			}
		}
	}
	concat, err := net.AddConcatenation(parts, 0)
	if err != nil {
		return nil, err
	}
	concat.SetName(name + "_output_shape")
	layer, err := net.AddShuffle(t, network.ShuffleConfig{})
	if err != nil {
		return nil, err
	}
	if err = layer.SetInput(1, concat.Output(0)); err != nil {
		return nil, err
	}
	SetLayerName(layer, target, source, name)
	return layer.Output(0), nil
}

// SymSize returns a 1-element tensor with the runtime dimension of the axis dim of input.
func SymSize(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input any, dim int) (network.Tensor, error) {
	t, err := converters.ToTensor(target, "input", input)
	if err != nil {
		return nil, err
	}
	axis, err := NormalizeDim(net, target, t, dim)
	if err != nil {
		return nil, err
	}
	shapeLayer, err := net.AddShape(t)
	if err != nil {
		return nil, err
	}
	SetLayerName(shapeLayer, target, source, name+"_shape_layer")
	slice, err := net.AddSlice(shapeLayer.Output(0), []int{axis}, []int{1}, []int{1})
	if err != nil {
		return nil, err
	}
	SetLayerName(slice, target, source, name+"_slice_layer")
	return slice.Output(0), nil
}

// SymNumel returns a 1-element tensor with the runtime number of elements of input (excluding the implicit batch).
func SymNumel(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input any) (network.Tensor, error) {
	t, err := converters.ToTensor(target, "input", input)
	if err != nil {
		return nil, err
	}
	shapeLayer, err := net.AddShape(t)
	if err != nil {
		return nil, err
	}
	SetLayerName(shapeLayer, target, source, name+"_shape_layer")
	reduce, err := net.AddReduce(shapeLayer.Output(0), network.ReduceProd, 1, true)
	if err != nil {
		return nil, err
	}
	SetLayerName(reduce, target, source, name+"_reduce_layer")
	return reduce.Output(0), nil
}
