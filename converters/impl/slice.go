// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package impl

import (
	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/network"
	"github.com/gomlx/torchlower/types/shapes"
)

// SliceLen returns the number of elements of a slice with a positive step: ceil((stop-start)/step),
// or 0 if stop <= start.
func SliceLen(start, stop, step int) int {
	if stop <= start {
		return 0
	}
	return (stop - start + step - 1) / step
}

// Slice input[start:stop:step] along the axis dim.
//
// Negative start and stop count from the end of the axis, and stop is clamped to its dimension. The axis must
// be static. If other axes are dynamic, the output shape is computed at execution time.
// Slices with no elements are rejected with an UnsupportedConfigurationError.
func Slice(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input any, start, stop, step, dim int) (network.Tensor, error) {
	t, err := converters.ToTensor(target, "input", input)
	if err != nil {
		return nil, err
	}
	axis, err := NormalizeDim(net, target, t, dim)
	if err != nil {
		return nil, err
	}
	inputShape := t.Shape()
	dynamicShape := shapes.HasDynamicShape(inputShape)
	dimSize := inputShape.Dimensions[axis]
	if dimSize == shapes.DynamicDim {
		return nil, converters.NewUnsupportedConfigurationError(target, "dim", dim, "cannot slice along a dynamic axis of %s", inputShape)
	}
	if step <= 0 {
		return nil, converters.NewUnsupportedConfigurationError(target, "step", step, "step must be positive")
	}
	if start < 0 {
		start += dimSize
	}
	if stop < 0 {
		stop += dimSize
	}
	start = min(max(start, 0), dimSize)
	stop = min(max(stop, 0), dimSize)
	outputLen := SliceLen(start, stop, step)
	if outputLen == 0 {
		return nil, converters.NewUnsupportedConfigurationError(target, "stop", stop, "empty slice [%d:%d:%d] of axis with dimension %d",
			start, stop, step, dimSize)
	}

	rank := inputShape.Rank()
	startVec := make([]int, rank)
	startVec[axis] = start
	strideVec := make([]int, rank)
	for ii := range strideVec {
		strideVec[ii] = 1
	}
	strideVec[axis] = step
	outputShape := inputShape.Clone().Dimensions
	outputShape[axis] = outputLen

	layer, err := net.AddSlice(t, startVec, outputShape, strideVec)
	if err != nil {
		return nil, err
	}
	if dynamicShape {
		runtimeShape, err := ShapeWithDynamicShape(net, target, source, name, outputShape, t)
		if err != nil {
			return nil, err
		}
		if err = layer.SetInput(2, runtimeShape); err != nil {
			return nil, err
		}
	}
	SetLayerName(layer, target, source, name)
	return layer.Output(0), nil
}

// Select picks the element index along the axis dim, removing the axis.
func Select(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input any, dim, index int) (network.Tensor, error) {
	t, err := converters.ToTensor(target, "input", input)
	if err != nil {
		return nil, err
	}
	axis, err := NormalizeDim(net, target, t, dim)
	if err != nil {
		return nil, err
	}
	dimSize := t.Shape().Dimensions[axis]
	if index < 0 {
		if dimSize == shapes.DynamicDim {
			return nil, converters.NewUnsupportedConfigurationError(target, "index", index, "negative index on a dynamic axis")
		}
		index += dimSize
	}
	if index < 0 || (dimSize != shapes.DynamicDim && index >= dimSize) {
		return nil, converters.NewInvalidOperandError(target, "index", index, "out of range for axis of dimension %d", dimSize)
	}
	indexLayer, err := net.AddConstant(shapes.Make(network.ShapeDType), []int32{int32(index)})
	if err != nil {
		return nil, err
	}
	indexLayer.SetName(name + "_index")
	gather, err := net.AddGather(t, indexLayer.Output(0), axis)
	if err != nil {
		return nil, err
	}
	SetLayerName(gather, target, source, name+"_gather")
	return gather.Output(0), nil
}
