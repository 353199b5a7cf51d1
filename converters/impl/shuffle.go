// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package impl

import (
	"slices"

	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/network"
	"github.com/gomlx/torchlower/types/shapes"
)

// Permute the axes of input: output axis i is the input axis order[i].
//
// In implicit batch networks order includes the batch axis, which must stay in place.
func Permute(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input any, order []int) (network.Tensor, error) {
	t, err := converters.ToTensor(target, "input", input)
	if err != nil {
		return nil, err
	}
	rank := Rank(net, t)
	if len(order) != rank {
		return nil, converters.NewInvalidOperandError(target, "dims", order, "permutation must have one axis per axis of the input (rank %d)", rank)
	}
	permutation := make([]int, rank)
	for ii, axis := range order {
		if !shapes.CheckAxis(axis, rank) {
			return nil, converters.NewInvalidOperandError(target, "dims", order, "axis %d out of range for rank %d", axis, rank)
		}
		permutation[ii] = shapes.NormalizeAxis(axis, rank)
	}
	if net.HasImplicitBatchDimension() {
		if permutation[0] != 0 {
			return nil, converters.NewBatchDimensionError(target, permutation[0])
		}
		permutation = permutation[1:]
		for ii := range permutation {
			if permutation[ii] == 0 {
				return nil, converters.NewBatchDimensionError(target, 0)
			}
			permutation[ii]--
		}
	}
	layer, err := net.AddShuffle(t, network.ShuffleConfig{FirstTranspose: permutation})
	if err != nil {
		return nil, err
	}
	SetLayerName(layer, target, source, name)
	return layer.Output(0), nil
}

// Transpose with no dims reverses the order of all axes. With two dims, it swaps these two axes.
func Transpose(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input any, dims ...int) (network.Tensor, error) {
	t, err := converters.ToTensor(target, "input", input)
	if err != nil {
		return nil, err
	}
	rank := Rank(net, t)
	order := make([]int, rank)
	for ii := range order {
		order[ii] = ii
	}
	switch len(dims) {
	case 0:
		slices.Reverse(order)
	case 2:
		for _, dim := range dims {
			if !shapes.CheckAxis(dim, rank) {
				return nil, converters.NewInvalidOperandError(target, "dim", dim, "axis out of range for rank %d", rank)
			}
		}
		dim0, dim1 := shapes.NormalizeAxis(dims[0], rank), shapes.NormalizeAxis(dims[1], rank)
		order[dim0], order[dim1] = order[dim1], order[dim0]
	default:
		return nil, converters.NewInvalidOperandError(target, "dims", dims, "transpose takes either no axes or two axes")
	}
	return Permute(net, target, source, name, t, order)
}

// Squeeze removes the axis dim if its dimension is 1, or all static axes of dimension 1 if dim is nil.
func Squeeze(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input any, dim *int) (network.Tensor, error) {
	t, err := converters.ToTensor(target, "input", input)
	if err != nil {
		return nil, err
	}
	inputDims := t.Shape().Dimensions
	remove := -1
	if dim != nil {
		if remove, err = NormalizeDim(net, target, t, *dim); err != nil {
			return nil, err
		}
		if inputDims[remove] == shapes.DynamicDim {
			return nil, converters.NewUnsupportedConfigurationError(target, "dim", *dim, "cannot squeeze a dynamic axis of %s", t.Shape())
		}
	}
	dims, sources := []int{}, []int{}
	for axis, d := range inputDims {
		if d == 1 && (dim == nil || axis == remove) {
			continue
		}
		dims = append(dims, d)
		sources = append(sources, axis)
	}
	return reshape(net, target, source, name, t, dims, sources)
}

// Unsqueeze inserts an axis of dimension 1 at dim, counted as an axis of the output.
func Unsqueeze(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input any, dim int) (network.Tensor, error) {
	t, err := converters.ToTensor(target, "input", input)
	if err != nil {
		return nil, err
	}
	outputRank := Rank(net, t) + 1
	if !shapes.CheckAxis(dim, outputRank) {
		return nil, converters.NewInvalidOperandError(target, "dim", dim, "axis out of range for output rank %d", outputRank)
	}
	axis := shapes.NormalizeAxis(dim, outputRank)
	if net.HasImplicitBatchDimension() {
		if axis == 0 {
			return nil, converters.NewBatchDimensionError(target, dim)
		}
		axis--
	}
	inputDims := t.Shape().Dimensions
	dims := slices.Insert(slices.Clone(inputDims), axis, 1)
	sources := make([]int, len(dims))
	for ii := range sources {
		switch {
		case ii < axis:
			sources[ii] = ii
		case ii > axis:
			sources[ii] = ii - 1
		}
	}
	return reshape(net, target, source, name, t, dims, sources)
}

// Expand broadcasts the axes of dimension 1 of input to sizes (which includes the batch axis in implicit batch
// networks). A size of -1 keeps the dimension of the input. If sizes has more axes than input, leading
// axes are added.
func Expand(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input any, sizes []int) (network.Tensor, error) {
	t, err := converters.ToTensor(target, "input", input)
	if err != nil {
		return nil, err
	}
	if net.HasImplicitBatchDimension() {
		if len(sizes) == 0 {
			return nil, converters.NewInvalidOperandError(target, "sizes", sizes, "sizes must include the batch dimension")
		}
		sizes = sizes[1:]
	}
	if shapes.HasDynamicShape(t.Shape()) {
		return nil, converters.NewUnsupportedConfigurationError(target, "input", t.Shape(), "expand of dynamic shapes not supported")
	}
	rank := t.Shape().Rank()
	if len(sizes) < rank {
		return nil, converters.NewInvalidOperandError(target, "sizes", sizes, "expand cannot reduce the rank of %s", t.Shape())
	}
	if len(sizes) > rank {
		dims := slices.Concat(make([]int, len(sizes)-rank), t.Shape().Dimensions)
		for ii := range len(sizes) - rank {
			dims[ii] = 1
		}
		if t, err = reshape(net, target, source, name+"_reshape", t, dims, nil); err != nil {
			return nil, err
		}
		rank = len(sizes)
	}
	inputDims := t.Shape().Dimensions
	start := make([]int, rank)
	size := make([]int, rank)
	stride := make([]int, rank)
	for axis, inputDim := range inputDims {
		size[axis] = sizes[axis]
		if sizes[axis] == -1 {
			size[axis] = inputDim
		}
		switch {
		case size[axis] == inputDim:
			stride[axis] = 1
		case inputDim == 1:
			stride[axis] = 0
		default:
			return nil, converters.NewInvalidOperandError(target, "sizes", sizes, "cannot expand axis %d of %s to %d",
				axis, t.Shape(), size[axis])
		}
	}
	layer, err := net.AddSlice(t, start, size, stride)
	if err != nil {
		return nil, err
	}
	SetLayerName(layer, target, source, name)
	return layer.Output(0), nil
}
