// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapeinference calculates the shape resulting from adding layers to a network, and validates their inputs.
//
// It can be used by network implementations to report shapes of the tensors as they are built.
//
// All functions are tolerant of shapes.DynamicDim: a dimension that depends on a dynamic dimension is dynamic.
package shapeinference

import (
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gomlx/torchlower/network"
	"github.com/gomlx/torchlower/pkg/support/sets"
	"github.com/gomlx/torchlower/types/shapes"
)

const dynamic = shapes.DynamicDim

// MaxReduceRank is the maximum rank supported by reduce layers, given the uint32 axes bitmask.
const MaxReduceRank = 32

// BroadcastDims returns the dimensions resulting from broadcasting two lists of dimensions of the same rank:
// for each axis the dimensions must match, or one of them must be 1.
//
// A dynamic dimension broadcast with 1 is dynamic, and broadcast with a static dimension n > 1 is n.
func BroadcastDims(lhs, rhs []int) ([]int, error) {
	if len(lhs) != len(rhs) {
		return nil, errors.Errorf("cannot broadcast dimensions %v and %v: ranks must be the same", lhs, rhs)
	}
	output := make([]int, len(lhs))
	for axis, lDim := range lhs {
		rDim := rhs[axis]
		switch {
		case lDim == rDim:
			output[axis] = lDim
		case lDim == 1:
			output[axis] = rDim
		case rDim == 1:
			output[axis] = lDim
		case lDim == dynamic:
			output[axis] = rDim
		case rDim == dynamic:
			output[axis] = lDim
		default:
			return nil, errors.Errorf("dimension of axis #%d doesn't match and cannot be broadcast, got dimensions %v and %v",
				axis, lhs, rhs)
		}
	}
	return output, nil
}

// ElementWise returns the output shape of a binary elementwise layer.
func ElementWise(op network.ElementWiseOp, lhs, rhs shapes.Shape) (output shapes.Shape, err error) {
	if !lhs.Ok() || !rhs.Ok() {
		err = errors.Errorf("invalid shape for %s or %s for ElementWise(%s)", lhs, rhs, op)
		return
	}
	if lhs.DType != rhs.DType {
		err = errors.Errorf("data types (DType) for ElementWise(%s) must match, got %s and %s", op, lhs, rhs)
		return
	}
	if op.IsLogical() && lhs.DType != dtypes.Bool {
		err = errors.Errorf("logical ElementWise(%s) must have boolean (dtypes.Bool) inputs, got %s", op, lhs)
		return
	}
	if !op.IsLogical() && op != network.ElementWiseEqual && lhs.DType == dtypes.Bool {
		err = errors.Errorf("numeric ElementWise(%s) cannot take boolean inputs, got %s", op, lhs)
		return
	}
	dims, err := BroadcastDims(lhs.Dimensions, rhs.Dimensions)
	if err != nil {
		err = errors.WithMessagef(err, "ElementWise(%s) of %s and %s", op, lhs, rhs)
		return
	}
	dtype := lhs.DType
	if op.IsComparison() {
		dtype = dtypes.Bool
	}
	return shapes.Make(dtype, dims...), nil
}

// Unary returns the output shape of a unary elementwise layer.
func Unary(op network.UnaryOp, operand shapes.Shape) (output shapes.Shape, err error) {
	if !operand.Ok() {
		err = errors.Errorf("invalid shape %s for Unary(%s)", operand, op)
		return
	}
	if (op == network.UnaryNot) != (operand.DType == dtypes.Bool) {
		err = errors.Errorf("Unary(%s) cannot take input %s: Not only takes booleans, the others only numbers", op, operand)
		return
	}
	return operand.Clone(), nil
}

// Activation returns the output shape of an activation layer.
func Activation(activation network.ActivationType, operand shapes.Shape) (output shapes.Shape, err error) {
	if !operand.Ok() || operand.DType == dtypes.Bool {
		err = errors.Errorf("Activation(%s) requires a numeric input, got %s", activation, operand)
		return
	}
	return operand.Clone(), nil
}

// Select returns the output shape of a select layer.
func Select(condition, onTrue, onFalse shapes.Shape) (output shapes.Shape, err error) {
	if condition.DType != dtypes.Bool {
		err = errors.Errorf("Select condition must be a boolean, got %s", condition)
		return
	}
	if onTrue.DType != onFalse.DType {
		err = errors.Errorf("Select values must have the same dtype, got %s and %s", onTrue, onFalse)
		return
	}
	dims, err := BroadcastDims(onTrue.Dimensions, onFalse.Dimensions)
	if err == nil {
		dims, err = BroadcastDims(condition.Dimensions, dims)
	}
	if err != nil {
		err = errors.WithMessagef(err, "Select(%s, %s, %s)", condition, onTrue, onFalse)
		return
	}
	return shapes.Make(onTrue.DType, dims...), nil
}

// Transpose returns the shape of operand transposed by permutation: output axis i is operand axis permutation[i].
func Transpose(operand shapes.Shape, permutation []int) (output shapes.Shape, err error) {
	if len(permutation) != operand.Rank() {
		err = errors.Errorf("Transpose() requires all axes permutations to be defined, operand has shape %s, but %d permutations were given",
			operand, len(permutation))
		return
	}
	if len(permutation) == 0 {
		return operand.Clone(), nil
	}
	used := sets.Make[int](len(permutation))
	for _, srcAxis := range permutation {
		if srcAxis < 0 || srcAxis >= operand.Rank() {
			err = errors.Errorf("invalid permutation axis %d given to Transpose(%s), it must be within the range of its rank",
				srcAxis, operand)
			return
		}
		if used.Has(srcAxis) {
			err = errors.Errorf("Transpose() requires all permutations to be a valid permutation, axis %d is repeated in %v",
				srcAxis, permutation)
			return
		}
		used.Insert(srcAxis)
	}
	output = operand.WithDimensions(make([]int, operand.Rank())...)
	for axis, srcAxis := range permutation {
		output.Dimensions[axis] = operand.Dimensions[srcAxis]
	}
	return
}

// Reshape returns the shape of operand reshaped to dims. At most one of dims can be -1, in which case it is inferred
// from the number of elements, if operand is static. Otherwise, the axis is dynamic.
func Reshape(operand shapes.Shape, dims []int) (output shapes.Shape, err error) {
	inferAxis := -1
	knownSize := 1
	for axis, dim := range dims {
		switch {
		case dim == dynamic:
			if inferAxis != -1 {
				err = errors.Errorf("Reshape(%s, %v) can have at most one axis with -1", operand, dims)
				return
			}
			inferAxis = axis
		case dim <= 0:
			err = errors.Errorf("Reshape(%s, %v) has invalid dimension %d", operand, dims, dim)
			return
		default:
			knownSize *= dim
		}
	}
	output = operand.WithDimensions(dims...)
	operandSize := operand.Size()
	if operandSize == dynamic {
		return
	}
	if inferAxis == -1 {
		if knownSize != operandSize {
			err = errors.Errorf("Reshape(%s, %v) requires the same number of elements, got %d and %d",
				operand, dims, operandSize, knownSize)
		}
		return
	}
	if operandSize%knownSize != 0 {
		err = errors.Errorf("Reshape(%s, %v) cannot infer axis %d: %d elements not divisible by %d",
			operand, dims, inferAxis, operandSize, knownSize)
		return
	}
	output.Dimensions[inferAxis] = operandSize / knownSize
	return
}

// Shuffle returns the output shape of a shuffle layer.
func Shuffle(operand shapes.Shape, config network.ShuffleConfig) (output shapes.Shape, err error) {
	output = operand
	if config.FirstTranspose != nil {
		if output, err = Transpose(output, config.FirstTranspose); err != nil {
			return
		}
	}
	if config.ReshapeDims != nil {
		if output, err = Reshape(output, config.ReshapeDims); err != nil {
			return
		}
	}
	if config.SecondTranspose != nil {
		if output, err = Transpose(output, config.SecondTranspose); err != nil {
			return
		}
	}
	return output.Clone(), nil
}

// Slice returns the output shape of a strided slice. The output dimensions are size, after validating that
// the accessed positions are within the static dimensions of operand. A stride of 0 is allowed
// to broadcast axes.
func Slice(operand shapes.Shape, start, size, stride []int) (output shapes.Shape, err error) {
	rank := operand.Rank()
	if len(start) != rank || len(size) != rank || len(stride) != rank {
		err = errors.Errorf("Slice(%s) requires start (%v), size (%v) and stride (%v) to have one value per axis",
			operand, start, size, stride)
		return
	}
	for axis := range rank {
		dim := operand.Dimensions[axis]
		if size[axis] != dynamic && size[axis] <= 0 {
			err = errors.Errorf("Slice(%s): invalid size %d for axis %d", operand, size[axis], axis)
			return
		}
		if start[axis] < 0 {
			err = errors.Errorf("Slice(%s): invalid start %d for axis %d", operand, start[axis], axis)
			return
		}
		if dim == dynamic || size[axis] == dynamic {
			continue
		}
		last := start[axis] + (size[axis]-1)*stride[axis]
		if start[axis] >= dim || last < 0 || last >= dim {
			err = errors.Errorf("Slice(%s): axis %d with start=%d, size=%d, stride=%d is out of bounds",
				operand, axis, start[axis], size[axis], stride[axis])
			return
		}
	}
	return operand.WithDimensions(size...), nil
}

// Concatenate returns the output shape of concatenating inputs along axis.
func Concatenate(inputs []shapes.Shape, axis int) (output shapes.Shape, err error) {
	if len(inputs) == 0 {
		err = errors.New("Concatenate() requires at least one input")
		return
	}
	first := inputs[0]
	if axis < 0 || axis >= first.Rank() {
		err = errors.Errorf("Concatenate(): invalid axis %d for input shape %s", axis, first)
		return
	}
	output = first.Clone()
	for ii, input := range inputs[1:] {
		if input.DType != first.DType || input.Rank() != first.Rank() {
			err = errors.Errorf("Concatenate(): input #%d %s is incompatible with input #0 %s", ii+1, input, first)
			return
		}
		for otherAxis, dim := range input.Dimensions {
			if otherAxis == axis {
				if dim == dynamic || output.Dimensions[axis] == dynamic {
					output.Dimensions[axis] = dynamic
				} else {
					output.Dimensions[axis] += dim
				}
				continue
			}
			outDim := output.Dimensions[otherAxis]
			if outDim != dynamic && dim != dynamic && outDim != dim {
				err = errors.Errorf("Concatenate(): input #%d %s has a different dimension on axis %d than input #0 %s",
					ii+1, input, otherAxis, first)
				return
			}
			if outDim == dynamic {
				output.Dimensions[otherAxis] = dim
			}
		}
	}
	return
}

// Gather returns the output shape of gathering data along axis: data.Dimensions[:axis] + indices.Dimensions +
// data.Dimensions[axis+1:].
func Gather(data, indices shapes.Shape, axis int) (output shapes.Shape, err error) {
	if axis < 0 || axis >= data.Rank() {
		err = errors.Errorf("Gather(): invalid axis %d for data shape %s", axis, data)
		return
	}
	if !indices.DType.IsInt() {
		err = errors.Errorf("Gather(): indices must be integers, got %s", indices)
		return
	}
	dims := slices.Concat(data.Dimensions[:axis], indices.Dimensions, data.Dimensions[axis+1:])
	return data.WithDimensions(dims...), nil
}

// Reduce returns the output shape of reducing the axes set in axesMask.
func Reduce(operand shapes.Shape, axesMask uint32, keepDims bool) (output shapes.Shape, err error) {
	if operand.Rank() > MaxReduceRank {
		err = errors.Errorf("Reduce(): rank of %s is larger than the supported %d", operand, MaxReduceRank)
		return
	}
	if operand.Rank() < MaxReduceRank && axesMask>>uint(operand.Rank()) != 0 {
		err = errors.Errorf("Reduce(): axes mask %b has axes beyond the rank of %s", axesMask, operand)
		return
	}
	dims := make([]int, 0, operand.Rank())
	for axis, dim := range operand.Dimensions {
		if axesMask&(1<<uint(axis)) != 0 {
			if keepDims {
				dims = append(dims, 1)
			}
			continue
		}
		dims = append(dims, dim)
	}
	return operand.WithDimensions(dims...), nil
}

// MatrixMultiply returns the output shape of multiplying the matrices on the last two axes of a and b.
// Both must have the same rank (>= 2), and the leading axes are broadcast.
func MatrixMultiply(a shapes.Shape, transposeA bool, b shapes.Shape, transposeB bool) (output shapes.Shape, err error) {
	if a.DType != b.DType {
		err = errors.Errorf("MatrixMultiply(): dtypes must match, got %s and %s", a, b)
		return
	}
	if a.Rank() < 2 || a.Rank() != b.Rank() {
		err = errors.Errorf("MatrixMultiply(): operands must have the same rank >= 2, got %s and %s", a, b)
		return
	}
	rank := a.Rank()
	aRows, aCols := a.Dimensions[rank-2], a.Dimensions[rank-1]
	if transposeA {
		aRows, aCols = aCols, aRows
	}
	bRows, bCols := b.Dimensions[rank-2], b.Dimensions[rank-1]
	if transposeB {
		bRows, bCols = bCols, bRows
	}
	if aCols != dynamic && bRows != dynamic && aCols != bRows {
		err = errors.Errorf("MatrixMultiply(): contracting dimensions don't match, got %s (transposed=%v) and %s (transposed=%v)",
			a, transposeA, b, transposeB)
		return
	}
	batchDims, err := BroadcastDims(a.Dimensions[:rank-2], b.Dimensions[:rank-2])
	if err != nil {
		err = errors.WithMessagef(err, "MatrixMultiply(%s, %s)", a, b)
		return
	}
	return a.WithDimensions(append(batchDims, aRows, bCols)...), nil
}

// convOutputDim returns the output dimension of a convolution or pooling window along one axis.
func convOutputDim(input, window, stride, padding, dilation int, ceilMode bool) int {
	if input == dynamic {
		return dynamic
	}
	effective := dilation*(window-1) + 1
	numerator := input + 2*padding - effective
	if numerator < 0 {
		return 0
	}
	if ceilMode {
		return (numerator+stride-1)/stride + 1
	}
	return numerator/stride + 1
}

// Convolution returns the output shape of a convolution. The input is shaped [batch, channels, spatial...]
// (without batch if implicitBatch), the kernel [outChannels, channels/groups, spatial...].
// bias may be shapes.Invalid() if there is no bias.
func Convolution(input, kernel, bias shapes.Shape, config network.ConvolutionConfig, implicitBatch bool) (output shapes.Shape, err error) {
	numSpatial := kernel.Rank() - 2
	if numSpatial < 1 {
		err = errors.Errorf("Convolution(): kernel must have rank >= 3, got %s", kernel)
		return
	}
	channelsAxis := 1
	if implicitBatch {
		channelsAxis = 0
	}
	if input.Rank() != channelsAxis+1+numSpatial {
		err = errors.Errorf("Convolution(): input %s has the wrong rank for kernel %s (implicit batch=%v)", input, kernel, implicitBatch)
		return
	}
	if input.DType != kernel.DType {
		err = errors.Errorf("Convolution(): dtypes of input %s and kernel %s must match", input, kernel)
		return
	}
	groups := max(config.Groups, 1)
	inChannels := input.Dimensions[channelsAxis]
	if inChannels == dynamic {
		err = errors.Errorf("Convolution(): input channels dimension of %s must be static", input)
		return
	}
	outChannels := kernel.Dimensions[0]
	if inChannels%groups != 0 || outChannels%groups != 0 || kernel.Dimensions[1]*groups != inChannels {
		err = errors.Errorf("Convolution(): input %s and kernel %s incompatible for %d groups", input, kernel, groups)
		return
	}
	if len(config.Stride) != numSpatial || len(config.Padding) != numSpatial || len(config.Dilation) != numSpatial {
		err = errors.Errorf("Convolution(): stride %v, padding %v and dilation %v must have one value per spatial axis (%d)",
			config.Stride, config.Padding, config.Dilation, numSpatial)
		return
	}
	if bias.Ok() && (bias.Rank() != 1 || bias.Dimensions[0] != outChannels) {
		err = errors.Errorf("Convolution(): bias %s must be shaped [%d]", bias, outChannels)
		return
	}
	dims := slices.Clone(input.Dimensions[:channelsAxis])
	dims = append(dims, outChannels)
	for ii := range numSpatial {
		if config.Stride[ii] <= 0 || config.Dilation[ii] <= 0 || config.Padding[ii] < 0 {
			err = errors.Errorf("Convolution(): invalid stride %v, padding %v or dilation %v", config.Stride, config.Padding, config.Dilation)
			return
		}
		dim := convOutputDim(input.Dimensions[channelsAxis+1+ii], kernel.Dimensions[2+ii],
			config.Stride[ii], config.Padding[ii], config.Dilation[ii], false)
		if dim == 0 {
			err = errors.Errorf("Convolution(): kernel %s larger than padded input %s", kernel, input)
			return
		}
		dims = append(dims, dim)
	}
	return input.WithDimensions(dims...), nil
}

// Pooling returns the output shape of a pooling layer over the last len(config.Window) axes.
func Pooling(input shapes.Shape, config network.PoolingConfig) (output shapes.Shape, err error) {
	numSpatial := len(config.Window)
	if numSpatial == 0 || input.Rank() < numSpatial+1 {
		err = errors.Errorf("Pooling(): input %s has not enough axes for window %v", input, config.Window)
		return
	}
	if len(config.Stride) != numSpatial || len(config.Padding) != numSpatial {
		err = errors.Errorf("Pooling(): window %v, stride %v and padding %v must have the same length",
			config.Window, config.Stride, config.Padding)
		return
	}
	output = input.Clone()
	firstSpatial := input.Rank() - numSpatial
	for ii := range numSpatial {
		if config.Window[ii] <= 0 || config.Stride[ii] <= 0 || config.Padding[ii] < 0 {
			err = errors.Errorf("Pooling(): invalid window %v, stride %v or padding %v", config.Window, config.Stride, config.Padding)
			return
		}
		dim := convOutputDim(input.Dimensions[firstSpatial+ii], config.Window[ii], config.Stride[ii], config.Padding[ii], 1, config.CeilMode)
		if dim == 0 {
			err = errors.Errorf("Pooling(): window %v larger than padded input %s", config.Window, input)
			return
		}
		output.Dimensions[firstSpatial+ii] = dim
	}
	return
}
