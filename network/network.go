// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package network defines the interface of the inference-engine network builder that operators are lowered onto.
//
// A Network is an opaque target: each Add* method adds one layer built from the given tensors and
// parameters, and returns a Layer handle whose outputs (Tensor) can be fed to further layers.
// Shapes of tensors may contain shapes.DynamicDim for dimensions only known at execution time.
//
// Implementations that don't support some layer can simply return an error wrapping ErrNotImplemented,
// see package notimplemented.
//
// Networks are registered by name (see Register) and created with New or NewWithConfig.
package network

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gomlx/torchlower/types/shapes"
)

// ErrNotImplemented is returned (wrapped) by networks for layers they don't support.
var ErrNotImplemented = errors.New("not implemented")

// ShapeDType is the dtype of the 1D tensors returned by Network.AddShape, and of any tensor
// used as a runtime shape (see Layer.SetInput).
const ShapeDType = dtypes.Int32

// Tensor is the handle of an output of a layer (or a network input).
// It is immutable and can be fed to any number of layers.
type Tensor interface {
	// Name of the tensor.
	Name() string

	// Shape of the tensor, as inferred when the layer was added. It may contain shapes.DynamicDim.
	Shape() shapes.Shape
}

// Layer is the handle of a layer added to the network.
type Layer interface {
	// Name of the layer.
	Name() string

	// SetName changes the name of the layer (and its outputs).
	SetName(name string)

	// Type of the layer.
	Type() LayerType

	// NumOutputs returns the number of outputs of the layer.
	NumOutputs() int

	// Output returns the i-th output of the layer.
	Output(i int) Tensor

	// SetInput replaces or sets the i-th input of the layer.
	//
	// Besides the data inputs, some layers accept runtime parameters as extra inputs:
	//
	//   - Shuffle: input 1 is the 1D reshape dimensions, overriding ShuffleConfig.ReshapeDims.
	//   - Slice: inputs 1, 2 and 3 are the 1D start, size and stride, overriding the static values.
	//
	// The output shape of the layer is re-inferred.
	SetInput(i int, t Tensor) error
}

// Network is the builder of the inference-engine network.
//
// Every Add* method returns the new Layer or an error, if the parameters are invalid or the layer is not supported.
type Network interface {
	// Name of the network.
	Name() string

	// HasImplicitBatchDimension returns whether the network was created in implicit batch mode: in that mode
	// tensors don't carry the batch axis (axis 0) in their shapes.
	HasImplicitBatchDimension() bool

	// AddInput adds a network input. In implicit batch mode the spec should not include the batch axis.
	AddInput(spec shapes.InputSpec) (Tensor, error)

	// MarkOutput marks the tensor as an output of the network.
	MarkOutput(t Tensor) error

	// AddConstant adds a constant with the given shape, whose values are given by flat, a slice of
	// shape.Size() elements of a Go type matching shape.DType.
	AddConstant(shape shapes.Shape, flat any) (Layer, error)

	// AddIdentity adds a layer that copies its input.
	AddIdentity(t Tensor) (Layer, error)

	// AddCast converts the tensor to the given dtype.
	AddCast(t Tensor, dtype dtypes.DType) (Layer, error)

	// AddShuffle adds a transpose-reshape-transpose layer, see ShuffleConfig.
	AddShuffle(t Tensor, config ShuffleConfig) (Layer, error)

	// AddSlice adds a strided slice: output[i] = input[start + i*stride], for i < size, on each axis.
	// A stride of 0 repeats the same element, which allows broadcasting axes of dimension 1.
	AddSlice(t Tensor, start, size, stride []int) (Layer, error)

	// AddShape adds a layer whose output is the 1D tensor (dtype ShapeDType) with the runtime shape of t.
	AddShape(t Tensor) (Layer, error)

	// AddConcatenation concatenates the tensors along the given axis.
	AddConcatenation(tensors []Tensor, axis int) (Layer, error)

	// AddGather gathers slices of data along axis, at the positions given by indices.
	// The output shape is data.Dimensions[:axis] + indices.Dimensions + data.Dimensions[axis+1:].
	AddGather(data, indices Tensor, axis int) (Layer, error)

	// AddReduce reduces the axes set in the bitmask axesMask (bit i is axis i).
	AddReduce(t Tensor, op ReduceOp, axesMask uint32, keepDims bool) (Layer, error)

	// AddElementWise adds a binary elementwise layer. Operands must have the same rank, axes of dimension 1
	// are broadcast.
	AddElementWise(lhs, rhs Tensor, op ElementWiseOp) (Layer, error)

	// AddUnary adds a unary elementwise layer.
	AddUnary(t Tensor, op UnaryOp) (Layer, error)

	// AddActivation adds an activation layer. Alpha and beta are only used by some activation types
	// (e.g. LeakyRelu slope, Clip bounds).
	AddActivation(t Tensor, activation ActivationType, alpha, beta float64) (Layer, error)

	// AddSelect returns onTrue where condition is true, onFalse otherwise. Axes of dimension 1 are broadcast.
	AddSelect(condition, onTrue, onFalse Tensor) (Layer, error)

	// AddMatrixMultiply multiplies the matrices in the last two axes of a and b, optionally transposed.
	// Leading (batch) axes are broadcast.
	AddMatrixMultiply(a Tensor, transposeA bool, b Tensor, transposeB bool) (Layer, error)

	// AddConvolution adds an N-dimensional convolution. Kernel is shaped [outChannels, inChannels/groups, spatial...],
	// bias is optional (nil) and shaped [outChannels].
	AddConvolution(input, kernel, bias Tensor, config ConvolutionConfig) (Layer, error)

	// AddPooling adds an N-dimensional pooling over the last len(config.Window) axes.
	AddPooling(input Tensor, config PoolingConfig) (Layer, error)
}

// ShuffleConfig configures a shuffle layer: the input is transposed by FirstTranspose, then reshaped
// to ReshapeDims, then transposed by SecondTranspose.
//
// Nil FirstTranspose or SecondTranspose mean identity, and nil ReshapeDims means no reshape.
// ReshapeDims may contain at most one -1, whose dimension is inferred from the number of elements.
type ShuffleConfig struct {
	FirstTranspose  []int
	ReshapeDims     []int
	SecondTranspose []int
}

// ConvolutionConfig configures a convolution, with one value per spatial axis for each field.
// The kernel spatial dimensions are taken from the kernel tensor.
type ConvolutionConfig struct {
	Stride, Padding, Dilation []int
	Groups                    int
}

// PoolingConfig configures a pooling layer, with one value per spatial axis for Window, Stride and Padding.
type PoolingConfig struct {
	Type                    PoolingType
	Window, Stride, Padding []int

	// CeilMode uses ceil instead of floor when computing the output dimensions.
	CeilMode bool
}
