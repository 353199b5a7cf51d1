// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package notimplemented implements a network.Network that returns a "not implemented" error for all layers.
//
// It can be embedded to bootstrap a network implementation, or to create mock networks in tests.
package notimplemented

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gomlx/torchlower/network"
	"github.com/gomlx/torchlower/types/shapes"
)

// NotImplementedError is returned (wrapped with the layer type) by every method.
var NotImplementedError = network.ErrNotImplemented

// Network implements network.Network and returns NotImplementedError for every layer.
type Network struct {
	// ErrFn is called to generate the error returned, if not nil.
	// Otherwise NotImplementedError is returned wrapped with the layer type.
	ErrFn func(layerType network.LayerType) error
}

var _ network.Network = Network{}

// baseErrFn returns the error corresponding to the layer type.
// It falls back to Network.ErrFn if it is defined.
func (n Network) baseErrFn(layerType network.LayerType) error {
	if n.ErrFn == nil {
		return errors.Wrapf(NotImplementedError, "in Add%s()", layerType)
	}
	return n.ErrFn(layerType)
}

// Name returns "notimplemented".
func (n Network) Name() string { return "notimplemented" }

// HasImplicitBatchDimension returns false.
func (n Network) HasImplicitBatchDimension() bool { return false }

func (n Network) AddInput(spec shapes.InputSpec) (network.Tensor, error) {
	return nil, n.baseErrFn(network.LayerTypeInput)
}

func (n Network) MarkOutput(t network.Tensor) error {
	return errors.Wrapf(NotImplementedError, "in MarkOutput()")
}

func (n Network) AddConstant(shape shapes.Shape, flat any) (network.Layer, error) {
	return nil, n.baseErrFn(network.LayerTypeConstant)
}

func (n Network) AddIdentity(t network.Tensor) (network.Layer, error) {
	return nil, n.baseErrFn(network.LayerTypeIdentity)
}

func (n Network) AddCast(t network.Tensor, dtype dtypes.DType) (network.Layer, error) {
	return nil, n.baseErrFn(network.LayerTypeCast)
}

func (n Network) AddShuffle(t network.Tensor, config network.ShuffleConfig) (network.Layer, error) {
	return nil, n.baseErrFn(network.LayerTypeShuffle)
}

func (n Network) AddSlice(t network.Tensor, start, size, stride []int) (network.Layer, error) {
	return nil, n.baseErrFn(network.LayerTypeSlice)
}

func (n Network) AddShape(t network.Tensor) (network.Layer, error) {
	return nil, n.baseErrFn(network.LayerTypeShape)
}

func (n Network) AddConcatenation(tensors []network.Tensor, axis int) (network.Layer, error) {
	return nil, n.baseErrFn(network.LayerTypeConcatenation)
}

func (n Network) AddGather(data, indices network.Tensor, axis int) (network.Layer, error) {
	return nil, n.baseErrFn(network.LayerTypeGather)
}

func (n Network) AddReduce(t network.Tensor, op network.ReduceOp, axesMask uint32, keepDims bool) (network.Layer, error) {
	return nil, n.baseErrFn(network.LayerTypeReduce)
}

func (n Network) AddElementWise(lhs, rhs network.Tensor, op network.ElementWiseOp) (network.Layer, error) {
	return nil, n.baseErrFn(network.LayerTypeElementWise)
}

func (n Network) AddUnary(t network.Tensor, op network.UnaryOp) (network.Layer, error) {
	return nil, n.baseErrFn(network.LayerTypeUnary)
}

func (n Network) AddActivation(t network.Tensor, activation network.ActivationType, alpha, beta float64) (network.Layer, error) {
	return nil, n.baseErrFn(network.LayerTypeActivation)
}

func (n Network) AddSelect(condition, onTrue, onFalse network.Tensor) (network.Layer, error) {
	return nil, n.baseErrFn(network.LayerTypeSelect)
}

func (n Network) AddMatrixMultiply(a network.Tensor, transposeA bool, b network.Tensor, transposeB bool) (network.Layer, error) {
	return nil, n.baseErrFn(network.LayerTypeMatrixMultiply)
}

func (n Network) AddConvolution(input, kernel, bias network.Tensor, config network.ConvolutionConfig) (network.Layer, error) {
	return nil, n.baseErrFn(network.LayerTypeConvolution)
}

func (n Network) AddPooling(input network.Tensor, config network.PoolingConfig) (network.Layer, error) {
	return nil, n.baseErrFn(network.LayerTypePooling)
}
