// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package impl implements the primitive lowering operations shared by the converters of all operator sets.
//
// All functions take the network being built, the key of the operator being converted and its
// source operator set (both only used to name layers and report errors), the name of the node
// and its operands. Operands are either network.Tensor or Go constants, which are materialized
// as constant layers when needed (see GetTensor).
//
// Axes given by operators count the batch axis, even in implicit batch networks, where tensors don't carry it:
// see NormalizeDim.
package impl

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/network"
	"github.com/gomlx/torchlower/types/shapes"
)

// SetLayerName names the layer after the operator being converted, see converters.LayerName.
func SetLayerName(layer network.Layer, target converters.OpKey, source converters.SourceIR, name string) {
	layer.SetName(converters.LayerName(layer.Type(), source, target, name))
}

// Rank returns the rank of the tensor as seen by the operators: including the batch axis in implicit batch networks.
func Rank(net network.Network, t network.Tensor) int {
	rank := t.Shape().Rank()
	if net.HasImplicitBatchDimension() {
		rank++
	}
	return rank
}

// NormalizeDim converts the operator axis dim of t to the axis of the network tensor: negative values are
// counted from the end, and in implicit batch networks the batch axis 0 is rejected with a
// converters.BatchDimensionError and the others are shifted by -1.
func NormalizeDim(net network.Network, target converters.OpKey, t network.Tensor, dim int) (int, error) {
	rank := Rank(net, t)
	if !shapes.CheckAxis(dim, rank) {
		return 0, converters.NewInvalidOperandError(target, "dim", dim, "axis out of range for rank %d (shape %s)", rank, t.Shape())
	}
	axis := shapes.NormalizeAxis(dim, rank)
	if net.HasImplicitBatchDimension() {
		if axis == 0 {
			return 0, converters.NewBatchDimensionError(target, dim)
		}
		axis--
	}
	return axis, nil
}

// DefaultDType returns the dtype used to materialize Go constants: Int32 for integers, Float32 for floats.
func DefaultDType(value any) dtypes.DType {
	switch value.(type) {
	case bool, []bool:
		return dtypes.Bool
	case int, int8, int16, int32, int64, uint8, uint16, uint32, uint64, []int, []int32, []int64:
		return dtypes.Int32
	}
	return dtypes.Float32
}

// Flat converts the numbers to a flat slice of the Go type of dtype, as accepted by Network.AddConstant.
func Flat(dtype dtypes.DType, values []float64) (any, error) {
	switch dtype {
	case dtypes.Float32:
		return convertFlat(values, func(v float64) float32 { return float32(v) }), nil
	case dtypes.Float64:
		return values, nil
	case dtypes.Float16:
		return convertFlat(values, func(v float64) float16.Float16 { return float16.Fromfloat32(float32(v)) }), nil
	case dtypes.Int8:
		return convertFlat(values, func(v float64) int8 { return int8(v) }), nil
	case dtypes.Int32:
		return convertFlat(values, func(v float64) int32 { return int32(v) }), nil
	case dtypes.Int64:
		return convertFlat(values, func(v float64) int64 { return int64(v) }), nil
	case dtypes.Uint8:
		return convertFlat(values, func(v float64) uint8 { return uint8(v) }), nil
	case dtypes.Bool:
		return convertFlat(values, func(v float64) bool { return v != 0 }), nil
	}
	return nil, errors.Errorf("constants of dtype %s not supported", dtype)
}

func convertFlat[T any](values []float64, convert func(float64) T) []T {
	result := make([]T, len(values))
	for ii, v := range values {
		result[ii] = convert(v)
	}
	return result
}

// toFloats converts a Go numeric constant (scalar or slice) to a list of float64.
func toFloats(target converters.OpKey, operand string, value any) (values []float64, isScalar bool, err error) {
	switch v := value.(type) {
	case bool:
		return []float64{float64(boolToInt(v))}, true, nil
	case []bool:
		values = make([]float64, len(v))
		for ii, b := range v {
			values[ii] = float64(boolToInt(b))
		}
		return values, false, nil
	case []float32:
		values = make([]float64, len(v))
		for ii, f := range v {
			values[ii] = float64(f)
		}
		return values, false, nil
	case []float64:
		return v, false, nil
	case []int, []int32, []int64, []any:
		ints, err := converters.ToInts(target, operand, value)
		if err != nil {
			if fs, ok := value.([]any); ok {
				values = make([]float64, len(fs))
				for ii, f := range fs {
					if values[ii], err = converters.ToFloat(target, operand, f); err != nil {
						return nil, false, err
					}
				}
				return values, false, nil
			}
			return nil, false, err
		}
		values = make([]float64, len(ints))
		for ii, i := range ints {
			values[ii] = float64(i)
		}
		return values, false, nil
	}
	f, err := converters.ToFloat(target, operand, value)
	if err != nil {
		return nil, false, err
	}
	return []float64{f}, true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Constant adds a constant layer with the given shape, filled with values converted to dtype.
func Constant(net network.Network, dtype dtypes.DType, dims []int, values []float64, name string) (network.Tensor, error) {
	flat, err := Flat(dtype, values)
	if err != nil {
		return nil, err
	}
	layer, err := net.AddConstant(shapes.Make(dtype, dims...), flat)
	if err != nil {
		return nil, err
	}
	layer.SetName(name)
	return layer.Output(0), nil
}

// IntConstant adds a 1D constant of dtype network.ShapeDType with the given values.
func IntConstant(net network.Network, values []int, name string) (network.Tensor, error) {
	flat := make([]int32, len(values))
	for ii, v := range values {
		flat[ii] = int32(v)
	}
	layer, err := net.AddConstant(shapes.Make(network.ShapeDType, len(values)), flat)
	if err != nil {
		return nil, err
	}
	layer.SetName(name)
	return layer.Output(0), nil
}

// GetTensor returns value if it is a network.Tensor, otherwise it materializes the Go constant as a constant layer
// of the given dtype (or DefaultDType if dtype is dtypes.InvalidDType). Scalars become rank-0 constants,
// and lists rank-1 constants.
func GetTensor(net network.Network, target converters.OpKey, operand string, value any, dtype dtypes.DType, name string) (network.Tensor, error) {
	if t, ok := value.(network.Tensor); ok && t != nil {
		return t, nil
	}
	if value == nil {
		return nil, converters.NewInvalidOperandError(target, operand, value, "expected a tensor or a constant, got nil")
	}
	values, isScalar, err := toFloats(target, operand, value)
	if err != nil {
		return nil, err
	}
	if dtype == dtypes.InvalidDType {
		dtype = DefaultDType(value)
	}
	var dims []int
	if !isScalar {
		dims = []int{len(values)}
	}
	return Constant(net, dtype, dims, values, fmt.Sprintf("%s_%s", name, operand))
}

// ScalarLike materializes a Go scalar constant as a tensor with the dtype of like and its rank,
// with all dimensions set to 1, so it can be broadcast against it.
func ScalarLike(net network.Network, target converters.OpKey, operand string, value any, like network.Tensor, name string) (network.Tensor, error) {
	values, isScalar, err := toFloats(target, operand, value)
	if err != nil {
		return nil, err
	}
	if !isScalar {
		return nil, converters.NewInvalidOperandError(target, operand, value, "expected a scalar constant")
	}
	dims := make([]int, like.Shape().Rank())
	for ii := range dims {
		dims[ii] = 1
	}
	return Constant(net, like.Shape().DType, dims, values, fmt.Sprintf("%s_%s", name, operand))
}
