// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package impl

import (
	"fmt"
	"math"

	"github.com/gomlx/gopjrt/dtypes"

	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/network"
)

// BroadcastRank prepends axes of dimension 1 to t until it has the given rank.
func BroadcastRank(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	t network.Tensor, rank int) (network.Tensor, error) {
	inputDims := t.Shape().Dimensions
	numNew := rank - len(inputDims)
	if numNew <= 0 {
		return t, nil
	}
	dims := make([]int, rank)
	sources := make([]int, rank)
	for ii := range numNew {
		dims[ii] = 1
	}
	for ii, dim := range inputDims {
		dims[numNew+ii] = dim
		sources[numNew+ii] = ii
	}
	return reshape(net, target, source, name, t, dims, sources)
}

// isNonIntegral returns whether value is a Go float constant with a fractional part.
func isNonIntegral(value any) bool {
	var f float64
	switch v := value.(type) {
	case float32:
		f = float64(v)
	case float64:
		f = v
	default:
		return false
	}
	return f != math.Trunc(f)
}

// ElementWiseOperands converts lhs and rhs (tensors or Go scalars, at least one a tensor) to tensors of the same
// dtype and rank, so they can be used by a binary elementwise layer.
//
// Constants take the dtype of the other operand. Integer tensors operated with floats are cast to the float dtype.
func ElementWiseOperands(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	lhs, rhs any) (network.Tensor, network.Tensor, error) {
	lhsT, lhsIsTensor := lhs.(network.Tensor)
	rhsT, rhsIsTensor := rhs.(network.Tensor)
	var err error
	switch {
	case !lhsIsTensor && !rhsIsTensor:
		return nil, nil, converters.NewInvalidOperandError(target, "input", lhs, "at least one of the operands must be a tensor")
	case !lhsIsTensor:
		if isNonIntegral(lhs) && !rhsT.Shape().DType.IsFloat() {
			if rhsT, err = Cast(net, target, source, name+"_other_cast", rhsT, dtypes.Float32); err != nil {
				return nil, nil, err
			}
		}
		if lhsT, err = ScalarLike(net, target, "input", lhs, rhsT, name); err != nil {
			return nil, nil, err
		}
	case !rhsIsTensor:
		if isNonIntegral(rhs) && !lhsT.Shape().DType.IsFloat() {
			if lhsT, err = Cast(net, target, source, name+"_input_cast", lhsT, dtypes.Float32); err != nil {
				return nil, nil, err
			}
		}
		if rhsT, err = ScalarLike(net, target, "other", rhs, lhsT, name); err != nil {
			return nil, nil, err
		}
	}

	lhsDType, rhsDType := lhsT.Shape().DType, rhsT.Shape().DType
	if lhsDType != rhsDType {
		if rhsDType.IsFloat() && !lhsDType.IsFloat() {
			lhsT, err = Cast(net, target, source, name+"_input_cast", lhsT, rhsDType)
		} else {
			rhsT, err = Cast(net, target, source, name+"_other_cast", rhsT, lhsDType)
		}
		if err != nil {
			return nil, nil, err
		}
	}

	rank := max(lhsT.Shape().Rank(), rhsT.Shape().Rank())
	if lhsT, err = BroadcastRank(net, target, source, name+"_input_broadcast", lhsT, rank); err != nil {
		return nil, nil, err
	}
	if rhsT, err = BroadcastRank(net, target, source, name+"_other_broadcast", rhsT, rank); err != nil {
		return nil, nil, err
	}
	return lhsT, rhsT, nil
}

// ElementWise adds a binary elementwise layer, see ElementWiseOperands for how operands are converted.
func ElementWise(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	lhs, rhs any, op network.ElementWiseOp) (network.Tensor, error) {
	lhsT, rhsT, err := ElementWiseOperands(net, target, source, name, lhs, rhs)
	if err != nil {
		return nil, err
	}
	layer, err := net.AddElementWise(lhsT, rhsT, op)
	if err != nil {
		return nil, err
	}
	SetLayerName(layer, target, source, name)
	return layer.Output(0), nil
}

// Unary adds a unary elementwise layer.
func Unary(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input any, op network.UnaryOp) (network.Tensor, error) {
	t, err := converters.ToTensor(target, "input", input)
	if err != nil {
		return nil, err
	}
	layer, err := net.AddUnary(t, op)
	if err != nil {
		return nil, err
	}
	SetLayerName(layer, target, source, name)
	return layer.Output(0), nil
}

func Sign(net network.Network, target converters.OpKey, source converters.SourceIR, name string, input any) (network.Tensor, error) {
	return Unary(net, target, source, name, input, network.UnarySign)
}

func Abs(net network.Network, target converters.OpKey, source converters.SourceIR, name string, input any) (network.Tensor, error) {
	return Unary(net, target, source, name, input, network.UnaryAbs)
}

func Floor(net network.Network, target converters.OpKey, source converters.SourceIR, name string, input any) (network.Tensor, error) {
	return Unary(net, target, source, name, input, network.UnaryFloor)
}

// Rsqrt returns 1/sqrt(input).
func Rsqrt(net network.Network, target converters.OpKey, source converters.SourceIR, name string, input any) (network.Tensor, error) {
	sqrt, err := Unary(net, target, source, name+"_sqrt", input, network.UnarySqrt)
	if err != nil {
		return nil, err
	}
	return Unary(net, target, source, name, sqrt, network.UnaryRecip)
}

// TruncDiv divides rounding towards zero: sign(lhs*rhs) * floor_div(|lhs|, |rhs|).
func TruncDiv(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	lhs, rhs any) (network.Tensor, error) {
	lhsT, rhsT, err := ElementWiseOperands(net, target, source, name, lhs, rhs)
	if err != nil {
		return nil, err
	}
	prod, err := ElementWise(net, target, source, name+"_prod", lhsT, rhsT, network.ElementWiseProd)
	if err != nil {
		return nil, err
	}
	sign, err := Sign(net, target, source, name+"_sign", prod)
	if err != nil {
		return nil, err
	}
	absLhs, err := Abs(net, target, source, name+"_abs_input", lhsT)
	if err != nil {
		return nil, err
	}
	absRhs, err := Abs(net, target, source, name+"_abs_other", rhsT)
	if err != nil {
		return nil, err
	}
	floorDiv, err := ElementWise(net, target, source, name+"_floor_div", absLhs, absRhs, network.ElementWiseFloorDiv)
	if err != nil {
		return nil, err
	}
	return ElementWise(net, target, source, name, sign, floorDiv, network.ElementWiseProd)
}

// Fmod returns the remainder of the division rounded towards zero: lhs - trunc_div(lhs, rhs)*rhs.
func Fmod(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	lhs, rhs any) (network.Tensor, error) {
	lhsT, rhsT, err := ElementWiseOperands(net, target, source, name, lhs, rhs)
	if err != nil {
		return nil, err
	}
	truncDiv, err := TruncDiv(net, target, source, name+"_trunc_div", lhsT, rhsT)
	if err != nil {
		return nil, err
	}
	prod, err := ElementWise(net, target, source, name+"_prod", truncDiv, rhsT, network.ElementWiseProd)
	if err != nil {
		return nil, err
	}
	return ElementWise(net, target, source, name, lhsT, prod, network.ElementWiseSub)
}

// Clamp the values of input to [minValue, maxValue]. Either bound can be nil, but not both.
func Clamp(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input any, minValue, maxValue *float64) (network.Tensor, error) {
	t, err := converters.ToTensor(target, "input", input)
	if err != nil {
		return nil, err
	}
	if minValue == nil && maxValue == nil {
		return nil, converters.NewInvalidOperandError(target, "min", nil, "at least one of min or max must be given")
	}
	if minValue != nil {
		if t, err = ElementWise(net, target, source, name+"_min", t, *minValue, network.ElementWiseMax); err != nil {
			return nil, err
		}
	}
	if maxValue != nil {
		if t, err = ElementWise(net, target, source, name+"_max", t, *maxValue, network.ElementWiseMin); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Cast input to dtype. If it already has the dtype, input is returned.
func Cast(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input any, dtype dtypes.DType) (network.Tensor, error) {
	t, err := GetTensor(net, target, "input", input, dtype, name)
	if err != nil {
		return nil, err
	}
	if t.Shape().DType == dtype {
		return t, nil
	}
	layer, err := net.AddCast(t, dtype)
	if err != nil {
		return nil, err
	}
	SetLayerName(layer, target, source, name)
	return layer.Output(0), nil
}

// Concatenate tensors along the axis dim. Constants among tensors take the dtype of the first tensor.
func Concatenate(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	tensors []any, dim int) (network.Tensor, error) {
	var first network.Tensor
	for _, value := range tensors {
		if t, ok := value.(network.Tensor); ok && t != nil {
			first = t
			break
		}
	}
	if first == nil {
		return nil, converters.NewInvalidOperandError(target, "tensors", tensors, "at least one tensor is required")
	}
	axis, err := NormalizeDim(net, target, first, dim)
	if err != nil {
		return nil, err
	}
	inputs := make([]network.Tensor, len(tensors))
	for ii, value := range tensors {
		if inputs[ii], err = GetTensor(net, target, fmt.Sprintf("tensors_%d", ii), value, first.Shape().DType, name); err != nil {
			return nil, err
		}
		if inputs[ii].Shape().DType != first.Shape().DType {
			if inputs[ii], err = Cast(net, target, source, fmt.Sprintf("%s_cast_%d", name, ii), inputs[ii], first.Shape().DType); err != nil {
				return nil, err
			}
		}
	}
	layer, err := net.AddConcatenation(inputs, axis)
	if err != nil {
		return nil, err
	}
	SetLayerName(layer, target, source, name)
	return layer.Output(0), nil
}
