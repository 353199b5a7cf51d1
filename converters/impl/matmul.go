// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package impl

import (
	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/network"
)

// MatMul multiplies the matrices on the last two axes of lhs and rhs, broadcasting the leading axes.
func MatMul(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	lhs any, transposeLHS bool, rhs any, transposeRHS bool) (network.Tensor, error) {
	lhsT, rhsT, err := ElementWiseOperands(net, target, source, name, lhs, rhs)
	if err != nil {
		return nil, err
	}
	layer, err := net.AddMatrixMultiply(lhsT, transposeLHS, rhsT, transposeRHS)
	if err != nil {
		return nil, err
	}
	SetLayerName(layer, target, source, name)
	return layer.Output(0), nil
}

// Linear returns input @ weight^T + bias, where weight is shaped [outFeatures, inFeatures] and the optional
// bias (nil) [outFeatures].
func Linear(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input, weight, bias any) (network.Tensor, error) {
	t, err := converters.ToTensor(target, "input", input)
	if err != nil {
		return nil, err
	}
	weightT, err := GetTensor(net, target, "weight", weight, t.Shape().DType, name)
	if err != nil {
		return nil, err
	}
	if weightT.Shape().Rank() != 2 {
		return nil, converters.NewInvalidOperandError(target, "weight", weightT.Shape(), "weight must have rank 2")
	}
	vector := t.Shape().Rank() == 1
	if vector {
		if t, err = reshape(net, target, source, name+"_input_reshape", t, []int{1, t.Shape().Dimensions[0]}, []int{0, 0}); err != nil {
			return nil, err
		}
	}
	output, err := MatMul(net, target, source, name+"_matmul", t, false, weightT, true)
	if err != nil {
		return nil, err
	}
	if vector {
		outFeatures := output.Shape().Dimensions[1]
		if output, err = reshape(net, target, source, name+"_output_reshape", output, []int{outFeatures}, []int{1}); err != nil {
			return nil, err
		}
	}
	if bias == nil {
		return output, nil
	}
	return ElementWise(net, target, source, name+"_add", output, bias, network.ElementWiseSum)
}

