// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package impl

import (
	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/network"
	"github.com/gomlx/torchlower/network/shapeinference"
)

// AxesMask returns the reduce axes bitmask for the operator dims of t: bit i is set for the (network) axis i.
// An empty (or nil) dims selects all the axes of t.
func AxesMask(net network.Network, target converters.OpKey, t network.Tensor, dims []int) (uint32, error) {
	rank := t.Shape().Rank()
	if rank > shapeinference.MaxReduceRank {
		return 0, converters.NewUnsupportedConfigurationError(target, "input", t.Shape(), "rank larger than %d", shapeinference.MaxReduceRank)
	}
	var mask uint32
	if len(dims) == 0 {
		for axis := range rank {
			mask |= 1 << uint(axis)
		}
		return mask, nil
	}
	for _, dim := range dims {
		axis, err := NormalizeDim(net, target, t, dim)
		if err != nil {
			return 0, err
		}
		mask |= 1 << uint(axis)
	}
	return mask, nil
}

// Reduce input over dims (all axes if empty) with the given operation, optionally keeping the reduced axes with
// dimension 1.
func Reduce(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input any, dims []int, keepDim bool, op network.ReduceOp) (network.Tensor, error) {
	t, err := converters.ToTensor(target, "input", input)
	if err != nil {
		return nil, err
	}
	mask, err := AxesMask(net, target, t, dims)
	if err != nil {
		return nil, err
	}
	layer, err := net.AddReduce(t, op, mask, keepDim)
	if err != nil {
		return nil, err
	}
	SetLayerName(layer, target, source, name)
	return layer.Output(0), nil
}

// Sum of input over dims, see Reduce.
func Sum(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input any, dims []int, keepDim bool) (network.Tensor, error) {
	return Reduce(net, target, source, name, input, dims, keepDim, network.ReduceSum)
}

// Mean of input over dims, see Reduce.
func Mean(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input any, dims []int, keepDim bool) (network.Tensor, error) {
	return Reduce(net, target, source, name, input, dims, keepDim, network.ReduceAvg)
}
