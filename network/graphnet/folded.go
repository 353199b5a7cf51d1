// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graphnet

import (
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/gomlx/torchlower/network"
	"github.com/gomlx/torchlower/types/shapes"
)

// MaxFoldedSize is the maximum number of elements of a tensor whose values are folded.
const MaxFoldedSize = 64

// folded holds the values of a small integer (or boolean) tensor computed while building the network.
// known[i] reports whether values[i] was computed.
type folded struct {
	values []int
	known  []bool
}

// foldable returns whether tensors of the given shape can have their values folded.
func foldable(shape shapes.Shape) bool {
	if !shape.Ok() || shape.Rank() > 1 || !(shape.DType.IsInt() || shape.DType == dtypes.Bool) {
		return false
	}
	size := shape.Size()
	return size != shapes.DynamicDim && size <= MaxFoldedSize
}

func newFolded(size int) *folded {
	return &folded{values: make([]int, size), known: make([]bool, size)}
}

func (f *folded) set(i, value int) {
	f.values[i] = value
	f.known[i] = true
}

func (f *folded) allKnown() bool {
	for _, known := range f.known {
		if !known {
			return false
		}
	}
	return true
}

// at returns the value at position i, broadcasting values of size 1.
func (f *folded) at(i int) (int, bool) {
	if len(f.values) == 1 {
		i = 0
	}
	if i >= len(f.values) {
		return 0, false
	}
	return f.values[i], f.known[i]
}

func (f *folded) mapValues(fn func(v int) int) *folded {
	result := newFolded(len(f.values))
	for ii, v := range f.values {
		if f.known[ii] {
			result.set(ii, fn(v))
		}
	}
	return result
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func concatFolded(inputs []*Tensor) *folded {
	result := &folded{}
	for _, input := range inputs {
		if input.value == nil || input.shape.Rank() != 1 {
			return nil
		}
		result.values = append(result.values, input.value.values...)
		result.known = append(result.known, input.value.known...)
	}
	return result
}

func gatherFolded(data, indices *folded) *folded {
	if data == nil || indices == nil {
		return nil
	}
	result := newFolded(len(indices.values))
	for ii, idx := range indices.values {
		if indices.known[ii] && idx >= 0 && idx < len(data.values) && data.known[idx] {
			result.set(ii, data.values[idx])
		}
	}
	return result
}

func reduceFolded(input *folded, op network.ReduceOp) *folded {
	if input == nil || !input.allKnown() || len(input.values) == 0 {
		return nil
	}
	acc := input.values[0]
	for _, v := range input.values[1:] {
		switch op {
		case network.ReduceSum:
			acc += v
		case network.ReduceProd:
			acc *= v
		case network.ReduceMax:
			acc = max(acc, v)
		case network.ReduceMin:
			acc = min(acc, v)
		default:
			return nil
		}
	}
	if op == network.ReduceAvg {
		return nil
	}
	result := newFolded(1)
	result.set(0, acc)
	return result
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func intPow(base, exp int) int {
	result := 1
	for range exp {
		result *= base
	}
	return result
}

func elementWiseFolded(op network.ElementWiseOp, lhs, rhs *folded, size int) *folded {
	if lhs == nil || rhs == nil {
		return nil
	}
	result := newFolded(size)
	for ii := range size {
		a, aKnown := lhs.at(ii)
		b, bKnown := rhs.at(ii)
		if !aKnown || !bKnown {
			continue
		}
		switch op {
		case network.ElementWiseSum:
			result.set(ii, a+b)
		case network.ElementWiseProd:
			result.set(ii, a*b)
		case network.ElementWiseMax:
			result.set(ii, max(a, b))
		case network.ElementWiseMin:
			result.set(ii, min(a, b))
		case network.ElementWiseSub:
			result.set(ii, a-b)
		case network.ElementWiseDiv:
			if b != 0 {
				result.set(ii, a/b)
			}
		case network.ElementWiseFloorDiv:
			if b != 0 {
				result.set(ii, floorDiv(a, b))
			}
		case network.ElementWisePow:
			if b >= 0 {
				result.set(ii, intPow(a, b))
			}
		case network.ElementWiseAnd:
			result.set(ii, boolToInt(a != 0 && b != 0))
		case network.ElementWiseOr:
			result.set(ii, boolToInt(a != 0 || b != 0))
		case network.ElementWiseXor:
			result.set(ii, boolToInt((a != 0) != (b != 0)))
		case network.ElementWiseEqual:
			result.set(ii, boolToInt(a == b))
		case network.ElementWiseGreater:
			result.set(ii, boolToInt(a > b))
		case network.ElementWiseLess:
			result.set(ii, boolToInt(a < b))
		}
	}
	return result
}

func unaryFolded(op network.UnaryOp, input *folded) *folded {
	switch op {
	case network.UnaryAbs:
		return input.mapValues(func(v int) int { return max(v, -v) })
	case network.UnaryNeg:
		return input.mapValues(func(v int) int { return -v })
	case network.UnarySign:
		return input.mapValues(func(v int) int { return boolToInt(v > 0) - boolToInt(v < 0) })
	case network.UnaryNot:
		return input.mapValues(func(v int) int { return boolToInt(v == 0) })
	default:
		return nil
	}
}

func selectFolded(condition, onTrue, onFalse *folded, size int) *folded {
	if condition == nil {
		return nil
	}
	result := newFolded(size)
	for ii := range size {
		c, known := condition.at(ii)
		if !known {
			continue
		}
		chosen := onFalse
		if c != 0 {
			chosen = onTrue
		}
		if chosen == nil {
			continue
		}
		if v, known := chosen.at(ii); known {
			result.set(ii, v)
		}
	}
	return result
}
