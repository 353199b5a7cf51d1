// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"github.com/gomlx/torchlower/pkg/support/sets"
)

// NormalizeAxis converts a possibly negative axis (counting from the end, Python style) to a
// non-negative one: axis if axis >= 0, axis+rank otherwise.
//
// It doesn't check bounds, see CheckAxis.
func NormalizeAxis(axis, rank int) int {
	if axis < 0 {
		return axis + rank
	}
	return axis
}

// CheckAxis returns whether axis is valid for the given rank, that is, -rank <= axis < rank.
func CheckAxis(axis, rank int) bool {
	return axis >= -rank && axis < rank
}

// DynamicAxes returns the set of axes of the shape whose dimensions are DynamicDim.
func DynamicAxes(s Shape) sets.Set[int] {
	axes := sets.Make[int]()
	for axis, dim := range s.Dimensions {
		if dim == DynamicDim {
			axes.Insert(axis)
		}
	}
	return axes
}

// HasDynamicShape returns whether any of the dimensions of the shape is DynamicDim.
func HasDynamicShape(s Shape) bool {
	for _, dim := range s.Dimensions {
		if dim == DynamicDim {
			return true
		}
	}
	return false
}

// IsDynamicAxis returns whether the dimension of the given axis (already normalized) is dynamic.
func (s Shape) IsDynamicAxis(axis int) bool {
	return s.Dimensions[axis] == DynamicDim
}
