// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"fmt"
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// MaxVerifiedRank is the largest rank known to be accepted by inference engines for network inputs.
// Larger ranks are accepted with a warning.
const MaxVerifiedRank = 5

// DimRange holds the range of values a dynamic dimension can take during execution.
// The Opt value is the one the engine optimizes for.
type DimRange struct {
	Min, Opt, Max int
}

// InputSpec describes one input of the network: its name, shape (with DynamicDim for axes that
// vary across executions), the device holding it and, for dynamic inputs, one DimRange per axis.
//
// Lowering only reads an InputSpec; they are usually built with NewStaticSpec or NewRangeSpec.
type InputSpec struct {
	Name   string
	Shape  Shape
	Device string

	// Ranges is nil for static inputs, otherwise it has one entry per axis.
	Ranges []DimRange
}

// NewStaticSpec returns the InputSpec of an input with a fixed shape.
func NewStaticSpec(name string, dtype dtypes.DType, dims ...int) InputSpec {
	if len(dims) > MaxVerifiedRank {
		klog.Warningf("input %q has rank %d > %d, verify that this rank is accepted", name, len(dims), MaxVerifiedRank)
	}
	return InputSpec{Name: name, Shape: Make(dtype, dims...)}
}

// NewRangeSpec returns the InputSpec of an input whose dimensions can vary between minDims and maxDims,
// with optDims being the dimensions to optimize for.
//
// Axes where all three values are the same are static, the others are set to DynamicDim.
// It returns an error if the three lists have different lengths or are not ordered (min <= opt <= max).
func NewRangeSpec(name string, dtype dtypes.DType, minDims, optDims, maxDims []int) (InputSpec, error) {
	if len(minDims) != len(optDims) || len(optDims) != len(maxDims) {
		return InputSpec{}, errors.Errorf("input %q: expected min, opt and max shapes to have the same rank, got min(%d), opt(%d), max(%d)",
			name, len(minDims), len(optDims), len(maxDims))
	}
	if len(optDims) > MaxVerifiedRank {
		klog.Warningf("input %q has rank %d > %d, verify that this rank is accepted", name, len(optDims), MaxVerifiedRank)
	}
	spec := InputSpec{Name: name, Ranges: make([]DimRange, len(optDims))}
	dims := make([]int, len(optDims))
	for axis := range optDims {
		r := DimRange{Min: minDims[axis], Opt: optDims[axis], Max: maxDims[axis]}
		if r.Min <= 0 || r.Min > r.Opt || r.Opt > r.Max {
			return InputSpec{}, errors.Errorf("input %q: invalid range for axis %d, min=%d, opt=%d, max=%d",
				name, axis, r.Min, r.Opt, r.Max)
		}
		spec.Ranges[axis] = r
		if r.Min == r.Max {
			dims[axis] = r.Opt
		} else {
			dims[axis] = DynamicDim
		}
	}
	spec.Shape = Make(dtype, dims...)
	return spec, nil
}

// IsDynamic returns whether the input has any dynamic dimension.
func (spec InputSpec) IsDynamic() bool {
	return HasDynamicShape(spec.Shape)
}

// DropBatchAxis returns a copy of the spec without axis 0, as used by networks with an implicit batch dimension.
func (spec InputSpec) DropBatchAxis() (InputSpec, error) {
	if spec.Shape.Rank() == 0 {
		return spec, errors.Errorf("input %q is a scalar, it has no batch axis to drop", spec.Name)
	}
	s2 := spec
	s2.Shape = spec.Shape.WithDimensions(spec.Shape.Dimensions[1:]...)
	if spec.Ranges != nil {
		s2.Ranges = slices.Clone(spec.Ranges[1:])
	}
	return s2, nil
}

// String implements fmt.Stringer.
func (spec InputSpec) String() string {
	if spec.Ranges == nil {
		return fmt.Sprintf("%s: %s", spec.Name, spec.Shape)
	}
	return fmt.Sprintf("%s: %s ranges=%v", spec.Name, spec.Shape, spec.Ranges)
}
