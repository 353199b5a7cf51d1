// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graphfile

import (
	"math/big"
	"reflect"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/hashicorp/hcl/v2"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"github.com/zclconf/go-cty/cty"

	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/converters/acc"
	"github.com/gomlx/torchlower/lowering"
	"github.com/gomlx/torchlower/types/shapes"
)

// refType is the cty type of the tensor references, holding a *lowering.Ref.
var refType = cty.Capsule("tensor", reflect.TypeOf(lowering.Ref{}))

// refValue of "tensor.<name>": a reference, or a tuple of references if numOutputs > 1.
func refValue(name string, numOutputs int) cty.Value {
	if numOutputs == 1 {
		return cty.CapsuleVal(refType, &lowering.Ref{Node: name})
	}
	refs := make([]cty.Value, numOutputs)
	for ii := range refs {
		refs[ii] = cty.CapsuleVal(refType, &lowering.Ref{Node: name, Index: ii})
	}
	return cty.TupleVal(refs)
}

// toGo converts a cty value to the Go values taken by the converters.
func toGo(value cty.Value, rng hcl.Range) (any, error) {
	if value.IsNull() {
		return nil, nil
	}
	if !value.IsWhollyKnown() {
		return nil, errors.Errorf("%s: value is not known", rng)
	}
	ty := value.Type()
	switch {
	case ty.Equals(refType):
		return *value.EncapsulatedValue().(*lowering.Ref), nil
	case ty == cty.String:
		return value.AsString(), nil
	case ty == cty.Bool:
		return value.True(), nil
	case ty == cty.Number:
		return number(value.AsBigFloat()), nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		list := []any{}
		for it := value.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			v, err := toGo(elem, rng)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case ty.IsObjectType() || ty.IsMapType():
		m := make(map[string]any)
		for it := value.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			v, err := toGo(elem, rng)
			if err != nil {
				return nil, errors.WithMessagef(err, "key %q", key.AsString())
			}
			m[key.AsString()] = v
		}
		return m, nil
	}
	return nil, errors.Errorf("%s: unsupported value of type %s", rng, ty.FriendlyName())
}

// number returns an int for integer values that fit, float64 otherwise.
func number(f *big.Float) any {
	if f.IsInt() {
		if i, accuracy := f.Int64(); accuracy == big.Exact {
			return int(i)
		}
	}
	v, _ := f.Float64()
	return v
}

func parseDType(name string) (dtypes.DType, error) {
	dtype, err := acc.ParseDType(converters.OpKey{}, "dtype", name)
	if err != nil {
		return dtypes.InvalidDType, errors.Errorf("unknown dtype %q", name)
	}
	return dtype, nil
}

// makeShape returns an error instead of panicking on invalid dimensions.
func makeShape(dtype dtypes.DType, dims []int) (shape shapes.Shape, err error) {
	err = exceptions.TryCatch[error](func() { shape = shapes.Make(dtype, dims...) })
	return
}

func (b *inputBlock) spec() (spec shapes.InputSpec, err error) {
	dtype, err := parseDType(b.DType)
	if err != nil {
		return
	}
	ranged := b.Min != nil || b.Opt != nil || b.Max != nil
	switch {
	case ranged && b.Shape != nil:
		return spec, errors.Errorf("input %q: set either shape or min, opt and max", b.Name)
	case ranged:
		if spec, err = shapes.NewRangeSpec(b.Name, dtype, b.Min, b.Opt, b.Max); err != nil {
			return
		}
	default:
		spec.Name = b.Name
		if spec.Shape, err = makeShape(dtype, b.Shape); err != nil {
			return spec, errors.WithMessagef(err, "input %q", b.Name)
		}
	}
	if b.Device != nil {
		spec.Device = *b.Device
	}
	return spec, nil
}

func (b *constantBlock) constant() (lowering.Constant, error) {
	constant := lowering.Constant{Name: b.Name}
	dtype, err := parseDType(b.DType)
	if err != nil {
		return constant, err
	}
	if constant.Shape, err = makeShape(dtype, b.Shape); err != nil {
		return constant, errors.WithMessagef(err, "constant %q", b.Name)
	}
	if shapes.HasDynamicShape(constant.Shape) {
		return constant, errors.Errorf("constant %q: shape %s cannot be dynamic", b.Name, constant.Shape)
	}
	size := constant.Shape.Size()
	values := b.Values
	switch {
	case values != nil && b.Fill != nil:
		return constant, errors.Errorf("constant %q: set either values or fill", b.Name)
	case values == nil:
		fill := 0.0
		if b.Fill != nil {
			fill = *b.Fill
		}
		values = make([]float64, size)
		for ii := range values {
			values[ii] = fill
		}
	case len(values) != size:
		return constant, errors.Errorf("constant %q: shape %s requires %d values, got %d", b.Name, constant.Shape, size, len(values))
	}
	if constant.Flat, err = flatValues(dtype, values); err != nil {
		return constant, errors.WithMessagef(err, "constant %q", b.Name)
	}
	return constant, nil
}

func convert[T any](values []float64, fn func(v float64) T) []T {
	flat := make([]T, len(values))
	for ii, v := range values {
		flat[ii] = fn(v)
	}
	return flat
}

// flatValues converts values to a slice of the Go type of dtype.
func flatValues(dtype dtypes.DType, values []float64) (any, error) {
	switch dtype {
	case dtypes.Float64:
		return convert(values, func(v float64) float64 { return v }), nil
	case dtypes.Float32:
		return convert(values, func(v float64) float32 { return float32(v) }), nil
	case dtypes.Float16:
		return convert(values, func(v float64) float16.Float16 { return float16.Fromfloat32(float32(v)) }), nil
	case dtypes.Int64:
		return convert(values, func(v float64) int64 { return int64(v) }), nil
	case dtypes.Int32:
		return convert(values, func(v float64) int32 { return int32(v) }), nil
	case dtypes.Int16:
		return convert(values, func(v float64) int16 { return int16(v) }), nil
	case dtypes.Int8:
		return convert(values, func(v float64) int8 { return int8(v) }), nil
	case dtypes.Uint8:
		return convert(values, func(v float64) uint8 { return uint8(v) }), nil
	case dtypes.Bool:
		return convert(values, func(v float64) bool { return v != 0 }), nil
	}
	return nil, errors.Errorf("constants of dtype %s are not supported", dtype)
}
