// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package acc implements the converters of the "acc" operator set: normalized operators that take all their
// arguments as keywords (e.g. acc.add(input=x, other=y)).
//
// The converters are exported so converters of other operator sets can delegate to them with a direct call,
// after repacking their arguments with the adapt package. Register adds them all to a converters.Registry.
package acc

import (
	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/network"
)

// Source of the layers created by the converters in this package.
const Source = converters.SourceAcc

// Names of the acc operators and their converters.
var table = map[string]converters.Converter{
	"add":                 Add,
	"sub":                 Sub,
	"mul":                 Mul,
	"div":                 Div,
	"floor_div":           FloorDiv,
	"fmod":                Fmod,
	"pow":                 Pow,
	"relu":                Relu,
	"sigmoid":             Sigmoid,
	"tanh":                Tanh,
	"hardtanh":            HardTanh,
	"leaky_relu":          LeakyRelu,
	"reshape":             Reshape,
	"permute":             Permute,
	"squeeze":             Squeeze,
	"unsqueeze":           Unsqueeze,
	"slice_tensor":        SliceTensor,
	"sum":                 Sum,
	"mean":                Mean,
	"cat":                 Cat,
	"expand":              Expand,
	"linear":              Linear,
	"conv1d":              Conv1D,
	"convnd":              ConvND,
	"max_poolnd":          MaxPoolND,
	"adaptive_avg_poolnd": AdaptiveAvgPoolND,
	"batch_norm":          BatchNorm,
	"embedding":           Embedding,
	"to_dtype":            ToDType,
}

// Register all acc converters in r, under the namespace converters.NamespaceAcc.
func Register(r *converters.Registry) error {
	for name, converter := range table {
		if err := r.Register(converters.Acc(name), converter); err != nil {
			return err
		}
	}
	return nil
}

// single wraps the one output of a converter.
func single(t network.Tensor, err error) ([]network.Tensor, error) {
	if err != nil {
		return nil, err
	}
	return []network.Tensor{t}, nil
}

// intsKwarg reads an optional list of integers, where nil (or a list of nils) means not given.
func intsKwarg(target converters.OpKey, kwargs map[string]any, key string) ([]int, error) {
	value := kwargs[key]
	if list, ok := value.([]any); ok {
		allNil := true
		for _, elem := range list {
			allNil = allNil && elem == nil
		}
		if allNil {
			return nil, nil
		}
	}
	if value == nil {
		return nil, nil
	}
	return converters.ToInts(target, key, value)
}

// tensorsKwarg reads a list of operands, given as []any or []network.Tensor.
func tensorsKwarg(target converters.OpKey, kwargs map[string]any, key string) ([]any, error) {
	value, err := converters.RequiredKwarg(target, kwargs, key)
	if err != nil {
		return nil, err
	}
	switch v := value.(type) {
	case []any:
		return v, nil
	case []network.Tensor:
		list := make([]any, len(v))
		for ii, t := range v {
			list[ii] = t
		}
		return list, nil
	}
	return nil, converters.NewInvalidOperandError(target, key, value, "expected a list of tensors")
}
