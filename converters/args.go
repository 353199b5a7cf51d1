// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package converters

import (
	"golang.org/x/exp/constraints"

	"github.com/gomlx/torchlower/network"
)

// Arg returns args[i], or defaultValue if there are not that many args.
func Arg(args []any, i int, defaultValue any) any {
	if i < len(args) {
		return args[i]
	}
	return defaultValue
}

// Kwarg returns kwargs[key], or defaultValue if it is not set or nil.
func Kwarg(kwargs map[string]any, key string, defaultValue any) any {
	if value, found := kwargs[key]; found && value != nil {
		return value
	}
	return defaultValue
}

// RequiredArg returns args[i], or an InvalidOperandError naming the operand if it is missing.
func RequiredArg(target OpKey, args []any, i int, operand string) (any, error) {
	if i >= len(args) {
		return nil, NewInvalidOperandError(target, operand, nil, "missing required positional argument #%d (%d given)", i, len(args))
	}
	return args[i], nil
}

// RequiredKwarg returns kwargs[key], or an InvalidOperandError if it is missing.
func RequiredKwarg(target OpKey, kwargs map[string]any, key string) (any, error) {
	value, found := kwargs[key]
	if !found {
		return nil, NewInvalidOperandError(target, key, nil, "missing required keyword argument")
	}
	return value, nil
}

// IsTensor returns whether the value is a network.Tensor (as opposed to a Go constant).
func IsTensor(value any) bool {
	_, ok := value.(network.Tensor)
	return ok && value != nil
}

// ToTensor returns the value as a network.Tensor, or an InvalidOperandError if it is a Go constant.
func ToTensor(target OpKey, operand string, value any) (network.Tensor, error) {
	t, ok := value.(network.Tensor)
	if !ok || t == nil {
		return nil, NewInvalidOperandError(target, operand, value, "expected a tensor")
	}
	return t, nil
}

func intFromFloat[T constraints.Float](target OpKey, operand string, v T) (int, error) {
	i := int(v)
	if T(i) != v {
		return 0, NewInvalidOperandError(target, operand, v, "expected an integer value")
	}
	return i, nil
}

func intFromInteger[T constraints.Integer](v T) int { return int(v) }

// ToInt converts an integer constant (of any Go integer type, or an integral float) to int.
func ToInt(target OpKey, operand string, value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int8:
		return intFromInteger(v), nil
	case int16:
		return intFromInteger(v), nil
	case int32:
		return intFromInteger(v), nil
	case int64:
		return intFromInteger(v), nil
	case uint8:
		return intFromInteger(v), nil
	case uint16:
		return intFromInteger(v), nil
	case uint32:
		return intFromInteger(v), nil
	case uint64:
		return intFromInteger(v), nil
	case float32:
		return intFromFloat(target, operand, v)
	case float64:
		return intFromFloat(target, operand, v)
	}
	return 0, NewInvalidOperandError(target, operand, value, "expected an integer constant")
}

// ToOptionalInt is like ToInt, but returns nil for a nil value.
func ToOptionalInt(target OpKey, operand string, value any) (*int, error) {
	if value == nil {
		return nil, nil
	}
	i, err := ToInt(target, operand, value)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// ToInts converts a list of integer constants ([]int, []int64, []any, ...) to []int.
// A single integer is converted to a list with one element.
func ToInts(target OpKey, operand string, value any) ([]int, error) {
	switch v := value.(type) {
	case []int:
		return v, nil
	case []int32:
		return intsFromIntegers(v), nil
	case []int64:
		return intsFromIntegers(v), nil
	case []any:
		result := make([]int, len(v))
		for ii, elem := range v {
			var err error
			if result[ii], err = ToInt(target, operand, elem); err != nil {
				return nil, err
			}
		}
		return result, nil
	}
	i, err := ToInt(target, operand, value)
	if err != nil {
		return nil, NewInvalidOperandError(target, operand, value, "expected a list of integer constants")
	}
	return []int{i}, nil
}

func intsFromIntegers[T constraints.Integer](values []T) []int {
	result := make([]int, len(values))
	for ii, v := range values {
		result[ii] = int(v)
	}
	return result
}

// ToFloat converts a numeric constant to float64.
func ToFloat(target OpKey, operand string, value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	}
	i, err := ToInt(target, operand, value)
	if err != nil {
		return 0, NewInvalidOperandError(target, operand, value, "expected a numeric constant")
	}
	return float64(i), nil
}

// ToOptionalFloat is like ToFloat, but returns nil for a nil value.
func ToOptionalFloat(target OpKey, operand string, value any) (*float64, error) {
	if value == nil {
		return nil, nil
	}
	f, err := ToFloat(target, operand, value)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ToBool converts a boolean constant. nil is taken as false.
func ToBool(target OpKey, operand string, value any) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	}
	return false, NewInvalidOperandError(target, operand, value, "expected a boolean constant")
}

// ToOptionalString returns nil for a nil value, or the string constant.
func ToOptionalString(target OpKey, operand string, value any) (*string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return &v, nil
	}
	return nil, NewInvalidOperandError(target, operand, value, "expected a string constant or nil")
}
