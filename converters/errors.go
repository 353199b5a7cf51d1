// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package converters

import (
	"fmt"

	"github.com/pkg/errors"
)

// UnsupportedOperatorError is returned when no converter is registered for an operator key.
type UnsupportedOperatorError struct {
	Key OpKey
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("no converter registered for operator %s", e.Key)
}

// NewUnsupportedOperatorError returns an UnsupportedOperatorError with a stack trace.
func NewUnsupportedOperatorError(key OpKey) error {
	return errors.WithStack(&UnsupportedOperatorError{Key: key})
}

// InvalidOperandError is returned when an operand has the wrong kind or value: e.g. a constant
// where a tensor is required, or a missing required argument.
type InvalidOperandError struct {
	Target  OpKey
	Operand string
	Value   any
	Reason  string
}

func (e *InvalidOperandError) Error() string {
	return fmt.Sprintf("%s: invalid operand %s (%T): %s", e.Target, e.Operand, e.Value, e.Reason)
}

// NewInvalidOperandError returns an InvalidOperandError with a stack trace.
func NewInvalidOperandError(target OpKey, operand string, value any, format string, args ...any) error {
	return errors.WithStack(&InvalidOperandError{Target: target, Operand: operand, Value: value, Reason: fmt.Sprintf(format, args...)})
}

// UnsupportedConfigurationError is returned when an operator is called with a combination of arguments
// that cannot be lowered, e.g. a transposed convolution or a slice over a dynamic axis.
type UnsupportedConfigurationError struct {
	Target OpKey
	Field  string
	Value  any
	Reason string
}

func (e *UnsupportedConfigurationError) Error() string {
	return fmt.Sprintf("%s: unsupported %s=%v: %s", e.Target, e.Field, e.Value, e.Reason)
}

// NewUnsupportedConfigurationError returns an UnsupportedConfigurationError with a stack trace.
func NewUnsupportedConfigurationError(target OpKey, field string, value any, format string, args ...any) error {
	return errors.WithStack(&UnsupportedConfigurationError{Target: target, Field: field, Value: value, Reason: fmt.Sprintf(format, args...)})
}

// BatchDimensionError is returned when an operation targets the batch axis of a network in implicit batch mode.
type BatchDimensionError struct {
	Target OpKey
	Axis   int
}

func (e *BatchDimensionError) Error() string {
	return fmt.Sprintf("%s: cannot operate on axis %d, the implicit batch dimension", e.Target, e.Axis)
}

// NewBatchDimensionError returns a BatchDimensionError with a stack trace.
func NewBatchDimensionError(target OpKey, axis int) error {
	return errors.WithStack(&BatchDimensionError{Target: target, Axis: axis})
}

// DuplicateRegistrationError is returned when registering a different converter for a key already registered.
type DuplicateRegistrationError struct {
	Key OpKey
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("a different converter is already registered for operator %s", e.Key)
}
