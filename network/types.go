// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package network

import "fmt"

// LayerType enumerates the layers a Network can build.
type LayerType int

const (
	LayerTypeInvalid LayerType = iota
	LayerTypeInput
	LayerTypeConstant
	LayerTypeIdentity
	LayerTypeCast
	LayerTypeShuffle
	LayerTypeSlice
	LayerTypeShape
	LayerTypeConcatenation
	LayerTypeGather
	LayerTypeReduce
	LayerTypeElementWise
	LayerTypeUnary
	LayerTypeActivation
	LayerTypeSelect
	LayerTypeMatrixMultiply
	LayerTypeConvolution
	LayerTypePooling
)

var layerTypeNames = []string{
	"Invalid", "Input", "Constant", "Identity", "Cast", "Shuffle", "Slice", "Shape", "Concatenation",
	"Gather", "Reduce", "ElementWise", "Unary", "Activation", "Select", "MatrixMultiply", "Convolution", "Pooling",
}

func (t LayerType) String() string { return enumName(layerTypeNames, int(t), "LayerType") }

// ElementWiseOp enumerates the binary elementwise operations.
//
// Comparison operations (Equal, Greater, Less) return booleans, and logical ones (And, Or, Xor) take booleans.
type ElementWiseOp int

const (
	ElementWiseSum ElementWiseOp = iota
	ElementWiseProd
	ElementWiseMax
	ElementWiseMin
	ElementWiseSub
	ElementWiseDiv
	ElementWisePow
	ElementWiseFloorDiv
	ElementWiseAnd
	ElementWiseOr
	ElementWiseXor
	ElementWiseEqual
	ElementWiseGreater
	ElementWiseLess
)

var elementWiseNames = []string{
	"Sum", "Prod", "Max", "Min", "Sub", "Div", "Pow", "FloorDiv", "And", "Or", "Xor", "Equal", "Greater", "Less",
}

func (op ElementWiseOp) String() string { return enumName(elementWiseNames, int(op), "ElementWiseOp") }

// IsComparison returns whether the operation outputs booleans.
func (op ElementWiseOp) IsComparison() bool {
	return op == ElementWiseEqual || op == ElementWiseGreater || op == ElementWiseLess
}

// IsLogical returns whether the operation takes booleans as input.
func (op ElementWiseOp) IsLogical() bool {
	return op == ElementWiseAnd || op == ElementWiseOr || op == ElementWiseXor
}

// UnaryOp enumerates the unary elementwise operations.
type UnaryOp int

const (
	UnaryExp UnaryOp = iota
	UnaryLog
	UnarySqrt
	UnaryRecip
	UnaryAbs
	UnaryNeg
	UnarySin
	UnaryCos
	UnaryFloor
	UnaryCeil
	UnarySign
	UnaryNot
)

var unaryNames = []string{"Exp", "Log", "Sqrt", "Recip", "Abs", "Neg", "Sin", "Cos", "Floor", "Ceil", "Sign", "Not"}

func (op UnaryOp) String() string { return enumName(unaryNames, int(op), "UnaryOp") }

// ActivationType enumerates the activation functions.
type ActivationType int

const (
	ActivationRelu ActivationType = iota
	ActivationSigmoid
	ActivationTanh
	// ActivationLeakyRelu uses alpha as the negative slope.
	ActivationLeakyRelu
	// ActivationClip clips values to [alpha, beta].
	ActivationClip
	// ActivationElu uses alpha as the scale of the negative part.
	ActivationElu
	ActivationSoftplus
)

var activationNames = []string{"Relu", "Sigmoid", "Tanh", "LeakyRelu", "Clip", "Elu", "Softplus"}

func (a ActivationType) String() string { return enumName(activationNames, int(a), "ActivationType") }

// ReduceOp enumerates the reduction operations.
type ReduceOp int

const (
	ReduceSum ReduceOp = iota
	ReduceProd
	ReduceMax
	ReduceMin
	ReduceAvg
)

var reduceNames = []string{"Sum", "Prod", "Max", "Min", "Avg"}

func (op ReduceOp) String() string { return enumName(reduceNames, int(op), "ReduceOp") }

// PoolingType enumerates the pooling operations.
type PoolingType int

const (
	PoolingMax PoolingType = iota
	PoolingAverage
)

var poolingNames = []string{"Max", "Average"}

func (p PoolingType) String() string { return enumName(poolingNames, int(p), "PoolingType") }

func enumName(names []string, value int, typeName string) string {
	if value < 0 || value >= len(names) {
		return fmt.Sprintf("%s(%d)", typeName, value)
	}
	return names[value]
}
