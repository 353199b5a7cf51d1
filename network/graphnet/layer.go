// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graphnet

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gomlx/torchlower/network"
	"github.com/gomlx/torchlower/network/shapeinference"
	"github.com/gomlx/torchlower/types/shapes"
)

// Layer implements network.Layer.
type Layer struct {
	net       *Network
	name      string
	layerType network.LayerType
	inputs    []*Tensor
	params    any
	outputs   []*Tensor
}

var _ network.Layer = (*Layer)(nil)

// Tensor implements network.Tensor.
type Tensor struct {
	layer *Layer
	index int
	shape shapes.Shape
	value *folded
}

var _ network.Tensor = (*Tensor)(nil)

type constantParams struct {
	shape shapes.Shape
	flat  any
}

type sliceParams struct {
	start, size, stride []int
}

type reduceParams struct {
	op       network.ReduceOp
	axesMask uint32
	keepDims bool
}

type activationParams struct {
	activation  network.ActivationType
	alpha, beta float64
}

type matMulParams struct {
	transposeA, transposeB bool
}

// Name of the layer.
func (l *Layer) Name() string { return l.name }

// SetName of the layer, and hence of its output.
func (l *Layer) SetName(name string) { l.name = name }

// Type of the layer.
func (l *Layer) Type() network.LayerType { return l.layerType }

// NumOutputs of the layer. All graphnet layers have one output.
func (l *Layer) NumOutputs() int { return len(l.outputs) }

// Output returns the i-th output of the layer. It panics for an invalid index.
func (l *Layer) Output(i int) network.Tensor {
	if i < 0 || i >= len(l.outputs) {
		exceptions.Panicf("graphnet: layer %q has %d outputs, output #%d requested", l.name, len(l.outputs), i)
	}
	return l.outputs[i]
}

// Inputs of the layer. Runtime parameter inputs not set are nil.
func (l *Layer) Inputs() []*Tensor { return l.inputs }

// maxInputs returns the number of inputs accepted by SetInput, including runtime parameters.
func (l *Layer) maxInputs() int {
	switch l.layerType {
	case network.LayerTypeInput, network.LayerTypeConstant:
		return 0
	case network.LayerTypeShuffle, network.LayerTypeElementWise, network.LayerTypeGather, network.LayerTypeMatrixMultiply:
		return 2
	case network.LayerTypeSelect, network.LayerTypeConvolution:
		return 3
	case network.LayerTypeSlice:
		return 4
	case network.LayerTypeConcatenation:
		return len(l.inputs)
	default:
		return 1
	}
}

// SetInput implements network.Layer. The output shape is re-inferred, and if it fails the previous input is restored.
func (l *Layer) SetInput(i int, t network.Tensor) error {
	if i < 0 || i >= l.maxInputs() {
		return errors.Errorf("graphnet: %s layer %q doesn't accept input #%d", l.layerType, l.name, i)
	}
	gt, err := l.net.tensor(t, fmt.Sprintf("%s.SetInput(%d)", l.name, i))
	if err != nil {
		return err
	}
	previous := slices.Clone(l.inputs)
	for len(l.inputs) <= i {
		l.inputs = append(l.inputs, nil)
	}
	l.inputs[i] = gt
	if err = l.infer(); err != nil {
		l.inputs = previous
		return errors.WithMessagef(err, "graphnet: %s layer %q SetInput(%d, %q)", l.layerType, l.name, i, gt.Name())
	}
	return nil
}

// String implements fmt.Stringer.
func (l *Layer) String() string {
	inputNames := make([]string, 0, len(l.inputs))
	for _, input := range l.inputs {
		if input == nil {
			inputNames = append(inputNames, "_")
		} else {
			inputNames = append(inputNames, input.Name())
		}
	}
	desc := l.Description()
	if desc != "" {
		desc = " " + desc
	}
	return fmt.Sprintf("%s %q(%s) -> %s%s", l.layerType, l.name, strings.Join(inputNames, ", "), l.outputs[0].shape, desc)
}

// Description returns a short description of the layer parameters.
func (l *Layer) Description() string {
	switch p := l.params.(type) {
	case nil:
		return ""
	case constantParams:
		return ""
	case shapes.InputSpec:
		if p.Ranges != nil {
			return fmt.Sprintf("ranges=%v", p.Ranges)
		}
		return ""
	case sliceParams:
		return fmt.Sprintf("start=%v size=%v stride=%v", p.start, p.size, p.stride)
	case reduceParams:
		return fmt.Sprintf("op=%s axes=%b keepDims=%v", p.op, p.axesMask, p.keepDims)
	case activationParams:
		return fmt.Sprintf("%s alpha=%g beta=%g", p.activation, p.alpha, p.beta)
	case matMulParams:
		return fmt.Sprintf("transposeA=%v transposeB=%v", p.transposeA, p.transposeB)
	case network.ShuffleConfig:
		return fmt.Sprintf("first=%v reshape=%v second=%v", p.FirstTranspose, p.ReshapeDims, p.SecondTranspose)
	case int:
		return fmt.Sprintf("axis=%d", p)
	default:
		return fmt.Sprintf("%v", p)
	}
}

// Name of the tensor: the name of its layer.
func (t *Tensor) Name() string {
	if t.index == 0 {
		return t.layer.name
	}
	return fmt.Sprintf("%s:%d", t.layer.name, t.index)
}

// Shape of the tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// Layer that outputs the tensor.
func (t *Tensor) Layer() *Layer { return t.layer }

// String implements fmt.Stringer.
func (t *Tensor) String() string { return fmt.Sprintf("%s%s", t.Name(), t.shape) }

// Value returns the values of the tensor if they could be computed while building, as for the
// outputs of shape layers of static shapes or of constants. Only small integer or boolean tensors
// of rank <= 1 are folded.
func (t *Tensor) Value() (values []int, ok bool) {
	if t.value == nil || !t.value.allKnown() {
		return nil, false
	}
	return slices.Clone(t.value.values), true
}

// PartialValue returns the values of the tensor that could be computed while building: known[i]
// tells whether values[i] was computed.
func (t *Tensor) PartialValue() (values []int, known []bool, ok bool) {
	if t.value == nil {
		return nil, nil, false
	}
	return slices.Clone(t.value.values), slices.Clone(t.value.known), true
}

func newConstantParams(shape shapes.Shape, flat any) (constantParams, error) {
	if !shape.Ok() {
		return constantParams{}, errors.New("graphnet: constant with invalid shape")
	}
	if shapes.HasDynamicShape(shape) {
		return constantParams{}, errors.Errorf("graphnet: constant shape %s cannot be dynamic", shape)
	}
	v := reflect.ValueOf(flat)
	if v.Kind() != reflect.Slice {
		return constantParams{}, errors.Errorf("graphnet: constant values must be given as a slice, got %T", flat)
	}
	if v.Len() != shape.Size() {
		return constantParams{}, errors.Errorf("graphnet: constant of shape %s requires %d values, got %d", shape, shape.Size(), v.Len())
	}
	if dtype := dtypes.FromGoType(v.Type().Elem()); dtype != shape.DType {
		return constantParams{}, errors.Errorf("graphnet: constant of shape %s given values of type %T (dtype %s)", shape, flat, dtype)
	}
	return constantParams{shape: shape.Clone(), flat: flat}, nil
}

// folded returns the constant values, if the shape is foldable.
func (p constantParams) folded() *folded {
	if !foldable(p.shape) {
		return nil
	}
	v := reflect.ValueOf(p.flat)
	f := newFolded(v.Len())
	for ii := range v.Len() {
		elem := v.Index(ii)
		switch elem.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			f.set(ii, int(elem.Int()))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			f.set(ii, int(elem.Uint()))
		case reflect.Bool:
			f.set(ii, boolToInt(elem.Bool()))
		default:
			return nil
		}
	}
	return f
}

func shapesOf(tensors []*Tensor) []shapes.Shape {
	result := make([]shapes.Shape, len(tensors))
	for ii, t := range tensors {
		result[ii] = t.shape
	}
	return result
}

// infer computes the output shape and folded value of the layer from its inputs and parameters.
func (l *Layer) infer() (err error) {
	var shape shapes.Shape
	var value *folded
	var input0 *Tensor
	if len(l.inputs) > 0 {
		input0 = l.inputs[0]
	}
	switch l.layerType {
	case network.LayerTypeInput:
		shape = l.params.(shapes.InputSpec).Shape.Clone()

	case network.LayerTypeConstant:
		p := l.params.(constantParams)
		shape, value = p.shape, p.folded()

	case network.LayerTypeIdentity:
		shape, value = input0.shape, input0.value

	case network.LayerTypeCast:
		dtype := l.params.(dtypes.DType)
		shape = input0.shape.Clone()
		shape.DType = dtype
		if input0.value != nil && (dtype.IsInt() || dtype == dtypes.Bool) {
			value = input0.value.mapValues(func(v int) int {
				if dtype == dtypes.Bool {
					return boolToInt(v != 0)
				}
				return v
			})
		}

	case network.LayerTypeShuffle:
		shape, value, err = l.inferShuffle()

	case network.LayerTypeSlice:
		shape, value, err = l.inferSlice()

	case network.LayerTypeShape:
		rank := input0.shape.Rank()
		if rank == 0 {
			return errors.Errorf("cannot take the shape of scalar %q", input0.Name())
		}
		shape = shapes.Make(network.ShapeDType, rank)
		value = newFolded(rank)
		for axis, dim := range input0.shape.Dimensions {
			if dim != shapes.DynamicDim {
				value.set(axis, dim)
			}
		}

	case network.LayerTypeConcatenation:
		axis := l.params.(int)
		shape, err = shapeinference.Concatenate(shapesOf(l.inputs), axis)
		if err == nil && axis == 0 {
			value = concatFolded(l.inputs)
		}

	case network.LayerTypeGather:
		axis := l.params.(int)
		shape, err = shapeinference.Gather(input0.shape, l.inputs[1].shape, axis)
		if err == nil && axis == 0 {
			value = gatherFolded(input0.value, l.inputs[1].value)
		}

	case network.LayerTypeReduce:
		p := l.params.(reduceParams)
		shape, err = shapeinference.Reduce(input0.shape, p.axesMask, p.keepDims)
		if err == nil && input0.shape.Rank() == 1 && p.axesMask == 1 {
			value = reduceFolded(input0.value, p.op)
		}

	case network.LayerTypeElementWise:
		op := l.params.(network.ElementWiseOp)
		shape, err = shapeinference.ElementWise(op, input0.shape, l.inputs[1].shape)
		if err == nil && foldable(shape) {
			value = elementWiseFolded(op, input0.value, l.inputs[1].value, shape.Size())
		}

	case network.LayerTypeUnary:
		op := l.params.(network.UnaryOp)
		shape, err = shapeinference.Unary(op, input0.shape)
		if err == nil && input0.value != nil {
			value = unaryFolded(op, input0.value)
		}

	case network.LayerTypeActivation:
		shape, err = shapeinference.Activation(l.params.(activationParams).activation, input0.shape)

	case network.LayerTypeSelect:
		shape, err = shapeinference.Select(input0.shape, l.inputs[1].shape, l.inputs[2].shape)
		if err == nil && foldable(shape) {
			value = selectFolded(input0.value, l.inputs[1].value, l.inputs[2].value, shape.Size())
		}

	case network.LayerTypeMatrixMultiply:
		p := l.params.(matMulParams)
		shape, err = shapeinference.MatrixMultiply(input0.shape, p.transposeA, l.inputs[1].shape, p.transposeB)

	case network.LayerTypeConvolution:
		bias := shapes.Invalid()
		if len(l.inputs) > 2 && l.inputs[2] != nil {
			bias = l.inputs[2].shape
		}
		shape, err = shapeinference.Convolution(input0.shape, l.inputs[1].shape, bias,
			l.params.(network.ConvolutionConfig), l.net.implicitBatch)

	case network.LayerTypePooling:
		shape, err = shapeinference.Pooling(input0.shape, l.params.(network.PoolingConfig))

	default:
		return errors.Errorf("layer type %s not supported", l.layerType)
	}
	if err != nil {
		return err
	}
	out := l.outputs[0]
	out.shape = shape
	out.value = nil
	if value != nil && foldable(shape) && len(value.values) == shape.Size() {
		out.value = value
	}
	return nil
}

// runtimeParam returns the values of the runtime parameter input i, which must be a 1D integer tensor of
// the given length. Values not known are returned as shapes.DynamicDim.
func (l *Layer) runtimeParam(i, length int) (values []int, allKnown bool, err error) {
	t := l.inputs[i]
	if length < 0 || !t.shape.DType.IsInt() || t.shape.Rank() != 1 || t.shape.Dimensions[0] != length {
		return nil, false, errors.Errorf("runtime parameter #%d must be an integer 1D tensor with %d elements, got %s",
			i, length, t.shape)
	}
	values = make([]int, length)
	allKnown = true
	for ii := range values {
		if t.value == nil || !t.value.known[ii] {
			values[ii] = shapes.DynamicDim
			allKnown = false
		} else {
			values[ii] = t.value.values[ii]
		}
	}
	return
}

func (l *Layer) hasRuntimeParam(i int) bool {
	return len(l.inputs) > i && l.inputs[i] != nil
}

func (l *Layer) inferShuffle() (shape shapes.Shape, value *folded, err error) {
	config := l.params.(network.ShuffleConfig)
	input := l.inputs[0]
	if !l.hasRuntimeParam(1) {
		shape, err = shapeinference.Shuffle(input.shape, config)
	} else {
		shape = input.shape
		if config.FirstTranspose != nil {
			if shape, err = shapeinference.Transpose(shape, config.FirstTranspose); err != nil {
				return
			}
		}
		var dims []int
		dims, _, err = l.runtimeParam(1, l.inputs[1].shape.Size())
		if err != nil {
			return
		}
		for _, dim := range dims {
			if dim != shapes.DynamicDim && dim <= 0 {
				err = errors.Errorf("runtime reshape dimensions %v are invalid", dims)
				return
			}
		}
		newShape := shape.WithDimensions(dims...)
		if size, newSize := shape.Size(), newShape.Size(); size != shapes.DynamicDim && newSize != shapes.DynamicDim && size != newSize {
			err = errors.Errorf("runtime reshape of %s to %s changes the number of elements", shape, newShape)
			return
		}
		shape = newShape
		if config.SecondTranspose != nil {
			if shape, err = shapeinference.Transpose(shape, config.SecondTranspose); err != nil {
				return
			}
		}
	}
	if err != nil {
		return
	}
	if input.value != nil && isIdentityPermutation(config.FirstTranspose) && isIdentityPermutation(config.SecondTranspose) {
		value = input.value
	}
	return
}

func (l *Layer) inferSlice() (shape shapes.Shape, value *folded, err error) {
	p := l.params.(sliceParams)
	input := l.inputs[0]
	rank := input.shape.Rank()
	params := [][]int{slices.Clone(p.start), slices.Clone(p.size), slices.Clone(p.stride)}
	runtime, allKnown := false, true
	for ii := range params {
		if !l.hasRuntimeParam(ii + 1) {
			continue
		}
		var known bool
		if params[ii], known, err = l.runtimeParam(ii+1, rank); err != nil {
			return
		}
		runtime = true
		allKnown = allKnown && known
	}
	start, size, stride := params[0], params[1], params[2]
	if !runtime {
		shape, err = shapeinference.Slice(input.shape, start, size, stride)
	} else {
		if len(start) != rank || len(size) != rank || len(stride) != rank {
			err = errors.Errorf("Slice(%s) requires start (%v), size (%v) and stride (%v) to have one value per axis",
				input.shape, start, size, stride)
			return
		}
		for _, dim := range size {
			if dim != shapes.DynamicDim && dim <= 0 {
				err = errors.Errorf("Slice(%s): invalid size %v", input.shape, size)
				return
			}
		}
		shape = input.shape.WithDimensions(size...)
	}
	if err != nil || !allKnown || rank != 1 || input.value == nil || size[0] == shapes.DynamicDim {
		return
	}
	value = newFolded(size[0])
	for ii := range size[0] {
		pos := start[0] + ii*stride[0]
		if pos >= 0 && pos < len(input.value.values) && input.value.known[pos] {
			value.set(ii, input.value.values[pos])
		}
	}
	return
}

func isIdentityPermutation(permutation []int) bool {
	for ii, axis := range permutation {
		if ii != axis {
			return false
		}
	}
	return true
}
