// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package impl

import (
	"strings"
	"testing"

	. "github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/network"
	"github.com/gomlx/torchlower/network/graphnet"
	"github.com/gomlx/torchlower/types/shapes"
)

// Aliases
var (
	MS = shapes.Make
	D  = shapes.DynamicDim
)

var testTarget = converters.Acc("test")

func newNet(t *testing.T, config string) *graphnet.Network {
	return must.M1(graphnet.New(config))
}

func input(t *testing.T, net network.Network, name string, dtype DType, dims ...int) network.Tensor {
	return must.M1(net.AddInput(shapes.InputSpec{Name: name, Shape: MS(dtype, dims...)}))
}

// zeros returns a Float32 constant tensor.
func zeros(t *testing.T, net network.Network, dims ...int) network.Tensor {
	shape := MS(Float32, dims...)
	return must.M1(net.AddConstant(shape, make([]float32, shape.Size()))).Output(0)
}

func requireDims(t *testing.T, tensor network.Tensor, err error, dims ...int) {
	t.Helper()
	require.NoError(t, err)
	if len(dims) == 0 {
		require.True(t, tensor.Shape().IsScalar(), "shape %s", tensor.Shape())
		return
	}
	require.Equal(t, dims, tensor.Shape().Dimensions, "shape %s", tensor.Shape())
}

func countLayers(net *graphnet.Network, layerType network.LayerType) int {
	var count int
	for _, l := range net.Layers() {
		if l.Type() == layerType {
			count++
		}
	}
	return count
}

func TestSliceLen(t *testing.T) {
	require.Equal(t, 4, SliceLen(0, 10, 3))
	require.Equal(t, 10, SliceLen(0, 10, 1))
	require.Equal(t, 1, SliceLen(9, 10, 5))
	require.Equal(t, 0, SliceLen(5, 2, 1))
}

func TestSlice(t *testing.T) {
	net := newNet(t, "")
	x := input(t, net, "x", Float32, 4, 10)
	out, err := Slice(net, testTarget, converters.SourceAcc, "slice", x, 0, 10, 3, 1)
	requireDims(t, out, err, 4, 4)
	require.Equal(t, "[Slice]-[acc_acc.test]-[slice]", out.Name())

	out, err = Slice(net, testTarget, converters.SourceAcc, "slice_neg", x, -3, 100, 1, -1)
	requireDims(t, out, err, 4, 3)

	_, err = Slice(net, testTarget, converters.SourceAcc, "zero_step", x, 0, 10, 0, 1)
	var configErr *converters.UnsupportedConfigurationError
	require.ErrorAs(t, err, &configErr)
	require.Equal(t, "step", configErr.Field)

	_, err = Slice(net, testTarget, converters.SourceAcc, "empty", x, 5, 2, 1, 1)
	require.ErrorAs(t, err, &configErr)

	_, err = Slice(net, testTarget, converters.SourceAcc, "bad_dim", x, 0, 1, 1, 2)
	var operandErr *converters.InvalidOperandError
	require.ErrorAs(t, err, &operandErr)
}

func TestSliceDynamic(t *testing.T) {
	net := newNet(t, "")
	x := input(t, net, "x", Float32, D, 10)
	out, err := Slice(net, testTarget, converters.SourceATen, "slice", x, 0, 10, 3, 1)
	requireDims(t, out, err, D, 4)
	require.Equal(t, 1, countLayers(net, network.LayerTypeShape))
	require.Equal(t, 1, countLayers(net, network.LayerTypeSelect))

	// Slicing the dynamic axis itself is not supported.
	_, err = Slice(net, testTarget, converters.SourceATen, "slice_batch", x, 0, 2, 1, 0)
	var configErr *converters.UnsupportedConfigurationError
	require.ErrorAs(t, err, &configErr)

	// The static part of the runtime shape is resolved.
	shape := must.M1(ShapeWithDynamicShape(net, testTarget, converters.SourceATen, "shape", []int{D, 4}, out))
	values, known, ok := shape.(*graphnet.Tensor).PartialValue()
	require.True(t, ok)
	require.Equal(t, []bool{false, true}, known)
	require.Equal(t, 4, values[1])
	_, err = ShapeWithDynamicShape(net, testTarget, converters.SourceATen, "shape", []int{4}, out)
	require.Error(t, err)
}

func TestSelect(t *testing.T) {
	net := newNet(t, "")
	x := input(t, net, "x", Float32, 2, 3, 4)
	out, err := Select(net, testTarget, converters.SourceATen, "select", x, 1, -1)
	requireDims(t, out, err, 2, 4)
	_, err = Select(net, testTarget, converters.SourceATen, "select", x, 1, 3)
	require.Error(t, err)
}

func TestReduce(t *testing.T) {
	net := newNet(t, "")
	x := input(t, net, "x", Float32, 2, 3, 4)
	out, err := Sum(net, testTarget, converters.SourceAcc, "sum", x, nil, false)
	requireDims(t, out, err)
	out, err = Mean(net, testTarget, converters.SourceAcc, "mean", x, []int{1}, true)
	requireDims(t, out, err, 2, 1, 4)
	out, err = Sum(net, testTarget, converters.SourceAcc, "sum_neg", x, []int{-1, 0}, false)
	requireDims(t, out, err, 3)

	mask, err := AxesMask(net, testTarget, x, []int{0, 2})
	require.NoError(t, err)
	require.Equal(t, uint32(0b101), mask)
	mask, err = AxesMask(net, testTarget, x, []int{})
	require.NoError(t, err)
	require.Equal(t, uint32(0b111), mask)
	out, err = Sum(net, testTarget, converters.SourceAcc, "sum_empty", x, []int{}, false)
	requireDims(t, out, err)
}

func TestTransposeAndPermute(t *testing.T) {
	net := newNet(t, "")
	x := input(t, net, "x", Float32, 2, 3, 4)
	out, err := Transpose(net, testTarget, converters.SourceATen, "reverse", x)
	requireDims(t, out, err, 4, 3, 2)
	out, err = Transpose(net, testTarget, converters.SourceATen, "swap", x, 0, 2)
	requireDims(t, out, err, 4, 3, 2)
	out, err = Transpose(net, testTarget, converters.SourceATen, "swap_neg", x, -1, 1)
	requireDims(t, out, err, 2, 4, 3)
	_, err = Transpose(net, testTarget, converters.SourceATen, "bad", x, 0)
	require.Error(t, err)

	out, err = Permute(net, testTarget, converters.SourceATen, "permute", x, []int{1, 2, 0})
	requireDims(t, out, err, 3, 4, 2)
	_, err = Permute(net, testTarget, converters.SourceATen, "permute_short", x, []int{1, 0})
	require.Error(t, err)
}

func TestSqueezeUnsqueeze(t *testing.T) {
	net := newNet(t, "")
	x := input(t, net, "x", Float32, 1, 3, 1)
	out, err := Squeeze(net, testTarget, converters.SourceATen, "squeeze", x, nil)
	requireDims(t, out, err, 3)
	dim := 0
	out, err = Squeeze(net, testTarget, converters.SourceATen, "squeeze_0", x, &dim)
	requireDims(t, out, err, 3, 1)
	dim = 1
	out, err = Squeeze(net, testTarget, converters.SourceATen, "squeeze_1", x, &dim)
	requireDims(t, out, err, 1, 3, 1)

	scalar := must.M1(Squeeze(net, testTarget, converters.SourceATen, "squeeze_all", input(t, net, "ones", Float32, 1, 1), nil))
	require.True(t, scalar.Shape().IsScalar())

	y := input(t, net, "y", Float32, 3)
	out, err = Unsqueeze(net, testTarget, converters.SourceATen, "unsqueeze", y, 0)
	requireDims(t, out, err, 1, 3)
	out, err = Unsqueeze(net, testTarget, converters.SourceATen, "unsqueeze_last", y, -1)
	requireDims(t, out, err, 3, 1)

	// Two dynamic axes: the reshape takes its dimensions from a runtime shape.
	z := input(t, net, "z", Float32, D, D, 1)
	out, err = Squeeze(net, testTarget, converters.SourceATen, "squeeze_dynamic", z, nil)
	requireDims(t, out, err, D, D)
	dynamicDim := 0
	_, err = Squeeze(net, testTarget, converters.SourceATen, "squeeze_dynamic_dim", z, &dynamicDim)
	var configErr *converters.UnsupportedConfigurationError
	require.ErrorAs(t, err, &configErr)
}

func TestExpand(t *testing.T) {
	net := newNet(t, "")
	x := input(t, net, "x", Float32, 1, 3)
	out, err := Expand(net, testTarget, converters.SourceAcc, "expand", x, []int{4, -1})
	requireDims(t, out, err, 4, 3)
	out, err = Expand(net, testTarget, converters.SourceAcc, "expand_rank", x, []int{2, 4, 3})
	requireDims(t, out, err, 2, 4, 3)
	_, err = Expand(net, testTarget, converters.SourceAcc, "expand_bad", x, []int{4, 5})
	require.Error(t, err)
}

func TestImplicitBatch(t *testing.T) {
	net := newNet(t, "implicit_batch")
	x := input(t, net, "x", Float32, 3, 4)
	require.Equal(t, 3, Rank(net, x))

	var batchErr *converters.BatchDimensionError
	_, err := Sum(net, testTarget, converters.SourceAcc, "sum_batch", x, []int{0}, false)
	require.ErrorAs(t, err, &batchErr)
	out, err := Sum(net, testTarget, converters.SourceAcc, "sum", x, []int{1}, false)
	requireDims(t, out, err, 4)

	out, err = Permute(net, testTarget, converters.SourceAcc, "permute", x, []int{0, 2, 1})
	requireDims(t, out, err, 4, 3)
	_, err = Permute(net, testTarget, converters.SourceAcc, "permute_batch", x, []int{1, 0, 2})
	require.ErrorAs(t, err, &batchErr)

	out, err = Unsqueeze(net, testTarget, converters.SourceAcc, "unsqueeze", x, 1)
	requireDims(t, out, err, 1, 3, 4)
	_, err = Unsqueeze(net, testTarget, converters.SourceAcc, "unsqueeze_batch", x, 0)
	require.ErrorAs(t, err, &batchErr)

	out, err = Slice(net, testTarget, converters.SourceAcc, "slice", x, 1, 3, 1, -1)
	requireDims(t, out, err, 3, 2)
	_, err = Slice(net, testTarget, converters.SourceAcc, "slice_batch", x, 0, 1, 1, 0)
	require.ErrorAs(t, err, &batchErr)

	out, err = Reshape(net, testTarget, converters.SourceAcc, "reshape", x, []any{-1, 12})
	requireDims(t, out, err, 12)
}

func TestReshapeWithRuntimeDims(t *testing.T) {
	net := newNet(t, "")
	x := input(t, net, "x", Float32, D, 3, 4)
	batch, err := SymSize(net, testTarget, converters.SourceATen, "sym_size", x, 0)
	requireDims(t, batch, err, 1)
	out, err := Reshape(net, testTarget, converters.SourceATen, "view", x, []any{batch, 12})
	requireDims(t, out, err, D, 12)

	numel, err := SymNumel(net, testTarget, converters.SourceATen, "sym_numel", x)
	requireDims(t, numel, err, 1)
}

func TestEmbedding(t *testing.T) {
	net := newNet(t, "")
	indices := input(t, net, "indices", Int32, D, 5)
	table := zeros(t, net, 10, 4)
	out, err := Embedding(net, testTarget, converters.SourceATen, "embedding", indices, table, DefaultEmbeddingOptions())
	requireDims(t, out, err, D, 5, 4)
	require.True(t, strings.HasSuffix(out.Name(), "[embedding_gather]"))

	maxNorm := 1.0
	for field, opts := range map[string]EmbeddingOptions{
		"max_norm":           {MaxNorm: &maxNorm, NormType: 2},
		"norm_type":          {NormType: 1},
		"scale_grad_by_freq": {NormType: 2, ScaleGradByFreq: true},
		"sparse":             {NormType: 2, Sparse: true},
	} {
		_, err = Embedding(net, testTarget, converters.SourceATen, "embedding", indices, table, opts)
		var configErr *converters.UnsupportedConfigurationError
		require.ErrorAs(t, err, &configErr)
		require.Equal(t, field, configErr.Field)
	}

	_, err = Embedding(net, testTarget, converters.SourceATen, "embedding", zeros(t, net, 5), table, DefaultEmbeddingOptions())
	require.Error(t, err)
}

func TestElementWise(t *testing.T) {
	net := newNet(t, "")
	x := input(t, net, "x", Float32, 2, 3)
	y := input(t, net, "y", Float32, 3)
	out, err := ElementWise(net, testTarget, converters.SourceAcc, "add", x, y, network.ElementWiseSum)
	requireDims(t, out, err, 2, 3)

	// Go constants take the dtype of the tensor, integer tensors are promoted by non-integral constants.
	i := input(t, net, "i", Int32, 3)
	out, err = ElementWise(net, testTarget, converters.SourceAcc, "mul", i, 2, network.ElementWiseProd)
	require.NoError(t, err)
	require.Equal(t, Int32, out.Shape().DType)
	out, err = ElementWise(net, testTarget, converters.SourceAcc, "mul_float", i, 0.5, network.ElementWiseProd)
	require.NoError(t, err)
	require.Equal(t, Float32, out.Shape().DType)
	out, err = ElementWise(net, testTarget, converters.SourceAcc, "mixed", i, x, network.ElementWiseSum)
	require.NoError(t, err)
	require.Equal(t, MS(Float32, 2, 3), out.Shape())

	_, err = ElementWise(net, testTarget, converters.SourceAcc, "constants", 1, 2, network.ElementWiseSum)
	var operandErr *converters.InvalidOperandError
	require.ErrorAs(t, err, &operandErr)

	minValue, maxValue := -1.0, 1.0
	out, err = Clamp(net, testTarget, converters.SourceAcc, "clamp", x, &minValue, &maxValue)
	requireDims(t, out, err, 2, 3)
	_, err = Clamp(net, testTarget, converters.SourceAcc, "clamp", x, nil, nil)
	require.Error(t, err)

	out, err = Rsqrt(net, testTarget, converters.SourceATen, "rsqrt", x)
	requireDims(t, out, err, 2, 3)

	same := must.M1(Cast(net, testTarget, converters.SourceATen, "cast", x, Float32))
	require.Equal(t, x, same)
	out, err = Cast(net, testTarget, converters.SourceATen, "cast", x, Float16)
	require.NoError(t, err)
	require.Equal(t, Float16, out.Shape().DType)
}

func TestTruncDivAndFmod(t *testing.T) {
	net := newNet(t, "")
	x := input(t, net, "x", Float32, 3)
	numLayers := len(net.Layers())
	out, err := TruncDiv(net, testTarget, converters.SourceATen, "trunc_div", x, 2.0)
	requireDims(t, out, err, 3)
	// constant, prod, sign, 2*abs, floor_div, prod.
	require.Equal(t, numLayers+7, len(net.Layers()))
	require.Equal(t, 1, countLayers(net, network.LayerTypeConstant))
	require.Equal(t, "[ElementWise]-[aten_acc.test]-[trunc_div]", out.Name())

	out, err = Fmod(net, testTarget, converters.SourceATen, "fmod", x, 2.0)
	requireDims(t, out, err, 3)
	require.Equal(t, "[ElementWise]-[aten_acc.test]-[fmod]", out.Name())

	y := input(t, net, "y", Int32, 3)
	out, err = TruncDiv(net, testTarget, converters.SourceATen, "trunc_div_int", y, 3)
	require.NoError(t, err)
	require.Equal(t, Int32, out.Shape().DType)
}

func TestActivations(t *testing.T) {
	net := newNet(t, "")
	x := input(t, net, "x", Float32, 2, 3)
	for _, fn := range []func(network.Network, converters.OpKey, converters.SourceIR, string, any) (network.Tensor, error){
		Relu, Sigmoid, Tanh,
	} {
		out, err := fn(net, testTarget, converters.SourceAcc, "act", x)
		requireDims(t, out, err, 2, 3)
	}
	out, err := LeakyRelu(net, testTarget, converters.SourceAcc, "leaky", x, DefaultLeakyReluSlope)
	requireDims(t, out, err, 2, 3)
	out, err = HardTanh(net, testTarget, converters.SourceAcc, "hardtanh", x, -1, 1)
	requireDims(t, out, err, 2, 3)
	_, err = HardTanh(net, testTarget, converters.SourceAcc, "hardtanh", x, 1, -1)
	require.Error(t, err)
	_, err = Relu(net, testTarget, converters.SourceAcc, "relu", 1.0)
	var operandErr *converters.InvalidOperandError
	require.ErrorAs(t, err, &operandErr)
}

func TestLinear(t *testing.T) {
	net := newNet(t, "")
	x := input(t, net, "x", Float32, 2, 3)
	out, err := Linear(net, testTarget, converters.SourceAcc, "fc", x, zeros(t, net, 4, 3), zeros(t, net, 4))
	requireDims(t, out, err, 2, 4)
	x3 := input(t, net, "x3", Float32, 5, 2, 3)
	out, err = Linear(net, testTarget, converters.SourceAcc, "fc3", x3, zeros(t, net, 4, 3), nil)
	requireDims(t, out, err, 5, 2, 4)
	_, err = Linear(net, testTarget, converters.SourceAcc, "fc_bad", x, zeros(t, net, 4), nil)
	require.Error(t, err)

	implicit := newNet(t, "implicit_batch")
	v := input(t, implicit, "v", Float32, 3)
	out, err = Linear(implicit, testTarget, converters.SourceAcc, "fc", v, zeros(t, implicit, 4, 3), zeros(t, implicit, 4))
	requireDims(t, out, err, 4)
}

func TestConvolution(t *testing.T) {
	net := newNet(t, "")
	x := input(t, net, "x", Float32, D, 3, 8, 8)
	out, err := Convolution(net, testTarget, converters.SourceAcc, "conv", x, zeros(t, net, 6, 3, 3, 3), zeros(t, net, 6),
		ConvolutionOptions{Padding: []int{1}})
	requireDims(t, out, err, D, 6, 8, 8)
	out, err = Convolution(net, testTarget, converters.SourceAcc, "conv_stride", x, zeros(t, net, 6, 3, 3, 3), nil,
		ConvolutionOptions{Stride: []int{2, 2}})
	requireDims(t, out, err, D, 6, 3, 3)
	_, err = Convolution(net, testTarget, converters.SourceAcc, "conv_bad", x, zeros(t, net, 6, 3, 3, 3), nil,
		ConvolutionOptions{Stride: []int{1, 1, 1}})
	require.Error(t, err)

	x1 := input(t, net, "x1", Float32, 2, 3, 10)
	out, err = Convolution1D(net, testTarget, converters.SourceAcc, "conv1d", x1, zeros(t, net, 6, 3, 3), nil, ConvolutionOptions{})
	requireDims(t, out, err, 2, 6, 8)
	out, err = Convolution1D(net, testTarget, converters.SourceAcc, "conv1d_padded", x1, zeros(t, net, 6, 3, 3), zeros(t, net, 6),
		ConvolutionOptions{Padding: []int{1}, Stride: []int{2}})
	requireDims(t, out, err, 2, 6, 5)
}

func TestPooling(t *testing.T) {
	net := newNet(t, "")
	x := input(t, net, "x", Float32, D, 3, 8, 8)
	out, err := MaxPool(net, testTarget, converters.SourceAcc, "max_pool", x, PoolingOptions{KernelSize: []int{2, 2}})
	requireDims(t, out, err, D, 3, 4, 4)
	out, err = MaxPool(net, testTarget, converters.SourceAcc, "max_pool_ceil", x,
		PoolingOptions{KernelSize: []int{3, 3}, Stride: []int{2}, CeilMode: true})
	requireDims(t, out, err, D, 3, 4, 4)
	_, err = MaxPool(net, testTarget, converters.SourceAcc, "max_pool_dilation", x,
		PoolingOptions{KernelSize: []int{2, 2}, Dilation: []int{2}})
	var configErr *converters.UnsupportedConfigurationError
	require.ErrorAs(t, err, &configErr)
	require.Equal(t, "dilation", configErr.Field)

	out, err = AdaptiveAvgPool(net, testTarget, converters.SourceAcc, "adaptive", x, []int{2, 2})
	requireDims(t, out, err, D, 3, 2, 2)
	out, err = AdaptiveAvgPool(net, testTarget, converters.SourceAcc, "adaptive_keep", x, []int{3, -1})
	requireDims(t, out, err, D, 3, 3, 8)

	dynamic := input(t, net, "dynamic", Float32, 1, 3, D, 8)
	_, err = AdaptiveAvgPool(net, testTarget, converters.SourceAcc, "adaptive_dynamic", dynamic, []int{2, 2})
	require.ErrorAs(t, err, &configErr)
}

func TestBatchNorm(t *testing.T) {
	net := newNet(t, "")
	x := input(t, net, "x", Float32, D, 3, 4, 4)
	out, err := BatchNorm(net, testTarget, converters.SourceAcc, "bn", x, nil, nil, zeros(t, net, 3), zeros(t, net, 3),
		DefaultBatchNormOptions())
	requireDims(t, out, err, D, 3, 4, 4)
	require.Equal(t, "[ElementWise]-[acc_acc.test]-[bn_add]", out.Name())

	// Training is ignored.
	opts := DefaultBatchNormOptions()
	opts.Training = true
	out, err = BatchNorm(net, testTarget, converters.SourceAcc, "bn_training", x, zeros(t, net, 3), zeros(t, net, 3),
		zeros(t, net, 3), zeros(t, net, 3), opts)
	requireDims(t, out, err, D, 3, 4, 4)

	_, err = BatchNorm(net, testTarget, converters.SourceAcc, "bn_no_stats", x, nil, nil, nil, zeros(t, net, 3), opts)
	require.Error(t, err)
	_, err = BatchNorm(net, testTarget, converters.SourceAcc, "bn_wrong_channels", x, nil, nil, zeros(t, net, 4), zeros(t, net, 4), opts)
	require.Error(t, err)

	implicit := newNet(t, "implicit_batch")
	y := input(t, implicit, "y", Float32, 3, 4)
	out, err = BatchNorm(implicit, testTarget, converters.SourceAcc, "bn", y, nil, nil, zeros(t, implicit, 3), zeros(t, implicit, 3),
		DefaultBatchNormOptions())
	requireDims(t, out, err, 3, 4)
}

func TestConcatenate(t *testing.T) {
	net := newNet(t, "")
	x := input(t, net, "x", Float32, 2, 3)
	y := input(t, net, "y", Int32, 2, 1)
	out, err := Concatenate(net, testTarget, converters.SourceAcc, "cat", []any{x, y}, -1)
	requireDims(t, out, err, 2, 4)
	require.Equal(t, Float32, out.Shape().DType)
	_, err = Concatenate(net, testTarget, converters.SourceAcc, "cat", []any{1, 2}, 0)
	require.Error(t, err)
}
