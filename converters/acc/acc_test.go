// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package acc

import (
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

func newRegistry(t *testing.T) *converters.Registry {
	r := converters.NewRegistry()
	require.NoError(t, Register(r))
	r.Freeze()
	return r
}

// dispatch calls the acc converter name with kwargs and returns its only output.
func dispatch(t *testing.T, r *converters.Registry, net network.Network, name string, kwargs map[string]any) (network.Tensor, error) {
	outputs, err := r.Dispatch(net, converters.Invocation{Target: converters.Acc(name), Kwargs: kwargs, Name: name + "_node"})
	if err != nil {
		return nil, err
	}
	require.Len(t, outputs, 1)
	return outputs[0], nil
}

func zeros(net network.Network, dims ...int) network.Tensor {
	shape := MS(Float32, dims...)
	return must.M1(net.AddConstant(shape, make([]float32, shape.Size()))).Output(0)
}

func TestRegister(t *testing.T) {
	r := newRegistry(t)
	require.Equal(t, len(table), r.Len())
	for _, name := range []string{"add", "fmod", "slice_tensor", "max_poolnd", "adaptive_avg_poolnd", "to_dtype"} {
		require.True(t, r.Has(converters.Acc(name)), name)
	}

	// Registering twice is a no-op.
	r2 := converters.NewRegistry()
	require.NoError(t, Register(r2))
	require.NoError(t, Register(r2))
	require.Equal(t, len(table), r2.Len())
}

func TestElementWise(t *testing.T) {
	r := newRegistry(t)
	net := must.M1(graphnet.New(""))
	x := must.M1(net.AddInput(shapes.InputSpec{Name: "x", Shape: MS(Float32, D, 3)}))
	i := must.M1(net.AddInput(shapes.InputSpec{Name: "i", Shape: MS(Int32, 3)}))

	for _, name := range []string{"add", "sub", "mul", "floor_div", "fmod"} {
		out, err := dispatch(t, r, net, name, map[string]any{"input": x, "other": 2.0})
		require.NoError(t, err, name)
		require.Equal(t, []int{D, 3}, out.Shape().Dimensions, name)
		require.Equal(t, "[ElementWise]-[acc_acc."+name+"]-["+name+"_node]", out.Name())
	}
	out, err := dispatch(t, r, net, "pow", map[string]any{"input": x, "exponent": 2})
	require.NoError(t, err)
	require.Equal(t, []int{D, 3}, out.Shape().Dimensions)

	// True division of integers is done in floats.
	out, err = dispatch(t, r, net, "div", map[string]any{"input": i, "other": i})
	require.NoError(t, err)
	require.Equal(t, Float32, out.Shape().DType)
	out, err = dispatch(t, r, net, "floor_div", map[string]any{"input": i, "other": 2})
	require.NoError(t, err)
	require.Equal(t, Int32, out.Shape().DType)

	_, err = dispatch(t, r, net, "add", map[string]any{"input": x})
	var operandErr *converters.InvalidOperandError
	require.ErrorAs(t, err, &operandErr)
	require.Equal(t, "other", operandErr.Operand)
}

func TestActivations(t *testing.T) {
	r := newRegistry(t)
	net := must.M1(graphnet.New(""))
	x := must.M1(net.AddInput(shapes.InputSpec{Name: "x", Shape: MS(Float32, 2, 3)}))
	for _, name := range []string{"relu", "sigmoid", "tanh", "hardtanh", "leaky_relu"} {
		out, err := dispatch(t, r, net, name, map[string]any{"input": x})
		require.NoError(t, err, name)
		require.Equal(t, []int{2, 3}, out.Shape().Dimensions)
	}
	_, err := dispatch(t, r, net, "hardtanh", map[string]any{"input": x, "min_val": 2.0, "max_val": 1.0})
	require.Error(t, err)
	_, err = dispatch(t, r, net, "relu", map[string]any{})
	require.Error(t, err)
}

func TestShapeOps(t *testing.T) {
	r := newRegistry(t)
	net := must.M1(graphnet.New(""))
	x := must.M1(net.AddInput(shapes.InputSpec{Name: "x", Shape: MS(Float32, 2, 3, 4)}))

	testCases := []struct {
		name   string
		kwargs map[string]any
		want   []int
	}{
		{"reshape", map[string]any{"input": x, "shape": []int{6, -1}}, []int{6, 4}},
		{"reshape", map[string]any{"input": x, "shape": []any{int64(2), 12}}, []int{2, 12}},
		{"permute", map[string]any{"input": x, "permutation": []int{2, 0, 1}}, []int{4, 2, 3}},
		{"squeeze", map[string]any{"input": zeros(net, 1, 3, 1)}, []int{3}},
		{"squeeze", map[string]any{"input": zeros(net, 1, 3, 1), "dim": 0}, []int{3, 1}},
		{"unsqueeze", map[string]any{"input": x, "dim": -1}, []int{2, 3, 4, 1}},
		{"slice_tensor", map[string]any{"input": x, "dim": 2, "start": 1, "stop": nil, "step": 2}, []int{2, 3, 2}},
		{"slice_tensor", map[string]any{"input": x, "dim": 1, "stop": -1}, []int{2, 2, 4}},
		{"sum", map[string]any{"input": x, "dim": 1, "keepdim": true}, []int{2, 1, 4}},
		{"mean", map[string]any{"input": x, "dim": []int{0, 2}}, []int{3}},
		{"cat", map[string]any{"tensors": []network.Tensor{x, x}, "dim": 1}, []int{2, 6, 4}},
		{"cat", map[string]any{"tensors": []any{x, x}}, []int{4, 3, 4}},
		{"expand", map[string]any{"input": zeros(net, 3, 1), "sizes": []int{2, 3, 5}}, []int{2, 3, 5}},
	}
	for _, tc := range testCases {
		out, err := dispatch(t, r, net, tc.name, tc.kwargs)
		require.NoError(t, err, tc.name)
		require.Equal(t, tc.want, out.Shape().Dimensions, "%s(%v)", tc.name, tc.kwargs)
	}

	out, err := dispatch(t, r, net, "sum", map[string]any{"input": x})
	require.NoError(t, err)
	require.True(t, out.Shape().IsScalar())
}

func TestToDType(t *testing.T) {
	r := newRegistry(t)
	net := must.M1(graphnet.New(""))
	x := must.M1(net.AddInput(shapes.InputSpec{Name: "x", Shape: MS(Float32, 2)}))
	for dtype, want := range map[any]DType{
		Float16:         Float16,
		"torch.float16": Float16,
		"half":          Float16,
		"int32":         Int32,
		"torch.int":     Int32,
		"Bool":          Bool,
	} {
		out, err := dispatch(t, r, net, "to_dtype", map[string]any{"input": x, "dtype": dtype})
		require.NoError(t, err)
		require.Equal(t, want, out.Shape().DType, "dtype=%v", dtype)
	}
	same := must.M1(dispatch(t, r, net, "to_dtype", map[string]any{"input": x, "dtype": "float32"}))
	require.Equal(t, x, same)
	_, err := dispatch(t, r, net, "to_dtype", map[string]any{"input": x, "dtype": "quaternion"})
	require.Error(t, err)
}

func TestNN(t *testing.T) {
	r := newRegistry(t)
	net := must.M1(graphnet.New(""))
	image := must.M1(net.AddInput(shapes.InputSpec{Name: "image", Shape: MS(Float32, D, 3, 8, 8)}))
	sequence := must.M1(net.AddInput(shapes.InputSpec{Name: "sequence", Shape: MS(Float32, D, 3, 10)}))
	features := must.M1(net.AddInput(shapes.InputSpec{Name: "features", Shape: MS(Float32, D, 3)}))
	tokens := must.M1(net.AddInput(shapes.InputSpec{Name: "tokens", Shape: MS(Int32, D, 7)}))

	testCases := []struct {
		name   string
		kwargs map[string]any
		want   []int
	}{
		{"linear", map[string]any{"input": features, "weight": zeros(net, 5, 3), "bias": zeros(net, 5)}, []int{D, 5}},
		{"convnd", map[string]any{"input": image, "weight": zeros(net, 4, 3, 3, 3), "bias": nil,
			"stride": []int{1, 1}, "padding": []int{1, 1}, "dilation": []int{1, 1}, "groups": 1}, []int{D, 4, 8, 8}},
		{"conv1d", map[string]any{"input": sequence, "weight": zeros(net, 4, 3, 3), "stride": []int{1},
			"padding": []int{0}, "dilation": []int{1}, "groups": 1}, []int{D, 4, 8}},
		{"max_poolnd", map[string]any{"input": image, "kernel_size": []int{2, 2}, "stride": []any{nil, nil}}, []int{D, 3, 4, 4}},
		{"adaptive_avg_poolnd", map[string]any{"input": image, "output_size": []any{1, nil}}, []int{D, 3, 1, 8}},
		{"batch_norm", map[string]any{"input": image, "running_mean": zeros(net, 3), "running_var": zeros(net, 3),
			"weight": nil, "bias": nil, "training": false, "momentum": 0.1, "eps": 1e-5}, []int{D, 3, 8, 8}},
		{"embedding", map[string]any{"input": tokens, "weight": zeros(net, 100, 16), "padding_idx": 0,
			"max_norm": nil, "norm_type": 2.0, "scale_grad_by_freq": false, "sparse": false}, []int{D, 7, 16}},
	}
	for _, tc := range testCases {
		out, err := dispatch(t, r, net, tc.name, tc.kwargs)
		require.NoError(t, err, tc.name)
		require.Equal(t, tc.want, out.Shape().Dimensions, tc.name)
	}

	_, err := dispatch(t, r, net, "max_poolnd", map[string]any{"input": image, "kernel_size": []int{2, 2}, "dilation": []int{2, 2}})
	var configErr *converters.UnsupportedConfigurationError
	require.ErrorAs(t, err, &configErr)
	_, err = dispatch(t, r, net, "embedding", map[string]any{"input": tokens, "weight": zeros(net, 100, 16), "sparse": true})
	require.ErrorAs(t, err, &configErr)
	require.Equal(t, "sparse", configErr.Field)
}
