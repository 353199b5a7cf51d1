// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package lowering

import (
	"testing"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/network"
	"github.com/gomlx/torchlower/network/graphnet"
	"github.com/gomlx/torchlower/network/notimplemented"
	"github.com/gomlx/torchlower/types/shapes"
)

// Aliases
var (
	MS = shapes.Make
	D  = shapes.DynamicDim
)

// classifier graph: conv2d -> relu -> adaptive average pool -> flatten -> linear.
func classifier() *Graph {
	return &Graph{
		Inputs: []shapes.InputSpec{{Name: "image", Shape: MS(Float32, D, 3, 8, 8)}},
		Constants: []Constant{
			{Name: "conv_weight", Shape: MS(Float32, 4, 3, 3, 3), Flat: make([]float32, 4*3*3*3)},
			{Name: "conv_bias", Shape: MS(Float32, 4), Flat: make([]float32, 4)},
			{Name: "fc_weight", Shape: MS(Float32, 10, 4), Flat: make([]float32, 10*4)},
		},
		Nodes: []Node{
			{Name: "conv", Target: converters.Aten("convolution", "default"), Args: []any{
				R("image"), R("conv_weight"), R("conv_bias"), []any{1, 1}, []any{1, 1}, []any{1, 1}, false, []any{0, 0}, 1}},
			{Name: "relu", Target: converters.Aten("relu", "default"), Args: []any{R("conv")}},
			{Name: "pool", Target: converters.Aten("_adaptive_avg_pool2d", "default"), Args: []any{R("relu"), []any{1, 1}}},
			{Name: "batch", Target: converters.Aten("sym_size", "int"), Args: []any{R("pool"), 0}},
			{Name: "flatten", Target: converters.Aten("view", "default"), Args: []any{R("pool"), []any{R("batch"), 4}}},
			{Name: "fc", Target: converters.Aten("linear", ""), Args: []any{R("flatten"), R("fc_weight")}},
		},
		Outputs: []Ref{R("fc")},
	}
}

func TestLower(t *testing.T) {
	registry := must.M1(NewRegistry())
	require.True(t, registry.Frozen())
	net := must.M1(graphnet.New(""))
	result, err := Lower(net, registry, classifier(), DefaultConfig())
	require.NoError(t, err)
	require.Len(t, result.Outputs, 1)
	require.True(t, MS(Float32, D, 10).Equal(result.Outputs[0].Shape()))
	require.Len(t, net.Outputs(), 1)
	require.Equal(t, "[MatrixMultiply]-[acc_aten.linear]-[fc_matmul]", result.Outputs[0].Name())
	require.Equal(t, result.Values["fc"][0], must.M1(result.Tensor(R("fc"))))

	_, err = result.Tensor(Ref{Node: "fc", Index: 1})
	require.Error(t, err)
	_, err = result.Tensor(R("unknown"))
	require.Error(t, err)

	// Without marking outputs.
	net = must.M1(graphnet.New(""))
	_, err = Lower(net, registry, classifier(), Config{})
	require.NoError(t, err)
	require.Empty(t, net.Outputs())
}

func TestLowerImplicitBatch(t *testing.T) {
	registry := must.M1(NewRegistry())
	net := must.M1(graphnet.New("implicit_batch"))
	graph := &Graph{
		Inputs: []shapes.InputSpec{{Name: "x", Shape: MS(Float32, 8, 3, 4)}},
		Nodes: []Node{
			{Name: "sum", Target: converters.Aten("sum", "dim_IntList"), Args: []any{R("x"), []any{-1}}},
		},
		Outputs: []Ref{R("sum")},
	}
	result := must.M1(Lower(net, registry, graph, DefaultConfig()))
	require.Equal(t, []int{3, 4}, result.Values["x"][0].Shape().Dimensions)
	require.Equal(t, []int{3}, result.Outputs[0].Shape().Dimensions)

	// Reducing the batch axis is an error, matchable through the node context.
	net = must.M1(graphnet.New("implicit_batch"))
	graph.Nodes[0].Args = []any{R("x"), []any{0}}
	_, err := Lower(net, registry, graph, DefaultConfig())
	var batchErr *converters.BatchDimensionError
	require.ErrorAs(t, err, &batchErr)
	require.Contains(t, err.Error(), `lowering node "sum"`)

	// Scalars have no batch axis.
	net = must.M1(graphnet.New("implicit_batch"))
	_, err = Lower(net, registry, &Graph{Inputs: []shapes.InputSpec{{Name: "s", Shape: MS(Float32)}}}, DefaultConfig())
	require.Error(t, err)
}

func TestLowerErrors(t *testing.T) {
	registry := must.M1(NewRegistry())
	x := shapes.InputSpec{Name: "x", Shape: MS(Float32, 2, 3)}

	testCases := []struct {
		name  string
		graph *Graph
	}{
		{"unknown ref", &Graph{Inputs: []shapes.InputSpec{x}, Nodes: []Node{
			{Name: "relu", Target: converters.Aten("relu", "default"), Args: []any{R("y")}},
		}}},
		{"ref out of range", &Graph{Inputs: []shapes.InputSpec{x}, Nodes: []Node{
			{Name: "relu", Target: converters.Aten("relu", "default"), Args: []any{Ref{Node: "x", Index: 1}}},
		}}},
		{"duplicate name", &Graph{Inputs: []shapes.InputSpec{x}, Nodes: []Node{
			{Name: "x", Target: converters.Aten("relu", "default"), Args: []any{R("x")}},
		}}},
		{"unknown output", &Graph{Inputs: []shapes.InputSpec{x}, Outputs: []Ref{R("relu")}}},
		{"arity", &Graph{Inputs: []shapes.InputSpec{x}, Nodes: []Node{
			{Name: "relu", Target: converters.Aten("relu", "default"), Args: []any{R("x")}, NumOutputs: 2},
		}}},
		{"bad constant", &Graph{Constants: []Constant{{Name: "c", Shape: MS(Float32, 2), Flat: []float32{1}}}}},
	}
	for _, tc := range testCases {
		net := must.M1(graphnet.New(""))
		_, err := Lower(net, registry, tc.graph, DefaultConfig())
		require.Error(t, err, tc.name)
	}

	// Unsupported operators are reported before and during lowering.
	graph := &Graph{Inputs: []shapes.InputSpec{x}, Nodes: []Node{
		{Name: "relu", Target: converters.Aten("relu", "default"), Args: []any{R("x")}},
		{Name: "gelu", Target: converters.Aten("gelu", "default"), Args: []any{R("relu")}},
	}}
	require.Equal(t, []converters.OpKey{converters.Aten("gelu", "default")}, Unsupported(registry, graph))
	_, err := Lower(must.M1(graphnet.New("")), registry, graph, DefaultConfig())
	var unsupportedErr *converters.UnsupportedOperatorError
	require.ErrorAs(t, err, &unsupportedErr)
	require.Equal(t, converters.Aten("gelu", "default"), unsupportedErr.Key)

	// Arity mismatches are only logged without StrictArity.
	graph = &Graph{Inputs: []shapes.InputSpec{x}, Nodes: []Node{
		{Name: "relu", Target: converters.Aten("relu", "default"), Args: []any{R("x")}, NumOutputs: 2},
	}}
	_, err = Lower(must.M1(graphnet.New("")), registry, graph, Config{})
	require.NoError(t, err)
}

func TestLowerPanics(t *testing.T) {
	registry := converters.NewRegistry()
	target := converters.Acc("explode")
	require.NoError(t, registry.Register(target,
		func(network.Network, converters.OpKey, []any, map[string]any, string) ([]network.Tensor, error) {
			exceptions.Panicf("boom")
			return nil, nil
		}))
	graph := &Graph{Nodes: []Node{{Name: "bomb", Target: target}}}
	_, err := Lower(must.M1(graphnet.New("")), registry, graph, DefaultConfig())
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
	require.Contains(t, err.Error(), `lowering node "bomb"`)
}

func TestResolve(t *testing.T) {
	net := must.M1(graphnet.New(""))
	x := must.M1(net.AddInput(shapes.InputSpec{Name: "x", Shape: MS(Float32, 2)}))
	result := &Result{Values: map[string][]network.Tensor{"x": {x}}}

	value, err := resolve(result, []any{1, R("x"), []any{R("x"), "a"}})
	require.NoError(t, err)
	require.Equal(t, []any{1, x, []any{x, "a"}}, value)

	value, err = resolve(result, []Ref{R("x"), R("x")})
	require.NoError(t, err)
	require.Equal(t, []network.Tensor{x, x}, value)

	_, err = resolve(result, []any{R("y")})
	require.Error(t, err)
}

func TestTargets(t *testing.T) {
	graph := classifier()
	targets := graph.Targets()
	require.Len(t, targets, 6)
	require.Equal(t, converters.Aten("_adaptive_avg_pool2d", "default"), targets[0])
	require.Equal(t, "image[1]", Ref{Node: "image", Index: 1}.String())
	require.Equal(t, "image", R("image").String())
}

// noShuffleNetwork is a graphnet.Network without support for shuffle layers.
type noShuffleNetwork struct {
	*graphnet.Network
	missing notimplemented.Network
}

func (n noShuffleNetwork) AddShuffle(t network.Tensor, config network.ShuffleConfig) (network.Layer, error) {
	return n.missing.AddShuffle(t, config)
}

func TestLowerNotImplemented(t *testing.T) {
	registry := must.M1(NewRegistry())
	net := noShuffleNetwork{Network: must.M1(graphnet.New(""))}
	graph := &Graph{
		Inputs: []shapes.InputSpec{{Name: "x", Shape: MS(Float32, 2, 3)}},
		Nodes: []Node{
			{Name: "relu", Target: converters.Aten("relu", "default"), Args: []any{R("x")}},
			{Name: "swap", Target: converters.Aten("permute", "default"), Args: []any{R("relu"), []any{1, 0}}},
		},
		Outputs: []Ref{R("swap")},
	}
	_, err := Lower(net, registry, graph, DefaultConfig())
	require.Error(t, err)
	require.True(t, errors.Is(err, network.ErrNotImplemented))
	require.Contains(t, err.Error(), `lowering node "swap"`)
	require.Contains(t, err.Error(), "AddShuffle")
}
