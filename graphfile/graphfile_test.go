// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graphfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/lowering"
	"github.com/gomlx/torchlower/network"
	"github.com/gomlx/torchlower/network/graphnet"
	"github.com/gomlx/torchlower/types/shapes"
)

const classifier = `
network = "graphnet:implicit_batch"

input "image" {
  dtype = "float32"
  min   = [1, 3, 8, 8]
  opt   = [4, 3, 8, 8]
  max   = [16, 3, 8, 8]
}

constant "conv_weight" {
  dtype = "float32"
  shape = [4, 3, 3, 3]
  fill  = 0.1
}

constant "fc_weight" {
  dtype = "float32"
  shape = [2, 4]
  values = [1, 0, 0, 0, 0, 1, 0, 0]
}

node "conv" {
  target = "aten.convolution.default"
  args   = [tensor.image, tensor.conv_weight, null, [1, 1], [1, 1], [1, 1], false, [0, 0], 1]
}

node "relu" {
  target = "aten.relu.default"
  args   = [tensor.conv]
}

node "pool" {
  target = "aten._adaptive_avg_pool2d.default"
  args   = [tensor.relu, [1, 1]]
}

node "flatten" {
  target = "acc.reshape"
  kwargs = {
    input = tensor.pool
    shape = [-1, 4]
  }
}

node "fc" {
  target = "aten.linear"
  args   = [tensor.flatten, tensor.fc_weight]
}

node "scaled" {
  target = "aten.mul.Tensor"
  args   = [tensor.fc, 0.5]
}

outputs = [tensor.scaled]
`

func TestParse(t *testing.T) {
	file, err := Parse([]byte(classifier), "classifier.hcl")
	require.NoError(t, err)
	require.Equal(t, "graphnet:implicit_batch", file.Network)
	graph := file.Graph

	require.Len(t, graph.Inputs, 1)
	require.True(t, shapes.Make(Float32, shapes.DynamicDim, 3, 8, 8).Equal(graph.Inputs[0].Shape))
	require.Equal(t, shapes.DimRange{Min: 1, Opt: 4, Max: 16}, graph.Inputs[0].Ranges[0])

	require.Len(t, graph.Constants, 2)
	require.Equal(t, float32(0.1), graph.Constants[0].Flat.([]float32)[5])
	require.Equal(t, []float32{1, 0, 0, 0, 0, 1, 0, 0}, graph.Constants[1].Flat)

	require.Len(t, graph.Nodes, 6)
	conv := graph.Nodes[0]
	require.Equal(t, converters.Aten("convolution", "default"), conv.Target)
	require.Equal(t, []any{lowering.R("image"), lowering.R("conv_weight"), nil, []any{1, 1}, []any{1, 1}, []any{1, 1},
		false, []any{0, 0}, 1}, conv.Args)
	require.Equal(t, 1, conv.NumOutputs)
	flatten := graph.Nodes[3]
	require.Nil(t, flatten.Args)
	require.Equal(t, map[string]any{"input": lowering.R("pool"), "shape": []any{-1, 4}}, flatten.Kwargs)
	require.Equal(t, converters.Aten("linear", ""), graph.Nodes[4].Target)
	require.Equal(t, []any{lowering.R("fc"), 0.5}, graph.Nodes[5].Args)
	require.Equal(t, []lowering.Ref{lowering.R("scaled")}, graph.Outputs)
}

func TestParseAndLower(t *testing.T) {
	file := must.M1(Parse([]byte(classifier), "classifier.hcl"))
	net := must.M1(network.NewWithConfig(file.Network))
	require.True(t, net.HasImplicitBatchDimension())
	registry := must.M1(lowering.NewRegistry())
	result, err := lowering.Lower(net, registry, file.Graph, lowering.DefaultConfig())
	require.NoError(t, err)
	require.Len(t, result.Outputs, 1)
	// The batch axis is implicit.
	require.Equal(t, []int{2}, result.Outputs[0].Shape().Dimensions)
	require.Len(t, net.(*graphnet.Network).Outputs(), 1)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.hcl")
	require.NoError(t, os.WriteFile(path, []byte(classifier), 0o644))
	file, err := Load(path)
	require.NoError(t, err)
	require.Len(t, file.Graph.Nodes, 6)

	_, err = Load(filepath.Join(t.TempDir(), "missing.hcl"))
	require.Error(t, err)
}

func TestParseValues(t *testing.T) {
	src := `
input "x" {
  dtype  = "float16"
  shape  = [2, 3]
  device = "cuda:0"
}

input "tokens" {
  dtype = "torch.int64"
  shape = [-1, 7]
}

constant "half" {
  dtype  = "float16"
  shape  = [2]
  values = [0.5, -2]
}

constant "mask" {
  dtype  = "bool"
  shape  = [3]
  values = [1, 0, 1]
}

constant "scalar" {
  dtype = "int32"
  shape = []
  fill  = 7
}

node "split" {
  target  = "aten.split.Tensor"
  args    = [tensor.x, 1, 1]
  outputs = 2
}

node "add" {
  target = "aten.add.Tensor"
  args   = [tensor.split[0], tensor.split[1]]
  kwargs = { alpha = 2, mode = "fast", options = { deep = [true] } }
}

outputs = [tensor.add, tensor.split[1]]
`
	file, err := Parse([]byte(src), "values.hcl")
	require.NoError(t, err)
	graph := file.Graph
	require.Empty(t, file.Network)

	require.Equal(t, "cuda:0", graph.Inputs[0].Device)
	require.Equal(t, Float16, graph.Inputs[0].Shape.DType)
	require.Nil(t, graph.Inputs[0].Ranges)
	require.True(t, shapes.Make(Int64, shapes.DynamicDim, 7).Equal(graph.Inputs[1].Shape))

	require.Equal(t, []float16.Float16{float16.Fromfloat32(0.5), float16.Fromfloat32(-2)}, graph.Constants[0].Flat)
	require.Equal(t, []bool{true, false, true}, graph.Constants[1].Flat)
	require.True(t, graph.Constants[2].Shape.IsScalar())
	require.Equal(t, []int32{7}, graph.Constants[2].Flat)

	split := graph.Nodes[0]
	require.Equal(t, 2, split.NumOutputs)
	add := graph.Nodes[1]
	require.Equal(t, []any{lowering.Ref{Node: "split"}, lowering.Ref{Node: "split", Index: 1}}, add.Args)
	require.Equal(t, map[string]any{
		"alpha":   2,
		"mode":    "fast",
		"options": map[string]any{"deep": []any{true}},
	}, add.Kwargs)
	require.Equal(t, []lowering.Ref{lowering.R("add"), {Node: "split", Index: 1}}, graph.Outputs)
	require.Equal(t, []converters.OpKey{converters.Aten("add", "Tensor"), converters.Aten("split", "Tensor")},
		graph.Targets())
}

func TestParseErrors(t *testing.T) {
	testCases := map[string]string{
		"syntax":            `input "x" {`,
		"unknown block":     `layer "x" {}`,
		"unknown dtype":     `input "x" { dtype = "complex32" }`,
		"invalid dims":      block("input", "x", `dtype = "float32"`, `shape = [0, 2]`),
		"shape and ranges":  block("input", "x", `dtype = "float32"`, `shape = [1]`, `min = [1]`, `opt = [1]`, `max = [1]`),
		"bad ranges":        block("input", "x", `dtype = "float32"`, `min = [2]`, `opt = [1]`, `max = [3]`),
		"duplicate":         `input "x" { dtype = "float32" }` + "\n" + block("constant", "x", `dtype = "float32"`, `shape = [1]`),
		"dynamic constant":  block("constant", "c", `dtype = "float32"`, `shape = [-1]`),
		"values and fill":   block("constant", "c", `dtype = "float32"`, `shape = [1]`, `values = [1]`, `fill = 1`),
		"number of values":  block("constant", "c", `dtype = "float32"`, `shape = [3]`, `values = [1, 2]`),
		"constant dtype":    block("constant", "c", `dtype = "string"`, `shape = [1]`),
		"unknown reference": block("node", "relu", `target = "aten.relu.default"`, `args = [tensor.y]`),
		"bad target":        `node "relu" { target = "relu" }`,
		"args not a list":   block("node", "relu", `target = "aten.relu.default"`, `args = "x"`),
		"kwargs not object": block("node", "relu", `target = "aten.relu.default"`, `kwargs = [1]`),
		"no outputs":        block("node", "relu", `target = "aten.relu.default"`, `outputs = 0`),
		"outputs not refs":  `outputs = [1]`,
		"index single":      `input "x" { dtype = "float32" }` + "\noutputs = [tensor.x[1]]",
	}
	for name, src := range testCases {
		_, err := Parse([]byte(src), name+".hcl")
		require.Error(t, err, name)
	}
}

// block returns the HCL block with one attribute per line.
func block(blockType, name string, attributes ...string) string {
	return fmt.Sprintf("%s %q {\n  %s\n}\n", blockType, name, strings.Join(attributes, "\n  "))
}
