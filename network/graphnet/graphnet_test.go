// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graphnet

import (
	"testing"

	. "github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/torchlower/network"
	"github.com/gomlx/torchlower/types/shapes"
)

// Aliases
var (
	MS = shapes.Make
	D  = shapes.DynamicDim
)

func TestNew(t *testing.T) {
	net, err := network.NewWithConfig("graphnet:implicit_batch,name=foo")
	require.NoError(t, err)
	require.Equal(t, "foo", net.Name())
	require.True(t, net.HasImplicitBatchDimension())

	gnet := must.M1(New(""))
	require.False(t, gnet.HasImplicitBatchDimension())
	require.Contains(t, gnet.Name(), NetworkName)

	_, err = New("bogus")
	require.Error(t, err)
	require.Contains(t, network.Registered(), NetworkName)
}

func TestShapeFolding(t *testing.T) {
	net := must.M1(New(""))
	x := must.M1(net.AddInput(shapes.InputSpec{Name: "x", Shape: MS(Float32, D, 3, 4)}))

	shape := must.M1(net.AddShape(x)).Output(0)
	require.True(t, MS(Int32, 3).Equal(shape.Shape()))
	values, known, ok := shape.(*Tensor).PartialValue()
	require.True(t, ok)
	require.Equal(t, []bool{false, true, true}, known)
	require.Equal(t, []int{0, 3, 4}, values)
	_, ok = shape.(*Tensor).Value()
	require.False(t, ok)

	// Last two dimensions are statically known.
	tail := must.M1(net.AddSlice(shape, []int{1}, []int{2}, []int{1})).Output(0)
	values, ok = tail.(*Tensor).Value()
	require.True(t, ok)
	require.Equal(t, []int{3, 4}, values)

	// Product of the static part.
	prod := must.M1(net.AddReduce(tail, network.ReduceProd, 1, true)).Output(0)
	values, ok = prod.(*Tensor).Value()
	require.True(t, ok)
	require.Equal(t, []int{12}, values)

	// select(static < 0, shape(x), static) resolves the static parts.
	static := must.M1(net.AddConstant(MS(Int32, 3), []int32{-1, 3, 4})).Output(0)
	zeros := must.M1(net.AddConstant(MS(Int32, 3), []int32{0, 0, 0})).Output(0)
	isDynamic := must.M1(net.AddElementWise(static, zeros, network.ElementWiseLess)).Output(0)
	require.Equal(t, Bool, isDynamic.Shape().DType)
	selected := must.M1(net.AddSelect(isDynamic, shape, static)).Output(0)
	_, known, ok = selected.(*Tensor).PartialValue()
	require.True(t, ok)
	require.Equal(t, []bool{false, true, true}, known)
}

func TestRuntimeReshape(t *testing.T) {
	net := must.M1(New(""))
	x := must.M1(net.AddInput(shapes.InputSpec{Name: "x", Shape: MS(Float32, D, 3, 4)}))
	shape := must.M1(net.AddShape(x)).Output(0)
	batch := must.M1(net.AddSlice(shape, []int{0}, []int{1}, []int{1})).Output(0)
	twelve := must.M1(net.AddConstant(MS(Int32, 1), []int32{12})).Output(0)
	dims := must.M1(net.AddConcatenation([]network.Tensor{batch, twelve}, 0)).Output(0)

	shuffle := must.M1(net.AddShuffle(x, network.ShuffleConfig{}))
	require.NoError(t, shuffle.SetInput(1, dims))
	require.Equal(t, []int{D, 12}, shuffle.Output(0).Shape().Dimensions)

	// Invalid dimensions are rejected, and the previous input kept.
	bad := must.M1(net.AddConstant(MS(Int32, 2), []int32{-3, 4})).Output(0)
	require.Error(t, shuffle.SetInput(1, bad))
	require.Equal(t, []int{D, 12}, shuffle.Output(0).Shape().Dimensions)

	require.Error(t, shuffle.SetInput(2, dims))
}

func TestRuntimeSliceSize(t *testing.T) {
	net := must.M1(New(""))
	x := must.M1(net.AddInput(shapes.InputSpec{Name: "x", Shape: MS(Float32, D, 10)}))
	slice := must.M1(net.AddSlice(x, []int{0, 2}, []int{D, 4}, []int{1, 2}))
	require.Equal(t, []int{D, 4}, slice.Output(0).Shape().Dimensions)

	size := must.M1(net.AddConstant(MS(Int32, 2), []int32{7, 4})).Output(0)
	require.NoError(t, slice.SetInput(2, size))
	require.Equal(t, []int{7, 4}, slice.Output(0).Shape().Dimensions)
	require.Nil(t, slice.(*Layer).Inputs()[1])
}

func TestLayersAndSummary(t *testing.T) {
	net := must.M1(New("name=summary"))
	x := must.M1(net.AddInput(shapes.InputSpec{Name: "x", Shape: MS(Float32, 2, 3)}))
	w := must.M1(net.AddConstant(MS(Float32, 4, 3), make([]float32, 12))).Output(0)
	mm := must.M1(net.AddMatrixMultiply(x, false, w, true))
	mm.SetName("[matmul]-[acc_linear]-[fc]")
	require.Equal(t, "[matmul]-[acc_linear]-[fc]", mm.Output(0).Name())
	require.Equal(t, []int{2, 4}, mm.Output(0).Shape().Dimensions)
	require.NoError(t, net.MarkOutput(mm.Output(0)))
	require.Error(t, net.MarkOutput(mm.Output(0)))

	require.Len(t, net.Layers(), 3)
	require.Len(t, net.Outputs(), 1)
	summary := net.Summary()
	require.Contains(t, summary, "3 layers")
	require.Contains(t, summary, "48 B of constants")
	require.Contains(t, summary, "[matmul]-[acc_linear]-[fc]")

	_, err := net.AddConstant(MS(Float32, 2), []int32{1, 2})
	require.Error(t, err)
	_, err = net.AddConstant(MS(Float32, 2), []float32{1})
	require.Error(t, err)

	other := must.M1(New(""))
	_, err = other.AddIdentity(x)
	require.Error(t, err)
}
