// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graphnet implements network.Network by recording the layers added, in pure Go.
//
// It infers the shapes of all tensors, and it folds the values of small integer tensors (e.g. the output
// of a shape layer) whenever they are known while building, so runtime shape expressions resolve
// their static parts. It is used by the command line tool to inspect lowered graphs, and by tests.
//
// It registers itself as "graphnet", with the configuration given by a comma-separated list of options:
//
//   - "implicit_batch": create the network in implicit batch mode.
//   - "name=<name>": name of the network, by default a unique name is generated.
package graphnet

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/torchlower/network"
	"github.com/gomlx/torchlower/types/shapes"
)

// NetworkName is the name under which graphnet is registered.
const NetworkName = "graphnet"

func init() {
	network.Register(NetworkName, func(config string) (network.Network, error) {
		return New(config)
	})
}

// Network records the layers added to it. Create it with New.
type Network struct {
	name          string
	implicitBatch bool

	layers  []*Layer
	inputs  []*Tensor
	outputs []*Tensor
	counts  map[network.LayerType]int
}

var _ network.Network = (*Network)(nil)

// New creates a new Network with the given configuration, see package documentation.
func New(config string) (*Network, error) {
	n := &Network{counts: make(map[network.LayerType]int)}
	for _, option := range strings.Split(config, ",") {
		option = strings.TrimSpace(option)
		key, value, _ := strings.Cut(option, "=")
		switch key {
		case "":
		case "implicit_batch":
			n.implicitBatch = true
		case "name":
			n.name = value
		default:
			return nil, errors.Errorf("graphnet: unknown configuration option %q in %q", option, config)
		}
	}
	if n.name == "" {
		n.name = fmt.Sprintf("%s-%s", NetworkName, uuid.NewString()[:8])
	}
	return n, nil
}

// Name of the network.
func (n *Network) Name() string { return n.name }

// HasImplicitBatchDimension returns whether the network was created with the "implicit_batch" option.
func (n *Network) HasImplicitBatchDimension() bool { return n.implicitBatch }

// Layers returns the layers added so far, in order. Inputs are also layers.
func (n *Network) Layers() []*Layer { return n.layers }

// Inputs returns the tensors of the network inputs.
func (n *Network) Inputs() []*Tensor { return n.inputs }

// Outputs returns the tensors marked as outputs.
func (n *Network) Outputs() []*Tensor { return n.outputs }

// String implements fmt.Stringer.
func (n *Network) String() string {
	return fmt.Sprintf("graphnet %q (implicit batch=%v)", n.name, n.implicitBatch)
}

// Summary returns a multi-line description of the network: one line per layer.
func (n *Network) Summary() string {
	var sb strings.Builder
	var constantBytes uint64
	for _, l := range n.layers {
		if l.layerType == network.LayerTypeConstant {
			constantBytes += uint64(l.outputs[0].shape.Memory())
		}
	}
	_, _ = fmt.Fprintf(&sb, "%s: %d layers, %d inputs, %d outputs, %s of constants\n",
		n, len(n.layers), len(n.inputs), len(n.outputs), humanize.Bytes(constantBytes))
	for _, l := range n.layers {
		_, _ = fmt.Fprintf(&sb, "  %s\n", l)
	}
	return sb.String()
}

// tensor converts t to the graphnet implementation, checking it belongs to this network.
func (n *Network) tensor(t network.Tensor, what string) (*Tensor, error) {
	if t == nil {
		return nil, errors.Errorf("graphnet: nil tensor given for %s", what)
	}
	gt, ok := t.(*Tensor)
	if !ok {
		return nil, errors.Errorf("graphnet: tensor %q given for %s is a %T, not created by graphnet", t.Name(), what, t)
	}
	if gt.layer.net != n {
		return nil, errors.Errorf("graphnet: tensor %q given for %s belongs to another network", gt.Name(), what)
	}
	return gt, nil
}

func (n *Network) tensors(ts []network.Tensor, what string) ([]*Tensor, error) {
	gts := make([]*Tensor, len(ts))
	for ii, t := range ts {
		var err error
		if gts[ii], err = n.tensor(t, fmt.Sprintf("%s #%d", what, ii)); err != nil {
			return nil, err
		}
	}
	return gts, nil
}

// addLayer creates the layer, infers its output and appends it to the network.
func (n *Network) addLayer(layerType network.LayerType, inputs []*Tensor, params any) (*Layer, error) {
	l := &Layer{
		net:       n,
		name:      fmt.Sprintf("%s_%d", strings.ToLower(layerType.String()), n.counts[layerType]),
		layerType: layerType,
		inputs:    inputs,
		params:    params,
	}
	l.outputs = []*Tensor{{layer: l}}
	if err := l.infer(); err != nil {
		return nil, errors.WithMessagef(err, "graphnet: failed to add %s layer", layerType)
	}
	n.counts[layerType]++
	n.layers = append(n.layers, l)
	if klog.V(2).Enabled() {
		klog.Infof("graphnet %q: added %s", n.name, l)
	}
	return l, nil
}

// AddInput implements network.Network.
func (n *Network) AddInput(spec shapes.InputSpec) (network.Tensor, error) {
	if spec.Name == "" {
		return nil, errors.New("graphnet: inputs must have a name")
	}
	for _, input := range n.inputs {
		if input.Name() == spec.Name {
			return nil, errors.Errorf("graphnet: input %q already defined", spec.Name)
		}
	}
	if !spec.Shape.Ok() {
		return nil, errors.Errorf("graphnet: input %q has an invalid shape", spec.Name)
	}
	l, err := n.addLayer(network.LayerTypeInput, nil, spec)
	if err != nil {
		return nil, err
	}
	l.name = spec.Name
	n.inputs = append(n.inputs, l.outputs[0])
	return l.outputs[0], nil
}

// MarkOutput implements network.Network.
func (n *Network) MarkOutput(t network.Tensor) error {
	gt, err := n.tensor(t, "MarkOutput")
	if err != nil {
		return err
	}
	for _, output := range n.outputs {
		if output == gt {
			return errors.Errorf("graphnet: tensor %q already marked as output", gt.Name())
		}
	}
	n.outputs = append(n.outputs, gt)
	return nil
}

// AddConstant implements network.Network.
func (n *Network) AddConstant(shape shapes.Shape, flat any) (network.Layer, error) {
	params, err := newConstantParams(shape, flat)
	if err != nil {
		return nil, err
	}
	return n.addLayer(network.LayerTypeConstant, nil, params)
}

// AddIdentity implements network.Network.
func (n *Network) AddIdentity(t network.Tensor) (network.Layer, error) {
	gt, err := n.tensor(t, "Identity")
	if err != nil {
		return nil, err
	}
	return n.addLayer(network.LayerTypeIdentity, []*Tensor{gt}, nil)
}

// AddCast implements network.Network.
func (n *Network) AddCast(t network.Tensor, dtype dtypes.DType) (network.Layer, error) {
	gt, err := n.tensor(t, "Cast")
	if err != nil {
		return nil, err
	}
	return n.addLayer(network.LayerTypeCast, []*Tensor{gt}, dtype)
}

// AddShuffle implements network.Network.
func (n *Network) AddShuffle(t network.Tensor, config network.ShuffleConfig) (network.Layer, error) {
	gt, err := n.tensor(t, "Shuffle")
	if err != nil {
		return nil, err
	}
	return n.addLayer(network.LayerTypeShuffle, []*Tensor{gt}, config)
}

// AddSlice implements network.Network.
func (n *Network) AddSlice(t network.Tensor, start, size, stride []int) (network.Layer, error) {
	gt, err := n.tensor(t, "Slice")
	if err != nil {
		return nil, err
	}
	return n.addLayer(network.LayerTypeSlice, []*Tensor{gt}, sliceParams{start: start, size: size, stride: stride})
}

// AddShape implements network.Network.
func (n *Network) AddShape(t network.Tensor) (network.Layer, error) {
	gt, err := n.tensor(t, "Shape")
	if err != nil {
		return nil, err
	}
	return n.addLayer(network.LayerTypeShape, []*Tensor{gt}, nil)
}

// AddConcatenation implements network.Network.
func (n *Network) AddConcatenation(tensors []network.Tensor, axis int) (network.Layer, error) {
	gts, err := n.tensors(tensors, "Concatenation")
	if err != nil {
		return nil, err
	}
	return n.addLayer(network.LayerTypeConcatenation, gts, axis)
}

// AddGather implements network.Network.
func (n *Network) AddGather(data, indices network.Tensor, axis int) (network.Layer, error) {
	gts, err := n.tensors([]network.Tensor{data, indices}, "Gather")
	if err != nil {
		return nil, err
	}
	return n.addLayer(network.LayerTypeGather, gts, axis)
}

// AddReduce implements network.Network.
func (n *Network) AddReduce(t network.Tensor, op network.ReduceOp, axesMask uint32, keepDims bool) (network.Layer, error) {
	gt, err := n.tensor(t, "Reduce")
	if err != nil {
		return nil, err
	}
	return n.addLayer(network.LayerTypeReduce, []*Tensor{gt}, reduceParams{op: op, axesMask: axesMask, keepDims: keepDims})
}

// AddElementWise implements network.Network.
func (n *Network) AddElementWise(lhs, rhs network.Tensor, op network.ElementWiseOp) (network.Layer, error) {
	gts, err := n.tensors([]network.Tensor{lhs, rhs}, "ElementWise")
	if err != nil {
		return nil, err
	}
	return n.addLayer(network.LayerTypeElementWise, gts, op)
}

// AddUnary implements network.Network.
func (n *Network) AddUnary(t network.Tensor, op network.UnaryOp) (network.Layer, error) {
	gt, err := n.tensor(t, "Unary")
	if err != nil {
		return nil, err
	}
	return n.addLayer(network.LayerTypeUnary, []*Tensor{gt}, op)
}

// AddActivation implements network.Network.
func (n *Network) AddActivation(t network.Tensor, activation network.ActivationType, alpha, beta float64) (network.Layer, error) {
	gt, err := n.tensor(t, "Activation")
	if err != nil {
		return nil, err
	}
	return n.addLayer(network.LayerTypeActivation, []*Tensor{gt}, activationParams{activation: activation, alpha: alpha, beta: beta})
}

// AddSelect implements network.Network.
func (n *Network) AddSelect(condition, onTrue, onFalse network.Tensor) (network.Layer, error) {
	gts, err := n.tensors([]network.Tensor{condition, onTrue, onFalse}, "Select")
	if err != nil {
		return nil, err
	}
	return n.addLayer(network.LayerTypeSelect, gts, nil)
}

// AddMatrixMultiply implements network.Network.
func (n *Network) AddMatrixMultiply(a network.Tensor, transposeA bool, b network.Tensor, transposeB bool) (network.Layer, error) {
	gts, err := n.tensors([]network.Tensor{a, b}, "MatrixMultiply")
	if err != nil {
		return nil, err
	}
	return n.addLayer(network.LayerTypeMatrixMultiply, gts, matMulParams{transposeA: transposeA, transposeB: transposeB})
}

// AddConvolution implements network.Network. The bias is optional.
func (n *Network) AddConvolution(input, kernel, bias network.Tensor, config network.ConvolutionConfig) (network.Layer, error) {
	operands := []network.Tensor{input, kernel}
	if bias != nil {
		operands = append(operands, bias)
	}
	gts, err := n.tensors(operands, "Convolution")
	if err != nil {
		return nil, err
	}
	return n.addLayer(network.LayerTypeConvolution, gts, config)
}

// AddPooling implements network.Network.
func (n *Network) AddPooling(input network.Tensor, config network.PoolingConfig) (network.Layer, error) {
	gt, err := n.tensor(input, "Pooling")
	if err != nil {
		return nil, err
	}
	return n.addLayer(network.LayerTypePooling, []*Tensor{gt}, config)
}
