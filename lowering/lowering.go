// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package lowering converts a traced Graph into layers of a network.Network, by dispatching each node
// to its converter.
//
// Example:
//
//	registry, err := lowering.NewRegistry()
//	...
//	net, err := network.NewWithConfig("graphnet:implicit_batch")
//	...
//	result, err := lowering.Lower(net, registry, graph, lowering.DefaultConfig())
package lowering

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/converters/acc"
	"github.com/gomlx/torchlower/converters/aten"
	"github.com/gomlx/torchlower/network"
)

// NewRegistry returns a frozen registry with all the acc, aten and operator converters.
func NewRegistry() (*converters.Registry, error) {
	r := converters.NewRegistry()
	if err := acc.Register(r); err != nil {
		return nil, err
	}
	if err := aten.Register(r); err != nil {
		return nil, err
	}
	r.Freeze()
	klog.V(1).Infof("lowering: registry with %d converters", r.Len())
	return r, nil
}

// Config of Lower.
type Config struct {
	// StrictArity makes Lower fail if a converter returns a different number of outputs than
	// Node.NumOutputs. Otherwise, it only logs a warning.
	StrictArity bool

	// MarkOutputs marks Graph.Outputs as outputs of the network.
	MarkOutputs bool
}

// DefaultConfig returns the default configuration: strict arity, and outputs marked.
func DefaultConfig() Config {
	return Config{StrictArity: true, MarkOutputs: true}
}

// Result of Lower.
type Result struct {
	// Values maps the names of inputs, constants and nodes to the tensors they produced.
	Values map[string][]network.Tensor

	// Outputs are the tensors of Graph.Outputs.
	Outputs []network.Tensor
}

// Tensor returns the tensor referred to by ref.
func (r *Result) Tensor(ref Ref) (network.Tensor, error) {
	values, found := r.Values[ref.Node]
	if !found {
		return nil, errors.Errorf("unknown reference %q", ref)
	}
	if ref.Index < 0 || ref.Index >= len(values) {
		return nil, errors.Errorf("reference %q out of range: %q has %d outputs", ref, ref.Node, len(values))
	}
	return values[ref.Index], nil
}

func (r *Result) define(name string, values ...network.Tensor) error {
	if name == "" {
		return errors.New("inputs, constants and nodes must have a name")
	}
	if _, found := r.Values[name]; found {
		return errors.Errorf("name %q defined more than once", name)
	}
	r.Values[name] = values
	return nil
}

// Lower the graph into net, using the converters in registry.
//
// Inputs are added first: if the network has an implicit batch dimension, axis 0 of each input is dropped.
// Then the constants, and the nodes in order. It fails on the first error: errors from converters are
// returned with the node context added, and they can still be matched with errors.As.
// Panics raised while converting a node are returned as errors.
func Lower(net network.Network, registry *converters.Registry, graph *Graph, cfg Config) (*Result, error) {
	result := &Result{Values: make(map[string][]network.Tensor)}
	implicitBatch := net.HasImplicitBatchDimension()
	for _, spec := range graph.Inputs {
		if implicitBatch {
			var err error
			if spec, err = spec.DropBatchAxis(); err != nil {
				return nil, err
			}
		}
		t, err := net.AddInput(spec)
		if err != nil {
			return nil, errors.WithMessagef(err, "lowering input %q", spec.Name)
		}
		if err = result.define(spec.Name, t); err != nil {
			return nil, err
		}
	}

	for _, constant := range graph.Constants {
		layer, err := net.AddConstant(constant.Shape, constant.Flat)
		if err != nil {
			return nil, errors.WithMessagef(err, "lowering constant %q", constant.Name)
		}
		layer.SetName(constant.Name)
		if err = result.define(constant.Name, layer.Output(0)); err != nil {
			return nil, err
		}
	}

	for _, node := range graph.Nodes {
		outputs, err := lowerNode(net, registry, result, node, cfg)
		if err != nil {
			return nil, errors.WithMessagef(err, "lowering node %q (%s)", node.Name, node.Target)
		}
		if err = result.define(node.Name, outputs...); err != nil {
			return nil, err
		}
	}

	for _, ref := range graph.Outputs {
		t, err := result.Tensor(ref)
		if err != nil {
			return nil, errors.WithMessage(err, "graph outputs")
		}
		result.Outputs = append(result.Outputs, t)
		if cfg.MarkOutputs {
			if err = net.MarkOutput(t); err != nil {
				return nil, errors.WithMessagef(err, "marking output %q", ref)
			}
		}
	}
	klog.V(1).Infof("lowering: %d inputs, %d constants, %d nodes and %d outputs lowered into %q",
		len(graph.Inputs), len(graph.Constants), len(graph.Nodes), len(graph.Outputs), net.Name())
	return result, nil
}

func lowerNode(net network.Network, registry *converters.Registry, result *Result, node Node, cfg Config) ([]network.Tensor, error) {
	args, err := resolveList(result, node.Args)
	if err != nil {
		return nil, err
	}
	var kwargs map[string]any
	if node.Kwargs != nil {
		kwargs = make(map[string]any, len(node.Kwargs))
		for key, value := range node.Kwargs {
			if kwargs[key], err = resolve(result, value); err != nil {
				return nil, errors.WithMessagef(err, "kwarg %q", key)
			}
		}
	}

	invocation := converters.Invocation{Target: node.Target, Args: args, Kwargs: kwargs, Name: node.Name}
	var outputs []network.Tensor
	panicErr := exceptions.TryCatch[error](func() {
		outputs, err = registry.Dispatch(net, invocation)
	})
	if panicErr != nil {
		return nil, panicErr
	}
	if err != nil {
		return nil, err
	}

	want := max(node.NumOutputs, 1)
	if len(outputs) != want {
		if cfg.StrictArity {
			return nil, errors.Errorf("converter returned %d outputs, expected %d", len(outputs), want)
		}
		klog.Warningf("lowering node %q (%s): converter returned %d outputs, expected %d",
			node.Name, node.Target, len(outputs), want)
	}
	return outputs, nil
}

// resolve replaces Ref values by the tensors they refer to, recursively in lists.
func resolve(result *Result, value any) (any, error) {
	switch v := value.(type) {
	case Ref:
		return result.Tensor(v)
	case []Ref:
		tensors := make([]network.Tensor, len(v))
		for ii, ref := range v {
			var err error
			if tensors[ii], err = result.Tensor(ref); err != nil {
				return nil, err
			}
		}
		return tensors, nil
	case []any:
		return resolveList(result, v)
	}
	return value, nil
}

func resolveList(result *Result, values []any) ([]any, error) {
	if values == nil {
		return nil, nil
	}
	resolved := make([]any, len(values))
	for ii, value := range values {
		var err error
		if resolved[ii], err = resolve(result, value); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}
