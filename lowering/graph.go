// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package lowering

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/types/shapes"
)

// Graph is a traced graph to be lowered: its inputs, constants and the operator nodes in execution order.
type Graph struct {
	Inputs    []shapes.InputSpec
	Constants []Constant
	Nodes     []Node

	// Outputs of the graph, marked as outputs of the network if Config.MarkOutputs is set.
	Outputs []Ref
}

// Constant is a named constant value of the graph (e.g. a weight).
// Flat holds the values as a Go slice of the dtype of the shape, in row-major order.
type Constant struct {
	Name  string
	Shape shapes.Shape
	Flat  any
}

// Node of the graph: an invocation of the operator Target.
//
// Args and Kwargs take Go constants (int, float64, bool, string, nil, []any, ...) and Ref values, which are
// replaced by the tensors they refer to before the node is converted. Refs can be nested in []any.
type Node struct {
	Name   string
	Target converters.OpKey
	Args   []any
	Kwargs map[string]any

	// NumOutputs expected from the converter. 0 is taken as 1.
	NumOutputs int
}

// Ref refers to the output Index of the node (or input, or constant) Name.
type Ref struct {
	Node  string
	Index int
}

// R returns a reference to the first output of node.
func R(node string) Ref { return Ref{Node: node} }

// String implements fmt.Stringer.
func (r Ref) String() string {
	if r.Index == 0 {
		return r.Node
	}
	return fmt.Sprintf("%s[%d]", r.Node, r.Index)
}

// Targets returns the distinct operator keys used by the nodes of the graph, sorted.
func (g *Graph) Targets() []converters.OpKey {
	seen := make(map[converters.OpKey]bool)
	var targets []converters.OpKey
	for _, node := range g.Nodes {
		if !seen[node.Target] {
			seen[node.Target] = true
			targets = append(targets, node.Target)
		}
	}
	slices.SortFunc(targets, func(a, b converters.OpKey) int { return strings.Compare(a.String(), b.String()) })
	return targets
}

// Unsupported returns the operator keys of the graph for which registry has no converter.
func Unsupported(registry *converters.Registry, graph *Graph) []converters.OpKey {
	var unsupported []converters.OpKey
	for _, target := range graph.Targets() {
		if !registry.Has(target) {
			unsupported = append(unsupported, target)
		}
	}
	return unsupported
}
