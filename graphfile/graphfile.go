// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graphfile reads the description of a traced graph, to be lowered with package lowering,
// from an HCL file.
//
// Example:
//
//	network = "graphnet:implicit_batch"
//
//	input "image" {
//	  dtype = "float32"
//	  shape = [-1, 3, 8, 8]  # Or min, opt and max shapes for dynamic inputs.
//	}
//
//	constant "weight" {
//	  dtype = "float32"
//	  shape = [4, 3, 3, 3]
//	  fill  = 0.5  # Or values = [...]
//	}
//
//	node "conv" {
//	  target = "aten.convolution.default"
//	  args   = [tensor.image, tensor.weight, null, [1, 1], [1, 1], [1, 1], false, [0, 0], 1]
//	}
//
//	node "relu" {
//	  target = "aten.relu.default"
//	  args   = [tensor.conv]
//	}
//
//	outputs = [tensor.relu]
//
// Inputs, constants and nodes are referred to as "tensor.<name>". Nodes declaring more than one output
// (`outputs = 2`) are referred to by index: "tensor.<name>[1]".
// Numbers that are integers are given to the converters as int, other numbers as float64.
package graphfile

import (
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"
	"github.com/zclconf/go-cty/cty"
	"k8s.io/klog/v2"

	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/lowering"
)

// File is the content of a graph file.
type File struct {
	// Network configuration (see network.NewWithConfig), empty if not set in the file.
	Network string

	Graph *lowering.Graph
}

type fileRoot struct {
	Network   *string          `hcl:"network,optional"`
	Inputs    []*inputBlock    `hcl:"input,block"`
	Constants []*constantBlock `hcl:"constant,block"`
	Nodes     []*nodeBlock     `hcl:"node,block"`
	Outputs   hcl.Expression   `hcl:"outputs,optional"`
}

type inputBlock struct {
	Name   string  `hcl:"name,label"`
	DType  string  `hcl:"dtype"`
	Shape  []int   `hcl:"shape,optional"`
	Min    []int   `hcl:"min,optional"`
	Opt    []int   `hcl:"opt,optional"`
	Max    []int   `hcl:"max,optional"`
	Device *string `hcl:"device,optional"`

	DeclRange hcl.Range `hcl:",def_range"`
}

type constantBlock struct {
	Name   string    `hcl:"name,label"`
	DType  string    `hcl:"dtype"`
	Shape  []int     `hcl:"shape"`
	Values []float64 `hcl:"values,optional"`
	Fill   *float64  `hcl:"fill,optional"`

	DeclRange hcl.Range `hcl:",def_range"`
}

type nodeBlock struct {
	Name    string         `hcl:"name,label"`
	Target  string         `hcl:"target"`
	Args    hcl.Expression `hcl:"args,optional"`
	Kwargs  hcl.Expression `hcl:"kwargs,optional"`
	Outputs *int           `hcl:"outputs,optional"`

	DeclRange hcl.Range `hcl:",def_range"`
}

// Load parses the graph file in path.
func Load(path string) (*File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read graph file")
	}
	return Parse(src, path)
}

// Parse the HCL source of a graph file. The filename is only used in error messages.
func Parse(src []byte, filename string) (*File, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errors.Wrapf(diags, "failed to parse graph file %s", filename)
	}
	var root fileRoot
	diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
	if diags.HasErrors() {
		return nil, errors.Wrapf(diags, "failed to decode graph file %s", filename)
	}

	file := &File{Graph: &lowering.Graph{}}
	if root.Network != nil {
		file.Network = *root.Network
	}
	tensors := make(map[string]cty.Value)
	declare := func(name string, numOutputs int, rng hcl.Range) error {
		if _, found := tensors[name]; found {
			return errors.Errorf("%s: %q defined more than once", rng, name)
		}
		tensors[name] = refValue(name, numOutputs)
		return nil
	}

	for _, block := range root.Inputs {
		spec, err := block.spec()
		if err != nil {
			return nil, errors.WithMessagef(err, "%s", block.DeclRange)
		}
		if err = declare(block.Name, 1, block.DeclRange); err != nil {
			return nil, err
		}
		file.Graph.Inputs = append(file.Graph.Inputs, spec)
	}
	for _, block := range root.Constants {
		constant, err := block.constant()
		if err != nil {
			return nil, errors.WithMessagef(err, "%s", block.DeclRange)
		}
		if err = declare(block.Name, 1, block.DeclRange); err != nil {
			return nil, err
		}
		file.Graph.Constants = append(file.Graph.Constants, constant)
	}
	// Nodes are declared before any expression is evaluated, so references are checked for existence only
	// here: the order is checked when lowering.
	for _, block := range root.Nodes {
		numOutputs := 1
		if block.Outputs != nil {
			numOutputs = *block.Outputs
			if numOutputs < 1 {
				return nil, errors.Errorf("%s: node %q must have at least one output", block.DeclRange, block.Name)
			}
		}
		if err := declare(block.Name, numOutputs, block.DeclRange); err != nil {
			return nil, err
		}
	}

	evalCtx := &hcl.EvalContext{Variables: map[string]cty.Value{"tensor": cty.ObjectVal(tensors)}}
	for _, block := range root.Nodes {
		node, err := block.node(evalCtx)
		if err != nil {
			return nil, err
		}
		file.Graph.Nodes = append(file.Graph.Nodes, node)
	}

	outputs, err := evaluate(root.Outputs, evalCtx)
	if err != nil {
		return nil, errors.WithMessage(err, "outputs")
	}
	if outputs != nil {
		list, ok := outputs.([]any)
		if !ok {
			return nil, errors.Errorf("%s: outputs must be a list of tensors", root.Outputs.Range())
		}
		for _, output := range list {
			ref, ok := output.(lowering.Ref)
			if !ok {
				return nil, errors.Errorf("%s: outputs must be a list of tensors, got %v", root.Outputs.Range(), output)
			}
			file.Graph.Outputs = append(file.Graph.Outputs, ref)
		}
	}
	klog.V(1).Infof("graph file %s: %d inputs, %d constants, %d nodes, %d outputs", filename,
		len(file.Graph.Inputs), len(file.Graph.Constants), len(file.Graph.Nodes), len(file.Graph.Outputs))
	return file, nil
}

func (b *nodeBlock) node(evalCtx *hcl.EvalContext) (lowering.Node, error) {
	node := lowering.Node{Name: b.Name, NumOutputs: 1}
	if b.Outputs != nil {
		node.NumOutputs = *b.Outputs
	}
	var err error
	if node.Target, err = converters.ParseOpKey(b.Target); err != nil {
		return node, errors.WithMessagef(err, "%s: node %q", b.DeclRange, b.Name)
	}
	args, err := evaluate(b.Args, evalCtx)
	if err != nil {
		return node, errors.WithMessagef(err, "node %q args", b.Name)
	}
	if args != nil {
		list, ok := args.([]any)
		if !ok {
			return node, errors.Errorf("%s: node %q args must be a list", b.Args.Range(), b.Name)
		}
		node.Args = list
	}
	kwargs, err := evaluate(b.Kwargs, evalCtx)
	if err != nil {
		return node, errors.WithMessagef(err, "node %q kwargs", b.Name)
	}
	if kwargs != nil {
		m, ok := kwargs.(map[string]any)
		if !ok {
			return node, errors.Errorf("%s: node %q kwargs must be an object", b.Kwargs.Range(), b.Name)
		}
		node.Kwargs = m
	}
	return node, nil
}

// evaluate the expression and convert it to Go values. A missing optional attribute evaluates to nil.
func evaluate(expr hcl.Expression, evalCtx *hcl.EvalContext) (any, error) {
	if expr == nil {
		return nil, nil
	}
	value, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return nil, diags
	}
	return toGo(value, expr.Range())
}
