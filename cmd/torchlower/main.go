// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// torchlower lowers a graph described in an HCL graph file (see package graphfile) into a network, and
// reports the operators used and the layers created.
//
// Usage:
//
//	torchlower -graph=model.hcl [-network=graphnet:implicit_batch] [-ops] [-show_layers]
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/graphfile"
	"github.com/gomlx/torchlower/lowering"
	"github.com/gomlx/torchlower/network"
	"github.com/gomlx/torchlower/network/graphnet"
)

var (
	flagGraph   = flag.String("graph", "", "Graph file (HCL) to lower.")
	flagNetwork = flag.String("network", "",
		fmt.Sprintf("Network configuration, e.g. \"graphnet:implicit_batch\". If empty, the one in the graph file is used, "+
			"otherwise $%s or the default network.", network.TORCHLOWER_NETWORK))
	flagOps        = flag.Bool("ops", false, "Lists the operators used by the graph, and whether they are supported.")
	flagShowLayers = flag.Bool("show_layers", false, "Lists the layers created in the network.")
	flagLax        = flag.Bool("lax", false, "Don't fail if a converter returns a different number of outputs than declared.")
)

var titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagGraph == "" {
		klog.Errorf("Missing -graph. See 'torchlower -help'.")
		os.Exit(1)
	}
	if err := run(*flagGraph); err != nil {
		klog.Errorf("Failed to lower %q: %+v", *flagGraph, err)
		os.Exit(1)
	}
}

func run(graphPath string) error {
	file, err := graphfile.Load(graphPath)
	if err != nil {
		return err
	}
	registry, err := lowering.NewRegistry()
	if err != nil {
		return err
	}

	unsupported := lowering.Unsupported(registry, file.Graph)
	if *flagOps {
		reportOps(file.Graph, registry.Has)
	}
	if len(unsupported) > 0 {
		names := make([]string, len(unsupported))
		for ii, key := range unsupported {
			names[ii] = key.String()
		}
		return errors.Errorf("graph uses %d unsupported operators: %s", len(unsupported), strings.Join(names, ", "))
	}

	config := *flagNetwork
	if config == "" {
		config = file.Network
	}
	var net network.Network
	if config == "" {
		net, err = network.New()
	} else {
		net, err = network.NewWithConfig(config)
	}
	if err != nil {
		return err
	}

	cfg := lowering.DefaultConfig()
	cfg.StrictArity = !*flagLax
	result, err := lowering.Lower(net, registry, file.Graph, cfg)
	if err != nil {
		return err
	}
	reportSummary(graphPath, net, file.Graph, result)
	if *flagShowLayers {
		gnet, ok := net.(*graphnet.Network)
		if !ok {
			klog.Warningf("-show_layers requires a %q network, got %q", graphnet.NetworkName, net.Name())
		} else {
			reportLayers(gnet)
		}
	}
	return nil
}

func reportSummary(graphPath string, net network.Network, graph *lowering.Graph, result *lowering.Result) {
	fmt.Println(titleStyle.Render("Summary"))
	table := newPlainTable(false, lipgloss.Right, lipgloss.Left)
	table.Row("graph", graphPath)
	table.Row("network", net.Name())
	table.Row("implicit batch", fmt.Sprintf("%v", net.HasImplicitBatchDimension()))
	table.Row("# inputs", humanize.Comma(int64(len(graph.Inputs))))
	table.Row("# nodes", humanize.Comma(int64(len(graph.Nodes))))
	var constantsBytes uintptr
	for _, constant := range graph.Constants {
		constantsBytes += constant.Shape.Memory()
	}
	table.Row("constants", humanize.Bytes(uint64(constantsBytes)))
	if gnet, ok := net.(*graphnet.Network); ok {
		table.Row("# layers", humanize.Comma(int64(len(gnet.Layers()))))
	}
	for ii, output := range result.Outputs {
		table.Row(fmt.Sprintf("output #%d", ii), fmt.Sprintf("%s %s", graph.Outputs[ii], output.Shape()))
	}
	fmt.Println(table.Render())
}

func reportOps(graph *lowering.Graph, supported func(key converters.OpKey) bool) {
	fmt.Println(titleStyle.Render("Operators"))
	counts := make(map[converters.OpKey]int)
	for _, node := range graph.Nodes {
		counts[node.Target]++
	}
	table := newPlainTableWithReds(true, lipgloss.Left, lipgloss.Right, lipgloss.Center)
	table.Table.Headers("Operator", "# Nodes", "Supported")
	for _, key := range graph.Targets() {
		ok := supported(key)
		table.Row(!ok, key.String(), humanize.Comma(int64(counts[key])), fmt.Sprintf("%v", ok))
	}
	fmt.Println(table.Table.Render())
}

func reportLayers(net *graphnet.Network) {
	fmt.Println(titleStyle.Render("Layers"))
	outputs := make(map[network.Tensor]bool)
	for _, output := range net.Outputs() {
		outputs[output] = true
	}
	table := newPlainTableWithReds(true, lipgloss.Right, lipgloss.Left)
	table.Table.Headers("#", "Type", "Name", "Inputs", "Shape", "Parameters")
	for ii, layer := range net.Layers() {
		inputs := make([]string, 0, len(layer.Inputs()))
		for _, input := range layer.Inputs() {
			if input == nil {
				inputs = append(inputs, "_")
				continue
			}
			inputs = append(inputs, input.Name())
		}
		output := layer.Output(0)
		// Network outputs are highlighted.
		table.Row(outputs[output], fmt.Sprintf("%d", ii), layer.Type().String(), layer.Name(),
			strings.Join(inputs, "\n"), output.Shape().String(), layer.Description())
	}
	fmt.Println(table.Table.Render())
}
