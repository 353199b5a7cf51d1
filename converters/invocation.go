// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package converters

import "fmt"

// Invocation of an operator by a node of the graph being lowered.
//
// Args and Kwargs hold network.Tensor for values computed by the network, or Go constants
// (int, float64, bool, string, nil, []int, []any, ...).
type Invocation struct {
	Target OpKey
	Args   []any
	Kwargs map[string]any
	Name   string
}

// String implements fmt.Stringer.
func (inv Invocation) String() string {
	return fmt.Sprintf("%s(%q, %d args, %d kwargs)", inv.Target, inv.Name, len(inv.Args), len(inv.Kwargs))
}
