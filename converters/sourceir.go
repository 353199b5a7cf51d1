// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package converters

import "fmt"

// SourceIR identifies the operator set of the node being lowered. It is only used to name layers.
type SourceIR int

const (
	SourceUnknown SourceIR = iota
	SourceATen
	SourceAcc
	SourceNN
)

func (s SourceIR) String() string {
	switch s {
	case SourceATen:
		return "aten"
	case SourceAcc:
		return "acc"
	case SourceNN:
		return "nn"
	case SourceUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("SourceIR(%d)", int(s))
	}
}

// LayerName returns the name of a layer lowered from the operator target, in the format
// "[<layer type>]-[<source>_<target>]-[<name>]".
func LayerName(layerType fmt.Stringer, source SourceIR, target OpKey, name string) string {
	return fmt.Sprintf("[%s]-[%s_%s]-[%s]", layerType, source, target, name)
}
