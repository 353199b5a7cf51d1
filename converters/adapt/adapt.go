// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package adapt maps the positional arguments of an operator onto the keyword arguments of another operator,
// so converters of newer operator sets can delegate to the converters of the keyword based sets.
//
// Each delegation is described by a Signature, and Repack does the conversion:
//
//	var addSignature = adapt.Signature{
//		Op: "add",
//		Params: []adapt.Param{
//			{Name: "input", Position: 0, Required: true},
//			{Name: "other", Position: 1, Required: true},
//		},
//	}
//	kwargs, err := adapt.Repack(addSignature, target, args, kwargs)
package adapt

import (
	"fmt"
	"slices"
	"strings"

	"k8s.io/klog/v2"

	"github.com/gomlx/torchlower/converters"
)

// Kwargs are keyword arguments of an operator, keyed by their names.
type Kwargs = map[string]any

// KeywordOnly is the Param.Position of parameters that can only be given as keyword arguments.
const KeywordOnly = -1

// Param describes one keyword of the target operator and where it comes from.
type Param struct {
	// Name of the keyword.
	Name string

	// Position of the positional argument feeding the keyword, or KeywordOnly.
	// A keyword argument with the same name is also accepted.
	Position int

	// Default is used when the argument is not given. It is only used if not Required.
	Default any

	// Required parameters must be given, otherwise Repack returns a converters.InvalidOperandError.
	Required bool
}

// Signature describes how the arguments of an operator are repacked as keyword arguments of Op.
type Signature struct {
	Op     string
	Params []Param
}

// NumPositional returns the number of positional arguments accepted by the signature.
func (sig Signature) NumPositional() int {
	n := 0
	for _, p := range sig.Params {
		n = max(n, p.Position+1)
	}
	return n
}

// String returns the signature in a Python like form, e.g. "max_pool(input, kernel_size, stride=<nil>)".
func (sig Signature) String() string {
	parts := make([]string, 0, len(sig.Params))
	for _, p := range sig.Params {
		if p.Required {
			parts = append(parts, p.Name)
		} else {
			parts = append(parts, fmt.Sprintf("%s=%v", p.Name, p.Default))
		}
	}
	return fmt.Sprintf("%s(%s)", sig.Op, strings.Join(parts, ", "))
}

// Repack returns the keyword arguments for sig.Op from the positional args and keyword kwargs of target.
//
// Positional arguments take precedence over keyword arguments. Missing required arguments and extra positional
// arguments are reported as converters.InvalidOperandError. Keyword arguments unknown to the signature are ignored.
func Repack(sig Signature, target converters.OpKey, args []any, kwargs map[string]any) (Kwargs, error) {
	if numPositional := sig.NumPositional(); len(args) > numPositional {
		return nil, converters.NewInvalidOperandError(target, "args", args,
			"%s takes at most %d positional arguments, got %d", sig, numPositional, len(args))
	}
	repacked := make(Kwargs, len(sig.Params))
	for _, p := range sig.Params {
		if p.Position != KeywordOnly && p.Position < len(args) {
			repacked[p.Name] = args[p.Position]
			continue
		}
		if value, found := kwargs[p.Name]; found {
			repacked[p.Name] = value
			continue
		}
		if p.Required {
			return nil, converters.NewInvalidOperandError(target, p.Name, nil, "missing required argument for %s", sig)
		}
		repacked[p.Name] = p.Default
	}
	if klog.V(2).Enabled() {
		for _, key := range sortedKeys(kwargs) {
			if _, found := repacked[key]; !found {
				klog.Infof("%s: ignoring keyword argument %q not used by %s", target, key, sig.Op)
			}
		}
	}
	return repacked, nil
}

func sortedKeys(kwargs map[string]any) []string {
	keys := make([]string, 0, len(kwargs))
	for key := range kwargs {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
