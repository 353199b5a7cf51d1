// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package converters

import (
	"strings"

	"github.com/pkg/errors"
)

// Namespaces of operator keys.
const (
	NamespaceAten     = "aten"
	NamespaceAcc      = "acc"
	NamespaceOperator = "operator"
)

// DefaultOverload is the overload that a packet key falls back to.
const DefaultOverload = "default"

// OpKey identifies an operator: a namespace (e.g. "aten"), an operator name (e.g. "add") and an overload
// (e.g. "Tensor"). A key with an empty Overload is an "overload packet": it stands for all
// overloads of the operator.
type OpKey struct {
	Namespace, Name, Overload string
}

// Aten returns the key of an aten operator. Use an empty overload for the packet key.
func Aten(name, overload string) OpKey {
	return OpKey{Namespace: NamespaceAten, Name: name, Overload: overload}
}

// Acc returns the key of a legacy acc operator. Acc operators have no overloads.
func Acc(name string) OpKey {
	return OpKey{Namespace: NamespaceAcc, Name: name}
}

// Operator returns the key of a Python built-in operator (e.g. "add" for operator.add).
func Operator(name string) OpKey {
	return OpKey{Namespace: NamespaceOperator, Name: name}
}

// String returns "namespace.name.overload", or "namespace.name" for packet keys.
func (k OpKey) String() string {
	if k.Overload == "" {
		return k.Namespace + "." + k.Name
	}
	return k.Namespace + "." + k.Name + "." + k.Overload
}

// IsPacket returns whether the key is an overload packet.
func (k OpKey) IsPacket() bool { return k.Overload == "" }

// Packet returns the overload packet key of k.
func (k OpKey) Packet() OpKey {
	k.Overload = ""
	return k
}

// WithOverload returns a copy of k with the given overload.
func (k OpKey) WithOverload(overload string) OpKey {
	k.Overload = overload
	return k
}

// ParseOpKey is the inverse of OpKey.String: it accepts "namespace.name" and "namespace.name.overload".
func ParseOpKey(s string) (OpKey, error) {
	parts := strings.Split(s, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return OpKey{}, errors.Errorf("invalid operator key %q: expected \"namespace.name\" or \"namespace.name.overload\"", s)
	}
	for _, part := range parts {
		if part == "" {
			return OpKey{}, errors.Errorf("invalid operator key %q: empty component", s)
		}
	}
	key := OpKey{Namespace: parts[0], Name: parts[1]}
	if len(parts) == 3 {
		key.Overload = parts[2]
	}
	return key, nil
}
