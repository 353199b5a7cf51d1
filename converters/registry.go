// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package converters dispatches operator nodes of a traced graph to the converters that lower them
// onto a network.Network.
//
// A Registry maps operator keys (OpKey) to Converter functions. It is populated once (see
// package lowering), frozen, and then used read-only to Dispatch each node Invocation.
//
// Converters report failures with the error types defined in this package (UnsupportedOperatorError,
// InvalidOperandError, UnsupportedConfigurationError, BatchDimensionError), which can be matched with errors.As.
package converters

import (
	"reflect"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/torchlower/network"
)

// Converter lowers one operator node onto the network: target is the key of the operator being
// converted, args and kwargs are its positional and keyword arguments (network.Tensor or Go
// constants) and name is the name of the node.
//
// It returns one tensor per output of the node.
type Converter func(net network.Network, target OpKey, args []any, kwargs map[string]any, name string) ([]network.Tensor, error)

// Registry of converters.
//
// Registration is not safe for concurrent use. Once frozen, the registry is read-only and
// Resolve/Dispatch can be called concurrently.
type Registry struct {
	converters map[OpKey]Converter
	frozen     bool
}

// NewRegistry returns a new empty registry.
func NewRegistry() *Registry {
	return &Registry{converters: make(map[OpKey]Converter)}
}

func sameConverter(a, b Converter) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// Register the converter for the key.
//
// Registering the same converter again for a key is a no-op, registering a different one returns
// a *DuplicateRegistrationError. Registering on a frozen registry is an error.
func (r *Registry) Register(key OpKey, converter Converter) error {
	if r.frozen {
		return errors.Errorf("cannot register converter for %s: registry is frozen", key)
	}
	if converter == nil {
		return errors.Errorf("cannot register nil converter for %s", key)
	}
	if key.Namespace == "" || key.Name == "" {
		return errors.Errorf("invalid operator key %#v", key)
	}
	if existing, found := r.converters[key]; found {
		if sameConverter(existing, converter) {
			return nil
		}
		return errors.WithStack(&DuplicateRegistrationError{Key: key})
	}
	r.converters[key] = converter
	return nil
}

// MustRegister registers the converter for all the keys given, and panics (with a stack trace) on error.
// Used for the static registration tables.
func (r *Registry) MustRegister(converter Converter, keys ...OpKey) {
	for _, key := range keys {
		if err := r.Register(key, converter); err != nil {
			exceptions.Panicf("converters.MustRegister(%s): %+v", key, err)
		}
	}
}

// Freeze the registry: no more registrations are accepted.
func (r *Registry) Freeze() { r.frozen = true }

// Frozen returns whether the registry was frozen.
func (r *Registry) Frozen() bool { return r.frozen }

// Len returns the number of keys registered.
func (r *Registry) Len() int { return len(r.converters) }

// Resolve returns the converter for the key.
//
// Lookup is exact, with two fallbacks: a key with an overload falls back to its packet key, and a packet key
// falls back to its "default" overload. It returns an *UnsupportedOperatorError if none is found.
func (r *Registry) Resolve(key OpKey) (Converter, error) {
	if converter, found := r.converters[key]; found {
		return converter, nil
	}
	var fallback OpKey
	if key.IsPacket() {
		fallback = key.WithOverload(DefaultOverload)
	} else {
		fallback = key.Packet()
	}
	if converter, found := r.converters[fallback]; found {
		return converter, nil
	}
	return nil, NewUnsupportedOperatorError(key)
}

// Has returns whether Resolve would find a converter for the key.
func (r *Registry) Has(key OpKey) bool {
	_, err := r.Resolve(key)
	return err == nil
}

// Keys returns the registered keys, sorted.
func (r *Registry) Keys() []OpKey {
	keys := make([]OpKey, 0, len(r.converters))
	for key := range r.converters {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b OpKey) int { return strings.Compare(a.String(), b.String()) })
	return keys
}

// Dispatch resolves the converter for the invocation target and calls it.
// The results and errors of the converter are returned unchanged.
func (r *Registry) Dispatch(net network.Network, invocation Invocation) ([]network.Tensor, error) {
	converter, err := r.Resolve(invocation.Target)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("lowering %q: %s with %d args and %d kwargs", invocation.Name, invocation.Target,
		len(invocation.Args), len(invocation.Kwargs))
	return converter(net, invocation.Target, invocation.Args, invocation.Kwargs, invocation.Name)
}
