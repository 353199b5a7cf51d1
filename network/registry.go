// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package network

import (
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// Constructor takes a config string (optionally empty) and returns a new Network.
type Constructor func(config string) (Network, error)

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register a network implementation with the given name, and a constructor that takes as input a configuration
// string that is passed along to it.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// Registered returns the sorted names of the registered network implementations.
func Registered() []string {
	return slices.Sorted(maps.Keys(registeredConstructors))
}

// DefaultConfig is the default network configuration to use, if set.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// TORCHLOWER_NETWORK is the environment variable with the default network configuration to use.
//
// The format of config is "<network_name>:<network_configuration>".
const TORCHLOWER_NETWORK = "TORCHLOWER_NETWORK"

// New returns a new default Network.
//
// The default is:
//
// 1. The environment TORCHLOWER_NETWORK is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered network is used with an empty configuration.
func New() (Network, error) {
	config, found := os.LookupEnv(TORCHLOWER_NETWORK)
	if found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// NewWithConfig creates a network from a configuration string formatted as "<network_name>:<network_configuration>".
// The "<network_name>" is the name of a registered network (e.g.: "graphnet") and "<network_configuration>" is
// implementation specific. If "<network_name>" is empty, the first registered network is used.
func NewWithConfig(config string) (Network, error) {
	if len(registeredConstructors) == 0 {
		return nil, errors.New(`no registered networks -- maybe import the default one with import _ "github.com/gomlx/torchlower/network/graphnet"?`)
	}
	name := firstRegistered
	netConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		name = config[:idx]
		netConfig = config[idx+1:]
	} else if config != "" {
		if _, found := registeredConstructors[config]; found {
			name = config
			netConfig = ""
		}
	}
	if name == "" {
		name = firstRegistered
	}
	constructor, found := registeredConstructors[name]
	if !found {
		return nil, errors.Errorf("can't find network %q for configuration %q given, registered networks: %v",
			name, config, Registered())
	}
	net, err := constructor(netConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create network %q with configuration %q", name, netConfig)
	}
	return net, nil
}
