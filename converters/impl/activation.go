// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package impl

import (
	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/network"
)

// DefaultLeakyReluSlope is the negative slope used when none is given.
const DefaultLeakyReluSlope = 0.01

// Activation adds an activation layer on input. Alpha and beta are used by some activation types, see
// network.ActivationType.
func Activation(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input any, activation network.ActivationType, alpha, beta float64) (network.Tensor, error) {
	t, err := converters.ToTensor(target, "input", input)
	if err != nil {
		return nil, err
	}
	layer, err := net.AddActivation(t, activation, alpha, beta)
	if err != nil {
		return nil, err
	}
	SetLayerName(layer, target, source, name)
	return layer.Output(0), nil
}

func Relu(net network.Network, target converters.OpKey, source converters.SourceIR, name string, input any) (network.Tensor, error) {
	return Activation(net, target, source, name, input, network.ActivationRelu, 0, 0)
}

func Sigmoid(net network.Network, target converters.OpKey, source converters.SourceIR, name string, input any) (network.Tensor, error) {
	return Activation(net, target, source, name, input, network.ActivationSigmoid, 0, 0)
}

func Tanh(net network.Network, target converters.OpKey, source converters.SourceIR, name string, input any) (network.Tensor, error) {
	return Activation(net, target, source, name, input, network.ActivationTanh, 0, 0)
}

// LeakyRelu with the given negative slope.
func LeakyRelu(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input any, slope float64) (network.Tensor, error) {
	return Activation(net, target, source, name, input, network.ActivationLeakyRelu, slope, 0)
}

// HardTanh clips the values of input to [minValue, maxValue].
func HardTanh(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	input any, minValue, maxValue float64) (network.Tensor, error) {
	if minValue > maxValue {
		return nil, converters.NewInvalidOperandError(target, "min_val", minValue, "larger than max_val=%g", maxValue)
	}
	return Activation(net, target, source, name, input, network.ActivationClip, minValue, maxValue)
}
