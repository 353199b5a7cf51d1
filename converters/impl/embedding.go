// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package impl

import (
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/gomlx/torchlower/converters"
	"github.com/gomlx/torchlower/network"
)

// EmbeddingOptions holds the training options of an embedding lookup. Only the defaults are supported
// for inference, see DefaultEmbeddingOptions.
type EmbeddingOptions struct {
	MaxNorm         *float64
	NormType        float64
	ScaleGradByFreq bool
	Sparse          bool
}

// DefaultEmbeddingOptions returns the only options supported by Embedding.
func DefaultEmbeddingOptions() EmbeddingOptions {
	return EmbeddingOptions{NormType: 2.0}
}

// Embedding looks up the rows of table at indices: a gather along axis 0 of table.
func Embedding(net network.Network, target converters.OpKey, source converters.SourceIR, name string,
	indices, table any, opts EmbeddingOptions) (network.Tensor, error) {
	if opts.MaxNorm != nil {
		return nil, converters.NewUnsupportedConfigurationError(target, "max_norm", *opts.MaxNorm, "max_norm not supported")
	}
	if opts.NormType != 2.0 {
		return nil, converters.NewUnsupportedConfigurationError(target, "norm_type", opts.NormType, "only norm_type=2.0 supported")
	}
	if opts.ScaleGradByFreq {
		return nil, converters.NewUnsupportedConfigurationError(target, "scale_grad_by_freq", true, "scaling gradients by frequency not supported")
	}
	if opts.Sparse {
		return nil, converters.NewUnsupportedConfigurationError(target, "sparse", true, "sparse gradients not supported")
	}
	indicesT, err := GetTensor(net, target, "indices", indices, dtypes.Int32, name)
	if err != nil {
		return nil, err
	}
	tableT, err := GetTensor(net, target, "weight", table, dtypes.InvalidDType, name)
	if err != nil {
		return nil, err
	}
	if !indicesT.Shape().DType.IsInt() {
		return nil, converters.NewInvalidOperandError(target, "indices", indicesT.Shape(), "indices must be integers")
	}
	layer, err := net.AddGather(tableT, indicesT, 0)
	if err != nil {
		return nil, err
	}
	SetLayerName(layer, target, source, name+"_gather")
	return layer.Output(0), nil
}
