// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package adapt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gomlx/torchlower/converters"
)

var maxPoolSignature = Signature{
	Op: "max_poolnd",
	Params: []Param{
		{Name: "input", Position: 0, Required: true},
		{Name: "kernel_size", Position: 1, Required: true},
		{Name: "stride", Position: 2},
		{Name: "padding", Position: 3, Default: 0},
		{Name: "dilation", Position: 4, Default: 1},
		{Name: "ceil_mode", Position: 5, Default: false},
		{Name: "note", Position: KeywordOnly, Default: "none"},
	},
}

func TestRepack(t *testing.T) {
	target := converters.Aten("max_pool2d", "")
	require.Equal(t, 6, maxPoolSignature.NumPositional())
	require.Equal(t, "max_poolnd(input, kernel_size, stride=<nil>, padding=0, dilation=1, ceil_mode=false, note=none)",
		maxPoolSignature.String())

	kwargs, err := Repack(maxPoolSignature, target, []any{"x", []int{2, 2}}, nil)
	require.NoError(t, err)
	require.Equal(t, Kwargs{
		"input":       "x",
		"kernel_size": []int{2, 2},
		"stride":      nil,
		"padding":     0,
		"dilation":    1,
		"ceil_mode":   false,
		"note":        "none",
	}, kwargs)

	// Positional arguments take precedence, keywords fill the rest, unknown keywords are ignored.
	kwargs, err = Repack(maxPoolSignature, target, []any{"x", 3, 1},
		map[string]any{"stride": 7, "ceil_mode": true, "note": "kw", "memory_format": "contiguous"})
	require.NoError(t, err)
	require.Equal(t, 1, kwargs["stride"])
	require.Equal(t, true, kwargs["ceil_mode"])
	require.Equal(t, "kw", kwargs["note"])
	require.NotContains(t, kwargs, "memory_format")

	// Required arguments can be given as keywords.
	kwargs, err = Repack(maxPoolSignature, target, []any{"x"}, map[string]any{"kernel_size": 3})
	require.NoError(t, err)
	require.Equal(t, 3, kwargs["kernel_size"])
}

func TestRepackErrors(t *testing.T) {
	target := converters.Aten("max_pool2d", "")
	var operandErr *converters.InvalidOperandError
	_, err := Repack(maxPoolSignature, target, []any{"x"}, nil)
	require.ErrorAs(t, err, &operandErr)
	require.Equal(t, "kernel_size", operandErr.Operand)

	_, err = Repack(maxPoolSignature, target, []any{"x", 1, 2, 3, 4, 5, 6}, nil)
	require.ErrorAs(t, err, &operandErr)
	require.Equal(t, "args", operandErr.Operand)
}
