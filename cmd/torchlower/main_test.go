// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	*flagOps = true
	*flagShowLayers = true
	defer func() {
		*flagOps = false
		*flagShowLayers = false
	}()
	require.NoError(t, run(filepath.Join("testdata", "classifier.hcl")))
}

func TestRunUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gelu.hcl")
	src := `
input "x" {
  dtype = "float32"
  shape = [2, 3]
}

node "gelu" {
  target = "aten.gelu.default"
  args   = [tensor.x]
}
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	err := run(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "aten.gelu.default")
}
