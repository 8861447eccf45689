//go:build ort

package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diffpcfgan/nets"
)

func TestORTBuildInstallsSampleMode(t *testing.T) {
	require.NotNil(t, runSampling, "init must install the ONNX sampling path")
}

func TestONNXDenoiserMissingModel(t *testing.T) {
	_, err := nets.NewONNXDenoiser(filepath.Join(t.TempDir(), "missing.onnx"))
	assert.Error(t, err)
}
