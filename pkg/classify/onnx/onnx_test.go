package onnx

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-eyecommander/pkg/classify"
	"github.com/teslashibe/go-eyecommander/pkg/gaze"
)

// TestNewBackboneInvalidPath tests error handling for missing model
func TestNewBackboneInvalidPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = "/nonexistent/path/backbone.onnx"

	_, err := NewBackbone(cfg)
	assert.Error(t, err)
}

// TestLoadMissingHead fails before touching OpenCV
func TestLoadMissingHead(t *testing.T) {
	_, err := Load(t.TempDir(), 100, 100, "")
	assert.Error(t, err)
}

// TestLoadWrongClassCount rejects heads that do not match the label set
func TestLoadWrongClassCount(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, classify.NewHead(3, 4).Save(filepath.Join(dir, HeadFile)))
	_, err := Load(dir, 100, 100, "")
	assert.Error(t, err, "a 3-class head must be rejected")
}

// TestLoadAndInfer runs the shipped base model if present
func TestLoadAndInfer(t *testing.T) {
	dir := findModelDir()
	if dir == "" {
		t.Skip("base model not found, skipping test")
	}

	m, err := Load(dir, 100, 100, "")
	require.NoError(t, err)
	defer m.Close()

	eye := image.NewGray(image.Rect(0, 0, 100, 100))
	out, err := m.Infer([]*image.Gray{eye, eye})
	require.NoError(t, err)
	require.Len(t, out, 2)
	for i, p := range out {
		assert.Len(t, p, gaze.NumLabels, "result %d", i)
	}
}

func findModelDir() string {
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != "/"; dir = filepath.Dir(dir) {
			p := filepath.Join(dir, "models", "base")
			if _, err := os.Stat(filepath.Join(p, BackboneFile)); err == nil {
				return p
			}
		}
	}
	return ""
}
