package onnx

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/relex/datasets"
	"github.com/Noofbiz/relex/infer"
)

func TestOpen_MissingGraph(t *testing.T) {
	_, err := Loader{Config: Config{NumLabels: 3}}.Load(t.TempDir(), infer.Device{Kind: infer.CPU})
	assert.True(t, errors.Is(err, ErrModelNotFound), "got %v", err)

	_, err = Open(t.TempDir(), infer.Device{Kind: infer.CPU}, Config{})
	assert.Error(t, err)
}

func TestFeeds(t *testing.T) {
	b, err := datasets.MakeBatch([]datasets.Example{{
		InputIDs:      []int64{1, 5, 2},
		AttentionMask: []int64{1, 1, 1},
		TokenTypeIDs:  []int64{0, 0, 1},
		E1Mask:        []int64{0, 1, 0},
		E2Mask:        []int64{0, 0, 0},
	}}, 0)
	require.NoError(t, err)

	got, err := feeds(b, Config{}.withDefaults().Inputs)
	require.NoError(t, err)
	assert.Equal(t, [][]int64{b.InputIDs, b.AttentionMask, b.E1Mask, b.E2Mask}, got)

	got, err = feeds(b, []string{"token_type_ids"})
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{0, 0, 1}}, got)

	_, err = feeds(b, []string{"position_ids"})
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	t.Setenv("ONNXRUNTIME_SHARED_LIBRARY_PATH", "/opt/ort/libonnxruntime.so")
	cfg := Config{NumLabels: 30}.withDefaults()
	assert.Equal(t, DefaultInputs, cfg.Inputs)
	assert.Equal(t, "logits", cfg.Output)
	assert.Equal(t, "/opt/ort/libonnxruntime.so", cfg.SharedLibraryPath)
}
