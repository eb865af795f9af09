package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "kfold", cfg.Inference.Mode)
	assert.Equal(t, 5, cfg.Inference.NSplits)
	assert.Equal(t, 64, cfg.Inference.BatchSize)
	assert.Equal(t, 0.2, cfg.Split.Ratio)
	assert.Equal(t, int64(42), cfg.Split.Seed)
	assert.Equal(t, []string{"input_ids", "attention_mask", "e1_mask", "e2_mask"}, cfg.Model.Inputs)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
inference:
  mode: single
  single_name: roberta
  batch_size: 16
output:
  parquet: true
`), 0644))
	t.Setenv("RELEX_INFERENCE_BATCH_SIZE", "8")

	v := viper.New()
	require.NoError(t, ReadFile(v, path))
	cfg, err := Load(v)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "single", cfg.Inference.Mode)
	assert.Equal(t, "roberta", cfg.Inference.SingleName)
	assert.Equal(t, 8, cfg.Inference.BatchSize, "environment wins over the file")
	assert.True(t, cfg.Output.Parquet)
}

func TestReadFile_Missing(t *testing.T) {
	err := ReadFile(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, errors.Is(err, ErrConfig), "got %v", err)
	assert.NoError(t, ReadFile(viper.New(), ""))
}

func TestValidate(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	cfg.Inference.BatchSize = 0
	cfg.Split.Ratio = 1
	cfg.Model.Backend = "torch"
	err = cfg.Validate()
	require.True(t, errors.Is(err, ErrConfig), "got %v", err)
	assert.Contains(t, err.Error(), "batch_size")
	assert.Contains(t, err.Error(), "split.ratio")
	assert.Contains(t, err.Error(), "model.backend")
}
