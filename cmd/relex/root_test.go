package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Noofbiz/relex/config"
)

func TestExecute_BadConfigIsNotPrinted(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"dict", "show", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		cfgFile = ""
	})

	err := Execute()
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrConfig), "got %v", err)
	assert.Empty(t, out.String())
}

func TestErrorLogger_FallsBackBeforeConfig(t *testing.T) {
	prevCfg, prevLogger := cfg, logger
	t.Cleanup(func() { cfg, logger = prevCfg, prevLogger })

	cfg, logger = nil, zap.NewNop()
	assert.True(t, errorLogger().Core().Enabled(zapcore.ErrorLevel))
	assert.False(t, errorLogger().Core().Enabled(zapcore.DebugLevel))

	cfg = &config.Config{}
	assert.Same(t, logger, errorLogger())
}
