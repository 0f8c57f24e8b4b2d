package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWorkflowConfigDefaultsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	holder, err := NewWorkflowConfigHolder(Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkflowConfig(), holder.Get())
}

func TestWorkflowConfigReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.yml")
	content := []byte(`statusSync:
  baseBackoff: 2s
  maxBackoff: 1m
  maxAttempts: 3
rateLimit:
  rate: 5
  burst: 20
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := NewWorkflowConfigHolder(Config{WorkflowConfigPath: path}, zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 2*time.Second, cfg.StatusSync.BaseBackoff)
	assert.Equal(t, time.Minute, cfg.StatusSync.MaxBackoff)
	assert.Equal(t, 3, cfg.StatusSync.MaxAttempts)
	assert.Equal(t, 50, cfg.StatusSync.BatchSize)
	assert.Equal(t, 5.0, cfg.RateLimit.Rate)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
}

func TestWorkflowConfigRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.yml")
	require.NoError(t, os.WriteFile(path, []byte("statusSync:\n  maxAttempts: 0\n"), 0o600))

	_, err := NewWorkflowConfigHolder(Config{WorkflowConfigPath: path}, zap.NewNop())
	require.Error(t, err)
}

func TestNilHolderFallsBackToDefaults(t *testing.T) {
	var holder *WorkflowConfigHolder
	assert.Equal(t, DefaultWorkflowConfig(), holder.Get())
}
