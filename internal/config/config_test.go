package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MERGE_ON_ERROR", "")
	t.Setenv("PORT", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, MergeOnErrorSkip, cfg.MergeOnError)
	assert.Equal(t, 4, cfg.MaxParallelImports)
	assert.Equal(t, 24*time.Hour, cfg.TaskMaxAge)
	assert.False(t, cfg.QTIEnabled)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoadFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("QTI_ENABLED=true\nMERGE_ON_ERROR=abort\nTASK_MAX_AGE=2h\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("QTI_ENABLED")
		os.Unsetenv("MERGE_ON_ERROR")
		os.Unsetenv("TASK_MAX_AGE")
	})

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.True(t, cfg.QTIEnabled)
	assert.Equal(t, MergeOnErrorAbort, cfg.MergeOnError)
	assert.Equal(t, 2*time.Hour, cfg.TaskMaxAge)
}

func TestLoadRejectsUnknownMergePolicy(t *testing.T) {
	t.Setenv("MERGE_ON_ERROR", "retry")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MERGE_ON_ERROR")
}
