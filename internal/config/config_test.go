package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDefaultPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, "config/engine.yaml", DefaultPath())

	t.Setenv("CONFIG_PATH", "/etc/coursegen/engine.yaml")
	assert.Equal(t, "/etc/coursegen/engine.yaml", DefaultPath())
}

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err, "missing file falls back to defaults")
	assert.Equal(t, 10, cfg.Pipeline.MaxSteps)
	assert.Equal(t, 3, cfg.Pipeline.RefinementMaxSteps)
	assert.Equal(t, 3, cfg.Pipeline.StageRetryLimit)
	assert.Equal(t, time.Second, cfg.Pipeline.RetryBackoffBase)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.UnitTimeout)
	assert.Equal(t, 3, cfg.Pipeline.InteractiveMin)
	assert.Equal(t, 7, cfg.Pipeline.InteractiveMax)
	assert.Contains(t, cfg.Postgres.DSN(), "dbname=coursegen")
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pipeline:
  max_steps: 6
  stage_retry_limit: 2
backends:
  completion_url: http://localhost:9000
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Pipeline.MaxSteps)
	assert.Equal(t, 2, cfg.Pipeline.StageRetryLimit)
	assert.Equal(t, "http://localhost:9000", cfg.Backends.CompletionURL)
	assert.Equal(t, 3, cfg.Pipeline.RefinementMaxSteps, "untouched keys keep defaults")
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  max_steps: 0\n"), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_steps")
}

func TestManagerHotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  max_steps: 5\n"), 0o644))

	m, err := NewManager(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer m.Stop()
	assert.Equal(t, 5, m.Current().Pipeline.MaxSteps)

	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  max_steps: 7\n"), 0o644))
	assert.Eventually(t, func() bool {
		return m.Current().Pipeline.MaxSteps == 7
	}, 3*time.Second, 20*time.Millisecond)
}

func TestManagerKeepsSnapshotOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  max_steps: 5\n"), 0o644))

	m, err := NewManager(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer m.Stop()

	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  max_steps: -1\n"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 5, m.Current().Pipeline.MaxSteps, "bad reload keeps the last good snapshot")
}
