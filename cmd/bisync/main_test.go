package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/AzPepoze/gdrive-bisync/internal/client/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// writeConfig writes a local-backend config under a temp dir and returns its path
func writeConfig(t *testing.T, extra map[string]any) (string, string) {
	t.Helper()

	dir := t.TempDir()
	values := map[string]any{
		"local_root":  filepath.Join(dir, "root"),
		"backend":     config.BackendLocal,
		"local_store": map[string]any{"dir": filepath.Join(dir, "store")},
		"log_dir":     filepath.Join(dir, "logs"),
	}
	for k, v := range extra {
		values[k] = v
	}

	data, err := json.Marshal(values)
	require.NoError(t, err)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path, dir
}

func TestLoadConfig_Precedence(t *testing.T) {
	path, dir := writeConfig(t, map[string]any{"periodic_interval_ms": 30000})
	t.Setenv("BISYNC_PERIODIC_INTERVAL_MS", "45000")
	t.Setenv("BISYNC_HTTP_TOKEN", "from-env")

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"-c", path, "--root", filepath.Join(dir, "flagroot"), "--http"}))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, filepath.Join(dir, "flagroot"), cfg.LocalRoot)
	assert.Equal(t, 45000, cfg.PeriodicIntervalMs)
	assert.Equal(t, "from-env", cfg.HTTP.Token)
	assert.True(t, cfg.HTTP.Enabled)
	assert.Equal(t, config.BackendLocal, cfg.Backend)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path, _ := writeConfig(t, map[string]any{"backend": "ftp"})

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"-c", path}))

	_, err := loadConfig(cmd)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrConfiguration)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BISYNC_TEST_DOTENV=loaded\n"), 0o644))
	chdir(t, dir)
	t.Cleanup(func() { os.Unsetenv("BISYNC_TEST_DOTENV") })

	require.NoError(t, loadDotEnv())
	assert.Equal(t, "loaded", os.Getenv("BISYNC_TEST_DOTENV"))
}

func TestLoadDotEnv_Missing(t *testing.T) {
	chdir(t, t.TempDir())
	assert.NoError(t, loadDotEnv())
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
}
