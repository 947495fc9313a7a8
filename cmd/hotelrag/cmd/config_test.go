package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hotelrag/configs"
	"github.com/Aman-CERP/hotelrag/internal/config"
)

func TestConfigInit_WritesTemplate(t *testing.T) {
	dir := isolate(t)

	out, err := run(t, dir, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Created user configuration")

	data, err := os.ReadFile(config.GetUserConfigPath())
	require.NoError(t, err)
	assert.Equal(t, configs.ConfigTemplate, string(data))
}

func TestConfigInit_KeepsExistingWithoutForce(t *testing.T) {
	dir := isolate(t)
	path := config.GetUserConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	out, err := run(t, dir, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))
}

func TestConfigInit_ForceBacksUp(t *testing.T) {
	dir := isolate(t)
	path := config.GetUserConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	_, err := run(t, dir, "config", "init", "--force")
	require.NoError(t, err)

	backups, err := config.ListUserConfigBackups()
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestConfigShow_JSONReflectsProjectFile(t *testing.T) {
	dir := isolate(t)
	project := "search:\n  limit: 3\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hotelrag.yaml"), []byte(project), 0o644))

	out, err := run(t, dir, "config", "show", "--json")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 3, cfg.Search.Limit)
	assert.Equal(t, 0.9, cfg.Router.HighThreshold)
}

func TestConfigShow_InvalidSource(t *testing.T) {
	_, err := run(t, isolate(t), "config", "show", "--source", "galaxy")

	assert.Error(t, err)
}

func TestConfigPath(t *testing.T) {
	out, err := run(t, isolate(t), "config", "path")

	require.NoError(t, err)
	assert.Equal(t, config.GetUserConfigPath()+"\n", out)
}
