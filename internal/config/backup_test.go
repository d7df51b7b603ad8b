package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withGlobalConfigDir(t *testing.T, dir string) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", dir)
}

func TestBackupGlobalConfigNoFileReturnsEmpty(t *testing.T) {
	withGlobalConfigDir(t, t.TempDir())
	path, err := BackupGlobalConfig()
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestBackupAndRestoreGlobalConfig(t *testing.T) {
	xdg := t.TempDir()
	withGlobalConfigDir(t, xdg)

	cfg := New()
	cfg.ChunkSize = 42
	require.NoError(t, os.MkdirAll(filepath.Dir(GlobalConfigPath()), 0755))
	require.NoError(t, cfg.WriteYAML(GlobalConfigPath()))

	backupPath, err := BackupGlobalConfig()
	require.NoError(t, err)
	require.NotEmpty(t, backupPath)

	// Corrupt the live config, then restore from the backup.
	require.NoError(t, os.WriteFile(GlobalConfigPath(), []byte("not: valid: yaml: ["), 0644))
	require.NoError(t, RestoreGlobalConfig(backupPath))

	restored, err := loadYAMLFile(GlobalConfigPath())
	require.NoError(t, err)
	assert.Equal(t, 42, restored.ChunkSize)
}

func TestCleanupOldBackupsKeepsOnlyNewest(t *testing.T) {
	xdg := t.TempDir()
	withGlobalConfigDir(t, xdg)

	cfg := New()
	require.NoError(t, os.MkdirAll(filepath.Dir(GlobalConfigPath()), 0755))
	require.NoError(t, cfg.WriteYAML(GlobalConfigPath()))

	for i := 0; i < MaxBackups+2; i++ {
		_, err := BackupGlobalConfig()
		require.NoError(t, err)
	}

	backups, err := ListGlobalConfigBackups()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(backups), MaxBackups)
}
