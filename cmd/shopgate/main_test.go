package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, defaultConfigFile), []byte("server:\n  listen: localhost:8080\n"), 0o600))

	assert.Equal(t, filepath.Join(tmpDir, defaultConfigFile), findConfigIn(tmpDir))
}

func TestFindConfigFileNotFound(t *testing.T) {
	t.Parallel()

	assert.Equal(t, defaultConfigFile, findConfigIn(t.TempDir()))
}

func TestFindConfigFileInHomeDir(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	workDir := t.TempDir()

	configDir := filepath.Join(home, ".config", configDirName)
	require.NoError(t, os.MkdirAll(configDir, 0o750))
	configPath := filepath.Join(configDir, defaultConfigFile)
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  listen: localhost:8080\n"), 0o600))

	assert.Equal(t, configPath, findConfigInWithHome(workDir, home))
}

func TestFindConfigFilePrefersWorkingDir(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	workDir := t.TempDir()

	configDir := filepath.Join(home, ".config", configDirName)
	require.NoError(t, os.MkdirAll(configDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, defaultConfigFile), []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(workDir, defaultConfigFile), []byte("{}"), 0o600))

	assert.Equal(t, filepath.Join(workDir, defaultConfigFile), findConfigInWithHome(workDir, home))
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	t.Parallel()

	names := make([]string, 0, len(rootCmd.Commands()))
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "status", "config", "version"})
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}
