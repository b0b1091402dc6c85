package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbup-tool/dbup/internal/errors"
)

func TestScaffold(t *testing.T) {
	fs := afero.NewMemMapFs()

	result, err := Scaffold(fs, "/project", "sqlite", false)
	require.NoError(t, err)
	assert.Equal(t, "/project/.dbup/config.yaml", result.ConfigPath)
	assert.True(t, result.ScriptsDirCreated)
	assert.True(t, result.GitignoreUpdated)

	isDir, err := afero.DirExists(fs, "/project/.dbup/migrations")
	require.NoError(t, err)
	assert.True(t, isDir)

	cfg, err := Load(fs, result.ConfigPath)
	require.NoError(t, err, "the starter configuration must load")
	assert.Equal(t, "sqlite", cfg.Provider)
	assert.Equal(t, "migrations", cfg.Scripts[0].Folder)
	assert.Equal(t, "PerScript", cfg.Transaction)

	example, err := afero.ReadFile(fs, "/project/.dbup/.env.example")
	require.NoError(t, err)
	assert.Contains(t, string(example), "CONNECTION_STRING=./app.db")

	gitignore, err := afero.ReadFile(fs, "/project/.gitignore")
	require.NoError(t, err)
	assert.Contains(t, string(gitignore), ".dbup/.env\n")
}

func TestScaffoldRefusesOverwrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/project/.dbup/config.yaml", []byte("provider: mysql\n"), 0o644))

	_, err := Scaffold(fs, "/project", "postgresql", false)
	require.Error(t, err)
	assert.Contains(t, errors.FlattenHints(err), "--force")

	data, err := afero.ReadFile(fs, "/project/.dbup/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "provider: mysql\n", string(data))

	result, err := Scaffold(fs, "/project", "postgresql", true)
	require.NoError(t, err)
	data, err = afero.ReadFile(fs, result.ConfigPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "provider: postgresql")
}

func TestScaffoldKeepsExistingGitignoreEntry(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/project/.gitignore", []byte("bin/\n.dbup/.env\n"), 0o644))

	result, err := Scaffold(fs, "/project", "", false)
	require.NoError(t, err)
	assert.False(t, result.GitignoreUpdated)

	data, err := afero.ReadFile(fs, "/project/.gitignore")
	require.NoError(t, err)
	assert.Equal(t, "bin/\n.dbup/.env\n", string(data))
}

func TestScaffoldUnknownProvider(t *testing.T) {
	_, err := Scaffold(afero.NewMemMapFs(), "/project", "oracle", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidPlan))
}
