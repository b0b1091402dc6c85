package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbup-tool/dbup/internal/errors"
)

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("DBUP_CONNECTION_STRING", "")
	t.Setenv("DBUP_CONFIG_FILE", "")

	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// project writes .dbup/config.yaml pointing at a sqlite database in a temp
// dir and returns the config path and the migrations folder.
func project(t *testing.T, extra string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dbupDir := filepath.Join(dir, ".dbup")
	migrations := filepath.Join(dbupDir, "migrations")
	require.NoError(t, os.MkdirAll(migrations, 0o755))

	configPath := filepath.Join(dbupDir, "config.yaml")
	body := "dbUp:\n" +
		"  provider: sqlite\n" +
		"  connectionString: " + filepath.Join(dir, "app.db") + "\n" +
		"  scripts:\n" +
		"    - folder: migrations\n" +
		extra
	require.NoError(t, os.WriteFile(configPath, []byte(body), 0o644))
	return configPath, migrations
}

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"init", "create", "upgrade", "status", "validate", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestUpgradeThenStatus(t *testing.T) {
	configPath, migrations := project(t, "")
	writeScript(t, migrations, "001_users.sql", "CREATE TABLE users (id INTEGER PRIMARY KEY);")
	writeScript(t, migrations, "002_orders.sql", "CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER);")

	out, _, err := execute(t, "upgrade", "--config-file", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "001_users.sql")
	assert.Contains(t, out, "Applied 2 script(s)")

	out, _, err = execute(t, "upgrade", "--config-file", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Database is up to date")

	writeScript(t, migrations, "003_items.sql", "CREATE TABLE items (id INTEGER PRIMARY KEY);")
	out, _, err = execute(t, "status", "--config-file", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Applied: 2")
	assert.Contains(t, out, "Outstanding: 1")
	assert.Contains(t, out, "003_items.sql")

	out, _, err = execute(t, "status", "--config-file", configPath, "--output-format", "json")
	require.NoError(t, err)
	var report statusReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Applied, 2)
	assert.Equal(t, "001_users.sql", report.Applied[0].Script)
	require.Len(t, report.Outstanding, 1)
	assert.Equal(t, "003_items.sql", report.Outstanding[0].Script)
}

func TestStatusOnFreshDatabase(t *testing.T) {
	configPath, migrations := project(t, "")
	writeScript(t, migrations, "001_users.sql", "CREATE TABLE users (id INTEGER PRIMARY KEY);")
	writeScript(t, migrations, "002_orders.sql", "CREATE TABLE orders (id INTEGER PRIMARY KEY);")

	out, _, err := execute(t, "status", "--config-file", configPath, "--output-format", "json")
	require.NoError(t, err)
	var report statusReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Empty(t, report.Applied)
	require.Len(t, report.Outstanding, 2)
	assert.Equal(t, "001_users.sql", report.Outstanding[0].Script)

	out, _, err = execute(t, "upgrade", "--config-file", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 2 script(s)", "status left no journal behind that would skip scripts")
}

func TestUpgradeReportsFailingScript(t *testing.T) {
	configPath, migrations := project(t, "")
	writeScript(t, migrations, "001_ok.sql", "CREATE TABLE ok (id INTEGER);")
	writeScript(t, migrations, "002_broken.sql", "CREATE TABLE broken (;")

	out, errOut, err := execute(t, "upgrade", "--config-file", configPath)
	require.Error(t, err)
	assert.Equal(t, "ExecutionError", errors.Kind(err))
	assert.Contains(t, out, "Failed 002_broken.sql")
	assert.NotContains(t, out, "✗")
	assert.NotContains(t, errOut, "✗")
	identity, ok := errors.ScriptIdentity(err)
	require.True(t, ok)
	assert.Equal(t, "002_broken.sql", identity)

	var buf bytes.Buffer
	printFailure(&buf, err)
	assert.Contains(t, buf.String(), "✗ ExecutionError in 002_broken.sql:")
	assert.Equal(t, 1, strings.Count(buf.String()+out+errOut, "✗"))
}

func TestUpgradeMissingConfig(t *testing.T) {
	_, _, err := execute(t, "upgrade", "--config-file", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidPlan))

	var buf bytes.Buffer
	printFailure(&buf, err)
	assert.Contains(t, buf.String(), "✗ InvalidPlan:")
	assert.Contains(t, buf.String(), "hint: ")
}

func TestValidate(t *testing.T) {
	configPath, migrations := project(t, "  variables:\n    Owner: app\n")
	writeScript(t, migrations, "001_users.sql", "CREATE TABLE users (owner TEXT DEFAULT '${Owner}');")

	out, _, err := execute(t, "validate", "--config-file", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "1 script(s) valid")

	writeScript(t, migrations, "002_grants.sql", "-- ${Missing}\nSELECT 1;")
	_, errOut, err := execute(t, "validate", "--config-file", configPath)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidPlan))
	assert.Contains(t, errOut, "002_grants.sql")
	assert.Contains(t, errOut, "Missing")
}

func TestValidateDoesNotCreateDatabase(t *testing.T) {
	configPath, migrations := project(t, "")
	writeScript(t, migrations, "001_users.sql", "CREATE TABLE users (id INTEGER);")

	_, _, err := execute(t, "validate", "--config-file", configPath)
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(filepath.Dir(filepath.Dir(configPath)), "app.db"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestInitScaffoldsAndRefusesOverwrite(t *testing.T) {
	previous := fsys
	fsys = afero.NewMemMapFs()
	t.Cleanup(func() { fsys = previous })

	cwd, err := os.Getwd()
	require.NoError(t, err)

	out, _, err := execute(t, "init", "--provider", "sqlite")
	require.NoError(t, err)
	assert.Contains(t, out, "config.yaml")

	data, err := afero.ReadFile(fsys, filepath.Join(cwd, ".dbup", "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "sqlite")

	_, _, err = execute(t, "init", "--provider", "sqlite")
	require.Error(t, err)

	_, _, err = execute(t, "init", "--provider", "sqlite", "--force")
	require.NoError(t, err)
}

func TestInitUnknownProvider(t *testing.T) {
	previous := fsys
	fsys = afero.NewMemMapFs()
	t.Cleanup(func() { fsys = previous })

	_, _, err := execute(t, "init", "--provider", "oracle")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestCreateMakesDatabaseThenUpgrades(t *testing.T) {
	configPath, migrations := project(t, "")
	writeScript(t, migrations, "001_users.sql", "CREATE TABLE users (id INTEGER PRIMARY KEY);")
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "app.db")

	out, _, err := execute(t, "create", dbPath, "--config-file", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Created database")
	assert.Contains(t, out, "Applied 1 script(s)")
	assert.FileExists(t, dbPath)

	out, _, err = execute(t, "create", dbPath, "--config-file", configPath)
	require.NoError(t, err)
	assert.NotContains(t, out, "Created database")
}
