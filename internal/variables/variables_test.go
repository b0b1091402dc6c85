package variables

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbup-tool/dbup/internal/errors"
)

func TestExpand(t *testing.T) {
	vars := map[string]string{"Schema": "app", "Owner": "admin", "empty": ""}

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"single", "CREATE SCHEMA ${Schema};", "CREATE SCHEMA app;"},
		{"repeated", "${Schema}.a, ${Schema}.b", "app.a, app.b"},
		{"several", "ALTER SCHEMA ${Schema} OWNER TO ${Owner};", "ALTER SCHEMA app OWNER TO admin;"},
		{"empty value", "x${empty}y", "xy"},
		{"no placeholders", "SELECT 1;", "SELECT 1;"},
		{"dollar quoting untouched", "DO $$ BEGIN END $$;", "DO $$ BEGIN END $$;"},
		{"unterminated", "SELECT '${Schema';", "SELECT '${Schema';"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.content, vars, true)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandDisabledIsIdentity(t *testing.T) {
	for _, content := range []string{
		"",
		"SELECT 1;",
		"CREATE SCHEMA ${Missing};",
		"${a}${b}${c}",
	} {
		got, err := Expand(content, nil, false)
		require.NoError(t, err)
		assert.Equal(t, content, got)
	}
}

func TestExpandUnresolvedFails(t *testing.T) {
	got, err := Expand("CREATE SCHEMA ${Schema}; GRANT ALL TO ${Role};", map[string]string{"Schema": "app"}, true)
	require.Error(t, err)
	assert.Empty(t, got)
	assert.True(t, errors.Is(err, errors.ErrUnresolvedVariable))

	var uv *errors.UnresolvedVariableError
	require.True(t, errors.As(err, &uv))
	assert.Equal(t, "Role", uv.Name)
}

func TestExpandMalformedPlaceholdersFail(t *testing.T) {
	vars := map[string]string{"Name": "x"}

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"padded name", "SELECT '${ Name }';", " Name "},
		{"space inside", "SELECT '${my var}';", "my var"},
		{"leading digit", "SELECT '${1st}';", "1st"},
		{"empty", "SELECT '${}';", ""},
		{"whitespace only", "SELECT '${  }';", "  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.content, vars, true)
			require.Error(t, err)
			assert.Empty(t, got)

			var uv *errors.UnresolvedVariableError
			require.True(t, errors.As(err, &uv))
			assert.Equal(t, tt.want, uv.Name)
		})
	}
}

func TestExpandIsCaseSensitive(t *testing.T) {
	_, err := Expand("${schema}", map[string]string{"Schema": "app"}, true)
	assert.True(t, errors.Is(err, errors.ErrUnresolvedVariable))
}

func TestMergeBuiltinsWin(t *testing.T) {
	merged := Merge(
		map[string]string{"DatabaseName": "spoofed", "Env": "dev"},
		map[string]string{"DatabaseName": "orders"},
	)
	assert.Equal(t, map[string]string{"DatabaseName": "orders", "Env": "dev"}, merged)
}

func TestReferenced(t *testing.T) {
	assert.Equal(t, []string{"A", "b.c"}, Referenced("${b.c} ${A} ${A}"))
	assert.Empty(t, Referenced("SELECT 1"))
}

func TestRedact(t *testing.T) {
	got := Redact(map[string]string{"AdminPassword": "hunter2", "ApiToken": "t", "Env": "dev"})
	assert.Equal(t, map[string]string{"AdminPassword": "****", "ApiToken": "****", "Env": "dev"}, got)
}
