// Package testutil sets up databases for tests that need a real server.
//
// SQLite always runs against a temporary file. Server providers are used
// only when their URL variable is set (POSTGRES_TEST_URL, MYSQL_TEST_URL,
// SQLSERVER_TEST_URL); otherwise the test is skipped, unless
// REQUIRE_TEST_DB=true turns the skip into a failure.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dbup-tool/dbup/internal/database"
	"github.com/dbup-tool/dbup/internal/plan"
	"github.com/dbup-tool/dbup/internal/provider"
)

// URLVariables maps server providers to the environment variable holding
// their test connection string.
var URLVariables = map[plan.Provider]string{
	plan.ProviderPostgreSQL: "POSTGRES_TEST_URL",
	plan.ProviderMySQL:      "MYSQL_TEST_URL",
	plan.ProviderSQLServer:  "SQLSERVER_TEST_URL",
}

const connectTimeout = 10 * time.Second

// TestDB is an open connection to a test database.
type TestDB struct {
	Provider         plan.Provider
	ConnectionString string
	Gateway          database.Gateway
	Conn             database.Connection
}

// SetupTestDB connects to a test database for p. The connection is closed
// when the test ends.
func SetupTestDB(t *testing.T, p plan.Provider) *TestDB {
	t.Helper()

	requireDB := os.Getenv("REQUIRE_TEST_DB") == "true"
	skip := func(format string, args ...any) {
		t.Helper()
		if requireDB {
			t.Fatalf(format, args...)
		}
		t.Skipf(format, args...)
	}

	var connStr string
	if p == plan.ProviderSQLite {
		connStr = filepath.Join(t.TempDir(), "test.db")
	} else {
		name, ok := URLVariables[p]
		if !ok {
			t.Fatalf("unknown provider %q", p)
		}
		connStr = os.Getenv(name)
		if connStr == "" {
			skip("%s not set; skipping %s test", name, p)
		}
	}

	gateway, err := provider.Gateway(p, nil)
	if err != nil {
		t.Fatalf("no gateway for %s: %v", p, err)
	}

	conn, err := gateway.Connect(context.Background(), connStr, connectTimeout)
	if err != nil {
		skip("%s not reachable: %v", p, err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &TestDB{
		Provider:         p,
		ConnectionString: connStr,
		Gateway:          gateway,
		Conn:             conn,
	}
}

// CleanupTables drops tables now and again when the test ends.
func (tdb *TestDB) CleanupTables(t *testing.T, tables ...string) {
	t.Helper()
	drop := func() {
		for _, table := range tables {
			stmt := "DROP TABLE IF EXISTS " + tdb.Gateway.Dialect().QuoteIdentifier(table)
			if tdb.Provider == plan.ProviderPostgreSQL {
				stmt += " CASCADE"
			}
			_, _ = tdb.Conn.ExecContext(context.Background(), stmt)
		}
	}
	drop()
	t.Cleanup(drop)
}

// Providers returns SQLite plus every server provider whose URL variable is set.
func Providers() []plan.Provider {
	providers := []plan.Provider{plan.ProviderSQLite}
	for _, p := range plan.Providers {
		if name, ok := URLVariables[p]; ok && os.Getenv(name) != "" {
			providers = append(providers, p)
		}
	}
	return providers
}
