package journal

import (
	"fmt"
	"strings"

	"github.com/dbup-tool/dbup/internal/database"
	"github.com/dbup-tool/dbup/internal/plan"
)

const columns = "script_name, applied_at_utc, script_hash"

// statements holds the provider-specific SQL for one journal table. table
// arguments are already quoted and qualified.
type statements struct {
	// createSchema is nil when the provider has no schema namespace to create.
	createSchema   func(schema string, d database.Dialect) string
	createTable    func(table string) string
	createLog      func(table string) string
	insertIfAbsent func(table string, d database.Dialect) string
	// exists counts catalog rows for the unquoted schema and table.
	exists func(d database.Dialect, schema, table string) (string, []any)
}

func placeholders(d database.Dialect, n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = d.Placeholder(i + 1)
	}
	return strings.Join(out, ", ")
}

var dialects = map[plan.Provider]statements{
	plan.ProviderPostgreSQL: {
		createSchema: func(schema string, d database.Dialect) string {
			return "CREATE SCHEMA IF NOT EXISTS " + d.QuoteIdentifier(schema)
		},
		createTable: func(table string) string {
			return "CREATE TABLE IF NOT EXISTS " + table + " (script_name VARCHAR(255) NOT NULL PRIMARY KEY, applied_at_utc TIMESTAMP NOT NULL, script_hash VARCHAR(64) NULL)"
		},
		createLog: func(table string) string {
			return "CREATE TABLE IF NOT EXISTS " + table + " (script_name VARCHAR(255) NOT NULL, applied_at_utc TIMESTAMP NOT NULL, script_hash VARCHAR(64) NULL)"
		},
		insertIfAbsent: func(table string, d database.Dialect) string {
			return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (script_name) DO NOTHING", table, columns, placeholders(d, 3))
		},
		exists: func(d database.Dialect, schema, table string) (string, []any) {
			return fmt.Sprintf("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = %s AND table_name = %s",
				d.Placeholder(1), d.Placeholder(2)), []any{schema, table}
		},
	},
	plan.ProviderSQLite: {
		createTable: func(table string) string {
			return "CREATE TABLE IF NOT EXISTS " + table + " (script_name TEXT NOT NULL PRIMARY KEY, applied_at_utc DATETIME NOT NULL, script_hash TEXT NULL)"
		},
		createLog: func(table string) string {
			return "CREATE TABLE IF NOT EXISTS " + table + " (script_name TEXT NOT NULL, applied_at_utc DATETIME NOT NULL, script_hash TEXT NULL)"
		},
		insertIfAbsent: func(table string, d database.Dialect) string {
			return fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (%s)", table, columns, placeholders(d, 3))
		},
		exists: func(d database.Dialect, _, table string) (string, []any) {
			return "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = " + d.Placeholder(1), []any{table}
		},
	},
	plan.ProviderMySQL: {
		createTable: func(table string) string {
			return "CREATE TABLE IF NOT EXISTS " + table + " (script_name VARCHAR(255) NOT NULL PRIMARY KEY, applied_at_utc DATETIME(6) NOT NULL, script_hash VARCHAR(64) NULL)"
		},
		createLog: func(table string) string {
			return "CREATE TABLE IF NOT EXISTS " + table + " (script_name VARCHAR(255) NOT NULL, applied_at_utc DATETIME(6) NOT NULL, script_hash VARCHAR(64) NULL)"
		},
		insertIfAbsent: func(table string, d database.Dialect) string {
			return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s)", table, columns, placeholders(d, 3))
		},
		// An empty schema means the database of the connection.
		exists: func(d database.Dialect, schema, table string) (string, []any) {
			return fmt.Sprintf("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = COALESCE(NULLIF(%s, ''), DATABASE()) AND table_name = %s",
				d.Placeholder(1), d.Placeholder(2)), []any{schema, table}
		},
	},
	plan.ProviderSQLServer: {
		createSchema: func(schema string, d database.Dialect) string {
			return fmt.Sprintf("IF NOT EXISTS (SELECT 1 FROM sys.schemas WHERE name = N'%s') EXEC('CREATE SCHEMA %s')",
				strings.ReplaceAll(schema, "'", "''"), strings.ReplaceAll(d.QuoteIdentifier(schema), "'", "''"))
		},
		createTable: func(table string) string {
			return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (script_name NVARCHAR(255) NOT NULL PRIMARY KEY, applied_at_utc DATETIME2 NOT NULL, script_hash NVARCHAR(64) NULL)",
				strings.ReplaceAll(table, "'", "''"), table)
		},
		createLog: func(table string) string {
			return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (script_name NVARCHAR(255) NOT NULL, applied_at_utc DATETIME2 NOT NULL, script_hash NVARCHAR(64) NULL)",
				strings.ReplaceAll(table, "'", "''"), table)
		},
		insertIfAbsent: func(table string, d database.Dialect) string {
			return fmt.Sprintf("IF NOT EXISTS (SELECT 1 FROM %s WHERE script_name = %s) INSERT INTO %s (%s) VALUES (%s)",
				table, d.Placeholder(1), table, columns, placeholders(d, 3))
		},
		exists: func(d database.Dialect, schema, table string) (string, []any) {
			return fmt.Sprintf("SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = %s AND TABLE_NAME = %s",
				d.Placeholder(1), d.Placeholder(2)), []any{schema, table}
		},
	},
}
