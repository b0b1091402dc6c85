package sqlite

import (
	"testing"
)

func TestIsRemote(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"memory database", ":memory:", false},
		{"libsql URL", "libsql://mydb.turso.io", true},
		{"libsql uppercase", "LIBSQL://mydb.turso.io", true},
		{"https URL", "https://mydb.turso.io?authToken=abc", true},
		{"sqlite URL", "sqlite:///path/to/db.sqlite", false},
		{"file URL", "file:/path/to/db.db", false},
		{"relative path", "./local.db", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsRemote(tt.input)
			if result != tt.expected {
				t.Errorf("IsRemote(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFilePath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"sqlite URL", "sqlite:///path/to/db.sqlite", "/path/to/db.sqlite"},
		{"sqlite URL with query", "sqlite:///path/to/db.sqlite?mode=ro", "/path/to/db.sqlite"},
		{"file URL", "file:/path/to/db.db", "/path/to/db.db"},
		{"file URL with query", "file:/path/to/db.db?mode=rw", "/path/to/db.db"},
		{"plain path", "/var/data/app.db", "/var/data/app.db"},
		{"relative path", "./local.db", "./local.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FilePath(tt.input)
			if result != tt.expected {
				t.Errorf("FilePath(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain path", "/var/data/app.db", "file:/var/data/app.db?_pragma=busy_timeout(5000)"},
		{"sqlite URL", "sqlite:///var/data/app.db?mode=rw", "file:/var/data/app.db?mode=rw&_pragma=busy_timeout(5000)"},
		{"file URL", "file:app.db?cache=shared", "file:app.db?cache=shared&_pragma=busy_timeout(5000)"},
		{"explicit busy timeout", "app.db?_pragma=busy_timeout(100)", "file:app.db?_pragma=busy_timeout(100)"},
		{"memory", ":memory:", ":memory:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DSN(tt.input)
			if result != tt.expected {
				t.Errorf("DSN(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestDatabaseName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/var/data/orders.db", "orders"},
		{"sqlite:///var/data/inventory.sqlite3?mode=rw", "inventory"},
		{"libsql://shop-acme.turso.io?authToken=x", "shop-acme"},
		{":memory:", "memory"},
	}

	for _, tt := range tests {
		if got := DatabaseName(tt.input); got != tt.expected {
			t.Errorf("DatabaseName(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
