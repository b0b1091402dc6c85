// Package sqlite is the SQLite gateway. Local files use modernc.org/sqlite;
// libsql:// and https:// descriptors go to a libSQL server.
package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dbup-tool/dbup/internal/database"
	"github.com/dbup-tool/dbup/internal/errors"
)

// Gateway implements database.Gateway for SQLite and libSQL.
type Gateway struct {
	logger *zap.SugaredLogger
}

// New creates a SQLite gateway. A nil logger discards output.
func New(logger *zap.SugaredLogger) *Gateway {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Gateway{logger: logger}
}

// Name returns the provider name
func (g *Gateway) Name() string {
	return "sqlite"
}

func (g *Gateway) Dialect() database.Dialect {
	return Dialect{}
}

// driverFor picks the database/sql driver and DSN for descriptor.
func driverFor(descriptor string) (string, string) {
	if IsRemote(descriptor) {
		return "libsql", strings.TrimSpace(descriptor)
	}
	return "sqlite", DSN(descriptor)
}

func (g *Gateway) Connect(ctx context.Context, descriptor string, timeout time.Duration) (database.Connection, error) {
	driver, dsn := driverFor(descriptor)
	db, err := database.Open(ctx, driver, dsn, timeout)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; one pooled connection keeps the open
	// transaction and every statement on the same handle.
	db.SetMaxOpenConns(1)
	g.logger.Debugw("connected", "provider", g.Name(), "driver", driver)
	return database.NewConnection(db, database.WithLogger(g.logger)), nil
}

// EnsureDatabase creates the database file and its parent directory.
// Remote and in-memory databases always exist.
func (g *Gateway) EnsureDatabase(ctx context.Context, descriptor string, timeout time.Duration) (bool, error) {
	if IsRemote(descriptor) || IsMemory(descriptor) {
		return false, nil
	}

	path := FilePath(descriptor)
	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return false, errors.Mark(errors.Newf("path is a directory, not a file: %s", path), errors.ErrConnection)
	case err == nil && info.Size() > 0:
		return false, nil
	case err != nil && !os.IsNotExist(err):
		return false, errors.Mark(errors.Wrapf(err, "failed to stat %s", path), errors.ErrConnection)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, errors.Mark(errors.Wrapf(err, "failed to create directory %s", dir), errors.ErrConnection)
		}
	}

	db, err := database.Open(ctx, "sqlite", DSN(descriptor), timeout)
	if err != nil {
		return false, err
	}
	defer func() { _ = db.Close() }()

	// The file is not written until something is stored in it.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _dbup_init (id INTEGER PRIMARY KEY); DROP TABLE IF EXISTS _dbup_init;"); err != nil {
		return false, errors.Mark(errors.Wrap(err, "failed to initialize database"), errors.ErrConnection)
	}
	g.logger.Infow("created database", "path", path)
	return true, nil
}

func (g *Gateway) BuiltinVariables(descriptor string) (map[string]string, error) {
	return map[string]string{database.BuiltinDatabaseName: DatabaseName(descriptor)}, nil
}

// Dialect is the SQLite SQL dialect.
type Dialect struct{}

func (Dialect) QuoteIdentifier(name string) string {
	return database.QuoteWith(name, `"`, `"`)
}

func (Dialect) Placeholder(int) string {
	return "?"
}

func (Dialect) DefaultSchema() string {
	return ""
}

func (Dialect) IsDuplicateObject(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "unique constraint failed")
}

var (
	_ database.Gateway = (*Gateway)(nil)
	_ database.Dialect = Dialect{}
)
