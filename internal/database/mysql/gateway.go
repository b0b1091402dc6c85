// Package mysql is the MySQL gateway, built on go-sql-driver/mysql.
package mysql

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/dbup-tool/dbup/internal/database"
	"github.com/dbup-tool/dbup/internal/errors"
)

// MySQL error numbers treated as "already exists".
const (
	errDatabaseExists = 1007
	errTableExists    = 1050
	errDuplicateEntry = 1062
)

// Gateway implements database.Gateway for MySQL and MariaDB.
type Gateway struct {
	logger *zap.SugaredLogger
}

// New creates a MySQL gateway. A nil logger discards output.
func New(logger *zap.SugaredLogger) *Gateway {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Gateway{logger: logger}
}

// Name returns the provider name
func (g *Gateway) Name() string {
	return "mysql"
}

func (g *Gateway) Dialect() database.Dialect {
	return Dialect{}
}

// ParseDescriptor accepts a go-sql-driver DSN or a mysql:// URL. Scripts
// hold several statements, so multiStatements is always switched on.
func ParseDescriptor(descriptor string) (*mysql.Config, error) {
	dsn := strings.TrimSpace(descriptor)
	if strings.HasPrefix(strings.ToLower(dsn), "mysql://") {
		converted, err := urlToDSN(dsn)
		if err != nil {
			return nil, err
		}
		dsn = converted
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "invalid MySQL connection string"), errors.ErrConnection)
	}
	cfg.MultiStatements = true
	return cfg, nil
}

func urlToDSN(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Mark(errors.Wrap(err, "invalid MySQL connection URL"), errors.ErrConnection)
	}
	cfg := mysql.NewConfig()
	cfg.User = u.User.Username()
	cfg.Passwd, _ = u.User.Password()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = u.Hostname() + ":3306"
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	dsn := cfg.FormatDSN()
	if u.RawQuery != "" {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + u.RawQuery
	}
	return dsn, nil
}

func (g *Gateway) Connect(ctx context.Context, descriptor string, timeout time.Duration) (database.Connection, error) {
	cfg, err := ParseDescriptor(descriptor)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, "mysql", cfg.FormatDSN(), timeout)
	if err != nil {
		return nil, err
	}
	g.logger.Debugw("connected", "provider", g.Name(), "addr", cfg.Addr)
	return database.NewConnection(db, database.WithLogger(g.logger)), nil
}

// EnsureDatabase connects without selecting a database and creates it when missing.
func (g *Gateway) EnsureDatabase(ctx context.Context, descriptor string, timeout time.Duration) (bool, error) {
	cfg, err := ParseDescriptor(descriptor)
	if err != nil {
		return false, err
	}
	name := cfg.DBName
	if name == "" {
		return false, errors.Mark(errors.New("connection string does not name a database"), errors.ErrConnection)
	}
	cfg.DBName = ""

	db, err := database.Open(ctx, "mysql", cfg.FormatDSN(), timeout)
	if err != nil {
		return false, err
	}
	defer func() { _ = db.Close() }()

	qctx, cancel := database.WithTimeout(ctx, timeout)
	defer cancel()

	var count int
	if err := db.QueryRowContext(qctx, "SELECT COUNT(*) FROM information_schema.schemata WHERE schema_name = ?", name).Scan(&count); err != nil {
		return false, errors.Mark(errors.Wrap(err, "failed to check for database"), errors.ErrConnection)
	}
	if count > 0 {
		return false, nil
	}
	if _, err := db.ExecContext(qctx, "CREATE DATABASE "+Dialect{}.QuoteIdentifier(name)); err != nil {
		if (Dialect{}).IsDuplicateObject(err) {
			return false, nil
		}
		return false, errors.Mark(errors.Wrapf(err, "failed to create database %s", name), errors.ErrConnection)
	}
	g.logger.Infow("created database", "database", name)
	return true, nil
}

func (g *Gateway) BuiltinVariables(descriptor string) (map[string]string, error) {
	cfg, err := ParseDescriptor(descriptor)
	if err != nil {
		return nil, err
	}
	// No default database exists, so leave DatabaseName unset and let
	// scripts that use it fail as unresolved.
	if cfg.DBName == "" {
		return map[string]string{}, nil
	}
	return map[string]string{database.BuiltinDatabaseName: cfg.DBName}, nil
}

// Dialect is the MySQL SQL dialect.
type Dialect struct{}

func (Dialect) QuoteIdentifier(name string) string {
	return database.QuoteWith(name, "`", "`")
}

func (Dialect) Placeholder(int) string {
	return "?"
}

// DefaultSchema is empty: a MySQL schema is the database itself.
func (Dialect) DefaultSchema() string {
	return ""
}

func (Dialect) IsDuplicateObject(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	switch myErr.Number {
	case errDatabaseExists, errTableExists, errDuplicateEntry:
		return true
	}
	return false
}

var (
	_ database.Gateway = (*Gateway)(nil)
	_ database.Dialect = Dialect{}
)
