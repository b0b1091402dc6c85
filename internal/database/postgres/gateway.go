// Package postgres is the PostgreSQL gateway. lib/pq is the driver;
// pgconn parses connection strings.
package postgres

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/dbup-tool/dbup/internal/database"
	"github.com/dbup-tool/dbup/internal/errors"
)

const maintenanceDatabase = "postgres"

// Gateway implements database.Gateway for PostgreSQL.
type Gateway struct {
	logger *zap.SugaredLogger
}

// New creates a PostgreSQL gateway. A nil logger discards output.
func New(logger *zap.SugaredLogger) *Gateway {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Gateway{logger: logger}
}

// Name returns the provider name
func (g *Gateway) Name() string {
	return "postgresql"
}

func (g *Gateway) Dialect() database.Dialect {
	return Dialect{}
}

// Connect opens a connection, and runs a ping to test it
func (g *Gateway) Connect(ctx context.Context, descriptor string, timeout time.Duration) (database.Connection, error) {
	db, err := database.Open(ctx, "postgres", descriptor, timeout)
	if err != nil {
		return nil, err
	}
	g.logger.Debugw("connected", "provider", g.Name())
	return database.NewConnection(db, database.WithLogger(g.logger)), nil
}

// EnsureDatabase creates the database named by descriptor through the
// postgres maintenance database.
func (g *Gateway) EnsureDatabase(ctx context.Context, descriptor string, timeout time.Duration) (bool, error) {
	cfg, err := ParseDescriptor(descriptor)
	if err != nil {
		return false, err
	}
	name := DatabaseName(cfg)
	if name == "" {
		return false, errors.Mark(errors.New("connection string does not name a database"), errors.ErrConnection)
	}

	maintenance, err := maintenanceDescriptor(descriptor)
	if err != nil {
		return false, err
	}
	db, err := database.Open(ctx, "postgres", maintenance, timeout)
	if err != nil {
		return false, err
	}
	defer func() { _ = db.Close() }()

	qctx, cancel := database.WithTimeout(ctx, timeout)
	defer cancel()

	var exists bool
	if err := db.QueryRowContext(qctx, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", name).Scan(&exists); err != nil {
		return false, errors.Mark(errors.Wrap(err, "failed to check for database"), errors.ErrConnection)
	}
	if exists {
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

// BuiltinVariables reports the database the descriptor connects to. With
// no dbname the server uses the user name, and so does DatabaseName.
func (g *Gateway) BuiltinVariables(descriptor string) (map[string]string, error) {
	cfg, err := ParseDescriptor(descriptor)
	if err != nil {
		return nil, err
	}
	name := DatabaseName(cfg)
	if name == "" {
		return map[string]string{}, nil
	}
	return map[string]string{database.BuiltinDatabaseName: name}, nil
}

// ParseDescriptor parses a postgres:// URL or a keyword/value connection
// string. PG* environment variables fill in what the descriptor leaves out,
// as they do for the server connection.
func ParseDescriptor(descriptor string) (*pgconn.Config, error) {
	cfg, err := pgconn.ParseConfig(strings.TrimSpace(descriptor))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "invalid connection string"), errors.ErrConnection)
	}
	return cfg, nil
}

// DatabaseName is the database a connection with cfg lands in.
func DatabaseName(cfg *pgconn.Config) string {
	if cfg.Database != "" {
		return cfg.Database
	}
	return cfg.User
}

// maintenanceDescriptor points descriptor at the postgres database. In the
// keyword/value form a repeated keyword overrides the earlier one.
func maintenanceDescriptor(descriptor string) (string, error) {
	s := strings.TrimSpace(descriptor)
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", errors.Mark(errors.Wrap(err, "invalid connection URL"), errors.ErrConnection)
		}
		u.Path = "/" + maintenanceDatabase
		u.RawPath = ""
		return u.String(), nil
	}
	return s + " dbname=" + maintenanceDatabase, nil
}

// Dialect is the PostgreSQL SQL dialect.
type Dialect struct{}

func (Dialect) QuoteIdentifier(name string) string {
	return database.QuoteWith(name, `"`, `"`)
}

func (Dialect) Placeholder(position int) string {
	return "$" + strconv.Itoa(position)
}

func (Dialect) DefaultSchema() string {
	return "public"
}

// IsDuplicateObject matches duplicate_database, duplicate_schema,
// duplicate_table and unique_violation. Concurrent CREATE ... IF NOT EXISTS
// can still fail with unique_violation on the system catalogs.
func (Dialect) IsDuplicateObject(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "42P04", "42P06", "42P07", "23505":
		return true
	}
	return false
}

var (
	_ database.Gateway = (*Gateway)(nil)
	_ database.Dialect = Dialect{}
)
