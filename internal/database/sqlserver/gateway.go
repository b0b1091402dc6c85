// Package sqlserver is the SQL Server gateway, built on microsoft/go-mssqldb.
package sqlserver

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"
	"go.uber.org/zap"

	"github.com/dbup-tool/dbup/internal/database"
	"github.com/dbup-tool/dbup/internal/errors"
)

const masterDatabase = "master"

// SQL Server error numbers treated as "already exists".
const (
	errDatabaseExists = 1801
	errUniqueIndex    = 2601
	errPrimaryKey     = 2627
	errObjectExists   = 2714
	errSchemaExists   = 2759
)

// Gateway implements database.Gateway for Microsoft SQL Server.
type Gateway struct {
	logger *zap.SugaredLogger
}

// New creates a SQL Server gateway. A nil logger discards output.
func New(logger *zap.SugaredLogger) *Gateway {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Gateway{logger: logger}
}

// Name returns the provider name
func (g *Gateway) Name() string {
	return "sqlserver"
}

func (g *Gateway) Dialect() database.Dialect {
	return Dialect{}
}

// Connect opens a connection whose scripts are split on GO separators.
func (g *Gateway) Connect(ctx context.Context, descriptor string, timeout time.Duration) (database.Connection, error) {
	db, err := database.Open(ctx, "sqlserver", strings.TrimSpace(descriptor), timeout)
	if err != nil {
		return nil, err
	}
	g.logger.Debugw("connected", "provider", g.Name())
	return database.NewConnection(db,
		database.WithLogger(g.logger),
		database.WithBatchSplitter(database.SplitGoBatches),
	), nil
}

// EnsureDatabase creates the target database from master when it is missing.
func (g *Gateway) EnsureDatabase(ctx context.Context, descriptor string, timeout time.Duration) (bool, error) {
	name, err := databaseName(descriptor)
	if err != nil {
		return false, err
	}
	if name == "" {
		return false, errors.Mark(errors.New("connection string does not name a database"), errors.ErrConnection)
	}
	master, err := WithDatabase(descriptor, masterDatabase)
	if err != nil {
		return false, err
	}

	db, err := database.Open(ctx, "sqlserver", master, timeout)
	if err != nil {
		return false, err
	}
	defer func() { _ = db.Close() }()

	qctx, cancel := database.WithTimeout(ctx, timeout)
	defer cancel()

	var count int
	if err := db.QueryRowContext(qctx, "SELECT COUNT(*) FROM sys.databases WHERE name = @p1", name).Scan(&count); err != nil {
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
	name, err := databaseName(descriptor)
	if err != nil {
		return nil, err
	}
	// Without a database the login's default applies, which the
	// descriptor cannot tell us.
	if name == "" {
		return map[string]string{}, nil
	}
	return map[string]string{database.BuiltinDatabaseName: name}, nil
}

func databaseName(descriptor string) (string, error) {
	cfg, err := msdsn.Parse(strings.TrimSpace(descriptor))
	if err != nil {
		return "", errors.Mark(errors.Wrap(err, "invalid SQL Server connection string"), errors.ErrConnection)
	}
	return cfg.Database, nil
}

// WithDatabase rewrites descriptor to select name. URL descriptors get a
// database query parameter; ADO-style descriptors get their database or
// initial catalog key replaced.
func WithDatabase(descriptor, name string) (string, error) {
	s := strings.TrimSpace(descriptor)
	if strings.HasPrefix(strings.ToLower(s), "sqlserver://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", errors.Mark(errors.Wrap(err, "invalid SQL Server connection URL"), errors.ErrConnection)
		}
		q := u.Query()
		q.Set("database", name)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	parts := splitPairs(s)
	out := make([]string, 0, len(parts)+1)
	for _, part := range parts {
		key, _, _ := strings.Cut(part, "=")
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "database", "initial catalog":
			continue
		case "":
			if strings.TrimSpace(part) == "" {
				continue
			}
		}
		out = append(out, part)
	}
	out = append(out, "database="+name)
	return strings.Join(out, ";"), nil
}

// splitPairs splits an ADO or ODBC style connection string on the
// semicolons between pairs. A value that starts with a brace or a quote
// may contain semicolons; "}}" and doubled quotes escape the closing
// character.
func splitPairs(s string) []string {
	var parts []string
	start := 0
	var closing byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case closing != 0:
			if c == closing {
				if i+1 < len(s) && s[i+1] == closing {
					i++
					continue
				}
				closing = 0
			}
		case (c == '{' || c == '"' || c == '\'') && strings.HasSuffix(strings.TrimRight(s[start:i], " \t"), "="):
			closing = c
			if c == '{' {
				closing = '}'
			}
		case c == ';':
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// Dialect is the T-SQL dialect.
type Dialect struct{}

func (Dialect) QuoteIdentifier(name string) string {
	return database.QuoteWith(name, "[", "]")
}

func (Dialect) Placeholder(position int) string {
	return "@p" + strconv.Itoa(position)
}

func (Dialect) DefaultSchema() string {
	return "dbo"
}

type sqlErrorNumber interface {
	SQLErrorNumber() int32
}

func (Dialect) IsDuplicateObject(err error) bool {
	var numbered sqlErrorNumber
	if !errors.As(err, &numbered) {
		return false
	}
	switch numbered.SQLErrorNumber() {
	case errDatabaseExists, errUniqueIndex, errPrimaryKey, errObjectExists, errSchemaExists:
		return true
	}
	return false
}

var (
	_ database.Gateway = (*Gateway)(nil)
	_ database.Dialect = Dialect{}
)
