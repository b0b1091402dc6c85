package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dbup-tool/dbup/internal/errors"
)

// SQLConnection implements Connection over database/sql.
type SQLConnection struct {
	db     *sql.DB
	tx     *sql.Tx
	split  func(string) []string
	logger *zap.SugaredLogger
}

// Option configures a SQLConnection.
type Option func(*SQLConnection)

// WithBatchSplitter makes ExecuteScript run each batch returned by split
// as its own statement.
func WithBatchSplitter(split func(string) []string) Option {
	return func(c *SQLConnection) { c.split = split }
}

// WithLogger sets the debug logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *SQLConnection) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConnection wraps db. The connection owns db and closes it on Close.
func NewConnection(db *sql.DB, opts ...Option) *SQLConnection {
	c := &SQLConnection{db: db, logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *SQLConnection) executor() Executor {
	if c.tx != nil {
		return c.tx
	}
	return c.db
}

func (c *SQLConnection) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.executor().ExecContext(ctx, query, args...)
}

func (c *SQLConnection) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.executor().QueryContext(ctx, query, args...)
}

func (c *SQLConnection) ExecuteScript(ctx context.Context, text string) error {
	batches := []string{text}
	if c.split != nil {
		batches = c.split(text)
	}
	for i, batch := range batches {
		if strings.TrimSpace(batch) == "" {
			continue
		}
		if _, err := c.executor().ExecContext(ctx, batch); err != nil {
			if len(batches) > 1 {
				return errors.Wrapf(err, "batch %d of %d", i+1, len(batches))
			}
			return err
		}
	}
	return nil
}

// BeginTransaction opens a transaction. It is detached from ctx's
// cancellation so a cancelled caller cannot roll it back underneath the engine.
func (c *SQLConnection) BeginTransaction(ctx context.Context) error {
	if c.tx != nil {
		return errors.New("transaction already open")
	}
	tx, err := c.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	c.logger.Debugw("transaction started")
	c.tx = tx
	return nil
}

func (c *SQLConnection) Commit() error {
	if c.tx == nil {
		return errors.New("no transaction to commit")
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	c.logger.Debugw("transaction committed")
	return nil
}

// Rollback undoes the open transaction. Without one it does nothing.
func (c *SQLConnection) Rollback() error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return errors.Wrap(err, "failed to roll back transaction")
	}
	c.logger.Debugw("transaction rolled back")
	return nil
}

func (c *SQLConnection) InTransaction() bool {
	return c.tx != nil
}

func (c *SQLConnection) Close() error {
	rbErr := c.Rollback()
	if err := c.db.Close(); err != nil {
		return errors.Wrap(err, "failed to close connection")
	}
	return rbErr
}

// Open opens driverName with dsn and pings it within timeout. Failures are
// marked errors.ErrConnection. A zero timeout means no limit.
func Open(ctx context.Context, driverName, dsn string, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to open connection"), errors.ErrConnection)
	}

	pingCtx, cancel := WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Mark(errors.Wrap(err, "failed to ping database"), errors.ErrConnection)
	}
	return db, nil
}

// QuoteWith quotes name with open and closing, doubling any embedded closing quote.
func QuoteWith(name, open, closing string) string {
	return open + strings.ReplaceAll(name, closing, closing+closing) + closing
}

// WithTimeout bounds ctx by timeout. A zero timeout only adds cancellation.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
