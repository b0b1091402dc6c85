// Package journal records which scripts have been applied to a database.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dbup-tool/dbup/internal/database"
	"github.com/dbup-tool/dbup/internal/errors"
	"github.com/dbup-tool/dbup/internal/plan"
)

// DefaultTable is used when the plan does not name a journal table.
const DefaultTable = "schemaversions"

// RunAlwaysSuffix names the table that logs RunAlways executions.
const RunAlwaysSuffix = "_run_always"

// Entry is one applied script.
type Entry struct {
	Identity  string
	AppliedAt time.Time
	Hash      string
}

// Journal is the durable record of applied scripts.
type Journal interface {
	// EnsureStoreExists creates the journal table if absent. Concurrent
	// callers racing on creation all succeed.
	EnsureStoreExists(ctx context.Context) error
	// StoreExists reports whether the journal table is present. It never
	// creates anything.
	StoreExists(ctx context.Context) (bool, error)
	HasBeenApplied(ctx context.Context, identity string) (bool, error)
	// RecordApplied inserts entry unless its identity is already present.
	RecordApplied(ctx context.Context, entry Entry) error
	// RecordRunAlways logs a RunAlways execution when the journal is
	// configured to; otherwise it does nothing.
	RecordRunAlways(ctx context.Context, entry Entry) error
	// Entries lists applied scripts in application order.
	Entries(ctx context.Context) ([]Entry, error)
}

// SQLJournal stores entries in a table of the target database. It runs on
// the engine's connection, so inside a transaction its writes commit or roll
// back together with the script.
type SQLJournal struct {
	exec            database.Executor
	dialect         database.Dialect
	stmts           statements
	schema          string
	name            string
	table           string
	logTable        string
	recordRunAlways bool
	logger          *zap.SugaredLogger
}

// New creates a journal for provider at loc. Empty schema and table fall
// back to the dialect default schema and DefaultTable.
func New(exec database.Executor, provider plan.Provider, dialect database.Dialect, loc plan.JournalLocation, logger *zap.SugaredLogger) (*SQLJournal, error) {
	stmts, ok := dialects[provider]
	if !ok {
		return nil, errors.Mark(errors.Newf("no journal support for provider %q", provider), errors.ErrInvalidPlan)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	schema := loc.Schema
	if schema == "" {
		schema = dialect.DefaultSchema()
	}
	table := loc.Table
	if table == "" {
		table = DefaultTable
	}

	return &SQLJournal{
		exec:            exec,
		dialect:         dialect,
		stmts:           stmts,
		schema:          schema,
		name:            table,
		table:           qualify(dialect, schema, table),
		logTable:        qualify(dialect, schema, table+RunAlwaysSuffix),
		recordRunAlways: loc.RecordRunAlways,
		logger:          logger,
	}, nil
}

func qualify(d database.Dialect, schema, table string) string {
	if schema == "" {
		return d.QuoteIdentifier(table)
	}
	return d.QuoteIdentifier(schema) + "." + d.QuoteIdentifier(table)
}

// Table returns the qualified, quoted journal table name.
func (j *SQLJournal) Table() string {
	return j.table
}

func (j *SQLJournal) EnsureStoreExists(ctx context.Context) error {
	var ddl []string
	if j.stmts.createSchema != nil && j.schema != "" && j.schema != j.dialect.DefaultSchema() {
		ddl = append(ddl, j.stmts.createSchema(j.schema, j.dialect))
	}
	ddl = append(ddl, j.stmts.createTable(j.table))
	if j.recordRunAlways {
		ddl = append(ddl, j.stmts.createLog(j.logTable))
	}

	for _, stmt := range ddl {
		if _, err := j.exec.ExecContext(ctx, stmt); err != nil {
			if j.dialect.IsDuplicateObject(err) {
				j.logger.Debugw("journal store created concurrently", "table", j.table)
				continue
			}
			return errors.Mark(errors.Wrapf(err, "failed to create journal %s", j.table), errors.ErrJournalWrite)
		}
	}
	j.logger.Debugw("journal store ready", "table", j.table)
	return nil
}

func (j *SQLJournal) StoreExists(ctx context.Context) (bool, error) {
	query, args := j.stmts.exists(j.dialect, j.schema, j.name)
	n, err := j.count(ctx, query, args...)
	if err != nil {
		return false, errors.Wrapf(err, "failed to look up journal %s", j.table)
	}
	return n > 0, nil
}

func (j *SQLJournal) HasBeenApplied(ctx context.Context, identity string) (bool, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE script_name = %s", j.table, j.dialect.Placeholder(1))
	n, err := j.count(ctx, query, identity)
	if err != nil {
		return false, errors.Wrapf(err, "failed to read journal %s", j.table)
	}
	return n > 0, nil
}

func (j *SQLJournal) count(ctx context.Context, query string, args ...any) (int, error) {
	rows, err := j.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, errors.Wrap(err, "failed to scan count")
		}
	}
	return n, rows.Err()
}

func (j *SQLJournal) RecordApplied(ctx context.Context, entry Entry) error {
	if err := j.insert(ctx, j.stmts.insertIfAbsent(j.table, j.dialect), entry); err != nil {
		if j.dialect.IsDuplicateObject(err) {
			j.logger.Debugw("script recorded concurrently", "script", entry.Identity)
			return nil
		}
		return errors.Mark(errors.Wrapf(err, "failed to record %s in %s", entry.Identity, j.table), errors.ErrJournalWrite)
	}
	return nil
}

func (j *SQLJournal) RecordRunAlways(ctx context.Context, entry Entry) error {
	if !j.recordRunAlways {
		return nil
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", j.logTable, columns, placeholders(j.dialect, 3))
	if err := j.insert(ctx, query, entry); err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to record %s in %s", entry.Identity, j.logTable), errors.ErrJournalWrite)
	}
	return nil
}

func (j *SQLJournal) insert(ctx context.Context, query string, entry Entry) error {
	applied := entry.AppliedAt
	if applied.IsZero() {
		applied = time.Now()
	}
	var hash any
	if entry.Hash != "" {
		hash = entry.Hash
	}
	_, err := j.exec.ExecContext(ctx, query, entry.Identity, applied.UTC(), hash)
	return err
}

func (j *SQLJournal) Entries(ctx context.Context) ([]Entry, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY applied_at_utc, script_name", columns, j.table)
	rows, err := j.exec.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read journal %s", j.table)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			applied any
			hash    sql.NullString
		)
		if err := rows.Scan(&e.Identity, &applied, &hash); err != nil {
			return nil, errors.Wrap(err, "failed to scan journal entry")
		}
		if e.AppliedAt, err = parseTime(applied); err != nil {
			return nil, errors.Wrapf(err, "journal entry %s", e.Identity)
		}
		e.Hash = hash.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read journal %s", j.table)
	}
	return entries, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// parseTime normalises the applied_at_utc column, which drivers return as
// time.Time, text or bytes.
func parseTime(v any) (time.Time, error) {
	var s string
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case []byte:
		s = string(t)
	case string:
		s = t
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, errors.Newf("unexpected applied_at_utc type %T", v)
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, errors.Newf("unrecognised applied_at_utc value %q", s)
}

var _ Journal = (*SQLJournal)(nil)
