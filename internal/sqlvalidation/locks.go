package sqlvalidation

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// LockMode is a PostgreSQL table lock level, weakest first.
type LockMode int

const (
	LockAccessShare LockMode = iota
	LockRowExclusive
	LockShareUpdateExclusive
	LockShare
	LockAccessExclusive
)

func (m LockMode) String() string {
	switch m {
	case LockAccessShare:
		return "ACCESS SHARE"
	case LockRowExclusive:
		return "ROW EXCLUSIVE"
	case LockShareUpdateExclusive:
		return "SHARE UPDATE EXCLUSIVE"
	case LockShare:
		return "SHARE"
	case LockAccessExclusive:
		return "ACCESS EXCLUSIVE"
	}
	return "UNKNOWN"
}

// BlocksReads reports whether plain SELECTs wait for the lock.
func (m LockMode) BlocksReads() bool {
	return m == LockAccessExclusive
}

// BlocksWrites reports whether INSERT, UPDATE and DELETE wait for the lock.
func (m LockMode) BlocksWrites() bool {
	return m >= LockShare
}

// lockIssues reports statements that hold a blocking lock for as long as
// it takes to scan or rewrite a table, with the non-blocking alternative.
func lockIssues(script, sql string, tree *pg_query.ParseResult, opts Options) []ValidationIssue {
	var issues []ValidationIssue
	for _, raw := range tree.Stmts {
		if raw.Stmt == nil {
			continue
		}
		line, col := statementPosition(sql, int(raw.StmtLocation))
		for _, f := range detectLocks(raw.Stmt, opts) {
			issues = append(issues, ValidationIssue{
				Script:   script,
				Line:     line,
				Column:   col,
				Severity: f.severity,
				Message:  f.message,
				Code:     f.code,
			})
		}
	}
	return issues
}

type lockFinding struct {
	severity string
	code     string
	message  string
}

func detectLocks(stmt *pg_query.Node, opts Options) []lockFinding {
	switch node := stmt.Node.(type) {
	case *pg_query.Node_IndexStmt:
		idx := node.IndexStmt
		table := rangeVarName(idx.Relation)
		if idx.Concurrent {
			if opts.Transactional {
				return []lockFinding{{SeverityError, "concurrent_index_in_transaction",
					fmt.Sprintf("CREATE INDEX CONCURRENTLY on %s cannot run inside a transaction block; use transaction: None", table)}}
			}
			return nil
		}
		return []lockFinding{{SeverityWarning, "blocking_index",
			fmt.Sprintf("CREATE INDEX on %s holds a %s lock and blocks writes until the build finishes; CREATE INDEX CONCURRENTLY does not", table, LockShare)}}

	case *pg_query.Node_AlterTableStmt:
		table := rangeVarName(node.AlterTableStmt.Relation)
		var out []lockFinding
		for _, cmd := range node.AlterTableStmt.Cmds {
			c, ok := cmd.Node.(*pg_query.Node_AlterTableCmd)
			if !ok {
				continue
			}
			if f, ok := alterTableLock(table, c.AlterTableCmd); ok {
				out = append(out, f)
			}
		}
		return out
	}
	return nil
}

func alterTableLock(table string, cmd *pg_query.AlterTableCmd) (lockFinding, bool) {
	switch cmd.Subtype {
	case pg_query.AlterTableType_AT_AddConstraint:
		con, ok := cmd.Def.GetNode().(*pg_query.Node_Constraint)
		if !ok || con.Constraint.SkipValidation {
			return lockFinding{}, false
		}
		switch con.Constraint.Contype {
		case pg_query.ConstrType_CONSTR_FOREIGN, pg_query.ConstrType_CONSTR_CHECK:
			return lockFinding{SeverityWarning, "validating_constraint",
				fmt.Sprintf("ADD CONSTRAINT %s checks every row of %s while holding a lock; add it NOT VALID and run VALIDATE CONSTRAINT in a later script",
					con.Constraint.Conname, table)}, true
		}
	case pg_query.AlterTableType_AT_AlterColumnType:
		return lockFinding{SeverityWarning, "table_rewrite",
			fmt.Sprintf("ALTER COLUMN %s TYPE may rewrite %s under an %s lock, blocking reads and writes", cmd.Name, table, LockAccessExclusive)}, true
	case pg_query.AlterTableType_AT_SetNotNull:
		return lockFinding{SeverityWarning, "not_null_scan",
			fmt.Sprintf("SET NOT NULL on %s.%s scans the whole table under an %s lock", table, cmd.Name, LockAccessExclusive)}, true
	}
	return lockFinding{}, false
}
