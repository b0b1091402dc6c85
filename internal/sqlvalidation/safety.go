package sqlvalidation

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// dataLossWarnings flags statements that irreversibly delete data. They are
// legitimate in forward-only migrations, so they are warnings.
func dataLossWarnings(script, sql string, tree *pg_query.ParseResult) []ValidationIssue {
	var issues []ValidationIssue
	for _, raw := range tree.Stmts {
		if raw.Stmt == nil {
			continue
		}
		line, col := statementPosition(sql, int(raw.StmtLocation))
		for _, w := range detectDataLoss(raw.Stmt) {
			issues = append(issues, ValidationIssue{
				Script:   script,
				Line:     line,
				Column:   col,
				Severity: SeverityWarning,
				Message:  w.message,
				Code:     w.code,
			})
		}
	}
	return issues
}

// statementPosition skips the whitespace and line comments pg_query
// includes at the start of a statement's location.
func statementPosition(sql string, offset int) (int, int) {
	for offset < len(sql) {
		switch {
		case sql[offset] == ' ' || sql[offset] == '\t' || sql[offset] == '\r' || sql[offset] == '\n':
			offset++
		case strings.HasPrefix(sql[offset:], "--"):
			nl := strings.IndexByte(sql[offset:], '\n')
			if nl < 0 {
				return position(sql, offset)
			}
			offset += nl + 1
		default:
			return position(sql, offset)
		}
	}
	return position(sql, offset)
}

type warning struct {
	code    string
	message string
}

func detectDataLoss(stmt *pg_query.Node) []warning {
	switch node := stmt.Node.(type) {
	case *pg_query.Node_DropStmt:
		if node.DropStmt.RemoveType != pg_query.ObjectType_OBJECT_TABLE {
			return nil
		}
		msg := fmt.Sprintf("DROP TABLE %s permanently deletes its data", objectName(node.DropStmt.Objects))
		if node.DropStmt.Behavior == pg_query.DropBehavior_DROP_CASCADE {
			msg += " and CASCADE also drops dependent objects"
		}
		return []warning{{"drop_table", msg}}

	case *pg_query.Node_TruncateStmt:
		var names []string
		for _, rel := range node.TruncateStmt.Relations {
			if rv, ok := rel.Node.(*pg_query.Node_RangeVar); ok {
				names = append(names, rangeVarName(rv.RangeVar))
			}
		}
		return []warning{{"truncate", fmt.Sprintf("TRUNCATE removes every row from %s", strings.Join(names, ", "))}}

	case *pg_query.Node_DeleteStmt:
		if node.DeleteStmt.WhereClause != nil {
			return nil
		}
		return []warning{{"delete_all", fmt.Sprintf("DELETE FROM %s has no WHERE clause and removes every row", rangeVarName(node.DeleteStmt.Relation))}}

	case *pg_query.Node_AlterTableStmt:
		table := rangeVarName(node.AlterTableStmt.Relation)
		var out []warning
		for _, cmd := range node.AlterTableStmt.Cmds {
			c, ok := cmd.Node.(*pg_query.Node_AlterTableCmd)
			if ok && c.AlterTableCmd.Subtype == pg_query.AlterTableType_AT_DropColumn {
				out = append(out, warning{"drop_column", fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s permanently deletes the column's data", table, c.AlterTableCmd.Name)})
			}
		}
		return out
	}
	return nil
}

func objectName(objects []*pg_query.Node) string {
	if len(objects) == 0 {
		return ""
	}
	list, ok := objects[0].Node.(*pg_query.Node_List)
	if !ok {
		return ""
	}
	var parts []string
	for _, item := range list.List.Items {
		if s, ok := item.Node.(*pg_query.Node_String_); ok {
			parts = append(parts, s.String_.Sval)
		}
	}
	return strings.Join(parts, ".")
}

func rangeVarName(rv *pg_query.RangeVar) string {
	if rv == nil {
		return ""
	}
	if rv.Schemaname != "" {
		return rv.Schemaname + "." + rv.Relname
	}
	return rv.Relname
}
