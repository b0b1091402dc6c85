// Package sqlvalidation checks PostgreSQL migration scripts before they run.
package sqlvalidation

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ValidationIssue is one problem found in a script.
type ValidationIssue struct {
	Script   string `json:"script"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Code     string `json:"code,omitempty"`
}

func (i ValidationIssue) String() string {
	return fmt.Sprintf("%s:%d:%d: %s: %s", i.Script, i.Line, i.Column, strings.ToUpper(i.Severity), i.Message)
}

// Result collects the issues of every validated script.
type Result struct {
	Valid  bool              `json:"valid"`
	Issues []ValidationIssue `json:"issues"`
}

// Add appends issues; the result stays valid while only warnings are added.
func (r *Result) Add(issues ...ValidationIssue) {
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			r.Valid = false
		}
	}
	r.Issues = append(r.Issues, issues...)
}

// NewResult returns an empty, valid result.
func NewResult() *Result {
	return &Result{Valid: true}
}

// Options describe how a script will be executed.
type Options struct {
	// Transactional is set when the script runs inside a transaction block.
	Transactional bool
}

// ValidateScript parses sql with the PostgreSQL parser and reports syntax
// errors with the line they occur on, plus warnings for statements that
// destroy data or hold heavy locks.
func ValidateScript(script, sql string) []ValidationIssue {
	return Validate(script, sql, Options{})
}

// Validate is ValidateScript for a known execution mode.
func Validate(script, sql string, opts Options) []ValidationIssue {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return syntaxIssues(script, sql)
	}
	issues := append(dataLossWarnings(script, sql, tree), lockIssues(script, sql, tree, opts)...)
	slices.SortStableFunc(issues, func(a, b ValidationIssue) int { return a.Line - b.Line })
	return issues
}

var nearToken = regexp.MustCompile(`at or near "([^"]+)"`)

// syntaxIssues parses statement by statement so one bad statement does not
// hide the next.
func syntaxIssues(script, sql string) []ValidationIssue {
	var issues []ValidationIssue
	for _, stmt := range splitStatements(sql) {
		if isBlank(stmt.sql) {
			continue
		}
		_, err := pg_query.Parse(stmt.sql)
		if err == nil {
			continue
		}

		msg := strings.TrimPrefix(err.Error(), "failed to parse SQL: ")
		line, col := stmt.startLine, 1
		if m := nearToken.FindStringSubmatch(msg); m != nil {
			if l, c, ok := tokenPosition(stmt, m[1]); ok {
				line, col = stmt.startLine+l-1, c
			}
		}
		issues = append(issues, ValidationIssue{
			Script:   script,
			Line:     line,
			Column:   col,
			Severity: SeverityError,
			Message:  msg,
			Code:     "syntax_error",
		})
	}
	return issues
}

// isBlank reports whether s holds nothing but whitespace and comments.
func isBlank(s string) bool {
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && trimmed != ";" && !strings.HasPrefix(trimmed, "--") {
			return false
		}
	}
	return true
}

// tokenPosition returns the line of token relative to the first line of
// the statement's content, and its column.
func tokenPosition(stmt statement, token string) (int, int, bool) {
	idx := strings.Index(stmt.sql[stmt.offset:], token)
	if idx < 0 {
		return 0, 0, false
	}
	line, col := position(stmt.sql, stmt.offset+idx)
	first, _ := position(stmt.sql, stmt.offset)
	return line - first + 1, col, true
}

// position returns the 1-based line and column of byte offset in s.
func position(s string, offset int) (int, int) {
	if offset < 0 || offset > len(s) {
		return 1, 1
	}
	line, col := 1, 1
	for i := 0; i < offset; i++ {
		if s[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}
