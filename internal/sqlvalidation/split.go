package sqlvalidation

import "strings"

type statement struct {
	sql string
	// startLine is the file line of the first character that is neither
	// whitespace nor comment; offset is that character's index in sql.
	startLine int
	offset    int
}

// splitStatements splits sql on semicolons outside quotes, comments and
// dollar-quoted bodies, keeping line numbers for error reporting.
func splitStatements(sql string) []statement {
	var (
		statements []statement
		current    strings.Builder
		line       = 1
		start      = statement{startLine: 1}
		seen       bool

		inSingle, inDouble, inLine, inBlock, inDollar bool
	)

	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		if ch == '\n' {
			line++
			inLine = false
		}

		if !inSingle && !inDouble && !inDollar {
			switch {
			case !inBlock && !inLine && ch == '-' && next == '-':
				inLine = true
			case !inLine && !inBlock && ch == '/' && next == '*':
				inBlock = true
			case inBlock && ch == '*' && next == '/':
				inBlock = false
				current.WriteRune(ch)
				current.WriteRune(next)
				i++
				continue
			}
		}

		if !inLine && !inBlock {
			switch {
			case ch == '\'' && !inDouble && !inDollar:
				inSingle = !inSingle
			case ch == '"' && !inSingle && !inDollar:
				inDouble = !inDouble
			case ch == '$' && next == '$' && !inSingle && !inDouble:
				inDollar = !inDollar
				if !seen {
					start.startLine, start.offset, seen = line, current.Len(), true
				}
				current.WriteRune(ch)
				current.WriteRune(next)
				i++
				continue
			}
		}

		if ch == ';' && !inSingle && !inDouble && !inLine && !inBlock && !inDollar {
			current.WriteRune(ch)
			start.sql = current.String()
			statements = append(statements, start)
			current.Reset()
			start, seen = statement{startLine: line}, false
			continue
		}

		if !seen && !inLine && !inBlock && ch != ' ' && ch != '\t' && ch != '\n' && ch != '\r' {
			start.startLine, start.offset, seen = line, current.Len(), true
		}
		current.WriteRune(ch)
	}

	if current.Len() > 0 {
		start.sql = current.String()
		statements = append(statements, start)
	}
	return statements
}
