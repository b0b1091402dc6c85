package database

import (
	"regexp"
	"strconv"
	"strings"
)

var goSeparator = regexp.MustCompile(`(?i)^\s*GO(?:\s+(\d+))?\s*(?:--.*)?$`)

// SplitGoBatches splits a SQL Server script on lines holding only the GO
// separator. "GO n" repeats the preceding batch n times. Separators inside
// block comments are ignored.
func SplitGoBatches(script string) []string {
	var (
		batches   []string
		current   strings.Builder
		inComment bool
	)
	flush := func(times int) {
		batch := strings.TrimSpace(current.String())
		current.Reset()
		if batch == "" {
			return
		}
		for range times {
			batches = append(batches, batch)
		}
	}

	for _, line := range strings.Split(strings.ReplaceAll(script, "\r\n", "\n"), "\n") {
		if !inComment {
			if m := goSeparator.FindStringSubmatch(line); m != nil {
				times := 1
				if m[1] != "" {
					if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
						times = n
					}
				}
				flush(times)
				continue
			}
		}
		inComment = trackBlockComment(line, inComment)
		current.WriteString(line)
		current.WriteByte('\n')
	}
	flush(1)
	return batches
}

func trackBlockComment(line string, inComment bool) bool {
	for i := 0; i < len(line)-1; i++ {
		switch {
		case !inComment && line[i] == '-' && line[i+1] == '-':
			return inComment
		case !inComment && line[i] == '/' && line[i+1] == '*':
			inComment = true
			i++
		case inComment && line[i] == '*' && line[i+1] == '/':
			inComment = false
			i++
		}
	}
	return inComment
}
