// Package variables expands ${name} placeholders in script bodies.
package variables

import (
	"regexp"
	"sort"
	"strings"

	"github.com/dbup-tool/dbup/internal/errors"
)

// placeholder matches any ${...}; names outside the table, including
// malformed ones, fail expansion rather than reaching SQL verbatim.
var placeholder = regexp.MustCompile(`\$\{([^}]*)\}`)

// Merge combines plan-level variables with built-ins. Built-ins win.
func Merge(planVars, builtins map[string]string) map[string]string {
	out := make(map[string]string, len(planVars)+len(builtins))
	for k, v := range planVars {
		out[k] = v
	}
	for k, v := range builtins {
		out[k] = v
	}
	return out
}

// Expand replaces every ${name} in content. With enabled false content is
// returned untouched. A placeholder without a value fails the whole
// expansion; nothing is partially substituted.
func Expand(content string, vars map[string]string, enabled bool) (string, error) {
	if !enabled {
		return content, nil
	}
	for _, m := range placeholder.FindAllStringSubmatch(content, -1) {
		if _, ok := vars[m[1]]; !ok {
			return "", errors.UnresolvedVariable(m[1])
		}
	}
	return placeholder.ReplaceAllStringFunc(content, func(match string) string {
		return vars[match[2:len(match)-1]]
	}), nil
}

// Referenced lists the distinct variable names used in content, sorted.
func Referenced(content string) []string {
	seen := make(map[string]struct{})
	for _, m := range placeholder.FindAllStringSubmatch(content, -1) {
		seen[m[1]] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Redact masks values of variables whose names look secret, for logging.
func Redact(vars map[string]string) map[string]string {
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		lower := strings.ToLower(k)
		if strings.Contains(lower, "password") || strings.Contains(lower, "secret") || strings.Contains(lower, "token") {
			v = "****"
		}
		out[k] = v
	}
	return out
}
