package sqlite

import (
	"net/url"
	"path/filepath"
	"strings"
)

const busyTimeoutPragma = "_pragma=busy_timeout(5000)"

// IsRemote reports whether descriptor points at a libSQL server rather than a local file.
func IsRemote(descriptor string) bool {
	s := strings.ToLower(strings.TrimSpace(descriptor))
	for _, scheme := range []string{"libsql://", "https://", "http://", "wss://", "ws://"} {
		if strings.HasPrefix(s, scheme) {
			return true
		}
	}
	return false
}

// IsMemory reports whether descriptor is an in-memory database.
func IsMemory(descriptor string) bool {
	s := strings.ToLower(strings.TrimSpace(descriptor))
	return s == ":memory:" || strings.HasPrefix(s, "file::memory:") || strings.Contains(s, "mode=memory")
}

// FilePath extracts the database file path from a sqlite:// or file: descriptor.
func FilePath(descriptor string) string {
	s := strings.TrimSpace(descriptor)
	for _, prefix := range []string{"sqlite://", "file:"} {
		if strings.HasPrefix(strings.ToLower(s), prefix) {
			s = s[len(prefix):]
			if idx := strings.Index(s, "?"); idx >= 0 {
				s = s[:idx]
			}
			return s
		}
	}
	return s
}

// DSN converts a descriptor into a data source name for the sqlite driver,
// adding a busy timeout so concurrent runners wait on each other's locks.
func DSN(descriptor string) string {
	s := strings.TrimSpace(descriptor)
	if IsMemory(s) {
		return s
	}
	dsn := s
	query := ""
	if strings.HasPrefix(strings.ToLower(s), "sqlite://") {
		dsn = FilePath(s)
		if idx := strings.Index(s, "?"); idx >= 0 {
			query = s[idx+1:]
		}
	} else if idx := strings.Index(s, "?"); idx >= 0 {
		dsn, query = s[:idx], s[idx+1:]
	}
	if !strings.Contains(query, "busy_timeout") {
		if query != "" {
			query += "&"
		}
		query += busyTimeoutPragma
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	return dsn + "?" + query
}

// DatabaseName derives a logical database name: the file name without its
// extension, or the first host label of a remote URL.
func DatabaseName(descriptor string) string {
	if IsMemory(descriptor) {
		return "memory"
	}
	if IsRemote(descriptor) {
		u, err := url.Parse(strings.TrimSpace(descriptor))
		if err != nil || u.Hostname() == "" {
			return ""
		}
		host := u.Hostname()
		if idx := strings.Index(host, "."); idx > 0 {
			host = host[:idx]
		}
		return host
	}
	base := filepath.Base(FilePath(descriptor))
	return strings.TrimSuffix(base, filepath.Ext(base))
}
