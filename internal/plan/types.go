package plan

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/encoding"

	"github.com/dbup-tool/dbup/internal/strutil"
)

// Provider identifies the database engine a plan targets.
type Provider string

const (
	ProviderSQLServer  Provider = "sqlserver"
	ProviderPostgreSQL Provider = "postgresql"
	ProviderMySQL      Provider = "mysql"
	ProviderSQLite     Provider = "sqlite"
)

// Providers lists every supported provider in documentation order.
var Providers = []Provider{ProviderSQLServer, ProviderPostgreSQL, ProviderMySQL, ProviderSQLite}

var providerAliases = map[string]Provider{
	"sqlserver":  ProviderSQLServer,
	"mssql":      ProviderSQLServer,
	"postgresql": ProviderPostgreSQL,
	"postgres":   ProviderPostgreSQL,
	"mysql":      ProviderMySQL,
	"sqlite":     ProviderSQLite,
	"sqlite3":    ProviderSQLite,
	"libsql":     ProviderSQLite,
}

// ParseProvider resolves a provider name, case-insensitively.
func ParseProvider(name string) (Provider, error) {
	if p, ok := providerAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p, nil
	}
	names := make([]string, len(Providers))
	for i, p := range Providers {
		names[i] = string(p)
	}
	return "", fmt.Errorf("unknown provider %q; %s", name, strutil.Suggest(name, names))
}

// TransactionMode selects how transactions wrap script execution.
type TransactionMode int

const (
	TransactionPerScript TransactionMode = iota
	TransactionSingle
	TransactionNone
)

var transactionModeNames = map[TransactionMode]string{
	TransactionSingle:    "Single",
	TransactionPerScript: "PerScript",
	TransactionNone:      "None",
}

func (m TransactionMode) String() string {
	if name, ok := transactionModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("TransactionMode(%d)", int(m))
}

// ParseTransactionMode resolves Single, PerScript or None. Empty means PerScript.
func ParseTransactionMode(name string) (TransactionMode, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return TransactionPerScript, nil
	}
	names := make([]string, 0, len(transactionModeNames))
	for _, m := range []TransactionMode{TransactionSingle, TransactionPerScript, TransactionNone} {
		if strings.EqualFold(name, transactionModeNames[m]) {
			return m, nil
		}
		names = append(names, transactionModeNames[m])
	}
	return 0, fmt.Errorf("unknown transaction mode %q; %s", name, strutil.Suggest(name, names))
}

// ScriptKind is the execution policy of a script.
type ScriptKind int

const (
	RunOnce ScriptKind = iota
	RunAlways
)

func (k ScriptKind) String() string {
	switch k {
	case RunOnce:
		return "RunOnce"
	case RunAlways:
		return "RunAlways"
	default:
		return fmt.Sprintf("ScriptKind(%d)", int(k))
	}
}

// ParseScriptKind resolves RunOnce or RunAlways. Empty means RunOnce.
func ParseScriptKind(name string) (ScriptKind, error) {
	switch {
	case strings.TrimSpace(name) == "":
		return RunOnce, nil
	case strings.EqualFold(name, "RunOnce"):
		return RunOnce, nil
	case strings.EqualFold(name, "RunAlways"):
		return RunAlways, nil
	}
	return 0, fmt.Errorf("unknown script type %q; %s", name, strutil.Suggest(name, []string{"RunOnce", "RunAlways"}))
}

// NamingRule controls how identities are derived from script paths.
type NamingRule struct {
	UseFileNameOnly       bool
	IncludeBaseFolderName bool
	Prefix                string
}

// JournalLocation is where applied scripts are recorded. Empty Schema or
// Table fall back to the gateway's defaults.
type JournalLocation struct {
	Schema          string
	Table           string
	RecordRunAlways bool
}

// SourceSpec describes one script source.
type SourceSpec struct {
	RootPath      string
	Recursive     bool
	Kind          ScriptKind
	MatchFullPath bool
	Extensions    []string
	EncodingName  string
	Order         int
	GroupOrder    int

	filter   *regexp.Regexp
	encoding encoding.Encoding
}

// Matches applies the filename filter. name is the base file name and
// relPath the slash-separated path relative to the source root.
func (s SourceSpec) Matches(name, relPath string) bool {
	if !s.hasExtension(name) {
		return false
	}
	if s.filter == nil {
		return true
	}
	if s.MatchFullPath {
		return s.filter.MatchString(relPath)
	}
	return s.filter.MatchString(name)
}

func (s SourceSpec) hasExtension(name string) bool {
	if len(s.Extensions) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, ext := range s.Extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// Filter returns the compiled filename filter, or nil.
func (s SourceSpec) Filter() *regexp.Regexp {
	return s.filter
}

// Encoding returns the text encoding script bytes are decoded with.
func (s SourceSpec) Encoding() encoding.Encoding {
	return s.encoding
}

// Plan is the validated, immutable execution plan. Build is the only way
// to obtain one.
type Plan struct {
	Provider         Provider
	ConnectionString string
	ConnectTimeout   time.Duration
	Transaction      TransactionMode
	VariablesEnabled bool
	Journal          JournalLocation
	Naming           NamingRule

	sources   []SourceSpec
	variables map[string]string
}

// Sources returns a copy of the script sources in configuration order.
func (p Plan) Sources() []SourceSpec {
	out := make([]SourceSpec, len(p.sources))
	copy(out, p.sources)
	return out
}

// Variables returns a copy of the plan-level variable table.
func (p Plan) Variables() map[string]string {
	out := make(map[string]string, len(p.variables))
	for k, v := range p.variables {
		out[k] = v
	}
	return out
}
