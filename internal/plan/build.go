package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/dbup-tool/dbup/internal/config"
	"github.com/dbup-tool/dbup/internal/errors"
)

const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultOrder          = 100
	DefaultEncoding       = "utf-8"
)

// DefaultExtensions is used for sources that do not list extensions.
var DefaultExtensions = []string{".sql"}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// Options carries values resolved outside the configuration file.
type Options struct {
	// ConnectionString overrides the file's connectionString when set.
	ConnectionString string
	// BaseDir is where relative script folders resolve. Defaults to the
	// configuration file's directory.
	BaseDir string
	// Variables are merged over the file's variables.
	Variables map[string]string
}

// Build validates cfg and returns an immutable Plan. All problems found are
// reported together in one error marked errors.ErrInvalidPlan; nothing here
// contacts a database.
func Build(fsys afero.Fs, cfg *config.Configuration, opts Options) (Plan, error) {
	if cfg == nil {
		return Plan{}, errors.Mark(errors.New("invalid configuration: no configuration loaded"), errors.ErrInvalidPlan)
	}

	var v validator

	p := Plan{
		ConnectTimeout:   DefaultConnectTimeout,
		VariablesEnabled: !cfg.DisableVars,
	}

	if strings.TrimSpace(cfg.Provider) == "" {
		v.add("provider", "required")
	} else if provider, err := ParseProvider(cfg.Provider); err != nil {
		v.add("provider", "%v", err)
	} else {
		p.Provider = provider
	}

	p.ConnectionString = strings.TrimSpace(opts.ConnectionString)
	if p.ConnectionString == "" {
		p.ConnectionString = strings.TrimSpace(cfg.ConnectionString)
	}
	if p.ConnectionString == "" {
		v.add("connectionString", "required")
	}

	if cfg.ConnectionTimeout != nil {
		if cfg.ConnectionTimeout.Duration < 0 {
			v.add("connectionTimeout", "must not be negative")
		} else {
			p.ConnectTimeout = cfg.ConnectionTimeout.Duration
		}
	}

	if mode, err := ParseTransactionMode(cfg.Transaction); err != nil {
		v.add("transaction", "%v", err)
	} else {
		p.Transaction = mode
	}

	if cfg.Naming != nil {
		p.Naming = NamingRule{
			UseFileNameOnly:       cfg.Naming.UseOnlyFileName,
			IncludeBaseFolderName: cfg.Naming.IncludeBaseFolderName,
			Prefix:                cfg.Naming.Prefix,
		}
	}

	if cfg.JournalTo != nil {
		p.Journal = JournalLocation{
			Schema:          strings.TrimSpace(cfg.JournalTo.Schema),
			Table:           strings.TrimSpace(cfg.JournalTo.Table),
			RecordRunAlways: cfg.JournalTo.RecordRunAlways,
		}
		if p.Journal.Schema != "" && !identifierPattern.MatchString(p.Journal.Schema) {
			v.add("journalTo.schema", "%q is not a valid identifier", p.Journal.Schema)
		}
		if p.Journal.Table != "" && !identifierPattern.MatchString(p.Journal.Table) {
			v.add("journalTo.table", "%q is not a valid identifier", p.Journal.Table)
		}
	}

	p.variables = make(map[string]string, len(cfg.Variables)+len(opts.Variables))
	for k, val := range cfg.Variables {
		p.variables[k] = val
	}
	for k, val := range opts.Variables {
		p.variables[k] = val
	}

	baseDir := opts.BaseDir
	if baseDir == "" {
		baseDir = cfg.ConfigDir()
	}

	if len(cfg.Scripts) == 0 {
		v.add("scripts", "at least one script source is required")
	}
	for i, sc := range cfg.Scripts {
		if spec, ok := buildSource(fsys, &v, fmt.Sprintf("scripts[%d]", i), sc, baseDir); ok {
			p.sources = append(p.sources, spec)
		}
	}

	if err := v.err(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

func buildSource(fsys afero.Fs, v *validator, field string, sc config.ScriptConfig, baseDir string) (SourceSpec, bool) {
	ok := true
	spec := SourceSpec{
		Recursive:     sc.Recursive,
		MatchFullPath: sc.MatchFullPath,
		Order:         DefaultOrder,
		GroupOrder:    sc.RunGroupOrder,
		EncodingName:  DefaultEncoding,
	}

	folder := strings.TrimSpace(sc.Folder)
	if folder == "" {
		v.add(field+".folder", "required")
		ok = false
	} else {
		if !filepath.IsAbs(folder) && baseDir != "" {
			folder = filepath.Join(baseDir, folder)
		}
		spec.RootPath = filepath.Clean(folder)
		info, err := fsys.Stat(spec.RootPath)
		switch {
		case err != nil && os.IsNotExist(err):
			v.missing(field+".folder", spec.RootPath)
			ok = false
		case err != nil:
			v.add(field+".folder", "cannot access %s: %v", spec.RootPath, err)
			ok = false
		case !info.IsDir():
			v.add(field+".folder", "%s is not a directory", spec.RootPath)
			ok = false
		}
	}

	kind, err := ParseScriptKind(sc.ScriptType)
	switch {
	case err != nil:
		v.add(field+".scriptType", "%v", err)
		ok = false
	case sc.RunAlways && strings.TrimSpace(sc.ScriptType) != "" && kind == RunOnce:
		v.add(field+".runAlways", "conflicts with scriptType %q", sc.ScriptType)
		ok = false
	case sc.RunAlways:
		kind = RunAlways
	}
	spec.Kind = kind

	if sc.Order != nil {
		spec.Order = *sc.Order
	}

	if sc.Filter != "" {
		re, err := regexp.Compile(sc.Filter)
		if err != nil {
			v.add(field+".filter", "invalid regular expression: %v", err)
			ok = false
		}
		spec.filter = re
	}

	spec.Extensions = normalizeExtensions(sc.Extensions)

	if strings.TrimSpace(sc.Encoding) != "" {
		spec.EncodingName = strings.TrimSpace(sc.Encoding)
	}
	enc, err := LookupEncoding(spec.EncodingName)
	if err != nil {
		v.add(field+".encoding", "%v", err)
		ok = false
	}
	spec.encoding = enc

	return spec, ok
}

func normalizeExtensions(exts []string) []string {
	if len(exts) == 0 {
		return append([]string(nil), DefaultExtensions...)
	}
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), "*")
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

// LookupEncoding resolves an IANA encoding name. UTF-8 and UTF-16 decoders
// strip a leading byte order mark.
func LookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", "-")) {
	case "", "utf-8", "utf8":
		return unicode.UTF8BOM, nil
	case "utf-16", "utf16", "unicode":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	case "utf-16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	case "utf-16be", "bigendianunicode":
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM), nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
	if enc == nil {
		return nil, fmt.Errorf("encoding %q is not supported", name)
	}
	return enc, nil
}

type validator struct {
	problems []string
	notFound []string
}

func (v *validator) add(field, format string, args ...any) {
	v.problems = append(v.problems, field+": "+fmt.Sprintf(format, args...))
}

func (v *validator) missing(field, path string) {
	v.add(field, "path not found: %s", path)
	v.notFound = append(v.notFound, path)
}

func (v *validator) err() error {
	if len(v.problems) == 0 {
		return nil
	}
	err := errors.Newf("invalid configuration: %s", strings.Join(v.problems, "; "))
	if len(v.notFound) > 0 {
		err = errors.WithHint(err, "relative script folders resolve against the directory holding the configuration file")
		err = errors.Mark(err, errors.ErrSourceNotFound)
	}
	return errors.Mark(err, errors.ErrInvalidPlan)
}
