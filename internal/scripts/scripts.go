// Package scripts discovers migration scripts, names them and puts them in
// execution order.
package scripts

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
	"golang.org/x/text/transform"

	"github.com/dbup-tool/dbup/internal/errors"
	"github.com/dbup-tool/dbup/internal/plan"
)

// Script is one discovered migration script. Content is read on demand.
type Script struct {
	Identity   string
	Path       string
	RelPath    string
	Kind       plan.ScriptKind
	Order      int
	GroupOrder int
	Source     int

	fs     afero.Fs
	source plan.SourceSpec
}

// Load reads and decodes the script body using its source's encoding.
func (s Script) Load() (string, error) {
	f, err := s.fs.Open(s.Path)
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "failed to open %s", s.Path), errors.ErrSourceUnreadable)
	}
	defer f.Close()

	var r io.Reader = f
	if enc := s.source.Encoding(); enc != nil {
		r = transform.NewReader(f, enc.NewDecoder())
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "failed to read %s as %s", s.Path, s.source.EncodingName), errors.ErrSourceUnreadable)
	}
	return string(data), nil
}

// Less reports whether a runs before b: by order, then group order, then identity.
func Less(a, b Script) bool {
	if a.Order != b.Order {
		return a.Order < b.Order
	}
	if a.GroupOrder != b.GroupOrder {
		return a.GroupOrder < b.GroupOrder
	}
	return a.Identity < b.Identity
}

// Discover lists the scripts of one source in traversal order. Directory
// entries are visited lexicographically, so the result does not depend on the
// underlying filesystem's listing order. Identities are not assigned.
func Discover(fsys afero.Fs, spec plan.SourceSpec) ([]Script, error) {
	info, err := fsys.Stat(spec.RootPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Mark(errors.Newf("script folder not found: %s", spec.RootPath), errors.ErrSourceNotFound)
		}
		return nil, errors.Mark(errors.Wrapf(err, "failed to access %s", spec.RootPath), errors.ErrSourceUnreadable)
	}
	if !info.IsDir() {
		return nil, errors.Mark(errors.Newf("script folder is not a directory: %s", spec.RootPath), errors.ErrSourceNotFound)
	}

	var found []Script
	if err := walk(fsys, spec, spec.RootPath, "", &found); err != nil {
		return nil, err
	}
	return found, nil
}

func walk(fsys afero.Fs, spec plan.SourceSpec, dir, rel string, found *[]Script) error {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to list %s", dir), errors.ErrSourceUnreadable)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		relPath := path.Join(rel, name)
		if entry.IsDir() {
			if spec.Recursive {
				if err := walk(fsys, spec, filepath.Join(dir, name), relPath, found); err != nil {
					return err
				}
			}
			continue
		}
		if !spec.Matches(name, relPath) {
			continue
		}
		*found = append(*found, Script{
			Path:       filepath.Join(dir, name),
			RelPath:    relPath,
			Kind:       spec.Kind,
			Order:      spec.Order,
			GroupOrder: spec.GroupOrder,
			fs:         fsys,
			source:     spec,
		})
	}
	return nil
}

// Name derives a script identity from its path relative to the source root.
// Separators are always '/'.
func Name(relPath string, spec plan.SourceSpec, rule plan.NamingRule) string {
	identity := filepath.ToSlash(relPath)
	if rule.UseFileNameOnly {
		identity = path.Base(identity)
	}
	if rule.IncludeBaseFolderName {
		identity = filepath.Base(spec.RootPath) + "/" + identity
	}
	return rule.Prefix + identity
}

// DiscoverAll runs discovery over every source of p, assigns identities and
// returns the scripts in total execution order. Two files that map to the
// same identity fail the discovery.
func DiscoverAll(fsys afero.Fs, p plan.Plan) ([]Script, error) {
	var all []Script
	seen := make(map[string]string)

	for i, spec := range p.Sources() {
		found, err := Discover(fsys, spec)
		if err != nil {
			return nil, err
		}
		for _, s := range found {
			s.Identity = Name(s.RelPath, spec, p.Naming)
			s.Source = i
			if prev, dup := seen[s.Identity]; dup {
				err := errors.Newf("identity collision: %s and %s both map to %q", prev, s.Path, s.Identity)
				err = errors.WithHint(err, "change naming.useOnlyFileName or naming.includeBaseFolderName so every script gets a distinct name")
				return nil, errors.Script(s.Identity, errors.ErrDiscovery, err)
			}
			seen[s.Identity] = s.Path
			all = append(all, s)
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return Less(all[i], all[j]) })
	return all, nil
}
