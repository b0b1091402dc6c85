package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/dbup-tool/dbup/internal/errors"
)

// DirName is the directory holding the configuration inside a project.
const DirName = ".dbup"

// FileNames lists the configuration file names Find looks for, in preference order.
var FileNames = []string{"config.yaml", "config.yml", "config.toml", "config.json"}

// Format is a configuration file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatOf picks the format from the file extension. YAML is the default.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

func dirOf(path string) string {
	return filepath.Dir(path)
}

// Find walks up from startDir looking for .dbup/config.{yaml,yml,toml,json}.
// The walk stops at a project boundary (a directory with .git or go.mod) or
// at the filesystem root. It returns "" when nothing is found.
func Find(fsys afero.Fs, startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		for _, name := range FileNames {
			candidate := filepath.Join(dir, DirName, name)
			if info, err := fsys.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
		}

		if isProjectRoot(fsys, dir) {
			return "", nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func isProjectRoot(fsys afero.Fs, dir string) bool {
	for _, marker := range []string{".git", "go.mod"} {
		if _, err := fsys.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// Load reads and validates the configuration file at path.
func Load(fsys afero.Fs, path string) (*Configuration, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if os.IsNotExist(err) {
			err = errors.Newf("configuration file not found: %s", path)
			err = errors.WithHint(err, "run `dbup init` to create one or pass --config-file")
		}
		return nil, errors.Mark(err, errors.ErrInvalidPlan)
	}

	cfg, err := Parse(data, FormatOf(path))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	cfg.ConfigFilePath = path
	return cfg, nil
}

// Parse decodes a configuration document. Keys are matched case-insensitively
// on their first letter, so PascalCase documents load too, and a top-level
// dbUp wrapper is unwrapped.
func Parse(data []byte, format Format) (*Configuration, error) {
	doc, err := decode(data, format)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "invalid %s", format), errors.ErrInvalidPlan)
	}

	normalized, _ := normalize(doc, false).(map[string]any)
	if inner, ok := normalized["dbUp"].(map[string]any); ok && len(normalized) == 1 {
		normalized = inner
	}

	if format != FormatTOML && format != FormatJSON {
		if vars, ok := yamlVariables(data); ok {
			normalized["variables"] = vars
		}
	}

	if err := validate(normalized); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(normalized)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrInvalidPlan)
	}
	var cfg Configuration
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "invalid configuration"), errors.ErrInvalidPlan)
	}
	return &cfg, nil
}

func decode(data []byte, format Format) (map[string]any, error) {
	doc := map[string]any{}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}

	var err error
	switch format {
	case FormatTOML:
		err = toml.Unmarshal(data, &doc)
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		err = dec.Decode(&doc)
	default:
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// keyAliases maps older spellings onto the current keys.
var keyAliases = map[string]string{
	"path":                  "folder",
	"includeSubDirectories": "recursive",
	"journal":               "journalTo",
}

// normalize lower-cases the first letter of every key and applies keyAliases.
// Entries under variables keep their names and have their values stringified.
func normalize(v any, inVariables bool) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if inVariables {
				out[k] = stringify(val)
				continue
			}
			key := lowerFirst(k)
			out[key] = normalize(val, key == "variables")
		}
		if !inVariables {
			for old, current := range keyAliases {
				val, ok := out[old]
				if !ok {
					continue
				}
				delete(out, old)
				if _, taken := out[current]; !taken {
					out[current] = val
				}
			}
		}
		return out
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = val
		}
		return normalize(m, inVariables)
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val, false)
		}
		return out
	default:
		return v
	}
}

// stringify renders a scalar variable value the way it was written.
func stringify(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool, int, int64, uint64:
		return fmt.Sprint(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case toml.LocalDate, toml.LocalTime, toml.LocalDateTime:
		return fmt.Sprint(t)
	default:
		return v
	}
}

// yamlVariables reads the variables mapping of a YAML document from the
// node tree, keeping each scalar's source text. yaml.v3 would otherwise
// resolve dates to time.Time and reformat them.
func yamlVariables(data []byte) (map[string]any, bool) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil || len(root.Content) == 0 {
		return nil, false
	}
	node := root.Content[0]
	if node.Kind != yaml.MappingNode {
		return nil, false
	}
	if len(node.Content) == 2 && lowerFirst(node.Content[0].Value) == "dbUp" && node.Content[1].Kind == yaml.MappingNode {
		node = node.Content[1]
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		if lowerFirst(node.Content[i].Value) != "variables" {
			continue
		}
		mapping := node.Content[i+1]
		if mapping.Kind != yaml.MappingNode {
			return nil, false
		}
		vars := make(map[string]any, len(mapping.Content)/2)
		for j := 0; j+1 < len(mapping.Content); j += 2 {
			value := mapping.Content[j+1]
			switch {
			case value.Kind != yaml.ScalarNode:
				return nil, false
			case value.Tag == "!!null":
				vars[mapping.Content[j].Value] = ""
			default:
				vars[mapping.Content[j].Value] = value.Value
			}
		}
		return vars, true
	}
	return nil, false
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || unicode.IsLower(r) {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

//go:embed schema.json
var schemaJSON []byte

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
})

// validate checks the structure of a normalized document. Unknown keys are
// ignored; value checks for enums are left to plan.Build.
func validate(doc map[string]any) error {
	schema, err := compiledSchema()
	if err != nil {
		return errors.Wrap(err, "failed to compile configuration schema")
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return errors.Mark(errors.Wrap(err, "failed to validate configuration"), errors.ErrInvalidPlan)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, describe(desc))
	}
	sort.Strings(problems)
	return errors.Mark(errors.Newf("invalid configuration: %s", strings.Join(problems, "; ")), errors.ErrInvalidPlan)
}

const rootField = "(root)"

func describe(desc gojsonschema.ResultError) string {
	field := desc.Field()
	if desc.Type() == "required" {
		if property, ok := desc.Details()["property"].(string); ok {
			if field == rootField {
				field = property
			} else {
				field = field + "." + property
			}
			return field + ": is required"
		}
	}
	return field + ": " + desc.Description()
}
