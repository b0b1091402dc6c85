package config

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultConfigPath is where the CLI looks for the configuration when --config-file is not given.
const DefaultConfigPath = ".dbup/config.yaml"

// Configuration is the declarative descriptor loaded from .dbup/config.yaml.
// It is raw input: plan.Build turns it into a validated execution plan.
type Configuration struct {
	Provider          string            `json:"provider"`
	ConnectionString  string            `json:"connectionString,omitempty"`
	ConnectionTimeout *Duration         `json:"connectionTimeout,omitempty"`
	DisableVars       bool              `json:"disableVars,omitempty"`
	Transaction       string            `json:"transaction,omitempty"`
	Scripts           []ScriptConfig    `json:"scripts"`
	Naming            *NamingConfig     `json:"naming,omitempty"`
	JournalTo         *JournalConfig    `json:"journalTo,omitempty"`
	Variables         map[string]string `json:"variables,omitempty"`
	LogTo             string            `json:"logTo,omitempty"`

	// ConfigFilePath is the file the configuration was read from, if any.
	ConfigFilePath string `json:"-"`
}

// ScriptConfig describes one folder of migration scripts.
type ScriptConfig struct {
	Folder        string   `json:"folder"`
	Recursive     bool     `json:"recursive,omitempty"`
	RunAlways     bool     `json:"runAlways,omitempty"`
	Filter        string   `json:"filter,omitempty"`
	MatchFullPath bool     `json:"matchFullPath,omitempty"`
	Extensions    []string `json:"extensions,omitempty"`
	Order         *int     `json:"order,omitempty"`
	RunGroupOrder int      `json:"runGroupOrder,omitempty"`
	ScriptType    string   `json:"scriptType,omitempty"`
	Encoding      string   `json:"encoding,omitempty"`
}

// NamingConfig controls how script identities are derived.
type NamingConfig struct {
	UseOnlyFileName       bool   `json:"useOnlyFileName,omitempty"`
	IncludeBaseFolderName bool   `json:"includeBaseFolderName,omitempty"`
	Prefix                string `json:"prefix,omitempty"`
}

// JournalConfig overrides where applied scripts are recorded.
type JournalConfig struct {
	Schema          string `json:"schema,omitempty"`
	Table           string `json:"table,omitempty"`
	RecordRunAlways bool   `json:"recordRunAlways,omitempty"`
}

// ConfigDir returns the directory relative script folders resolve against.
func (c *Configuration) ConfigDir() string {
	if c == nil || c.ConfigFilePath == "" {
		return ""
	}
	return dirOf(c.ConfigFilePath)
}

// Duration accepts Go durations ("30s"), .NET TimeSpans ("00:00:30",
// "1.02:00:00") and plain numbers of seconds.
type Duration struct {
	time.Duration
}

var timeSpanPattern = regexp.MustCompile(`^(?:(\d+)\.)?(\d{1,2}):(\d{2}):(\d{2})(?:\.(\d{1,7}))?$`)

// ParseDuration parses any of the accepted duration spellings.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if m := timeSpanPattern.FindStringSubmatch(s); m != nil {
		var d time.Duration
		if m[1] != "" {
			days, _ := strconv.Atoi(m[1])
			d += time.Duration(days) * 24 * time.Hour
		}
		hours, _ := strconv.Atoi(m[2])
		minutes, _ := strconv.Atoi(m[3])
		seconds, _ := strconv.Atoi(m[4])
		d += time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
		if m[5] != "" {
			frac := m[5] + strings.Repeat("0", 7-len(m[5]))
			ticks, _ := strconv.Atoi(frac)
			d += time.Duration(ticks) * 100 * time.Nanosecond
		}
		return d, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		d.Duration = time.Duration(v * float64(time.Second))
		return nil
	case string:
		parsed, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
