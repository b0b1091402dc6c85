package config

import (
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/dbup-tool/dbup/internal/errors"
)

const (
	// EnvPrefix prefixes every environment variable dbup reads.
	EnvPrefix = "DBUP"
	// VariablePrefix marks dotenv and environment keys that become script variables.
	VariablePrefix = "DBUP_VAR_"

	dotenvFileName = ".env"
)

// Where a connection string came from.
const (
	FromArgument    = "argument"
	FromEnvironment = "environment"
	FromDotenv      = "dotenv"
	FromConfig      = "config"
)

// ResolvedConnection is the connection string and the extra variables
// collected from outside the configuration file.
type ResolvedConnection struct {
	ConnectionString string
	Source           string
	DotenvPath       string
	Variables        map[string]string
}

// NewEnv returns a viper instance bound to DBUP_* environment variables.
func NewEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// ResolveConnection applies the connection string precedence: the CLI
// argument, then DBUP_CONNECTION_STRING, then CONNECTION_STRING or
// DATABASE_URL from a .env file beside the configuration, then the
// configuration itself. DBUP_VAR_<name> keys from the .env file become
// variables. A nil env uses NewEnv.
func ResolveConnection(fsys afero.Fs, cfg *Configuration, argument string, env *viper.Viper) (*ResolvedConnection, error) {
	if env == nil {
		env = NewEnv()
	}
	resolved := &ResolvedConnection{Variables: map[string]string{}}

	values, path, err := readDotenv(fsys, cfg)
	if err != nil {
		return nil, err
	}
	resolved.DotenvPath = path
	for key, value := range values {
		if name, ok := strings.CutPrefix(key, VariablePrefix); ok && name != "" {
			resolved.Variables[name] = value
		}
	}

	switch {
	case strings.TrimSpace(argument) != "":
		resolved.ConnectionString, resolved.Source = argument, FromArgument
	case env.GetString("connection_string") != "":
		resolved.ConnectionString, resolved.Source = env.GetString("connection_string"), FromEnvironment
	case values["CONNECTION_STRING"] != "":
		resolved.ConnectionString, resolved.Source = values["CONNECTION_STRING"], FromDotenv
	case values["DATABASE_URL"] != "":
		resolved.ConnectionString, resolved.Source = values["DATABASE_URL"], FromDotenv
	case cfg != nil && cfg.ConnectionString != "":
		resolved.ConnectionString, resolved.Source = cfg.ConnectionString, FromConfig
	}
	return resolved, nil
}

// readDotenv parses the first .env found in the configuration directory or
// its parent, the project directory.
func readDotenv(fsys afero.Fs, cfg *Configuration) (map[string]string, string, error) {
	dir := cfg.ConfigDir()
	if dir == "" {
		return nil, "", nil
	}

	candidates := []string{filepath.Join(dir, dotenvFileName)}
	if filepath.Base(dir) == DirName {
		candidates = append(candidates, filepath.Join(filepath.Dir(dir), dotenvFileName))
	}

	for _, path := range candidates {
		info, err := fsys.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		f, err := fsys.Open(path)
		if err != nil {
			return nil, "", errors.Wrapf(err, "failed to open %s", path)
		}
		values, err := godotenv.Parse(f)
		_ = f.Close()
		if err != nil {
			return nil, "", errors.Mark(errors.Wrapf(err, "failed to read %s", path), errors.ErrInvalidPlan)
		}
		return values, path, nil
	}
	return nil, "", nil
}
