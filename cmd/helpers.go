package cmd

import (
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/dbup-tool/dbup/internal/config"
	"github.com/dbup-tool/dbup/internal/engine"
	"github.com/dbup-tool/dbup/internal/logger"
	"github.com/dbup-tool/dbup/internal/plan"
	"github.com/dbup-tool/dbup/internal/sink"
)

// fsys is the filesystem commands read configuration and scripts from.
var fsys afero.Fs = afero.NewOsFs()

// configPath returns --config-file or DBUP_CONFIG_FILE, else the nearest
// .dbup/config.* above the working directory, else the default path.
func configPath() (string, error) {
	if path := env.GetString("config_file"); path != "" {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	found, err := config.Find(fsys, cwd)
	if err != nil {
		return "", err
	}
	if found == "" {
		return config.DefaultConfigPath, nil
	}
	return found, nil
}

// loadPlan reads the configuration and builds the execution plan, taking
// the connection string from the positional argument when given.
func loadPlan(args []string) (plan.Plan, *config.Configuration, error) {
	return loadPlanWith(args, nil)
}

// loadPlanWith is loadPlan with a fallback for a connection string that no
// source provides.
func loadPlanWith(args []string, fallback func(*config.Configuration) string) (plan.Plan, *config.Configuration, error) {
	path, err := configPath()
	if err != nil {
		return plan.Plan{}, nil, err
	}
	cfg, err := config.Load(fsys, path)
	if err != nil {
		return plan.Plan{}, nil, err
	}

	var argument string
	if len(args) > 0 {
		argument = args[0]
	}
	resolved, err := config.ResolveConnection(fsys, cfg, argument, env)
	if err != nil {
		return plan.Plan{}, nil, err
	}
	if resolved.ConnectionString == "" && fallback != nil {
		resolved.ConnectionString = fallback(cfg)
	}
	logger.Logger.Debugw("configuration loaded",
		"path", cfg.ConfigFilePath,
		"connection_source", resolved.Source,
		"dotenv", resolved.DotenvPath,
	)

	p, err := plan.Build(fsys, cfg, plan.Options{
		ConnectionString: resolved.ConnectionString,
		Variables:        resolved.Variables,
	})
	if err != nil {
		return plan.Plan{}, nil, err
	}
	return p, cfg, nil
}

// newEngine builds an engine reporting to the sink named by logTo.
func newEngine(cmd *cobra.Command, cfg *config.Configuration) (*engine.Engine, error) {
	s, err := sink.New(cfg.LogTo, sink.Options{
		Out:    cmd.OutOrStdout(),
		Logger: logger.Logger,
	})
	if err != nil {
		return nil, err
	}
	return engine.New(fsys, engine.WithSink(s), engine.WithLogger(logger.Logger)), nil
}
