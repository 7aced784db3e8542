package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/raidwatch/raidwatch/internal/config"
	"github.com/raidwatch/raidwatch/internal/metrics"
	"github.com/raidwatch/raidwatch/internal/monitor"
	"github.com/raidwatch/raidwatch/internal/notify"
	"github.com/raidwatch/raidwatch/internal/registry"
)

const (
	AppName  = "raidwatch"
	AppUsage = "supervise game analysis engines and relay their alerts"
)

const (
	FlagConfig    = "config"
	FlagLogLevel  = "log-level"
	FlagLogFormat = "log-format"
)

var version = "dev"

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    FlagConfig,
			Aliases: []string{"c"},
			Value:   "config.yaml",
			Usage:   "path to the config file (defaults are used if it does not exist)",
			EnvVars: []string{"RAIDWATCH_CONFIG"},
		},
		&cli.StringFlag{
			Name:    FlagLogLevel,
			Value:   "info",
			Usage:   "set the logging level ('trace', 'debug', 'info' (default), 'warn', 'error')",
			EnvVars: []string{"RAIDWATCH_LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:  FlagLogFormat,
			Value: "text",
			Usage: "set the format used by logs ('text' (default), or 'json')",
		},
	}
}

func newCLI() *cli.App {
	app := cli.NewApp()
	app.Name = AppName
	app.Usage = AppUsage
	app.Version = version
	app.Flags = globalFlags()
	app.CommandNotFound = func(ctx *cli.Context, command string) {
		fmt.Printf("unknown command - %v \n\n", command)
		cli.ShowAppHelp(ctx)
	}

	app.Before = func(ctx *cli.Context) error {
		return configureLogging(ctx.String(FlagLogLevel), ctx.String(FlagLogFormat))
	}

	app.Commands = []*cli.Command{
		serveCommand,
		managersCommand,
		processesCommand,
		mockEngineCommand,
	}
	return app
}

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func configureLogging(level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "unknown log-level %q", level)
	}
	log.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(new(log.JSONFormatter))
	default:
		return errors.Errorf("unknown log-format %q", format)
	}
	return nil
}

// loadConfig reads the config named by --config. Logging settings from the
// file apply unless the matching flag was given explicitly.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	path := ctx.String(FlagConfig)
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, errors.Wrap(err, "loading config")
	}
	if err := applyLogging(ctx, cfg); err != nil {
		return nil, err
	}
	log.WithField("path", path).Debug("config loaded")
	return cfg, nil
}

func applyLogging(ctx *cli.Context, cfg *config.Config) error {
	level, format := cfg.Logging.Level, cfg.Logging.Format
	if ctx.IsSet(FlagLogLevel) || level == "" {
		level = ctx.String(FlagLogLevel)
	}
	if ctx.IsSet(FlagLogFormat) || format == "" {
		format = ctx.String(FlagLogFormat)
	}
	return configureLogging(level, format)
}

// buildRegistry returns the built-in managers that the config leaves
// enabled, with plugin path overrides applied.
func buildRegistry(cfg *config.Config, n notify.Notifier, m metrics.Collector) (*registry.Registry, error) {
	deps := registry.Deps{
		Notifier:         n,
		Metrics:          m,
		InvasionDebounce: cfg.Monitor.InvasionDebounce,
		Webhooks:         cfg.Webhooks(),
	}

	var enabled []registry.ManagerConfig
	for _, mc := range registry.Builtin(deps) {
		if !cfg.ManagerEnabled(mc.ID) {
			log.WithField("manager", mc.ID).Info("manager disabled by config")
			continue
		}
		if p := cfg.Managers[mc.ID].PluginPath; p != "" {
			mc.PluginPath = p
		}
		enabled = append(enabled, mc)
	}
	return registry.New(enabled...)
}

func engineConfig(cfg *config.Config) monitor.EngineConfig {
	return monitor.EngineConfig{
		Executable:      cfg.Engine.Python,
		InterpreterArgs: cfg.Engine.InterpreterArgs,
		Script:          cfg.Engine.Script,
		ResourceDir:     cfg.Engine.ResourceDir,
	}
}
