package main

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/raidwatch/raidwatch/internal/mock"
)

// mockEngineCommand stands in for the analysis engine. To use it, set
// engine.python to the raidwatch binary, engine.interpreter_args to
// ["mock-engine"] and engine.script to "". The target pid and plugin path
// arrive as the usual trailing arguments.
var mockEngineCommand = &cli.Command{
	Name:      "mock-engine",
	Usage:     "Print a synthetic engine output stream for development",
	ArgsUsage: "[PID] [PLUGIN_PATH]",
	Flags: []cli.Flag{
		&cli.DurationFlag{Name: "interval", Value: mock.DefaultInterval, Usage: "delay between lines"},
		&cli.StringFlag{Name: "game", Value: "eternal-city", Usage: "domain tag written on structured lines"},
	},
	Action: func(ctx *cli.Context) error {
		sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		target := "0"
		if ctx.Args().Present() {
			target = ctx.Args().First()
		}

		// Stderr is reported to the UI as engine errors, so keep it quiet.
		if !ctx.IsSet(FlagLogLevel) {
			log.SetLevel(log.WarnLevel)
		}

		e := mock.NewEngine(os.Stdout,
			mock.WithInterval(ctx.Duration("interval")),
			mock.WithGame(ctx.String("game")),
			mock.WithTarget(target),
		)
		return e.Run(sigCtx)
	},
}
