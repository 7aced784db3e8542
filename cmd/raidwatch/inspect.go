package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/raidwatch/raidwatch/internal/procscan"
)

var jsonFlag = &cli.BoolFlag{Name: "json", Usage: "print JSON instead of a table"}

var managersCommand = &cli.Command{
	Name:    "managers",
	Aliases: []string{"m"},
	Usage:   "List the supported game managers",
	Flags:   []cli.Flag{jsonFlag},
	Action: func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		reg, err := buildRegistry(cfg, nil, nil)
		if err != nil {
			return err
		}

		supported := reg.Supported()
		if ctx.Bool("json") {
			return printJSON(supported)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tLABEL\tKEYWORDS\tWEBHOOK")
		for _, m := range supported {
			webhook := "unset"
			if cfg.Webhook(m.ID).Enabled() {
				webhook = "set"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.Label, strings.Join(m.ProcessKeywords, ","), webhook)
		}
		return tw.Flush()
	},
}

var processesCommand = &cli.Command{
	Name:    "processes",
	Aliases: []string{"ps"},
	Usage:   "List running processes, optionally only those a manager would target",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "manager", Usage: "only show processes matching this manager's keywords"},
		jsonFlag,
	},
	Action: func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}

		procs, err := procscan.New().List(ctx.Context)
		if err != nil {
			return err
		}
		if id := ctx.String("manager"); id != "" {
			reg, err := buildRegistry(cfg, nil, nil)
			if err != nil {
				return err
			}
			mc, err := reg.Get(id)
			if err != nil {
				return err
			}
			procs = procscan.Filter(procs, mc.ProcessKeywords)
		}

		if ctx.Bool("json") {
			if procs == nil {
				procs = []procscan.Process{}
			}
			return printJSON(procs)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PID\tNAME")
		for _, p := range procs {
			fmt.Fprintf(tw, "%d\t%s\n", p.PID, p.Name)
		}
		return tw.Flush()
	},
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
