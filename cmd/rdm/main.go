package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/linkdata/rdm"
)

func loadConfig(ctx *cli.Context) (cfg rdm.Config, err error) {
	cfg = rdm.DefaultConfig()
	if path := ctx.String("config"); path != "" {
		if cfg, err = rdm.LoadConfig(path); err != nil {
			return
		}
	}
	if ctx.IsSet("log-level") {
		cfg.LogLevel = ctx.String("log-level")
	}
	if level, lerr := logrus.ParseLevel(cfg.LogLevel); lerr == nil {
		logrus.SetLevel(level)
	}
	return cfg, cfg.Validate()
}

func main() {
	app := &cli.App{
		Name:  "rdm",
		Usage: "reliable message delivery over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "TOML configuration file",
				EnvVars: []string{"RDM_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (trace, debug, info, warn, error)",
				Value: "info",
			},
		},
		Commands: []*cli.Command{
			serveCommand,
			callCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}
