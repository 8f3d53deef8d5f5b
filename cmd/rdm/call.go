package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/linkdata/rdm"
)

var callCommand = &cli.Command{
	Name:      "call",
	Usage:     "connect to a server and call a method",
	ArgsUsage: "METHOD [JSON-ARG...]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "url",
			Usage: "server base URL",
		},
		&cli.StringFlag{
			Name:  "transport",
			Usage: "http or fasthttp",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "how long to wait for the answer",
			Value: time.Second * 10,
		},
	},
	Action: call,
}

func call(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if ctx.IsSet("url") {
		cfg.URL = ctx.String("url")
	}
	if ctx.IsSet("transport") {
		cfg.Transport = ctx.String("transport")
	}
	if cfg.URL == "" {
		return errors.New("missing server URL, use --url or the url config key")
	}
	if ctx.NArg() < 1 {
		return errors.New("missing required argument: METHOD")
	}

	method := ctx.Args().First()
	args := make([]interface{}, 0, ctx.NArg()-1)
	for _, text := range ctx.Args().Tail() {
		var arg interface{}
		if err = json.Unmarshal([]byte(text), &arg); err != nil {
			// not JSON, pass it as a string
			arg = text
		}
		args = append(args, arg)
	}

	callCtx, cancel := context.WithTimeout(ctx.Context, ctx.Duration("timeout"))
	defer cancel()

	c, err := rdm.Dial(callCtx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	c.Start()

	result, err := c.CallWait(callCtx, method, args...)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	fmt.Println(string(out))
	return nil
}
