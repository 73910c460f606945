package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/Hubmakerlabs/writr/app"
	"github.com/Hubmakerlabs/writr/pkg/context"
	"github.com/Hubmakerlabs/writr/pkg/interrupt"
	"github.com/Hubmakerlabs/writr/pkg/slog"
	"github.com/urfave/cli/v2"
)

var log, chk = slog.New(os.Stderr)

const version = "v0.1.0"

var writr = &cli.App{
	Name:    app.AppName,
	Usage:   "publish markdown documents to nostr as long form articles and download them back",
	Version: version,
	Commands: []*cli.Command{
		initCmd,
		publishCmd,
		downloadCmd,
		decodeCmd,
		relaysCmd,
		whoamiCmd,
	},
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "profile",
			Aliases: []string{"p"},
			Usage:   "configuration profile to use",
		},
		&cli.StringFlag{
			Name:  "loglevel",
			Usage: "set log level [off,fatal,error,warn,info,debug,trace] (can also use GODEBUG environment variable)",
		},
		&cli.BoolFlag{
			Name:    "silent",
			Usage:   "do not print logs to stderr",
			Aliases: []string{"s"},
			Action: func(ctx *cli.Context, b bool) error {
				if b {
					slog.SetLogLevel(slog.Off)
				}
				return nil
			},
		},
	},
	Before: loadConfig,
}

// loadConfig reads the profile's configuration into the app metadata. A
// missing file leaves the defaults, so init and decode work before setup.
func loadConfig(cCtx *cli.Context) (err error) {
	var fp string
	if fp, err = app.Path(cCtx.String("profile")); chk.E(err) {
		return
	}
	cfg := app.NewConfig(dirOf(fp))
	if err = cfg.Load(fp); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading %s: %w", fp, err)
		}
		log.D.F("no configuration at %s, using defaults", fp)
		err = nil
	}
	level := cfg.LogLevel
	if l := cCtx.String("loglevel"); l != "" {
		level = l
	}
	if level != "" && !cCtx.Bool("silent") {
		if !slog.SetLogLevelString(level) {
			log.W.F("unknown log level '%s'", level)
		}
	}
	cCtx.App.Metadata = map[string]any{"config": cfg, "path": fp}
	return
}

func main() {
	c, cancel := interrupt.Context(context.Bg())
	defer cancel()
	if err := writr.RunContext(c, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
