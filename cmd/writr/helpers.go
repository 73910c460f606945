package main

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/Hubmakerlabs/writr/app"
	"github.com/mdp/qrterminal/v3"
	"github.com/urfave/cli/v2"
)

func dirOf(fp string) string { return filepath.Dir(fp) }

func config(cCtx *cli.Context) (cfg *app.Config, fp string) {
	return cCtx.App.Metadata["config"].(*app.Config),
		cCtx.App.Metadata["path"].(string)
}

// open starts the components for a command; close the result when done.
func open(cCtx *cli.Context) (w *app.Writr, err error) {
	cfg, _ := config(cCtx)
	if w, err = app.New(cCtx.Context, cfg); chk.E(err) {
		return
	}
	return
}

func isPiped() bool {
	stat, _ := os.Stdin.Stat()
	return stat.Mode()&os.ModeCharDevice == 0
}

// inputs yields the arguments, or the lines of stdin when there are none.
func inputs(cCtx *cli.Context) chan string {
	ch := make(chan string)
	args := cCtx.Args().Slice()
	go func() {
		defer close(ch)
		if len(args) > 0 {
			for _, a := range args {
				ch <- a
			}
			return
		}
		if !isPiped() {
			return
		}
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 16*1024), 256*1024)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				ch <- line
			}
		}
	}()
	return ch
}

func printQR(s string) {
	config := qrterminal.Config{
		HalfBlocks: false,
		Level:      qrterminal.L,
		Writer:     os.Stdout,
		WhiteChar:  qrterminal.WHITE,
		BlackChar:  qrterminal.BLACK,
		QuietZone:  2,
	}
	qrterminal.GenerateWithConfig(s, config)
}
