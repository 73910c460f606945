package main

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"
)

var whoamiCmd = &cli.Command{
	Name:  "whoami",
	Usage: "show the identity articles are signed with",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "qr", Usage: "print the npub as a QR code"},
	},
	Action: func(cCtx *cli.Context) (err error) {
		w, err := open(cCtx)
		if err != nil {
			return
		}
		defer w.Close()
		if w.Key == nil {
			return fmt.Errorf("no secret key configured, run writr init")
		}
		chk.D(w.LoadMailboxes(cCtx.Context))
		fmt.Println(w.Key.Npub())
		fmt.Println(w.Key.Pub())
		if ev, e := w.Profile(cCtx.Context); e == nil && ev != nil {
			var meta struct {
				Name        string `json:"name"`
				DisplayName string `json:"display_name"`
				Nip05       string `json:"nip05"`
			}
			if e = json.Unmarshal([]byte(ev.Content), &meta); e == nil {
				if meta.DisplayName != "" {
					fmt.Println(meta.DisplayName)
				} else if meta.Name != "" {
					fmt.Println(meta.Name)
				}
				if meta.Nip05 != "" {
					fmt.Println(meta.Nip05)
				}
			}
		}
		if cCtx.Bool("qr") {
			printQR("nostr:" + w.Key.Npub())
		}
		return
	},
}
