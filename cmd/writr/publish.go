package main

import (
	"errors"
	"fmt"

	"github.com/Hubmakerlabs/writr/pkg/errs"
	"github.com/Hubmakerlabs/writr/pkg/publish"
	"github.com/urfave/cli/v2"
)

var publishCmd = &cli.Command{
	Name:      "publish",
	Usage:     "publish documents of the vault, updating ones published before",
	ArgsUsage: "<document.md>...",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "qr", Usage: "print the naddr of each article as a QR code"},
	},
	Action: func(cCtx *cli.Context) (err error) {
		if cCtx.Args().Len() == 0 {
			return cli.ShowSubcommandHelp(cCtx)
		}
		w, err := open(cCtx)
		if err != nil {
			return
		}
		defer w.Close()
		if err = w.LoadMailboxes(cCtx.Context); err != nil &&
			!errors.Is(err, errs.ErrNoRelaysConfigured) {
			log.W.F("could not load relay list: %s", err)
		}
		w.Publisher.OnState = func(rel string, s publish.State) {
			log.I.F("%s: %s", rel, s)
		}
		var failed int
		for _, rel := range cCtx.Args().Slice() {
			if d, e := w.Vault.LoadDocument(rel); e == nil {
				if exists, _ := w.Publisher.Exists(cCtx.Context,
					d.Frontmatter); exists {
					fmt.Printf("updating %s\n", rel)
				} else {
					fmt.Printf("publishing %s\n", rel)
				}
			}
			rep, e := w.Publisher.Publish(cCtx.Context, rel)
			if rep != nil {
				for _, o := range rep.Outcomes {
					if o.Err != nil {
						fmt.Printf("  %s %s: %s\n", o.Relay, o.Status, o.Err)
					} else {
						fmt.Printf("  %s %s\n", o.Relay, o.Status)
					}
				}
			}
			if e != nil {
				fmt.Printf("%s: %s\n", rel, e)
				failed++
				continue
			}
			naddr, e := rep.Naddr()
			if chk.E(e) {
				continue
			}
			fmt.Println(naddr)
			if cCtx.Bool("qr") {
				printQR("nostr:" + naddr)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d documents failed to publish", failed,
				cCtx.Args().Len())
		}
		return
	},
}
