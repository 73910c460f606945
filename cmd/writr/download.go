package main

import (
	"fmt"

	"github.com/Hubmakerlabs/writr/pkg/address"
	"github.com/urfave/cli/v2"
)

var downloadCmd = &cli.Command{
	Name:  "download",
	Usage: "download articles into the vault",
	Description: `an naddr (or a URL containing one) downloads that article; an
npub, nprofile or hex pubkey downloads every article of the author.`,
	ArgsUsage: "<naddr | npub | nprofile | hex pubkey | url>...",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "author", Aliases: []string{"a"},
			Usage: "download all articles of the author of an naddr"},
	},
	Action: func(cCtx *cli.Context) (err error) {
		w, err := open(cCtx)
		if err != nil {
			return
		}
		defer w.Close()
		chk.D(w.LoadMailboxes(cCtx.Context))
		var failed int
		for input := range inputs(cCtx) {
			r := address.Resolve(input)
			switch {
			case r == nil:
				fmt.Printf("%s: not an address\n", input)
				failed++
			case r.Address != nil && !cCtx.Bool("author"):
				rel, e := w.Downloader.Address(cCtx.Context, input)
				if e != nil {
					fmt.Printf("%s: %s\n", input, e)
					failed++
					continue
				}
				fmt.Println(rel)
			default:
				rep, e := w.Downloader.Author(cCtx.Context, input)
				if e != nil {
					fmt.Printf("%s: %s\n", input, e)
					failed++
					continue
				}
				for _, rel := range rep.Saved {
					fmt.Println(rel)
				}
				for _, f := range rep.Failed {
					fmt.Printf("%s (%s): %s\n", f.Identifier, f.ID, f.Err)
				}
				failed += len(rep.Failed)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d downloads failed", failed)
		}
		return
	},
}
