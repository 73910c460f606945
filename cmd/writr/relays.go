package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
)

var relaysCmd = &cli.Command{
	Name:  "relays",
	Usage: "show the relays articles are published to and looked up on",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "offline", Usage: "do not fetch the relay list first"},
	},
	Action: func(cCtx *cli.Context) (err error) {
		w, err := open(cCtx)
		if err != nil {
			return
		}
		defer w.Close()
		if !cCtx.Bool("offline") {
			chk.D(w.LoadMailboxes(cCtx.Context))
		}
		show := func(title string, urls []string) {
			fmt.Printf("%s:\n", title)
			if len(urls) == 0 {
				fmt.Println("  (none)")
			}
			for _, u := range urls {
				fmt.Println("  " + u)
			}
		}
		set, e := w.Relays.PublishSet(w.Active())
		if e != nil {
			fmt.Println(e)
		}
		show("publish", set)
		show("lookup", w.Relays.Lookup)
		if w.Active() != "" {
			if m, ok := w.Index.Mailboxes(w.Active()); ok {
				show("outboxes", m.Outboxes)
				show("inboxes", m.Inboxes)
			} else {
				fmt.Println("no relay list found for " + w.Active())
			}
		}
		fmt.Printf("media servers: %s\n",
			strings.Join(w.Config.MediaServers, " "))
		return
	},
}
