package main

import (
	"encoding/json"
	"fmt"

	"github.com/Hubmakerlabs/writr/pkg/address"
	"github.com/urfave/cli/v2"
)

var decodeCmd = &cli.Command{
	Name:  "decode",
	Usage: "resolve an address and print it as JSON",
	Description: `example usage:
		writr decode npub180cvv07tjdrrgpa0j7j7tmnyl2yr6yr7l8j4s3evf6u64th6gkwsyjh6w6
		writr decode https://njump.me/naddr1...`,
	ArgsUsage: "<npub | nprofile | naddr | hex pubkey | url>",
	Action: func(cCtx *cli.Context) (err error) {
		var failed bool
		for input := range inputs(cCtx) {
			r := address.Resolve(input)
			if r == nil {
				fmt.Printf("%s: not an address\n", input)
				failed = true
				continue
			}
			var b []byte
			if b, err = json.MarshalIndent(r, "", "  "); chk.E(err) {
				return
			}
			fmt.Println(string(b))
		}
		if failed {
			return fmt.Errorf("some inputs could not be decoded")
		}
		return
	},
}
