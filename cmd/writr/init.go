package main

import (
	"fmt"

	"github.com/Hubmakerlabs/writr/pkg/signer"
	"github.com/urfave/cli/v2"
)

var initCmd = &cli.Command{
	Name:  "init",
	Usage: "write the configuration of a profile",
	Description: `sets the signing key and folders. a new key is generated when
none is given and the profile has none yet. relays given with --relay replace
the publish relays.`,
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "sec", Usage: "secret key as hex or nsec"},
		&cli.StringFlag{Name: "vault", Usage: "folder holding the documents"},
		&cli.StringSliceFlag{Name: "relay", Aliases: []string{"r"},
			Usage: "publish relay (repeatable)"},
		&cli.StringSliceFlag{Name: "media", Aliases: []string{"m"},
			Usage: "blossom media server (repeatable)"},
		&cli.StringFlag{Name: "local", Usage: "local relay url"},
		&cli.StringFlag{Name: "downloads", Usage: "folder in the vault downloads are saved to"},
	},
	Action: func(cCtx *cli.Context) (err error) {
		cfg, fp := config(cCtx)
		if sec := cCtx.String("sec"); sec != "" {
			cfg.SecretKey = sec
		}
		var key *signer.Key
		if cfg.SecretKey == "" {
			if key, err = signer.Generate(); chk.E(err) {
				return
			}
			cfg.SecretKey = key.Secret()
		} else if key, err = signer.NewKey(cfg.SecretKey); err != nil {
			return
		}
		if v := cCtx.String("vault"); v != "" {
			cfg.Vault = v
		}
		if r := cCtx.StringSlice("relay"); len(r) > 0 {
			cfg.PublishRelays = r
		}
		if m := cCtx.StringSlice("media"); len(m) > 0 {
			cfg.MediaServers = m
		}
		if l := cCtx.String("local"); l != "" {
			cfg.LocalRelay = l
		}
		if d := cCtx.String("downloads"); d != "" {
			cfg.DownloadFolder = d
		}
		cfg.Normalize()
		if err = cfg.Save(fp); chk.E(err) {
			return
		}
		fmt.Printf("wrote %s\nidentity %s\n", fp, key.Npub())
		return
	},
}
