// Command naddr encodes and decodes the addresses of long form articles.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Hubmakerlabs/writr/pkg/address"
	"github.com/Hubmakerlabs/writr/pkg/kind"
	"github.com/Hubmakerlabs/writr/pkg/relays"
	"github.com/Hubmakerlabs/writr/pkg/slog"
	"github.com/alexflint/go-arg"
	"github.com/mdp/qrterminal/v3"
)

type EncodeCmd struct {
	Author     string   `arg:"-a,--author,required" help:"author as hex pubkey, npub or nprofile"`
	Identifier string   `arg:"-d,--identifier,required" help:"identifier (d tag) of the article"`
	Kind       int      `arg:"-k,--kind" default:"30023" help:"kind of the addressable event"`
	Relays     []string `arg:"-r,--relay,separate" help:"relay hint (can use flag repeatedly)"`
	QR         bool     `arg:"-q,--qr" help:"also print the address as a QR code"`
}

type DecodeCmd struct {
	Inputs []string `arg:"positional,required" help:"naddr, npub, nprofile, hex pubkey or URL"`
}

type Args struct {
	Encode   *EncodeCmd `arg:"subcommand:encode" help:"encode an naddr"`
	Decode   *DecodeCmd `arg:"subcommand:decode" help:"decode addresses to JSON"`
	LogLevel string     `arg:"--loglevel" default:"warn" help:"set log level [off,fatal,error,warn,info,debug,trace]"`
}

func (Args) Description() string {
	return "naddr encodes and decodes nostr article addresses"
}

var args Args

func main() {
	var log, chk = slog.New(os.Stderr)
	p := arg.MustParse(&args)
	slog.SetLogLevelString(args.LogLevel)
	log.T.S(args)
	var err error
	switch {
	case args.Encode != nil:
		err = encode(args.Encode)
	case args.Decode != nil:
		err = decode(args.Decode)
	default:
		p.WriteHelp(os.Stdout)
		os.Exit(1)
	}
	if chk.D(err) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func encode(cmd *EncodeCmd) (err error) {
	r := address.Resolve(cmd.Author)
	if r == nil || r.Profile == nil {
		return fmt.Errorf("'%s' is not a public key", cmd.Author)
	}
	k := kind.T(cmd.Kind)
	if !k.IsParameterizedReplaceable() {
		return fmt.Errorf("kind %d is not addressable", cmd.Kind)
	}
	a := &address.Address{
		Kind:       k,
		PublicKey:  r.Profile.PublicKey,
		Identifier: cmd.Identifier,
		Relays:     relays.Dedupe(cmd.Relays, r.Profile.Relays),
	}
	var s string
	if s, err = a.Encode(); err != nil {
		return
	}
	fmt.Println(s)
	if cmd.QR {
		qrterminal.GenerateWithConfig("nostr:"+s, qrterminal.Config{
			HalfBlocks: false,
			Level:      qrterminal.L,
			Writer:     os.Stdout,
			WhiteChar:  qrterminal.WHITE,
			BlackChar:  qrterminal.BLACK,
			QuietZone:  2,
		})
	}
	return
}

func decode(cmd *DecodeCmd) (err error) {
	var bad int
	for _, input := range cmd.Inputs {
		r := address.Resolve(input)
		if r == nil {
			fmt.Fprintf(os.Stderr, "%s: not an address\n", input)
			bad++
			continue
		}
		var b []byte
		if b, err = json.MarshalIndent(r, "", "  "); err != nil {
			return
		}
		fmt.Println(string(b))
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d inputs could not be decoded", bad,
			len(cmd.Inputs))
	}
	return
}
