// Package address turns user input (hex keys, nip-19 entities and URLs that
// embed them) into profile and addressable event pointers.
package address

import (
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/Hubmakerlabs/writr/pkg/errs"
	"github.com/Hubmakerlabs/writr/pkg/kind"
	"github.com/Hubmakerlabs/writr/pkg/slog"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

var log, chk = slog.New(os.Stderr)

const HexKeyLen = 64

// Address points at one addressable (parameterized replaceable) event
// independent of its version.
type Address struct {
	Kind       kind.T   `json:"kind"`
	PublicKey  string   `json:"pubkey"`
	Identifier string   `json:"identifier"`
	Relays     []string `json:"relays,omitempty"`
}

// Profile points at an author.
type Profile struct {
	PublicKey string   `json:"pubkey"`
	Relays    []string `json:"relays,omitempty"`
}

// Resolved is the result of Resolve. Exactly one of the fields is set.
type Resolved struct {
	Profile *Profile `json:"profile,omitempty"`
	Address *Address `json:"address,omitempty"`
}

// embedded finds a nip-19 profile or address entity inside a longer string,
// such as the path of a web client URL or a nostr: URI.
var embedded = regexp.MustCompile(
	`(naddr|nprofile|npub)1[023456789acdefghjklmnpqrstuvwxyz]+`)

// IsHexKey reports whether s is a 64 character lowercase hex string.
func IsHexKey(s string) bool {
	if len(s) != HexKeyLen || strings.ToLower(s) != s {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Resolve turns input into a profile or address pointer. It returns nil if
// the input is not a valid address; decoding errors are logged and dropped.
func Resolve(input string) (r *Resolved) {
	return resolve(strings.TrimSpace(input), true)
}

// ResolveE is Resolve with the nil result turned into errs.ErrInvalidAddress.
func ResolveE(input string) (r *Resolved, err error) {
	if r = Resolve(input); r == nil {
		err = fmt.Errorf("%w: '%s'", errs.ErrInvalidAddress, input)
	}
	return
}

func resolve(input string, recurse bool) (r *Resolved) {
	defer func() {
		if p := recover(); p != nil {
			log.D.F("decoding '%s' panicked: %v", input, p)
			r = nil
		}
	}()
	// handle if it is a hex string
	if IsHexKey(input) {
		return &Resolved{Profile: &Profile{PublicKey: input}}
	}
	// handle nip19 codes, if that's the case
	var err error
	var prefix string
	var data any
	if prefix, data, err = nip19.Decode(input); !chk.D(err) {
		switch v := data.(type) {
		case string:
			if prefix == "npub" {
				return &Resolved{Profile: &Profile{PublicKey: v}}
			}
		case nostr.ProfilePointer:
			return profileFrom(&v)
		case *nostr.ProfilePointer:
			return profileFrom(v)
		case nostr.EntityPointer:
			return addressFrom(&v)
		case *nostr.EntityPointer:
			return addressFrom(v)
		}
		log.D.F("'%s' decodes to unsupported entity %s (%T)", input, prefix,
			data)
		return
	}
	// look for an entity embedded in a URL, only one level deep
	if recurse {
		if m := embedded.FindString(input); m != "" && m != input {
			return resolve(m, false)
		}
	}
	return
}

func profileFrom(pp *nostr.ProfilePointer) *Resolved {
	return &Resolved{Profile: &Profile{
		PublicKey: pp.PublicKey,
		Relays:    pp.Relays,
	}}
}

func addressFrom(ep *nostr.EntityPointer) *Resolved {
	return &Resolved{Address: &Address{
		Kind:       kind.T(ep.Kind),
		PublicKey:  ep.PublicKey,
		Identifier: ep.Identifier,
		Relays:     ep.Relays,
	}}
}

// Key is the stable identity of the document the address points at.
func (a *Address) Key() string {
	return Key(a.Kind, a.PublicKey, a.Identifier)
}

// Key formats the kind:pubkey:identifier triple used to identify an
// addressable event, as in an "a" tag.
func Key(k kind.T, pubkey, identifier string) string {
	return fmt.Sprintf("%d:%s:%s", k, pubkey, identifier)
}

// Encode returns the naddr form of the pointer.
func (a *Address) Encode() (s string, err error) {
	if s, err = nip19.EncodeEntity(a.PublicKey, a.Kind.ToInt(), a.Identifier,
		a.Relays); chk.D(err) {
		return
	}
	return
}

// Filter returns the filter matching every version of the addressed event.
func (a *Address) Filter() nostr.Filter {
	return nostr.Filter{
		Kinds:   []int{a.Kind.ToInt()},
		Authors: []string{a.PublicKey},
		Tags:    nostr.TagMap{"d": []string{a.Identifier}},
	}
}

// FromEvent builds the address of an addressable event.
func FromEvent(ev *nostr.Event, relays ...string) *Address {
	return &Address{
		Kind:       kind.T(ev.Kind),
		PublicKey:  ev.PubKey,
		Identifier: ev.Tags.GetD(),
		Relays:     relays,
	}
}

// Encode returns the nprofile form of the pointer if it carries relay hints
// and the npub form otherwise.
func (p *Profile) Encode() (s string, err error) {
	if len(p.Relays) == 0 {
		if s, err = nip19.EncodePublicKey(p.PublicKey); chk.D(err) {
			return
		}
		return
	}
	if s, err = nip19.EncodeProfile(p.PublicKey, p.Relays); chk.D(err) {
		return
	}
	return
}
