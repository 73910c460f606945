// Package signer provides the signing identity used to publish events.
package signer

import (
	"fmt"
	"os"
	"strings"

	"github.com/Hubmakerlabs/writr/pkg/address"
	"github.com/Hubmakerlabs/writr/pkg/context"
	"github.com/Hubmakerlabs/writr/pkg/errs"
	"github.com/Hubmakerlabs/writr/pkg/slog"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

var log, chk = slog.New(os.Stderr)

// Signer signs events on behalf of one identity.
type Signer interface {
	// PublicKey returns the hex public key events are signed with.
	PublicKey(c context.T) (pk string, err error)
	// Sign returns a signed copy of the draft, whose pubkey is overwritten by
	// the signer's.
	Sign(c context.T, draft nostr.Event) (ev *nostr.Event, err error)
}

// Key is a Signer holding a secret key in memory.
type Key struct {
	sec, pub string
}

// NewKey accepts a secret key as 64 hex characters or as an nsec.
func NewKey(secret string) (k *Key, err error) {
	secret = strings.TrimSpace(secret)
	if strings.HasPrefix(secret, "nsec") {
		var prefix string
		var value any
		if prefix, value, err = nip19.Decode(secret); chk.D(err) {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		s, ok := value.(string)
		if prefix != "nsec" || !ok {
			return nil, fmt.Errorf("invalid private key: decoded to %s", prefix)
		}
		secret = s
	}
	if !address.IsHexKey(strings.ToLower(secret)) {
		return nil, fmt.Errorf("invalid private key")
	}
	secret = strings.ToLower(secret)
	k = &Key{sec: secret}
	if k.pub, err = nostr.GetPublicKey(secret); chk.E(err) {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return
}

// Generate makes a new random key.
func Generate() (k *Key, err error) {
	return NewKey(nostr.GeneratePrivateKey())
}

func (k *Key) PublicKey(_ context.T) (string, error) { return k.pub, nil }

// Pub returns the hex public key.
func (k *Key) Pub() string { return k.pub }

// Secret returns the hex secret key, for writing configuration.
func (k *Key) Secret() string { return k.sec }

// Npub returns the bech32 public key.
func (k *Key) Npub() (s string) {
	var err error
	if s, err = nip19.EncodePublicKey(k.pub); chk.E(err) {
		return k.pub
	}
	return
}

func (k *Key) Sign(_ context.T, draft nostr.Event) (ev *nostr.Event,
	err error) {

	ev = &draft
	ev.Tags = append(nostr.Tags(nil), draft.Tags...)
	ev.PubKey = k.pub
	if err = ev.Sign(k.sec); chk.E(err) {
		return nil, fmt.Errorf("%w: %w", errs.ErrSigningFailed, err)
	}
	log.T.F("signed event %s kind %d", ev.ID, ev.Kind)
	return
}
