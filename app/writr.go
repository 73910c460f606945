// Package app wires the writr components together from a Config.
package app

import (
	"os"
	"path/filepath"
	"time"

	"github.com/Hubmakerlabs/writr/pkg/address"
	"github.com/Hubmakerlabs/writr/pkg/blossom"
	"github.com/Hubmakerlabs/writr/pkg/content"
	"github.com/Hubmakerlabs/writr/pkg/context"
	"github.com/Hubmakerlabs/writr/pkg/download"
	"github.com/Hubmakerlabs/writr/pkg/fetch"
	"github.com/Hubmakerlabs/writr/pkg/index"
	"github.com/Hubmakerlabs/writr/pkg/kind"
	"github.com/Hubmakerlabs/writr/pkg/pool"
	"github.com/Hubmakerlabs/writr/pkg/publish"
	"github.com/Hubmakerlabs/writr/pkg/relays"
	"github.com/Hubmakerlabs/writr/pkg/signer"
	"github.com/Hubmakerlabs/writr/pkg/slog"
	"github.com/Hubmakerlabs/writr/pkg/vault"
	"github.com/nbd-wtf/go-nostr"
)

var log, chk = slog.New(os.Stderr)

// Writr holds the running components. Key is nil when no secret key is
// configured; publishing then fails and downloads still work.
type Writr struct {
	Config     *Config
	Key        *signer.Key
	Index      *index.T
	Pool       *pool.Simple
	Relays     *relays.Pipeline
	Fetch      *fetch.Engine
	Vault      *vault.Vault
	Media      *content.Transformer
	Publisher  *publish.Orchestrator
	Downloader *download.Downloader
}

// New opens the index and connects the components. The pool lives until
// Close or until c is done.
func New(c context.T, cfg *Config) (w *Writr, err error) {
	w = &Writr{Config: cfg}
	if cfg.SecretKey != "" {
		if w.Key, err = signer.NewKey(cfg.SecretKey); chk.E(err) {
			return nil, err
		}
	}
	if err = os.MkdirAll(filepath.Dir(cfg.IndexPath), 0700); chk.E(err) {
		return nil, err
	}
	if w.Index, err = index.Open(cfg.IndexPath); chk.E(err) {
		return nil, err
	}
	w.Pool = pool.NewSimple(c)
	w.Relays = relays.New(relays.Config{
		Publish: cfg.PublishRelays,
		Lookup:  cfg.LookupRelays,
		Local:   cfg.LocalRelay,
	}, w.Index)
	w.Fetch = fetch.New(w.Pool, w.Index, cfg.Timeout())
	w.Vault = vault.New(cfg.Vault)
	blobs := blossom.New()
	w.Media = &content.Transformer{
		Store:       w.Vault,
		Uploader:    blobs,
		Downloader:  blobs,
		Servers:     cfg.MediaServers,
		MediaFolder: cfg.MediaFolder,
	}
	w.Publisher = &publish.Orchestrator{
		Relays:    w.Relays,
		Publisher: w.Pool,
		Index:     w.Index,
		Store:     w.Vault,
		Media:     w.Media,
	}
	w.Downloader = &download.Downloader{
		Fetcher: w.Fetch,
		Relays:  w.Relays,
		Store:   w.Vault,
		Media:   w.Media,
		Folder:  cfg.DownloadFolder,
	}
	if w.Key != nil {
		// a nil *signer.Key must not end up in the Signer interface
		w.Publisher.Signer = w.Key
		w.Media.Auth = blossom.SignerAuth(w.Key, 5*time.Minute)
		w.Downloader.Active = w.Key.Pub()
	}
	return
}

// Active is the pubkey of the configured identity, or "".
func (w *Writr) Active() string {
	if w.Key == nil {
		return ""
	}
	return w.Key.Pub()
}

// LoadMailboxes fetches the relay list and profile of the active identity so
// its outboxes join the publish set.
func (w *Writr) LoadMailboxes(c context.T) (err error) {
	pk := w.Active()
	if pk == "" {
		return nil
	}
	var urls []string
	if urls, err = w.Relays.Discovery(&address.Profile{PublicKey: pk},
		pk); err != nil {
		return
	}
	if _, err = w.Fetch.Fetch(c, urls, nostr.Filter{
		Kinds: []int{kind.RelayListMetadata.ToInt(),
			kind.ProfileMetadata.ToInt()},
		Authors: []string{pk},
	}); chk.E(err) {
		return
	}
	return
}

// Profile returns the stored profile metadata of the active identity.
func (w *Writr) Profile(c context.T) (ev *nostr.Event, err error) {
	return w.Index.Replaceable(c, kind.ProfileMetadata, w.Active(), "")
}

func (w *Writr) Close() {
	w.Pool.Close()
	chk.D(w.Index.Compact())
	w.Index.Close()
}
