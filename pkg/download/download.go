// Package download saves articles from relays into the vault, one by address
// or all of an author's.
package download

import (
	"fmt"
	"os"
	"path"

	"github.com/Hubmakerlabs/writr/pkg/address"
	"github.com/Hubmakerlabs/writr/pkg/context"
	"github.com/Hubmakerlabs/writr/pkg/errs"
	"github.com/Hubmakerlabs/writr/pkg/frontmatter"
	"github.com/Hubmakerlabs/writr/pkg/kind"
	"github.com/Hubmakerlabs/writr/pkg/relays"
	"github.com/Hubmakerlabs/writr/pkg/slog"
	"github.com/nbd-wtf/go-nostr"
)

var log, chk = slog.New(os.Stderr)

// Fetcher gets events through the local index.
type Fetcher interface {
	Address(c context.T, a *address.Address, urls []string) (
		ev *nostr.Event, err error)
	Author(c context.T, k kind.T, pubkey string, urls []string) (
		evs []*nostr.Event, err error)
	Mailboxes(c context.T, pubkey string, urls []string) (
		m *relays.Mailboxes, err error)
}

// RelaySets computes where to look.
type RelaySets interface {
	FetchByAddress(a *address.Address, active string) ([]string, error)
	FetchByAuthor(pp *address.Profile, active string) ([]string, error)
	Discovery(pp *address.Profile, active string) ([]string, error)
	KnowsMailboxes(pubkey string) bool
}

// Store writes downloaded documents.
type Store interface {
	SaveDocument(rel string, fm frontmatter.Frontmatter, body string) error
}

// Media localizes the remote images of a body.
type Media interface {
	Download(c context.T, body string) (out string)
}

// Downloader saves articles under Folder. Media may be nil, leaving images
// remote.
type Downloader struct {
	Fetcher Fetcher
	Relays  RelaySets
	Store   Store
	Media   Media
	Folder  string
	// Active is the pubkey of the signed in identity, if any, whose publish
	// relays are searched too.
	Active string
}

// Path is where the article fm describes is saved: one folder per author
// and one file per identifier, so downloading an article again overwrites
// the same file.
func (d *Downloader) Path(fm frontmatter.Frontmatter) string {
	author := fm.PublicKey
	if len(author) > 8 {
		author = author[:8]
	}
	name := frontmatter.Slug(fm.Identifier)
	if name == "" {
		name = "untitled"
	}
	return path.Join(d.Folder, author, name+".md")
}

// Save writes ev to the vault and returns its path.
func (d *Downloader) Save(c context.T, ev *nostr.Event) (rel string,
	err error) {

	if !kind.T(ev.Kind).IsParameterizedReplaceable() {
		return "", fmt.Errorf("event %s is kind %d, not an article", ev.ID,
			ev.Kind)
	}
	fm := frontmatter.FromEvent(ev)
	body := ev.Content
	if d.Media != nil {
		body = d.Media.Download(c, body)
	}
	rel = d.Path(fm)
	if err = d.Store.SaveDocument(rel, fm, body); chk.E(err) {
		return "", err
	}
	return
}

// Address downloads the article input points at, which may be an naddr or a
// URL containing one.
func (d *Downloader) Address(c context.T, input string) (rel string,
	err error) {

	var r *address.Resolved
	if r, err = address.ResolveE(input); err != nil {
		return
	}
	if r.Address == nil {
		return "", fmt.Errorf("%w: %s points at a profile, not an article",
			errs.ErrInvalidAddress, input)
	}
	var urls []string
	if urls, err = d.Relays.FetchByAddress(r.Address, d.Active); err != nil {
		return
	}
	var ev *nostr.Event
	if ev, err = d.Fetcher.Address(c, r.Address, urls); err != nil {
		return
	}
	return d.Save(c, ev)
}

// Failure is an article that could not be saved.
type Failure struct {
	ID         string
	Identifier string
	Err        error
}

// BulkReport lists what a bulk download saved and what it could not.
type BulkReport struct {
	Saved  []string
	Failed []Failure
}

// Author downloads every article of the author input points at. Relay lists
// are looked up first when the author's outboxes are not known yet. Besides
// the input's relay hints, the active publish set and the local relay, the
// articles are also asked of the author's own outboxes, where they are most
// likely to be. Articles that fail to save are reported and skipped.
func (d *Downloader) Author(c context.T, input string) (rep *BulkReport,
	err error) {

	var r *address.Resolved
	if r, err = address.ResolveE(input); err != nil {
		return
	}
	pp := r.Profile
	if pp == nil {
		pp = &address.Profile{PublicKey: r.Address.PublicKey,
			Relays: r.Address.Relays}
	}
	if !d.Relays.KnowsMailboxes(pp.PublicKey) {
		var disc []string
		if disc, err = d.Relays.Discovery(pp, d.Active); err != nil {
			return
		}
		if _, err = d.Fetcher.Mailboxes(c, pp.PublicKey, disc); err != nil {
			// the fetch set below still has the hints and publish relays
			log.W.F("no relay list found for %s: %s", pp.PublicKey, err)
			err = nil
		}
	}
	var urls []string
	if urls, err = d.Relays.FetchByAuthor(pp, d.Active); err != nil {
		return
	}
	var evs []*nostr.Event
	if evs, err = d.Fetcher.Author(c, kind.LongFormContent, pp.PublicKey,
		urls); err != nil {
		return
	}
	rep = &BulkReport{}
	for _, ev := range evs {
		if err = c.Err(); err != nil {
			return
		}
		rel, e := d.Save(c, ev)
		if e != nil {
			log.E.F("could not save %s: %s", ev.ID, e)
			rep.Failed = append(rep.Failed, Failure{ID: ev.ID,
				Identifier: ev.Tags.GetD(), Err: e})
			continue
		}
		rep.Saved = append(rep.Saved, rel)
	}
	log.I.F("saved %d articles of %s, %d failed", len(rep.Saved),
		pp.PublicKey, len(rep.Failed))
	return
}
