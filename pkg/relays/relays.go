// Package relays computes the ordered, deduplicated relay sets used for
// publishing and fetching, combining configured relays with the mailboxes
// authors declare in their relay list events.
package relays

import (
	"os"

	"github.com/Hubmakerlabs/writr/pkg/address"
	"github.com/Hubmakerlabs/writr/pkg/errs"
	"github.com/Hubmakerlabs/writr/pkg/kind"
	"github.com/Hubmakerlabs/writr/pkg/normalize"
	"github.com/Hubmakerlabs/writr/pkg/slog"
	"github.com/nbd-wtf/go-nostr"
)

var log, chk = slog.New(os.Stderr)

// Mailboxes are the relays an author reads from (inboxes) and writes to
// (outboxes).
type Mailboxes struct {
	Inboxes  []string `json:"inboxes"`
	Outboxes []string `json:"outboxes"`
}

// MailboxSource looks up the mailboxes of an author. ok is false when no
// relay list is known yet.
type MailboxSource interface {
	Mailboxes(pubkey string) (m *Mailboxes, ok bool)
}

// Config is the relay configuration.
type Config struct {
	// Publish relays are always written to.
	Publish []string
	// Lookup relays are only used to discover relay lists.
	Lookup []string
	// Local is an optional relay on this machine, exempt from the loopback
	// check.
	Local string
}

// Pipeline resolves relay sets. Mailboxes are read from the source every
// time a set is computed, so relay list updates are seen on the next call.
type Pipeline struct {
	Config
	Source MailboxSource
}

func New(cfg Config, src MailboxSource) *Pipeline {
	return &Pipeline{Config: cfg, Source: src}
}

// Dedupe merges the lists, keeping the first occurrence of each relay in
// order. Relays are compared and returned in normalized form.
func Dedupe(lists ...[]string) (out []string) {
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, u := range list {
			n := normalize.URL(u)
			if n == "" {
				continue
			}
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	return
}

// Safe drops every url that is not a websocket url, and every url pointing
// at the local machine unless it is the configured local relay.
func (p *Pipeline) Safe(urls []string) (out []string) {
	local := normalize.URL(p.Local)
	for _, u := range urls {
		if !normalize.IsRelayURL(u) {
			log.D.F("dropping relay '%s': not a websocket url", u)
			continue
		}
		n := normalize.URL(u)
		if n == "" {
			continue
		}
		if normalize.IsLoopback(n) && n != local {
			log.D.F("dropping relay '%s': loopback address", u)
			continue
		}
		out = append(out, n)
	}
	return
}

func (p *Pipeline) local() []string {
	if p.Local == "" {
		return nil
	}
	return []string{p.Local}
}

func (p *Pipeline) outboxes(pubkey string) []string {
	if p.Source == nil || pubkey == "" {
		return nil
	}
	if m, ok := p.Source.Mailboxes(pubkey); ok && m != nil {
		return m.Outboxes
	}
	return nil
}

// KnowsMailboxes reports whether a relay list of pubkey is available.
func (p *Pipeline) KnowsMailboxes(pubkey string) bool {
	if p.Source == nil || pubkey == "" {
		return false
	}
	_, ok := p.Source.Mailboxes(pubkey)
	return ok
}

func (p *Pipeline) finish(lists ...[]string) (urls []string, err error) {
	var all []string
	for _, list := range lists {
		all = append(all, list...)
	}
	// the scheme check must see the urls as written, before normalizing
	if urls = Dedupe(p.Safe(all)); len(urls) == 0 {
		err = errs.ErrNoRelaysConfigured
	}
	return
}

// PublishSet is the local relay, then the configured publish relays, then the
// outboxes of author.
func (p *Pipeline) PublishSet(author string) (urls []string, err error) {
	return p.finish(p.local(), p.Publish, p.outboxes(author))
}

func (p *Pipeline) publishSet(active string) []string {
	urls, _ := p.PublishSet(active)
	return urls
}

// FetchByAddress is the relay hints of a, then the publish set of the active
// author, then the local relay.
func (p *Pipeline) FetchByAddress(a *address.Address,
	active string) (urls []string, err error) {

	return p.finish(a.Relays, p.publishSet(active), p.local())
}

// FetchByAuthor is the relay hints of pp, then the publish set of the active
// author, then the outboxes of the target author if known, then the local
// relay.
func (p *Pipeline) FetchByAuthor(pp *address.Profile,
	active string) (urls []string, err error) {

	return p.finish(pp.Relays, p.publishSet(active), p.outboxes(pp.PublicKey),
		p.local())
}

// Discovery is the set used to find the relay list of an author whose
// mailboxes are not known: the hints, the lookup relays and the publish set.
// It is never used to fetch documents.
func (p *Pipeline) Discovery(pp *address.Profile,
	active string) (urls []string, err error) {

	return p.finish(pp.Relays, p.Lookup, p.publishSet(active))
}

// ParseMailboxes reads the "r" tags of a relay list metadata event. A tag
// without a marker is both an inbox and an outbox.
func ParseMailboxes(ev *nostr.Event) (m *Mailboxes) {
	m = &Mailboxes{}
	if ev == nil || ev.Kind != kind.RelayListMetadata.ToInt() {
		return
	}
	for _, tag := range ev.Tags {
		if len(tag) < 2 || tag[0] != "r" {
			continue
		}
		u := tag[1]
		if !normalize.IsRelayURL(u) {
			continue
		}
		u = normalize.URL(u)
		marker := ""
		if len(tag) > 2 {
			marker = tag[2]
		}
		switch marker {
		case "read":
			m.Inboxes = append(m.Inboxes, u)
		case "write":
			m.Outboxes = append(m.Outboxes, u)
		default:
			m.Inboxes = append(m.Inboxes, u)
			m.Outboxes = append(m.Outboxes, u)
		}
	}
	m.Inboxes, m.Outboxes = Dedupe(m.Inboxes), Dedupe(m.Outboxes)
	return
}
