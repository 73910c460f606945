// Package publish turns a vault document into a signed long form article and
// sends it to the publish relays, creating it or updating the existing
// version.
package publish

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/Hubmakerlabs/writr/pkg/address"
	"github.com/Hubmakerlabs/writr/pkg/context"
	"github.com/Hubmakerlabs/writr/pkg/errs"
	"github.com/Hubmakerlabs/writr/pkg/frontmatter"
	"github.com/Hubmakerlabs/writr/pkg/kind"
	"github.com/Hubmakerlabs/writr/pkg/pool"
	"github.com/Hubmakerlabs/writr/pkg/signer"
	"github.com/Hubmakerlabs/writr/pkg/slog"
	"github.com/Hubmakerlabs/writr/pkg/vault"
	"github.com/nbd-wtf/go-nostr"
)

var log, chk = slog.New(os.Stderr)

// State is the stage a publish operation is in.
type State int

const (
	Draft State = iota
	Uploading
	Built
	Signed
	Publishing
	Done
	Failed
)

var stateNames = [...]string{"draft", "uploading", "built", "signed",
	"publishing", "done", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Publisher sends an event to relays, one Outcome per relay.
type Publisher interface {
	Publish(c context.T, urls []string, ev *nostr.Event) <-chan pool.Outcome
}

// RelaySet computes the relays an author publishes to.
type RelaySet interface {
	PublishSet(author string) (urls []string, err error)
}

// Index is the local store of published and fetched events.
type Index interface {
	Add(c context.T, ev *nostr.Event) (stored bool, err error)
	Replaceable(c context.T, k kind.T, pubkey, identifier string) (
		ev *nostr.Event, err error)
}

// Store loads documents and records their front matter after signing.
type Store interface {
	LoadDocument(rel string) (d *vault.Document, err error)
	SaveFrontmatter(rel string, fm frontmatter.Frontmatter) (err error)
}

// Media replaces the local media of a body with uploaded copies.
type Media interface {
	HasMedia(body, source string) bool
	Upload(c context.T, body, source string) (out string, err error)
}

// Orchestrator publishes documents. Media may be nil, in which case bodies
// are sent as written.
type Orchestrator struct {
	Signer    signer.Signer
	Relays    RelaySet
	Publisher Publisher
	Index     Index
	Store     Store
	Media     Media
	// Kind is the kind articles are published as, LongFormContent unless
	// set.
	Kind kind.T
	// OnState is called with the document path as a publish moves through
	// its states.
	OnState func(rel string, s State)
	// Now is the clock, time.Now unless set.
	Now func() time.Time
}

// Report describes a completed publish.
type Report struct {
	Event *nostr.Event
	// Updated is true if a previous version of the article existed.
	Updated  bool
	Address  *address.Address
	Outcomes []pool.Outcome
}

// Accepted returns the relays that stored the event.
func (r *Report) Accepted() (urls []string) {
	for _, o := range r.Outcomes {
		if o.Status == pool.Accepted {
			urls = append(urls, o.Relay)
		}
	}
	return
}

// Naddr encodes the address of the article with up to three of the relays
// that accepted it as hints.
func (r *Report) Naddr() (s string, err error) {
	a := *r.Address
	if a.Relays = r.Accepted(); len(a.Relays) > 3 {
		a.Relays = a.Relays[:3]
	}
	return a.Encode()
}

func (o *Orchestrator) articleKind() kind.T {
	if o.Kind == 0 {
		return kind.LongFormContent
	}
	return o.Kind
}

func (o *Orchestrator) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

func (o *Orchestrator) state(rel string, s State) {
	log.D.F("%s: %s", rel, s)
	if o.OnState != nil {
		o.OnState(rel, s)
	}
}

// Exists reports whether the index holds a version of the article fm names.
// Front matter without an identifier or author has never been published.
func (o *Orchestrator) Exists(c context.T, fm frontmatter.Frontmatter) (
	exists bool, err error) {

	if fm.Identifier == "" || fm.PublicKey == "" {
		return false, nil
	}
	var ev *nostr.Event
	if ev, err = o.Index.Replaceable(c, o.articleKind(), fm.PublicKey,
		fm.Identifier); chk.E(err) {
		return
	}
	return ev != nil, nil
}

// isURL reports whether s is an absolute URL with a host.
func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// prepare refuses empty documents and fills in what a
// document publishing for the first time is missing: the author, an
// identifier made from the file name, a title and the hashtags written in
// the body. An image that is not a URL is left out of the article.
func (o *Orchestrator) prepare(d *vault.Document, pubkey string,
	now time.Time) (fm frontmatter.Frontmatter, err error) {

	fm = d.Frontmatter
	if strings.TrimSpace(d.Body) == "" {
		return fm, fmt.Errorf("%s: %w", d.Path, errs.ErrEmptyDocument)
	}
	if fm.Image != "" && !isURL(fm.Image) {
		log.W.F("%s: image %q is not a URL, leaving it out", d.Path, fm.Image)
		fm.Image = ""
	}
	if fm.PublicKey != "" && fm.PublicKey != pubkey {
		return fm, fmt.Errorf("%s was published by %s, not by %s", d.Path,
			fm.PublicKey, pubkey)
	}
	fm.PublicKey = pubkey
	if fm.Identifier == "" {
		fm.Identifier = frontmatter.Identifier(d.Basename(), now)
	}
	if fm.Title == "" {
		fm.Title = d.Basename()
	}
	if len(fm.Tags) == 0 {
		fm.Tags = frontmatter.ContentHashtags(d.Body)
	}
	return
}

// Publish sends the document at rel. The signer and the publish relays are
// checked before anything is uploaded or sent. Publishing succeeds when at
// least one relay accepts the event; the report lists every relay's outcome
// either way. Errors from a publish step are errs.StepError values.
func (o *Orchestrator) Publish(c context.T, rel string) (rep *Report,
	err error) {

	defer func() {
		if err != nil {
			log.E.F("publishing %s failed: %s", rel, err)
			o.state(rel, Failed)
		}
	}()
	if o.Signer == nil {
		return nil, errs.At(errs.StepPrepare, errs.ErrNoActiveIdentity)
	}
	var pubkey string
	if pubkey, err = o.Signer.PublicKey(c); chk.E(err) {
		return nil, errs.At(errs.StepPrepare, err)
	}
	var urls []string
	if urls, err = o.Relays.PublishSet(pubkey); err != nil {
		return nil, errs.At(errs.StepPrepare, err)
	}
	o.state(rel, Draft)
	if !strings.EqualFold(path.Ext(rel), ".md") {
		return nil, errs.At(errs.StepPrepare,
			fmt.Errorf("%s: %w", rel, errs.ErrNotMarkdown))
	}
	var d *vault.Document
	if d, err = o.Store.LoadDocument(rel); chk.E(err) {
		return nil, errs.At(errs.StepPrepare, err)
	}
	now := o.now()
	var fm frontmatter.Frontmatter
	if fm, err = o.prepare(d, pubkey, now); err != nil {
		return nil, errs.At(errs.StepPrepare, err)
	}
	k := o.articleKind()
	key := address.Key(k, fm.PublicKey, fm.Identifier)
	// one publish per article at a time, and the existing version is read
	// under the lock so the update is built on the newest one
	defer pool.NamedLock(key)()
	var existing *nostr.Event
	if existing, err = o.Index.Replaceable(c, k, fm.PublicKey,
		fm.Identifier); chk.E(err) {
		return nil, errs.At(errs.StepPrepare, err)
	}
	if fm.PublishedAt == 0 {
		if existing != nil {
			fm.PublishedAt = frontmatter.FromEvent(existing).PublishedAt
		} else {
			fm.PublishedAt = nostr.Timestamp(now.Unix())
		}
	}
	body := d.Body
	if o.Media != nil && o.Media.HasMedia(body, rel) {
		o.state(rel, Uploading)
		if body, err = o.Media.Upload(c, body, rel); err != nil {
			return nil, errs.At(errs.StepUpload, err)
		}
	}
	createdAt := nostr.Timestamp(now.Unix())
	if existing != nil && existing.CreatedAt >= createdAt {
		// a replacement must be newer than what it replaces
		createdAt = existing.CreatedAt + 1
	}
	var draft nostr.Event
	if draft, err = frontmatter.BuildDraft(fm, body, existing,
		createdAt); chk.E(err) {
		return nil, errs.At(errs.StepBuild, err)
	}
	draft.Kind = k.ToInt()
	o.state(rel, Built)
	var ev *nostr.Event
	if ev, err = o.Signer.Sign(c, draft); err != nil {
		return nil, errs.At(errs.StepSign, err)
	}
	o.state(rel, Signed)
	if err = o.Store.SaveFrontmatter(rel, fm); chk.E(err) {
		// the event is signed and still worth sending
		log.W.F("could not update front matter of %s: %s", rel, err)
		err = nil
	}
	rep = &Report{
		Event:   ev,
		Updated: existing != nil,
		Address: address.FromEvent(ev),
	}
	o.state(rel, Publishing)
	for outcome := range o.Publisher.Publish(c, urls, ev) {
		rep.Outcomes = append(rep.Outcomes, outcome)
	}
	accepted := rep.Accepted()
	if len(accepted) == 0 {
		var reasons []string
		for _, out := range rep.Outcomes {
			reasons = append(reasons, fmt.Sprintf("%s %s: %v", out.Relay,
				out.Status, out.Err))
		}
		err = errs.At(errs.StepPublish, fmt.Errorf("no relay accepted %s (%s)",
			ev.ID, strings.Join(reasons, "; ")))
		return
	}
	if _, err = o.Index.Add(c, ev); chk.E(err) {
		// the article is out, only the local copy is missing
		log.W.F("could not index %s: %s", ev.ID, err)
		err = nil
	}
	log.I.F("published %s to %d of %d relays", key, len(accepted),
		len(rep.Outcomes))
	o.state(rel, Done)
	return
}
