// Package index is the local event index. It keeps every regular event it is
// given and only the newest version of each replaceable and addressable
// event, and is safe for concurrent use.
package index

import (
	"errors"
	"os"
	"sort"
	"sync"

	"github.com/Hubmakerlabs/writr/pkg/context"
	"github.com/Hubmakerlabs/writr/pkg/kind"
	"github.com/Hubmakerlabs/writr/pkg/relays"
	"github.com/Hubmakerlabs/writr/pkg/slog"
	bdb "github.com/dgraph-io/badger/v4"
	"github.com/fiatjaf/eventstore"
	"github.com/fiatjaf/eventstore/badger"
	"github.com/nbd-wtf/go-nostr"
)

var log, chk = slog.New(os.Stderr)

// PageSize is the number of events asked of the backend per query. Reads
// that need every match page through with Until.
const PageSize = 500

// T is the local index.
type T struct {
	sync.RWMutex
	Store eventstore.Store
}

// New wraps an initialised event store.
func New(store eventstore.Store) *T { return &T{Store: store} }

// Open opens (creating if needed) a badger backed index at path.
func Open(path string) (x *T, err error) {
	db := &badger.BadgerBackend{Path: path}
	if err = db.Init(); chk.E(err) {
		return
	}
	log.D.F("opened index at %s", path)
	return New(db), nil
}

func (x *T) Close() { x.Store.Close() }

// Compact reclaims space left by replaced versions. It only applies to the
// badger backend and is a no-op for other stores.
func (x *T) Compact() (err error) {
	db, ok := x.Store.(*badger.BadgerBackend)
	if !ok {
		return
	}
	x.Lock()
	defer x.Unlock()
	for {
		// one file at a time until there is nothing worth rewriting
		if err = db.DB.RunValueLogGC(0.5); err != nil {
			break
		}
	}
	if errors.Is(err, bdb.ErrNoRewrite) {
		err = nil
	}
	return
}

// query returns the events of one backend page that match f, and the number
// of events the backend sent before matching.
func (x *T) query(c context.T, f nostr.Filter) (evs []*nostr.Event, n int,
	err error) {

	if f.Limit == 0 {
		f.Limit = PageSize
	}
	var ch chan *nostr.Event
	if ch, err = x.Store.QueryEvents(c, f); chk.E(err) {
		return
	}
	for ev := range ch {
		n++
		// the backend may match more loosely than the filter
		if f.Matches(ev) {
			evs = append(evs, ev)
		}
	}
	return
}

// all returns every stored event matching f, newest first. Each next page
// starts again at the oldest timestamp of the last one so events sharing it
// are not skipped; a page with nothing new moves one second further back.
func (x *T) all(c context.T, f nostr.Filter) (evs []*nostr.Event, err error) {
	f.Limit = PageSize
	seen := make(map[string]struct{})
	for {
		var page []*nostr.Event
		var n int
		if page, n, err = x.query(c, f); err != nil {
			return
		}
		fresh := 0
		for _, ev := range page {
			if _, ok := seen[ev.ID]; ok {
				continue
			}
			seen[ev.ID] = struct{}{}
			evs = append(evs, ev)
			fresh++
		}
		if n < PageSize || len(page) == 0 {
			return
		}
		until := page[0].CreatedAt
		for _, ev := range page[1:] {
			if ev.CreatedAt < until {
				until = ev.CreatedAt
			}
		}
		if fresh == 0 {
			if until == 0 {
				return
			}
			until--
		}
		f.Until = &until
	}
}

// filterFor selects the stored versions of (k, pubkey, identifier). The
// identifier is only part of the filter for addressable kinds.
func filterFor(k kind.T, pubkey, identifier string) (f nostr.Filter) {
	f = nostr.Filter{Kinds: []int{k.ToInt()}, Authors: []string{pubkey}}
	if k.IsParameterizedReplaceable() && identifier != "" {
		// events with no d tag have identifier "" and must not be filtered out
		f.Tags = nostr.TagMap{"d": {identifier}}
	}
	return
}

// sameAddress keeps the events of evs that are versions of identifier.
func sameAddress(k kind.T, evs []*nostr.Event,
	identifier string) (out []*nostr.Event) {

	if !k.IsParameterizedReplaceable() {
		return evs
	}
	for _, ev := range evs {
		if ev.Tags.GetD() == identifier {
			out = append(out, ev)
		}
	}
	return
}

// newer reports whether a should replace b: later created_at wins, and on a
// tie the lower id.
func newer(a, b *nostr.Event) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	return a.ID < b.ID
}

// versions returns the stored events that ev would replace or be replaced by.
func (x *T) versions(c context.T, ev *nostr.Event) (evs []*nostr.Event,
	err error) {

	k := kind.T(ev.Kind)
	if !k.IsReplaceable() && !k.IsParameterizedReplaceable() {
		return
	}
	d := ev.Tags.GetD()
	if evs, err = x.all(c, filterFor(k, ev.PubKey, d)); err != nil {
		return
	}
	return sameAddress(k, evs, d), nil
}

// Add stores ev. It returns false without error when ev is already stored or
// is older than the stored version of the same replaceable event.
func (x *T) Add(c context.T, ev *nostr.Event) (stored bool, err error) {
	x.Lock()
	defer x.Unlock()
	var olds []*nostr.Event
	if olds, err = x.versions(c, ev); err != nil {
		return
	}
	for _, old := range olds {
		if old.ID == ev.ID || !newer(ev, old) {
			log.T.F("not storing %s: have %s", ev.ID, old.ID)
			return false, nil
		}
	}
	if err = x.Store.SaveEvent(c, ev); err != nil {
		if errors.Is(err, eventstore.ErrDupEvent) {
			return false, nil
		}
		chk.E(err)
		return
	}
	for _, old := range olds {
		if err = x.Store.DeleteEvent(c, old); chk.E(err) {
			return true, err
		}
	}
	log.T.F("stored %s kind %d replacing %d", ev.ID, ev.Kind, len(olds))
	return true, nil
}

// Replaceable returns the stored version of the addressable event
// (k, pubkey, identifier), or nil. It does not modify the index.
func (x *T) Replaceable(c context.T, k kind.T, pubkey,
	identifier string) (ev *nostr.Event, err error) {

	x.RLock()
	defer x.RUnlock()
	var evs []*nostr.Event
	if evs, err = x.all(c, filterFor(k, pubkey, identifier)); err != nil {
		return
	}
	for _, cand := range sameAddress(k, evs, identifier) {
		if ev == nil || newer(cand, ev) {
			ev = cand
		}
	}
	return
}

// ByAuthor returns every stored event of kind k by pubkey, newest first.
func (x *T) ByAuthor(c context.T, k kind.T, pubkey string) (evs []*nostr.Event,
	err error) {

	x.RLock()
	defer x.RUnlock()
	if evs, err = x.all(c, nostr.Filter{Kinds: []int{k.ToInt()},
		Authors: []string{pubkey}}); err != nil {
		return
	}
	sort.SliceStable(evs, func(i, j int) bool { return newer(evs[i], evs[j]) })
	return
}

// Mailboxes derives the mailboxes of pubkey from the stored relay list.
func (x *T) Mailboxes(pubkey string) (m *relays.Mailboxes, ok bool) {
	ev, err := x.Replaceable(context.Bg(), kind.RelayListMetadata, pubkey, "")
	if chk.E(err) || ev == nil {
		return nil, false
	}
	return relays.ParseMailboxes(ev), true
}
