// Package fetch collects events from relays into the local index.
package fetch

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Hubmakerlabs/writr/pkg/address"
	"github.com/Hubmakerlabs/writr/pkg/context"
	"github.com/Hubmakerlabs/writr/pkg/errs"
	"github.com/Hubmakerlabs/writr/pkg/kind"
	"github.com/Hubmakerlabs/writr/pkg/normalize"
	"github.com/Hubmakerlabs/writr/pkg/pool"
	"github.com/Hubmakerlabs/writr/pkg/relays"
	"github.com/Hubmakerlabs/writr/pkg/slog"
	"github.com/nbd-wtf/go-nostr"
)

var log, chk = slog.New(os.Stderr)

// DefaultTimeout bounds a fetch when the engine has none set.
const DefaultTimeout = 10 * time.Second

// Subscriber opens subscriptions on a set of relays.
type Subscriber interface {
	Subscribe(c context.T, urls []string, f nostr.Filter) <-chan pool.Incoming
}

// Index is the local event store fetched events go into.
type Index interface {
	Add(c context.T, ev *nostr.Event) (stored bool, err error)
	Replaceable(c context.T, k kind.T, pubkey, identifier string) (
		ev *nostr.Event, err error)
	ByAuthor(c context.T, k kind.T, pubkey string) (evs []*nostr.Event,
		err error)
}

type Engine struct {
	Sub     Subscriber
	Index   Index
	Timeout time.Duration
}

func New(sub Subscriber, idx Index, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{Sub: sub, Index: idx, Timeout: timeout}
}

// Result is what one fetch collected. TimedOut reports that some relays had
// not finished when the timeout elapsed; it is not an error.
type Result struct {
	Events   []*nostr.Event
	TimedOut bool
	// Failed holds the relays that could not be queried.
	Failed map[string]error
}

// Fetch subscribes to f on urls and collects events until every relay has
// sent its stored events or the timeout elapses, whichever is first. Every
// valid event received, duplicates included, is added to the index.
func (e *Engine) Fetch(c context.T, urls []string, f nostr.Filter) (
	res *Result, err error) {

	if len(urls) == 0 {
		return nil, errs.ErrNoRelaysConfigured
	}
	pending := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		pending[normalize.URL(u)] = struct{}{}
	}
	tc, cancel := context.Timeout(c, e.Timeout)
	defer cancel()
	res = &Result{Failed: make(map[string]error)}
	seen := make(map[string]struct{})
	start := time.Now()
	incoming := e.Sub.Subscribe(tc, urls, f)
out:
	for len(pending) > 0 {
		select {
		case in, ok := <-incoming:
			if !ok {
				break out
			}
			if in.EOSE {
				delete(pending, in.Relay)
				if in.Err != nil {
					res.Failed[in.Relay] = in.Err
				}
				continue
			}
			ev := in.Event
			if ev == nil || !f.Matches(ev) {
				continue
			}
			if ok, err := ev.CheckSignature(); !ok {
				log.D.F("dropping event %s from %s with bad signature: %v",
					ev.ID, in.Relay, err)
				continue
			}
			if _, dup := seen[ev.ID]; !dup {
				seen[ev.ID] = struct{}{}
				res.Events = append(res.Events, ev)
			}
			// duplicates from other relays still go to the index, which
			// ignores them
			if _, err = e.Index.Add(c, ev); chk.E(err) {
				return
			}
		case <-tc.Done():
			break out
		}
	}
	if err = c.Err(); err != nil {
		return nil, err
	}
	// a subscriber may close the stream before the timeout is noticed here
	res.TimedOut = len(pending) > 0 && context.Expired(tc)
	log.D.F("fetched %d events from %d relays in %v (timed out: %v)",
		len(res.Events), len(urls), time.Since(start), res.TimedOut)
	return
}

// Address fetches the addressable event a points at and returns the newest
// version in the index, which may be one stored by an earlier fetch.
func (e *Engine) Address(c context.T, a *address.Address, urls []string) (
	ev *nostr.Event, err error) {

	if _, err = e.Fetch(c, urls, a.Filter()); err != nil {
		return
	}
	if ev, err = e.Index.Replaceable(c, a.Kind, a.PublicKey,
		a.Identifier); err != nil {
		return
	}
	if ev == nil {
		err = fmt.Errorf("%w: %s", errs.ErrNotFound, a.Key())
	}
	return
}

// Author fetches the events of kind k by pubkey and returns every one in
// the index, newest first.
func (e *Engine) Author(c context.T, k kind.T, pubkey string,
	urls []string) (evs []*nostr.Event, err error) {

	if _, err = e.Fetch(c, urls, nostr.Filter{
		Kinds:   []int{k.ToInt()},
		Authors: []string{pubkey},
	}); err != nil {
		return
	}
	return e.Index.ByAuthor(c, k, pubkey)
}

// Mailboxes fetches the relay list of pubkey.
func (e *Engine) Mailboxes(c context.T, pubkey string, urls []string) (
	m *relays.Mailboxes, err error) {

	var ev *nostr.Event
	if ev, err = e.Replaceable(c, kind.RelayListMetadata, pubkey,
		urls); err != nil {
		return
	}
	return relays.ParseMailboxes(ev), nil
}

// Replaceable fetches the replaceable event of kind k by pubkey, such as a
// profile or a relay list.
func (e *Engine) Replaceable(c context.T, k kind.T, pubkey string,
	urls []string) (ev *nostr.Event, err error) {

	if _, err = e.Fetch(c, urls, nostr.Filter{
		Kinds:   []int{k.ToInt()},
		Authors: []string{pubkey},
		Limit:   1,
	}); err != nil {
		return
	}
	if ev, err = e.Index.Replaceable(c, k, pubkey, ""); err != nil {
		return
	}
	if ev == nil {
		err = fmt.Errorf("%w: %s of %s", errs.ErrNotFound, k, pubkey)
	}
	return
}

// IsNotFound reports whether err means nothing was found.
func IsNotFound(err error) bool { return errors.Is(err, errs.ErrNotFound) }
