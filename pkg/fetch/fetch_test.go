package fetch

import (
	"sync"
	"testing"
	"time"

	"github.com/Hubmakerlabs/writr/pkg/address"
	"github.com/Hubmakerlabs/writr/pkg/context"
	"github.com/Hubmakerlabs/writr/pkg/errs"
	"github.com/Hubmakerlabs/writr/pkg/index"
	"github.com/Hubmakerlabs/writr/pkg/kind"
	"github.com/Hubmakerlabs/writr/pkg/normalize"
	"github.com/Hubmakerlabs/writr/pkg/pool"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRelays answers subscriptions from canned events. Relays in silent
// never send EOSE.
type fakeRelays struct {
	events  map[string][]*nostr.Event
	silent  map[string]bool
	mx      sync.Mutex
	filters []nostr.Filter
}

func (f *fakeRelays) Subscribe(c context.T, urls []string,
	filter nostr.Filter) <-chan pool.Incoming {

	f.mx.Lock()
	f.filters = append(f.filters, filter)
	f.mx.Unlock()
	out := make(chan pool.Incoming)
	var wg sync.WaitGroup
	wg.Add(len(urls))
	for _, u := range urls {
		go func(u string) {
			defer wg.Done()
			send := func(in pool.Incoming) bool {
				select {
				case out <- in:
					return true
				case <-c.Done():
					return false
				}
			}
			for _, ev := range f.events[u] {
				if !send(pool.Incoming{Event: ev, Relay: u}) {
					return
				}
			}
			if f.silent[u] {
				<-c.Done()
				return
			}
			send(pool.Incoming{Relay: u, EOSE: true})
		}(normalize.URL(u))
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func article(t *testing.T, sk, d string, at nostr.Timestamp) *nostr.Event {
	t.Helper()
	ev := &nostr.Event{Kind: kind.LongFormContent.ToInt(), CreatedAt: at,
		Tags: nostr.Tags{{"d", d}}, Content: d}
	require.NoError(t, ev.Sign(sk))
	return ev
}

func newEngine(t *testing.T, f *fakeRelays,
	timeout time.Duration) (e *Engine, x *index.T) {

	x, err := index.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(x.Close)
	return New(f, x, timeout), x
}

func TestFetchSilentRelayTimesOut(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	ev := article(t, sk, "a", 100)
	f := &fakeRelays{
		events: map[string][]*nostr.Event{"wss://a.example": {ev}},
		silent: map[string]bool{"wss://quiet.example": true},
	}
	e, _ := newEngine(t, f, 300*time.Millisecond)
	start := time.Now()
	res, err := e.Fetch(context.Bg(),
		[]string{"wss://a.example", "wss://quiet.example"},
		nostr.Filter{Kinds: []int{kind.LongFormContent.ToInt()}})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Less(t, time.Since(start), 3*time.Second)
	require.Len(t, res.Events, 1)
	assert.Equal(t, ev.ID, res.Events[0].ID)
}

func TestFetchAllRelaysDone(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)
	old := article(t, sk, "a", 100)
	newer := article(t, sk, "a", 200)
	bad := article(t, sk, "b", 100)
	bad.Content = "tampered"
	f := &fakeRelays{events: map[string][]*nostr.Event{
		"wss://a.example": {old, newer},
		"wss://b.example": {newer, bad},
	}}
	e, x := newEngine(t, f, time.Minute)
	start := time.Now()
	res, err := e.Fetch(context.Bg(),
		[]string{"wss://a.example", "wss://b.example/"},
		nostr.Filter{Kinds: []int{kind.LongFormContent.ToInt()}})
	require.NoError(t, err)
	assert.False(t, res.TimedOut)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Len(t, res.Events, 2)
	assert.Empty(t, res.Failed)

	evs, err := x.ByAuthor(context.Bg(), kind.LongFormContent, pk)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, newer.ID, evs[0].ID)
}

func TestFetchNoRelays(t *testing.T) {
	e, _ := newEngine(t, &fakeRelays{}, time.Second)
	_, err := e.Fetch(context.Bg(), nil, nostr.Filter{})
	require.ErrorIs(t, err, errs.ErrNoRelaysConfigured)
}

func TestFetchCancelled(t *testing.T) {
	f := &fakeRelays{silent: map[string]bool{"wss://quiet.example": true}}
	e, _ := newEngine(t, f, time.Minute)
	c, cancel := context.Cancel(context.Bg())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := e.Fetch(c, []string{"wss://quiet.example"}, nostr.Filter{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestAddressUsesIndex(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)
	v1 := article(t, sk, "post", 100)
	v2 := article(t, sk, "post", 200)
	f := &fakeRelays{events: map[string][]*nostr.Event{
		"wss://a.example": {v2},
	}}
	e, x := newEngine(t, f, time.Minute)
	_, err := x.Add(context.Bg(), v1)
	require.NoError(t, err)

	a := &address.Address{Kind: kind.LongFormContent, PublicKey: pk,
		Identifier: "post"}
	ev, err := e.Address(context.Bg(), a, []string{"wss://a.example"})
	require.NoError(t, err)
	assert.Equal(t, v2.ID, ev.ID)
	require.Len(t, f.filters, 1)
	assert.Equal(t, []string{"post"}, f.filters[0].Tags["d"])

	a.Identifier = "missing"
	_, err = e.Address(context.Bg(), a, []string{"wss://a.example"})
	require.ErrorIs(t, err, errs.ErrNotFound)
	assert.True(t, IsNotFound(err))
}

func TestAuthorReadsBackCachedEvents(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)
	cached := article(t, sk, "cached", 100)
	fetched := article(t, sk, "fetched", 200)
	f := &fakeRelays{events: map[string][]*nostr.Event{
		"wss://a.example": {fetched},
	}}
	e, x := newEngine(t, f, time.Minute)
	_, err := x.Add(context.Bg(), cached)
	require.NoError(t, err)

	evs, err := e.Author(context.Bg(), kind.LongFormContent, pk,
		[]string{"wss://a.example"})
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, fetched.ID, evs[0].ID)
	assert.Equal(t, cached.ID, evs[1].ID)
}

func TestMailboxes(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)
	rl := &nostr.Event{Kind: kind.RelayListMetadata.ToInt(), CreatedAt: 10,
		Tags: nostr.Tags{
			{"r", "wss://both.example"},
			{"r", "wss://in.example", "read"},
			{"r", "wss://out.example", "write"},
		}}
	require.NoError(t, rl.Sign(sk))
	f := &fakeRelays{events: map[string][]*nostr.Event{
		"wss://lookup.example": {rl},
	}}
	e, _ := newEngine(t, f, time.Minute)
	m, err := e.Mailboxes(context.Bg(), pk, []string{"wss://lookup.example"})
	require.NoError(t, err)
	assert.Equal(t, []string{"wss://both.example", "wss://out.example"},
		m.Outboxes)
	assert.Equal(t, []string{"wss://both.example", "wss://in.example"},
		m.Inboxes)

	stranger, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	_, err = e.Mailboxes(context.Bg(), stranger,
		[]string{"wss://lookup.example"})
	require.ErrorIs(t, err, errs.ErrNotFound)
}
