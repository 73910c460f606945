package relays

import (
	"errors"
	"testing"

	"github.com/Hubmakerlabs/writr/pkg/address"
	"github.com/Hubmakerlabs/writr/pkg/errs"
	"github.com/Hubmakerlabs/writr/pkg/kind"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d"
	bob   = "82341f882b6eabcd2ba7f1ef90aad961cf074af15b9ef44a09f9d2a8fbfbe6a2"
)

type mailboxMap map[string]*Mailboxes

func (m mailboxMap) Mailboxes(pubkey string) (*Mailboxes, bool) {
	mb, ok := m[pubkey]
	return mb, ok
}

func TestDedupeKeepsFirstSeenOrder(t *testing.T) {
	got := Dedupe(
		[]string{"wss://b.example.com/", "wss://a.example.com"},
		[]string{"WSS://A.example.com/", "wss://c.example.com", "wss://b.example.com"},
	)
	assert.Equal(t, []string{"wss://b.example.com", "wss://a.example.com",
		"wss://c.example.com"}, got)
}

func TestPublishSet(t *testing.T) {
	p := New(Config{
		Publish: []string{"wss://nos.lol/", "wss://relay.damus.io"},
		Local:   "ws://localhost:4869",
	}, mailboxMap{alice: {
		Outboxes: []string{"wss://relay.damus.io/", "wss://alice.example.com"},
	}})
	urls, err := p.PublishSet(alice)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"ws://localhost:4869",
		"wss://nos.lol",
		"wss://relay.damus.io",
		"wss://alice.example.com",
	}, urls)
	again, err := p.PublishSet(alice)
	require.NoError(t, err)
	assert.Equal(t, urls, again, "resolving must be idempotent")
	// unknown mailboxes just contribute nothing
	urls, err = p.PublishSet(bob)
	require.NoError(t, err)
	assert.Equal(t, []string{"ws://localhost:4869", "wss://nos.lol",
		"wss://relay.damus.io"}, urls)
}

func TestUnsafeRelaysDropped(t *testing.T) {
	p := New(Config{
		Publish: []string{
			"https://relay.example.com",
			"file:///etc/passwd",
			"ws://127.0.0.1:7777",
			"ws://localhost:4869/",
			"wss://ok.example.com",
		},
		Local: "ws://localhost:4869",
	}, nil)
	urls, err := p.PublishSet("")
	require.NoError(t, err)
	assert.Equal(t, []string{"ws://localhost:4869", "wss://ok.example.com"},
		urls)
}

func TestEmptySetIsAnError(t *testing.T) {
	p := New(Config{Publish: []string{"http://nope.example.com"}}, nil)
	_, err := p.PublishSet(alice)
	assert.True(t, errors.Is(err, errs.ErrNoRelaysConfigured))
	_, err = p.FetchByAddress(&address.Address{PublicKey: bob}, alice)
	assert.True(t, errors.Is(err, errs.ErrNoRelaysConfigured))
}

func TestFetchSets(t *testing.T) {
	p := New(Config{
		Publish: []string{"wss://nos.lol"},
		Lookup:  []string{"wss://purplepag.es"},
		Local:   "ws://localhost:4869",
	}, mailboxMap{
		alice: {Outboxes: []string{"wss://alice.example.com"}},
		bob:   {Outboxes: []string{"wss://bob.example.com"}},
	})
	a := &address.Address{Kind: kind.LongFormContent, PublicKey: bob,
		Identifier: "x", Relays: []string{"wss://hint.example.com", "wss://nos.lol/"}}
	urls, err := p.FetchByAddress(a, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"wss://hint.example.com", "wss://nos.lol",
		"ws://localhost:4869", "wss://alice.example.com"}, urls)

	pp := &address.Profile{PublicKey: bob, Relays: []string{"wss://hint.example.com"}}
	urls, err = p.FetchByAuthor(pp, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"wss://hint.example.com", "ws://localhost:4869",
		"wss://nos.lol", "wss://alice.example.com", "wss://bob.example.com"}, urls)

	urls, err = p.Discovery(pp, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"wss://hint.example.com", "wss://purplepag.es",
		"ws://localhost:4869", "wss://nos.lol", "wss://alice.example.com"}, urls)
	assert.True(t, p.KnowsMailboxes(bob))
	assert.False(t, p.KnowsMailboxes("ff"))
}

func TestParseMailboxes(t *testing.T) {
	ev := &nostr.Event{
		Kind: kind.RelayListMetadata.ToInt(),
		Tags: nostr.Tags{
			{"r", "wss://both.example.com/"},
			{"r", "wss://read.example.com", "read"},
			{"r", "wss://write.example.com", "write"},
			{"r", "https://not-a-relay.example.com"},
			{"p", alice},
			{"r"},
		},
	}
	m := ParseMailboxes(ev)
	assert.Equal(t, []string{"wss://both.example.com", "wss://read.example.com"},
		m.Inboxes)
	assert.Equal(t, []string{"wss://both.example.com", "wss://write.example.com"},
		m.Outboxes)
	assert.Empty(t, ParseMailboxes(&nostr.Event{Kind: 1,
		Tags: nostr.Tags{{"r", "wss://x.example.com"}}}).Outboxes)
}
