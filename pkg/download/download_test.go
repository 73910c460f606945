package download

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Hubmakerlabs/writr/pkg/address"
	"github.com/Hubmakerlabs/writr/pkg/context"
	"github.com/Hubmakerlabs/writr/pkg/errs"
	"github.com/Hubmakerlabs/writr/pkg/frontmatter"
	"github.com/Hubmakerlabs/writr/pkg/kind"
	"github.com/Hubmakerlabs/writr/pkg/relays"
	"github.com/Hubmakerlabs/writr/pkg/vault"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	events    []*nostr.Event
	mailboxes map[string]*relays.Mailboxes
	// calls records the relays each method was asked to use
	calls map[string][]string
}

func (f *fakeFetcher) record(name string, urls []string) {
	if f.calls == nil {
		f.calls = make(map[string][]string)
	}
	f.calls[name] = urls
}

func (f *fakeFetcher) Address(_ context.T, a *address.Address,
	urls []string) (*nostr.Event, error) {

	f.record("address", urls)
	for _, ev := range f.events {
		if ev.PubKey == a.PublicKey && ev.Tags.GetD() == a.Identifier {
			return ev, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeFetcher) Author(_ context.T, k kind.T, pubkey string,
	urls []string) (evs []*nostr.Event, err error) {

	f.record("author", urls)
	for _, ev := range f.events {
		if ev.PubKey == pubkey && ev.Kind == k.ToInt() {
			evs = append(evs, ev)
		}
	}
	return
}

func (f *fakeFetcher) Mailboxes(_ context.T, pubkey string,
	urls []string) (*relays.Mailboxes, error) {

	f.record("mailboxes", urls)
	if m, ok := f.mailboxes[pubkey]; ok {
		return m, nil
	}
	return nil, errs.ErrNotFound
}

// mailboxSource knows the relay lists the fake fetcher has "fetched".
type mailboxSource struct{ f *fakeFetcher }

func (s mailboxSource) Mailboxes(pubkey string) (*relays.Mailboxes, bool) {
	if _, done := s.f.calls["mailboxes"]; !done {
		return nil, false
	}
	m, ok := s.f.mailboxes[pubkey]
	return m, ok
}

// flakyStore fails to save one identifier.
type flakyStore struct {
	*vault.Vault
	fail string
}

func (s flakyStore) SaveDocument(rel string, fm frontmatter.Frontmatter,
	body string) error {

	if fm.Identifier == s.fail {
		return errors.New("disk full")
	}
	return s.Vault.SaveDocument(rel, fm, body)
}

type upperMedia struct{}

func (upperMedia) Download(_ context.T, body string) string {
	return strings.ToUpper(body)
}

func article(t *testing.T, sk, d string) *nostr.Event {
	t.Helper()
	ev := &nostr.Event{Kind: kind.LongFormContent.ToInt(), CreatedAt: 1000,
		Tags: nostr.Tags{{"d", d}, {"title", "Title " + d}},
		Content: "body of " + d}
	require.NoError(t, ev.Sign(sk))
	return ev
}

func newDownloader(t *testing.T, f *fakeFetcher,
	fail string) (d *Downloader, v *vault.Vault) {

	v = vault.New(t.TempDir())
	d = &Downloader{
		Fetcher: f,
		Relays: relays.New(relays.Config{
			Publish: []string{"wss://publish.example"},
			Lookup:  []string{"wss://lookup.example"},
		}, mailboxSource{f}),
		Store:  flakyStore{Vault: v, fail: fail},
		Folder: "nostr",
	}
	return
}

func TestAuthorBulkContinuesPastFailure(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)
	f := &fakeFetcher{mailboxes: map[string]*relays.Mailboxes{
		pk: {Outboxes: []string{"wss://outbox.example"}},
	}}
	for i := 0; i < 5; i++ {
		f.events = append(f.events, article(t, sk, fmt.Sprintf("post-%d", i)))
	}
	d, v := newDownloader(t, f, "post-3")
	npub, err := (&address.Profile{PublicKey: pk,
		Relays: []string{"wss://hint.example"}}).Encode()
	require.NoError(t, err)

	rep, err := d.Author(context.Bg(), npub)
	require.NoError(t, err)
	assert.Len(t, rep.Saved, 4)
	require.Len(t, rep.Failed, 1)
	assert.Equal(t, "post-3", rep.Failed[0].Identifier)
	assert.Equal(t, f.events[3].ID, rep.Failed[0].ID)
	for _, rel := range rep.Saved {
		assert.True(t, v.Exists(rel), rel)
	}
	assert.False(t, v.Exists("nostr/"+pk[:8]+"/post-3.md"))

	assert.Equal(t, []string{"wss://hint.example", "wss://lookup.example",
		"wss://publish.example"}, f.calls["mailboxes"])
	assert.Equal(t, []string{"wss://hint.example", "wss://publish.example",
		"wss://outbox.example"}, f.calls["author"])
}

func TestAddressSavesDeterministicPath(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)
	ev := article(t, sk, "Hello World")
	f := &fakeFetcher{events: []*nostr.Event{ev}}
	d, v := newDownloader(t, f, "")
	d.Media = upperMedia{}
	naddr, err := address.FromEvent(ev, "wss://hint.example").Encode()
	require.NoError(t, err)

	rel, err := d.Address(context.Bg(), "https://njump.me/"+naddr)
	require.NoError(t, err)
	assert.Equal(t, "nostr/"+pk[:8]+"/hello-world.md", rel)
	doc, err := v.LoadDocument(rel)
	require.NoError(t, err)
	assert.Equal(t, "BODY OF HELLO WORLD", doc.Body)
	assert.Equal(t, "Title Hello World", doc.Frontmatter.Title)
	assert.Equal(t, "Hello World", doc.Frontmatter.Identifier)
	assert.Equal(t, pk, doc.Frontmatter.PublicKey)
	assert.Equal(t, []string{"wss://hint.example", "wss://publish.example"},
		f.calls["address"])

	// downloading again converges on the same file
	again, err := d.Address(context.Bg(), naddr)
	require.NoError(t, err)
	assert.Equal(t, rel, again)
}

func TestAddressErrors(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)
	d, _ := newDownloader(t, &fakeFetcher{}, "")
	_, err := d.Address(context.Bg(), "not an address")
	require.ErrorIs(t, err, errs.ErrInvalidAddress)
	_, err = d.Address(context.Bg(), pk)
	require.ErrorIs(t, err, errs.ErrInvalidAddress)

	naddr, err := (&address.Address{Kind: kind.LongFormContent,
		PublicKey: pk, Identifier: "gone"}).Encode()
	require.NoError(t, err)
	_, err = d.Address(context.Bg(), naddr)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestPath(t *testing.T) {
	d := &Downloader{Folder: "dl"}
	assert.Equal(t, "dl/abcdef01/untitled.md", d.Path(frontmatter.Frontmatter{
		PublicKey: "abcdef0123456789"}))
	assert.Equal(t, "dl/abc/a-b.md", d.Path(frontmatter.Frontmatter{
		PublicKey: "abc", Identifier: "A  b"}))
}
