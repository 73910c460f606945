package pool

import (
	"sync"
	"testing"
	"time"

	"github.com/Hubmakerlabs/writr/pkg/context"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
)

// nothing listens on port 1, so connecting fails immediately
const deadRelay = "ws://127.0.0.1:1"

func TestNamedLockSerializes(t *testing.T) {
	var mx sync.Mutex
	running, peak := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer NamedLock("30023:pubkey:identifier")()
			mx.Lock()
			running++
			if running > peak {
				peak = running
			}
			mx.Unlock()
			time.Sleep(time.Millisecond)
			mx.Lock()
			running--
			mx.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, peak)
}

func TestSubscribeUnreachable(t *testing.T) {
	p := NewSimple(context.Bg())
	defer p.Close()
	p.ConnectTimeout = 2 * time.Second
	var got []Incoming
	for in := range p.Subscribe(context.Bg(), []string{deadRelay},
		nostr.Filter{Kinds: []int{30023}}) {
		got = append(got, in)
	}
	if assert.Len(t, got, 1) {
		assert.True(t, got[0].EOSE)
		assert.Error(t, got[0].Err)
		assert.Equal(t, deadRelay, got[0].Relay)
	}
}

func TestPublishUnreachable(t *testing.T) {
	p := NewSimple(context.Bg())
	defer p.Close()
	p.ConnectTimeout = 2 * time.Second
	ev := &nostr.Event{Kind: 1, Content: "x"}
	var got []Outcome
	for o := range p.Publish(context.Bg(), []string{deadRelay}, ev) {
		got = append(got, o)
	}
	if assert.Len(t, got, 1) {
		assert.Equal(t, Unreachable, got[0].Status)
		assert.Equal(t, "unreachable", got[0].Status.String())
	}
	assert.Equal(t, "accepted", Accepted.String())
	assert.Equal(t, "rejected", Rejected.String())
}
