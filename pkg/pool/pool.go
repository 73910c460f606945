// Package pool keeps websocket connections to relays and fans subscriptions
// and publications out to many of them at once.
package pool

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Hubmakerlabs/writr/pkg/context"
	"github.com/Hubmakerlabs/writr/pkg/normalize"
	"github.com/Hubmakerlabs/writr/pkg/slog"
	"github.com/fiatjaf/generic-ristretto/z"
	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v2"
)

var log, chk = slog.New(os.Stderr)

const MAX_LOCKS = 50

var namedMutexPool = make([]sync.Mutex, MAX_LOCKS)

// NamedLock locks the mutex name hashes to and returns the unlock function.
// Different names may share a mutex.
func NamedLock(name string) (unlock func()) {
	idx := z.MemHashString(name) % MAX_LOCKS
	namedMutexPool[idx].Lock()
	return namedMutexPool[idx].Unlock
}

// Incoming is one item of a subscription stream: an event, or the end of
// stored events of a relay. A relay that could not be reached or closed the
// subscription also ends with EOSE set and Err explaining why.
type Incoming struct {
	Event *nostr.Event
	Relay string
	EOSE  bool
	Err   error
}

// Status is the result of publishing to one relay.
type Status int

const (
	Accepted Status = iota
	Rejected
	Unreachable
)

func (s Status) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return "unreachable"
	}
}

// Outcome is the result of publishing an event to one relay.
type Outcome struct {
	Relay  string
	Status Status
	Err    error
}

// Simple is a pool of relay connections.
type Simple struct {
	Relays         *xsync.MapOf[string, *nostr.Relay]
	Context        context.T
	ConnectTimeout time.Duration
	cancel         context.F
}

func NewSimple(c context.T) (p *Simple) {
	c, cancel := context.Cancel(c)
	p = &Simple{
		Relays:         xsync.NewMapOf[*nostr.Relay](),
		Context:        c,
		ConnectTimeout: 15 * time.Second,
		cancel:         cancel,
	}
	return
}

// EnsureRelay returns a connected relay for url, connecting if needed.
func (p *Simple) EnsureRelay(url string) (rl *nostr.Relay, err error) {
	nm := normalize.URL(url)
	defer NamedLock(nm)()
	var ok bool
	rl, ok = p.Relays.Load(nm)
	if ok && rl.IsConnected() {
		// already connected, unlock and return
		return rl, nil
	}
	// we use this ctx here so when the pool dies everything dies
	c, cancel := context.Timeout(p.Context, p.ConnectTimeout)
	defer cancel()
	if rl, err = nostr.RelayConnect(c, nm); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", nm, err)
	}
	p.Relays.Store(nm, rl)
	return
}

// Subscribe opens a subscription with f on every url. Each relay ends its
// part of the stream with an Incoming that has EOSE set; the channel is
// closed once every relay has ended or c is done, and all subscriptions are
// closed with it.
func (p *Simple) Subscribe(c context.T, urls []string,
	f nostr.Filter) <-chan Incoming {

	c, cancel := context.Cancel(c)
	out := make(chan Incoming)
	wg := sync.WaitGroup{}
	wg.Add(len(urls))
	go func() {
		// this will happen when all subscriptions get an eose (or when they
		// die)
		wg.Wait()
		cancel()
		close(out)
	}()
	for _, url := range urls {
		go func(nm string) {
			defer wg.Done()
			send := func(in Incoming) bool {
				select {
				case out <- in:
					return true
				case <-c.Done():
					return false
				}
			}
			rl, err := p.EnsureRelay(nm)
			if err != nil {
				log.D.Ln(err)
				send(Incoming{Relay: nm, EOSE: true, Err: err})
				return
			}
			sub, err := rl.Subscribe(c, nostr.Filters{f})
			if err != nil {
				log.D.F("error subscribing to %s with %v: %s", nm, f, err)
				send(Incoming{Relay: nm, EOSE: true, Err: err})
				return
			}
			defer sub.Unsub()
			for {
				select {
				case ev, ok := <-sub.Events:
					if !ok {
						send(Incoming{Relay: nm, EOSE: true})
						return
					}
					if !send(Incoming{Event: ev, Relay: nm}) {
						return
					}
				case <-sub.EndOfStoredEvents:
					send(Incoming{Relay: nm, EOSE: true})
					return
				case reason := <-sub.ClosedReason:
					send(Incoming{Relay: nm, EOSE: true,
						Err: fmt.Errorf("subscription closed: %s", reason)})
					return
				case <-c.Done():
					return
				}
			}
		}(normalize.URL(url))
	}
	return out
}

// Publish sends ev to every url concurrently. One Outcome per url is sent on
// the returned channel, which is closed after the last one.
func (p *Simple) Publish(c context.T, urls []string,
	ev *nostr.Event) <-chan Outcome {

	out := make(chan Outcome, len(urls))
	wg := sync.WaitGroup{}
	wg.Add(len(urls))
	go func() {
		wg.Wait()
		close(out)
	}()
	for _, url := range urls {
		go func(nm string) {
			defer wg.Done()
			rl, err := p.EnsureRelay(nm)
			if err != nil {
				out <- Outcome{Relay: nm, Status: Unreachable, Err: err}
				return
			}
			if err = rl.Publish(c, *ev); err != nil {
				status := Rejected
				if errors.Is(err, context.DeadlineExceeded) ||
					!rl.IsConnected() {
					status = Unreachable
				}
				log.D.F("publishing %s to %s: %s", ev.ID, nm, err)
				out <- Outcome{Relay: nm, Status: status, Err: err}
				return
			}
			out <- Outcome{Relay: nm, Status: Accepted}
		}(normalize.URL(url))
	}
	return out
}

// Close disconnects every relay and stops the pool.
func (p *Simple) Close() {
	p.cancel()
	p.Relays.Range(func(url string, rl *nostr.Relay) bool {
		chk.D(rl.Close())
		return true
	})
}
