// Package interrupt runs cleanup handlers when the process is interrupted,
// so relay connections are closed and the index is flushed on Ctrl+C.
package interrupt

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/Hubmakerlabs/writr/pkg/context"
	"github.com/Hubmakerlabs/writr/pkg/slog"
)

var log, _ = slog.New(os.Stderr)

type handlerWithSource struct {
	source string
	fn     func()
}

var (
	requested atomic.Bool
	listening sync.Once
	mx        sync.Mutex
	handlers  []handlerWithSource

	// signals is the list of signals that cause the interrupt
	signals = []os.Signal{os.Interrupt, syscall.SIGTERM}

	// HandlersDone is closed after the handlers have run.
	HandlersDone = make(chan struct{})
)

func listen() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)
	go func() {
		sig := <-ch
		log.D.Ln("received interrupt signal", sig)
		Request()
	}()
}

// AddHandler adds a handler to call when the process is interrupted or a
// shutdown is requested. Handlers run in reverse order of adding.
func AddHandler(fn func()) {
	_, loc, line, _ := runtime.Caller(1)
	msg := fmt.Sprintf("%s:%d", loc, line)
	log.T.Ln("handler added by:", msg)
	listening.Do(listen)
	mx.Lock()
	handlers = append(handlers, handlerWithSource{msg, fn})
	mx.Unlock()
}

// Request runs the handlers. Only the first call has an effect.
func Request() {
	if requested.Swap(true) {
		log.D.Ln("requested again")
		return
	}
	mx.Lock()
	hs := handlers
	mx.Unlock()
	for i := len(hs) - 1; i >= 0; i-- {
		log.D.Ln("running callback", i, hs[i].source)
		hs[i].fn()
	}
	close(HandlersDone)
}

// Requested returns true if an interrupt has been requested
func Requested() bool { return requested.Load() }

// Context returns a child of parent that is cancelled on interrupt.
func Context(parent context.T) (c context.T, cancel context.F) {
	c, cancel = context.Cancel(parent)
	AddHandler(cancel)
	return
}
