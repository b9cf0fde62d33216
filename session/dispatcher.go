package session

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Dispatcher runs completions.  Dispatch must not block the caller on the
// completion it's given.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatcherFunc is an adapter for using a func as a Dispatcher
type DispatcherFunc func(fn func())

// Dispatch calls f(fn)
func (f DispatcherFunc) Dispatch(fn func()) { f(fn) }

// Immediate runs completions inline, on the goroutine which delivered the
// result.
var Immediate Dispatcher = DispatcherFunc(func(fn func()) { fn() })

// SerialDispatcher runs completions one at a time, in the order they were
// dispatched, on its own goroutine.  A completion may dispatch further
// completions.
type SerialDispatcher struct {
	logger hclog.Logger

	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

// NewSerialDispatcher creates and starts a SerialDispatcher.  Supports the
// WithLogger and WithQueueSize options.
func NewSerialDispatcher(opt ...Option) *SerialDispatcher {
	opts := getDispatcherOpts(opt...)
	d := &SerialDispatcher{
		logger: opts.withLogger,
		queue:  make([]func(), 0, opts.withQueueSize),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Dispatch queues fn.  Completions dispatched after Stop are dropped.
func (d *SerialDispatcher) Dispatch(fn func()) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		d.logger.Warn("dropping completion dispatched after stop")
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Stop lets the completions already queued run and then stops the
// dispatcher's goroutine.  It doesn't wait: use Done for that.
func (d *SerialDispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Done returns a channel that's closed once the dispatcher stopped.
func (d *SerialDispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *SerialDispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			stopped := d.stopped
			d.mu.Unlock()
			if stopped {
				return
			}
			<-d.wake
			continue
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()
		d.call(fn)
	}
}

func (d *SerialDispatcher) call(fn func()) {
	const op = "session.(SerialDispatcher).call"
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("completion panicked", "op", op, "error", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
