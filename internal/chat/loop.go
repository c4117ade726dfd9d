package chat

import (
	"context"
	"sync"
)

// loop runs posted functions one at a time on a single goroutine. Everything
// that reacts to realtime events, request completions and timers goes through
// it, so those reactions never interleave.
type loop struct {
	tasks    chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newLoop() *loop {
	l := &loop{
		tasks: make(chan func(), 256),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *loop) run() {
	defer close(l.done)
	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-l.quit:
			return
		}
	}
}

// post queues fn. It reports false once the loop has stopped.
// Must not be called from the loop itself.
func (l *loop) post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.quit:
		return false
	}
}

// do runs fn on the loop and waits for it to finish.
func (l *loop) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrSessionClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop ends the loop after the task in progress. Queued tasks are dropped.
func (l *loop) stop() {
	l.stopOnce.Do(func() { close(l.quit) })
	<-l.done
}
