package rdm

import (
	"sync"
	"time"
)

// Scheduler runs closures one at a time on behalf of a Channel or Session.
type Scheduler interface {
	// Post queues fn to run on the scheduler. Returns false if fn will never run.
	Post(fn func()) bool
	// After queues fn to run on the scheduler once d has elapsed.
	// The returned function cancels it, returning false if it was too late.
	After(d time.Duration, fn func()) (stop func() bool)
}

// Loop is a Scheduler backed by a single goroutine. Closures run in the
// order they were posted and never concurrently with each other.
type Loop struct {
	mu      sync.Mutex // guards queue and stopped
	queue   []func()
	stopped bool
	wakeCh  chan struct{}
	doneCh  chan struct{}
	exitCh  chan struct{}
}

// NewLoop starts a new Loop.
func NewLoop() *Loop {
	l := &Loop{
		wakeCh: make(chan struct{}, 1),
		doneCh: make(chan struct{}),
		exitCh: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.exitCh)
	for {
		select {
		case <-l.doneCh:
			return
		case <-l.wakeCh:
		}
		for {
			fn := l.next()
			if fn == nil {
				break
			}
			fn()
		}
	}
}

func (l *Loop) next() (fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped || len(l.queue) == 0 {
		return nil
	}
	fn = l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return
}

// Post queues fn. It never blocks, and may be called from the loop itself.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return false
	}
	l.queue = append(l.queue, fn)
	select {
	case l.wakeCh <- struct{}{}:
	default:
	}
	return true
}

// After queues fn once d has elapsed.
func (l *Loop) After(d time.Duration, fn func()) (stop func() bool) {
	t := time.AfterFunc(d, func() { l.Post(fn) })
	return t.Stop
}

// Do runs fn on the loop and waits for it to finish.
// Returns false if the loop is stopped. Must not be called from the loop.
func (l *Loop) Do(fn func()) bool {
	doneCh := make(chan struct{})
	if !l.Post(func() {
		defer close(doneCh)
		fn()
	}) {
		return false
	}
	select {
	case <-doneCh:
		return true
	case <-l.exitCh:
		// the loop may have run fn right before exiting
		select {
		case <-doneCh:
			return true
		default:
			return false
		}
	}
}

// Stop makes the loop exit after the closure currently running, discarding
// anything still queued. It does not wait and may be called from the loop.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.stopped {
		l.stopped = true
		l.queue = nil
		close(l.doneCh)
	}
}

// Close stops the loop and waits for its goroutine to exit.
// Must not be called from the loop.
func (l *Loop) Close() error {
	l.Stop()
	<-l.exitCh
	return nil
}

// Done returns a channel that is closed when the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.exitCh
}
