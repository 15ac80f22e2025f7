// Package loop provides the single-threaded cooperative executor that owns all
// synchronization state. Every component mutation runs as a task on the loop;
// blocking backend calls run elsewhere and post their continuation back.
package loop

import (
	"context"
	"sync"
	"time"
)

// Loop is a FIFO task executor. Tasks run one at a time on whichever goroutine
// drives the loop (Run or Settle), so state owned by loop tasks needs no locks.
type Loop struct {
	mu       sync.Mutex
	tasks    []func()
	inflight int
	closed   bool
	wake     chan struct{}
	stopped  chan struct{}
}

// New creates an idle loop.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1), stopped: make(chan struct{})}
}

// Post enqueues fn. It is safe to call from any goroutine, including from a
// running task. It reports false if the loop has been closed; fn is dropped.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	l.signal()
	return true
}

// Go runs call on its own goroutine and posts then(result, err) back onto the
// loop. If the loop is closed before call returns, the result is discarded.
func Go[T any](l *Loop, ctx context.Context, call func(context.Context) (T, error), then func(T, error)) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.inflight++
	l.mu.Unlock()

	go func() {
		v, err := call(ctx)

		l.mu.Lock()
		l.inflight--
		if !l.closed {
			l.tasks = append(l.tasks, func() { then(v, err) })
		}
		l.mu.Unlock()
		l.signal()
	}()
}

// Run processes tasks until ctx is done or the loop is closed.
func (l *Loop) Run(ctx context.Context) error {
	for {
		for l.runOne() {
		}
		if l.isClosed() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Settle processes tasks until the queue is empty and no call started with Go
// is still outstanding. It must not be used while Run is active.
func (l *Loop) Settle() {
	for {
		for l.runOne() {
		}
		l.mu.Lock()
		idle := len(l.tasks) == 0 && (l.inflight == 0 || l.closed)
		l.mu.Unlock()
		if idle {
			return
		}
		<-l.wake
	}
}

// Do posts fn and blocks until it has run. The loop must be driven by another
// goroutine. It reports false if the loop was closed before fn ran.
func (l *Loop) Do(fn func()) bool {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return false
	}
	select {
	case <-done:
		return true
	case <-l.stopped:
		return false
	}
}

// Close stops accepting tasks. Pending tasks and late continuations are dropped.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.tasks = nil
	l.mu.Unlock()
	close(l.stopped)
	l.signal()
}

func (l *Loop) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Loop) runOne() bool {
	l.mu.Lock()
	if len(l.tasks) == 0 || l.closed {
		l.mu.Unlock()
		return false
	}
	fn := l.tasks[0]
	l.tasks[0] = nil
	l.tasks = l.tasks[1:]
	l.mu.Unlock()

	fn()
	return true
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Every runs fn on the loop once per interval d until stop is called. stop
// must be called from a loop task; after it returns fn never runs again.
func (l *Loop) Every(d time.Duration, fn func()) (stop func()) {
	quit := make(chan struct{})
	stopped := false

	go func() {
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if !l.Post(func() {
					if !stopped {
						fn()
					}
				}) {
					return
				}
			case <-quit:
				return
			case <-l.stopped:
				return
			}
		}
	}()

	return func() {
		if stopped {
			return
		}
		stopped = true
		close(quit)
	}
}
