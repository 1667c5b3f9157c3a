// Package loop provides the single-threaded cooperative executor that every
// room mutation runs on.
//
// Work runs in turns. A turn executes one function synchronously and then
// drains the microtask queue: functions queued with Defer during the turn
// (or by other microtasks) run after the turn's call stack has unwound but
// before the next turn starts. This is the scheduling point the sync guard
// uses for its deferred exit.
//
// Turns are serialized by a mutex, so callers on different goroutines never
// interleave. External events (relay frames) are queued with Post and run
// as turns by Serve in arrival order.
//
// Turn must not be called from inside a turn: it would deadlock. Code that
// already runs in a turn calls its dependencies directly.
package loop

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned when work is submitted to a closed loop.
var ErrClosed = errors.New("loop closed")

const defaultBacklog = 256

// Loop is a cooperative executor. The zero value is not usable; call New.
type Loop struct {
	mu     sync.Mutex // held for the duration of a turn
	micro  []func()
	inTurn bool

	posted    chan job
	done      chan struct{}
	closeOnce sync.Once

	logger *zap.Logger
}

// job is a posted turn. done, when set, is closed after the turn's
// microtasks have drained.
type job struct {
	fn   func()
	done chan struct{}
}

// Options configures a Loop.
type Options struct {
	// Backlog bounds the number of posted turns waiting for Serve.
	Backlog int
	Logger  *zap.Logger
}

// New creates a loop. Posted work only runs while Serve is running.
func New(opts Options) *Loop {
	if opts.Backlog <= 0 {
		opts.Backlog = defaultBacklog
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Loop{
		posted: make(chan job, opts.Backlog),
		done:   make(chan struct{}),
		logger: opts.Logger,
	}
}

// Turn runs fn as one turn and drains the microtasks it queued.
func (l *Loop) Turn(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inTurn = true
	defer func() { l.inTurn = false }()
	fn()
	l.drain()
}

// Defer queues fn to run after the current turn's synchronous work.
// Outside a turn, fn waits for the next turn (or Flush).
func (l *Loop) Defer(fn func()) {
	l.micro = append(l.micro, fn)
}

// Pending returns the number of queued microtasks. Only meaningful from
// inside a turn or from the goroutine that owns the loop.
func (l *Loop) Pending() int { return len(l.micro) }

// InTurn reports whether a turn is executing. Only meaningful from inside
// the turn itself.
func (l *Loop) InTurn() bool { return l.inTurn }

// Flush runs an empty turn, draining any microtasks queued outside a turn.
func (l *Loop) Flush() { l.Turn(func() {}) }

func (l *Loop) drain() {
	for len(l.micro) > 0 {
		fn := l.micro[0]
		l.micro[0] = nil
		l.micro = l.micro[1:]
		fn()
	}
	l.micro = nil
}

// Post queues fn to run as a future turn. Safe for concurrent use. Returns
// ErrClosed once the loop is closed; blocks while the backlog is full.
func (l *Loop) Post(fn func()) error {
	return l.post(context.Background(), job{fn: fn})
}

// PostContext is Post that gives up when ctx is done, returning ctx.Err().
// Producers that must be able to stop while the loop is busy, such as a
// relay connection being closed from inside a turn, use it.
func (l *Loop) PostContext(ctx context.Context, fn func()) error {
	return l.post(ctx, job{fn: fn})
}

func (l *Loop) post(ctx context.Context, j job) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	select {
	case l.posted <- j:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do posts fn and waits until it has run (including its microtasks).
// Requires Serve to be running.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.post(ctx, job{fn: fn, done: finished}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrClosed
	}
}

// Serve runs posted turns until ctx is cancelled or Close is called.
func (l *Loop) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case j := <-l.posted:
			l.run(j)
		}
	}
}

func (l *Loop) run(j job) {
	if j.done != nil {
		defer close(j.done)
	}
	l.Turn(j.fn)
}

// Close stops Serve and rejects further posts. Idempotent. Queued posted
// turns that have not started are dropped.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
		if n := len(l.posted); n > 0 {
			l.logger.Debug("dropping posted turns on close", zap.Int("count", n))
		}
	})
}
