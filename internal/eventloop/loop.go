package eventloop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrStopped is returned when work is handed to a loop that is not running.
var ErrStopped = errors.New("event loop stopped")

// Timer is a pending callback scheduled with AfterFunc.
type Timer interface {
	// Stop prevents the callback from being posted. It returns false if the
	// callback was already posted or the timer was already stopped.
	Stop() bool
}

// Scheduler runs callbacks one at a time on a single logical thread.
// Everything posted to a Scheduler runs serially with everything else posted to it.
type Scheduler interface {
	// Post queues fn to run on the loop. It never runs fn inline.
	Post(fn func())
	// AfterFunc posts fn to the loop once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
	// Now returns the scheduler's current time.
	Now() time.Time
}

// Loop is a goroutine-backed Scheduler.
type Loop struct {
	mu     sync.Mutex
	logger *slog.Logger

	tasks []func()
	wake  chan struct{}

	// Control channels
	stopCh chan struct{}
	doneCh chan struct{}

	running bool
}

// New creates a new Loop. Call Start before posting work that must run.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}

	return &Loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins running posted callbacks on a dedicated goroutine.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	l.mu.Unlock()

	go l.run(ctx)

	l.logger.Debug("event loop started")
	return nil
}

// Stop stops the loop and waits for the running callback to return.
// Callbacks still queued are dropped.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stopCh)
	l.mu.Unlock()

	<-l.doneCh
	l.logger.Debug("event loop stopped")
}

// Post queues fn to run on the loop goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// AfterFunc posts fn to the loop after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, func() {
		l.Post(fn)
	})
}

// Now returns the wall clock time.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return ErrStopped
	}
	doneCh := l.doneCh
	l.mu.Unlock()

	finished := make(chan struct{})
	l.Post(func() {
		fn()
		close(finished)
	})

	select {
	case <-finished:
		return nil
	case <-doneCh:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main dispatch loop.
func (l *Loop) run(ctx context.Context) {
	defer close(l.doneCh)

	for {
		select {
		case <-ctx.Done():
			l.markStopped()
			return
		case <-l.stopCh:
			return
		case <-l.wake:
			l.drain()
		}
	}
}

// drain runs every queued callback, including ones posted while draining.
func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.tasks) == 0 || !l.running {
			l.mu.Unlock()
			return
		}
		tasks := l.tasks
		l.tasks = nil
		l.mu.Unlock()

		for _, task := range tasks {
			l.runTask(task)
		}
	}
}

// runTask runs one callback and keeps the loop alive if it panics.
func (l *Loop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop callback panicked", "panic", r)
		}
	}()
	task()
}

func (l *Loop) markStopped() {
	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
}

// IsRunning returns whether the loop is currently running.
func (l *Loop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
