package display

import (
	"log/slog"
	"time"

	"github.com/jmylchreest/alertd/internal/eventloop"
	"github.com/jmylchreest/alertd/internal/model"
)

// coordinator drives one live record through Entering, Visible, Closing and Closed.
//
// Animator completions are always posted back through the scheduler, so a
// transition never completes inside the call that started it. The closed flag
// is consumed by the first exit completion; onClosed runs once per record no
// matter how many close triggers raced.
type coordinator struct {
	rec    *record
	sched  eventloop.Scheduler
	anim   Animator
	logger *slog.Logger

	// Wired to the manager's Notify* entry points.
	entered  func(model.ID)
	exited   func(model.ID)
	onClosed func(*record, model.CloseReason)

	// Timeout management
	timer     eventloop.Timer
	timerGen  uint64
	deadline  time.Time
	remaining time.Duration
	expires   bool
	paused    bool

	reason model.CloseReason
	closed bool
}

// start begins the entrance transition and arms the timeout.
func (c *coordinator) start() {
	if c.rec.state != model.StateAdmitted {
		return
	}
	c.rec.state = model.StateEntering

	if timeout := c.rec.req.Timeout; timeout > 0 {
		c.expires = true
		c.arm(timeout)
	}

	c.anim.Enter(c.rec.id, c.rec.inst, c.done(c.entered))
}

// entranceComplete moves an entering record to Visible.
func (c *coordinator) entranceComplete() bool {
	if c.rec.state != model.StateEntering {
		return false
	}
	c.rec.state = model.StateVisible
	return true
}

// requestClose starts the exit transition. Closing or closed records ignore it.
func (c *coordinator) requestClose(reason model.CloseReason) bool {
	switch c.rec.state {
	case model.StateAdmitted, model.StateEntering, model.StateVisible:
	default:
		return false
	}

	c.disarm()
	c.rec.state = model.StateClosing
	c.reason = reason

	c.logger.Debug("closing notification",
		"id", c.rec.id,
		"reason", reason,
	)

	c.anim.Exit(c.rec.id, c.rec.inst, c.done(c.exited))
	return true
}

// exitComplete finishes a closing record and reports it to the manager.
func (c *coordinator) exitComplete() bool {
	if c.rec.state != model.StateClosing || c.closed {
		return false
	}
	c.closed = true
	c.rec.state = model.StateClosed
	c.onClosed(c.rec, c.reason)
	return true
}

// pause freezes the timeout, e.g. while the pointer hovers the notification.
func (c *coordinator) pause() bool {
	if c.paused {
		return false
	}
	if c.rec.state != model.StateEntering && c.rec.state != model.StateVisible {
		return false
	}

	c.paused = true
	if c.expires {
		c.remaining = max(c.deadline.Sub(c.sched.Now()), 0)
		c.disarm()
	}
	return true
}

// resume re-arms the timeout with whatever was left when it was paused.
func (c *coordinator) resume() bool {
	if !c.paused {
		return false
	}
	c.paused = false

	if c.expires && !c.rec.state.IsTerminal() && c.rec.state != model.StateClosing {
		c.arm(c.remaining)
	}
	return true
}

// timeLeft returns the remaining visible lifetime, and false if the record never expires.
func (c *coordinator) timeLeft() (time.Duration, bool) {
	if !c.expires {
		return 0, false
	}
	if c.paused || c.timer == nil {
		return c.remaining, true
	}
	return max(c.deadline.Sub(c.sched.Now()), 0), true
}

func (c *coordinator) arm(d time.Duration) {
	c.disarm()
	gen := c.timerGen
	c.deadline = c.sched.Now().Add(d)
	c.remaining = d
	c.timer = c.sched.AfterFunc(d, func() {
		c.expire(gen)
	})
}

// disarm stops the timer. Bumping the generation also voids a timeout that
// already fired and is waiting in the scheduler queue.
func (c *coordinator) disarm() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}

func (c *coordinator) expire(gen uint64) {
	if gen != c.timerGen || c.paused {
		return
	}
	c.timer = nil
	c.remaining = 0
	c.requestClose(model.CloseReasonExpired)
}

// done builds the one completion callback handed to the animator.
func (c *coordinator) done(notify func(model.ID)) func() {
	id := c.rec.id
	return func() {
		c.sched.Post(func() {
			notify(id)
		})
	}
}
