package eventloop

import (
	"time"
)

// Manual is a deterministic Scheduler driven by a virtual clock.
// Posted callbacks only run from RunPending or Advance, on the caller's goroutine.
// Manual is not safe for concurrent use.
type Manual struct {
	now    time.Time
	tasks  []func()
	timers []*manualTimer
	seq    uint64
}

type manualTimer struct {
	at      time.Time
	seq     uint64
	fn      func()
	fired   bool
	stopped bool
}

// Stop implements Timer.
func (t *manualTimer) Stop() bool {
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// NewManual creates a Manual scheduler whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	return m.now
}

// Post queues fn until the next RunPending.
func (m *Manual) Post(fn func()) {
	m.tasks = append(m.tasks, fn)
}

// AfterFunc schedules fn to be posted once the clock has advanced by d.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.seq++
	t := &manualTimer{at: m.now.Add(d), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Pending returns the number of queued callbacks.
func (m *Manual) Pending() int {
	return len(m.tasks)
}

// PendingTimers returns the number of timers that have neither fired nor been stopped.
func (m *Manual) PendingTimers() int {
	n := 0
	for _, t := range m.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

// RunPending runs queued callbacks in order until none remain, including
// callbacks posted while running. It returns the number of callbacks run.
func (m *Manual) RunPending() int {
	ran := 0
	for len(m.tasks) > 0 {
		task := m.tasks[0]
		m.tasks = m.tasks[1:]
		task()
		ran++
	}
	return ran
}

// Advance moves the clock forward by d, firing due timers in deadline order
// and running everything they post.
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	m.RunPending()

	for {
		next := m.nextDue(target)
		if next == nil {
			break
		}
		m.now = next.at
		next.fired = true
		m.Post(next.fn)
		m.RunPending()
	}

	m.now = target
	m.compact()
}

// nextDue returns the earliest live timer due at or before target.
func (m *Manual) nextDue(target time.Time) *manualTimer {
	var next *manualTimer
	for _, t := range m.timers {
		if t.fired || t.stopped || t.at.After(target) {
			continue
		}
		if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

// compact drops timers that can no longer fire.
func (m *Manual) compact() {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.fired && !t.stopped {
			live = append(live, t)
		}
	}
	m.timers = live
}

var (
	_ Scheduler = (*Loop)(nil)
	_ Scheduler = (*Manual)(nil)
)
