package daemon

import (
	"sync"
	"time"

	"github.com/jmylchreest/alertd/internal/model"
)

// DefaultHistorySize is how many finished notifications the tracker remembers.
const DefaultHistorySize = 256

// DisplayStatus is a notification's status as seen from outside the event loop.
type DisplayStatus int

const (
	// DisplayStatusPending means the notification is queued for display.
	DisplayStatusPending DisplayStatus = iota
	// DisplayStatusActive means the notification is live.
	DisplayStatusActive
	// DisplayStatusFinished means the notification closed or was cancelled.
	DisplayStatusFinished
)

// String returns the string representation of DisplayStatus.
func (s DisplayStatus) String() string {
	switch s {
	case DisplayStatusPending:
		return "pending"
	case DisplayStatusActive:
		return "active"
	case DisplayStatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s DisplayStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DisplayState tracks one notification.
type DisplayState struct {
	ID         model.ID          `yaml:"id"`
	Priority   model.Priority    `yaml:"priority"`
	Status     DisplayStatus     `yaml:"status"`
	Reason     model.CloseReason `yaml:"reason,omitempty"` // Set once finished
	QueuedAt   time.Time         `yaml:"queued_at,omitempty"`
	AdmittedAt time.Time         `yaml:"admitted_at,omitempty"`
	ClosedAt   time.Time         `yaml:"closed_at,omitempty"`
}

// Tracker mirrors the manager's hooks into state that any goroutine can read.
// Finished entries are kept in a bounded history, oldest dropped first.
type Tracker struct {
	mu sync.RWMutex

	byID     map[model.ID]*DisplayState
	finished []model.ID // Finished ids, oldest first
	limit    int
	now      func() time.Time
}

// NewTracker creates a Tracker remembering up to limit finished notifications.
func NewTracker(limit int) *Tracker {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	return &Tracker{
		byID:  make(map[model.ID]*DisplayState),
		limit: limit,
		now:   time.Now,
	}
}

// Queued records a queued request.
func (t *Tracker) Queued(id model.ID, req model.Request) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.byID[id] = &DisplayState{
		ID:       id,
		Priority: req.Priority,
		Status:   DisplayStatusPending,
		QueuedAt: t.now(),
	}
}

// Admitted records a notification going live, directly or from the queue.
func (t *Tracker) Admitted(id model.ID, req model.Request) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, exists := t.byID[id]
	if !exists {
		state = &DisplayState{ID: id, Priority: req.Priority}
		t.byID[id] = state
	}
	state.Status = DisplayStatusActive
	state.AdmittedAt = t.now()
}

// Closed records a notification leaving the system.
func (t *Tracker) Closed(id model.ID, reason model.CloseReason) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, exists := t.byID[id]
	if !exists {
		state = &DisplayState{ID: id}
		t.byID[id] = state
	}
	if state.Status == DisplayStatusFinished {
		return
	}
	state.Status = DisplayStatusFinished
	state.Reason = reason
	state.ClosedAt = t.now()

	t.finished = append(t.finished, id)
	for len(t.finished) > t.limit {
		delete(t.byID, t.finished[0])
		t.finished = t.finished[1:]
	}
}

// Get returns a copy of the tracked state for id.
func (t *Tracker) Get(id model.ID) (DisplayState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, exists := t.byID[id]
	if !exists {
		return DisplayState{}, false
	}
	return *state, true
}

// Recent returns up to n finished notifications, newest first.
func (t *Tracker) Recent(n int) []DisplayState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n <= 0 || n > len(t.finished) {
		n = len(t.finished)
	}
	recent := make([]DisplayState, 0, n)
	for i := len(t.finished) - 1; i >= len(t.finished)-n; i-- {
		recent = append(recent, *t.byID[t.finished[i]])
	}
	return recent
}

// ActiveCount returns the number of live notifications.
func (t *Tracker) ActiveCount() int {
	return t.count(DisplayStatusActive)
}

// PendingCount returns the number of queued notifications.
func (t *Tracker) PendingCount() int {
	return t.count(DisplayStatusPending)
}

func (t *Tracker) count(status DisplayStatus) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, state := range t.byID {
		if state.Status == status {
			count++
		}
	}
	return count
}
