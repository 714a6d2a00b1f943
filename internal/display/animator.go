package display

import (
	"sync"
	"time"

	"github.com/jmylchreest/alertd/internal/eventloop"
	"github.com/jmylchreest/alertd/internal/model"
	"github.com/jmylchreest/alertd/internal/pool"
)

// Animator runs entrance and exit transitions. Each call must eventually
// invoke done exactly once; the manager does not advance the record until it
// does. done may be called from any goroutine.
type Animator interface {
	Enter(id model.ID, inst pool.Instance, done func())
	Exit(id model.ID, inst pool.Instance, done func())
}

// TimedAnimator treats transitions as fixed delays on a scheduler. The
// renderer, if any, is told to show the instance when its entrance starts
// and to hide it when its exit ends.
type TimedAnimator struct {
	sched    eventloop.Scheduler
	renderer Renderer

	mu       sync.RWMutex
	entrance time.Duration
	exit     time.Duration
}

// NewTimedAnimator creates an animator. renderer may be nil.
func NewTimedAnimator(sched eventloop.Scheduler, entrance, exit time.Duration, renderer Renderer) *TimedAnimator {
	return &TimedAnimator{
		sched:    sched,
		renderer: renderer,
		entrance: entrance,
		exit:     exit,
	}
}

// SetDurations changes the transition lengths for transitions started afterwards.
func (a *TimedAnimator) SetDurations(entrance, exit time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entrance = entrance
	a.exit = exit
}

// Durations returns the current entrance and exit lengths.
func (a *TimedAnimator) Durations() (entrance, exit time.Duration) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.entrance, a.exit
}

// Enter implements Animator.
func (a *TimedAnimator) Enter(id model.ID, inst pool.Instance, done func()) {
	entrance, _ := a.Durations()
	if a.renderer != nil {
		a.renderer.Show(id, inst)
	}
	a.sched.AfterFunc(entrance, done)
}

// Exit implements Animator.
func (a *TimedAnimator) Exit(id model.ID, inst pool.Instance, done func()) {
	_, exit := a.Durations()
	a.sched.AfterFunc(exit, func() {
		if a.renderer != nil {
			a.renderer.Hide(id, inst)
		}
		done()
	})
}

var _ Animator = (*TimedAnimator)(nil)
