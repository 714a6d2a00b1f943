package simulate

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/alertd/internal/config"
	"github.com/jmylchreest/alertd/internal/display"
	"github.com/jmylchreest/alertd/internal/eventloop"
	"github.com/jmylchreest/alertd/internal/model"
	"github.com/jmylchreest/alertd/internal/pool"
)

// DefaultSettle bounds how long a run keeps going after its last step.
const DefaultSettle = time.Minute

// settleTick is the clock step used while settling.
const settleTick = 50 * time.Millisecond

// epoch is the virtual start time of every run.
var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Event kinds.
const (
	EventAdmitted = "admitted"
	EventQueued   = "queued"
	EventRejected = "rejected"
	EventEntering = "entering"
	EventExiting  = "exiting"
	EventClosed   = "closed"
	EventCapacity = "capacity"
)

// Event is one line of the run log.
type Event struct {
	At       time.Duration  `yaml:"at"`
	Name     string         `yaml:"name,omitempty"`
	Event    string         `yaml:"event"`
	Priority model.Priority `yaml:"priority,omitempty"`
	Detail   string         `yaml:"detail,omitempty"`
}

// Result is the outcome of a run.
type Result struct {
	Scenario string        `yaml:"scenario,omitempty"`
	Events   []Event       `yaml:"events"`
	Live     []string      `yaml:"live"`
	Queued   []string      `yaml:"queued"`
	Stats    display.Stats `yaml:"stats"`
	Pool     pool.Stats    `yaml:"pool"`
	Elapsed  time.Duration `yaml:"elapsed"`
}

// Submitted returns the number of notify steps that were accepted.
func (r *Result) Submitted() uint64 {
	return r.Stats.Admitted + r.Stats.Queued
}

type runner struct {
	sched   *eventloop.Manual
	manager *display.Manager

	ids   map[string]model.ID
	names map[model.ID]string
	prios map[model.ID]model.Priority

	// Request being submitted, bound to its id by the first hook
	submitting     string
	submittingPrio model.Priority

	events []Event
}

// Run plays sc against a fresh manager configured from base.
func Run(sc *Scenario, base *config.Config, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if base == nil {
		base = config.DefaultConfig()
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	cfg := sc.Config.Apply(base)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario configuration: %w", err)
	}

	r := &runner{
		sched: eventloop.NewManual(epoch),
		ids:   make(map[string]model.ID),
		names: make(map[model.ID]string),
		prios: make(map[model.ID]model.Priority),
	}

	p := pool.New(cfg.Pool.MaxSize, logger)
	display.RegisterKinds(p)

	var anim display.Animator = manualAnimator{}
	if sc.Animator != AnimatorManual {
		anim = display.NewTimedAnimator(r.sched, cfg.Animation.Entrance.Duration(), cfg.Animation.Exit.Duration(), nil)
	}

	r.manager = display.NewManager(r.sched, p, &recordingAnimator{inner: anim, r: r}, cfg, logger)
	r.manager.SetHooks(display.Hooks{
		OnAdmitted: func(id model.ID, req model.Request) {
			r.record(id, EventAdmitted, "")
		},
		OnQueued: func(id model.ID, req model.Request) {
			r.record(id, EventQueued, "")
		},
		OnClosed: func(id model.ID, reason model.CloseReason) {
			r.record(id, EventClosed, reason.String())
		},
	})

	for i := range sc.Steps {
		if err := r.step(i, &sc.Steps[i], cfg); err != nil {
			return nil, err
		}
	}

	settle := DefaultSettle
	if sc.Settle != nil {
		settle = sc.Settle.Duration()
	}
	r.settle(settle)

	res := &Result{
		Scenario: sc.Name,
		Events:   r.events,
		Live:     r.namesOf(r.manager.LiveIDs()),
		Queued:   r.namesOf(r.manager.QueuedIDs()),
		Stats:    r.manager.Stats(),
		Pool:     r.manager.PoolStats(),
		Elapsed:  r.elapsed(),
	}
	return res, nil
}

func (r *runner) elapsed() time.Duration {
	return r.sched.Now().Sub(epoch)
}

func (r *runner) step(i int, step *Step, cfg *config.Config) error {
	if step.At != nil {
		at := step.At.Duration()
		if at < r.elapsed() {
			return fmt.Errorf("%w %d: at %s is before the current time %s", ErrBadStep, i+1, at, r.elapsed())
		}
		r.sched.Advance(at - r.elapsed())
	}

	switch {
	case step.Notify != nil:
		r.notify(step.Notify)
	case step.Close != "":
		r.manager.Close(r.ids[step.Close])
	case step.Enter != "":
		r.manager.NotifyEntranceComplete(r.ids[step.Enter])
	case step.Exit != "":
		r.manager.NotifyExitComplete(r.ids[step.Exit])
	case step.Pause != "":
		r.manager.Pause(r.ids[step.Pause])
	case step.Resume != "":
		r.manager.Resume(r.ids[step.Resume])
	case step.CloseAll:
		r.manager.CloseAll()
	case step.Capacity > 0:
		cfg.Admission.MaxConcurrent = step.Capacity
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w %d: %w", ErrBadStep, i+1, err)
		}
		r.events = append(r.events, Event{At: r.elapsed(), Event: EventCapacity, Detail: fmt.Sprint(step.Capacity)})
		r.manager.UpdateConfig(cfg)
	}
	r.sched.RunPending()

	if step.Advance > 0 {
		r.sched.Advance(step.Advance.Duration())
	}
	return nil
}

func (r *runner) notify(n *NotifyStep) {
	req := n.Request()

	r.submitting, r.submittingPrio = n.Name, req.Priority
	id, _, err := r.manager.Submit(req)
	r.submitting, r.submittingPrio = "", 0

	if err != nil {
		r.events = append(r.events, Event{
			At:       r.elapsed(),
			Name:     n.Name,
			Event:    EventRejected,
			Priority: req.Priority,
			Detail:   err.Error(),
		})
		return
	}
	r.bind(id, n.Name, req.Priority)
}

// settle advances the clock until no timers remain or limit has passed.
func (r *runner) settle(limit time.Duration) {
	deadline := r.elapsed() + limit
	for r.sched.PendingTimers() > 0 && r.elapsed() < deadline {
		tick := min(settleTick, deadline-r.elapsed())
		r.sched.Advance(tick)
	}
}

func (r *runner) bind(id model.ID, name string, prio model.Priority) {
	r.ids[name] = id
	r.names[id] = name
	r.prios[id] = prio
}

func (r *runner) record(id model.ID, kind, detail string) {
	name, ok := r.names[id]
	if !ok && r.submitting != "" {
		r.bind(id, r.submitting, r.submittingPrio)
		name, ok = r.submitting, true
	}
	if !ok {
		name = string(id)
	}

	r.events = append(r.events, Event{
		At:       r.elapsed(),
		Name:     name,
		Event:    kind,
		Priority: r.prios[id],
		Detail:   detail,
	})
}

func (r *runner) namesOf(ids []model.ID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := r.names[id]; ok {
			out = append(out, name)
		} else {
			out = append(out, string(id))
		}
	}
	return out
}

// recordingAnimator logs transitions before handing them to the real animator.
type recordingAnimator struct {
	inner display.Animator
	r     *runner
}

func (a *recordingAnimator) Enter(id model.ID, inst pool.Instance, done func()) {
	a.r.record(id, EventEntering, string(inst.Kind()))
	a.inner.Enter(id, inst, done)
}

func (a *recordingAnimator) Exit(id model.ID, inst pool.Instance, done func()) {
	a.r.record(id, EventExiting, "")
	a.inner.Exit(id, inst, done)
}

// manualAnimator never finishes a transition by itself; enter and exit
// steps report completion instead.
type manualAnimator struct{}

func (manualAnimator) Enter(model.ID, pool.Instance, func()) {}
func (manualAnimator) Exit(model.ID, pool.Instance, func())  {}
