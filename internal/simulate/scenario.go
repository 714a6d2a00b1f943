// Package simulate replays scripted notification traffic against a display
// manager on a virtual clock, so admission and preemption behaviour can be
// inspected without waiting on real timers.
package simulate

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/alertd/internal/config"
	"github.com/jmylchreest/alertd/internal/model"
)

// Animator modes.
const (
	AnimatorTimed  = "timed"  // Transitions complete after the configured durations
	AnimatorManual = "manual" // Transitions complete only on enter/exit steps
)

// Scenario errors.
var (
	ErrNoSteps       = errors.New("scenario has no steps")
	ErrUnknownName   = errors.New("unknown notification name")
	ErrDuplicateName = errors.New("duplicate notification name")
	ErrBadStep       = errors.New("invalid step")
)

// Scenario is a scripted run loaded from YAML.
type Scenario struct {
	Name     string     `yaml:"name"`
	Animator string     `yaml:"animator,omitempty"`
	Config   *Overrides `yaml:"config,omitempty"`
	// Settle is how much virtual time may pass after the last step while
	// timers are still pending. Nil means DefaultSettle.
	Settle *config.Duration `yaml:"settle,omitempty"`
	Steps  []Step           `yaml:"steps"`
}

// Overrides replaces parts of the loaded configuration for one run.
type Overrides struct {
	MaxConcurrent       *int             `yaml:"max_concurrent,omitempty"`
	PreemptionThreshold *model.Priority  `yaml:"preemption_threshold,omitempty"`
	PoolMaxSize         *int             `yaml:"pool_max_size,omitempty"`
	Entrance            *config.Duration `yaml:"entrance,omitempty"`
	Exit                *config.Duration `yaml:"exit,omitempty"`
}

// Step is one scripted action. The clock moves to At first (if set), then
// the action runs, then the clock moves forward by Advance.
type Step struct {
	At      *config.Duration `yaml:"at,omitempty"`
	Advance config.Duration  `yaml:"advance,omitempty"`

	Notify   *NotifyStep `yaml:"notify,omitempty"`
	Close    string      `yaml:"close,omitempty"`
	Enter    string      `yaml:"enter,omitempty"`
	Exit     string      `yaml:"exit,omitempty"`
	Pause    string      `yaml:"pause,omitempty"`
	Resume   string      `yaml:"resume,omitempty"`
	CloseAll bool        `yaml:"close_all,omitempty"`
	// Capacity changes admission.max_concurrent mid-run.
	Capacity int `yaml:"capacity,omitempty"`
}

// NotifyStep submits a request under a scenario-local name.
type NotifyStep struct {
	Name     string           `yaml:"name"`
	Priority model.Priority   `yaml:"priority,omitempty"`
	Kind     model.Kind       `yaml:"kind,omitempty"`
	Type     model.AlertType  `yaml:"type,omitempty"`
	Title    string           `yaml:"title,omitempty"`
	Message  string           `yaml:"message,omitempty"`
	Timeout  *config.Duration `yaml:"timeout,omitempty"` // Nil uses the configured default
}

// Request converts the step into a manager request.
func (n *NotifyStep) Request() model.Request {
	req := model.Request{
		Priority: n.Priority,
		Timeout:  model.DefaultTimeout,
		Kind:     n.Kind,
		Type:     n.Type,
		Title:    n.Title,
		Message:  n.Message,
	}
	if req.Priority == 0 {
		req.Priority = model.PriorityNormal
	}
	if req.Kind == "" {
		req.Kind = model.KindToast
	}
	if req.Title == "" {
		req.Title = n.Name
	}
	if n.Timeout != nil {
		req.Timeout = n.Timeout.Duration()
	}
	return req
}

// actions counts the actions set on the step.
func (s *Step) actions() int {
	n := 0
	for _, set := range []bool{
		s.Notify != nil,
		s.Close != "",
		s.Enter != "",
		s.Exit != "",
		s.Pause != "",
		s.Resume != "",
		s.CloseAll,
		s.Capacity != 0,
	} {
		if set {
			n++
		}
	}
	return n
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a scenario.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks names and step shapes. Clock ordering is checked while running.
func (sc *Scenario) Validate() error {
	if len(sc.Steps) == 0 {
		return ErrNoSteps
	}
	switch sc.Animator {
	case "", AnimatorTimed, AnimatorManual:
	default:
		return fmt.Errorf("unknown animator %q (want %s or %s)", sc.Animator, AnimatorTimed, AnimatorManual)
	}

	names := make(map[string]bool)
	for i := range sc.Steps {
		step := &sc.Steps[i]
		if step.actions() > 1 {
			return fmt.Errorf("%w %d: more than one action", ErrBadStep, i+1)
		}
		if step.Advance < 0 || (step.At != nil && *step.At < 0) {
			return fmt.Errorf("%w %d: negative time", ErrBadStep, i+1)
		}
		if step.Capacity < 0 {
			return fmt.Errorf("%w %d: negative capacity", ErrBadStep, i+1)
		}

		if n := step.Notify; n != nil {
			if n.Name == "" {
				return fmt.Errorf("%w %d: notify needs a name", ErrBadStep, i+1)
			}
			if names[n.Name] {
				return fmt.Errorf("%w %d: %w: %q", ErrBadStep, i+1, ErrDuplicateName, n.Name)
			}
			names[n.Name] = true
			continue
		}

		for _, ref := range []string{step.Close, step.Enter, step.Exit, step.Pause, step.Resume} {
			if ref != "" && !names[ref] {
				return fmt.Errorf("%w %d: %w: %q", ErrBadStep, i+1, ErrUnknownName, ref)
			}
		}
	}
	return nil
}

// Apply returns a copy of base with the scenario's overrides applied.
func (o *Overrides) Apply(base *config.Config) *config.Config {
	cfg := base.Clone()
	if o == nil {
		return cfg
	}
	if o.MaxConcurrent != nil {
		cfg.Admission.MaxConcurrent = *o.MaxConcurrent
	}
	if o.PreemptionThreshold != nil {
		cfg.Admission.PreemptionThreshold = *o.PreemptionThreshold
	}
	if o.PoolMaxSize != nil {
		cfg.Pool.MaxSize = *o.PoolMaxSize
	}
	if o.Entrance != nil {
		cfg.Animation.Entrance = *o.Entrance
	}
	if o.Exit != nil {
		cfg.Animation.Exit = *o.Exit
	}
	return cfg
}
