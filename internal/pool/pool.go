// Package pool keeps idle display instances for reuse across notification bursts.
//
// A pool is not safe for concurrent use; it is owned by the event loop that
// drives the display manager.
package pool

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jmylchreest/alertd/internal/model"
)

// DefaultMaxSize is the default number of idle instances kept per kind.
const DefaultMaxSize = 50

// Pool errors.
var (
	ErrUnknownKind  = errors.New("no factory registered for display kind")
	ErrConstruction = errors.New("failed to construct display instance")
)

// Instance is a reusable object that renders one notification at a time.
type Instance interface {
	// Kind returns the concrete display type used to group idle instances.
	Kind() model.Kind
	// Reset clears visible state. It returns false if the instance can no
	// longer be reused (for example when it is permanently inert).
	Reset() bool
	// Valid reports whether the backing resource still exists.
	Valid() bool
	// Dispose releases the backing resource. The instance is never reused.
	Dispose()
}

// Factory constructs a new instance of one kind.
type Factory func() (Instance, error)

// Stats is a snapshot of pool counters.
type Stats struct {
	Idle     map[model.Kind]int `json:"idle" yaml:"idle"`
	Active   int                `json:"active" yaml:"active"`
	Created  uint64             `json:"created" yaml:"created"`
	Reused   uint64             `json:"reused" yaml:"reused"`
	Disposed uint64             `json:"disposed" yaml:"disposed"`
}

// Pool hands out display instances and takes them back once a notification closes.
// An instance is owned by exactly one of: the idle list, or the caller that
// acquired it. The active set is what enforces that.
type Pool struct {
	logger    *slog.Logger
	maxSize   int
	factories map[model.Kind]Factory

	idle   map[model.Kind][]Instance
	active map[Instance]struct{}

	created  uint64
	reused   uint64
	disposed uint64
}

// New creates a pool keeping at most maxSize idle instances per kind.
func New(maxSize int, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if maxSize < 0 {
		maxSize = 0
	}

	return &Pool{
		logger:    logger,
		maxSize:   maxSize,
		factories: make(map[model.Kind]Factory),
		idle:      make(map[model.Kind][]Instance),
		active:    make(map[Instance]struct{}),
	}
}

// Register sets the factory used to construct instances of kind.
func (p *Pool) Register(kind model.Kind, factory Factory) {
	p.factories[kind] = factory
}

// Has reports whether a factory is registered for kind.
func (p *Pool) Has(kind model.Kind) bool {
	_, ok := p.factories[kind]
	return ok
}

// Kinds returns the registered kinds in name order.
func (p *Pool) Kinds() []model.Kind {
	kinds := make([]model.Kind, 0, len(p.factories))
	for k := range p.factories {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Acquire returns an idle instance of kind or constructs a new one.
// A reused instance keeps whatever content it had; the caller overwrites it.
func (p *Pool) Acquire(kind model.Kind) (Instance, error) {
	factory, ok := p.factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	idle := p.idle[kind]
	for len(idle) > 0 {
		inst := idle[len(idle)-1]
		idle[len(idle)-1] = nil
		idle = idle[:len(idle)-1]
		p.idle[kind] = idle

		// Its backing resource went away while idle.
		if !inst.Valid() {
			p.disposed++
			continue
		}

		p.active[inst] = struct{}{}
		p.reused++
		return inst, nil
	}

	inst, err := factory()
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrConstruction, kind, err)
	}
	if inst == nil {
		return nil, fmt.Errorf("%w %q: factory returned nil", ErrConstruction, kind)
	}

	p.active[inst] = struct{}{}
	p.created++
	return inst, nil
}

// Release returns an acquired instance to the pool.
// Releasing an instance the pool does not consider active is a no-op, so late
// or duplicate releases never put the same instance in the idle list twice.
func (p *Pool) Release(inst Instance) {
	if inst == nil {
		return
	}
	if _, ok := p.active[inst]; !ok {
		p.logger.Debug("ignoring release of untracked display instance", "kind", inst.Kind())
		return
	}
	delete(p.active, inst)

	if !inst.Valid() {
		return
	}

	if !inst.Reset() {
		p.dispose(inst)
		return
	}

	kind := inst.Kind()
	if len(p.idle[kind]) >= p.maxSize {
		// Pool is full for this kind
		p.dispose(inst)
		return
	}
	p.idle[kind] = append(p.idle[kind], inst)
}

// Cleanup drops idle instances that are no longer reusable and returns how many were dropped.
func (p *Pool) Cleanup() int {
	dropped := 0
	for kind, idle := range p.idle {
		kept := idle[:0]
		for _, inst := range idle {
			if !inst.Valid() {
				p.disposed++
				dropped++
				continue
			}
			if !inst.Reset() {
				p.dispose(inst)
				dropped++
				continue
			}
			kept = append(kept, inst)
		}
		clear(idle[len(kept):])
		p.idle[kind] = kept
	}

	if dropped > 0 {
		p.logger.Debug("pool cleanup dropped idle instances", "dropped", dropped)
	}
	return dropped
}

// SetMaxSize changes the idle bound and disposes instances above it.
func (p *Pool) SetMaxSize(maxSize int) {
	if maxSize < 0 {
		maxSize = 0
	}
	p.maxSize = maxSize

	for kind, idle := range p.idle {
		if len(idle) <= maxSize {
			continue
		}
		for _, inst := range idle[maxSize:] {
			p.dispose(inst)
		}
		clear(idle[maxSize:])
		p.idle[kind] = idle[:maxSize]
	}
}

// MaxSize returns the idle bound per kind.
func (p *Pool) MaxSize() int {
	return p.maxSize
}

// IdleCount returns the number of idle instances of kind.
func (p *Pool) IdleCount(kind model.Kind) int {
	return len(p.idle[kind])
}

// ActiveCount returns the number of acquired, not yet released instances.
func (p *Pool) ActiveCount() int {
	return len(p.active)
}

// IsIdle reports whether inst is currently in the idle list.
func (p *Pool) IsIdle(inst Instance) bool {
	for _, idle := range p.idle[inst.Kind()] {
		if idle == inst {
			return true
		}
	}
	return false
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	idle := make(map[model.Kind]int, len(p.idle))
	for kind, list := range p.idle {
		idle[kind] = len(list)
	}
	return Stats{
		Idle:     idle,
		Active:   len(p.active),
		Created:  p.created,
		Reused:   p.reused,
		Disposed: p.disposed,
	}
}

// Drain disposes every idle instance.
func (p *Pool) Drain() {
	for kind, idle := range p.idle {
		for _, inst := range idle {
			p.dispose(inst)
		}
		delete(p.idle, kind)
	}
}

func (p *Pool) dispose(inst Instance) {
	inst.Dispose()
	p.disposed++
}
