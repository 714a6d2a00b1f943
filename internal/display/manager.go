package display

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/alertd/internal/config"
	"github.com/jmylchreest/alertd/internal/eventloop"
	"github.com/jmylchreest/alertd/internal/model"
	"github.com/jmylchreest/alertd/internal/pool"
)

// Stats counts what the manager has done since it was created.
type Stats struct {
	Admitted  uint64 `json:"admitted" yaml:"admitted"`   // Live on submit, including preempting requests
	Queued    uint64 `json:"queued" yaml:"queued"`       // Queued on submit
	Promoted  uint64 `json:"promoted" yaml:"promoted"`   // Moved from the queue to live
	Preempted uint64 `json:"preempted" yaml:"preempted"` // Live records evicted by a preempting request
	Expired   uint64 `json:"expired" yaml:"expired"`
	Dismissed uint64 `json:"dismissed" yaml:"dismissed"`
	Shutdown  uint64 `json:"shutdown" yaml:"shutdown"`
	Cancelled uint64 `json:"cancelled" yaml:"cancelled"` // Removed from the queue before admission
	Failed    uint64 `json:"failed" yaml:"failed"`       // Promotion could not construct an instance
}

// Entry describes one live or queued notification.
type Entry struct {
	ID          model.ID       `json:"id" yaml:"id"`
	Priority    model.Priority `json:"priority" yaml:"priority"`
	Kind        model.Kind     `json:"kind" yaml:"kind"`
	Title       string         `json:"title,omitempty" yaml:"title,omitempty"`
	State       model.State    `json:"state" yaml:"state"`
	SubmittedAt time.Time      `json:"submitted_at" yaml:"submitted_at"`
	Paused      bool           `json:"paused,omitempty" yaml:"paused,omitempty"`
	Remaining   time.Duration  `json:"remaining,omitempty" yaml:"remaining,omitempty"` // Zero when the notification never expires
}

// Manager is the admission controller. It owns the live set, bounded by
// admission.max_concurrent, and a FIFO overflow queue for everything else.
//
// A request at or above admission.preemption_threshold that arrives at
// capacity evicts the oldest live notification that is not already closing.
// The evicted record stays live until its exit transition completes, so the
// live set can briefly hold one record more than the limit.
type Manager struct {
	sched  eventloop.Scheduler
	pool   *pool.Pool
	anim   Animator
	config *config.Config
	logger *slog.Logger
	hooks  Hooks

	// Live records in admission order
	live      []*record
	liveIndex map[model.ID]*record

	// Requests waiting for a free slot
	queue *overflowQueue

	stats Stats
}

// NewManager creates a display manager. Instances are acquired from p, and
// every call must run on sched.
func NewManager(sched eventloop.Scheduler, p *pool.Pool, anim Animator, cfg *config.Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	return &Manager{
		sched:     sched,
		pool:      p,
		anim:      anim,
		config:    cfg.Clone(),
		logger:    logger,
		liveIndex: make(map[model.ID]*record),
		queue:     newOverflowQueue(),
	}
}

// SetHooks replaces the observability callbacks.
func (m *Manager) SetHooks(hooks Hooks) {
	m.hooks = hooks
}

// Submit requests a notification. It returns the new id and whether the
// request went live or was queued.
//
// Only an invalid request, an unknown kind, or a failure to construct a
// display instance is reported as an error. In every error case nothing was
// added to the live set or the queue and no live record was touched.
func (m *Manager) Submit(req model.Request) (model.ID, model.Outcome, error) {
	if err := req.Validate(); err != nil {
		return "", model.OutcomeQueued, err
	}
	if !m.pool.Has(req.Kind) {
		return "", model.OutcomeQueued, fmt.Errorf("%w: %q", pool.ErrUnknownKind, req.Kind)
	}
	if req.UsesDefaultTimeout() {
		req.Timeout = m.config.TimeoutFor(req.Priority)
	}

	id, err := model.NewID()
	if err != nil {
		return "", model.OutcomeQueued, err
	}

	rec := &record{
		id:          id,
		req:         req,
		state:       model.StateRequested,
		submittedAt: m.sched.Now(),
	}

	maxLive := m.config.Admission.MaxConcurrent

	// Room to display immediately
	if len(m.live) < maxLive {
		if err := m.admit(rec); err != nil {
			return "", model.OutcomeQueued, err
		}
		m.stats.Admitted++
		return rec.id, model.OutcomeAdmitted, nil
	}

	// At capacity but not over it: urgent enough requests preempt
	if req.Priority >= m.config.Admission.PreemptionThreshold && len(m.live) == maxLive {
		if victim := m.oldestClosable(); victim != nil {
			inst, err := m.acquire(rec)
			if err != nil {
				return "", model.OutcomeQueued, err
			}

			m.logger.Debug("preempting notification",
				"id", victim.id,
				"by", rec.id,
				"priority", req.Priority,
			)
			victim.coord.requestClose(model.CloseReasonPreempted)

			m.activate(rec, inst)
			m.stats.Admitted++
			return rec.id, model.OutcomeAdmitted, nil
		}
	}

	if err := m.enqueue(rec); err != nil {
		return "", model.OutcomeQueued, err
	}
	m.stats.Queued++
	return rec.id, model.OutcomeQueued, nil
}

// admit acquires an instance for rec and makes it live.
func (m *Manager) admit(rec *record) error {
	inst, err := m.acquire(rec)
	if err != nil {
		return err
	}
	m.activate(rec, inst)
	return nil
}

// acquire borrows an instance for rec and loads its content.
func (m *Manager) acquire(rec *record) (pool.Instance, error) {
	inst, err := m.pool.Acquire(rec.req.Kind)
	if err != nil {
		return nil, err
	}
	if p, ok := inst.(Presenter); ok {
		p.Present(ContentOf(rec.req))
	}
	return inst, nil
}

// activate inserts rec into the live set and starts its coordinator.
func (m *Manager) activate(rec *record, inst pool.Instance) {
	rec.inst = inst
	rec.state = model.StateAdmitted
	rec.coord = &coordinator{
		rec:      rec,
		sched:    m.sched,
		anim:     m.anim,
		logger:   m.logger,
		entered:  m.NotifyEntranceComplete,
		exited:   m.NotifyExitComplete,
		onClosed: m.onRecordClosed,
	}

	m.live = append(m.live, rec)
	m.liveIndex[rec.id] = rec

	m.logger.Debug("admitted notification",
		"id", rec.id,
		"priority", rec.req.Priority,
		"kind", rec.req.Kind,
		"timeout", rec.req.Timeout,
		"live", len(m.live),
	)

	m.hooks.admitted(rec)
	rec.coord.start()
}

func (m *Manager) enqueue(rec *record) error {
	if err := m.queue.Enqueue(rec); err != nil {
		return err
	}
	rec.state = model.StateQueued

	m.logger.Debug("queued notification",
		"id", rec.id,
		"priority", rec.req.Priority,
		"queue_size", m.queue.Len(),
	)

	m.hooks.queued(rec)
	return nil
}

// oldestClosable returns the earliest admitted record that is not already closing.
func (m *Manager) oldestClosable() *record {
	for _, rec := range m.live {
		if rec.state != model.StateClosing {
			return rec
		}
	}
	return nil
}

// onRecordClosed runs exactly once per live record, when its exit completes.
func (m *Manager) onRecordClosed(rec *record, reason model.CloseReason) {
	m.removeLive(rec.id)

	inst := rec.inst
	rec.inst = nil
	m.pool.Release(inst)

	switch reason {
	case model.CloseReasonExpired:
		m.stats.Expired++
	case model.CloseReasonDismissed:
		m.stats.Dismissed++
	case model.CloseReasonPreempted:
		m.stats.Preempted++
	case model.CloseReasonShutdown:
		m.stats.Shutdown++
	}

	m.logger.Debug("closed notification",
		"id", rec.id,
		"reason", reason,
		"live", len(m.live),
		"queue_size", m.queue.Len(),
	)

	m.hooks.closed(rec, reason)
	m.promote(true)
}

// promote runs queued requests back through admission, head first. A free
// slot admits the head; at capacity, a head at or above the preemption
// threshold evicts the oldest closable live record the same way Submit does.
// Preemption is skipped when preempt is false.
func (m *Manager) promote(preempt bool) {
	for {
		head, ok := m.queue.Peek()
		if !ok {
			return
		}

		maxLive := m.config.Admission.MaxConcurrent
		var victim *record
		switch {
		case len(m.live) < maxLive:
		case preempt && len(m.live) == maxLive && head.req.Priority >= m.config.Admission.PreemptionThreshold:
			if victim = m.oldestClosable(); victim == nil {
				return
			}
		default:
			return
		}

		m.queue.DequeueNext()
		inst, err := m.acquire(head)
		if err != nil {
			m.logger.Warn("failed to show queued notification",
				"id", head.id,
				"error", err,
			)
			head.state = model.StateCancelled
			m.stats.Failed++
			m.hooks.closed(head, model.CloseReasonFailed)
			continue
		}

		if victim != nil {
			m.logger.Debug("preempting notification",
				"id", victim.id,
				"by", head.id,
				"priority", head.req.Priority,
			)
			victim.coord.requestClose(model.CloseReasonPreempted)
		}
		m.activate(head, inst)
		m.stats.Promoted++
	}
}

func (m *Manager) removeLive(id model.ID) {
	delete(m.liveIndex, id)
	for i, rec := range m.live {
		if rec.id == id {
			m.live = append(m.live[:i], m.live[i+1:]...)
			return
		}
	}
}

// Close closes a notification. A queued request is cancelled immediately; a
// live one starts its exit transition. Closing an unknown, closing or closed
// id does nothing. It reports whether anything changed.
func (m *Manager) Close(id model.ID) bool {
	if rec, ok := m.queue.Remove(id); ok {
		m.cancel(rec, model.CloseReasonCancelled)
		return true
	}

	rec, ok := m.liveIndex[id]
	if !ok {
		return false
	}
	return rec.coord.requestClose(model.CloseReasonDismissed)
}

// cancel finishes a request that never went live.
func (m *Manager) cancel(rec *record, reason model.CloseReason) {
	rec.state = model.StateCancelled
	m.stats.Cancelled++

	m.logger.Debug("cancelled queued notification",
		"id", rec.id,
		"reason", reason,
	)

	m.hooks.closed(rec, reason)
}

// CloseAll cancels every queued request and closes every live notification.
func (m *Manager) CloseAll() int {
	n := 0
	for _, rec := range m.queue.Drain() {
		m.cancel(rec, model.CloseReasonShutdown)
		n++
	}

	// requestClose never removes from live inline, but copy anyway
	live := append([]*record(nil), m.live...)
	for _, rec := range live {
		if rec.coord.requestClose(model.CloseReasonShutdown) {
			n++
		}
	}
	return n
}

// NotifyEntranceComplete moves an entering notification to Visible.
func (m *Manager) NotifyEntranceComplete(id model.ID) {
	rec, ok := m.liveIndex[id]
	if !ok {
		m.logger.Debug("entrance complete for unknown notification", "id", id)
		return
	}
	if !rec.coord.entranceComplete() {
		// Closed before the entrance finished
		m.logger.Debug("ignoring entrance complete", "id", id, "state", rec.state)
	}
}

// NotifyExitComplete finishes a closing notification: its instance goes back
// to the pool, OnClosed fires and queued requests may be promoted. Calls for
// ids that are not closing are logged and ignored.
func (m *Manager) NotifyExitComplete(id model.ID) {
	rec, ok := m.liveIndex[id]
	if !ok {
		m.protocolViolation("exit complete", id, model.StateClosed)
		return
	}
	if !rec.coord.exitComplete() {
		m.protocolViolation("exit complete", id, rec.state)
	}
}

func (m *Manager) protocolViolation(op string, id model.ID, state model.State) {
	err := &ProtocolError{Op: op, ID: id, State: state}
	m.logger.Debug("ignoring lifecycle callback", "error", err)
}

// Pause freezes a live notification's timeout.
func (m *Manager) Pause(id model.ID) bool {
	rec, ok := m.liveIndex[id]
	if !ok {
		return false
	}
	return rec.coord.pause()
}

// Resume restarts a paused timeout with the time that was left.
func (m *Manager) Resume(id model.ID) bool {
	rec, ok := m.liveIndex[id]
	if !ok {
		return false
	}
	return rec.coord.resume()
}

// Status returns the state of a live or queued notification.
// Closed and unknown ids report false.
func (m *Manager) Status(id model.ID) (model.State, bool) {
	if rec, ok := m.liveIndex[id]; ok {
		return rec.state, true
	}
	if m.queue.Contains(id) {
		return model.StateQueued, true
	}
	return model.StateClosed, false
}

// Entries lists live notifications in admission order followed by the queue.
func (m *Manager) Entries() []Entry {
	entries := make([]Entry, 0, len(m.live)+m.queue.Len())
	for _, rec := range m.live {
		entry := entryOf(rec)
		if left, ok := rec.coord.timeLeft(); ok {
			entry.Remaining = left
		}
		entry.Paused = rec.coord.paused
		entries = append(entries, entry)
	}
	for _, rec := range m.queue.Records() {
		entries = append(entries, entryOf(rec))
	}
	return entries
}

func entryOf(rec *record) Entry {
	return Entry{
		ID:       rec.id,
		Priority: rec.req.Priority,
		Kind:     rec.req.Kind,
		Title:    rec.req.Title,
		State:    rec.state,

		SubmittedAt: rec.submittedAt,
	}
}

// LiveIDs returns live ids in admission order.
func (m *Manager) LiveIDs() []model.ID {
	ids := make([]model.ID, 0, len(m.live))
	for _, rec := range m.live {
		ids = append(ids, rec.id)
	}
	return ids
}

// QueuedIDs returns queued ids from head to tail.
func (m *Manager) QueuedIDs() []model.ID {
	return m.queue.IDs()
}

// ActiveCount returns the number of live notifications, including closing ones.
func (m *Manager) ActiveCount() int {
	return len(m.live)
}

// QueuedCount returns the number of queued requests.
func (m *Manager) QueuedCount() int {
	return m.queue.Len()
}

// TotalCount returns live plus queued.
func (m *Manager) TotalCount() int {
	return len(m.live) + m.queue.Len()
}

// UpdateConfig applies a new configuration. Raising max_concurrent promotes
// queued requests into the new slots straight away; a config change never
// evicts anything, so lowering it lets the live set drain down to the new limit.
func (m *Manager) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	m.config = cfg.Clone()
	m.pool.SetMaxSize(cfg.Pool.MaxSize)

	m.logger.Debug("display config updated",
		"max_concurrent", cfg.Admission.MaxConcurrent,
		"preemption_threshold", cfg.Admission.PreemptionThreshold,
	)

	m.promote(false)
}

// CleanupPool drops idle instances that can no longer be reused.
func (m *Manager) CleanupPool() int {
	return m.pool.Cleanup()
}

// PoolStats returns the instance pool counters.
func (m *Manager) PoolStats() pool.Stats {
	return m.pool.Stats()
}

// Stats returns the manager counters.
func (m *Manager) Stats() Stats {
	return m.stats
}
