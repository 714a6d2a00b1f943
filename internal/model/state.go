package model

// State is the lifecycle state of a notification record.
type State int

const (
	// StateRequested means the request was submitted but not yet placed.
	StateRequested State = iota
	// StateQueued means the request waits in the overflow queue.
	StateQueued
	// StateAdmitted means the record is live and owns a display instance.
	StateAdmitted
	// StateEntering means the entrance transition is running.
	StateEntering
	// StateVisible means the entrance transition completed.
	StateVisible
	// StateClosing means the exit transition is running.
	StateClosing
	// StateClosed means the record finished and its instance went back to the pool.
	StateClosed
	// StateCancelled means the request left the queue without ever being admitted.
	StateCancelled
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateQueued:
		return "queued"
	case StateAdmitted:
		return "admitted"
	case StateEntering:
		return "entering"
	case StateVisible:
		return "visible"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition can happen from s.
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateCancelled
}

// IsLive reports whether a record in state s occupies a live slot.
func (s State) IsLive() bool {
	return s >= StateAdmitted && s <= StateClosing
}

// Outcome is the result of submitting a request.
type Outcome int

const (
	// OutcomeAdmitted means the request became live immediately.
	OutcomeAdmitted Outcome = iota
	// OutcomeQueued means the request waits for a free slot.
	OutcomeQueued
)

// String returns the string representation of Outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeAdmitted:
		return "admitted"
	case OutcomeQueued:
		return "queued"
	default:
		return "unknown"
	}
}

// CloseReason describes why a notification left the system.
type CloseReason int

const (
	// CloseReasonExpired means the timeout elapsed.
	CloseReasonExpired CloseReason = iota + 1
	// CloseReasonDismissed means the notification was closed explicitly.
	CloseReasonDismissed
	// CloseReasonPreempted means a higher-priority request took its slot.
	CloseReasonPreempted
	// CloseReasonCancelled means it was removed from the queue before admission.
	CloseReasonCancelled
	// CloseReasonFailed means a display instance could not be constructed on promotion.
	CloseReasonFailed
	// CloseReasonShutdown means every notification was closed at once.
	CloseReasonShutdown
)

// String returns the string representation of CloseReason.
func (r CloseReason) String() string {
	switch r {
	case CloseReasonExpired:
		return "expired"
	case CloseReasonDismissed:
		return "dismissed"
	case CloseReasonPreempted:
		return "preempted"
	case CloseReasonCancelled:
		return "cancelled"
	case CloseReasonFailed:
		return "failed"
	case CloseReasonShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// MarshalText implements encoding.TextMarshaler.
func (r CloseReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}
