package display

import "github.com/jmylchreest/alertd/internal/model"

// Hooks are observability callbacks for collaborator bookkeeping, such as a
// visible count. They run on the manager's scheduler and must not block.
type Hooks struct {
	OnAdmitted func(id model.ID, req model.Request)
	OnQueued   func(id model.ID, req model.Request)
	// OnClosed fires once per request that leaves the system, whether it
	// closed after being live or was cancelled while queued.
	OnClosed func(id model.ID, reason model.CloseReason)
}

func (h Hooks) admitted(rec *record) {
	if h.OnAdmitted != nil {
		h.OnAdmitted(rec.id, rec.req)
	}
}

func (h Hooks) queued(rec *record) {
	if h.OnQueued != nil {
		h.OnQueued(rec.id, rec.req)
	}
}

func (h Hooks) closed(rec *record, reason model.CloseReason) {
	if h.OnClosed != nil {
		h.OnClosed(rec.id, reason)
	}
}
