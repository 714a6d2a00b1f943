package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/alertd/internal/model"
)

func TestTracker_Lifecycle(t *testing.T) {
	tr := NewTracker(10)
	req := model.Request{Priority: model.PriorityHigh}

	tr.Queued("a", req)
	assert.Equal(t, 1, tr.PendingCount())

	tr.Admitted("a", req)
	assert.Equal(t, 0, tr.PendingCount())
	assert.Equal(t, 1, tr.ActiveCount())

	tr.Closed("a", model.CloseReasonExpired)
	tr.Closed("a", model.CloseReasonDismissed)

	state, ok := tr.Get("a")
	require.True(t, ok)
	assert.Equal(t, DisplayStatusFinished, state.Status)
	assert.Equal(t, model.CloseReasonExpired, state.Reason, "first close wins")
	assert.Equal(t, model.PriorityHigh, state.Priority)
	assert.False(t, state.QueuedAt.IsZero())
	assert.False(t, state.ClosedAt.IsZero())
	assert.Equal(t, 0, tr.ActiveCount())
}

func TestTracker_BoundedHistory(t *testing.T) {
	tr := NewTracker(2)
	for _, id := range []model.ID{"a", "b", "c"} {
		tr.Admitted(id, model.Request{Priority: model.PriorityLow})
		tr.Closed(id, model.CloseReasonDismissed)
	}

	_, ok := tr.Get("a")
	assert.False(t, ok, "oldest finished entry is dropped")

	recent := tr.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, model.ID("c"), recent[0].ID)
	assert.Equal(t, model.ID("b"), recent[1].ID)

	assert.Len(t, tr.Recent(1), 1)
}

func TestDisplayStatus_String(t *testing.T) {
	assert.Equal(t, "pending", DisplayStatusPending.String())
	assert.Equal(t, "active", DisplayStatusActive.String())
	assert.Equal(t, "finished", DisplayStatusFinished.String())
	assert.Equal(t, "unknown", DisplayStatus(42).String())
}
