package display

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/alertd/internal/eventloop"
	"github.com/jmylchreest/alertd/internal/model"
	"github.com/jmylchreest/alertd/internal/pool"
)

func TestTermRenderer_Kinds(t *testing.T) {
	tests := []struct {
		kind model.Kind
		want []string
	}{
		{model.KindToast, []string{"[high]", "Saved: 3 files"}},
		{model.KindBanner, []string{"SUCCESS", "Saved: 3 files"}},
		{model.KindAlert, []string{"Saved", "3 files", "[high]"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			p := pool.New(1, nil)
			RegisterKinds(p)
			inst, err := p.Acquire(tt.kind)
			require.NoError(t, err)
			inst.(Presenter).Present(ContentOf(model.Request{
				Priority: model.PriorityHigh,
				Kind:     tt.kind,
				Type:     model.AlertTypeSuccess,
				Title:    "Saved",
				Message:  "3 files",
			}))

			var out bytes.Buffer
			r := NewTermRenderer(&out)
			r.Show("01JABCDEFGHJKMNPQRSTVWXYZ0", inst)

			for _, want := range tt.want {
				assert.Contains(t, out.String(), want)
			}
			assert.Contains(t, out.String(), "#vwxyz0")

			out.Reset()
			r.Hide("01JABCDEFGHJKMNPQRSTVWXYZ0", inst)
			assert.Contains(t, out.String(), string(tt.kind))
		})
	}
}

func TestContentOf_DefaultsToInfo(t *testing.T) {
	c := ContentOf(model.Request{Priority: model.PriorityLow, Title: "hi"})
	assert.Equal(t, model.AlertTypeInfo, c.Type)
	assert.Equal(t, "hi", c.Title)
}

func TestWidget_ResetAndDispose(t *testing.T) {
	p := pool.New(1, nil)
	RegisterKinds(p)

	inst, err := p.Acquire(model.KindToast)
	require.NoError(t, err)
	toast := inst.(*Toast)
	toast.Present(Content{Title: "x"})

	p.Release(inst)
	assert.Empty(t, toast.Content().Title)
	assert.Equal(t, uint64(1), toast.Serial())

	toast.Dispose()
	assert.False(t, toast.Valid())
	assert.False(t, toast.Reset())
}

func TestTimedAnimator_Durations(t *testing.T) {
	sched := eventloop.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	a := NewTimedAnimator(sched, time.Second, time.Second, nil)
	a.SetDurations(10*time.Millisecond, 20*time.Millisecond)

	entered, exited := false, false
	a.Enter("a", &Toast{}, func() { entered = true })
	a.Exit("a", &Toast{}, func() { exited = true })

	sched.Advance(10 * time.Millisecond)
	assert.True(t, entered)
	assert.False(t, exited)

	sched.Advance(10 * time.Millisecond)
	assert.True(t, exited)
}
