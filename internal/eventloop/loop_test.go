package eventloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_RunsPostedCallbacksInOrder(t *testing.T) {
	l := New(nil)
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	var order []int
	for i := range 5 {
		l.Post(func() { order = append(order, i) })
	}

	// Do runs after everything posted before it.
	require.NoError(t, l.Do(context.Background(), func() {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestLoop_AfterFunc(t *testing.T) {
	l := New(nil)
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	fired := make(chan struct{})
	l.AfterFunc(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer callback never ran")
	}
}

func TestLoop_AfterFuncStop(t *testing.T) {
	l := New(nil)
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	var fired atomic.Bool
	timer := l.AfterFunc(50*time.Millisecond, func() { fired.Store(true) })
	assert.True(t, timer.Stop())

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, l.Do(context.Background(), func() {}))
	assert.False(t, fired.Load())
}

func TestLoop_DoAfterStop(t *testing.T) {
	l := New(nil)
	require.NoError(t, l.Start(context.Background()))
	l.Stop()

	err := l.Do(context.Background(), func() {})
	assert.ErrorIs(t, err, ErrStopped)
	assert.False(t, l.IsRunning())
}

func TestLoop_SurvivesPanickingCallback(t *testing.T) {
	l := New(nil)
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	l.Post(func() { panic("boom") })

	ran := false
	require.NoError(t, l.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestManual_PostDoesNotRunInline(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	ran := false
	m.Post(func() { ran = true })
	assert.False(t, ran)
	assert.Equal(t, 1, m.Pending())

	assert.Equal(t, 1, m.RunPending())
	assert.True(t, ran)
}

func TestManual_RunPendingIncludesNestedPosts(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	var order []string
	m.Post(func() {
		order = append(order, "outer")
		m.Post(func() { order = append(order, "inner") })
	})

	assert.Equal(t, 2, m.RunPending())
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestManual_AdvanceFiresTimersInDeadlineOrder(t *testing.T) {
	start := time.Unix(100, 0)
	m := NewManual(start)

	var order []string
	var seenAt []time.Time
	m.AfterFunc(3*time.Second, func() {
		order = append(order, "c")
		seenAt = append(seenAt, m.Now())
	})
	m.AfterFunc(1*time.Second, func() {
		order = append(order, "a")
		seenAt = append(seenAt, m.Now())
	})
	m.AfterFunc(1*time.Second, func() { order = append(order, "b") })
	stopped := m.AfterFunc(2*time.Second, func() { order = append(order, "stopped") })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	m.Advance(2 * time.Second)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, start.Add(2*time.Second), m.Now())
	assert.Equal(t, 1, m.PendingTimers())

	m.Advance(5 * time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, []time.Time{start.Add(time.Second), start.Add(3 * time.Second)}, seenAt)
	assert.Equal(t, 0, m.PendingTimers())
}

func TestManual_TimerScheduledFromTimer(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			m.AfterFunc(time.Second, tick)
		}
	}
	m.AfterFunc(time.Second, tick)

	m.Advance(10 * time.Second)
	assert.Equal(t, 3, count)
}
