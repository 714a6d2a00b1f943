package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	a, err := NewID()
	require.NoError(t, err)
	b, err := NewID()
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
	assert.Less(t, a.String(), b.String(), "ids should sort in issue order")
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Request)
		wantErr error
	}{
		{
			name:    "valid request",
			modify:  func(r *Request) {},
			wantErr: nil,
		},
		{
			name: "zero priority",
			modify: func(r *Request) {
				r.Priority = 0
			},
			wantErr: ErrInvalidPriority,
		},
		{
			name: "priority too high",
			modify: func(r *Request) {
				r.Priority = 5
			},
			wantErr: ErrInvalidPriority,
		},
		{
			name: "empty kind",
			modify: func(r *Request) {
				r.Kind = ""
			},
			wantErr: ErrEmptyKind,
		},
		{
			name: "unknown alert type",
			modify: func(r *Request) {
				r.Type = "fancy"
			},
			wantErr: ErrInvalidAlertType,
		},
		{
			name: "empty alert type is allowed",
			modify: func(r *Request) {
				r.Type = ""
			},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Request{
				Priority: PriorityNormal,
				Kind:     KindToast,
				Type:     AlertTypeInfo,
				Title:    "hello",
			}
			tt.modify(r)
			err := r.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequest_UsesDefaultTimeout(t *testing.T) {
	assert.True(t, (&Request{Timeout: DefaultTimeout}).UsesDefaultTimeout())
	assert.False(t, (&Request{Timeout: 0}).UsesDefaultTimeout())
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"low", PriorityLow, false},
		{"Normal", PriorityNormal, false},
		{" high ", PriorityHigh, false},
		{"urgent", PriorityUrgent, false},
		{"3", PriorityHigh, false},
		{"0", 0, true},
		{"critical", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePriority(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPriority)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPriority_TextRoundTrip(t *testing.T) {
	text, err := PriorityUrgent.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "urgent", string(text))

	var p Priority
	require.NoError(t, p.UnmarshalText([]byte("low")))
	assert.Equal(t, PriorityLow, p)

	_, err = Priority(9).MarshalText()
	assert.ErrorIs(t, err, ErrInvalidPriority)
}

func TestPriority_Ordering(t *testing.T) {
	assert.Less(t, PriorityLow, PriorityNormal)
	assert.Less(t, PriorityNormal, PriorityHigh)
	assert.Less(t, PriorityHigh, PriorityUrgent)
	assert.Equal(t, "unknown", Priority(42).String())
}

func TestState(t *testing.T) {
	assert.True(t, StateClosed.IsTerminal())
	assert.True(t, StateCancelled.IsTerminal())
	assert.False(t, StateClosing.IsTerminal())

	for _, s := range []State{StateAdmitted, StateEntering, StateVisible, StateClosing} {
		assert.True(t, s.IsLive(), s.String())
	}
	for _, s := range []State{StateRequested, StateQueued, StateClosed, StateCancelled} {
		assert.False(t, s.IsLive(), s.String())
	}
	assert.Equal(t, "visible", StateVisible.String())
	assert.Equal(t, "preempted", CloseReasonPreempted.String())
	assert.Equal(t, "queued", OutcomeQueued.String())
}
