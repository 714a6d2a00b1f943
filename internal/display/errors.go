package display

import (
	"errors"
	"fmt"

	"github.com/jmylchreest/alertd/internal/model"
)

var (
	// ErrDuplicateID is returned when an id is queued twice.
	ErrDuplicateID = errors.New("notification id already queued")

	// ErrProtocolViolation marks a lifecycle callback that arrived in the wrong state.
	ErrProtocolViolation = errors.New("lifecycle protocol violation")
)

// ProtocolError describes a lifecycle callback that does not match the record's state.
// These are expected under racing close triggers and are only logged.
type ProtocolError struct {
	Op    string
	ID    model.ID
	State model.State
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s for %s in state %s", e.Op, e.ID, e.State)
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocolViolation
}
