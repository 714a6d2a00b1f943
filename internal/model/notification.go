// Package model defines the core data structures for alertd.
package model

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID identifies one submitted notification request for its entire lifetime.
// It is independent of the pooled display instance that backs it.
type ID string

// String returns the ID as a string.
func (id ID) String() string {
	return string(id)
}

// Kind names a concrete display instance type (e.g. "toast", "banner").
type Kind string

// Built-in display kinds.
const (
	KindToast  Kind = "toast"
	KindBanner Kind = "banner"
	KindAlert  Kind = "alert"
)

// AlertType is the semantic type of a notification, used by renderers for styling.
type AlertType string

const (
	AlertTypeInfo     AlertType = "info"
	AlertTypeSuccess  AlertType = "success"
	AlertTypeWarning  AlertType = "warning"
	AlertTypeError    AlertType = "error"
	AlertTypeCritical AlertType = "critical"
	AlertTypeNeutral  AlertType = "neutral"
)

// ValidAlertTypes returns all valid alert type values.
func ValidAlertTypes() []AlertType {
	return []AlertType{
		AlertTypeInfo,
		AlertTypeSuccess,
		AlertTypeWarning,
		AlertTypeError,
		AlertTypeCritical,
		AlertTypeNeutral,
	}
}

// Validation errors.
var (
	ErrInvalidPriority  = errors.New("priority must be between low (1) and urgent (4)")
	ErrEmptyKind        = errors.New("kind cannot be empty")
	ErrInvalidAlertType = errors.New("invalid alert type")
)

// DefaultTimeout tells the manager to use the configured timeout for the request's priority.
const DefaultTimeout time.Duration = -1

// Request describes a notification a caller wants displayed.
type Request struct {
	Priority Priority
	// Timeout is the visible lifetime. Zero means the notification never
	// expires; DefaultTimeout (any negative value) selects the per-priority default.
	Timeout time.Duration
	Kind    Kind
	Type    AlertType
	Title   string
	Message string
}

// Validate checks that the request can be submitted.
func (r *Request) Validate() error {
	if !r.Priority.Valid() {
		return ErrInvalidPriority
	}
	if r.Kind == "" {
		return ErrEmptyKind
	}
	if r.Type != "" {
		valid := false
		for _, t := range ValidAlertTypes() {
			if r.Type == t {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("%w: %q", ErrInvalidAlertType, r.Type)
		}
	}
	return nil
}

// UsesDefaultTimeout reports whether the request defers to the configured timeout.
func (r *Request) UsesDefaultTimeout() bool {
	return r.Timeout < 0
}

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a new process-unique notification ID.
// IDs generated by one process sort in issue order.
func NewID() (ID, error) {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate ULID: %w", err)
	}
	return ID(id.String()), nil
}
