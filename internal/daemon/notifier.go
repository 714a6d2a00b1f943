package daemon

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jmylchreest/alertd/internal/model"
)

// NotificationLevel indicates the severity of an internal notification.
type NotificationLevel int

const (
	// NotificationLevelInfo is for informational messages (low priority).
	NotificationLevelInfo NotificationLevel = iota
	// NotificationLevelWarning is for warning messages (normal priority).
	NotificationLevelWarning
	// NotificationLevelError is for error messages (high priority).
	NotificationLevelError
)

// internalTimeout is how long internal notices stay up.
const internalTimeout = 5 * time.Second

// InternalNotifier submits notices about alertd's own events through the
// normal request path. The same key is not repeated within the minimum interval.
type InternalNotifier struct {
	mu     sync.Mutex
	logger *slog.Logger

	// Handler for submitting notifications
	notifyHandler func(req model.Request) error

	// Rate limiting, one gate per key
	gates       map[string]*rate.Sometimes
	minInterval time.Duration

	enabled bool
}

// NewInternalNotifier creates a new InternalNotifier.
func NewInternalNotifier(logger *slog.Logger) *InternalNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &InternalNotifier{
		logger:      logger,
		gates:       make(map[string]*rate.Sometimes),
		minInterval: 5 * time.Second,
		enabled:     true,
	}
}

// SetNotifyHandler sets the function used to submit a notice.
func (n *InternalNotifier) SetNotifyHandler(handler func(req model.Request) error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifyHandler = handler
}

// SetEnabled enables or disables internal notifications.
func (n *InternalNotifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// SetMinInterval sets the minimum interval between notices with the same key.
// Existing gates are reset.
func (n *InternalNotifier) SetMinInterval(interval time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if interval == n.minInterval {
		return
	}
	n.minInterval = interval
	n.gates = make(map[string]*rate.Sometimes)
}

// Notify submits a notice unless the same key fired within the minimum interval.
// It reports whether the notice was submitted.
func (n *InternalNotifier) Notify(key, title, message string, level NotificationLevel) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.enabled {
		return false
	}

	if n.notifyHandler == nil {
		n.logger.Debug("internal notification skipped: no handler", "title", title)
		return false
	}

	gate, ok := n.gates[key]
	if !ok {
		gate = &rate.Sometimes{Interval: n.minInterval}
		if n.minInterval <= 0 {
			// A zero Sometimes only ever fires once
			gate = &rate.Sometimes{Every: 1}
		}
		n.gates[key] = gate
	}

	sent := false
	gate.Do(func() {
		sent = true
	})
	if !sent {
		n.logger.Debug("internal notification rate-limited", "key", key, "title", title)
		return false
	}

	req := model.Request{
		Timeout: internalTimeout,
		Kind:    model.KindBanner,
		Title:   title,
		Message: message,
	}
	switch level {
	case NotificationLevelWarning:
		req.Priority = model.PriorityNormal
		req.Type = model.AlertTypeWarning
	case NotificationLevelError:
		req.Priority = model.PriorityHigh
		req.Type = model.AlertTypeError
	default:
		req.Priority = model.PriorityLow
		req.Type = model.AlertTypeInfo
	}

	n.logger.Debug("sending internal notification", "key", key, "title", title, "level", level)

	if err := n.notifyHandler(req); err != nil {
		n.logger.Warn("internal notification failed", "key", key, "error", err)
		return false
	}
	return true
}

// NotifyConfigReloaded sends a notice about the config being reloaded.
func (n *InternalNotifier) NotifyConfigReloaded() bool {
	return n.Notify(
		"config-reload",
		"Configuration Reloaded",
		"alertd configuration has been successfully reloaded.",
		NotificationLevelInfo,
	)
}

// NotifyConfigError sends a notice about a config validation error.
func (n *InternalNotifier) NotifyConfigError(err error) bool {
	return n.Notify(
		"config-error",
		"Configuration Error",
		"Failed to reload configuration: "+err.Error(),
		NotificationLevelWarning,
	)
}

// NotifyStartup sends a notice that the daemon has started.
func (n *InternalNotifier) NotifyStartup(version string) bool {
	return n.Notify(
		"startup",
		"alertd Started",
		"Notification daemon v"+version+" is now running.",
		NotificationLevelInfo,
	)
}
