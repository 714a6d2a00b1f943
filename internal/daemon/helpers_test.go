package daemon

import (
	"github.com/jmylchreest/alertd/internal/display"
	"github.com/jmylchreest/alertd/internal/model"
)

// displayHooksClosed forwards close reasons to ch without blocking.
func displayHooksClosed(ch chan<- model.CloseReason) display.Hooks {
	return display.Hooks{
		OnClosed: func(_ model.ID, reason model.CloseReason) {
			select {
			case ch <- reason:
			default:
			}
		},
	}
}
