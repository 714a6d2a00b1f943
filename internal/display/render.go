package display

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/jmylchreest/alertd/internal/model"
	"github.com/jmylchreest/alertd/internal/pool"
)

// Renderer draws and removes display instances.
type Renderer interface {
	Show(id model.ID, inst pool.Instance)
	Hide(id model.ID, inst pool.Instance)
}

// TermRenderer prints notifications as styled lines on a terminal.
type TermRenderer struct {
	mu sync.Mutex
	w  io.Writer
	r  *lipgloss.Renderer

	muted lipgloss.Style
}

// NewTermRenderer creates a renderer writing to w. Colors are only emitted
// when w is a terminal that supports them.
func NewTermRenderer(w io.Writer) *TermRenderer {
	r := lipgloss.NewRenderer(w)
	return &TermRenderer{
		w:     w,
		r:     r,
		muted: r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// typeColor maps an alert type to an ANSI color.
func typeColor(t model.AlertType) lipgloss.Color {
	switch t {
	case model.AlertTypeSuccess:
		return lipgloss.Color("10")
	case model.AlertTypeWarning:
		return lipgloss.Color("11")
	case model.AlertTypeError:
		return lipgloss.Color("9")
	case model.AlertTypeCritical:
		return lipgloss.Color("13")
	case model.AlertTypeNeutral:
		return lipgloss.Color("7")
	default: // info
		return lipgloss.Color("12")
	}
}

// Show implements Renderer.
func (t *TermRenderer) Show(id model.ID, inst pool.Instance) {
	t.write(t.render(id, inst))
}

// Hide implements Renderer.
func (t *TermRenderer) Hide(id model.ID, inst pool.Instance) {
	t.write(t.muted.Render(fmt.Sprintf("  - %s %s", inst.Kind(), ShortID(id))))
}

func (t *TermRenderer) render(id model.ID, inst pool.Instance) string {
	var c Content
	if p, ok := inst.(Presenter); ok {
		c = p.Content()
	}

	color := typeColor(c.Type)
	label := t.r.NewStyle().Bold(true).Foreground(color).Render(fmt.Sprintf("[%s]", c.Priority))

	text := c.Title
	if c.Message != "" {
		if text != "" {
			text += ": "
		}
		text += c.Message
	}
	suffix := t.muted.Render(ShortID(id))

	switch inst.Kind() {
	case model.KindBanner:
		return t.r.NewStyle().
			Reverse(true).
			Foreground(color).
			Padding(0, 1).
			Render(fmt.Sprintf("%s %s", strings.ToUpper(string(c.Type)), text)) + " " + suffix
	case model.KindAlert:
		body := t.r.NewStyle().Bold(true).Render(c.Title)
		if c.Message != "" {
			body += "\n" + c.Message
		}
		return t.r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(color).
			Padding(0, 1).
			Render(body) + "\n" + label + " " + suffix
	default:
		return fmt.Sprintf("  + %s %s %s", label, text, suffix)
	}
}

func (t *TermRenderer) write(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = fmt.Fprintln(t.w, s)
}

// ShortID returns the random tail of a ULID, enough to tell notifications apart.
func ShortID(id model.ID) string {
	s := string(id)
	if len(s) > 6 {
		s = s[len(s)-6:]
	}
	return "#" + strings.ToLower(s)
}

var _ Renderer = (*TermRenderer)(nil)
