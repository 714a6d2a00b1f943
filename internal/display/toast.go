package display

import (
	"github.com/jmylchreest/alertd/internal/model"
	"github.com/jmylchreest/alertd/internal/pool"
)

// Content is what a display instance shows.
type Content struct {
	Title    string
	Message  string
	Type     model.AlertType
	Priority model.Priority
}

// ContentOf extracts the displayable part of a request.
func ContentOf(req model.Request) Content {
	alertType := req.Type
	if alertType == "" {
		alertType = model.AlertTypeInfo
	}
	return Content{
		Title:    req.Title,
		Message:  req.Message,
		Type:     alertType,
		Priority: req.Priority,
	}
}

// Presenter is implemented by instances that can be loaded with content.
// The manager loads content right after acquiring an instance, since a
// reused instance may still hold whatever it showed last.
type Presenter interface {
	Present(c Content)
	Content() Content
}

// widget is the shared state of the built-in instance kinds.
type widget struct {
	serial   uint64
	content  Content
	disposed bool
}

// Serial returns the construction number of the instance. It survives reuse.
func (w *widget) Serial() uint64 { return w.serial }

// Present implements Presenter.
func (w *widget) Present(c Content) { w.content = c }

// Content implements Presenter.
func (w *widget) Content() Content { return w.content }

// Reset clears the content. A disposed widget cannot be reused.
func (w *widget) Reset() bool {
	if w.disposed {
		return false
	}
	w.content = Content{}
	return true
}

func (w *widget) Valid() bool { return !w.disposed }

func (w *widget) Dispose() {
	w.disposed = true
	w.content = Content{}
}

// Toast is a small stacked notification.
type Toast struct{ widget }

func (*Toast) Kind() model.Kind { return model.KindToast }

// Banner is a full-width message bar.
type Banner struct{ widget }

func (*Banner) Kind() model.Kind { return model.KindBanner }

// AlertBox is a boxed alert with a title line.
type AlertBox struct{ widget }

func (*AlertBox) Kind() model.Kind { return model.KindAlert }

// RegisterKinds registers factories for the built-in kinds with p.
// Serial numbers are shared across kinds.
func RegisterKinds(p *pool.Pool) {
	var serial uint64
	next := func() widget {
		serial++
		return widget{serial: serial}
	}

	p.Register(model.KindToast, func() (pool.Instance, error) {
		return &Toast{next()}, nil
	})
	p.Register(model.KindBanner, func() (pool.Instance, error) {
		return &Banner{next()}, nil
	})
	p.Register(model.KindAlert, func() (pool.Instance, error) {
		return &AlertBox{next()}, nil
	})
}

var (
	_ pool.Instance = (*Toast)(nil)
	_ pool.Instance = (*Banner)(nil)
	_ pool.Instance = (*AlertBox)(nil)
	_ Presenter     = (*Toast)(nil)
)
