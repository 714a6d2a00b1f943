package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/alertd/internal/daemon"
	"github.com/jmylchreest/alertd/internal/display"
	"github.com/jmylchreest/alertd/internal/model"
)

// Session errors.
var (
	errUsage     = errors.New("usage")
	errNoMatch   = errors.New("no notification matches")
	errAmbiguous = errors.New("more than one notification matches")
	errUnquoted  = errors.New("unterminated quote")
)

const sessionHelp = `commands:
  notify <priority> <kind> <title> [message] [type=<type>] [timeout=<duration>]
  close <id>          close a live notification or cancel a queued one
  closeall            close everything
  pause <id>          freeze a notification's timeout
  resume <id>         restart a paused timeout
  status              show live and queued notifications
  history [n]         show recently finished notifications
  help                show this help
  quit                close everything and exit
ids may be abbreviated to any unique suffix, e.g. #4k2x9q`

// controller is the part of the service a session drives.
type controller interface {
	Request(ctx context.Context, req model.Request) (model.ID, model.Outcome, error)
	Close(ctx context.Context, id model.ID) (bool, error)
	CloseAll(ctx context.Context) (int, error)
	Pause(ctx context.Context, id model.ID) (bool, error)
	Resume(ctx context.Context, id model.ID) (bool, error)
	Snapshot(ctx context.Context) (daemon.Snapshot, error)
	Recent(n int) []daemon.DisplayState
}

// session interprets line commands typed at "alertd run".
type session struct {
	ctl controller
	out io.Writer
	now func() time.Time
}

func newSession(ctl controller, out io.Writer) *session {
	return &session{ctl: ctl, out: out, now: time.Now}
}

// exec runs one command line. It reports whether the session should end.
func (s *session) exec(ctx context.Context, line string) (bool, error) {
	args, err := splitFields(line)
	if err != nil {
		return false, err
	}
	if len(args) == 0 {
		return false, nil
	}

	cmd, args := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "notify", "n":
		return false, s.notify(ctx, args)
	case "close", "c":
		return false, s.withID(ctx, args, "close", s.ctl.Close)
	case "closeall":
		n, err := s.ctl.CloseAll(ctx)
		if err != nil {
			return false, err
		}
		s.printf("closing %d\n", n)
		return false, nil
	case "pause":
		return false, s.withID(ctx, args, "pause", s.ctl.Pause)
	case "resume":
		return false, s.withID(ctx, args, "resume", s.ctl.Resume)
	case "status", "s":
		return false, s.status(ctx)
	case "history":
		return false, s.history(args)
	case "help", "?":
		s.printf("%s\n", sessionHelp)
		return false, nil
	case "quit", "exit", "q":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

func (s *session) notify(ctx context.Context, args []string) error {
	var (
		positional []string
		req        = model.Request{Timeout: model.DefaultTimeout}
	)
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		switch {
		case ok && key == "type":
			req.Type = model.AlertType(strings.ToLower(value))
		case ok && key == "timeout":
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid timeout %q: %w", value, err)
			}
			req.Timeout = d
		default:
			positional = append(positional, arg)
		}
	}
	if len(positional) < 3 {
		return fmt.Errorf("%w: notify <priority> <kind> <title> [message]", errUsage)
	}

	prio, err := model.ParsePriority(positional[0])
	if err != nil {
		return err
	}
	req.Priority = prio
	req.Kind = model.Kind(strings.ToLower(positional[1]))
	req.Title = positional[2]
	req.Message = strings.Join(positional[3:], " ")

	id, outcome, err := s.ctl.Request(ctx, req)
	if err != nil {
		return err
	}
	s.printf("%s %s\n", outcome, display.ShortID(id))
	return nil
}

func (s *session) withID(ctx context.Context, args []string, verb string, fn func(context.Context, model.ID) (bool, error)) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: %s <id>", errUsage, verb)
	}
	id, err := s.resolve(ctx, args[0])
	if err != nil {
		return err
	}
	changed, err := fn(ctx, id)
	if err != nil {
		return err
	}
	if !changed {
		s.printf("%s: nothing to do for %s\n", verb, display.ShortID(id))
	}
	return nil
}

// resolve matches an id or a unique suffix of one against the live set and the queue.
func (s *session) resolve(ctx context.Context, ref string) (model.ID, error) {
	ref = strings.ToUpper(strings.TrimPrefix(ref, "#"))
	if ref == "" {
		return "", fmt.Errorf("%w: empty id", errNoMatch)
	}

	snap, err := s.ctl.Snapshot(ctx)
	if err != nil {
		return "", err
	}

	var matches []model.ID
	for _, entry := range append(snap.Live, snap.Queued...) {
		if entry.ID == model.ID(ref) {
			return entry.ID, nil
		}
		if strings.HasSuffix(string(entry.ID), ref) {
			matches = append(matches, entry.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w %q", errNoMatch, strings.ToLower(ref))
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w %q", errAmbiguous, strings.ToLower(ref))
	}
}

func (s *session) status(ctx context.Context) error {
	snap, err := s.ctl.Snapshot(ctx)
	if err != nil {
		return err
	}
	now := s.now()

	s.printf("live %d/%d, queued %d, up %s\n",
		len(snap.Live), snap.MaxConcurrent, len(snap.Queued),
		strings.TrimSpace(humanize.RelTime(now.Add(-snap.Uptime), now, "", "")))

	for _, entry := range snap.Live {
		s.printf("  %s\n", formatEntry(entry, now))
	}
	for _, entry := range snap.Queued {
		s.printf("  %s\n", formatEntry(entry, now))
	}

	st := snap.Stats
	s.printf("admitted %s, queued %s, promoted %s, preempted %s, expired %s, dismissed %s\n",
		humanize.Comma(int64(st.Admitted)),
		humanize.Comma(int64(st.Queued)),
		humanize.Comma(int64(st.Promoted)),
		humanize.Comma(int64(st.Preempted)),
		humanize.Comma(int64(st.Expired)),
		humanize.Comma(int64(st.Dismissed)),
	)
	s.printf("pool: %s active, %s created, %s reused\n",
		humanize.Comma(int64(snap.Pool.Active)),
		humanize.Comma(int64(snap.Pool.Created)),
		humanize.Comma(int64(snap.Pool.Reused)),
	)
	if len(snap.Kinds) > 0 {
		kinds := make([]string, len(snap.Kinds))
		for i, kind := range snap.Kinds {
			kinds[i] = string(kind)
		}
		s.printf("kinds: %s\n", strings.Join(kinds, ", "))
	}
	return nil
}

func (s *session) history(args []string) error {
	n := 10
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			return fmt.Errorf("%w: history [n]", errUsage)
		}
		n = v
	}

	recent := s.ctl.Recent(n)
	if len(recent) == 0 {
		s.printf("no finished notifications\n")
		return nil
	}
	for _, st := range recent {
		s.printf("  %s %-7s %-9s %s\n",
			display.ShortID(st.ID), st.Priority, st.Reason, humanize.Time(st.ClosedAt))
	}
	return nil
}

// formatEntry renders one status line.
func formatEntry(entry display.Entry, now time.Time) string {
	var left string
	switch {
	case entry.State == model.StateQueued && !entry.SubmittedAt.IsZero():
		left = "waiting " + strings.TrimSpace(humanize.RelTime(entry.SubmittedAt, now, "", ""))
	case entry.State == model.StateQueued:
		left = "waiting"
	case entry.Paused:
		left = "paused"
	case entry.Remaining > 0:
		left = humanize.RelTime(now, now.Add(entry.Remaining), "left", "overdue")
	default:
		left = "until closed"
	}
	return fmt.Sprintf("%s %-7s %-6s %-9s %-24q %s",
		display.ShortID(entry.ID), entry.Priority, entry.Kind, entry.State, entry.Title, left)
}

func (s *session) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}

// splitFields splits a command line on spaces, keeping single- or
// double-quoted runs together.
func splitFields(line string) ([]string, error) {
	var (
		fields []string
		cur    strings.Builder
		quote  rune
		inWord bool
	)
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				fields = append(fields, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, errUnquoted
	}
	if inWord {
		fields = append(fields, cur.String())
	}
	return fields, nil
}

// syncWriter serialises writes from the event loop and the command reader.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}
