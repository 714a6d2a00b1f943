package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/alertd/internal/simulate"
)

var simulateOpts struct {
	output string
}

var simulateCmd = &cobra.Command{
	Use:   "simulate <scenario.yaml>",
	Short: "Replay a notification scenario on a virtual clock",
	Long: `Replay a scripted scenario against the admission manager.

Time is virtual, so a scenario spanning minutes runs instantly and gives the
same result every time. The loaded config is the starting point; the
scenario's config section overrides parts of it.

Example scenario:

  name: urgent request preempts the oldest
  config:
    max_concurrent: 2
  steps:
    - notify: {name: X, priority: normal, timeout: 0}
    - notify: {name: Y, priority: normal, timeout: 0}
      advance: 1s
    - notify: {name: Z, priority: urgent, kind: alert}
    - at: 5s
      close: Y

Step actions: notify, close, enter, exit, pause, resume, close_all, capacity.
"at" moves the clock to an offset before the action, "advance" moves it
forward after. With "animator: manual", transitions only finish on enter
and exit steps.`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVarP(&simulateOpts.output, "output", "o", "text",
		"Output format (text, yaml)")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	sc, err := simulate.Load(args[0])
	if err != nil {
		return err
	}

	res, err := simulate.Run(sc, cfg, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch simulateOpts.output {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		return enc.Close()
	case "text", "":
		writeSimulation(out, res)
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text or yaml)", simulateOpts.output)
	}
}

// writeSimulation prints the event log followed by a summary.
func writeSimulation(w io.Writer, res *simulate.Result) {
	r := lipgloss.NewRenderer(w)
	heading := r.NewStyle().Bold(true)
	muted := r.NewStyle().Foreground(lipgloss.Color("8"))
	closed := r.NewStyle().Foreground(lipgloss.Color("9"))
	admitted := r.NewStyle().Foreground(lipgloss.Color("10"))

	if res.Scenario != "" {
		fmt.Fprintln(w, heading.Render(res.Scenario))
	}

	for _, ev := range res.Events {
		kind := fmt.Sprintf("%-9s", ev.Event)
		switch ev.Event {
		case simulate.EventAdmitted:
			kind = admitted.Render(kind)
		case simulate.EventClosed, simulate.EventRejected:
			kind = closed.Render(kind)
		case simulate.EventEntering, simulate.EventExiting:
			kind = muted.Render(kind)
		}

		line := fmt.Sprintf("%9s  %s %-12s", formatOffset(ev.At), kind, ev.Name)
		if ev.Priority != 0 {
			line += " " + ev.Priority.String()
		}
		if ev.Detail != "" {
			line += " " + muted.Render("("+ev.Detail+")")
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}

	st := res.Stats
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s requests over %s: %s admitted, %s queued, %s promoted, %s preempted\n",
		humanize.Comma(int64(res.Submitted())),
		res.Elapsed,
		humanize.Comma(int64(st.Admitted)),
		humanize.Comma(int64(st.Queued)),
		humanize.Comma(int64(st.Promoted)),
		humanize.Comma(int64(st.Preempted)),
	)
	fmt.Fprintf(w, "closed: %s expired, %s dismissed, %s shutdown, %s cancelled, %s failed\n",
		humanize.Comma(int64(st.Expired)),
		humanize.Comma(int64(st.Dismissed)),
		humanize.Comma(int64(st.Shutdown)),
		humanize.Comma(int64(st.Cancelled)),
		humanize.Comma(int64(st.Failed)),
	)
	fmt.Fprintf(w, "pool: %s created, %s reused\n",
		humanize.Comma(int64(res.Pool.Created)),
		humanize.Comma(int64(res.Pool.Reused)),
	)
	fmt.Fprintf(w, "live: %s\n", listOrNone(res.Live))
	fmt.Fprintf(w, "queued: %s\n", listOrNone(res.Queued))
}

// formatOffset renders a virtual time offset as seconds with millisecond precision.
func formatOffset(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}

func listOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
