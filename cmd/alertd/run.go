package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/alertd/internal/daemon"
	"github.com/jmylchreest/alertd/internal/display"
	"github.com/jmylchreest/alertd/internal/model"
)

var runOpts struct {
	noWatch bool
	quiet   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the notification manager interactively",
	Long: `Run the notification manager in the foreground.

Notifications are drawn on stdout as they enter and leave the screen.
Commands are read from stdin, one per line:

` + sessionHelp + `

The config file is watched and capacity, timeouts and animation lengths
are applied without dropping any notification. Press Ctrl+C or type quit
to close everything and exit.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runOpts.noWatch, "no-watch", false,
		"Don't reload the config file when it changes")
	runCmd.Flags().BoolVarP(&runOpts.quiet, "quiet", "q", false,
		"Don't print queue and close events")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := &syncWriter{w: cmd.OutOrStdout()}

	var hooks display.Hooks
	if !runOpts.quiet {
		hooks = eventHooks(out)
	}

	svc, err := daemon.New(cfg, daemon.Options{
		ConfigPath: configPath(),
		Watch:      !runOpts.noWatch,
		Renderer:   display.NewTermRenderer(out),
		Hooks:      hooks,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer svc.Stop()

	svc.Notifier().NotifyStartup(daemon.Version)

	sess := newSession(svc, out)
	lines := readLines(cmd.InOrStdin())

	for {
		select {
		case <-ctx.Done():
			logger.Info("received shutdown signal")
			return nil

		case line, ok := <-lines:
			if !ok {
				// stdin closed
				return nil
			}
			quit, err := sess.exec(ctx, line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// readLines feeds r to a channel until EOF.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// eventHooks prints queue and close events the renderer doesn't show.
func eventHooks(w *syncWriter) display.Hooks {
	muted := lipgloss.NewRenderer(w).NewStyle().Foreground(lipgloss.Color("8"))
	emit := func(format string, args ...any) {
		fmt.Fprintln(w, muted.Render(fmt.Sprintf(format, args...)))
	}

	return display.Hooks{
		OnQueued: func(id model.ID, req model.Request) {
			emit("  ~ queued %s [%s] %s", display.ShortID(id), req.Priority, req.Title)
		},
		OnClosed: func(id model.ID, reason model.CloseReason) {
			emit("  x %s %s", display.ShortID(id), reason)
		},
	}
}
