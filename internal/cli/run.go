package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/aretw0/weave/internal/presentation/tui"
	"github.com/aretw0/weave/pkg/domain"
)

// RunOptions contains all the configuration for the run command.
type RunOptions struct {
	ProgramPath string
	SessionID   string
	Ticks       int           // 0 runs until interrupted
	Interval    time.Duration // pause between ticks
	Fresh       bool          // delete the session before the first tick
	Report      bool          // print a markdown report at the end
	Quiet       bool          // no banner, no event lines
}

// Run executes the program file once per tick against a persisted session and
// prints every event. It stops after opts.Ticks ticks, on ctx cancellation, or on
// the first error.
func Run(ctx context.Context, app *App, opts RunOptions, out io.Writer) error {
	src, err := os.ReadFile(opts.ProgramPath)
	if err != nil {
		return fmt.Errorf("read program: %w", err)
	}
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = app.Config.Session.ID
	}

	if opts.Fresh {
		if err := app.Manager.Delete(ctx, sessionID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			return fmt.Errorf("reset session: %w", err)
		}
	}
	if !opts.Quiet {
		tui.PrintBanner(out)
	}

	var last *domain.State
	for tick := 0; opts.Ticks <= 0 || tick < opts.Ticks; tick++ {
		if ctx.Err() != nil {
			break
		}
		res, err := app.Manager.Execute(ctx, sessionID, string(src))
		if err != nil {
			return errors.New(domain.FormatSyntaxError(err, string(src)))
		}
		last = res.State
		if !opts.Quiet {
			for _, ev := range res.Events {
				fmt.Fprintf(out, "[%d] %s\n", res.State.Ticks, tui.EventStyle(string(ev.Type), ev.Message()))
			}
		}
		app.Logger.Debug("tick complete", "session_id", sessionID, "ticks", res.State.Ticks, "events", len(res.Events))

		if opts.Interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(opts.Interval):
			}
		}
	}

	if opts.Report && last != nil {
		md := tui.ReportMarkdown(last)
		rendered, err := tui.NewRenderer(terminalWidth(out))(md)
		if err != nil {
			rendered = md
		}
		fmt.Fprint(out, rendered)
	}
	return nil
}

// terminalWidth reports the width of out when it is a terminal, or 0.
func terminalWidth(out io.Writer) int {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return w
}
