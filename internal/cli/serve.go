package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	weavehttp "github.com/aretw0/weave/pkg/adapters/http"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/session"
)

// Scheduler runs a program against one session on a cron schedule, giving the
// server an autonomous control loop between API calls.
type Scheduler struct {
	expr      *cronexpr.Expression
	manager   *session.Manager
	sessionID string
	src       string
	logger    *slog.Logger
	now       func() time.Time
}

// NewScheduler parses the cron expression (5, 6 or 7 fields; 7 includes seconds and years).
func NewScheduler(expr string, mgr *session.Manager, sessionID, src string, logger *slog.Logger) (*Scheduler, error) {
	e, err := cronexpr.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return &Scheduler{expr: e, manager: mgr, sessionID: sessionID, src: src, logger: logger, now: time.Now}, nil
}

// Next returns the next tick time after t, or the zero time if the schedule is exhausted.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.expr.Next(t)
}

// Run blocks until ctx is done or the schedule is exhausted. Tick errors are
// logged and do not stop the schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next := s.Next(s.now())
		if next.IsZero() {
			s.logger.Info("schedule exhausted", "session_id", s.sessionID)
			return nil
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		res, err := s.manager.Execute(ctx, s.sessionID, s.src)
		if err != nil {
			s.logger.Warn("scheduled tick failed", "session_id", s.sessionID, "err", err)
			continue
		}
		s.logger.Debug("scheduled tick", "session_id", s.sessionID, "ticks", res.State.Ticks, "events", len(res.Events))
	}
}

// ServeOptions configures the serve command.
type ServeOptions struct {
	Addr string
}

// Serve runs the HTTP API (and the configured schedule, if any) until ctx is done.
func Serve(ctx context.Context, app *App, opts ServeOptions) error {
	addr := opts.Addr
	if addr == "" {
		addr = app.Config.HTTP.Addr
	}

	handler := weavehttp.NewHandler(app.Manager,
		weavehttp.WithLogger(app.Logger),
		weavehttp.WithMaxDepth(app.Config.Interpreter.MaxDepth),
		weavehttp.WithMetricsHandler(promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{})),
	)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		app.Logger.Info("weave server listening", "address", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	if sc := app.Config.Schedule; sc.Cron != "" {
		if err := startSchedule(ctx, app, sc.Cron, sc.Program); err != nil {
			_ = srv.Close()
			return err
		}
	}

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		app.Logger.Info("weave server stopped gracefully")
		return nil
	}
}

func startSchedule(ctx context.Context, app *App, expr, programPath string) error {
	if programPath == "" {
		return errors.New("schedule.program is required with schedule.cron")
	}
	data, err := os.ReadFile(programPath)
	if err != nil {
		return fmt.Errorf("read scheduled program: %w", err)
	}
	if err := app.Host.checkProgram(string(data), app.Config.Interpreter.MaxDepth); err != nil {
		return errors.New(domain.FormatSyntaxError(err, string(data)))
	}
	sched, err := NewScheduler(expr, app.Manager, app.Config.Session.ID, string(data), app.Logger)
	if err != nil {
		return err
	}
	go func() {
		_ = sched.Run(ctx)
	}()
	app.Logger.Info("schedule started", "cron", expr, "program", programPath, "session_id", app.Config.Session.ID)
	return nil
}
