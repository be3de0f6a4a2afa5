package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/weave"
	"github.com/aretw0/weave/internal/config"
	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/adapters/journal"
	"github.com/aretw0/weave/pkg/observability"
	"github.com/aretw0/weave/pkg/ports"
	"github.com/aretw0/weave/pkg/session"
)

// App is everything a command needs: configuration, host channels, storage,
// the session manager and the observers attached to every tick.
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Host        *Host
	Persistence *Persistence
	Manager     *session.Manager
	Journal     *journal.Journal
	Metrics     *observability.Metrics
	Registry    *prometheus.Registry
}

// AppOption adds observers or session options before the manager is built.
type AppOption func(*appOptions)

type appOptions struct {
	observers []ports.Observer
	logOutput io.Writer
}

// WithObservers attaches observers to every tick the manager runs.
func WithObservers(obs ...ports.Observer) AppOption {
	return func(o *appOptions) {
		o.observers = append(o.observers, obs...)
	}
}

// WithLogOutput redirects logs (stderr by default).
func WithLogOutput(w io.Writer) AppOption {
	return func(o *appOptions) {
		o.logOutput = w
	}
}

// NewApp builds an App from cfg. Callers must Close it.
func NewApp(cfg *config.Config, opts ...AppOption) (*App, error) {
	o := appOptions{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	logger, err := createLogger(cfg.Log, o.logOutput)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}

	app.Host, err = BuildHost(cfg, logger)
	if err != nil {
		return nil, err
	}
	app.Persistence, err = BuildStore(cfg.Store, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	if cfg.Journal.Path != "" {
		app.Journal, err = journal.Open(cfg.Journal.Path, journal.WithLogger(logger))
		if err != nil {
			app.Close()
			return nil, err
		}
		o.observers = append(o.observers, app.Journal)
	}
	app.Metrics = observability.NewMetrics(app.Registry)
	o.observers = append(o.observers, app.Metrics)

	extra := make([]weave.Option, 0, len(o.observers))
	for _, obs := range o.observers {
		extra = append(extra, weave.WithObserver(obs))
	}
	sessOpts := append(app.Host.SessionOptions(extra...), app.Persistence.ManagerOptions()...)
	app.Manager = session.NewManager(app.Persistence.Store, sessOpts...)
	return app, nil
}

// Close releases every resource the App opened.
func (a *App) Close() {
	if a.Journal != nil {
		if err := a.Journal.Close(); err != nil {
			a.Logger.Warn("failed to close journal", "err", err)
		}
	}
	if a.Persistence != nil {
		if err := a.Persistence.Close(); err != nil {
			a.Logger.Warn("failed to close store", "err", err)
		}
	}
	if a.Host != nil {
		a.Host.Close()
	}
}

// createLogger configures the application logger from the log section.
func createLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	return logging.NewWithWriter(w, level, logging.Format(cfg.Format)), nil
}

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// It acts as a drop-in replacement for signal.NotifyContext but allows retrieving the signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sc.sigCh:
			sc.mu.Lock()
			sc.sigVal = sig
			sc.mu.Unlock()
			sc.Cancel()
		case <-sc.Context.Done():
		}
		sc.stop.Do(func() {
			signal.Stop(sc.sigCh)
		})
	}()

	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}
