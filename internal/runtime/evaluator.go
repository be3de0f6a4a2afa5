package runtime

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/aretw0/weave/internal/compiler"
	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/ports"
)

const (
	// ResolveThreshold is the exclusive upper bound on |observed - candidate| for a commit.
	ResolveThreshold = 2.0

	// DefaultDriftRange is the half-width of the drift interval while no tension has been recorded.
	DefaultDriftRange = 0.5

	// DriftScale multiplies the mean recorded tension to obtain the drift half-width.
	DriftScale = 0.1
)

// Evaluator executes parsed programs against a domain.State.
// It holds no state of its own; callers serialise access to the State they pass in.
type Evaluator struct {
	sensor   ports.Sensor
	actuator ports.Actuator
	observer ports.Observer
	rng      ports.RandomSource
	logger   *slog.Logger
	maxDepth int
	now      func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithSensor sets the query side of the host boundary. Without one every channel reads 0.0.
func WithSensor(s ports.Sensor) Option {
	return func(e *Evaluator) {
		e.sensor = s
	}
}

// WithActuator sets the command side of the host boundary. Without one actions are dropped.
func WithActuator(a ports.Actuator) Option {
	return func(e *Evaluator) {
		e.actuator = a
	}
}

// WithObserver sets the sink for tension, resolve and metaweave events.
func WithObserver(o ports.Observer) Option {
	return func(e *Evaluator) {
		e.observer = o
	}
}

// WithRandomSource replaces the source of drift draws.
func WithRandomSource(r ports.RandomSource) Option {
	return func(e *Evaluator) {
		if r != nil {
			e.rng = r
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMaxDepth caps loop nesting during evaluation. Values <= 0 select compiler.DefaultMaxDepth.
func WithMaxDepth(depth int) Option {
	return func(e *Evaluator) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEvaluator creates an evaluator with the given collaborators.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		rng:      DefaultSource,
		logger:   logging.NewNop(),
		maxDepth: compiler.DefaultMaxDepth,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run evaluates every statement of prog in source order.
// Sensing and resolution outcomes never fail; the only error is a
// *domain.ResourceError when loop nesting exceeds the configured depth.
func (e *Evaluator) Run(ctx context.Context, state *domain.State, prog *compiler.Program) error {
	if prog == nil {
		return nil
	}
	return e.block(ctx, state, prog.Statements, 0)
}

func (e *Evaluator) block(ctx context.Context, state *domain.State, stmts []compiler.Statement, depth int) error {
	for _, stmt := range stmts {
		if err := e.exec(ctx, state, stmt, depth); err != nil {
			return err
		}
	}
	return nil
}

func (e *Evaluator) exec(ctx context.Context, state *domain.State, stmt compiler.Statement, depth int) error {
	switch s := stmt.(type) {
	case *compiler.FieldStmt:
		state.Model[s.Name+".created"] = 1.0

	case *compiler.TensionStmt:
		e.tension(ctx, state, s)

	case *compiler.DriftStmt:
		candidate := e.Drift(state, s.Param)
		e.logger.Debug("drift", "param", s.Param, "base", state.Get(s.Param), "candidate", candidate)

	case *compiler.ResolveStmt:
		e.resolve(ctx, state, s)

	case *compiler.MetaweaveStmt:
		state.Primitives[s.Primitive] = s.Action
		e.emit(ctx, state, domain.Event{
			Type:      domain.EventMetaweave,
			Line:      s.At.Line,
			Primitive: s.Primitive,
			Action:    s.Action,
		})

	case *compiler.ExtendStmt:
		if s.Condition {
			state.Model[s.Key()] = s.Value
		}

	case *compiler.LoopStmt:
		if depth+1 > e.maxDepth {
			return &domain.ResourceError{Depth: depth + 1, Limit: e.maxDepth, Line: s.At.Line}
		}
		for i := uint64(0); i < s.Count; i++ {
			if err := e.block(ctx, state, s.Body.Statements, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Evaluator) tension(ctx context.Context, state *domain.State, s *compiler.TensionStmt) {
	observed := e.sense(ctx, s.Sensor)
	expected := state.Get(s.Param)
	t := math.Abs(observed - expected)
	state.TensionHistory = append(state.TensionHistory, t)

	fired := s.Comparator.Holds(observed, expected)
	if fired && e.actuator != nil {
		e.actuator.Act(ctx, s.Action.Name, s.Action.Value)
	}

	e.emit(ctx, state, domain.Event{
		Type:        domain.EventTension,
		Line:        s.At.Line,
		Sensor:      s.Sensor,
		Param:       s.Param,
		Observed:    observed,
		Tension:     t,
		Fired:       fired,
		Action:      s.Action.Name,
		ActionValue: s.Action.Value,
	})
}

func (e *Evaluator) resolve(ctx context.Context, state *domain.State, s *compiler.ResolveStmt) {
	observed := e.sense(ctx, s.Sensor)
	candidate := e.Drift(state, s.Param)
	t := math.Abs(observed - candidate)
	if !(t < ResolveThreshold) {
		e.logger.Debug("resolve skipped", "sensor", s.Sensor, "param", s.Param, "tension", t)
		return
	}

	state.Model[s.Param] = candidate
	state.Coherence = 1 / (1 + t)
	e.emit(ctx, state, domain.Event{
		Type:      domain.EventResolve,
		Line:      s.At.Line,
		Sensor:    s.Sensor,
		Param:     s.Param,
		Observed:  observed,
		Tension:   t,
		Candidate: candidate,
		Coherence: state.Coherence,
	})
}

// Drift returns a candidate value for param: the current model value plus a
// uniform draw in [-r, r), where r is DefaultDriftRange while the tension history
// is empty and DriftScale times its mean otherwise. State is not modified.
func (e *Evaluator) Drift(state *domain.State, param string) float64 {
	base := state.Get(param)
	r := DriftRange(state)
	if r == 0 {
		return base
	}
	return base + (e.rng.Float64()*2-1)*r
}

// DriftRange returns the half-width of the drift interval for state.
func DriftRange(state *domain.State) float64 {
	mean, ok := state.MeanTension()
	if !ok {
		return DefaultDriftRange
	}
	return mean * DriftScale
}

func (e *Evaluator) sense(ctx context.Context, name string) float64 {
	if e.sensor == nil {
		return 0
	}
	return e.sensor.Sense(ctx, name)
}

func (e *Evaluator) emit(ctx context.Context, state *domain.State, ev domain.Event) {
	ev.SessionID = state.SessionID
	ev.Timestamp = e.now()
	e.logger.Debug(ev.Message(), "type", ev.Type, "line", ev.Line)
	if e.observer != nil {
		e.observer.Observe(ctx, ev)
	}
}
