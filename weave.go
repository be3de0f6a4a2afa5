package weave

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"github.com/aretw0/weave/internal/compiler"
	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/internal/runtime"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/ports"
)

// Interpreter is the high-level entry point for embedding WeaveLang.
// It owns a domain.State and guards it with a single mutex held for the whole of
// each Execute call; every accessor synchronises on the same mutex.
//
// Sensors, actuators and observers are called while that mutex is held, so they
// must not call back into the same Interpreter.
type Interpreter struct {
	mu     sync.Mutex
	state  *domain.State
	parser *compiler.Parser
	eval   *runtime.Evaluator
	logger *slog.Logger

	// last parsed program, reused while the host keeps executing the same text
	lastSrc  string
	lastProg *compiler.Program
}

type config struct {
	sensor    ports.Sensor
	actuator  ports.Actuator
	observers ports.Observers
	rng       ports.RandomSource
	logger    *slog.Logger
	maxDepth  int
	state     *domain.State
	sessionID string
	model     map[string]float64
	vectors   map[string][]float64
}

// Option defines a functional option for configuring the Interpreter.
type Option func(*config)

// WithSensor sets the host's query channel. Without one every sensor reads 0.0.
func WithSensor(s ports.Sensor) Option {
	return func(c *config) {
		c.sensor = s
	}
}

// WithActuator sets the host's command channel. Without one actions are dropped.
func WithActuator(a ports.Actuator) Option {
	return func(c *config) {
		c.actuator = a
	}
}

// WithObserver adds an event sink. It may be given several times; events fan out
// in registration order.
func WithObserver(o ports.Observer) Option {
	return func(c *config) {
		c.observers = append(c.observers, o)
	}
}

// WithRandomSource replaces the drift random source.
func WithRandomSource(r ports.RandomSource) Option {
	return func(c *config) {
		c.rng = r
	}
}

// WithSeed makes drift reproducible by using a deterministic source seeded with seed.
func WithSeed(seed uint64) Option {
	return func(c *config) {
		c.rng = runtime.NewSeededSource(seed)
	}
}

// WithLogger sets a custom structured logger for the interpreter.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMaxDepth caps loop nesting (default compiler.DefaultMaxDepth).
func WithMaxDepth(depth int) Option {
	return func(c *config) {
		c.maxDepth = depth
	}
}

// WithState resumes from a previously saved state. The interpreter takes ownership of st.
func WithState(st *domain.State) Option {
	return func(c *config) {
		c.state = st
	}
}

// WithSessionID labels the state and every emitted event.
func WithSessionID(id string) Option {
	return func(c *config) {
		c.sessionID = id
	}
}

// WithModel pre-seeds a scalar model entry.
func WithModel(name string, value float64) Option {
	return func(c *config) {
		if c.model == nil {
			c.model = make(map[string]float64)
		}
		c.model[name] = value
	}
}

// WithVector pre-seeds a vector model entry.
func WithVector(name string, value ...float64) Option {
	return func(c *config) {
		if c.vectors == nil {
			c.vectors = make(map[string][]float64)
		}
		c.vectors[name] = value
	}
}

// New creates an interpreter with an empty (or resumed) state.
func New(opts ...Option) *Interpreter {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	st := cfg.state
	if st == nil {
		st = domain.NewState(cfg.sessionID)
	}
	st.Normalize()
	if cfg.sessionID != "" {
		st.SessionID = cfg.sessionID
	}
	for k, v := range cfg.model {
		st.Model[k] = v
	}
	for k, v := range cfg.vectors {
		st.SetVector(k, v)
	}

	logger := cfg.logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if st.SessionID != "" {
		logger = logger.With("session", st.SessionID)
	}

	evalOpts := []runtime.Option{
		runtime.WithSensor(cfg.sensor),
		runtime.WithActuator(cfg.actuator),
		runtime.WithRandomSource(cfg.rng),
		runtime.WithLogger(logger),
		runtime.WithMaxDepth(cfg.maxDepth),
	}
	switch len(cfg.observers) {
	case 0:
	case 1:
		evalOpts = append(evalOpts, runtime.WithObserver(cfg.observers[0]))
	default:
		evalOpts = append(evalOpts, runtime.WithObserver(cfg.observers))
	}

	return &Interpreter{
		state:  st,
		parser: compiler.NewParser(compiler.WithMaxDepth(cfg.maxDepth)),
		eval:   runtime.NewEvaluator(evalOpts...),
		logger: logger,
	}
}

// Execute parses src and, if it is well formed, evaluates it against the state.
// It is meant to be called once per control tick. A *domain.SyntaxError leaves the
// state untouched; a *domain.ResourceError raised during evaluation keeps the
// mutations of statements that already ran.
//
// ctx is handed to sensors, actuators and observers; evaluation itself always
// runs to completion.
func (in *Interpreter) Execute(ctx context.Context, src string) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	prog, err := in.parse(src)
	if err != nil {
		in.logger.Debug("parse failed", "err", err)
		return err
	}
	return in.run(ctx, prog)
}

// ExecuteProgram evaluates an already parsed program.
func (in *Interpreter) ExecuteProgram(ctx context.Context, prog *compiler.Program) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.run(ctx, prog)
}

func (in *Interpreter) run(ctx context.Context, prog *compiler.Program) error {
	if err := in.eval.Run(ctx, in.state, prog); err != nil {
		in.logger.Warn("execution aborted", "err", err)
		return err
	}
	in.state.Ticks++
	return nil
}

func (in *Interpreter) parse(src string) (*compiler.Program, error) {
	if in.lastProg != nil && src == in.lastSrc {
		return in.lastProg, nil
	}
	prog, err := in.parser.Parse(src)
	if err != nil {
		return nil, err
	}
	in.lastSrc, in.lastProg = src, prog
	return prog, nil
}

// Check parses src without evaluating it.
func (in *Interpreter) Check(src string) error {
	_, err := in.parser.Parse(src)
	return err
}

// Parse parses src with the interpreter's nesting limit.
func (in *Interpreter) Parse(src string) (*compiler.Program, error) {
	return in.parser.Parse(src)
}

// Model returns the scalar model value for name (0.0 if never written).
func (in *Interpreter) Model(name string) float64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state.Get(name)
}

// Vector returns a copy of the named vector model entry.
func (in *Interpreter) Vector(name string) ([]float64, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state.Vector(name)
}

// Coherence returns the coherence set by the last successful resolve.
func (in *Interpreter) Coherence() float64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state.Coherence
}

// TensionHistory returns a copy of every tension value recorded so far.
func (in *Interpreter) TensionHistory() []float64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]float64(nil), in.state.TensionHistory...)
}

// Primitives returns a copy of the metaweave primitive table.
func (in *Interpreter) Primitives() map[string]string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return maps.Clone(in.state.Primitives)
}

// Snapshot returns a deep copy of the whole state.
func (in *Interpreter) Snapshot() *domain.State {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state.Clone()
}

// SeedModel writes a scalar model entry from the host side.
func (in *Interpreter) SeedModel(name string, value float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.state.Model[name] = value
}

// SeedVector writes a vector model entry from the host side (e.g. a synced "position").
func (in *Interpreter) SeedVector(name string, value []float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.state.SetVector(name, value)
}

// Drift returns a drift candidate for param without changing any state.
func (in *Interpreter) Drift(param string) float64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.eval.Drift(in.state, param)
}
