// Package script implements sensors whose readings are computed by ECMAScript
// expressions evaluated with goja.
//
// Scripts see three bindings:
//
//	tick             number of readings taken so far by this sensor
//	model(name)      scalar model value from the current state (0 if absent)
//	vector(name, i)  element i of a vector model entry (0 if absent)
//
// The current state comes from the StateSource option when it yields one for the
// reading's context, and from the last Bind otherwise.
//
// The completion value of the script is the reading, e.g. "5 + Math.sin(tick / 10)".
package script

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/domain"
)

// DefaultTimeout bounds a single evaluation.
const DefaultTimeout = 100 * time.Millisecond

// Sensor is safe for concurrent use; evaluations are serialised.
type Sensor struct {
	name    string
	prog    *goja.Program
	timeout time.Duration
	logger  *slog.Logger
	source  StateSource

	mu    sync.Mutex
	vm    *goja.Runtime
	tick  int64
	state *domain.State
	view  *domain.State // state visible to the running evaluation
}

// StateSource resolves the state a reading is taken for.
type StateSource func(context.Context) *domain.State

// Option configures a Sensor.
type Option func(*Sensor)

// WithTimeout bounds each evaluation; a script that runs longer reads 0.
func WithTimeout(d time.Duration) Option {
	return func(s *Sensor) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger for script failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sensor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStateSource makes model() and vector() read the state fn returns for the
// reading's context. Sensors shared by several sessions need it.
func WithStateSource(fn StateSource) Option {
	return func(s *Sensor) {
		s.source = fn
	}
}

// New compiles src. Compilation errors are returned; runtime errors make the sensor read 0.
func New(name, src string, opts ...Option) (*Sensor, error) {
	prog, err := goja.Compile(name, src, true)
	if err != nil {
		return nil, fmt.Errorf("compile script sensor %q: %w", name, err)
	}

	s := &Sensor{
		name:    name,
		prog:    prog,
		timeout: DefaultTimeout,
		logger:  logging.NewNop(),
		vm:      goja.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.vm.Set("model", func(key string) float64 {
		if s.view == nil {
			return 0
		}
		return s.view.Get(key)
	})
	s.vm.Set("vector", func(key string, i int) float64 {
		if s.view == nil {
			return 0
		}
		v := s.view.VectorModel[key]
		if i < 0 || i >= len(v) {
			return 0
		}
		return v[i]
	})
	return s, nil
}

// Bind makes st visible to model() and vector(). The sensor keeps its own copy,
// so hosts can bind a snapshot taken between ticks.
func (s *Sensor) Bind(st *domain.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st == nil {
		s.state = nil
		return
	}
	s.state = st.Clone()
}

// Read evaluates the script once.
func (s *Sensor) Read(ctx context.Context) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.view = s.state
	if s.source != nil {
		if st := s.source(ctx); st != nil {
			s.view = st
		}
	}
	defer func() { s.view = nil }()

	s.vm.Set("tick", s.tick)
	s.tick++

	timer := time.AfterFunc(s.timeout, func() {
		s.vm.Interrupt("timeout")
	})
	v, err := s.vm.RunProgram(s.prog)
	timer.Stop()
	s.vm.ClearInterrupt()

	if err != nil {
		s.logger.WarnContext(ctx, "script sensor failed", "sensor", s.name, "err", err)
		return 0
	}
	f := v.ToFloat()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		s.logger.WarnContext(ctx, "script sensor returned a non-finite value", "sensor", s.name, "value", v.String())
		return 0
	}
	return f
}
