package registry

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/aretw0/weave/internal/logging"
)

// Wildcard registers an actuator that receives every action without a dedicated channel.
const Wildcard = "*"

// SensorFunc produces the current reading of one channel.
type SensorFunc func(ctx context.Context) float64

// ActuatorFunc performs one action. Errors are logged, never propagated to the program.
type ActuatorFunc func(ctx context.Context, action string, value [2]float64) error

// Registry manages the host's named sensor and actuator channels.
// It implements ports.Sensor and ports.Actuator.
type Registry struct {
	mu        sync.RWMutex
	sensors   map[string]SensorFunc
	actuators map[string]ActuatorFunc
	logger    *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for dropped actions and actuator failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a new empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sensors:   make(map[string]SensorFunc),
		actuators: make(map[string]ActuatorFunc),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterSensor adds a sensor channel.
// If a channel with the same name exists, it is overwritten.
func (r *Registry) RegisterSensor(name string, fn SensorFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sensors[name] = fn
}

// RegisterActuator adds an actuator channel. Use Wildcard as name for a catch-all.
func (r *Registry) RegisterActuator(name string, fn ActuatorFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actuators[name] = fn
}

// Sense reads the named channel. Unknown channels read 0.0.
func (r *Registry) Sense(ctx context.Context, name string) float64 {
	r.mu.RLock()
	fn, ok := r.sensors[name]
	r.mu.RUnlock()

	if !ok {
		r.logger.Debug("unknown sensor", "sensor", name)
		return 0
	}
	return fn(ctx)
}

// Act dispatches the action to its channel, falling back to the wildcard channel.
// Actions with no channel at all are dropped.
func (r *Registry) Act(ctx context.Context, name string, value [2]float64) {
	r.mu.RLock()
	fn, ok := r.actuators[name]
	if !ok {
		fn, ok = r.actuators[Wildcard]
	}
	r.mu.RUnlock()

	if !ok {
		r.logger.Debug("action dropped", "action", name)
		return
	}
	if err := fn(ctx, name, value); err != nil {
		r.logger.Warn("actuator failed", "action", name, "err", err)
	}
}

// Sensors lists the registered sensor names in sorted order.
func (r *Registry) Sensors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.sensors)
}

// Actuators lists the registered actuator names in sorted order.
func (r *Registry) Actuators() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.actuators)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
