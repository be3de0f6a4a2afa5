package ports

import (
	"context"

	"github.com/aretw0/weave/pkg/domain"
)

// Sensor is the query side of the host boundary.
// Sense must be total: unrecognized channel names return 0.0 rather than failing.
type Sensor interface {
	Sense(ctx context.Context, name string) float64
}

// SensorFunc adapts a function to the Sensor interface.
type SensorFunc func(ctx context.Context, name string) float64

func (f SensorFunc) Sense(ctx context.Context, name string) float64 { return f(ctx, name) }

// Actuator is the command side of the host boundary.
// Act is fire-and-forget: the interpreter never observes its result or failure.
type Actuator interface {
	Act(ctx context.Context, name string, value [2]float64)
}

// ActuatorFunc adapts a function to the Actuator interface.
type ActuatorFunc func(ctx context.Context, name string, value [2]float64)

func (f ActuatorFunc) Act(ctx context.Context, name string, value [2]float64) { f(ctx, name, value) }

// Observer receives one event per qualifying statement, in execution order.
type Observer interface {
	Observe(ctx context.Context, event domain.Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, event domain.Event)

func (f ObserverFunc) Observe(ctx context.Context, event domain.Event) { f(ctx, event) }

// RandomSource supplies uniform draws in [0, 1) for drift.
// *rand.Rand from math/rand/v2 satisfies it.
type RandomSource interface {
	Float64() float64
}

// Observers fans every event out to each observer in order. Nil entries are skipped.
type Observers []Observer

func (o Observers) Observe(ctx context.Context, event domain.Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(ctx, event)
		}
	}
}
