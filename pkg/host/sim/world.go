// Package sim provides a simulated light-seeker world for running WeaveLang
// programs without a physical host.
//
// The world has a point light and a robot on a plane. The "light" sensor reads
// an intensity that falls off linearly with distance, and the "move" actuator
// translates the robot.
package sim

import (
	"context"
	"math"
	"sync"

	"github.com/aretw0/weave/pkg/registry"
)

const (
	// DefaultFalloff is the intensity at distance zero; intensity reaches 0 at this distance.
	DefaultFalloff = 10.0

	// PositionKey is the vector model entry the world syncs after every tick.
	PositionKey = "position"
)

// VectorSeeder receives the robot position after each tick. *weave.Interpreter satisfies it.
type VectorSeeder interface {
	SeedVector(name string, value []float64)
}

// World is safe for concurrent use. There is one robot per World: every
// session served by a process that registers one World senses and moves the
// same robot, so concurrent sessions steer it together.
type World struct {
	mu      sync.Mutex
	light   [2]float64
	robot   [2]float64
	falloff float64
	moves   int
}

// Option configures a World.
type Option func(*World)

// WithLight places the light source.
func WithLight(x, y float64) Option {
	return func(w *World) {
		w.light = [2]float64{x, y}
	}
}

// WithRobot places the robot.
func WithRobot(x, y float64) Option {
	return func(w *World) {
		w.robot = [2]float64{x, y}
	}
}

// WithFalloff sets the distance at which intensity reaches zero.
func WithFalloff(f float64) Option {
	return func(w *World) {
		if f > 0 {
			w.falloff = f
		}
	}
}

// NewWorld creates a world with the light at (10, 10) and the robot at the origin.
func NewWorld(opts ...Option) *World {
	w := &World{light: [2]float64{10, 10}, falloff: DefaultFalloff}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Intensity returns max(0, falloff - distance(robot, light)).
func (w *World) Intensity() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return math.Max(0, w.falloff-w.distance())
}

// Distance returns the distance between robot and light.
func (w *World) Distance() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.distance()
}

func (w *World) distance() float64 {
	return math.Hypot(w.light[0]-w.robot[0], w.light[1]-w.robot[1])
}

// Move translates the robot by delta.
func (w *World) Move(delta [2]float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.robot[0] += delta[0]
	w.robot[1] += delta[1]
	w.moves++
}

// Seek moves the robot a fraction gain of the way toward the light.
func (w *World) Seek(gain float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.robot[0] += (w.light[0] - w.robot[0]) * gain
	w.robot[1] += (w.light[1] - w.robot[1]) * gain
	w.moves++
}

// Position returns the robot position.
func (w *World) Position() [2]float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.robot
}

// Moves counts the actions applied so far.
func (w *World) Moves() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.moves
}

// Register binds the world's channels:
// sensors "light" and "distance", actuators "move" (translate by value) and
// "seek" (approach the light by value[0], default 0.1).
func (w *World) Register(r *registry.Registry) {
	r.RegisterSensor("light", func(context.Context) float64 { return w.Intensity() })
	r.RegisterSensor("distance", func(context.Context) float64 { return w.Distance() })
	r.RegisterActuator("move", func(_ context.Context, _ string, v [2]float64) error {
		w.Move(v)
		return nil
	})
	r.RegisterActuator("seek", func(_ context.Context, _ string, v [2]float64) error {
		gain := v[0]
		if gain == 0 {
			gain = 0.1
		}
		w.Seek(gain)
		return nil
	})
}

// Sync publishes the robot position into the interpreter's vector model.
func (w *World) Sync(dst VectorSeeder) {
	p := w.Position()
	dst.SeedVector(PositionKey, p[:])
}
