package sim_test

import (
	"context"
	"math"
	"testing"

	"github.com/aretw0/weave"
	"github.com/aretw0/weave/pkg/host/sim"
	"github.com/aretw0/weave/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorld_Intensity(t *testing.T) {
	w := sim.NewWorld()
	assert.Equal(t, 0.0, w.Intensity(), "origin is farther than the falloff distance")

	w.Move([2]float64{7, 7})
	assert.InDelta(t, 10-math.Hypot(3, 3), w.Intensity(), 1e-9)

	near := sim.NewWorld(sim.WithLight(1, 0), sim.WithFalloff(4))
	assert.InDelta(t, 3.0, near.Intensity(), 1e-9)
}

func TestWorld_SeekConverges(t *testing.T) {
	w := sim.NewWorld()
	for i := 0; i < 100; i++ {
		w.Seek(0.1)
	}
	assert.InDelta(t, 0, w.Distance(), 1e-3)
	assert.Equal(t, 100, w.Moves())
}

func TestWorld_DrivesInterpreter(t *testing.T) {
	w := sim.NewWorld(sim.WithRobot(5, 5))
	r := registry.NewRegistry()
	w.Register(r)

	interp := weave.New(
		weave.WithSensor(r),
		weave.WithActuator(r),
		weave.WithModel("intensity", 5.0),
		weave.WithVector(sim.PositionKey, 0, 0),
	)

	// Intensity at (5,5) is 10 - 7.07 < 5, so the move fires.
	src := "tension light < intensity => move(1.0, 1.0)"
	require.NoError(t, interp.Execute(context.Background(), src))
	w.Sync(interp)

	pos, ok := interp.Vector(sim.PositionKey)
	require.True(t, ok)
	assert.Equal(t, []float64{6, 6}, pos)

	require.NoError(t, interp.Execute(context.Background(), "tension light < intensity => seek(0.5, 0)"))
	w.Sync(interp)
	pos, _ = interp.Vector(sim.PositionKey)
	assert.Equal(t, []float64{8, 8}, pos)
}
