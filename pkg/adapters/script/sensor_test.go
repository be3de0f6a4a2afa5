package script_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/weave/pkg/adapters/script"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensor_Read(t *testing.T) {
	ctx := context.Background()

	t.Run("Constant expression", func(t *testing.T) {
		s, err := script.New("c", "2.5 * 2")
		require.NoError(t, err)
		assert.Equal(t, 5.0, s.Read(ctx))
	})

	t.Run("Tick advances per reading", func(t *testing.T) {
		s, err := script.New("ramp", "tick * 10")
		require.NoError(t, err)
		assert.Equal(t, 0.0, s.Read(ctx))
		assert.Equal(t, 10.0, s.Read(ctx))
		assert.Equal(t, 20.0, s.Read(ctx))
	})

	t.Run("Model and vector bindings", func(t *testing.T) {
		s, err := script.New("rel", "model('threshold') - vector('position', 1) + vector('missing', 0)")
		require.NoError(t, err)
		assert.Equal(t, 0.0, s.Read(ctx), "unbound state reads zero")

		st := domain.NewState("")
		st.Model["threshold"] = 5
		st.SetVector("position", []float64{1, 2})
		s.Bind(st)
		st.Model["threshold"] = 100

		assert.Equal(t, 3.0, s.Read(ctx), "Bind copies the state")
	})

	t.Run("Statements use the completion value", func(t *testing.T) {
		s, err := script.New("stmts", "var x = 4; if (x > 3) { x * 2 } else { 0 }")
		require.NoError(t, err)
		assert.Equal(t, 8.0, s.Read(ctx))
	})
}

func TestSensor_StateSource(t *testing.T) {
	s, err := script.New("lvl", "model('level')", script.WithStateSource(session.StateFromContext))
	require.NoError(t, err)

	bound := domain.NewState("")
	bound.Model["level"] = 9
	s.Bind(bound)

	a := domain.NewState("a")
	a.Model["level"] = 1
	b := domain.NewState("b")
	b.Model["level"] = 2
	ctxA := session.ContextWithState(context.Background(), a)
	ctxB := session.ContextWithState(context.Background(), b)

	assert.Equal(t, 1.0, s.Read(ctxA))
	assert.Equal(t, 2.0, s.Read(ctxB))
	assert.Equal(t, 1.0, s.Read(ctxA), "readings follow the context, not the order of calls")
	assert.Equal(t, 9.0, s.Read(context.Background()), "falls back to the bound state")
}

func TestSensor_Failures(t *testing.T) {
	ctx := context.Background()

	_, err := script.New("bad", "1 +")
	assert.Error(t, err)

	thrower, err := script.New("throw", "throw new Error('boom')")
	require.NoError(t, err)
	assert.Equal(t, 0.0, thrower.Read(ctx))

	nan, err := script.New("nan", "'not a number'")
	require.NoError(t, err)
	assert.Equal(t, 0.0, nan.Read(ctx))

	spin, err := script.New("spin", "while (true) {}", script.WithTimeout(20*time.Millisecond))
	require.NoError(t, err)
	start := time.Now()
	assert.Equal(t, 0.0, spin.Read(ctx))
	assert.Less(t, time.Since(start), 2*time.Second)

	// The runtime is usable again after an interrupt.
	assert.Equal(t, 0.0, spin.Read(ctx))
}
