package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/weave/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewState(sessionID)
		state.Model["threshold"] = 5.0
		state.Model["light.created"] = 1.0
		state.SetVector("position", []float64{0.5, -1.25})
		state.TensionHistory = []float64{1.0, 0.25}
		state.Coherence = 0.8
		state.Primitives["turn"] = "rotate"
		state.Ticks = 3

		require.NoError(t, store.Save(ctx, sessionID, state), "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, sessionID, loaded.SessionID)
		assert.Equal(t, 5.0, loaded.Model["threshold"])
		assert.Equal(t, 1.0, loaded.Model["light.created"])
		assert.Equal(t, []float64{0.5, -1.25}, loaded.VectorModel["position"])
		assert.Equal(t, []float64{1.0, 0.25}, loaded.TensionHistory)
		assert.Equal(t, 0.8, loaded.Coherence)
		assert.Equal(t, "rotate", loaded.Primitives["turn"])
		assert.Equal(t, uint64(3), loaded.Ticks)
	})

	t.Run("Load Is Isolated", func(t *testing.T) {
		state := domain.NewState(sessionID)
		state.Model["k"] = 1
		require.NoError(t, store.Save(ctx, sessionID, state))

		state.Model["k"] = 2
		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, 1.0, loaded.Model["k"], "mutating the saved pointer must not leak into the store")
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, sessionID, domain.NewState(sessionID)))
		require.NoError(t, store.Delete(ctx, sessionID), "Delete should not return error")

		_, err := store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		require.NoError(t, store.Save(ctx, id1, domain.NewState(id1)))
		require.NoError(t, store.Save(ctx, id2, domain.NewState(id2)))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
