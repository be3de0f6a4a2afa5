package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/weave/internal/adapters/file"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.StateStore = (*file.Store)(nil)

func TestFileStore_Contract(t *testing.T) {
	ports.RunStateStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_Details(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	t.Run("List on missing directory", func(t *testing.T) {
		ids, err := file.New(filepath.Join(dir, "nope")).List(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("Rejects unsafe ids", func(t *testing.T) {
		for _, id := range []string{"", "..", "a/b", `a\b`} {
			assert.Error(t, store.Save(ctx, id, domain.NewState(id)), id)
		}
	})

	t.Run("Overwrites and leaves no temp files", func(t *testing.T) {
		st := domain.NewState("s")
		st.Coherence = 0.1
		require.NoError(t, store.Save(ctx, "s", st))
		st.Coherence = 0.9
		require.NoError(t, store.Save(ctx, "s", st))

		loaded, err := store.Load(ctx, "s")
		require.NoError(t, err)
		assert.Equal(t, 0.9, loaded.Coherence)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "s.json", entries[0].Name())
	})

	t.Run("Partial documents are normalized", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "old.json"), []byte(`{"coherence":0.3}`), 0o644))
		loaded, err := store.Load(ctx, "old")
		require.NoError(t, err)
		assert.NotNil(t, loaded.Model)
		loaded.Model["x"] = 1
	})

	t.Run("Corrupt documents fail", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{`), 0o644))
		_, err := store.Load(ctx, "bad")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete missing is fine", func(t *testing.T) {
		assert.NoError(t, store.Delete(ctx, "ghost"))
	})
}
