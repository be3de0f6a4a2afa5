package journal_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/weave"
	"github.com/aretw0/weave/pkg/adapters/journal"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/ports"
)

var _ ports.Observer = (*journal.Journal)(nil)

func TestJournal_RecordsInterpreterEvents(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer j.Close()

	interp := weave.New(
		weave.WithSessionID("robot"),
		weave.WithObserver(j),
		weave.WithSensor(ports.SensorFunc(func(context.Context, string) float64 { return 4 })),
		weave.WithModel("threshold", 5),
	)
	ctx := context.Background()
	require.NoError(t, interp.Execute(ctx, "tension light < threshold => move(1, 0)\nmetaweave turn rotate"))
	require.NoError(t, interp.Execute(ctx, "tension light < threshold => move(1, 0)"))

	entries, err := j.Query(ctx, "robot", 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	var msgs []string
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Seq)
		assert.NotEmpty(t, e.ID)
		msgs = append(msgs, e.Message)
	}
	assert.Equal(t, []string{"Tension: 1", "Defined new primitive: turn as rotate", "Tension: 1"}, msgs)
	assert.Equal(t, domain.EventMetaweave, entries[1].Event.Type)
	assert.Equal(t, "rotate", entries[1].Event.Action)
	assert.Equal(t, 2, entries[1].Event.Line)

	page, err := j.Query(ctx, "robot", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, int64(2), page[0].Seq)
}

func TestJournal_SessionsAreIndependent(t *testing.T) {
	j, err := journal.Open(":memory:")
	require.NoError(t, err)
	defer j.Close()
	ctx := context.Background()

	require.NoError(t, j.Append(ctx, domain.Event{Type: domain.EventMetaweave, SessionID: "a"}))
	require.NoError(t, j.Append(ctx, domain.Event{Type: domain.EventMetaweave, SessionID: "b"}))
	require.NoError(t, j.Append(ctx, domain.Event{Type: domain.EventMetaweave, SessionID: "a"}))

	n, err := j.Count(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	b, err := j.Query(ctx, "b", 0, 0)
	require.NoError(t, err)
	require.Len(t, b, 1)
	assert.Equal(t, int64(1), b[0].Seq)
}
