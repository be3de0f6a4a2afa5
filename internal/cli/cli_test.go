package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/weave/internal/config"
	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/session"
)

func writeProgram(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prog.weave")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func newTestApp(t *testing.T, mutate func(*config.Config)) *App {
	t.Helper()
	cfg := config.Default()
	cfg.Log.Level = "error"
	if mutate != nil {
		mutate(cfg)
	}
	app, err := NewApp(cfg, WithLogOutput(&bytes.Buffer{}))
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app
}

func TestBuildHost_Channels(t *testing.T) {
	cfg := config.Default()
	cfg.Interpreter.Seed = 7
	cfg.Host.Sensors = []config.ChannelSpec{
		{Name: "light", Kind: KindConstant, Params: map[string]any{"value": 3}},
		{Name: "noise", Kind: KindNoisy, Params: map[string]any{"base": 10, "amplitude": 0.5}},
		{Name: "coh", Kind: KindCoherence},
		{Name: "thr", Kind: KindModel, Params: map[string]any{"key": "threshold"}},
		{Name: "js", Kind: KindScript, Params: map[string]any{"source": "1 + 1", "timeout": "50ms"}},
	}
	cfg.Host.Actuators = []config.ChannelSpec{{Name: "*", Kind: KindLog}}

	h, err := BuildHost(cfg, logging.NewNop())
	require.NoError(t, err)
	defer h.Close()

	ctx := context.Background()
	assert.Equal(t, 3.0, h.Registry.Sense(ctx, "light"))
	assert.InDelta(t, 10, h.Registry.Sense(ctx, "noise"), 0.5)
	assert.Zero(t, h.Registry.Sense(ctx, "coh"), "nothing bound yet")

	st := domain.NewState("s")
	st.Coherence = 0.7
	st.Model["threshold"] = 4
	bound := session.ContextWithState(ctx, st)
	assert.Equal(t, 0.7, h.Registry.Sense(bound, "coh"))
	assert.Equal(t, 4.0, h.Registry.Sense(bound, "thr"))
	assert.Equal(t, 2.0, h.Registry.Sense(bound, "js"))

	assert.Equal(t, []string{"coh", "js", "light", "noise", "thr"}, h.Registry.Sensors())
	assert.Equal(t, []string{"*"}, h.Registry.Actuators())
	assert.Len(t, h.InterpreterOptions(), 5, "a seed adds the shared random source")
}

func TestBuildHost_NoisySensorsConcurrently(t *testing.T) {
	cfg := config.Default()
	cfg.Host.Sensors = []config.ChannelSpec{
		{Name: "a", Kind: KindNoisy, Params: map[string]any{"base": 1, "amplitude": 0.5}},
		{Name: "b", Kind: KindNoisy, Params: map[string]any{"base": -1, "amplitude": 0.5}},
	}
	h, err := BuildHost(cfg, logging.NewNop())
	require.NoError(t, err)
	defer h.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for _, name := range []string{"a", "b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			base := 1.0
			if name == "b" {
				base = -1
			}
			for i := 0; i < 1000; i++ {
				v := h.Registry.Sense(ctx, name)
				if v < base-0.5 || v > base+0.5 {
					t.Errorf("sensor %s read %v outside its band", name, v)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestHost_SessionsDoNotShareState(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) {
		c.Host.Sensors = []config.ChannelSpec{
			{Name: "coh", Kind: KindCoherence},
			{Name: "lvl", Kind: KindModel, Params: map[string]any{"key": "level"}},
			{Name: "js", Kind: KindScript, Params: map[string]any{"source": "model('level') * 10"}},
		}
	})
	ctx := context.Background()

	for id, level := range map[string]float64{"a": 1, "b": 2} {
		st := domain.NewState(id)
		st.Model["level"] = level
		st.Coherence = level / 10
		require.NoError(t, app.Manager.Save(ctx, id, st))
	}

	// Readings taken for a after b's state was loaded still see a's state.
	a, err := app.Manager.Load(ctx, "a")
	require.NoError(t, err)
	b, err := app.Manager.Load(ctx, "b")
	require.NoError(t, err)
	ctxA := session.ContextWithState(ctx, a)
	ctxB := session.ContextWithState(ctx, b)
	assert.Equal(t, 2.0, app.Host.Registry.Sense(ctxB, "lvl"))
	assert.Equal(t, 1.0, app.Host.Registry.Sense(ctxA, "lvl"))
	assert.Equal(t, 0.1, app.Host.Registry.Sense(ctxA, "coh"))
	assert.Equal(t, 20.0, app.Host.Registry.Sense(ctxB, "js"))
	assert.Equal(t, 10.0, app.Host.Registry.Sense(ctxA, "js"))

	src := "tension lvl > level => none(0, 0)\ntension js > level => none(0, 0)"
	var wg sync.WaitGroup
	for id, level := range map[string]float64{"a": 1, "b": 2} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				res, err := app.Manager.Execute(ctx, id, src)
				if !assert.NoError(t, err) || !assert.Len(t, res.Events, 2) {
					return
				}
				assert.Equal(t, level, res.Events[0].Observed, "session %s", id)
				assert.Equal(t, level*10, res.Events[1].Observed, "session %s", id)
			}
		}()
	}
	wg.Wait()
}

func TestBuildHost_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  func(*config.Config)
		want string
	}{
		{"unknown sensor kind", func(c *config.Config) {
			c.Host.Sensors = []config.ChannelSpec{{Name: "x", Kind: "radar"}}
		}, `sensor "x": unknown sensor kind "radar"`},
		{"unknown actuator kind", func(c *config.Config) {
			c.Host.Actuators = []config.ChannelSpec{{Name: "x", Kind: "servo"}}
		}, `actuator "x": unknown actuator kind "servo"`},
		{"mqtt without broker", func(c *config.Config) {
			c.Host.Sensors = []config.ChannelSpec{{Name: "x", Kind: KindMQTT}}
		}, "mqtt.broker is not configured"},
		{"exec without command", func(c *config.Config) {
			c.Host.Actuators = []config.ChannelSpec{{Name: "x", Kind: KindExec}}
		}, "exec channel needs a command"},
		{"unused param", func(c *config.Config) {
			c.Host.Sensors = []config.ChannelSpec{{Name: "x", Kind: KindConstant, Params: map[string]any{"valeu": 1}}}
		}, "valeu"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.cfg(cfg)
			_, err := BuildHost(cfg, logging.NewNop())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestHost_SeedWithSim(t *testing.T) {
	cfg := config.Default()
	cfg.Host.Sim = &config.SimConfig{Light: [2]float64{10, 0}, Robot: [2]float64{1, 2}}
	cfg.Session.Model = map[string]float64{"threshold": 5}

	h, err := BuildHost(cfg, logging.NewNop())
	require.NoError(t, err)

	st := domain.NewState("s")
	h.Seed(st)
	assert.Equal(t, 5.0, st.Model["threshold"])
	pos, ok := st.Vector("position")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2}, pos)
	assert.Contains(t, h.Registry.Sensors(), "light")
}

func TestBuildStore(t *testing.T) {
	ctx := context.Background()
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 32))

	backends := map[string]config.StoreConfig{
		"memory":    {Backend: "memory"},
		"file":      {Backend: "file", Path: t.TempDir()},
		"bolt":      {Backend: "bolt", Path: filepath.Join(t.TempDir(), "weave.db")},
		"encrypted": {Backend: "memory", EncryptionKey: key, Ephemeral: []string{"tmp.*"}},
	}
	for name, sc := range backends {
		t.Run(name, func(t *testing.T) {
			p, err := BuildStore(sc, logging.NewNop())
			require.NoError(t, err)
			defer p.Close()
			assert.Empty(t, p.ManagerOptions())

			st := domain.NewState("a")
			st.Model["kept"] = 1
			st.Model["tmp.x"] = 2
			require.NoError(t, p.Store.Save(ctx, "a", st))

			got, err := p.Store.Load(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, 1.0, got.Model["kept"])
			if name == "encrypted" {
				assert.NotContains(t, got.Model, "tmp.x")
			}
		})
	}

	_, err := BuildStore(config.StoreConfig{Backend: "etcd"}, logging.NewNop())
	assert.ErrorContains(t, err, `unknown store backend "etcd"`)

	_, err = BuildStore(config.StoreConfig{EncryptionKey: "not base64!"}, logging.NewNop())
	assert.ErrorContains(t, err, "store.encryption_key")
}

func TestRun_PersistsAndJournals(t *testing.T) {
	journalPath := filepath.Join(t.TempDir(), "journal.db")
	app := newTestApp(t, func(c *config.Config) {
		c.Journal.Path = journalPath
		c.Session.Model = map[string]float64{"threshold": 5}
	})
	ctx := context.Background()
	path := writeProgram(t, "field light\nmetaweave turn rotate")

	var out bytes.Buffer
	require.NoError(t, Run(ctx, app, RunOptions{ProgramPath: path, Ticks: 3}, &out))
	assert.Equal(t, 3, strings.Count(out.String(), "Defined new primitive: turn as rotate"))

	st, err := app.Manager.Load(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), st.Ticks)
	assert.Equal(t, 5.0, st.Model["threshold"])
	assert.Equal(t, 1.0, st.Model["light.created"])

	n, err := app.Journal.Count(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	out.Reset()
	require.NoError(t, Run(ctx, app, RunOptions{ProgramPath: path, Ticks: 1, Fresh: true, Quiet: true, Report: true}, &out))
	st, err = app.Manager.Load(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.Ticks, "fresh drops the old session")
	assert.NotContains(t, out.String(), "Defined new primitive")
	assert.Contains(t, out.String(), "Ticks")
}

func TestRun_SyntaxError(t *testing.T) {
	app := newTestApp(t, nil)
	path := writeProgram(t, "tension light <> threshold => move(1.0)")

	err := Run(context.Background(), app, RunOptions{ProgramPath: path, Ticks: 1, Quiet: true}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1:16")
	assert.Contains(t, err.Error(), "^")

	_, err = app.Manager.Load(context.Background(), "default")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestCheckAndGraph(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) {
		c.Host.Sensors = []config.ChannelSpec{{Name: "light", Kind: KindConstant}}
		c.Host.Actuators = []config.ChannelSpec{{Name: "move", Kind: KindLog}}
	})
	ctx := context.Background()

	path := writeProgram(t, "tension light < threshold => move(1, 0)\ntension sonar < threshold => jump(1, 0)")
	var out bytes.Buffer
	require.NoError(t, Check(app, path, false, &out))
	assert.Contains(t, out.String(), "unknown-sensor")
	assert.Contains(t, out.String(), "unknown-action")
	assert.Contains(t, out.String(), "2 statements, loop depth 0")

	err := Check(app, path, true, &bytes.Buffer{})
	assert.ErrorContains(t, err, "issues")

	out.Reset()
	require.NoError(t, Graph(ctx, app, path, "", &out))
	assert.True(t, strings.HasPrefix(out.String(), "graph LR"))

	err = Graph(ctx, app, path, "ghost", &bytes.Buffer{})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestScheduler(t *testing.T) {
	app := newTestApp(t, nil)

	_, err := NewScheduler("not a cron", app.Manager, "s", "field x", app.Logger)
	require.Error(t, err)

	hourly, err := NewScheduler("0 * * * *", app.Manager, "s", "field x", app.Logger)
	require.NoError(t, err)
	from := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC), hourly.Next(from))

	every, err := NewScheduler("* * * * * * *", app.Manager, "s", "field x", app.Logger)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	require.NoError(t, every.Run(ctx))

	st, err := app.Manager.Load(context.Background(), "s")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, st.Ticks, uint64(1))
	assert.Equal(t, 1.0, st.Model["x.created"])
}

func TestServe_RejectsBadSchedule(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) {
		c.HTTP.Addr = "127.0.0.1:0"
		c.Schedule.Cron = "* * * * *"
	})
	err := Serve(context.Background(), app, ServeOptions{})
	assert.ErrorContains(t, err, "schedule.program is required")
}

func TestExampleLightSeeker(t *testing.T) {
	dir := filepath.Join("..", "..", "examples", "light-seeker")
	cfg, err := config.Load(filepath.Join(dir, "weave.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "seeker", cfg.Session.ID)
	assert.Equal(t, "bolt", cfg.Store.Backend)

	cfg.Log.Level = "error"
	cfg.Store = config.StoreConfig{Backend: "memory", Ephemeral: cfg.Store.Ephemeral}
	cfg.Journal.Path = ""
	app, err := NewApp(cfg, WithLogOutput(&bytes.Buffer{}))
	require.NoError(t, err)
	defer app.Close()

	prog := filepath.Join(dir, "seek.weave")
	var out bytes.Buffer
	require.NoError(t, Check(app, prog, false, &out))
	assert.Contains(t, out.String(), "5 statements, loop depth 1")

	ctx := context.Background()
	require.NoError(t, Run(ctx, app, RunOptions{ProgramPath: prog, Ticks: 3, Quiet: true}, &bytes.Buffer{}))
	st, err := app.Manager.Load(ctx, "seeker")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), st.Ticks)
	assert.Equal(t, "move", st.Primitives["approach"])
	assert.NotContains(t, st.VectorModel, "position", "position is ephemeral")
	assert.Equal(t, 3, app.Host.World.Moves(), "light starts dimmer than the threshold")
}
