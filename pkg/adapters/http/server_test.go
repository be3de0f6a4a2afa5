package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/weave"
	weavehttp "github.com/aretw0/weave/pkg/adapters/http"
	"github.com/aretw0/weave/pkg/adapters/memory"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/observability"
	"github.com/aretw0/weave/pkg/ports"
	"github.com/aretw0/weave/pkg/session"
)

func newServer(t *testing.T, opts ...weavehttp.Option) (*weavehttp.Server, *httptest.Server) {
	t.Helper()
	mgr := session.NewManager(memory.NewStore(),
		session.WithInitializer(func(st *domain.State) { st.Model["threshold"] = 5 }),
		session.WithInterpreterOptions(
			weave.WithSensor(ports.SensorFunc(func(context.Context, string) float64 { return 4 })),
			weave.WithMaxDepth(2),
		),
	)
	srv := weavehttp.NewServer(mgr, opts...)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return srv, ts
}

func post(t *testing.T, url, src string) (*http.Response, map[string]any) {
	t.Helper()
	body, _ := json.Marshal(weavehttp.SourceRequest{Source: src})
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestServer_ExecuteLifecycle(t *testing.T) {
	_, ts := newServer(t)

	resp, out := post(t, ts.URL+"/sessions/robot/execute", "tension light < threshold => move(1, 0)")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := out["events"].([]any)
	require.Len(t, events, 1)
	assert.Equal(t, "tension", events[0].(map[string]any)["type"])
	state := out["state"].(map[string]any)
	assert.Equal(t, []any{1.0}, state["tension_history"])

	get, err := http.Get(ts.URL + "/sessions/robot")
	require.NoError(t, err)
	var st domain.State
	require.NoError(t, json.NewDecoder(get.Body).Decode(&st))
	get.Body.Close()
	assert.Equal(t, uint64(1), st.Ticks)
	assert.Equal(t, 5.0, st.Model["threshold"])

	list, err := http.Get(ts.URL + "/sessions")
	require.NoError(t, err)
	var ids map[string][]string
	require.NoError(t, json.NewDecoder(list.Body).Decode(&ids))
	list.Body.Close()
	assert.Equal(t, []string{"robot"}, ids["sessions"])

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/robot", nil)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)

	missing, err := http.Get(ts.URL + "/sessions/robot")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestServer_CreateSession(t *testing.T) {
	_, ts := newServer(t)

	resp, err := http.Post(ts.URL+"/sessions", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var st domain.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Len(t, st.SessionID, 36)
	assert.Equal(t, 5.0, st.Model["threshold"])
	assert.Equal(t, "/sessions/"+st.SessionID, resp.Header.Get("Location"))

	got, err := http.Get(ts.URL + "/sessions/" + st.SessionID)
	require.NoError(t, err)
	got.Body.Close()
	assert.Equal(t, http.StatusOK, got.StatusCode)
}

func TestServer_ErrorStatuses(t *testing.T) {
	_, ts := newServer(t)

	resp, out := post(t, ts.URL+"/sessions/s/execute", "tension light <> threshold => move(1.0)")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	syntax := out["syntax"].(map[string]any)
	assert.Equal(t, 1.0, syntax["line"])
	assert.Equal(t, 16.0, syntax["col"])
	assert.Equal(t, "tension", syntax["statement"])

	resp, _ = post(t, ts.URL+"/sessions/s/execute", "loop 1 { loop 1 { loop 1 { field x } } }")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	bad, err := http.Post(ts.URL+"/check", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestServer_Check(t *testing.T) {
	_, ts := newServer(t, weavehttp.WithMaxDepth(2))

	resp, out := post(t, ts.URL+"/check", "field a\nloop 2 { drift a }")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, out["valid"])
	assert.Equal(t, 2.0, out["statements"])
	assert.Equal(t, 1.0, out["depth"])

	resp, _ = post(t, ts.URL+"/check", "loop 1 { loop 1 { loop 1 { field x } } }")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	list, err := http.Get(ts.URL + "/sessions")
	require.NoError(t, err)
	var ids map[string][]string
	require.NoError(t, json.NewDecoder(list.Body).Decode(&ids))
	list.Body.Close()
	assert.Empty(t, ids["sessions"], "check never creates sessions")
}

func TestServer_HealthInfoMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	_, ts := newServer(t, weavehttp.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	for path, want := range map[string]string{
		"/healthz": `"status":"ok"`,
		"/info":    `"app":"weave-http"`,
	} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, buf.String(), want, path)
	}

	metrics.Observe(context.Background(), domain.Event{Type: domain.EventMetaweave})
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	resp.Body.Close()
	assert.Contains(t, buf.String(), `weave_events_total{type="metaweave"} 1`)
}

func TestServer_EventStream(t *testing.T) {
	srv, ts := newServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sessions/robot/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return srv.Streams.Subscribers("robot") == 1 }, time.Second, 10*time.Millisecond)

	resp, _ := post(t, ts.URL+"/sessions/robot/execute", "tension light < threshold => move(1, 0)\nmetaweave turn rotate")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	post(t, ts.URL+"/sessions/other/execute", "metaweave x y")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got []string
	for i := 0; i < 2; i++ {
		var ev domain.Event
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, "robot", ev.SessionID)
		got = append(got, ev.Message())
	}
	assert.Equal(t, []string{"Tension: 1", "Defined new primitive: turn as rotate"}, got)

	conn.Close()
	assert.Eventually(t, func() bool { return srv.Streams.Subscribers("robot") == 0 }, time.Second, 10*time.Millisecond)
}

func TestStreamManager_DropsWhenFull(t *testing.T) {
	sm := weavehttp.NewStreamManager(slogDiscard())
	ch, cancel := sm.Subscribe("s")
	for i := 0; i < 100; i++ {
		sm.Observe(context.Background(), domain.Event{SessionID: "s", Type: domain.EventMetaweave})
	}
	assert.Len(t, ch, cap(ch))
	cancel()
	cancel()
	assert.Zero(t, sm.Subscribers("s"))
}
