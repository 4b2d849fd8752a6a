package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/practice-robot/robot-bridge/internal/hub"
	"github.com/practice-robot/robot-bridge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUpstream struct {
	state string
	live  bool
}

func (f fakeUpstream) State() string { return f.state }
func (f fakeUpstream) Live() bool    { return f.live }

func newTestServer(t *testing.T, h *hub.Hub, opts Options) *httptest.Server {
	t.Helper()
	e := echo.New()
	hd := NewHandler(h, fakeUpstream{state: "READY", live: true}, opts)
	e.GET("/api/ws/robot", hd.RobotSocketHandler)
	e.GET("/api/status", hd.StatusHandler)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/robot" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) models.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := models.DecodeEnvelope(msg)
	require.NoError(t, err)
	return env
}

func TestRobotSocketHandler_AckThenPositions(t *testing.T) {
	h := hub.New(hub.Options{})
	srv := newTestServer(t, h, Options{QueueSize: 8, PingInterval: time.Minute})
	conn := dial(t, srv, "")

	ack := readEnvelope(t, conn)
	assert.Equal(t, models.EventConnected, ack.Event)
	assert.NotEmpty(t, ack.Data.(models.ConnectionAck).Message)

	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 10*time.Millisecond)
	for i := 1; i <= 3; i++ {
		require.NoError(t, h.Broadcast(context.Background(), models.Position{X: float64(i), Y: 1, Timestamp: int64(i)}))
	}
	for i := 1; i <= 3; i++ {
		env := readEnvelope(t, conn)
		require.Equal(t, models.EventPositionUpdate, env.Event)
		assert.Equal(t, models.Position{X: float64(i), Y: 1, Timestamp: int64(i)}, env.Data)
	}
}

func TestRobotSocketHandler_UnregistersOnDisconnect(t *testing.T) {
	h := hub.New(hub.Options{})
	srv := newTestServer(t, h, Options{QueueSize: 8, PingInterval: time.Minute})

	a := dial(t, srv, "")
	b := dial(t, srv, "?trace_id=0190b4a4-5c1e-7000-8000-000000000001")
	readEnvelope(t, a)
	readEnvelope(t, b)
	require.Eventually(t, func() bool { return h.Len() == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("ignored")))
	require.NoError(t, a.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return h.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.Broadcast(context.Background(), models.Position{X: 9}))
	assert.Equal(t, models.EventPositionUpdate, readEnvelope(t, b).Event)
}

func TestStatusHandler(t *testing.T) {
	h := hub.New(hub.Options{})
	srv := newTestServer(t, h, Options{})
	conn := dial(t, srv, "")
	readEnvelope(t, conn)

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, statusResponse{Status: "running", Connections: 1, Upstream: "READY", Live: true}, body)
}

func TestRobotSocketHandler_RejectsPlainHTTP(t *testing.T) {
	h := hub.New(hub.Options{})
	srv := newTestServer(t, h, Options{})

	resp, err := http.Get(srv.URL + "/api/ws/robot")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, h.Len())
}

func TestParseOrGenerateSessionID(t *testing.T) {
	tests := []struct {
		name  string
		param string
		ok    bool
		keep  bool
	}{
		{name: "valid uuid is kept", param: "0190b4a4-5c1e-7000-8000-000000000001", ok: true, keep: true},
		{name: "invalid uuid is replaced", param: "not-a-uuid", ok: true},
		{name: "missing param", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseOrGenerateSessionID(tt.param, tt.ok)
			if tt.keep {
				assert.Equal(t, tt.param, got)
				return
			}
			assert.NotEqual(t, tt.param, got)
			assert.Len(t, got, 36)
		})
	}
}
