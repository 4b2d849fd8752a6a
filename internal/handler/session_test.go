package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connPair returns the server and client ends of one websocket connection.
func connPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	serverSide := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		serverSide <- conn
	}))
	t.Cleanup(srv.Close)

	client, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = client.Close() })
	return <-serverSide, client
}

func TestSession_SendQueueOverflow(t *testing.T) {
	server, _ := connPair(t)
	s := NewSession("s", server, 2, time.Minute)
	t.Cleanup(s.Close)

	before := testutil.ToFloat64(queueDropsMetric)
	require.NoError(t, s.Send(context.Background(), []byte("1")))
	require.NoError(t, s.Send(context.Background(), []byte("2")))
	assert.ErrorIs(t, s.Send(context.Background(), []byte("3")), ErrQueueFull)
	assert.Equal(t, 1.0, testutil.ToFloat64(queueDropsMetric)-before)
}

func TestSession_WritesInOrder(t *testing.T) {
	server, client := connPair(t)
	s := NewSession("s", server, 4, time.Minute)
	s.Start()
	t.Cleanup(s.Close)

	for _, m := range []string{"a", "b", "c"} {
		require.NoError(t, s.Send(context.Background(), []byte(m)))
	}
	for _, want := range []string{"a", "b", "c"} {
		require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, got, err := client.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	server, client := connPair(t)
	s := NewSession("s", server, 4, time.Minute)
	s.Start()

	s.Close()
	s.Close()
	assert.ErrorIs(t, s.Send(context.Background(), []byte("late")), ErrSessionClosed)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestSession_Pings(t *testing.T) {
	server, client := connPair(t)
	s := NewSession("s", server, 4, 20*time.Millisecond)
	s.Start()
	t.Cleanup(s.Close)

	pinged := make(chan struct{}, 1)
	client.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
}

func TestSession_CloseWithoutStart(t *testing.T) {
	server, client := connPair(t)
	s := NewSession("s", server, 4, time.Minute)

	start := time.Now()
	s.Close()
	assert.Less(t, time.Since(start), time.Second)

	s.Start()
	assert.ErrorIs(t, s.Send(context.Background(), []byte("late")), ErrSessionClosed)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	assert.Error(t, err)
}
