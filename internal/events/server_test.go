package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dialTestServer(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(s.HandleWebSocket))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func waitForClients(t *testing.T, s *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.GetClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client count never reached %d", want)
}

func TestBroadcastReachesClient(t *testing.T) {
	s := NewServer(zap.NewNop())
	conn := dialTestServer(t, s)
	waitForClients(t, s, 1)

	s.Broadcast("cameras", []map[string]string{{"id": "cam1"}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(msg, &event))
	assert.Equal(t, "cameras", event.Type)
	assert.Contains(t, string(event.Payload), "cam1")
}

func TestClientDisconnectUnregisters(t *testing.T) {
	s := NewServer(zap.NewNop())
	conn := dialTestServer(t, s)
	waitForClients(t, s, 1)

	conn.Close()
	waitForClients(t, s, 0)
}

func TestCloseDropsAllClients(t *testing.T) {
	s := NewServer(zap.NewNop())
	dialTestServer(t, s)
	dialTestServer(t, s)
	waitForClients(t, s, 2)

	s.Close()
	assert.Equal(t, 0, s.GetClientCount())
}

func TestCloseReleasesWritePumps(t *testing.T) {
	s := NewServer(zap.NewNop())
	dialTestServer(t, s)
	waitForClients(t, s, 1)

	s.mutex.RLock()
	var cl *Client
	for c := range s.clients {
		cl = c
	}
	s.mutex.RUnlock()
	require.NotNil(t, cl)

	// Close가 send 채널을 닫아야 writePump이 종료됨
	s.Close()

	select {
	case _, open := <-cl.send:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("send channel was not closed on shutdown")
	}
}
