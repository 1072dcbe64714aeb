package console

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialConsole(t *testing.T, c *Console) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(c.Handler)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn, srv.Close
}

func TestPublishBroadcastsToAttachedConn(t *testing.T) {
	c := New()
	defer c.Close()
	conn, closeSrv := dialConsole(t, c)
	defer closeSrv()
	defer conn.Close()

	require.Eventually(t, func() bool {
		c.mu.Lock()
		n := len(c.conns)
		c.mu.Unlock()
		return n == 1
	}, time.Second, time.Millisecond)

	c.Publish("processes: 1")

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "processes: 1", string(data))
}

func TestCloseRejectsNewAttachesAndClearsConns(t *testing.T) {
	c := New()
	conn, closeSrv := dialConsole(t, c)
	defer closeSrv()
	defer conn.Close()

	require.Eventually(t, func() bool {
		c.mu.Lock()
		n := len(c.conns)
		c.mu.Unlock()
		return n == 1
	}, time.Second, time.Millisecond)

	c.Close()
	c.mu.Lock()
	require.Empty(t, c.conns)
	require.True(t, c.closed)
	c.mu.Unlock()

	// Publish after Close is a no-op, not a panic.
	require.NotPanics(t, func() { c.Publish("ignored") })
}
