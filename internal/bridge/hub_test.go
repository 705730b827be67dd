package bridge

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barkit/barlink/internal/logging"
)

// dialHubClient upgrades a loopback connection and registers it with the
// hub, returning the registered client and the dialer side.
func dialHubClient(t *testing.T, h *Hub) (*client, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	registered := make(chan *client, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		registered <- h.Register(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	select {
	case c := <-registered:
		return c, ws
	case <-time.After(3 * time.Second):
		t.Fatal("client never registered")
		return nil, nil
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	h := NewHub(logging.NewDefault())

	c, _ := dialHubClient(t, h)
	assert.Equal(t, 1, h.Len())

	h.Unregister(c)
	assert.Zero(t, h.Len())

	// A repeat unregister of the same client is harmless.
	h.Unregister(c)
	assert.Zero(t, h.Len())
}

func TestHubBroadcastDelivers(t *testing.T) {
	h := NewHub(logging.NewDefault())

	_, ws := dialHubClient(t, h)
	h.Broadcast([]byte(`{"type":"ping"}`))

	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping"}`, string(data))
}

func TestHubSendDuringCloseAll(t *testing.T) {
	h := NewHub(logging.NewDefault())
	c, _ := dialHubClient(t, h)

	// Handler goroutines on hijacked connections outlive the HTTP server's
	// shutdown, so sends keep arriving while every client is being torn
	// down. None of them may reach a closed queue.
	var wg sync.WaitGroup
	start := make(chan struct{})
	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		for i := 0; i < 1000; i++ {
			h.Send(c, []byte("late frame"))
		}
	}()
	go func() {
		defer wg.Done()
		<-start
		for i := 0; i < 1000; i++ {
			h.Broadcast([]byte("late broadcast"))
		}
	}()

	close(start)
	time.Sleep(time.Millisecond)
	h.CloseAll()
	wg.Wait()

	assert.Zero(t, h.Len())
	h.Send(c, []byte("after teardown"))
}
