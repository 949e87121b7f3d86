package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fastfare/internal/shared/config"
	"fastfare/internal/shared/logger"
)

func testConfig() config.WSConfig {
	return config.WSConfig{
		Path:           "/ws",
		SendBuffer:     8,
		MaxMessageSize: 4096,
		PingInterval:   time.Second,
		PongWait:       2 * time.Second,
		WriteWait:      time.Second,
	}
}

type echoHandler struct {
	mu        sync.Mutex
	connected []*Client
	closed    chan string
	reject    error
}

func (h *echoHandler) OnConnect(c *Client) error {
	if h.reject != nil {
		return h.reject
	}
	h.mu.Lock()
	h.connected = append(h.connected, c)
	h.mu.Unlock()
	return nil
}

func (h *echoHandler) OnMessage(c *Client, messageType string, data json.RawMessage) error {
	return c.SendJSON("echo-"+messageType, data)
}

func (h *echoHandler) OnClose(c *Client) { h.closed <- c.ID() }

func startServer(t *testing.T, h *echoHandler, auth AuthFunc) (*Server, string) {
	t.Helper()
	s := NewServer(testConfig(), auth, h, logger.Nop())
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestEchoRoundTripAndClose(t *testing.T) {
	h := &echoHandler{closed: make(chan string, 1)}
	s, url := startServer(t, h, nil)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?clientType=Driver&driverId=d1", nil)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(Message{Type: "hello", Data: json.RawMessage(`{"a":1}`)}))

	var got Message
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "echo-hello", got.Type)
	assert.JSONEq(t, `{"a":1}`, string(got.Data))

	h.mu.Lock()
	require.Len(t, h.connected, 1)
	assert.Equal(t, "driver", h.connected[0].Meta.ClientType)
	assert.Equal(t, "d1", h.connected[0].Meta.DriverID)
	h.mu.Unlock()
	assert.Equal(t, 1, s.Clients())

	require.NoError(t, conn.Close())
	select {
	case <-h.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called")
	}
}

func TestMalformedFrameGetsErrorEvent(t *testing.T) {
	h := &echoHandler{closed: make(chan string, 1)}
	_, url := startServer(t, h, nil)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	var got Message
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "error", got.Type)
}

func TestInvalidTokenRejectedBeforeUpgrade(t *testing.T) {
	h := &echoHandler{closed: make(chan string, 1)}
	auth := func(token string) (string, string, error) {
		if token == "good" {
			return "d9", "DRIVER", nil
		}
		return "", "", errors.New("bad token")
	}
	_, url := startServer(t, h, auth)

	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=bad", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token=good", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Message{Type: "ping"}))
	var got Message
	require.NoError(t, conn.ReadJSON(&got))

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.connected, 1)
	assert.Equal(t, "d9", h.connected[0].UserID)
	assert.Equal(t, "DRIVER", h.connected[0].Role)
}

func TestSendAfterCloseAndFullBuffer(t *testing.T) {
	c := &Client{id: "c1", send: make(chan []byte, 1), done: make(chan struct{})}

	require.NoError(t, c.Send([]byte("a")))
	assert.ErrorIs(t, c.Send([]byte("b")), ErrSendBufferFull)

	c.Close()
	c.Close()
	assert.ErrorIs(t, c.Send([]byte("c")), ErrClientClosed)
}

func TestParseMetaHeaders(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("X-Client-Type", "dashboard")
	r.Header.Set("X-Driver-Id", "d2")
	r.Header.Set("Authorization", "Bearer tok")

	m := ParseMeta(r)
	assert.Equal(t, ConnectMeta{ClientType: "dashboard", DriverID: "d2", Token: "tok"}, m)
}

func TestShutdownClosesClients(t *testing.T) {
	h := &echoHandler{closed: make(chan string, 1)}
	s, url := startServer(t, h, nil)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.Clients() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go func() {
		// the read pump exits once the peer answers the close frame
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	require.NoError(t, s.Shutdown(ctx))
	assert.Zero(t, s.Clients())
}
