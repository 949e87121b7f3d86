// Package ws is the WebSocket transport: upgrade, connection metadata,
// per-connection read/write pumps and keepalive. It knows nothing about
// topics; frames are handed to a Handler.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"fastfare/internal/shared/config"
	"fastfare/internal/shared/logger"
	"fastfare/internal/shared/utils"

	"github.com/gorilla/websocket"
)

// AuthFunc validates a bearer token and returns its subject and role.
type AuthFunc func(token string) (userID, role string, err error)

// Handler receives connection lifecycle events. OnMessage is called from
// the connection's read pump, so calls for one client never overlap.
type Handler interface {
	OnConnect(c *Client) error
	OnMessage(c *Client, messageType string, data json.RawMessage) error
	OnClose(c *Client)
}

// ConnectMeta is the advisory metadata a client sends with the handshake.
type ConnectMeta struct {
	ClientType string
	DriverID   string
	Token      string
}

// Message is the {type, data} frame used in both directions.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type Server struct {
	cfg      config.WSConfig
	upgrader websocket.Upgrader
	auth     AuthFunc
	handler  Handler
	log      *logger.Logger

	mu      sync.Mutex
	clients map[string]*Client
	closing bool
	wg      sync.WaitGroup
}

func NewServer(cfg config.WSConfig, auth AuthFunc, handler Handler, log *logger.Logger) *Server {
	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboards and mobile apps connect from arbitrary origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		auth:    auth,
		handler: handler,
		log:     log,
		clients: make(map[string]*Client),
	}
}

// ParseMeta reads clientType, driverId and token from the query string,
// falling back to the X-Client-Type, X-Driver-Id and Authorization headers.
func ParseMeta(r *http.Request) ConnectMeta {
	q := r.URL.Query()
	m := ConnectMeta{
		ClientType: strings.ToLower(firstNonEmpty(q.Get("clientType"), r.Header.Get("X-Client-Type"))),
		DriverID:   firstNonEmpty(q.Get("driverId"), r.Header.Get("X-Driver-Id")),
		Token:      q.Get("token"),
	}
	if m.Token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			m.Token = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
	}
	return m
}

// ServeHTTP upgrades the request. Metadata is optional; a token that is
// present but does not validate is refused with 401 before the upgrade.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	meta := ParseMeta(r)

	var userID, role string
	if meta.Token != "" && s.auth != nil {
		var err error
		userID, role, err = s.auth(meta.Token)
		if err != nil {
			s.log.Warn(logger.Entry{
				Action:  "ws_auth_invalid_token",
				Message: r.RemoteAddr,
				Error:   &logger.ErrObj{Msg: err.Error()},
			})
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}
	}

	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if closing {
		http.Error(w, `{"error":"shutting down"}`, http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error(logger.Entry{
			Action:  "ws_upgrade_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
		return
	}

	c := &Client{
		id:     utils.NewUUID(),
		Meta:   meta,
		UserID: userID,
		Role:   role,
		conn:   conn,
		send:   make(chan []byte, s.cfg.SendBuffer),
		done:   make(chan struct{}),
		server: s,
	}

	if err := s.handler.OnConnect(c); err != nil {
		s.log.Warn(logger.Entry{
			Action:  "ws_connect_rejected",
			Message: c.ID(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		_ = conn.Close()
		return
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = conn.Close()
		s.handler.OnClose(c)
		return
	}
	s.clients[c.ID()] = c
	s.wg.Add(2)
	s.mu.Unlock()

	s.log.Info(logger.Entry{
		Action:   "ws_client_connected",
		Message:  c.ID(),
		DriverID: meta.DriverID,
		Additional: map[string]any{
			"client_type": meta.ClientType,
			"remote_addr": r.RemoteAddr,
		},
	})

	go c.writePump()
	go c.readPump()
}

// Clients returns the number of live connections.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Shutdown stops accepting upgrades, closes every client and waits for
// their pumps to exit or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) remove(c *Client) {
	s.mu.Lock()
	delete(s.clients, c.ID())
	s.mu.Unlock()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// errorFrame builds the error event sent for frames that cannot be decoded.
func errorFrame(msg string) []byte {
	data, _ := json.Marshal(map[string]string{"message": msg})
	b, _ := json.Marshal(Message{Type: "error", Data: data})
	return b
}

var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("send buffer full")
)
