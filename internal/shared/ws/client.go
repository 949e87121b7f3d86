package ws

import (
	"encoding/json"
	"sync"
	"time"

	"fastfare/internal/shared/logger"

	"github.com/gorilla/websocket"
)

// Client is one WebSocket connection. Send is safe for concurrent use and
// never blocks; the write pump owns the network writes.
type Client struct {
	Meta   ConnectMeta
	UserID string // token subject, empty without a token
	Role   string // token role

	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	server *Server

	mu     sync.Mutex
	closed bool
}

func (c *Client) ID() string { return c.id }

func (c *Client) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// SendJSON wraps data in a {type, data} frame.
func (c *Client) SendJSON(messageType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	b, err := json.Marshal(Message{Type: messageType, Data: raw})
	if err != nil {
		return err
	}
	return c.Send(b)
}

// Close signals both pumps to stop. Frames still queued are flushed by the
// write pump before the close frame.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

func (c *Client) readPump() {
	s := c.server
	defer func() {
		c.Close()
		_ = c.conn.Close()
		s.remove(c)
		s.handler.OnClose(c)
		s.wg.Done()
	}()

	c.conn.SetReadLimit(s.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Warn(logger.Entry{
					Action:  "ws_read_error",
					Message: c.ID(),
					Error:   &logger.ErrObj{Msg: err.Error()},
				})
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
			s.log.Warn(logger.Entry{
				Action:  "ws_parse_message_error",
				Message: c.ID(),
				Additional: map[string]any{
					"raw": truncate(string(raw), 256),
				},
			})
			_ = c.Send(errorFrame("malformed frame"))
			continue
		}

		if err := s.handler.OnMessage(c, msg.Type, msg.Data); err != nil {
			s.log.Warn(logger.Entry{
				Action:  "ws_handle_message_error",
				Message: err.Error(),
				Error:   &logger.ErrObj{Msg: err.Error()},
				Additional: map[string]any{
					"client_id": c.ID(),
					"msg_type":  msg.Type,
				},
			})
		}
	}
}

func (c *Client) writePump() {
	s := c.server
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		s.wg.Done()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			c.flush()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteWait))
	return c.conn.WriteMessage(messageType, data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
