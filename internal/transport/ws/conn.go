package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ngo-portal/event-chat/internal/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// wsConn owns one websocket. Only writeLoop writes data frames; everyone else
// goes through the buffered send queue.
type wsConn struct {
	id     string
	user   domain.User
	conn   *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
	log    *slog.Logger
}

func newWsConn(c *websocket.Conn, user domain.User, buffer int, log *slog.Logger) *wsConn {
	id := uuid.NewString()
	return &wsConn{
		id:     id,
		user:   user,
		conn:   c,
		send:   make(chan []byte, buffer),
		closed: make(chan struct{}),
		log:    log.With("conn_id", id, "user_id", user.ID),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Enqueue(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	case <-c.closed:
		return false
	default:
		return false
	}
}

// reply sends a frame to this connection only.
func (c *wsConn) reply(v Envelope) {
	frame, err := json.Marshal(v)
	if err != nil {
		c.log.Error("ws encode reply failed", "type", v.Type, "err", err)
		return
	}
	if !c.Enqueue(frame) {
		c.log.Warn("ws reply dropped", "type", v.Type)
	}
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}
