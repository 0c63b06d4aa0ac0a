package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ngo-portal/event-chat/internal/domain"
	"github.com/ngo-portal/event-chat/pkg/httputil"

	"github.com/gorilla/websocket"
)

type Authenticator interface {
	Resolve(ctx context.Context, credential string) (*domain.User, error)
}

type ChatSvc interface {
	Authorize(ctx context.Context, userID, eventID string) error
	Post(ctx context.Context, senderID, eventID, content string) (*domain.Message, error)
}

type Config struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
	SendBuffer   int
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 64 << 10
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	return c
}

type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	auth     Authenticator
	chatSvc  ChatSvc
	cfg      Config
	log      *slog.Logger

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

func NewServer(hub *Hub, auth Authenticator, chat ChatSvc, cfg Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		hub:     hub,
		auth:    auth,
		chatSvc: chat,
		cfg:     cfg.withDefaults(),
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// WS endpoint: GET /ws?token=... (или Authorization: Bearer ...)
// Authentication happens here, before the upgrade, and never again.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.Resolve(r.Context(), credentialFrom(r))
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) {
			s.log.Debug("ws handshake rejected", "err", err)
			httputil.Error(r.Context(), w, http.StatusUnauthorized, "Authentication error")
			return
		}
		s.log.Error("ws handshake failed", "err", err)
		httputil.Error(r.Context(), w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if !s.track() {
		httputil.Error(r.Context(), w, http.StatusServiceUnavailable, "Server is shutting down")
		return
	}
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader уже ответил клиенту
		s.log.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWsConn(conn, *user, s.cfg.SendBuffer, s.log)
	if !s.register(c) {
		// Close начался между track и upgrade
		_ = c.Close()
		return
	}
	c.log.Info("ws connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(c)
	}()
	s.readLoop(context.WithoutCancel(r.Context()), c)

	s.hub.Remove(c)
	if err := c.Close(); err != nil {
		c.log.Debug("ws close failed", "err", err)
	}
	<-done
	c.log.Info("ws disconnected")
}

// Close rejects new connections, closes the open ones and waits for their
// handlers to finish or ctx to expire.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.hub.CloseAll()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

// register adds c to the hub unless Close has started. Close flips closing under
// the same mutex before CloseAll, so every registered connection gets closed.
func (s *Server) register(c Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.hub.Register(c)
	return true
}

func credentialFrom(r *http.Request) string {
	if tok := strings.TrimSpace(r.URL.Query().Get("token")); tok != "" {
		return tok
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(h string) string {
	if len(h) <= 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// readLoop handles one frame at a time, so a connection's own operations are
// processed in arrival order.
func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	c.conn.SetReadLimit(s.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.cfg.PingInterval))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("ws read failed", "err", err)
			}
			return
		}

		var in inbound
		if err := json.Unmarshal(data, &in); err != nil || in.Type == "" {
			c.reply(errorFrame(MsgInvalidFrame))
			continue
		}

		switch in.Type {
		case TypeJoinEvent:
			s.handleJoin(ctx, c, in.Payload)
		case TypeLeaveEvent:
			s.handleLeave(c, in.Payload)
		case TypeSendMessage:
			s.handleSend(ctx, c, in.Payload)
		default:
			c.reply(errorFrame(MsgUnknownType))
		}
	}
}

// handleJoin re-checks membership on every join. A denied join gets no answer.
func (s *Server) handleJoin(ctx context.Context, c *wsConn, raw json.RawMessage) {
	eventID, ok := decodeEventID(raw)
	if !ok {
		c.reply(errorFrame(MsgInvalidFrame))
		return
	}

	if err := s.chatSvc.Authorize(ctx, c.user.ID, eventID); err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			c.log.Debug("ws join denied", "event_id", eventID)
		} else {
			c.log.Error("ws join check failed", "event_id", eventID, "err", err)
		}
		return
	}

	s.hub.Join(eventID, c)
	c.reply(Envelope{Type: TypeJoinedEvent, Payload: RoomPayload{EventID: eventID}})
}

func (s *Server) handleLeave(c *wsConn, raw json.RawMessage) {
	eventID, ok := decodeEventID(raw)
	if !ok {
		c.reply(errorFrame(MsgInvalidFrame))
		return
	}
	s.hub.Leave(eventID, c)
	c.reply(Envelope{Type: TypeLeftEvent, Payload: RoomPayload{EventID: eventID}})
}

// handleSend persists the message and broadcasts it to the room. The sender
// gets exactly one error frame on failure and nothing is broadcast.
func (s *Server) handleSend(ctx context.Context, c *wsConn, raw json.RawMessage) {
	var p SendPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.reply(errorFrame(MsgInvalidFrame))
		return
	}
	eventID := strings.TrimSpace(p.EventID)

	unlock := s.hub.LockRoom(eventID)
	defer unlock()

	msg, err := s.chatSvc.Post(ctx, c.user.ID, eventID, p.Content)
	if err != nil {
		c.reply(errorFrame(sendErrorMessage(err)))
		if !errors.Is(err, domain.ErrValidation) && !errors.Is(err, domain.ErrForbidden) {
			c.log.Error("ws send failed", "event_id", eventID, "err", err)
		}
		return
	}

	n := s.hub.Broadcast(eventID, Envelope{Type: TypeNewMessage, Payload: msg})
	c.log.Debug("ws message broadcast", "event_id", eventID, "msg_id", msg.ID, "delivered", n)
}

func sendErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrContentTooLong):
		return MsgContentTooLong
	case errors.Is(err, domain.ErrValidation):
		return MsgContentRequired
	case errors.Is(err, domain.ErrForbidden):
		return MsgNotAuthorized
	default:
		return MsgSendFailed
	}
}

func (s *Server) writeLoop(c *wsConn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("ws write failed", "err", err)
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				c.log.Debug("ws ping failed", "err", err)
				_ = c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}
