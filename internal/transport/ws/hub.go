package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Client is one realtime connection as the hub sees it.
type Client interface {
	ID() string
	// Enqueue hands a pre-encoded frame to the connection without blocking;
	// false means the frame was dropped.
	Enqueue(frame []byte) bool
	Close() error
}

// Hub is the room registry: event id -> joined connections, plus the reverse
// index used to clean up on disconnect. State is in-process only.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[Client]struct{} // eventID -> set of connections
	clients map[Client]map[string]struct{} // connection -> joined eventIDs

	locksMu sync.Mutex
	locks   map[string]*roomLock

	log *slog.Logger
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		rooms:   make(map[string]map[Client]struct{}),
		clients: make(map[Client]map[string]struct{}),
		locks:   make(map[string]*roomLock),
		log:     log,
	}
}

// Register tracks a connection that has not joined any room yet.
func (h *Hub) Register(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		h.clients[c] = make(map[string]struct{})
	}
}

// Join adds c to the room; joining twice is a no-op.
func (h *Hub) Join(eventID string, c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[eventID]
	if !ok {
		rs = make(map[Client]struct{})
		h.rooms[eventID] = rs
	}
	rs[c] = struct{}{}

	joined, ok := h.clients[c]
	if !ok {
		joined = make(map[string]struct{})
		h.clients[c] = joined
	}
	joined[eventID] = struct{}{}
}

// Leave removes c from the room; leaving a room never joined is a no-op.
func (h *Hub) Leave(eventID string, c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveLocked(eventID, c)
}

func (h *Hub) leaveLocked(eventID string, c Client) {
	if rs, ok := h.rooms[eventID]; ok {
		delete(rs, c)
		if len(rs) == 0 {
			delete(h.rooms, eventID)
		}
	}
	if joined, ok := h.clients[c]; ok {
		delete(joined, eventID)
	}
}

// Remove drops c from every room it joined and forgets it.
func (h *Hub) Remove(c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for eventID := range h.clients[c] {
		h.leaveLocked(eventID, c)
	}
	delete(h.clients, c)
}

// Broadcast encodes v once and enqueues it to every connection joined to the
// room, sender included. Delivery is best-effort: a full queue drops the frame
// for that connection only.
func (h *Hub) Broadcast(eventID string, v any) int {
	frame, err := json.Marshal(v)
	if err != nil {
		h.log.Error("ws broadcast encode failed", "event_id", eventID, "err", err)
		return 0
	}

	h.mu.RLock()
	rs := h.rooms[eventID]
	targets := make([]Client, 0, len(rs))
	for c := range rs {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.Enqueue(frame) {
			delivered++
			continue
		}
		h.log.Warn("ws frame dropped", "event_id", eventID, "conn_id", c.ID())
	}
	return delivered
}

// LockRoom serializes writers of one room so that broadcast order follows
// persistence order. Other rooms are not blocked.
func (h *Hub) LockRoom(eventID string) (unlock func()) {
	h.locksMu.Lock()
	l, ok := h.locks[eventID]
	if !ok {
		l = &roomLock{}
		h.locks[eventID] = l
	}
	l.refs++
	h.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		h.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(h.locks, eventID)
		}
		h.locksMu.Unlock()
	}
}

// RoomSize reports how many connections are joined to the room.
func (h *Hub) RoomSize(eventID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[eventID])
}

// Joined reports whether c is currently joined to the room.
func (h *Hub) Joined(eventID string, c Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[eventID][c]
	return ok
}

// Connections reports how many connections are registered.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll closes every registered connection. Their handlers unregister
// them on the way out.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	all := make([]Client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()

	for _, c := range all {
		if err := c.Close(); err != nil {
			h.log.Debug("ws close failed", "conn_id", c.ID(), "err", err)
		}
	}
}
