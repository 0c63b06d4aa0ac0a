package ws

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	full   bool
	closed bool
}

func (f *fakeClient) ID() string { return f.id }

func (f *fakeClient) Enqueue(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full || f.closed {
		return false
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeClient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func TestHub_BroadcastReachesJoinedOnly(t *testing.T) {
	req := require.New(t)
	h := NewHub(nil)
	a, b, c := &fakeClient{id: "a"}, &fakeClient{id: "b"}, &fakeClient{id: "c"}
	h.Register(c)
	h.Join("E1", a)
	h.Join("E1", b)
	h.Join("E2", c)

	req.Equal(2, h.Broadcast("E1", Envelope{Type: TypeNewMessage}))
	req.Equal(1, a.count())
	req.Equal(1, b.count())
	req.Zero(c.count())
}

func TestHub_JoinAndLeaveAreIdempotent(t *testing.T) {
	req := require.New(t)
	h := NewHub(nil)
	a := &fakeClient{id: "a"}

	h.Join("E1", a)
	h.Join("E1", a)
	req.Equal(1, h.RoomSize("E1"))
	req.Equal(1, h.Broadcast("E1", Envelope{Type: TypeNewMessage}))

	h.Leave("E1", a)
	h.Leave("E1", a)
	h.Leave("never-joined", a)
	req.Zero(h.RoomSize("E1"))
	req.False(h.Joined("E1", a))
	req.Equal(1, h.Connections())
}

func TestHub_RemoveDropsEveryMembership(t *testing.T) {
	req := require.New(t)
	h := NewHub(nil)
	a, b := &fakeClient{id: "a"}, &fakeClient{id: "b"}
	h.Join("E1", a)
	h.Join("E2", a)
	h.Join("E1", b)

	h.Remove(a)
	req.Equal(1, h.RoomSize("E1"))
	req.Zero(h.RoomSize("E2"))
	req.Equal(1, h.Connections())

	// удалённое соединение не должно мешать рассылке
	req.Equal(1, h.Broadcast("E1", Envelope{Type: TypeNewMessage}))
	req.Zero(h.Broadcast("E2", Envelope{Type: TypeNewMessage}))
}

func TestHub_FullQueueDropsForThatClientOnly(t *testing.T) {
	req := require.New(t)
	h := NewHub(nil)
	slow, fast := &fakeClient{id: "slow", full: true}, &fakeClient{id: "fast"}
	h.Join("E1", slow)
	h.Join("E1", fast)

	req.Equal(1, h.Broadcast("E1", Envelope{Type: TypeNewMessage}))
	req.Equal(1, fast.count())
	req.True(h.Joined("E1", slow))
}

func TestHub_CloseAll(t *testing.T) {
	h := NewHub(nil)
	a, b := &fakeClient{id: "a"}, &fakeClient{id: "b"}
	h.Register(a)
	h.Join("E1", b)

	h.CloseAll()
	require.True(t, a.closed)
	require.True(t, b.closed)
}

func TestHub_LockRoomSerializesPerRoom(t *testing.T) {
	req := require.New(t)
	h := NewHub(nil)

	unlock := h.LockRoom("E1")

	otherRoom := make(chan struct{})
	go func() {
		h.LockRoom("E2")()
		close(otherRoom)
	}()
	<-otherRoom

	sameRoom := make(chan struct{})
	go func() {
		h.LockRoom("E1")()
		close(sameRoom)
	}()
	select {
	case <-sameRoom:
		t.Fatal("second writer entered a locked room")
	default:
	}

	unlock()
	<-sameRoom

	h.locksMu.Lock()
	req.Empty(h.locks)
	h.locksMu.Unlock()
}

func TestDecodeEventID(t *testing.T) {
	req := require.New(t)

	id, ok := decodeEventID([]byte(`"E1"`))
	req.True(ok)
	req.Equal("E1", id)

	id, ok = decodeEventID([]byte(`{"eventId":" E1 "}`))
	req.True(ok)
	req.Equal("E1", id)

	for _, raw := range []string{`""`, `{}`, `42`, `null`, `[`} {
		_, ok = decodeEventID([]byte(raw))
		req.False(ok, raw)
	}
}
