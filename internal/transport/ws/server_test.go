package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ngo-portal/event-chat/internal/auth"
	"github.com/ngo-portal/event-chat/internal/badgerdb"
	"github.com/ngo-portal/event-chat/internal/domain"
	"github.com/ngo-portal/event-chat/internal/service"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type harness struct {
	url    string
	store  *badgerdb.Store
	hub    *Hub
	server *Server
	tokens *auth.JWTVerifier
	chat   *service.ChatService
}

// failingAppends keeps reads working and fails every write.
type failingAppends struct {
	service.MessageRepository
}

func (failingAppends) AppendMessage(context.Context, string, string, string) (*domain.Message, error) {
	return nil, errors.New("disk full")
}

func newHarness(t *testing.T, wrap ...func(service.MessageRepository) service.MessageRepository) *harness {
	t.Helper()
	ctx := context.Background()

	store, err := badgerdb.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	for _, id := range []string{"admin1", "vol1", "vol2"} {
		require.NoError(t, store.PutUser(ctx, domain.User{ID: id, Username: id, Email: id + "@example.org"}))
	}
	require.NoError(t, store.PutEvent(ctx, domain.Event{ID: "E1", CreatorID: "admin1", VolunteerIDs: []string{"vol1"}}))

	tokens := auth.NewJWTVerifier("test-secret", "", 0)
	var messages service.MessageRepository = store
	for _, w := range wrap {
		messages = w(messages)
	}
	chat := service.NewChatService(service.NewMembershipService(store), messages)
	hub := NewHub(nil)
	srv := NewServer(hub, auth.NewResolver(tokens, store), chat, Config{PingInterval: 5 * time.Second}, nil)

	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWS))
	t.Cleanup(func() {
		_ = srv.Close(context.Background())
		ts.Close()
	})

	return &harness{
		url:    "ws" + strings.TrimPrefix(ts.URL, "http"),
		store:  store,
		hub:    hub,
		server: srv,
		tokens: tokens,
		chat:   chat,
	}
}

func (h *harness) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	tok, err := h.tokens.Sign(userID, time.Hour)
	require.NoError(t, err)

	c, _, err := websocket.DefaultDialer.Dial(h.url+"?token="+tok, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func send(t *testing.T, c *websocket.Conn, typ string, payload any) {
	t.Helper()
	require.NoError(t, c.WriteJSON(map[string]any{"type": typ, "payload": payload}))
}

func read(t *testing.T, c *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f frame
	require.NoError(t, c.ReadJSON(&f))
	return f
}

func readMessage(t *testing.T, c *websocket.Conn) domain.Message {
	t.Helper()
	f := read(t, c)
	require.Equal(t, TypeNewMessage, f.Type)
	var m domain.Message
	require.NoError(t, json.Unmarshal(f.Payload, &m))
	return m
}

func readError(t *testing.T, c *websocket.Conn) string {
	t.Helper()
	f := read(t, c)
	require.Equal(t, TypeError, f.Type)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(f.Payload, &p))
	return p.Message
}

func join(t *testing.T, c *websocket.Conn, eventID string) {
	t.Helper()
	send(t, c, TypeJoinEvent, RoomPayload{EventID: eventID})
	require.Equal(t, TypeJoinedEvent, read(t, c).Type)
}

// assertQuiet proves nothing was queued for c before a leave round-trip:
// frames are processed in order, so the ack must be the very next frame.
func assertQuiet(t *testing.T, c *websocket.Conn) {
	t.Helper()
	send(t, c, TypeLeaveEvent, "nowhere")
	require.Equal(t, TypeLeftEvent, read(t, c).Type)
}

func TestHandshake_RequiresValidCredential(t *testing.T) {
	h := newHarness(t)

	_, resp, err := websocket.DefaultDialer.Dial(h.url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(h.url+"?token=garbage", nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	ghost, err := h.tokens.Sign("ghost", time.Hour)
	require.NoError(t, err)
	_, resp, err = websocket.DefaultDialer.Dial(h.url+"?token="+ghost, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandshake_AcceptsBearerHeader(t *testing.T) {
	h := newHarness(t)
	tok, err := h.tokens.Sign("vol1", time.Hour)
	require.NoError(t, err)

	c, _, err := websocket.DefaultDialer.Dial(h.url, http.Header{"Authorization": {"Bearer " + tok}})
	require.NoError(t, err)
	defer c.Close()
	join(t, c, "E1")
}

func TestBroadcast_ReachesJoinedMembersIncludingSender(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	admin := h.dial(t, "admin1")
	vol1 := h.dial(t, "vol1")
	vol2 := h.dial(t, "vol2")

	join(t, admin, "E1")
	join(t, vol1, "E1")

	// не участник: join молча игнорируется
	send(t, vol2, TypeJoinEvent, "E1")
	assertQuiet(t, vol2)

	send(t, vol1, TypeSendMessage, SendPayload{EventID: "E1", Content: "  hello  "})

	toAdmin := readMessage(t, admin)
	toSender := readMessage(t, vol1)
	req.Equal(toAdmin.ID, toSender.ID)
	req.Equal("hello", toAdmin.Content)
	req.Equal(domain.Sender{ID: "vol1", Name: "vol1", Contact: "vol1@example.org"}, toAdmin.Sender)
	req.Equal("E1", toAdmin.EventID)

	assertQuiet(t, vol2)
}

func TestSend_NonMemberGetsExactlyOneErrorAndNothingPersists(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	admin := h.dial(t, "admin1")
	join(t, admin, "E1")

	vol2 := h.dial(t, "vol2")
	send(t, vol2, TypeSendMessage, SendPayload{EventID: "E1", Content: "let me in"})
	req.Equal(MsgNotAuthorized, readError(t, vol2))
	assertQuiet(t, vol2)
	assertQuiet(t, admin)

	msgs, err := h.store.ListMessages(context.Background(), "E1", nil, 100)
	req.NoError(err)
	req.Empty(msgs)
}

func TestSend_ValidationErrors(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	vol1 := h.dial(t, "vol1")

	send(t, vol1, TypeSendMessage, SendPayload{EventID: "E1", Content: "   "})
	req.Equal(MsgContentRequired, readError(t, vol1))

	send(t, vol1, TypeSendMessage, SendPayload{EventID: "E1", Content: strings.Repeat("x", service.DefaultMaxContentLength+1)})
	req.Equal(MsgContentTooLong, readError(t, vol1))

	// пустой контент проверяется раньше членства
	vol2 := h.dial(t, "vol2")
	send(t, vol2, TypeSendMessage, SendPayload{EventID: "E1", Content: ""})
	req.Equal(MsgContentRequired, readError(t, vol2))
}

func TestSend_WithoutJoinPersistsButSenderIsNotInRoom(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	admin := h.dial(t, "admin1")
	join(t, admin, "E1")
	vol1 := h.dial(t, "vol1")

	send(t, vol1, TypeSendMessage, SendPayload{EventID: "E1", Content: "drive-by"})
	req.Equal("drive-by", readMessage(t, admin).Content)
	assertQuiet(t, vol1)
}

func TestFrames_InvalidAndUnknown(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	c := h.dial(t, "vol1")

	req.NoError(c.WriteMessage(websocket.TextMessage, []byte("{not json")))
	req.Equal(MsgInvalidFrame, readError(t, c))

	send(t, c, "dance", nil)
	req.Equal(MsgUnknownType, readError(t, c))

	send(t, c, TypeJoinEvent, map[string]string{})
	req.Equal(MsgInvalidFrame, readError(t, c))
}

func TestLeave_StopsDelivery(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	admin := h.dial(t, "admin1")
	vol1 := h.dial(t, "vol1")
	join(t, admin, "E1")
	join(t, vol1, "E1")

	send(t, vol1, TypeLeaveEvent, RoomPayload{EventID: "E1"})
	req.Equal(TypeLeftEvent, read(t, vol1).Type)
	send(t, vol1, TypeLeaveEvent, "E1")
	req.Equal(TypeLeftEvent, read(t, vol1).Type)

	send(t, admin, TypeSendMessage, SendPayload{EventID: "E1", Content: "anyone?"})
	req.Equal("anyone?", readMessage(t, admin).Content)
	assertQuiet(t, vol1)
}

func TestDisconnect_CleansUpRegistry(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	admin := h.dial(t, "admin1")
	vol1 := h.dial(t, "vol1")
	join(t, admin, "E1")
	join(t, vol1, "E1")
	req.Equal(2, h.hub.RoomSize("E1"))

	req.NoError(vol1.Close())
	req.Eventually(func() bool { return h.hub.RoomSize("E1") == 1 }, 3*time.Second, 10*time.Millisecond)

	send(t, admin, TypeSendMessage, SendPayload{EventID: "E1", Content: "still here"})
	req.Equal("still here", readMessage(t, admin).Content)
}

func TestBroadcastMatchesHistory(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	admin := h.dial(t, "admin1")
	join(t, admin, "E1")

	var ids []string
	for _, text := range []string{"one", "two", "three"} {
		send(t, admin, TypeSendMessage, SendPayload{EventID: "E1", Content: text})
		ids = append(ids, readMessage(t, admin).ID)
	}

	page, err := h.chat.History(context.Background(), "vol1", "E1", 0, "")
	req.NoError(err)
	req.Len(page.Messages, 3)
	for i, m := range page.Messages {
		req.Equal(ids[i], m.ID)
	}
}

func TestServerClose_DisconnectsClients(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	c := h.dial(t, "vol1")
	join(t, c, "E1")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req.NoError(h.server.Close(ctx))

	req.NoError(c.SetReadDeadline(time.Now().Add(3 * time.Second)))
	_, _, err := c.ReadMessage()
	req.Error(err)
	req.Zero(h.hub.Connections())
}

func TestSend_PersistenceFailureReachesSenderOnly(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, func(r service.MessageRepository) service.MessageRepository {
		return failingAppends{MessageRepository: r}
	})

	admin := h.dial(t, "admin1")
	vol1 := h.dial(t, "vol1")
	join(t, admin, "E1")
	join(t, vol1, "E1")

	send(t, vol1, TypeSendMessage, SendPayload{EventID: "E1", Content: "will not stick"})
	req.Equal(MsgSendFailed, readError(t, vol1))
	assertQuiet(t, vol1)
	assertQuiet(t, admin)

	msgs, err := h.store.ListMessages(context.Background(), "E1", nil, 100)
	req.NoError(err)
	req.Empty(msgs)
}

func TestConcurrentSenders_EveryoneSeesPersistOrder(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	admin := h.dial(t, "admin1")
	vol1 := h.dial(t, "vol1")
	join(t, admin, "E1")
	join(t, vol1, "E1")

	const perSender = 10
	var wg sync.WaitGroup
	errs := make(chan error, 2*perSender)
	for _, c := range []*websocket.Conn{admin, vol1} {
		wg.Add(1)
		go func(c *websocket.Conn) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				err := c.WriteJSON(map[string]any{
					"type":    TypeSendMessage,
					"payload": SendPayload{EventID: "E1", Content: fmt.Sprintf("m%d", i)},
				})
				if err != nil {
					errs <- err
				}
			}
		}(c)
	}

	received := func(c *websocket.Conn) []string {
		ids := make([]string, 0, 2*perSender)
		for i := 0; i < 2*perSender; i++ {
			ids = append(ids, readMessage(t, c).ID)
		}
		return ids
	}
	toAdmin := received(admin)
	toVol1 := received(vol1)
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	page, err := h.chat.History(context.Background(), "admin1", "E1", 0, "")
	req.NoError(err)
	persisted := make([]string, 0, len(page.Messages))
	for _, m := range page.Messages {
		persisted = append(persisted, m.ID)
	}

	req.Equal(persisted, toAdmin)
	req.Equal(persisted, toVol1)
}

func TestRegister_RefusedOnceClosing(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	req.NoError(h.server.Close(context.Background()))

	late := &fakeClient{id: "late"}
	req.False(h.server.register(late))
	req.Zero(h.hub.Connections())
}
