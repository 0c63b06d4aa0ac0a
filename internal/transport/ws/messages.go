package ws

import (
	"encoding/json"
	"strings"
)

// Типы событий WS
const (
	TypeJoinEvent   = "join-event"   // client -> server
	TypeLeaveEvent  = "leave-event"  // client -> server
	TypeSendMessage = "send-message" // client -> server
	TypeNewMessage  = "new-message"  // server -> room, включая отправителя
	TypeError       = "error"        // server -> sender only
	TypeJoinedEvent = "joined-event" // ack на успешный join
	TypeLeftEvent   = "left-event"   // ack на leave
)

const (
	MsgNotAuthorized   = "Not authorized"
	MsgContentRequired = "Message content is required"
	MsgContentTooLong  = "Message content is too long"
	MsgSendFailed      = "Failed to send message"
	MsgInvalidFrame    = "Invalid frame"
	MsgUnknownType     = "Unknown event type"
)

// Envelope is every outbound frame.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type RoomPayload struct {
	EventID string `json:"eventId"`
}

type SendPayload struct {
	EventID string `json:"eventId"`
	Content string `json:"content"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// decodeEventID accepts {"eventId": "..."} or the bare id string.
func decodeEventID(raw json.RawMessage) (string, bool) {
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		id = strings.TrimSpace(id)
		return id, id != ""
	}
	var p RoomPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", false
	}
	id = strings.TrimSpace(p.EventID)
	return id, id != ""
}

func errorFrame(msg string) Envelope {
	return Envelope{Type: TypeError, Payload: ErrorPayload{Message: msg}}
}
