//go:generate go run go.uber.org/mock/mockgen -source=ports.go -destination=mocks/mock_ports.go -package=mocks
package service

import (
	"context"

	"github.com/ngo-portal/event-chat/internal/domain"
)

// EventReader is the read side of the event collaborator.
// GetEvent returns domain.ErrEventNotFound for an unknown id.
type EventReader interface {
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
}

// MessageRepository persists chat messages. Both methods return messages with
// the sender already resolved.
type MessageRepository interface {
	AppendMessage(ctx context.Context, eventID, senderID, content string) (*domain.Message, error)
	ListMessages(ctx context.Context, eventID string, before *domain.Cursor, limit int) ([]domain.Message, error)
}
