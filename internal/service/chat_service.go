package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ngo-portal/event-chat/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

const (
	DefaultHistoryLimit     = 100
	DefaultMaxContentLength = 4000
)

type Authorizer interface {
	IsMember(ctx context.Context, userID, eventID string) (bool, error)
}

type ChatService struct {
	auth     Authorizer
	messages MessageRepository
	validate *validator.Validate

	historyLimit     int
	maxContentLength int
}

type ChatOption func(*ChatService)

func WithHistoryLimit(n int) ChatOption {
	return func(s *ChatService) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

func WithMaxContentLength(n int) ChatOption {
	return func(s *ChatService) {
		if n > 0 {
			s.maxContentLength = n
		}
	}
}

func NewChatService(auth Authorizer, messages MessageRepository, opts ...ChatOption) *ChatService {
	s := &ChatService{
		auth:             auth,
		messages:         messages,
		validate:         validator.New(validator.WithRequiredStructEnabled()),
		historyLimit:     DefaultHistoryLimit,
		maxContentLength: DefaultMaxContentLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ChatService) HistoryLimit() int { return s.historyLimit }

type target struct {
	UserID  string `validate:"required,max=128"`
	EventID string `validate:"required,max=128"`
}

// Post validates the content, checks membership and appends the message.
// Content is checked first: it costs no lookup.
func (s *ChatService) Post(ctx context.Context, senderID, eventID, content string) (*domain.Message, error) {
	content, err := domain.NormalizeContent(content, s.maxContentLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if err := s.authorize(ctx, senderID, eventID); err != nil {
		return nil, err
	}

	msg, err := s.messages.AppendMessage(ctx, eventID, senderID, content)
	if err != nil {
		// событие удалили между проверкой и записью
		if errors.Is(err, domain.ErrEventNotFound) {
			return nil, domain.ErrForbidden
		}
		return nil, fmt.Errorf("%w: append message: %w", domain.ErrPersistence, err)
	}
	return msg, nil
}

// History returns up to limit of the most recent messages (older than the
// before cursor when given), oldest first. limit is clamped to [1, historyLimit];
// zero means historyLimit.
func (s *ChatService) History(ctx context.Context, userID, eventID string, limit int, before string) (domain.Page, error) {
	if err := s.authorize(ctx, userID, eventID); err != nil {
		return domain.Page{}, err
	}

	cur, err := domain.DecodeCursor(before)
	if err != nil {
		return domain.Page{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if limit == 0 {
		limit = s.historyLimit
	}
	limit = lo.Clamp(limit, 1, s.historyLimit)

	msgs, err := s.messages.ListMessages(ctx, eventID, cur, limit)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCursor) {
			return domain.Page{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
		}
		return domain.Page{}, fmt.Errorf("%w: list messages: %w", domain.ErrPersistence, err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}

	page := domain.Page{Messages: msgs}
	if len(msgs) == limit {
		oldest := msgs[0]
		page.Next = &domain.Cursor{CreatedAt: oldest.CreatedAt, ID: oldest.ID}
	}
	return page, nil
}

// Authorize returns nil when userID is a member of eventID, domain.ErrForbidden
// otherwise. Unknown events are denied the same way.
func (s *ChatService) Authorize(ctx context.Context, userID, eventID string) error {
	return s.authorize(ctx, userID, eventID)
}

func (s *ChatService) authorize(ctx context.Context, userID, eventID string) error {
	if err := s.validate.Struct(target{UserID: userID, EventID: eventID}); err != nil {
		// пустой или слишком длинный id не может принадлежать событию
		return domain.ErrForbidden
	}
	ok, err := s.auth.IsMember(ctx, userID, eventID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrForbidden
	}
	return nil
}
