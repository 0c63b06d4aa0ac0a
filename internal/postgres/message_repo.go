package postgres

import (
	"context"

	"github.com/ngo-portal/event-chat/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	db querier
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// AppendMessage inserts the message and returns it with the sender resolved.
// id and created_at are assigned by the database.
func (r *MessageRepository) AppendMessage(ctx context.Context, eventID, senderID, content string) (*domain.Message, error) {
	m, err := scanMessage(r.db.QueryRow(ctx, queryAppendMessage, eventID, senderID, content))
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return &m, nil
}

// ListMessages возвращает до limit самых свежих сообщений старше before, по возрастанию created_at.
func (r *MessageRepository) ListMessages(ctx context.Context, eventID string, before *domain.Cursor, limit int) ([]domain.Message, error) {
	var (
		createdAt any
		id        any
	)
	if before != nil {
		createdAt = before.CreatedAt
		id = before.ID
	}

	rows, err := r.db.Query(ctx, queryListMessages, eventID, createdAt, id, limit)
	if err != nil {
		return nil, mapListErr(err)
	}
	defer rows.Close()

	out := make([]domain.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapListErr(err)
	}
	return out, nil
}

// Event ids are checked by the caller before listing, so a malformed uuid can only come from the cursor.
func mapListErr(err error) error {
	if isNoRow(err) {
		return domain.ErrInvalidCursor
	}
	return err
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var m domain.Message
	err := row.Scan(
		&m.ID,
		&m.EventID,
		&m.Sender.ID,
		&m.Sender.Name,
		&m.Sender.Contact,
		&m.Content,
		&m.CreatedAt,
	)
	return m, err
}
