package postgres

import (
	"context"

	"github.com/ngo-portal/event-chat/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type EventRepository struct {
	db querier
}

func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// GetEvent returns the creator and volunteer ids of an event or domain.ErrEventNotFound.
func (r *EventRepository) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	var ev domain.Event
	err := r.db.QueryRow(ctx, queryGetEvent, id).Scan(&ev.ID, &ev.CreatorID, &ev.VolunteerIDs)
	if err != nil {
		if isNoRow(err) {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}
	return &ev, nil
}
