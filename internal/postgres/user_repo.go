package postgres

import (
	"context"

	"github.com/ngo-portal/event-chat/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	db querier
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	if err := r.db.QueryRow(ctx, queryGetUser, id).Scan(&u.ID, &u.Username, &u.Email); err != nil {
		if isNoRow(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}
