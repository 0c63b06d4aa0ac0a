// Package auth turns a bearer credential into a known user.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/ngo-portal/event-chat/internal/domain"
)

type UserReader interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Resolver authenticates a credential: the token must verify and its user must still exist.
type Resolver struct {
	tokens TokenVerifier
	users  UserReader
}

func NewResolver(tokens TokenVerifier, users UserReader) *Resolver {
	return &Resolver{tokens: tokens, users: users}
}

// Resolve returns the user behind credential. Every authentication failure
// wraps domain.ErrUnauthenticated; a failing user lookup wraps domain.ErrPersistence.
func (r *Resolver) Resolve(ctx context.Context, credential string) (*domain.User, error) {
	userID, err := r.tokens.Verify(credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}

	u, err := r.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
		}
		return nil, fmt.Errorf("%w: get user: %w", domain.ErrPersistence, err)
	}
	return u, nil
}
