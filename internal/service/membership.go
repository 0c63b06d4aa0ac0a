package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ngo-portal/event-chat/internal/domain"
)

// MembershipService decides who may read and write an event's chat.
// It holds no state and caches nothing: every call reads the event again.
type MembershipService struct {
	events EventReader
}

func NewMembershipService(events EventReader) *MembershipService {
	return &MembershipService{events: events}
}

// Relation returns how userID relates to eventID. An unknown event yields
// RelationNone without an error so callers deny it like any non-member.
func (s *MembershipService) Relation(ctx context.Context, userID, eventID string) (domain.Relation, error) {
	ev, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			return domain.RelationNone, nil
		}
		return domain.RelationNone, fmt.Errorf("%w: get event: %w", domain.ErrPersistence, err)
	}
	return ev.RelationOf(userID), nil
}

func (s *MembershipService) IsMember(ctx context.Context, userID, eventID string) (bool, error) {
	rel, err := s.Relation(ctx, userID, eventID)
	if err != nil {
		return false, err
	}
	return rel.IsMember(), nil
}
