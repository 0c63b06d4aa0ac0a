package service

import (
	"context"
	"errors"
	"testing"

	"github.com/ngo-portal/event-chat/internal/domain"
	"github.com/ngo-portal/event-chat/internal/service/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestMembership_CreatorOrVolunteerOnly(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	events := mocks.NewMockEventReader(ctrl)

	e1 := &domain.Event{ID: "E1", CreatorID: "admin1", VolunteerIDs: []string{"vol1"}}
	events.EXPECT().GetEvent(gomock.Any(), "E1").Return(e1, nil).Times(3)

	svc := NewMembershipService(events)
	ctx := context.Background()

	rel, err := svc.Relation(ctx, "admin1", "E1")
	req.NoError(err)
	req.Equal(domain.RelationCreator, rel)

	ok, err := svc.IsMember(ctx, "vol1", "E1")
	req.NoError(err)
	req.True(ok)

	ok, err = svc.IsMember(ctx, "vol2", "E1")
	req.NoError(err)
	req.False(ok)
}

func TestMembership_UnknownEventFailsClosed(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	events := mocks.NewMockEventReader(ctrl)
	events.EXPECT().GetEvent(gomock.Any(), "ghost").Return(nil, domain.ErrEventNotFound)

	ok, err := NewMembershipService(events).IsMember(context.Background(), "admin1", "ghost")
	req.NoError(err)
	req.False(ok)
}

func TestMembership_LookupFailureIsPersistenceError(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	events := mocks.NewMockEventReader(ctrl)
	events.EXPECT().GetEvent(gomock.Any(), "E1").Return(nil, errors.New("connection reset"))

	ok, err := NewMembershipService(events).IsMember(context.Background(), "admin1", "E1")
	req.False(ok)
	req.ErrorIs(err, domain.ErrPersistence)
}

func TestMembership_NeverCaches(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	events := mocks.NewMockEventReader(ctrl)

	gomock.InOrder(
		events.EXPECT().GetEvent(gomock.Any(), "E1").
			Return(&domain.Event{ID: "E1", CreatorID: "admin1", VolunteerIDs: []string{"vol1"}}, nil),
		events.EXPECT().GetEvent(gomock.Any(), "E1").
			Return(&domain.Event{ID: "E1", CreatorID: "admin1"}, nil),
	)

	svc := NewMembershipService(events)
	ok, err := svc.IsMember(context.Background(), "vol1", "E1")
	req.NoError(err)
	req.True(ok)

	ok, err = svc.IsMember(context.Background(), "vol1", "E1")
	req.NoError(err)
	req.False(ok, "removed volunteer must lose access on the next check")
}
