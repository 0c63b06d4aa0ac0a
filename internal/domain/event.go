package domain

// Event is the read-only view of an event the chat needs.
// Creator and volunteers are kept apart on purpose: they are the two relations
// that make a user a member.
type Event struct {
	ID           string
	CreatorID    string
	VolunteerIDs []string
}

// Relation describes how a user relates to an event.
type Relation int

const (
	RelationNone Relation = iota
	RelationCreator
	RelationVolunteer
)

func (r Relation) String() string {
	switch r {
	case RelationCreator:
		return "creator"
	case RelationVolunteer:
		return "volunteer"
	default:
		return "none"
	}
}

// IsMember is true for creator and volunteer; nothing else grants membership.
func (r Relation) IsMember() bool {
	return r == RelationCreator || r == RelationVolunteer
}

// RelationOf returns the relation of userID to the event. A nil event relates to nobody.
func (e *Event) RelationOf(userID string) Relation {
	if e == nil || userID == "" {
		return RelationNone
	}
	if e.CreatorID == userID {
		return RelationCreator
	}
	for _, v := range e.VolunteerIDs {
		if v == userID {
			return RelationVolunteer
		}
	}
	return RelationNone
}
