// Package badgerdb is an embedded store for events, users and chat messages.
// It serves single-node deployments and tests; Postgres is the production store.
package badgerdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ngo-portal/event-chat/internal/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	eventPrefix   = "evt:"
	userPrefix    = "usr:"
	messagePrefix = "msg:"
)

type Store struct {
	db  *badger.DB
	log *slog.Logger

	// appendMu keeps key order equal to commit order for messages.
	appendMu sync.Mutex
	now      func() time.Time
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open opens the store at path; an empty path keeps everything in memory.
func Open(path string, opts ...Option) (*Store, error) {
	bo := badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING)
	if path == "" {
		bo = bo.WithInMemory(true)
	}
	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	s := &Store{db: db, log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type eventRecord struct {
	ID         string   `json:"id"`
	CreatedBy  string   `json:"createdBy"`
	Volunteers []string `json:"volunteers"`
}

type userRecord struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type messageRecord struct {
	ID       string `json:"id"`
	EventID  string `json:"eventId"`
	SenderID string `json:"senderId"`
	Content  string `json:"content"`
	At       int64  `json:"at"` // unix nano
}

// PutEvent creates or replaces an event. Event management lives outside the
// chat service; this is used by the seed loader and tests.
func (s *Store) PutEvent(_ context.Context, ev domain.Event) error {
	if ev.ID == "" || ev.CreatorID == "" {
		return errors.New("event id and creator are required")
	}
	return s.put(eventPrefix+ev.ID, eventRecord{
		ID:         ev.ID,
		CreatedBy:  ev.CreatorID,
		Volunteers: ev.VolunteerIDs,
	})
}

func (s *Store) PutUser(_ context.Context, u domain.User) error {
	if u.ID == "" {
		return errors.New("user id is required")
	}
	return s.put(userPrefix+u.ID, userRecord{ID: u.ID, Username: u.Username, Email: u.Email})
}

func (s *Store) GetEvent(_ context.Context, id string) (*domain.Event, error) {
	var rec eventRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, eventPrefix+id, &rec)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &domain.Event{ID: rec.ID, CreatorID: rec.CreatedBy, VolunteerIDs: rec.Volunteers}, nil
}

func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	var rec userRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userPrefix+id, &rec)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &domain.User{ID: rec.ID, Username: rec.Username, Email: rec.Email}, nil
}

// AppendMessage persists a message under "msg:{len(event)}:{event}:{unixnano%019d}:{id}" so that a
// prefix scan yields creation order. The sender is resolved inside the same transaction.
func (s *Store) AppendMessage(_ context.Context, eventID, senderID, content string) (*domain.Message, error) {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	rec := messageRecord{
		ID:       id.String(),
		EventID:  eventID,
		SenderID: senderID,
		Content:  content,
		At:       s.now().UTC().UnixNano(),
	}

	var sender userRecord
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(eventPrefix + eventID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrEventNotFound
			}
			return err
		}
		if err := getJSON(txn, userPrefix+senderID, &sender); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrUserNotFound
			}
			return err
		}
		b, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(messageKey(eventID, rec.At, rec.ID), b)
	})
	if err != nil {
		return nil, err
	}

	m := toMessage(rec, sender)
	return &m, nil
}

// ListMessages returns up to limit of the newest messages older than before, oldest first.
func (s *Store) ListMessages(_ context.Context, eventID string, before *domain.Cursor, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}

	prefix := messageKeyPrefix(eventID)
	var seek []byte
	if before != nil {
		seek = messageKey(eventID, before.CreatedAt.UnixNano(), before.ID)
	} else {
		seek = append(append([]byte{}, prefix...), 0xFF)
	}

	out := make([]domain.Message, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		senders := make(map[string]userRecord)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			item := it.Item()
			if before != nil && string(item.Key()) == string(seek) {
				continue
			}
			var rec messageRecord
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &rec) }); err != nil {
				return err
			}
			if rec.EventID != eventID {
				s.log.Warn("badger: message key outside its event", "event_id", eventID, "key", string(item.Key()))
				continue
			}
			sender, ok := senders[rec.SenderID]
			if !ok {
				if err := getJSON(txn, userPrefix+rec.SenderID, &sender); err != nil {
					if !errors.Is(err, badger.ErrKeyNotFound) {
						return err
					}
					s.log.Warn("badger: message sender missing", "event_id", eventID, "sender_id", rec.SenderID)
					sender = userRecord{ID: rec.SenderID}
				}
				senders[rec.SenderID] = sender
			}
			out = append(out, toMessage(rec, sender))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// итерация шла от новых к старым
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// messageKeyPrefix carries the id length, so no event id is a key prefix of another
// (E1 vs E1:x).
func messageKeyPrefix(eventID string) []byte {
	return []byte(fmt.Sprintf("%s%d:%s:", messagePrefix, len(eventID), eventID))
}

func messageKey(eventID string, at int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", messageKeyPrefix(eventID), at, id))
}

func toMessage(rec messageRecord, sender userRecord) domain.Message {
	return domain.Message{
		ID:      rec.ID,
		EventID: rec.EventID,
		Sender: domain.Sender{
			ID:      rec.SenderID,
			Name:    sender.Username,
			Contact: sender.Email,
		},
		Content:   rec.Content,
		CreatedAt: time.Unix(0, rec.At).UTC(),
	}
}

func (s *Store) put(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), b)
	})
}

func getJSON(txn *badger.Txn, key string, dst any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(v []byte) error {
		return json.Unmarshal(v, dst)
	})
}
