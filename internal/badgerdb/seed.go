package badgerdb

import (
	"context"
	"fmt"
	"os"

	"github.com/ngo-portal/event-chat/internal/domain"

	"gopkg.in/yaml.v3"
)

// Seed is a YAML fixture with the users and events a dev node starts with.
type Seed struct {
	Users []struct {
		ID       string `yaml:"id"`
		Username string `yaml:"username"`
		Email    string `yaml:"email"`
	} `yaml:"users"`
	Events []struct {
		ID         string   `yaml:"id"`
		CreatedBy  string   `yaml:"createdBy"`
		Volunteers []string `yaml:"volunteers"`
	} `yaml:"events"`
}

// LoadSeedFile reads a fixture and upserts its users and events.
func (s *Store) LoadSeedFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("unmarshal seed: %w", err)
	}
	return s.ApplySeed(ctx, seed)
}

func (s *Store) ApplySeed(ctx context.Context, seed Seed) error {
	for _, u := range seed.Users {
		if err := s.PutUser(ctx, domain.User{ID: u.ID, Username: u.Username, Email: u.Email}); err != nil {
			return fmt.Errorf("seed user %q: %w", u.ID, err)
		}
	}
	for _, e := range seed.Events {
		ev := domain.Event{ID: e.ID, CreatorID: e.CreatedBy, VolunteerIDs: e.Volunteers}
		if err := s.PutEvent(ctx, ev); err != nil {
			return fmt.Errorf("seed event %q: %w", e.ID, err)
		}
	}
	s.log.Info("badger seed applied", "users", len(seed.Users), "events", len(seed.Events))
	return nil
}
