// Package workspace stores per-workspace settings managed by admins.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/globee-labs/globee/internal/blobstore"
)

// DefaultCountry is used for localized content until an admin configures the
// workspace.
const DefaultCountry = "korea"

// Settings holds the admin-configured workspace context. Keyed by the
// platform workspace (team) id, last write wins.
type Settings struct {
	TeamID     string `json:"team_id"`
	Country    string `json:"country"`
	University string `json:"university"`
}

// Key is the blob key for a workspace's settings.
func Key(teamID string) string {
	return "workspace/" + strings.TrimSpace(teamID) + ".json"
}

type Store struct {
	blobs blobstore.Store
}

func NewStore(blobs blobstore.Store) (*Store, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	return &Store{blobs: blobs}, nil
}

func (s *Store) Save(ctx context.Context, settings Settings) error {
	if s == nil || s.blobs == nil {
		return fmt.Errorf("workspace store is not initialized")
	}
	settings.TeamID = strings.TrimSpace(settings.TeamID)
	if settings.TeamID == "" {
		return fmt.Errorf("team id is required")
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode workspace settings: %w", err)
	}
	return s.blobs.Put(ctx, Key(settings.TeamID), raw)
}

// Find returns the workspace settings, or ok=false when none were saved.
func (s *Store) Find(ctx context.Context, teamID string) (Settings, bool, error) {
	if s == nil || s.blobs == nil {
		return Settings{}, false, fmt.Errorf("workspace store is not initialized")
	}
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return Settings{}, false, fmt.Errorf("team id is required")
	}
	raw, err := s.blobs.Get(ctx, Key(teamID))
	if errors.Is(err, blobstore.ErrNotFound) {
		return Settings{}, false, nil
	}
	if err != nil {
		return Settings{}, false, err
	}
	var settings Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return Settings{}, false, fmt.Errorf("decode workspace settings for %s: %w", teamID, err)
	}
	return settings, true, nil
}

// Country returns the configured country for a workspace, falling back to
// DefaultCountry when unset or unreadable.
func (s *Store) Country(ctx context.Context, teamID string) string {
	settings, ok, err := s.Find(ctx, teamID)
	if err != nil || !ok {
		return DefaultCountry
	}
	if country := strings.TrimSpace(settings.Country); country != "" {
		return country
	}
	return DefaultCountry
}
