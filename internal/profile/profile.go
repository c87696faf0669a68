// Package profile stores member self-introduction profiles collected by the
// welcome flow.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/globee-labs/globee/internal/blobstore"
)

// UserProfile is the self-reported profile a member submits on joining.
// Keyed by user id, last submission wins.
type UserProfile struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Gender      string `json:"gender"`
	Age         string `json:"age"`
	Nationality string `json:"nationality"`
	AlmaMater   string `json:"alma_mater"`
}

// Key is the blob key for a user's profile.
func Key(userID string) string {
	return "users/" + strings.TrimSpace(userID) + ".json"
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

func (s *Store) Save(ctx context.Context, p UserProfile) error {
	if s == nil || s.blobs == nil {
		return fmt.Errorf("profile store is not initialized")
	}
	p.UserID = strings.TrimSpace(p.UserID)
	if p.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return s.blobs.Put(ctx, Key(p.UserID), raw)
}

// Find returns the user's profile, or ok=false when none was submitted.
func (s *Store) Find(ctx context.Context, userID string) (UserProfile, bool, error) {
	if s == nil || s.blobs == nil {
		return UserProfile{}, false, fmt.Errorf("profile store is not initialized")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return UserProfile{}, false, fmt.Errorf("user id is required")
	}
	raw, err := s.blobs.Get(ctx, Key(userID))
	if errors.Is(err, blobstore.ErrNotFound) {
		return UserProfile{}, false, nil
	}
	if err != nil {
		return UserProfile{}, false, err
	}
	var p UserProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return UserProfile{}, false, fmt.Errorf("decode profile for %s: %w", userID, err)
	}
	return p, true, nil
}
