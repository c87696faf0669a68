// Package trade stores marketplace postings and renders them for the trade
// channel. Each user holds at most one active posting; reposting overwrites.
package trade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/globee-labs/globee/internal/blobstore"
)

// Posting is one marketplace listing, keyed by its author.
type Posting struct {
	UserID      string    `json:"user_id"`
	ItemName    string    `json:"item_name"`
	Condition   string    `json:"condition"`
	Price       string    `json:"price"`
	Place       string    `json:"place"`
	Description string    `json:"description,omitempty"`
	PostedAt    time.Time `json:"posted_at"`
}

// Key is the blob key for a user's posting.
func Key(userID string) string {
	return "trades/" + strings.TrimSpace(userID) + ".json"
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

func (s *Store) Save(ctx context.Context, p Posting) error {
	if s == nil || s.blobs == nil {
		return fmt.Errorf("trade store is not initialized")
	}
	p.UserID = strings.TrimSpace(p.UserID)
	if p.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(p.ItemName) == "" {
		return fmt.Errorf("item name is required")
	}
	if p.PostedAt.IsZero() {
		p.PostedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode posting: %w", err)
	}
	return s.blobs.Put(ctx, Key(p.UserID), raw)
}

// Find returns the user's active posting, or ok=false when none exists.
func (s *Store) Find(ctx context.Context, userID string) (Posting, bool, error) {
	if s == nil || s.blobs == nil {
		return Posting{}, false, fmt.Errorf("trade store is not initialized")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Posting{}, false, fmt.Errorf("user id is required")
	}
	raw, err := s.blobs.Get(ctx, Key(userID))
	if errors.Is(err, blobstore.ErrNotFound) {
		return Posting{}, false, nil
	}
	if err != nil {
		return Posting{}, false, err
	}
	var p Posting
	if err := json.Unmarshal(raw, &p); err != nil {
		return Posting{}, false, fmt.Errorf("decode posting for %s: %w", userID, err)
	}
	return p, true, nil
}

// acceptReactions are the hand-style reactions that signal interest in a
// posting and trigger the buyer/seller direct message.
var acceptReactions = map[string]bool{
	"hand":                  true,
	"raised_hand":           true,
	"raised_back_of_hand":   true,
	"wave":                  true,
	"raised_hands":          true,
	"white_check_mark":      true,
	"lower_left_paintbrush": true,
}

// IsAcceptReaction reports whether the reaction name counts as raising a hand
// on a trade posting.
func IsAcceptReaction(reaction string) bool {
	return acceptReactions[strings.TrimSpace(reaction)]
}

// RenderPosting formats a posting for the trade channel, mentioning the
// author so interested buyers know who to react at.
func RenderPosting(p Posting) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<@%s>님의 판매글입니다!\n", p.UserID)
	fmt.Fprintf(&b, "*상품명:* %s\n", p.ItemName)
	fmt.Fprintf(&b, "*상태:* %s\n", p.Condition)
	fmt.Fprintf(&b, "*가격:* %s\n", p.Price)
	fmt.Fprintf(&b, "*거래 장소:* %s", p.Place)
	if desc := strings.TrimSpace(p.Description); desc != "" {
		fmt.Fprintf(&b, "\n*설명:* %s", desc)
	}
	b.WriteString("\n\n구매를 원하시면 이 메시지에 손 이모지로 반응해주세요!")
	return b.String()
}
