package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/globee-labs/globee/internal/blobstore"
)

// ConversationRecord ties a provisioned group conversation to its team
// identity and message-count score. One record per conversation, keyed by
// conversation id, last write wins. Records are never deleted here; their
// lifecycle ends with workspace teardown.
type ConversationRecord struct {
	ConversationID string `json:"conversation_id"`
	GroupName      string `json:"group_name"`
	TeamNumber     int    `json:"team_number"`
	Score          int    `json:"score"`
}

// RecordKey is the blob key for a conversation record.
func RecordKey(conversationID string) string {
	return "dmChannel-" + strings.TrimSpace(conversationID) + ".json"
}

// RecordStore reads and writes conversation records on the blob store.
type RecordStore struct {
	blobs blobstore.Store
}

func NewRecordStore(blobs blobstore.Store) (*RecordStore, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	return &RecordStore{blobs: blobs}, nil
}

func (s *RecordStore) Save(ctx context.Context, rec ConversationRecord) error {
	if s == nil || s.blobs == nil {
		return fmt.Errorf("record store is not initialized")
	}
	rec.ConversationID = strings.TrimSpace(rec.ConversationID)
	if rec.ConversationID == "" {
		return fmt.Errorf("conversation id is required")
	}
	rec.GroupName = strings.TrimSpace(rec.GroupName)
	if rec.GroupName == "" {
		return fmt.Errorf("group name is required")
	}
	if rec.TeamNumber < 1 {
		return fmt.Errorf("team number must be at least 1, got %d", rec.TeamNumber)
	}
	if rec.Score < 0 {
		return fmt.Errorf("score must not be negative, got %d", rec.Score)
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode conversation record: %w", err)
	}
	return s.blobs.Put(ctx, RecordKey(rec.ConversationID), raw)
}

// Find returns the record for conversationID, or ok=false when the
// conversation is untracked.
func (s *RecordStore) Find(ctx context.Context, conversationID string) (ConversationRecord, bool, error) {
	if s == nil || s.blobs == nil {
		return ConversationRecord{}, false, fmt.Errorf("record store is not initialized")
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return ConversationRecord{}, false, fmt.Errorf("conversation id is required")
	}
	raw, err := s.blobs.Get(ctx, RecordKey(conversationID))
	if errors.Is(err, blobstore.ErrNotFound) {
		return ConversationRecord{}, false, nil
	}
	if err != nil {
		return ConversationRecord{}, false, err
	}
	var rec ConversationRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return ConversationRecord{}, false, fmt.Errorf("decode conversation record %s: %w", conversationID, err)
	}
	return rec, true, nil
}
