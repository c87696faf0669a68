package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

var (
	// ErrMalformedQuery rejects score-query text before any lookup.
	ErrMalformedQuery = errors.New("network: malformed score query")
	// ErrDenied means the querying conversation has no record, or named a
	// team other than its own.
	ErrDenied = errors.New("network: score query denied")
)

// Tracker counts qualifying messages per tracked conversation and answers
// capability-gated score queries. A conversation is tracked from the moment
// its record is stored; there is no way back to untracked.
type Tracker struct {
	records *RecordStore
	logger  *slog.Logger
}

func NewTracker(records *RecordStore, logger *slog.Logger) (*Tracker, error) {
	if records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{records: records, logger: logger}, nil
}

// OnMessage increments the conversation's score for one qualifying inbound
// message. Bot-authored messages and untracked conversations are no-ops.
// The read-then-write is not atomic against concurrent messages in the same
// conversation; a lost increment is an accepted limitation of this metric.
func (t *Tracker) OnMessage(ctx context.Context, conversationID string, botAuthored bool) error {
	if t == nil || t.records == nil {
		return fmt.Errorf("tracker is not initialized")
	}
	if botAuthored {
		return nil
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return fmt.Errorf("conversation id is required")
	}
	rec, ok, err := t.records.Find(ctx, conversationID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	rec.Score++
	if err := t.records.Save(ctx, rec); err != nil {
		return fmt.Errorf("persist score for %s: %w", conversationID, err)
	}
	t.logger.Debug("score_incremented", "conversation_id", conversationID, "score", rec.Score)
	return nil
}

// ParseQuery splits free-form "name... number" query text: the last
// whitespace-delimited token must parse as the team number, everything
// before it joins into the group name.
func ParseQuery(text string) (string, int, error) {
	parts := strings.Fields(text)
	if len(parts) < 2 {
		return "", 0, ErrMalformedQuery
	}
	last := parts[len(parts)-1]
	teamNumber, err := strconv.Atoi(last)
	if err != nil {
		return "", 0, fmt.Errorf("%w: team number %q is not an integer", ErrMalformedQuery, last)
	}
	return strings.Join(parts[:len(parts)-1], " "), teamNumber, nil
}

// Query answers a score request made from inside a conversation. A team may
// only see its own score: the claimed group name and team number must match
// the conversation's record exactly.
func (t *Tracker) Query(ctx context.Context, requestingConversationID, claimedGroupName string, claimedTeamNumber int) (int, error) {
	if t == nil || t.records == nil {
		return 0, fmt.Errorf("tracker is not initialized")
	}
	rec, ok, err := t.records.Find(ctx, requestingConversationID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrDenied
	}
	if rec.GroupName != claimedGroupName || rec.TeamNumber != claimedTeamNumber {
		return 0, ErrDenied
	}
	return rec.Score, nil
}
