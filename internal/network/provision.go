package network

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// MaxGroupSize is the platform limit on group direct-message participants.
// Teams above it are reported, never retried.
const MaxGroupSize = 8

// Conversations is the chat-platform surface the provisioner needs.
type Conversations interface {
	OpenGroupConversation(ctx context.Context, memberIDs []string) (string, error)
	PostMessage(ctx context.Context, conversationID, text string) error
}

// IcebreakerFunc produces one generated icebreaker message for a group name.
type IcebreakerFunc func(ctx context.Context, groupName string) (string, error)

type ProvisionStatus string

const (
	StatusCreated         ProvisionStatus = "created"
	StatusSkippedTooLarge ProvisionStatus = "skipped_too_large"
	StatusFailed          ProvisionStatus = "failed"
)

// ProvisionResult is the per-team outcome, indexed by team.
type ProvisionResult struct {
	TeamIndex      int
	Status         ProvisionStatus
	ConversationID string
	Err            error
}

type ProvisionerOptions struct {
	Platform    Conversations
	Records     *RecordStore
	Icebreaker  IcebreakerFunc
	Logger      *slog.Logger
	MaxInFlight int
}

type Provisioner struct {
	platform    Conversations
	records     *RecordStore
	icebreaker  IcebreakerFunc
	logger      *slog.Logger
	maxInFlight int
}

func NewProvisioner(opts ProvisionerOptions) (*Provisioner, error) {
	if opts.Platform == nil {
		return nil, fmt.Errorf("platform is required")
	}
	if opts.Records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxInFlight := opts.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 4
	}
	return &Provisioner{
		platform:    opts.Platform,
		records:     opts.Records,
		icebreaker:  opts.Icebreaker,
		logger:      logger,
		maxInFlight: maxInFlight,
	}, nil
}

// Provision opens one group conversation per team. Teams are independent:
// they run concurrently and one team's failure never aborts another. Within
// a team the order is strict: open conversation, persist the record, then
// announce. Results come back indexed by team.
func (p *Provisioner) Provision(ctx context.Context, groupName string, teams []Team) []ProvisionResult {
	groupName = strings.TrimSpace(groupName)
	results := make([]ProvisionResult, len(teams))

	g := &errgroup.Group{}
	g.SetLimit(p.maxInFlight)
	for i, team := range teams {
		i, team := i, team
		g.Go(func() error {
			results[i] = p.provisionTeam(ctx, groupName, team)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Provisioner) provisionTeam(ctx context.Context, groupName string, team Team) ProvisionResult {
	teamNumber := team.Index + 1
	if len(team.Members) > MaxGroupSize {
		p.logger.Warn("provision_team_skipped",
			"group_name", groupName,
			"team_number", teamNumber,
			"member_count", len(team.Members),
		)
		return ProvisionResult{TeamIndex: team.Index, Status: StatusSkippedTooLarge}
	}

	memberIDs := make([]string, 0, len(team.Members))
	for _, member := range team.Members {
		memberIDs = append(memberIDs, member.ID)
	}
	conversationID, err := p.platform.OpenGroupConversation(ctx, memberIDs)
	if err != nil {
		p.logger.Warn("provision_open_error",
			"group_name", groupName,
			"team_number", teamNumber,
			"error", err.Error(),
		)
		return ProvisionResult{
			TeamIndex: team.Index,
			Status:    StatusFailed,
			Err:       fmt.Errorf("open group conversation: %w", err),
		}
	}

	// Persist before announcing: a conversation without a record would
	// exist with score tracking silently disabled.
	rec := ConversationRecord{
		ConversationID: conversationID,
		GroupName:      groupName,
		TeamNumber:     teamNumber,
	}
	if err := p.records.Save(ctx, rec); err != nil {
		p.logger.Error("provision_record_error",
			"group_name", groupName,
			"team_number", teamNumber,
			"conversation_id", conversationID,
			"error", err.Error(),
		)
		return ProvisionResult{
			TeamIndex:      team.Index,
			Status:         StatusFailed,
			ConversationID: conversationID,
			Err:            fmt.Errorf("persist conversation record: %w", err),
		}
	}

	welcome := fmt.Sprintf("*%s* - 조 %d 멤버들끼리의 단체 DM입니다! 자유롭게 대화하세요.", groupName, teamNumber)
	if err := p.platform.PostMessage(ctx, conversationID, welcome); err != nil {
		p.logger.Warn("provision_welcome_post_error",
			"conversation_id", conversationID,
			"error", err.Error(),
		)
	}

	// Icebreaker is a best-effort enhancement; failure never rolls back
	// the conversation.
	if p.icebreaker != nil {
		text, err := p.icebreaker(ctx, groupName)
		if err != nil {
			p.logger.Warn("provision_icebreaker_error",
				"group_name", groupName,
				"team_number", teamNumber,
				"error", err.Error(),
			)
		} else if strings.TrimSpace(text) != "" {
			if err := p.platform.PostMessage(ctx, conversationID, text); err != nil {
				p.logger.Warn("provision_icebreaker_post_error",
					"conversation_id", conversationID,
					"error", err.Error(),
				)
			}
		}
	}

	p.logger.Info("provision_team_created",
		"group_name", groupName,
		"team_number", teamNumber,
		"conversation_id", conversationID,
		"member_count", len(team.Members),
	)
	return ProvisionResult{TeamIndex: team.Index, Status: StatusCreated, ConversationID: conversationID}
}
