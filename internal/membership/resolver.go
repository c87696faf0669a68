// Package membership resolves channel membership into the human participants
// eligible for group formation.
package membership

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/globee-labs/globee/internal/network"
)

// slackbotUserID is present in every workspace and is not flagged is_bot.
const slackbotUserID = "USLACKBOT"

// UserInfo is the subset of a platform user profile the bot cares about.
type UserInfo struct {
	ID          string
	DisplayName string
	IsBot       bool
	IsAdmin     bool
}

// Directory is the chat-platform lookup surface.
type Directory interface {
	ChannelMembers(ctx context.Context, channelID string) ([]string, error)
	UserInfo(ctx context.Context, userID string) (UserInfo, error)
}

type Resolver struct {
	directory Directory
	logger    *slog.Logger
}

func NewResolver(directory Directory, logger *slog.Logger) (*Resolver, error) {
	if directory == nil {
		return nil, fmt.Errorf("directory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{directory: directory, logger: logger}, nil
}

// HumanMembers lists the channel's members with bot accounts and the built-in
// slackbot filtered out. A failed profile lookup drops that one member rather
// than failing the whole roster.
func (r *Resolver) HumanMembers(ctx context.Context, channelID string) ([]network.Member, error) {
	if r == nil || r.directory == nil {
		return nil, fmt.Errorf("resolver is not initialized")
	}
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return nil, fmt.Errorf("channel id is required")
	}

	ids, err := r.directory.ChannelMembers(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("list channel members: %w", err)
	}

	members := make([]network.Member, 0, len(ids))
	for _, id := range ids {
		if id == slackbotUserID {
			continue
		}
		info, err := r.directory.UserInfo(ctx, id)
		if err != nil {
			r.logger.Warn("membership_user_info_error", "user_id", id, "error", err.Error())
			continue
		}
		if info.IsBot {
			continue
		}
		name := strings.TrimSpace(info.DisplayName)
		if name == "" {
			name = id
		}
		members = append(members, network.Member{ID: id, DisplayName: name})
	}
	return members, nil
}
