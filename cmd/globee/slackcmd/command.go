package slackcmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/globee-labs/globee/internal/blobstore"
	"github.com/globee-labs/globee/internal/configutil"
	"github.com/globee-labs/globee/internal/membership"
	"github.com/globee-labs/globee/internal/network"
	"github.com/globee-labs/globee/internal/profile"
	"github.com/globee-labs/globee/internal/prompt"
	"github.com/globee-labs/globee/internal/trade"
	"github.com/globee-labs/globee/internal/workspace"
	"github.com/globee-labs/globee/llm"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// slackDirectory adapts the web API to the membership resolver.
type slackDirectory struct {
	api *slackAPI
}

func (d *slackDirectory) ChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	return d.api.conversationsMembers(ctx, channelID)
}

func (d *slackDirectory) UserInfo(ctx context.Context, userID string) (membership.UserInfo, error) {
	u, err := d.api.userInfo(ctx, userID)
	if err != nil {
		return membership.UserInfo{}, err
	}
	return membership.UserInfo{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		IsBot:       u.IsBot,
		IsAdmin:     u.IsAdmin,
	}, nil
}

// slackConversations adapts the web API to the provisioner.
type slackConversations struct {
	api *slackAPI
}

func (c *slackConversations) OpenGroupConversation(ctx context.Context, memberIDs []string) (string, error) {
	return c.api.conversationsOpen(ctx, memberIDs)
}

func (c *slackConversations) PostMessage(ctx context.Context, conversationID, text string) error {
	return c.api.postMessage(ctx, conversationID, text, "")
}

func blobStoreFromViper() (blobstore.Store, error) {
	backend := strings.ToLower(strings.TrimSpace(viper.GetString("storage.backend")))
	switch backend {
	case "", "s3":
		return blobstore.NewS3Store(blobstore.S3StoreOptions{
			Bucket: viper.GetString("storage.s3_bucket"),
			Region: viper.GetString("storage.s3_region"),
		})
	case "file":
		dir := strings.TrimSpace(viper.GetString("storage.dir"))
		if dir == "" {
			dir = "./data"
		}
		return blobstore.NewFileStore(dir)
	case "memory":
		return blobstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage.backend: %s", backend)
	}
}

func promptPackFromViper() (prompt.Pack, error) {
	path := strings.TrimSpace(viper.GetString("prompt.pack_path"))
	if path == "" {
		return prompt.Default(), nil
	}
	return prompt.Load(path)
}

func newSlackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slack",
		Short: "Run the Globee workspace bot with Socket Mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			botToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-bot-token", "slack.bot_token"))
			if botToken == "" {
				return fmt.Errorf("missing slack.bot_token (set via --slack-bot-token or GLOBEE_SLACK_BOT_TOKEN)")
			}
			appToken := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-app-token", "slack.app_token"))
			if appToken == "" {
				return fmt.Errorf("missing slack.app_token (set via --slack-app-token or GLOBEE_SLACK_APP_TOKEN)")
			}

			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			blobs, err := blobStoreFromViper()
			if err != nil {
				return err
			}
			records, err := network.NewRecordStore(blobs)
			if err != nil {
				return err
			}
			tracker, err := network.NewTracker(records, logger)
			if err != nil {
				return err
			}
			profiles, err := profile.NewStore(blobs)
			if err != nil {
				return err
			}
			trades, err := trade.NewStore(blobs)
			if err != nil {
				return err
			}
			settings, err := workspace.NewStore(blobs)
			if err != nil {
				return err
			}

			prompts, err := promptPackFromViper()
			if err != nil {
				return err
			}
			client, err := llmClientFromConfig(viper.GetString("llm.model_id"), viper.GetString("llm.region"))
			if err != nil {
				return err
			}

			httpClient := &http.Client{Timeout: 30 * time.Second}
			api := newSlackAPI(httpClient, "https://slack.com/api", botToken, appToken)
			auth, err := api.authTest(cmd.Context())
			if err != nil {
				return fmt.Errorf("slack auth.test: %w", err)
			}
			botUserID := strings.TrimSpace(auth.UserID)
			if botUserID == "" {
				return fmt.Errorf("slack auth.test returned empty user_id")
			}

			platform := &slackConversations{api: api}
			icebreaker := func(ctx context.Context, groupName string) (string, error) {
				return client.Generate(ctx, llm.Request{Prompt: prompts.IcebreakerPrompt(groupName)})
			}
			maxConc := configutil.FlagOrViperInt(cmd, "slack-max-concurrency", "slack.max_concurrency")
			if maxConc <= 0 {
				maxConc = 3
			}
			provisioner, err := network.NewProvisioner(network.ProvisionerOptions{
				Platform:    platform,
				Records:     records,
				Icebreaker:  icebreaker,
				Logger:      logger,
				MaxInFlight: maxConc,
			})
			if err != nil {
				return err
			}
			resolver, err := membership.NewResolver(&slackDirectory{api: api}, logger)
			if err != nil {
				return err
			}

			taskTimeout := configutil.FlagOrViperDuration(cmd, "slack-task-timeout", "slack.task_timeout")
			if taskTimeout <= 0 {
				taskTimeout = 2 * time.Minute
			}
			tradeChannelID := strings.TrimSpace(configutil.FlagOrViperString(cmd, "slack-trade-channel-id", "slack.trade_channel_id"))

			h := &handler{
				api:            api,
				logger:         logger,
				members:        resolver,
				provisioner:    provisioner,
				tracker:        tracker,
				profiles:       profiles,
				trades:         trades,
				settings:       settings,
				generate:       client,
				prompts:        prompts,
				botUserID:      botUserID,
				tradeChannelID: tradeChannelID,
				rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
			}

			sem := make(chan struct{}, maxConc)
			dispatch := func(envelope slackSocketEnvelope) {
				sem <- struct{}{}
				go func() {
					defer func() { <-sem }()
					ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
					defer cancel()
					handleEnvelope(ctx, h, logger, envelope)
				}()
			}

			logger.Info("slack_start",
				"bot_user_id", botUserID,
				"team_id", auth.TeamID,
				"task_timeout", taskTimeout.String(),
				"max_concurrency", maxConc,
				"trade_channel_configured", tradeChannelID != "",
			)

			for {
				if cmd.Context().Err() != nil {
					logger.Info("slack_stop", "reason", "context_canceled")
					return nil
				}
				conn, err := api.connectSocket(cmd.Context())
				if err != nil {
					if cmd.Context().Err() != nil {
						logger.Info("slack_stop", "reason", "context_canceled")
						return nil
					}
					logger.Warn("slack_socket_connect_error", "error", err.Error())
					if err := sleepWithContext(cmd.Context(), 2*time.Second); err != nil {
						return nil
					}
					continue
				}
				logger.Info("slack_socket_connected")
				readErr := consumeSlackSocket(cmd.Context(), conn, func(envelope slackSocketEnvelope) error {
					dispatch(envelope)
					return nil
				})
				_ = conn.Close()
				if readErr != nil && !errors.Is(readErr, context.Canceled) && !errors.Is(readErr, context.DeadlineExceeded) {
					logger.Warn("slack_socket_read_error", "error", readErr.Error())
				}
			}
		},
	}

	cmd.Flags().String("slack-bot-token", "", "Slack bot token (xoxb-...).")
	cmd.Flags().String("slack-app-token", "", "Slack app-level token for Socket Mode (xapp-...).")
	cmd.Flags().String("slack-trade-channel-id", "", "Channel id where marketplace postings are published.")
	cmd.Flags().Duration("slack-task-timeout", 0, "Per-event handling timeout (0 uses the default).")
	cmd.Flags().Int("slack-max-concurrency", 3, "Max number of Slack events processed concurrently.")

	return cmd
}

// handleEnvelope routes one acked socket envelope to the matching handler.
func handleEnvelope(ctx context.Context, h *handler, logger *slog.Logger, envelope slackSocketEnvelope) {
	logger = logger.With("request_id", uuid.NewString())

	if cmd, ok, err := parseSlashCommand(envelope); err != nil {
		logger.Warn("slack_envelope_parse_error", "type", envelope.Type, "error", err.Error())
		return
	} else if ok {
		h.handleSlashCommand(ctx, cmd)
		return
	}

	if payload, ok, err := parseInteractive(envelope); err != nil {
		logger.Warn("slack_envelope_parse_error", "type", envelope.Type, "error", err.Error())
		return
	} else if ok {
		h.handleViewSubmission(ctx, payload)
		return
	}

	_, event, ok, err := parseEventsAPI(envelope)
	if err != nil {
		logger.Warn("slack_envelope_parse_error", "type", envelope.Type, "error", err.Error())
		return
	}
	if !ok {
		return
	}
	switch event.Type {
	case "message":
		h.handleMessageEvent(ctx, event)
	case "reaction_added":
		h.handleReactionEvent(ctx, event)
	default:
		logger.Debug("slack_event_ignored", "event_type", event.Type)
	}
}

func consumeSlackSocket(ctx context.Context, conn *websocket.Conn, onEnvelope func(envelope slackSocketEnvelope) error) error {
	if conn == nil {
		return fmt.Errorf("slack websocket connection is nil")
	}
	for {
		if ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var envelope slackSocketEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			continue
		}
		if strings.TrimSpace(envelope.EnvelopeID) != "" {
			if err := conn.WriteJSON(map[string]string{"envelope_id": envelope.EnvelopeID}); err != nil {
				return err
			}
		}
		if onEnvelope == nil {
			continue
		}
		if err := onEnvelope(envelope); err != nil {
			return err
		}
	}
}
