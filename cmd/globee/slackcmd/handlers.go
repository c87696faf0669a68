package slackcmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/globee-labs/globee/internal/membership"
	"github.com/globee-labs/globee/internal/network"
	"github.com/globee-labs/globee/internal/profile"
	"github.com/globee-labs/globee/internal/prompt"
	"github.com/globee-labs/globee/internal/trade"
	"github.com/globee-labs/globee/internal/translate"
	"github.com/globee-labs/globee/internal/workspace"
	"github.com/globee-labs/globee/llm"
)

var slackMentionPattern = regexp.MustCompile(`<@([A-Z0-9]+)(?:\|[^>]+)?>`)

const (
	msgNoPermission = "이 명령어를 사용할 권한이 없습니다."
	msgScoreUsage   = "사용법: `/score 네트워킹이름 조번호` (예: `/score 해커톤 3`)"
	msgScoreDenied  = "다른 조의 점수는 볼 수 없습니다."
	msgAskEmpty     = "질문을 입력해주세요! 예: `/ask 자유로운 질문`"
	msgNetworkError = "네트워크 명령어를 처리하는 중 오류가 발생했습니다."
	msgTodayPrefix  = "오늘의 회화\n"
	msgHelp         = "*Globee 명령어 안내*\n" +
		"`/network` - 네트워킹 조 편성 (관리자)\n" +
		"`/score 네트워킹이름 조번호` - 우리 조의 Honey Score 확인\n" +
		"`/ask 질문` - Globee에게 자유롭게 질문\n" +
		"`/today` - 오늘의 회화 표현\n" +
		"`/welcome` - 자기소개 작성\n" +
		"`/trade` - 중고거래 판매글 올리기\n" +
		"`/admin` - 워크스페이스 설정 (관리자)"
)

type handler struct {
	api         *slackAPI
	logger      *slog.Logger
	members     *membership.Resolver
	provisioner *network.Provisioner
	tracker     *network.Tracker
	profiles    *profile.Store
	trades      *trade.Store
	settings    *workspace.Store
	generate    llm.Client
	prompts     prompt.Pack

	botUserID      string
	tradeChannelID string

	rngMu sync.Mutex
	rng   *rand.Rand
}

// partition runs the balanced split under the handler's random source.
func (h *handler) partition(members []network.Member, teamCount int) ([]network.Team, error) {
	h.rngMu.Lock()
	defer h.rngMu.Unlock()
	return network.Partition(members, teamCount, h.rng)
}

func (h *handler) generateText(ctx context.Context, promptText string) (string, error) {
	if h.generate == nil {
		return "", fmt.Errorf("llm client is not configured")
	}
	out, err := h.generate.Generate(ctx, llm.Request{Prompt: promptText})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (h *handler) isAdmin(ctx context.Context, userID string) bool {
	info, err := h.api.userInfo(ctx, userID)
	if err != nil {
		h.logger.Warn("slack_user_info_error", "user_id", userID, "error", err.Error())
		return false
	}
	return info.IsAdmin
}

// handleMessageEvent feeds tracked group conversations into the score
// tracker. Everything else is ignored.
func (h *handler) handleMessageEvent(ctx context.Context, event slackEvent) {
	if event.Type != "message" {
		return
	}
	if event.Subtype != "" && event.Subtype != "bot_message" {
		return
	}
	if strings.TrimSpace(event.Channel) == "" {
		return
	}
	if err := h.tracker.OnMessage(ctx, event.Channel, isBotAuthored(event, h.botUserID)); err != nil {
		h.logger.Warn("score_update_error", "channel_id", event.Channel, "error", err.Error())
	}
}

// handleReactionEvent covers the two reaction flows: flag reactions request
// a translation visible only to the reactor, hand reactions on a trade
// posting open a buyer/seller conversation.
func (h *handler) handleReactionEvent(ctx context.Context, event slackEvent) {
	if event.Type != "reaction_added" || event.Item.Type != "message" {
		return
	}
	reactor := strings.TrimSpace(event.User)
	channelID := strings.TrimSpace(event.Item.Channel)
	ts := strings.TrimSpace(event.Item.TS)
	if reactor == "" || channelID == "" || ts == "" {
		return
	}

	if language, ok := translate.LanguageForReaction(event.Reaction); ok {
		h.handleTranslationReaction(ctx, reactor, channelID, ts, language)
		return
	}
	if trade.IsAcceptReaction(event.Reaction) {
		h.handleTradeReaction(ctx, reactor, channelID, ts)
	}
}

func (h *handler) handleTranslationReaction(ctx context.Context, reactor, channelID, ts, language string) {
	_, text, err := h.api.conversationsMessageAt(ctx, channelID, ts)
	if err != nil {
		h.logger.Warn("translate_fetch_error", "channel_id", channelID, "ts", ts, "error", err.Error())
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}
	translated, err := h.generateText(ctx, h.prompts.TranslationPrompt(language, text))
	if err != nil {
		h.logger.Warn("translate_generate_error", "channel_id", channelID, "error", err.Error())
		return
	}
	if translated == "" {
		return
	}
	if err := h.api.postEphemeral(ctx, channelID, reactor, translated); err != nil {
		h.logger.Warn("translate_post_error", "channel_id", channelID, "error", err.Error())
	}
}

func (h *handler) handleTradeReaction(ctx context.Context, reactor, channelID, ts string) {
	if h.tradeChannelID != "" && channelID != h.tradeChannelID {
		return
	}
	author, text, err := h.api.conversationsMessageAt(ctx, channelID, ts)
	if err != nil {
		h.logger.Warn("trade_fetch_error", "channel_id", channelID, "ts", ts, "error", err.Error())
		return
	}
	// Postings are bot messages mentioning the seller; anything else is just
	// someone waving.
	if author != h.botUserID {
		return
	}
	match := slackMentionPattern.FindStringSubmatch(text)
	if match == nil {
		return
	}
	seller := match[1]
	if seller == reactor {
		return
	}
	posting, ok, err := h.trades.Find(ctx, seller)
	if err != nil {
		h.logger.Warn("trade_lookup_error", "user_id", seller, "error", err.Error())
		return
	}
	if !ok {
		return
	}
	dm, err := h.api.conversationsOpen(ctx, []string{reactor, seller})
	if err != nil {
		h.logger.Warn("trade_dm_open_error", "error", err.Error())
		return
	}
	intro := fmt.Sprintf("<@%s>님이 <@%s>님의 *%s* 판매글에 관심이 있어요! 여기서 거래 이야기를 나눠보세요.", reactor, seller, posting.ItemName)
	if err := h.api.postMessage(ctx, dm, intro, ""); err != nil {
		h.logger.Warn("trade_dm_post_error", "error", err.Error())
	}
}

func (h *handler) handleSlashCommand(ctx context.Context, cmd slackSlashCommand) {
	switch strings.TrimSpace(cmd.Command) {
	case "/network":
		h.handleNetworkCommand(ctx, cmd)
	case "/score":
		h.handleScoreCommand(ctx, cmd)
	case "/ask":
		h.handleAskCommand(ctx, cmd)
	case "/today":
		h.handleTodayCommand(ctx, cmd)
	case "/welcome":
		h.openModal(ctx, cmd, newWelcomeModal())
	case "/trade":
		view, err := newTradeModal(cmd.ChannelID)
		if err != nil {
			h.logger.Warn("trade_modal_error", "error", err.Error())
			return
		}
		h.openModal(ctx, cmd, view)
	case "/admin":
		if !h.isAdmin(ctx, cmd.UserID) {
			h.replyEphemeral(ctx, cmd, msgNoPermission)
			return
		}
		h.openModal(ctx, cmd, newAdminModal())
	case "/help":
		h.replyEphemeral(ctx, cmd, msgHelp)
	default:
		h.logger.Debug("slash_command_ignored", "command", cmd.Command)
	}
}

func (h *handler) handleNetworkCommand(ctx context.Context, cmd slackSlashCommand) {
	if !h.isAdmin(ctx, cmd.UserID) {
		h.replyEphemeral(ctx, cmd, msgNoPermission)
		return
	}
	members, err := h.members.HumanMembers(ctx, cmd.ChannelID)
	if err != nil {
		h.logger.Warn("network_members_error", "channel_id", cmd.ChannelID, "error", err.Error())
		h.replyEphemeral(ctx, cmd, msgNetworkError)
		return
	}
	memberIDs := make([]string, 0, len(members))
	for _, m := range members {
		memberIDs = append(memberIDs, m.ID)
	}
	view, err := newNetworkModal(cmd.ChannelID, memberIDs)
	if err != nil {
		h.logger.Warn("network_modal_error", "error", err.Error())
		h.replyEphemeral(ctx, cmd, msgNetworkError)
		return
	}
	if err := h.api.viewsOpen(ctx, cmd.TriggerID, view); err != nil {
		h.logger.Warn("network_modal_open_error", "error", err.Error())
		h.replyEphemeral(ctx, cmd, msgNetworkError)
	}
}

func (h *handler) handleScoreCommand(ctx context.Context, cmd slackSlashCommand) {
	groupName, teamNumber, err := network.ParseQuery(cmd.Text)
	if errors.Is(err, network.ErrMalformedQuery) {
		h.replyEphemeral(ctx, cmd, msgScoreUsage)
		return
	}
	if err != nil {
		h.logger.Warn("score_parse_error", "error", err.Error())
		h.replyEphemeral(ctx, cmd, msgScoreUsage)
		return
	}
	score, err := h.tracker.Query(ctx, cmd.ChannelID, groupName, teamNumber)
	if errors.Is(err, network.ErrDenied) {
		h.replyEphemeral(ctx, cmd, msgScoreDenied)
		return
	}
	if err != nil {
		h.logger.Warn("score_query_error", "channel_id", cmd.ChannelID, "error", err.Error())
		return
	}
	reply := fmt.Sprintf("%s %d조의 Honey Score는 %d점입니다!", groupName, teamNumber, score)
	if err := h.api.postMessage(ctx, cmd.ChannelID, reply, ""); err != nil {
		h.logger.Warn("score_post_error", "channel_id", cmd.ChannelID, "error", err.Error())
	}
}

func (h *handler) handleAskCommand(ctx context.Context, cmd slackSlashCommand) {
	question := strings.TrimSpace(cmd.Text)
	if question == "" {
		h.replyEphemeral(ctx, cmd, msgAskEmpty)
		return
	}
	answer, err := h.generateText(ctx, h.prompts.AskPrompt(question))
	if err != nil || answer == "" {
		h.logger.Warn("ask_generate_error", "error", errString(err))
		return
	}
	if err := h.api.postMessage(ctx, cmd.ChannelID, answer, ""); err != nil {
		h.logger.Warn("ask_post_error", "channel_id", cmd.ChannelID, "error", err.Error())
	}
}

func (h *handler) handleTodayCommand(ctx context.Context, cmd slackSlashCommand) {
	country := h.settings.Country(ctx, cmd.TeamID)
	phrase, err := h.generateText(ctx, h.prompts.PhraseOfDayPrompt(country))
	if err != nil || phrase == "" {
		h.logger.Warn("today_generate_error", "error", errString(err))
		return
	}
	if err := h.api.postMessage(ctx, cmd.ChannelID, msgTodayPrefix+phrase, ""); err != nil {
		h.logger.Warn("today_post_error", "channel_id", cmd.ChannelID, "error", err.Error())
	}
}

func (h *handler) handleViewSubmission(ctx context.Context, payload slackInteractivePayload) {
	if payload.Type != "view_submission" {
		return
	}
	switch payload.View.CallbackID {
	case networkModalCallbackID:
		h.handleNetworkSubmission(ctx, payload)
	case welcomeModalCallbackID:
		h.handleWelcomeSubmission(ctx, payload)
	case tradeModalCallbackID:
		h.handleTradeSubmission(ctx, payload)
	case adminModalCallbackID:
		h.handleAdminSubmission(ctx, payload)
	default:
		h.logger.Debug("view_submission_ignored", "callback_id", payload.View.CallbackID)
	}
}

func (h *handler) handleNetworkSubmission(ctx context.Context, payload slackInteractivePayload) {
	var meta modalMetadata
	if err := json.Unmarshal([]byte(payload.View.PrivateMetadata), &meta); err != nil || strings.TrimSpace(meta.ChannelID) == "" {
		h.logger.Warn("network_metadata_error", "error", errString(err))
		return
	}
	originChannel := meta.ChannelID

	state := payload.View.State
	groupName := stateValue(state, "network_name_block", "network_name_input")
	note := stateValue(state, "info_block", "info_input")
	teamCount, err := strconv.Atoi(stateValue(state, "team_count_block", "team_count_input"))
	if err != nil {
		h.postOrWarn(ctx, originChannel, msgNetworkError)
		return
	}

	members := h.resolveSelectedMembers(ctx, stateUsers(state, "include_users_block", "include_users_select"))
	req := network.GroupRequest{GroupName: groupName, TeamCount: teamCount, Members: members, Note: note}
	if err := req.Validate(); err != nil {
		h.logger.Warn("network_request_invalid", "error", err.Error())
		h.postOrWarn(ctx, originChannel, msgNetworkError)
		return
	}

	teams, err := h.partition(req.Members, req.TeamCount)
	if err != nil {
		h.logger.Warn("network_partition_error", "error", err.Error())
		h.postOrWarn(ctx, originChannel, msgNetworkError)
		return
	}

	h.postOrWarn(ctx, originChannel, renderAssignmentSummary(req.GroupName, teams, req.Note))

	results := h.provisioner.Provision(ctx, req.GroupName, teams)
	for _, res := range results {
		teamNumber := res.TeamIndex + 1
		switch res.Status {
		case network.StatusSkippedTooLarge:
			h.postOrWarn(ctx, originChannel, fmt.Sprintf("조 %d 인원이 8명을 초과하여 DM 방을 생성할 수 없습니다.", teamNumber))
		case network.StatusFailed:
			h.postOrWarn(ctx, originChannel, fmt.Sprintf("조 %d DM 생성에 실패했습니다.", teamNumber))
		}
	}
}

// resolveSelectedMembers looks up each selected user and keeps the humans.
func (h *handler) resolveSelectedMembers(ctx context.Context, userIDs []string) []network.Member {
	members := make([]network.Member, 0, len(userIDs))
	for _, id := range userIDs {
		id = strings.TrimSpace(id)
		if id == "" || id == "USLACKBOT" {
			continue
		}
		info, err := h.api.userInfo(ctx, id)
		if err != nil {
			h.logger.Warn("network_user_info_error", "user_id", id, "error", err.Error())
			continue
		}
		if info.IsBot {
			continue
		}
		name := info.DisplayName
		if name == "" {
			name = id
		}
		members = append(members, network.Member{ID: id, DisplayName: name})
	}
	return members
}

func renderAssignmentSummary(groupName string, teams []network.Team, note string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* 네트워킹 조 편성 완료!\n", groupName)
	for _, team := range teams {
		mentions := make([]string, 0, len(team.Members))
		for _, m := range team.Members {
			mentions = append(mentions, fmt.Sprintf("<@%s>", m.ID))
		}
		fmt.Fprintf(&b, "*조 %d:* %s\n", team.Index+1, strings.Join(mentions, " "))
	}
	if note = strings.TrimSpace(note); note != "" {
		fmt.Fprintf(&b, "\n%s", note)
	}
	return b.String()
}

func (h *handler) handleWelcomeSubmission(ctx context.Context, payload slackInteractivePayload) {
	state := payload.View.State
	p := profile.UserProfile{
		UserID:      payload.User.ID,
		Name:        stateValue(state, "name_block", "name_input"),
		Gender:      stateValue(state, "gender_block", "gender_select"),
		Age:         stateValue(state, "age_block", "age_input"),
		Nationality: stateValue(state, "nationality_block", "nationality_input"),
		AlmaMater:   stateValue(state, "alma_mater_block", "alma_mater_input"),
	}
	if err := h.profiles.Save(ctx, p); err != nil {
		h.logger.Warn("profile_save_error", "user_id", payload.User.ID, "error", err.Error())
		return
	}
	h.dmUser(ctx, payload.User.ID, fmt.Sprintf("%s님, 자기소개가 저장되었습니다. 환영합니다!", p.Name))
}

func (h *handler) handleTradeSubmission(ctx context.Context, payload slackInteractivePayload) {
	state := payload.View.State
	posting := trade.Posting{
		UserID:      payload.User.ID,
		ItemName:    stateValue(state, "item_name_block", "item_name_input"),
		Condition:   stateValue(state, "condition_block", "condition_select"),
		Price:       stateValue(state, "price_block", "price_input"),
		Place:       stateValue(state, "place_block", "place_input"),
		Description: stateValue(state, "description_block", "description_input"),
	}
	if err := h.trades.Save(ctx, posting); err != nil {
		h.logger.Warn("trade_save_error", "user_id", payload.User.ID, "error", err.Error())
		return
	}
	// The posting goes back to the invoking channel; a configured trade
	// channel overrides it.
	channelID := h.tradeChannelID
	var meta modalMetadata
	if err := json.Unmarshal([]byte(payload.View.PrivateMetadata), &meta); err == nil && strings.TrimSpace(meta.ChannelID) != "" && channelID == "" {
		channelID = meta.ChannelID
	}
	if channelID == "" {
		h.logger.Warn("trade_channel_unresolved", "user_id", payload.User.ID)
		h.dmUser(ctx, payload.User.ID, "판매글을 올릴 채널을 찾지 못했습니다. 관리자에게 문의해주세요.")
		return
	}
	if err := h.api.postMessage(ctx, channelID, trade.RenderPosting(posting), ""); err != nil {
		h.logger.Warn("trade_post_error", "channel_id", channelID, "error", err.Error())
	}
}

func (h *handler) handleAdminSubmission(ctx context.Context, payload slackInteractivePayload) {
	settings := workspace.Settings{
		TeamID:     payload.Team.ID,
		Country:    stateValue(payload.View.State, "country_block", "country_input"),
		University: stateValue(payload.View.State, "university_block", "university_input"),
	}
	if err := h.settings.Save(ctx, settings); err != nil {
		h.logger.Warn("workspace_save_error", "team_id", payload.Team.ID, "error", err.Error())
		return
	}
	h.dmUser(ctx, payload.User.ID, "워크스페이스 설정이 저장되었습니다.")
}

func (h *handler) openModal(ctx context.Context, cmd slackSlashCommand, view slackModalView) {
	if err := h.api.viewsOpen(ctx, cmd.TriggerID, view); err != nil {
		h.logger.Warn("modal_open_error", "command", cmd.Command, "error", err.Error())
	}
}

func (h *handler) replyEphemeral(ctx context.Context, cmd slackSlashCommand, text string) {
	if err := h.api.postEphemeral(ctx, cmd.ChannelID, cmd.UserID, text); err != nil {
		h.logger.Warn("ephemeral_post_error", "channel_id", cmd.ChannelID, "error", err.Error())
	}
}

func (h *handler) postOrWarn(ctx context.Context, channelID, text string) {
	if err := h.api.postMessage(ctx, channelID, text, ""); err != nil {
		h.logger.Warn("message_post_error", "channel_id", channelID, "error", err.Error())
	}
}

func (h *handler) dmUser(ctx context.Context, userID, text string) {
	dm, err := h.api.conversationsOpen(ctx, []string{userID})
	if err != nil {
		h.logger.Warn("dm_open_error", "user_id", userID, "error", err.Error())
		return
	}
	if err := h.api.postMessage(ctx, dm, text, ""); err != nil {
		h.logger.Warn("dm_post_error", "user_id", userID, "error", err.Error())
	}
}

func errString(err error) string {
	if err == nil {
		return "empty output"
	}
	return err.Error()
}
