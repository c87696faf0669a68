package slackcmd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/globee-labs/globee/internal/blobstore"
	"github.com/globee-labs/globee/internal/membership"
	"github.com/globee-labs/globee/internal/network"
	"github.com/globee-labs/globee/internal/profile"
	"github.com/globee-labs/globee/internal/prompt"
	"github.com/globee-labs/globee/internal/trade"
	"github.com/globee-labs/globee/internal/workspace"
	"github.com/globee-labs/globee/llm"
)

type fakeLLM struct {
	out string
	err error
}

func (f *fakeLLM) Generate(ctx context.Context, req llm.Request) (string, error) {
	return f.out, f.err
}

// fakeSlack records web API calls the handler makes.
type fakeSlack struct {
	mu         sync.Mutex
	messages   []map[string]any
	ephemerals []map[string]any
	views      int
	historyMsg map[string]string // ts -> "user|text"
	users      map[string]string // id -> users.info response body
}

func (f *fakeSlack) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.URL.Path {
		case "/chat.postMessage":
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			f.messages = append(f.messages, req)
			_, _ = w.Write([]byte(`{"ok":true,"ts":"1.2"}`))
		case "/chat.postEphemeral":
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			f.ephemerals = append(f.ephemerals, req)
			_, _ = w.Write([]byte(`{"ok":true}`))
		case "/views.open":
			f.views++
			_, _ = w.Write([]byte(`{"ok":true}`))
		case "/conversations.open":
			_, _ = w.Write([]byte(`{"ok":true,"channel":{"id":"D900"}}`))
		case "/conversations.history":
			_ = r.ParseForm()
			entry := f.historyMsg[r.PostForm.Get("latest")]
			parts := strings.SplitN(entry, "|", 2)
			if len(parts) != 2 {
				_, _ = w.Write([]byte(`{"ok":true,"messages":[]}`))
				return
			}
			raw, _ := json.Marshal(map[string]any{
				"ok":       true,
				"messages": []map[string]string{{"user": parts[0], "text": parts[1], "ts": r.PostForm.Get("latest")}},
			})
			_, _ = w.Write(raw)
		case "/users.info":
			_ = r.ParseForm()
			body, ok := f.users[r.PostForm.Get("user")]
			if !ok {
				_, _ = w.Write([]byte(`{"ok":false,"error":"user_not_found"}`))
				return
			}
			_, _ = w.Write([]byte(body))
		default:
			t.Errorf("unexpected slack api call: %s", r.URL.Path)
			_, _ = w.Write([]byte(`{"ok":false,"error":"unknown_method"}`))
		}
	}
}

func (f *fakeSlack) lastMessage() (channel, text string, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return "", "", false
	}
	last := f.messages[len(f.messages)-1]
	channel, _ = last["channel"].(string)
	text, _ = last["text"].(string)
	return channel, text, true
}

func (f *fakeSlack) lastEphemeral() (user, text string, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ephemerals) == 0 {
		return "", "", false
	}
	last := f.ephemerals[len(f.ephemerals)-1]
	user, _ = last["user"].(string)
	text, _ = last["text"].(string)
	return user, text, true
}

func newTestHandler(t *testing.T, fake *fakeSlack, gen llm.Client) (*handler, *network.RecordStore, *trade.Store) {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := newSlackAPI(srv.Client(), srv.URL, "xoxb-test", "xapp-test")

	blobs := blobstore.NewMemoryStore()
	records, err := network.NewRecordStore(blobs)
	if err != nil {
		t.Fatalf("NewRecordStore() error = %v", err)
	}
	tracker, err := network.NewTracker(records, logger)
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}
	profiles, err := profile.NewStore(blobs)
	if err != nil {
		t.Fatalf("profile.NewStore() error = %v", err)
	}
	trades, err := trade.NewStore(blobs)
	if err != nil {
		t.Fatalf("trade.NewStore() error = %v", err)
	}
	settings, err := workspace.NewStore(blobs)
	if err != nil {
		t.Fatalf("workspace.NewStore() error = %v", err)
	}
	provisioner, err := network.NewProvisioner(network.ProvisionerOptions{
		Platform: &slackConversations{api: api},
		Records:  records,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("NewProvisioner() error = %v", err)
	}
	resolver, err := membership.NewResolver(&slackDirectory{api: api}, logger)
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}

	return &handler{
		api:            api,
		logger:         logger,
		members:        resolver,
		provisioner:    provisioner,
		tracker:        tracker,
		profiles:       profiles,
		trades:         trades,
		settings:       settings,
		generate:       gen,
		prompts:        prompt.Default(),
		botUserID:      "UBOT",
		tradeChannelID: "CTRADE",
		rng:            rand.New(rand.NewSource(1)),
	}, records, trades
}

func TestScoreCommandFlow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := &fakeSlack{}
	h, records, _ := newTestHandler(t, fake, &fakeLLM{})

	if err := records.Save(ctx, network.ConversationRecord{ConversationID: "G001", GroupName: "해커톤", TeamNumber: 3}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		h.handleMessageEvent(ctx, slackEvent{Type: "message", User: "U001", Channel: "G001"})
	}
	// Bot-authored messages do not count.
	h.handleMessageEvent(ctx, slackEvent{Type: "message", User: "UBOT", Channel: "G001"})

	h.handleSlashCommand(ctx, slackSlashCommand{Command: "/score", Text: "해커톤 3", UserID: "U001", ChannelID: "G001"})
	channel, text, ok := fake.lastMessage()
	if !ok {
		t.Fatalf("no message posted")
	}
	if channel != "G001" || text != "해커톤 3조의 Honey Score는 3점입니다!" {
		t.Fatalf("posted (%q, %q)", channel, text)
	}
}

func TestScoreCommandDenialAndUsage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := &fakeSlack{}
	h, records, _ := newTestHandler(t, fake, &fakeLLM{})
	if err := records.Save(ctx, network.ConversationRecord{ConversationID: "G001", GroupName: "해커톤", TeamNumber: 3}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	h.handleSlashCommand(ctx, slackSlashCommand{Command: "/score", Text: "해커톤 2", UserID: "U001", ChannelID: "G001"})
	if _, text, ok := fake.lastEphemeral(); !ok || text != msgScoreDenied {
		t.Fatalf("denial reply = %q, want %q", text, msgScoreDenied)
	}

	h.handleSlashCommand(ctx, slackSlashCommand{Command: "/score", Text: "해커톤", UserID: "U001", ChannelID: "G001"})
	if _, text, _ := fake.lastEphemeral(); text != msgScoreUsage {
		t.Fatalf("usage reply = %q, want %q", text, msgScoreUsage)
	}

	if _, _, ok := fake.lastMessage(); ok {
		t.Fatalf("denied queries must not post to the channel")
	}
}

func TestTranslationReactionPostsEphemeral(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := &fakeSlack{historyMsg: map[string]string{"1.100": "U001|좋은 아침입니다"}}
	h, _, _ := newTestHandler(t, fake, &fakeLLM{out: "Good morning"})

	h.handleReactionEvent(ctx, slackEvent{
		Type:     "reaction_added",
		User:     "U002",
		Reaction: "us",
		Item:     slackEventItem{Type: "message", Channel: "C001", TS: "1.100"},
	})

	user, text, ok := fake.lastEphemeral()
	if !ok {
		t.Fatalf("no ephemeral posted")
	}
	if user != "U002" || text != "Good morning" {
		t.Fatalf("ephemeral = (%q, %q)", user, text)
	}
}

func TestTranslationReactionIgnoresGenerateError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := &fakeSlack{historyMsg: map[string]string{"1.100": "U001|좋은 아침입니다"}}
	h, _, _ := newTestHandler(t, fake, &fakeLLM{err: errors.New("model unavailable")})

	h.handleReactionEvent(ctx, slackEvent{
		Type:     "reaction_added",
		User:     "U002",
		Reaction: "jp",
		Item:     slackEventItem{Type: "message", Channel: "C001", TS: "1.100"},
	})
	if _, _, ok := fake.lastEphemeral(); ok {
		t.Fatalf("failed generation must not post")
	}
}

func TestTradeReactionOpensBuyerSellerDM(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := &fakeSlack{historyMsg: map[string]string{"1.200": "UBOT|<@U001>님의 판매글입니다!\n*상품명:* 자전거"}}
	h, _, trades := newTestHandler(t, fake, &fakeLLM{})
	if err := trades.Save(ctx, trade.Posting{UserID: "U001", ItemName: "자전거"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	h.handleReactionEvent(ctx, slackEvent{
		Type:     "reaction_added",
		User:     "U002",
		Reaction: "raised_hand",
		Item:     slackEventItem{Type: "message", Channel: "CTRADE", TS: "1.200"},
	})

	channel, text, ok := fake.lastMessage()
	if !ok {
		t.Fatalf("no DM posted")
	}
	if channel != "D900" {
		t.Fatalf("posted to %q, want the opened DM", channel)
	}
	if !strings.Contains(text, "<@U002>") || !strings.Contains(text, "<@U001>") || !strings.Contains(text, "자전거") {
		t.Fatalf("intro = %q", text)
	}
}

func TestTradeReactionIgnoresOwnPosting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := &fakeSlack{historyMsg: map[string]string{"1.200": "UBOT|<@U001>님의 판매글입니다!"}}
	h, _, trades := newTestHandler(t, fake, &fakeLLM{})
	if err := trades.Save(ctx, trade.Posting{UserID: "U001", ItemName: "자전거"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	h.handleReactionEvent(ctx, slackEvent{
		Type:     "reaction_added",
		User:     "U001",
		Reaction: "wave",
		Item:     slackEventItem{Type: "message", Channel: "CTRADE", TS: "1.200"},
	})
	if _, _, ok := fake.lastMessage(); ok {
		t.Fatalf("seller reacting to their own posting must not open a DM")
	}
}

func TestAdminCommandGating(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := &fakeSlack{users: map[string]string{
		"UADMIN": `{"ok":true,"user":{"id":"UADMIN","is_admin":true,"profile":{"display_name":"admin"}}}`,
		"UPLAIN": `{"ok":true,"user":{"id":"UPLAIN","is_admin":false,"profile":{"display_name":"plain"}}}`,
	}}
	h, _, _ := newTestHandler(t, fake, &fakeLLM{})

	h.handleSlashCommand(ctx, slackSlashCommand{Command: "/admin", UserID: "UPLAIN", ChannelID: "C001", TriggerID: "t1"})
	if _, text, ok := fake.lastEphemeral(); !ok || text != msgNoPermission {
		t.Fatalf("non-admin reply = %q, want %q", text, msgNoPermission)
	}
	if fake.views != 0 {
		t.Fatalf("non-admin must not open the modal")
	}

	h.handleSlashCommand(ctx, slackSlashCommand{Command: "/admin", UserID: "UADMIN", ChannelID: "C001", TriggerID: "t2"})
	if fake.views != 1 {
		t.Fatalf("admin modal opens = %d, want 1", fake.views)
	}
}

func TestAskCommand(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := &fakeSlack{}
	h, _, _ := newTestHandler(t, fake, &fakeLLM{out: "물론이죠!"})

	h.handleSlashCommand(ctx, slackSlashCommand{Command: "/ask", Text: "  ", UserID: "U001", ChannelID: "C001"})
	if _, text, ok := fake.lastEphemeral(); !ok || text != msgAskEmpty {
		t.Fatalf("empty ask reply = %q, want %q", text, msgAskEmpty)
	}

	h.handleSlashCommand(ctx, slackSlashCommand{Command: "/ask", Text: "서울 맛집 추천해줘", UserID: "U001", ChannelID: "C001"})
	if _, text, ok := fake.lastMessage(); !ok || text != "물론이죠!" {
		t.Fatalf("ask answer = %q", text)
	}
}

func TestTodayCommandUsesWorkspaceCountry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := &fakeSlack{}
	gen := &fakeLLM{out: "Phrase: \"안녕하세요\""}
	h, _, _ := newTestHandler(t, fake, gen)
	if err := h.settings.Save(ctx, workspace.Settings{TeamID: "T001", Country: "japan"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	h.handleSlashCommand(ctx, slackSlashCommand{Command: "/today", UserID: "U001", ChannelID: "C001", TeamID: "T001"})
	_, text, ok := fake.lastMessage()
	if !ok {
		t.Fatalf("no message posted")
	}
	if !strings.HasPrefix(text, "오늘의 회화\n") {
		t.Fatalf("today message = %q, want prefix", text)
	}
}

func TestNetworkSubmissionProvisionsTeams(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := &fakeSlack{users: map[string]string{
		"U001": `{"ok":true,"user":{"id":"U001","profile":{"display_name":"a"}}}`,
		"U002": `{"ok":true,"user":{"id":"U002","profile":{"display_name":"b"}}}`,
		"U003": `{"ok":true,"user":{"id":"U003","profile":{"display_name":"c"}}}`,
		"U004": `{"ok":true,"user":{"id":"U004","profile":{"display_name":"d"}}}`,
	}}
	h, records, _ := newTestHandler(t, fake, &fakeLLM{})

	payload := slackInteractivePayload{Type: "view_submission"}
	payload.User.ID = "UADMIN"
	payload.Team.ID = "T001"
	payload.View = slackView{
		CallbackID:      networkModalCallbackID,
		PrivateMetadata: `{"channel_id":"C100"}`,
		State: slackViewState{Values: map[string]map[string]slackViewStateValue{
			"network_name_block":  {"network_name_input": {Value: "해커톤"}},
			"team_count_block":    {"team_count_input": {Value: "2"}},
			"info_block":          {"info_input": {Value: "첫 모임은 금요일!"}},
			"include_users_block": {"include_users_select": {SelectedUsers: []string{"U001", "U002", "U003", "U004"}}},
		}},
	}
	h.handleViewSubmission(ctx, payload)

	fake.mu.Lock()
	var summary string
	welcomes := 0
	for _, msg := range fake.messages {
		text, _ := msg["text"].(string)
		if strings.Contains(text, "조 편성 완료") {
			summary = text
		}
		if strings.Contains(text, "단체 DM입니다") {
			welcomes++
		}
	}
	fake.mu.Unlock()

	if summary == "" {
		t.Fatalf("no assignment summary posted")
	}
	if !strings.Contains(summary, "*해커톤*") || !strings.Contains(summary, "*조 1:*") || !strings.Contains(summary, "*조 2:*") || !strings.Contains(summary, "첫 모임은 금요일!") {
		t.Fatalf("summary = %q", summary)
	}
	if welcomes != 2 {
		t.Fatalf("welcome posts = %d, want one per team", welcomes)
	}
	// Both DMs share the fake channel id, so the second record overwrote the
	// first; what matters is that a record exists for the opened channel.
	if _, ok, err := records.Find(ctx, "D900"); err != nil || !ok {
		t.Fatalf("record for opened DM: ok=%v err=%v", ok, err)
	}
}

func TestWelcomeSubmissionSavesProfile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := &fakeSlack{}
	h, _, _ := newTestHandler(t, fake, &fakeLLM{})

	payload := slackInteractivePayload{Type: "view_submission"}
	payload.User.ID = "U001"
	payload.View = slackView{
		CallbackID: welcomeModalCallbackID,
		State: slackViewState{Values: map[string]map[string]slackViewStateValue{
			"name_block":        {"name_input": {Value: "김지민"}},
			"age_block":         {"age_input": {Value: "23"}},
			"nationality_block": {"nationality_input": {Value: "대한민국"}},
			"alma_mater_block":  {"alma_mater_input": {Value: "서울대학교"}},
		}},
	}
	h.handleViewSubmission(ctx, payload)

	got, ok, err := h.profiles.Find(ctx, "U001")
	if err != nil || !ok {
		t.Fatalf("Find() = ok=%v err=%v", ok, err)
	}
	if got.Name != "김지민" || got.AlmaMater != "서울대학교" {
		t.Fatalf("profile = %+v", got)
	}
	if channel, _, ok := fake.lastMessage(); !ok || channel != "D900" {
		t.Fatalf("confirmation DM channel = %q", channel)
	}
}

func TestTradeSubmissionPostsToTradeChannel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := &fakeSlack{}
	h, _, trades := newTestHandler(t, fake, &fakeLLM{})

	payload := slackInteractivePayload{Type: "view_submission"}
	payload.User.ID = "U001"
	payload.View = slackView{
		CallbackID: tradeModalCallbackID,
		State: slackViewState{Values: map[string]map[string]slackViewStateValue{
			"item_name_block": {"item_name_input": {Value: "자전거"}},
			"price_block":     {"price_input": {Value: "50000원"}},
			"place_block":     {"place_input": {Value: "기숙사 정문"}},
		}},
	}
	h.handleViewSubmission(ctx, payload)

	if _, ok, err := trades.Find(ctx, "U001"); err != nil || !ok {
		t.Fatalf("posting not saved: ok=%v err=%v", ok, err)
	}
	channel, text, ok := fake.lastMessage()
	if !ok || channel != "CTRADE" {
		t.Fatalf("posting channel = %q, want CTRADE", channel)
	}
	if !strings.Contains(text, "자전거") {
		t.Fatalf("posting text = %q", text)
	}
}

func TestTradeSubmissionFallsBackToOriginChannel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := &fakeSlack{}
	h, _, _ := newTestHandler(t, fake, &fakeLLM{})
	h.tradeChannelID = ""

	payload := slackInteractivePayload{Type: "view_submission"}
	payload.User.ID = "U001"
	payload.View = slackView{
		CallbackID:      tradeModalCallbackID,
		PrivateMetadata: `{"channel_id":"C777"}`,
		State: slackViewState{Values: map[string]map[string]slackViewStateValue{
			"item_name_block": {"item_name_input": {Value: "책상"}},
		}},
	}
	h.handleViewSubmission(ctx, payload)

	if channel, _, ok := fake.lastMessage(); !ok || channel != "C777" {
		t.Fatalf("posting channel = %q, want the invoking channel", channel)
	}
}
