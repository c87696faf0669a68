package slackcmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type slackAPI struct {
	http     *http.Client
	baseURL  string
	botToken string
	appToken string
}

func newSlackAPI(httpClient *http.Client, baseURL, botToken, appToken string) *slackAPI {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL = strings.TrimSpace(strings.TrimRight(baseURL, "/"))
	if baseURL == "" {
		baseURL = "https://slack.com/api"
	}
	return &slackAPI{
		http:     httpClient,
		baseURL:  baseURL,
		botToken: strings.TrimSpace(botToken),
		appToken: strings.TrimSpace(appToken),
	}
}

type slackAuthTestResult struct {
	TeamID string
	UserID string
	BotID  string
	Team   string
	User   string
}

type slackAuthTestResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	TeamID string `json:"team_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
	BotID  string `json:"bot_id,omitempty"`
	Team   string `json:"team,omitempty"`
	User   string `json:"user,omitempty"`
}

func (api *slackAPI) authTest(ctx context.Context) (slackAuthTestResult, error) {
	if api == nil {
		return slackAuthTestResult{}, fmt.Errorf("slack api is not initialized")
	}
	body, status, _, err := api.postAuthJSON(ctx, api.botToken, "/auth.test", nil)
	if err != nil {
		return slackAuthTestResult{}, err
	}
	if status < 200 || status >= 300 {
		return slackAuthTestResult{}, fmt.Errorf("slack auth.test http %d", status)
	}
	var out slackAuthTestResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return slackAuthTestResult{}, err
	}
	if !out.OK {
		return slackAuthTestResult{}, fmt.Errorf("slack auth.test failed: %s", errorCode(out.Error))
	}
	return slackAuthTestResult{
		TeamID: strings.TrimSpace(out.TeamID),
		UserID: strings.TrimSpace(out.UserID),
		BotID:  strings.TrimSpace(out.BotID),
		Team:   strings.TrimSpace(out.Team),
		User:   strings.TrimSpace(out.User),
	}, nil
}

type slackOpenConnectionResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	URL   string `json:"url,omitempty"`
}

func (api *slackAPI) openSocketURL(ctx context.Context) (string, error) {
	if api == nil {
		return "", fmt.Errorf("slack api is not initialized")
	}
	body, status, _, err := api.postAuthJSON(ctx, api.appToken, "/apps.connections.open", nil)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("slack apps.connections.open http %d", status)
	}
	var out slackOpenConnectionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if !out.OK {
		return "", fmt.Errorf("slack apps.connections.open failed: %s", errorCode(out.Error))
	}
	socketURL := strings.TrimSpace(out.URL)
	if socketURL == "" {
		return "", fmt.Errorf("slack apps.connections.open returned empty url")
	}
	return socketURL, nil
}

func (api *slackAPI) connectSocket(ctx context.Context) (*websocket.Conn, error) {
	socketURL, err := api.openSocketURL(ctx)
	if err != nil {
		return nil, err
	}
	dialer := *websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, socketURL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type slackPostMessageRequest struct {
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

type slackPostMessageResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	TS    string `json:"ts,omitempty"`
}

func (api *slackAPI) postMessage(ctx context.Context, channelID, text, threadTS string) error {
	channelID = strings.TrimSpace(channelID)
	text = strings.TrimSpace(text)
	threadTS = strings.TrimSpace(threadTS)
	if channelID == "" {
		return fmt.Errorf("channel_id is required")
	}
	if text == "" {
		return fmt.Errorf("text is required")
	}
	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		body, status, headers, err := api.postAuthJSON(ctx, api.botToken, "/chat.postMessage", slackPostMessageRequest{
			Channel:  channelID,
			Text:     text,
			ThreadTS: threadTS,
		})
		if err != nil {
			lastErr = err
		} else {
			var out slackPostMessageResponse
			if parseErr := json.Unmarshal(body, &out); parseErr != nil {
				lastErr = parseErr
			} else if status < 200 || status >= 300 {
				lastErr = fmt.Errorf("slack chat.postMessage http %d", status)
			} else if out.OK {
				return nil
			} else {
				lastErr = fmt.Errorf("slack chat.postMessage failed: %s", errorCode(out.Error))
			}
		}

		if attempt >= maxAttempts {
			break
		}
		wait, retryable := slackRetryDelay(status, headers, attempt)
		if !retryable {
			break
		}
		if err := sleepWithContext(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

type slackPostEphemeralRequest struct {
	Channel string `json:"channel"`
	User    string `json:"user"`
	Text    string `json:"text"`
}

type slackGenericResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// postEphemeral sends a message only the named user can see.
func (api *slackAPI) postEphemeral(ctx context.Context, channelID, userID, text string) error {
	channelID = strings.TrimSpace(channelID)
	userID = strings.TrimSpace(userID)
	text = strings.TrimSpace(text)
	if channelID == "" || userID == "" {
		return fmt.Errorf("channel_id and user are required")
	}
	if text == "" {
		return fmt.Errorf("text is required")
	}
	body, status, _, err := api.postAuthJSON(ctx, api.botToken, "/chat.postEphemeral", slackPostEphemeralRequest{
		Channel: channelID,
		User:    userID,
		Text:    text,
	})
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("slack chat.postEphemeral http %d", status)
	}
	var out slackGenericResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("slack chat.postEphemeral failed: %s", errorCode(out.Error))
	}
	return nil
}

type slackConversationsMembersResponse struct {
	OK               bool     `json:"ok"`
	Error            string   `json:"error,omitempty"`
	Members          []string `json:"members,omitempty"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor,omitempty"`
	} `json:"response_metadata"`
}

// conversationsMembers lists every member of a channel, following cursor
// pagination to the end.
func (api *slackAPI) conversationsMembers(ctx context.Context, channelID string) ([]string, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return nil, fmt.Errorf("channel_id is required")
	}
	var members []string
	cursor := ""
	for {
		form := url.Values{}
		form.Set("channel", channelID)
		form.Set("limit", "200")
		if cursor != "" {
			form.Set("cursor", cursor)
		}
		body, status, _, err := api.postAuthForm(ctx, api.botToken, "/conversations.members", form)
		if err != nil {
			return nil, err
		}
		if status < 200 || status >= 300 {
			return nil, fmt.Errorf("slack conversations.members http %d", status)
		}
		var out slackConversationsMembersResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, err
		}
		if !out.OK {
			return nil, fmt.Errorf("slack conversations.members failed: %s", errorCode(out.Error))
		}
		members = append(members, out.Members...)
		cursor = strings.TrimSpace(out.ResponseMetadata.NextCursor)
		if cursor == "" {
			return members, nil
		}
	}
}

type slackUserInfoResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	User  struct {
		ID      string `json:"id"`
		IsBot   bool   `json:"is_bot"`
		IsAdmin bool   `json:"is_admin"`
		IsOwner bool   `json:"is_owner"`
		Profile struct {
			RealName    string `json:"real_name,omitempty"`
			DisplayName string `json:"display_name,omitempty"`
		} `json:"profile"`
	} `json:"user"`
}

type slackUser struct {
	ID          string
	DisplayName string
	IsBot       bool
	IsAdmin     bool
}

func (api *slackAPI) userInfo(ctx context.Context, userID string) (slackUser, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return slackUser{}, fmt.Errorf("user id is required")
	}
	form := url.Values{}
	form.Set("user", userID)
	body, status, _, err := api.postAuthForm(ctx, api.botToken, "/users.info", form)
	if err != nil {
		return slackUser{}, err
	}
	if status < 200 || status >= 300 {
		return slackUser{}, fmt.Errorf("slack users.info http %d", status)
	}
	var out slackUserInfoResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return slackUser{}, err
	}
	if !out.OK {
		return slackUser{}, fmt.Errorf("slack users.info failed: %s", errorCode(out.Error))
	}
	name := strings.TrimSpace(out.User.Profile.DisplayName)
	if name == "" {
		name = strings.TrimSpace(out.User.Profile.RealName)
	}
	return slackUser{
		ID:          strings.TrimSpace(out.User.ID),
		DisplayName: name,
		IsBot:       out.User.IsBot,
		IsAdmin:     out.User.IsAdmin || out.User.IsOwner,
	}, nil
}

type slackConversationsOpenResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
}

// conversationsOpen opens a direct message. With multiple users it opens a
// group DM (mpim); Slack caps participants at eight plus the bot.
func (api *slackAPI) conversationsOpen(ctx context.Context, userIDs []string) (string, error) {
	if len(userIDs) == 0 {
		return "", fmt.Errorf("at least one user id is required")
	}
	body, status, _, err := api.postAuthJSON(ctx, api.botToken, "/conversations.open", map[string]string{
		"users": strings.Join(userIDs, ","),
	})
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("slack conversations.open http %d", status)
	}
	var out slackConversationsOpenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if !out.OK {
		return "", fmt.Errorf("slack conversations.open failed: %s", errorCode(out.Error))
	}
	channelID := strings.TrimSpace(out.Channel.ID)
	if channelID == "" {
		return "", fmt.Errorf("slack conversations.open returned empty channel id")
	}
	return channelID, nil
}

type slackHistoryResponse struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Messages []struct {
		User string `json:"user,omitempty"`
		Text string `json:"text,omitempty"`
		TS   string `json:"ts,omitempty"`
	} `json:"messages,omitempty"`
}

// conversationsMessageAt fetches the single message at a timestamp, used to
// resolve the target of a reaction event.
func (api *slackAPI) conversationsMessageAt(ctx context.Context, channelID, ts string) (userID, text string, err error) {
	channelID = strings.TrimSpace(channelID)
	ts = strings.TrimSpace(ts)
	if channelID == "" || ts == "" {
		return "", "", fmt.Errorf("channel_id and ts are required")
	}
	form := url.Values{}
	form.Set("channel", channelID)
	form.Set("latest", ts)
	form.Set("inclusive", "true")
	form.Set("limit", "1")
	body, status, _, err := api.postAuthForm(ctx, api.botToken, "/conversations.history", form)
	if err != nil {
		return "", "", err
	}
	if status < 200 || status >= 300 {
		return "", "", fmt.Errorf("slack conversations.history http %d", status)
	}
	var out slackHistoryResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", "", err
	}
	if !out.OK {
		return "", "", fmt.Errorf("slack conversations.history failed: %s", errorCode(out.Error))
	}
	if len(out.Messages) == 0 {
		return "", "", fmt.Errorf("slack message %s not found in %s", ts, channelID)
	}
	return strings.TrimSpace(out.Messages[0].User), out.Messages[0].Text, nil
}

type slackViewsOpenRequest struct {
	TriggerID string          `json:"trigger_id"`
	View      json.RawMessage `json:"view"`
}

func (api *slackAPI) viewsOpen(ctx context.Context, triggerID string, view any) error {
	triggerID = strings.TrimSpace(triggerID)
	if triggerID == "" {
		return fmt.Errorf("trigger_id is required")
	}
	rawView, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encode view: %w", err)
	}
	body, status, _, err := api.postAuthJSON(ctx, api.botToken, "/views.open", slackViewsOpenRequest{
		TriggerID: triggerID,
		View:      rawView,
	})
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("slack views.open http %d", status)
	}
	var out slackGenericResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("slack views.open failed: %s", errorCode(out.Error))
	}
	return nil
}

func slackRetryDelay(status int, headers http.Header, attempt int) (time.Duration, bool) {
	switch {
	case status == http.StatusTooManyRequests:
		retryAfter := strings.TrimSpace(headers.Get("Retry-After"))
		if retryAfter == "" {
			return 1 * time.Second, true
		}
		secs, err := strconv.Atoi(retryAfter)
		if err != nil || secs <= 0 {
			return 1 * time.Second, true
		}
		return time.Duration(secs) * time.Second, true
	case status >= 500 && status <= 599:
		switch attempt {
		case 1:
			return 300 * time.Millisecond, true
		case 2:
			return 1 * time.Second, true
		default:
			return 2 * time.Second, true
		}
	default:
		return 0, false
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func errorCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return "unknown_error"
	}
	return code
}

func (api *slackAPI) postAuthJSON(ctx context.Context, token, path string, payload any) ([]byte, int, http.Header, error) {
	if api == nil || api.http == nil {
		return nil, 0, nil, fmt.Errorf("slack api is not initialized")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, 0, nil, fmt.Errorf("slack token is required")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, 0, nil, fmt.Errorf("slack api path is required")
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, api.baseURL+path, body)
	if err != nil {
		return nil, 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	return api.do(req)
}

func (api *slackAPI) postAuthForm(ctx context.Context, token, path string, form url.Values) ([]byte, int, http.Header, error) {
	if api == nil || api.http == nil {
		return nil, 0, nil, fmt.Errorf("slack api is not initialized")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, 0, nil, fmt.Errorf("slack token is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, api.baseURL+strings.TrimSpace(path), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return api.do(req)
}

func (api *slackAPI) do(req *http.Request) ([]byte, int, http.Header, error) {
	resp, err := api.http.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp.StatusCode, resp.Header, readErr
	}
	return raw, resp.StatusCode, resp.Header, nil
}
