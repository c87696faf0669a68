package slackcmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestPostMessageRetriesOnRateLimit(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat.postMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer xoxb-test" {
			t.Errorf("authorization = %q", got)
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"ok":false,"error":"ratelimited"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"ts":"1.2"}`))
	}))
	defer srv.Close()

	api := newSlackAPI(srv.Client(), srv.URL, "xoxb-test", "xapp-test")
	if err := api.postMessage(context.Background(), "C001", "hello", ""); err != nil {
		t.Fatalf("postMessage() error = %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestPostMessageStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer srv.Close()

	api := newSlackAPI(srv.Client(), srv.URL, "xoxb-test", "xapp-test")
	err := api.postMessage(context.Background(), "C404", "hello", "")
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Fatalf("postMessage() error = %v, want channel_not_found", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d, want no retry on a non-retryable error", got)
	}
}

func TestConversationsMembersPagination(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("channel"); got != "C001" {
			t.Errorf("channel = %q", got)
		}
		if r.PostForm.Get("cursor") == "" {
			_, _ = w.Write([]byte(`{"ok":true,"members":["U001","U002"],"response_metadata":{"next_cursor":"page2"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"members":["U003"],"response_metadata":{"next_cursor":""}}`))
	}))
	defer srv.Close()

	api := newSlackAPI(srv.Client(), srv.URL, "xoxb-test", "xapp-test")
	members, err := api.conversationsMembers(context.Background(), "C001")
	if err != nil {
		t.Fatalf("conversationsMembers() error = %v", err)
	}
	want := []string{"U001", "U002", "U003"}
	if len(members) != len(want) {
		t.Fatalf("members = %v, want %v", members, want)
	}
	for i := range want {
		if members[i] != want[i] {
			t.Fatalf("members[%d] = %q, want %q", i, members[i], want[i])
		}
	}
}

func TestUserInfoNameFallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"user":{"id":"U001","is_bot":false,"is_admin":false,"is_owner":true,"profile":{"real_name":"Kim Jimin","display_name":""}}}`))
	}))
	defer srv.Close()

	api := newSlackAPI(srv.Client(), srv.URL, "xoxb-test", "xapp-test")
	user, err := api.userInfo(context.Background(), "U001")
	if err != nil {
		t.Fatalf("userInfo() error = %v", err)
	}
	if user.DisplayName != "Kim Jimin" {
		t.Fatalf("display name = %q, want real_name fallback", user.DisplayName)
	}
	// Owners count as admins for command gating.
	if !user.IsAdmin {
		t.Fatalf("owner must report IsAdmin")
	}
}

func TestConversationsOpenJoinsUsers(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if req["users"] != "U001,U002,U003" {
			t.Errorf("users = %q", req["users"])
		}
		_, _ = w.Write([]byte(`{"ok":true,"channel":{"id":"G042"}}`))
	}))
	defer srv.Close()

	api := newSlackAPI(srv.Client(), srv.URL, "xoxb-test", "xapp-test")
	channelID, err := api.conversationsOpen(context.Background(), []string{"U001", "U002", "U003"})
	if err != nil {
		t.Fatalf("conversationsOpen() error = %v", err)
	}
	if channelID != "G042" {
		t.Fatalf("channel id = %q, want G042", channelID)
	}
}

func TestConversationsMessageAt(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("latest") != "1700000000.000200" || r.PostForm.Get("inclusive") != "true" || r.PostForm.Get("limit") != "1" {
			t.Errorf("form = %v", r.PostForm)
		}
		_, _ = w.Write([]byte(`{"ok":true,"messages":[{"user":"U001","text":"안녕하세요","ts":"1700000000.000200"}]}`))
	}))
	defer srv.Close()

	api := newSlackAPI(srv.Client(), srv.URL, "xoxb-test", "xapp-test")
	userID, text, err := api.conversationsMessageAt(context.Background(), "C001", "1700000000.000200")
	if err != nil {
		t.Fatalf("conversationsMessageAt() error = %v", err)
	}
	if userID != "U001" || text != "안녕하세요" {
		t.Fatalf("got (%q, %q)", userID, text)
	}
}

func TestSlackRetryDelay(t *testing.T) {
	t.Parallel()

	headers := http.Header{}
	headers.Set("Retry-After", "3")
	if wait, retryable := slackRetryDelay(http.StatusTooManyRequests, headers, 1); !retryable || wait != 3*time.Second {
		t.Fatalf("429 with Retry-After: wait=%v retryable=%v", wait, retryable)
	}
	if wait, retryable := slackRetryDelay(http.StatusTooManyRequests, http.Header{}, 1); !retryable || wait != 1*time.Second {
		t.Fatalf("429 without Retry-After: wait=%v retryable=%v", wait, retryable)
	}
	if _, retryable := slackRetryDelay(http.StatusInternalServerError, http.Header{}, 1); !retryable {
		t.Fatalf("5xx must be retryable")
	}
	if _, retryable := slackRetryDelay(http.StatusOK, http.Header{}, 1); retryable {
		t.Fatalf("2xx must not be retryable")
	}
}
