package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"docutalk-backend/internal/models"

	"github.com/google/uuid"
	"github.com/slack-go/slack"
)

func TestNewSlackNotifierUnconfigured(t *testing.T) {
	if _, ok := NewSlackNotifier("", "C1").(Nop); !ok {
		t.Error("empty token should give Nop")
	}
	if _, ok := NewSlackNotifier("xoxb-1", "").(Nop); !ok {
		t.Error("empty channel should give Nop")
	}
}

func TestPublicSharingRequestedPosts(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat.postMessage") {
			http.NotFound(w, r)
			return
		}
		_ = r.ParseForm()
		got = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true, "channel": "C1", "ts": "1700000000.000100"}`))
	}))
	defer srv.Close()

	n := NewSlackNotifier("xoxb-test", "C1", slack.OptionAPIURL(srv.URL+"/"))
	bot := &models.Chatbot{ID: uuid.New(), Title: "Contracts"}
	user := &models.User{Email: "ada@example.com", FriendlyName: "Ada L."}
	n.PublicSharingRequested(context.Background(), bot, user)

	if got.Get("channel") != "C1" {
		t.Fatalf("channel = %q", got.Get("channel"))
	}
	text := got.Get("text")
	for _, want := range []string{"Contracts", bot.ID.String(), "ada@example.com"} {
		if !strings.Contains(text, want) {
			t.Errorf("message %q missing %q", text, want)
		}
	}
}
