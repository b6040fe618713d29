package chat

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ovasilenko/chatmarket-backend/pkg/config"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
)

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func testSender(doer httpDoer) *BotSender {
	return NewBotSenderWithDoer(config.ChatConfig{
		BotToken:       "123:token",
		APIBaseURL:     "https://chat.test",
		RequestTimeout: time.Second,
	}, doer)
}

func TestSendMessage(t *testing.T) {
	t.Parallel()

	var gotURL, gotBody string
	sender := testSender(doerFunc(func(req *http.Request) (*http.Response, error) {
		gotURL = req.URL.String()
		raw, _ := io.ReadAll(req.Body)
		gotBody = string(raw)
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"ok":true}`)),
		}, nil
	}))

	if err := sender.SendMessage(context.Background(), 42, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotURL != "https://chat.test/bot123:token/sendMessage" {
		t.Fatalf("unexpected endpoint %q", gotURL)
	}
	if !strings.Contains(gotBody, `"chat_id":42`) || !strings.Contains(gotBody, `"text":"hello"`) {
		t.Fatalf("unexpected body %q", gotBody)
	}
}

func TestSendMessagePlatformRejection(t *testing.T) {
	t.Parallel()

	sender := testSender(doerFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"ok":false,"description":"chat not found"}`)),
		}, nil
	}))

	err := sender.SendMessage(context.Background(), 42, "hello")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("description missing from %q", err.Error())
	}
}

func TestSendMessageValidatesInput(t *testing.T) {
	t.Parallel()

	sender := testSender(doerFunc(func(*http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	}))

	if err := sender.SendMessage(context.Background(), 0, "hello"); err == nil {
		t.Fatal("expected error for zero chat id")
	}
	if err := sender.SendMessage(context.Background(), 42, ""); err == nil {
		t.Fatal("expected error for empty text")
	}
}
