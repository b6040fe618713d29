package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ovasilenko/chatmarket-backend/pkg/config"
	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
)

// Sender delivers a text message to a chat-platform user.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// httpDoer lets tests stub the transport.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// BotSender talks to the chat platform's bot API.
type BotSender struct {
	baseURL  string
	botToken string
	http     httpDoer
}

func NewBotSender(cfg config.ChatConfig) *BotSender {
	return &BotSender{
		baseURL:  cfg.APIBaseURL,
		botToken: cfg.BotToken,
		http:     &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// NewBotSenderWithDoer is the test constructor.
func NewBotSenderWithDoer(cfg config.ChatConfig, doer httpDoer) *BotSender {
	s := NewBotSender(cfg)
	s.http = doer
	return s
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendMessage posts one message to the buyer's chat.
func (s *BotSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	if chatID == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "chat id is required")
	}
	if text == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "message text is required")
	}

	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding chat message")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building chat request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "calling chat platform")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading chat response")
	}

	var decoded sendMessageResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding chat response")
	}
	if !decoded.OK {
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("chat platform rejected message: %s", decoded.Description))
	}
	return nil
}
