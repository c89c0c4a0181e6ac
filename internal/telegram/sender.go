package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/triage-ai/lark-agent/internal/config"
)

var ErrNotConfigured = errors.New("telegram token not configured")

// Sender delivers one text message to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// BotSender posts to the Bot API sendMessage method. Failed sends are
// returned, never retried.
type BotSender struct {
	endpoint string
	client   *http.Client
}

func NewBotSender(cfg config.TelegramConfig, client *http.Client) *BotSender {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	s := &BotSender{client: client}
	if cfg.Token != "" {
		s.endpoint = fmt.Sprintf("%s/bot%s/sendMessage", cfg.APIBase, cfg.Token)
	}
	return s
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// errBadMarkup is a 400 from the Bot API rejecting the message's Markdown.
var errBadMarkup = errors.New("markdown rejected")

// Send posts text as Markdown. When the Bot API rejects the markup (an
// unbalanced "_" in a field name is enough) the text is sent once more as
// plain text.
func (s *BotSender) Send(ctx context.Context, chatID int64, text string) error {
	if s.endpoint == "" {
		return ErrNotConfigured
	}

	err := s.post(ctx, sendMessageRequest{ChatID: chatID, Text: text, ParseMode: "Markdown"})
	if errors.Is(err, errBadMarkup) {
		err = s.post(ctx, sendMessageRequest{ChatID: chatID, Text: text})
	}
	return err
}

func (s *BotSender) post(ctx context.Context, msg sendMessageRequest) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("Send: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("Send: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		// The URL embeds the bot token; keep it out of the error.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("Send: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusBadRequest && msg.ParseMode != "" &&
			strings.Contains(string(detail), "can't parse entities") {
			return fmt.Errorf("Send: status %d: %w: %s", resp.StatusCode, errBadMarkup, detail)
		}
		return fmt.Errorf("Send: status %d: %s", resp.StatusCode, detail)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
