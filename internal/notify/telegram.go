package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"
)

// TelegramSender delivers notifications via the Telegram Bot API.
type TelegramSender struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat
// ID. It uses a default HTTP client with a 10-second timeout.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:   token,
		chatID:  chatID,
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the notification to the configured Telegram chat using the
// sendMessage API. The title is rendered in bold and each field becomes a
// "Name: Value" line; all text is HTML-escaped.
func (t *TelegramSender) Send(ctx context.Context, n Notification) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)

	var b strings.Builder
	b.WriteString("<b>" + html.EscapeString(n.Title) + "</b>")
	if n.Body != "" {
		b.WriteString("\n" + html.EscapeString(n.Body))
	}
	for _, f := range n.Fields {
		b.WriteString("\n" + html.EscapeString(f.Name) + ": " + html.EscapeString(f.Value))
	}

	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       b.String(),
		"parse_mode": "HTML",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}

// Compile-time interface check.
var _ Sender = (*TelegramSender)(nil)
