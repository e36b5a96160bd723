package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/opinioncore/internal/domain"
)

// TelegramSender delivers alerts via the Telegram Bot API.
type TelegramSender struct {
	token  string
	chatID string
	client *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat
// ID. It uses a default HTTP client with a 10-second timeout.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// renderTelegram flattens an alert into a Markdown message: bold title, the
// message body, then one line per piece of ledger context the alert carries.
func renderTelegram(a Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n%s", a.Title, a.Message)
	if a.OpinionID != 0 {
		fmt.Fprintf(&b, "\nopinion: %d", a.OpinionID)
	}
	if a.PoolID != 0 {
		fmt.Fprintf(&b, "\npool: %d", a.PoolID)
	}
	if a.Amount != 0 {
		fmt.Fprintf(&b, "\namount: %.2f", domain.Display(a.Amount))
	}
	return b.String()
}

// Send posts the alert to the configured Telegram chat using the sendMessage
// API.
func (t *TelegramSender) Send(ctx context.Context, a Alert) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)

	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       renderTelegram(a),
		"parse_mode": "Markdown",
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
