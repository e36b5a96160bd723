package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alanyoungcy/opinioncore/internal/domain"
)

// DiscordSender delivers alerts via a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL. It uses a
// default HTTP client with a 10-second timeout.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Fields      []discordField `json:"fields,omitempty"`
}

// renderDiscord turns an alert into a webhook payload: one embed, with the
// ledger context as inline fields.
func renderDiscord(a Alert) map[string]any {
	embed := discordEmbed{
		Title:       a.Title,
		Description: a.Message,
	}
	if a.OpinionID != 0 {
		embed.Fields = append(embed.Fields, discordField{
			Name: "opinion", Value: fmt.Sprintf("%d", a.OpinionID), Inline: true,
		})
	}
	if a.PoolID != 0 {
		embed.Fields = append(embed.Fields, discordField{
			Name: "pool", Value: fmt.Sprintf("%d", a.PoolID), Inline: true,
		})
	}
	if a.Amount != 0 {
		embed.Fields = append(embed.Fields, discordField{
			Name: "amount", Value: fmt.Sprintf("%.2f", domain.Display(a.Amount)), Inline: true,
		})
	}
	return map[string]any{"embeds": []discordEmbed{embed}}
}

// Send posts the alert to the Discord webhook as an embed.
func (d *DiscordSender) Send(ctx context.Context, a Alert) error {
	body, err := json.Marshal(renderDiscord(a))
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	// Discord returns 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
