package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"notifyhub/internal/domain/notify"
)

var _ notify.ChannelAdapter = (*Discord)(nil)

// Discord posts embeds to a Discord webhook.
type Discord struct {
	client *http.Client
}

// NewDiscord creates a Discord adapter. A nil client uses the shared default.
func NewDiscord(client *http.Client) *Discord {
	return &Discord{client: clientOrDefault(client)}
}

// Type returns the discord channel type.
func (d *Discord) Type() notify.ChannelType { return notify.ChannelDiscord }

// ValidateConfig requires webhook_url.
func (d *Discord) ValidateConfig(cfg map[string]string) error {
	if err := requireKeys(cfg, "webhook_url"); err != nil {
		return err
	}
	return validateURL(cfg, "webhook_url")
}

// Send delivers one embed. Discord limits titles to 256 and descriptions to
// 4096 characters.
func (d *Discord) Send(ctx context.Context, msg *notify.Message, cfg map[string]string) error {
	embed := map[string]any{
		"title":       truncateBytes(msg.Title, 256),
		"description": truncateBytes(msg.Body, 4096),
	}
	if msg.LinkURL != "" {
		embed["url"] = msg.LinkURL
	}
	if msg.ImageURL != "" {
		embed["image"] = map[string]string{"url": msg.ImageURL}
	}
	payload := map[string]any{"embeds": []any{embed}}
	if name := cfg["username"]; name != "" {
		payload["username"] = name
	}

	body, err := doJSON(ctx, d.client, string(notify.ChannelDiscord), http.MethodPost, cfg["webhook_url"], payload, nil)
	if err == nil {
		return nil
	}

	var de *notify.DeliveryError
	if errors.As(err, &de) && de.Kind == notify.KindRateLimited && de.RetryAfter == 0 {
		var limited struct {
			RetryAfter float64 `json:"retry_after"`
		}
		if json.Unmarshal(body, &limited) == nil && limited.RetryAfter > 0 {
			de.RetryAfter = time.Duration(limited.RetryAfter * float64(time.Second))
		}
	}
	return err
}
