package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"notifyhub/internal/domain/notify"
)

var _ notify.ChannelAdapter = (*Bark)(nil)

const defaultBarkServer = "https://api.day.app"

var barkLevels = map[string]bool{"": true, "active": true, "timeSensitive": true, "passive": true, "critical": true}

// Bark pushes to iOS devices through a Bark server.
type Bark struct {
	client *http.Client
}

// NewBark creates a Bark adapter. A nil client uses the shared default.
func NewBark(client *http.Client) *Bark {
	return &Bark{client: clientOrDefault(client)}
}

// Type returns the bark channel type.
func (b *Bark) Type() notify.ChannelType { return notify.ChannelBark }

// ValidateConfig requires device_key.
func (b *Bark) ValidateConfig(cfg map[string]string) error {
	if err := requireKeys(cfg, "device_key"); err != nil {
		return err
	}
	if !barkLevels[cfg["level"]] {
		return errInvalidValue("level", cfg["level"])
	}
	return validateURL(cfg, "server_url")
}

// Send delivers the message via POST {server_url}/push.
func (b *Bark) Send(ctx context.Context, msg *notify.Message, cfg map[string]string) error {
	payload := map[string]any{
		"device_key": cfg["device_key"],
		"title":      msg.Title,
		"body":       msg.Body,
	}
	for _, k := range []string{"group", "sound", "level"} {
		if v := cfg[k]; v != "" {
			payload[k] = v
		}
	}
	if msg.ImageURL != "" {
		payload["icon"] = msg.ImageURL
	}
	if msg.LinkURL != "" {
		payload["url"] = msg.LinkURL
	}

	server := strings.TrimRight(optional(cfg, "server_url", defaultBarkServer), "/")
	body, err := doJSON(ctx, b.client, string(notify.ChannelBark), http.MethodPost, server+"/push", payload, nil)
	if err != nil {
		return err
	}

	var resp struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return notify.NewDeliveryError(string(notify.ChannelBark), notify.KindUnknown, "unexpected response: %s", truncateBytes(string(body), 200))
	}
	if resp.Code != http.StatusOK {
		return &notify.DeliveryError{
			Provider:   string(notify.ChannelBark),
			Kind:       notify.KindForStatus(resp.Code),
			StatusCode: resp.Code,
			Message:    resp.Message,
		}
	}
	return nil
}
