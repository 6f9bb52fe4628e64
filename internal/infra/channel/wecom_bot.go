package channel

import (
	"context"
	"encoding/json"
	"net/http"

	"notifyhub/internal/domain/notify"
)

var _ notify.ChannelAdapter = (*WeComBot)(nil)

// WeComBot posts to an enterprise WeChat group robot webhook.
type WeComBot struct {
	client *http.Client
}

// NewWeComBot creates a group robot adapter. A nil client uses the shared default.
func NewWeComBot(client *http.Client) *WeComBot {
	return &WeComBot{client: clientOrDefault(client)}
}

// Type returns the wecom_bot channel type.
func (w *WeComBot) Type() notify.ChannelType { return notify.ChannelWeComBot }

// ValidateConfig requires webhook_url.
func (w *WeComBot) ValidateConfig(cfg map[string]string) error {
	if err := requireKeys(cfg, "webhook_url"); err != nil {
		return err
	}
	return validateURL(cfg, "webhook_url")
}

// Send posts a news card when an image is present, markdown otherwise.
func (w *WeComBot) Send(ctx context.Context, msg *notify.Message, cfg map[string]string) error {
	var payload map[string]any
	if msg.ImageURL != "" {
		payload = map[string]any{
			"msgtype": "news",
			"news": map[string]any{
				"articles": []map[string]string{{
					"title":       msg.Title,
					"description": truncateSentence(msg.Body, 512),
					"url":         msg.LinkURL,
					"picurl":      msg.ImageURL,
				}},
			},
		}
	} else {
		payload = map[string]any{
			"msgtype":  "markdown",
			"markdown": map[string]string{"content": truncateSentence(markdownText(msg, "详情"), 4096)},
		}
	}

	body, err := doJSON(ctx, w.client, string(notify.ChannelWeComBot), http.MethodPost, cfg["webhook_url"], payload, nil)
	if err != nil {
		return err
	}
	return checkRobotErrcode(string(notify.ChannelWeComBot), body)
}

// checkRobotErrcode classifies the {errcode, errmsg} body shared by WeCom and
// DingTalk robots.
func checkRobotErrcode(provider string, body []byte) error {
	var resp struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return notify.NewDeliveryError(provider, notify.KindUnknown, "unexpected response: %s", truncateBytes(string(body), 200))
	}
	if resp.ErrCode == 0 {
		return nil
	}

	kind := notify.KindInvalidPayload
	switch resp.ErrCode {
	case 45009, 130101:
		kind = notify.KindRateLimited
	case 93000, 310000, 300001:
		kind = notify.KindAuth
	case -1:
		kind = notify.KindNetwork
	}
	return errcodeError(provider, kind, resp.ErrCode, resp.ErrMsg)
}
