package channel

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"notifyhub/internal/domain/notify"
)

var _ notify.ChannelAdapter = (*DingTalk)(nil)

// DingTalk posts markdown to a DingTalk custom robot.
type DingTalk struct {
	client *http.Client
	now    func() time.Time
}

// NewDingTalk creates a DingTalk adapter. A nil client uses the shared default.
func NewDingTalk(client *http.Client) *DingTalk {
	return &DingTalk{client: clientOrDefault(client), now: time.Now}
}

// Type returns the dingtalk channel type.
func (d *DingTalk) Type() notify.ChannelType { return notify.ChannelDingTalk }

// ValidateConfig requires webhook_url; secret is optional.
func (d *DingTalk) ValidateConfig(cfg map[string]string) error {
	if err := requireKeys(cfg, "webhook_url"); err != nil {
		return err
	}
	return validateURL(cfg, "webhook_url")
}

// Send posts a markdown message, signing the URL when a secret is set.
func (d *DingTalk) Send(ctx context.Context, msg *notify.Message, cfg map[string]string) error {
	target := cfg["webhook_url"]
	if secret := cfg["secret"]; secret != "" {
		ts := d.now().UnixMilli()
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + "timestamp=" + strconv.FormatInt(ts, 10) + "&sign=" + url.QueryEscape(dingTalkSign(ts, secret))
	}

	title := msg.Title
	if title == "" {
		title = truncateBytes(msg.Body, 64)
	}
	payload := map[string]any{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"title": title,
			"text":  markdownText(msg, "查看详情"),
		},
	}

	body, err := doJSON(ctx, d.client, string(notify.ChannelDingTalk), http.MethodPost, target, payload, nil)
	if err != nil {
		return err
	}
	return checkRobotErrcode(string(notify.ChannelDingTalk), body)
}

// dingTalkSign computes base64(HMAC-SHA256(secret, "timestamp\nsecret")).
func dingTalkSign(ts int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10) + "\n" + secret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
