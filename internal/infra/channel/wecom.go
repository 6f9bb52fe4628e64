package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"notifyhub/internal/domain/notify"
)

var _ notify.ChannelAdapter = (*WeCom)(nil)

const (
	defaultWeComBase = "https://qyapi.weixin.qq.com"

	// WeCom rejects text messages above 2048 bytes.
	weComTextLimit = 2048

	// Tokens are refreshed this long before WeCom expires them.
	weComTokenMargin = 500 * time.Second
)

// TokenCache stores provider access tokens between sends.
// Implementations live in infra/tokencache/.
type TokenCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// WeCom sends application messages through the enterprise WeChat API.
type WeCom struct {
	client *http.Client
	tokens TokenCache
}

// NewWeCom creates a WeCom adapter. A nil client uses the shared default.
func NewWeCom(client *http.Client, tokens TokenCache) *WeCom {
	return &WeCom{client: clientOrDefault(client), tokens: tokens}
}

// Type returns the wecom channel type.
func (w *WeCom) Type() notify.ChannelType { return notify.ChannelWeCom }

// ValidateConfig requires corp_id, corp_secret and a numeric agent_id.
func (w *WeCom) ValidateConfig(cfg map[string]string) error {
	if err := requireKeys(cfg, "corp_id", "corp_secret", "agent_id"); err != nil {
		return err
	}
	if _, err := strconv.Atoi(strings.TrimSpace(cfg["agent_id"])); err != nil {
		return errInvalidValue("agent_id", cfg["agent_id"])
	}
	return validateURL(cfg, "base_url")
}

type weComResponse struct {
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Send posts a news message when an image is present, text otherwise.
func (w *WeCom) Send(ctx context.Context, msg *notify.Message, cfg map[string]string) error {
	base := strings.TrimRight(optional(cfg, "base_url", defaultWeComBase), "/")
	cacheKey := "wecom:" + cfg["corp_id"] + ":" + strings.TrimSpace(cfg["agent_id"])

	token, err := w.token(ctx, base, cacheKey, cfg)
	if err != nil {
		return err
	}

	agentID, _ := strconv.Atoi(strings.TrimSpace(cfg["agent_id"]))
	payload := map[string]any{
		"touser":  optional(cfg, "to_user", "@all"),
		"agentid": agentID,
	}
	if msg.ImageURL != "" {
		payload["msgtype"] = "news"
		payload["news"] = map[string]any{
			"articles": []map[string]string{{
				"title":       msg.Title,
				"description": truncateSentence(msg.Body, 512),
				"url":         msg.LinkURL,
				"picurl":      msg.ImageURL,
			}},
		}
	} else {
		content := joinTitleBody(msg.Title, msg.Body)
		if msg.LinkURL != "" {
			content += "\n\n" + msg.LinkURL
		}
		payload["msgtype"] = "text"
		payload["text"] = map[string]string{"content": truncateSentence(content, weComTextLimit)}
	}

	target := base + "/cgi-bin/message/send?access_token=" + url.QueryEscape(token)
	body, err := doJSON(ctx, w.client, string(notify.ChannelWeCom), http.MethodPost, target, payload, nil)
	if err != nil {
		return err
	}

	var resp weComResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return notify.NewDeliveryError(string(notify.ChannelWeCom), notify.KindUnknown, "unexpected response: %s", truncateBytes(string(body), 200))
	}
	if resp.ErrCode == 0 {
		return nil
	}

	kind := weComKind(resp.ErrCode)
	if resp.ErrCode == 40014 || resp.ErrCode == 42001 {
		if err := w.tokens.Delete(ctx, cacheKey); err != nil {
			slog.Warn("wecom: failed to drop stale token", "error", err)
		}
	}
	return errcodeError(string(notify.ChannelWeCom), kind, resp.ErrCode, resp.ErrMsg)
}

// token returns a cached access token or fetches a new one.
func (w *WeCom) token(ctx context.Context, base, cacheKey string, cfg map[string]string) (string, error) {
	if tok, ok, err := w.tokens.Get(ctx, cacheKey); err != nil {
		slog.Warn("wecom: token cache read failed, fetching new token", "error", err)
	} else if ok {
		return tok, nil
	}

	q := url.Values{}
	q.Set("corpid", cfg["corp_id"])
	q.Set("corpsecret", cfg["corp_secret"])
	body, err := doJSON(ctx, w.client, string(notify.ChannelWeCom), http.MethodGet, base+"/cgi-bin/gettoken?"+q.Encode(), nil, nil)
	if err != nil {
		return "", err
	}

	var resp weComResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", notify.NewDeliveryError(string(notify.ChannelWeCom), notify.KindUnknown, "unexpected token response: %s", truncateBytes(string(body), 200))
	}
	if resp.ErrCode != 0 || resp.AccessToken == "" {
		return "", errcodeError(string(notify.ChannelWeCom), weComKind(resp.ErrCode), resp.ErrCode, fmt.Sprintf("fetching token: %s", resp.ErrMsg))
	}

	ttl := time.Duration(resp.ExpiresIn)*time.Second - weComTokenMargin
	if ttl > 0 {
		if err := w.tokens.Set(ctx, cacheKey, resp.AccessToken, ttl); err != nil {
			slog.Warn("wecom: token cache write failed", "error", err)
		}
	}
	return resp.AccessToken, nil
}

func weComKind(code int) notify.ErrorKind {
	switch code {
	case 40014, 42001, -1:
		return notify.KindNetwork
	case 45009, 45033:
		return notify.KindRateLimited
	case 40001, 40013, 40056, 60020, 48002:
		return notify.KindAuth
	}
	return notify.KindInvalidPayload
}
