package channel

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"notifyhub/internal/domain/notify"

	tele "gopkg.in/telebot.v4"
)

var _ notify.ChannelAdapter = (*Telegram)(nil)

const (
	telegramTextLimit    = 4096
	telegramCaptionLimit = 1024
)

var (
	markdownLink   = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)\s]+)\)`)
	telegramStatus = regexp.MustCompile(`\((\d{3})\)\s*$`)
)

// Telegram sends messages through the Bot API.
type Telegram struct {
	client *http.Client
}

// NewTelegram creates a Telegram adapter. A nil client uses the shared default.
func NewTelegram(client *http.Client) *Telegram {
	return &Telegram{client: clientOrDefault(client)}
}

// Type returns the telegram channel type.
func (t *Telegram) Type() notify.ChannelType { return notify.ChannelTelegram }

// ValidateConfig requires bot_token and chat_id.
func (t *Telegram) ValidateConfig(cfg map[string]string) error {
	if err := requireKeys(cfg, "bot_token", "chat_id"); err != nil {
		return err
	}
	switch strings.ToLower(cfg["parse_mode"]) {
	case "", "html", "none":
	default:
		return errInvalidValue("parse_mode", cfg["parse_mode"])
	}
	return validateURL(cfg, "api_url")
}

// chatRecipient addresses a chat by numeric id or @username.
type chatRecipient string

func (c chatRecipient) Recipient() string { return string(c) }

// Send posts a photo with caption when an image is present, text otherwise.
func (t *Telegram) Send(ctx context.Context, msg *notify.Message, cfg map[string]string) error {
	bot, err := tele.NewBot(tele.Settings{
		URL:     optional(cfg, "api_url", tele.DefaultApiURL),
		Token:   cfg["bot_token"],
		Client:  &http.Client{Transport: ctxTransport{ctx: ctx, base: t.client.Transport}},
		Offline: true,
	})
	if err != nil {
		return notify.NewDeliveryError(string(notify.ChannelTelegram), notify.KindInvalidPayload, "creating bot: %v", err)
	}

	htmlMode := strings.ToLower(cfg["parse_mode"]) != "none"
	opts := &tele.SendOptions{}
	if htmlMode {
		opts.ParseMode = tele.ModeHTML
	}
	to := chatRecipient(strings.TrimSpace(cfg["chat_id"]))

	if msg.ImageURL != "" {
		photo := &tele.Photo{
			File:    tele.FromURL(msg.ImageURL),
			Caption: telegramText(msg, htmlMode, telegramCaptionLimit),
		}
		_, err = bot.Send(to, photo, opts)
	} else {
		_, err = bot.Send(to, telegramText(msg, htmlMode, telegramTextLimit), opts)
	}
	if err != nil {
		return classifyTelegramError(err)
	}
	return nil
}

// telegramText formats the message, escaping HTML and turning markdown links
// into anchors when HTML mode is on.
func telegramText(msg *notify.Message, htmlMode bool, limit int) string {
	if !htmlMode {
		text := joinTitleBody(msg.Title, msg.Body)
		if msg.LinkURL != "" {
			text += "\n\n" + msg.LinkURL
		}
		return truncateRunes(text, limit)
	}

	// Telegram counts text after entity parsing, so the budget applies to the
	// raw body and escaping never gets cut.
	budget := limit - len([]rune(msg.Title)) - 64
	body := truncateRunes(msg.Body, budget)
	body = markdownLink.ReplaceAllString(html.EscapeString(body), `<a href="$2">$1</a>`)
	var b strings.Builder
	if msg.Title != "" {
		b.WriteString("<b>" + html.EscapeString(msg.Title) + "</b>")
		if body != "" {
			b.WriteString("\n\n")
		}
	}
	b.WriteString(body)
	if msg.LinkURL != "" {
		b.WriteString("\n\n<a href=\"" + html.EscapeString(msg.LinkURL) + "\">Open link</a>")
	}
	return b.String()
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

func classifyTelegramError(err error) error {
	provider := string(notify.ChannelTelegram)

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &notify.DeliveryError{
			Provider:   provider,
			Kind:       notify.KindRateLimited,
			StatusCode: http.StatusTooManyRequests,
			Message:    err.Error(),
			RetryAfter: time.Duration(flood.RetryAfter) * time.Second,
		}
	}

	code := 0
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		code = apiErr.Code
	} else if m := telegramStatus.FindStringSubmatch(err.Error()); m != nil {
		code, _ = strconv.Atoi(m[1])
	}
	if code == 0 {
		return notify.TransportError(provider, err)
	}

	return &notify.DeliveryError{
		Provider:   provider,
		Kind:       notify.KindForStatus(code),
		StatusCode: code,
		Message:    err.Error(),
	}
}

// ctxTransport binds outgoing requests to a context. The Bot API client
// does not take a context, so deadlines are applied here.
type ctxTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t ctxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req.WithContext(t.ctx))
	if err != nil {
		return nil, fmt.Errorf("telegram request: %w", err)
	}
	return resp, nil
}
