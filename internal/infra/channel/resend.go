package channel

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"

	"notifyhub/internal/domain/notify"
)

var _ notify.ChannelAdapter = (*Resend)(nil)

const defaultResendBase = "https://api.resend.com"

// Resend sends email through the Resend HTTP API.
type Resend struct {
	client *http.Client
}

// NewResend creates a Resend adapter. A nil client uses the shared default.
func NewResend(client *http.Client) *Resend {
	return &Resend{client: clientOrDefault(client)}
}

// Type returns the resend channel type.
func (r *Resend) Type() notify.ChannelType { return notify.ChannelResend }

// ValidateConfig requires api_key, from and to.
func (r *Resend) ValidateConfig(cfg map[string]string) error {
	if err := requireKeys(cfg, "api_key", "from", "to"); err != nil {
		return err
	}
	return validateURL(cfg, "base_url")
}

// Send delivers an email. The plain-text body is always included; an HTML
// part carries the image and link when present.
func (r *Resend) Send(ctx context.Context, msg *notify.Message, cfg map[string]string) error {
	from := cfg["from"]
	if name := cfg["from_name"]; name != "" {
		from = fmt.Sprintf("%s <%s>", name, from)
	}

	payload := map[string]any{
		"from":    from,
		"to":      splitList(cfg["to"]),
		"subject": msg.Title,
		"text":    msg.Body,
	}
	if msg.ImageURL != "" || msg.LinkURL != "" {
		payload["html"] = htmlBody(msg)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg["api_key"])
	base := strings.TrimRight(optional(cfg, "base_url", defaultResendBase), "/")
	_, err := doJSON(ctx, r.client, string(notify.ChannelResend), http.MethodPost, base+"/emails", payload, header)
	return err
}

// splitList splits a comma-separated recipient list.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// htmlBody renders a minimal HTML email from a plain-text message.
func htmlBody(msg *notify.Message) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	if msg.Title != "" {
		b.WriteString("<h3>" + html.EscapeString(msg.Title) + "</h3>")
	}
	b.WriteString("<p>" + strings.ReplaceAll(html.EscapeString(msg.Body), "\n", "<br>") + "</p>")
	if msg.ImageURL != "" {
		b.WriteString(`<p><img src="` + html.EscapeString(msg.ImageURL) + `" style="max-width:100%"></p>`)
	}
	if msg.LinkURL != "" {
		b.WriteString(`<p><a href="` + html.EscapeString(msg.LinkURL) + `">` + html.EscapeString(msg.LinkURL) + `</a></p>`)
	}
	b.WriteString("</body></html>")
	return b.String()
}
