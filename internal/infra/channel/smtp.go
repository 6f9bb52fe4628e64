package channel

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"notifyhub/internal/domain/notify"

	"github.com/wneessen/go-mail"
)

var _ notify.ChannelAdapter = (*SMTP)(nil)

// SMTP sends email through an SMTP relay.
type SMTP struct{}

// NewSMTP creates an SMTP adapter.
func NewSMTP() *SMTP {
	return &SMTP{}
}

// Type returns the email channel type.
func (s *SMTP) Type() notify.ChannelType { return notify.ChannelEmail }

// ValidateConfig requires host, from and to.
func (s *SMTP) ValidateConfig(cfg map[string]string) error {
	if err := requireKeys(cfg, "host", "from", "to"); err != nil {
		return err
	}
	if p := cfg["port"]; p != "" {
		if n, err := strconv.Atoi(p); err != nil || n <= 0 || n > 65535 {
			return errInvalidValue("port", p)
		}
	}
	switch cfg["tls"] {
	case "", "starttls", "ssl", "none":
	default:
		return errInvalidValue("tls", cfg["tls"])
	}
	if _, err := buildMessage(&notify.Message{}, cfg); err != nil {
		return err
	}
	return nil
}

// Send dials the relay and delivers one message.
func (s *SMTP) Send(ctx context.Context, msg *notify.Message, cfg map[string]string) error {
	m, err := buildMessage(msg, cfg)
	if err != nil {
		return notify.NewDeliveryError(string(notify.ChannelEmail), notify.KindInvalidPayload, "%v", err)
	}

	client, err := mail.NewClient(cfg["host"], clientOptions(cfg)...)
	if err != nil {
		return notify.NewDeliveryError(string(notify.ChannelEmail), notify.KindInvalidPayload, "creating smtp client: %v", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return classifySMTPError(err)
	}
	return nil
}

func buildMessage(msg *notify.Message, cfg map[string]string) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(cfg["from"]); err != nil {
		return nil, errInvalidValue("from", cfg["from"])
	}
	if err := m.To(splitList(cfg["to"])...); err != nil {
		return nil, errInvalidValue("to", cfg["to"])
	}
	m.Subject(msg.Title)
	m.SetUserAgent(userAgent)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	if msg.ImageURL != "" || msg.LinkURL != "" {
		m.AddAlternativeString(mail.TypeTextHTML, htmlBody(msg))
	}
	return m, nil
}

func clientOptions(cfg map[string]string) []mail.Option {
	port, _ := strconv.Atoi(optional(cfg, "port", "587"))
	opts := []mail.Option{mail.WithPort(port)}

	switch cfg["tls"] {
	case "ssl":
		opts = append(opts, mail.WithSSL())
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	if user := cfg["username"]; user != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(user),
			mail.WithPassword(cfg["password"]),
		)
	}
	return opts
}

func classifySMTPError(err error) error {
	provider := string(notify.ChannelEmail)
	var sendErr *mail.SendError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return notify.TransportError(provider, err)
	case strings.Contains(strings.ToLower(err.Error()), "auth"):
		return &notify.DeliveryError{Provider: provider, Kind: notify.KindAuth, Err: err}
	case errors.As(err, &sendErr):
		if sendErr.IsTemp() {
			return &notify.DeliveryError{Provider: provider, Kind: notify.KindNetwork, Err: err}
		}
		return &notify.DeliveryError{Provider: provider, Kind: notify.KindInvalidPayload, Err: err}
	}
	return notify.TransportError(provider, err)
}
