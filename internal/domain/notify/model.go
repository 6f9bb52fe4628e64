package notify

import (
	"time"
)

// ChannelType names a provider kind (built-in or plugin-registered).
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelBark     ChannelType = "bark"
	ChannelDiscord  ChannelType = "discord"
	ChannelWeCom    ChannelType = "wecom"
	ChannelWeComBot ChannelType = "wecom_bot"
	ChannelDingTalk ChannelType = "dingtalk"
	ChannelEmail    ChannelType = "email"
	ChannelResend   ChannelType = "resend"
)

// Channel is a configured instance of a provider type.
type Channel struct {
	ID      string            `json:"id" mapstructure:"id"`
	Name    string            `json:"name,omitempty" mapstructure:"name"`
	Type    ChannelType       `json:"type" mapstructure:"type"`
	Config  map[string]string `json:"config,omitempty" mapstructure:"config"`
	Enabled bool              `json:"enabled" mapstructure:"enabled"`

	// Timeout overrides the engine's per-attempt timeout when positive.
	Timeout time.Duration `json:"timeout,omitempty" mapstructure:"timeout"`

	// RatePerSec throttles outbound sends to this channel; 0 disables throttling.
	RatePerSec float64 `json:"rate_per_sec,omitempty" mapstructure:"rate_per_sec"`
}

// TemplateKind classifies what a template was written for.
type TemplateKind string

const (
	KindGeneric         TemplateKind = "generic"
	KindMediaAdded      TemplateKind = "media_added"
	KindPlaybackStarted TemplateKind = "playback_started"
	KindBackupReport    TemplateKind = "backup_report"
)

// Template holds title and body sources in the renderer's syntax.
type Template struct {
	ID            string       `json:"id" mapstructure:"id"`
	Kind          TemplateKind `json:"kind" mapstructure:"kind"`
	TitleTemplate string       `json:"title_template" mapstructure:"title_template"`
	BodyTemplate  string       `json:"body_template" mapstructure:"body_template"`
}

// ChannelBinding pairs a channel with an optional template inside a route.
type ChannelBinding struct {
	ChannelID  string `json:"channel_id" mapstructure:"channel_id"`
	TemplateID string `json:"template_id,omitempty" mapstructure:"template_id"`
}

// Policy decides when a dispatch counts as delivered.
type Policy string

const (
	// PolicyAny is satisfied by at least one successful channel.
	PolicyAny Policy = "any"
	// PolicyAll requires every resolved channel to succeed.
	PolicyAll Policy = "all"
)

// Route is the addressable target of a notify request.
type Route struct {
	ID       string           `json:"id" mapstructure:"id"`
	Name     string           `json:"name,omitempty" mapstructure:"name"`
	Bindings []ChannelBinding `json:"bindings" mapstructure:"bindings"`
	Enabled  bool             `json:"enabled" mapstructure:"enabled"`
	Policy   Policy           `json:"policy,omitempty" mapstructure:"policy"`
}

// NotifyRequest is one logical notification addressed to a route.
type NotifyRequest struct {
	RouteID     string         `json:"route_id" binding:"required"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	PushImgURL  string         `json:"push_img_url,omitempty"`
	PushLinkURL string         `json:"push_link_url,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}

// AttemptStatus is the outcome of one channel's delivery.
type AttemptStatus string

const (
	AttemptSuccess  AttemptStatus = "success"
	AttemptFailed   AttemptStatus = "failed"
	AttemptTimedOut AttemptStatus = "timed_out"
)

// DeliveryAttempt is the final recorded outcome for one channel.
// AttemptNumber is 0 when the channel was never handed to an adapter.
type DeliveryAttempt struct {
	ChannelID     string        `json:"channel_id"`
	ChannelType   ChannelType   `json:"channel_type"`
	AttemptNumber int           `json:"attempt_number"`
	Status        AttemptStatus `json:"status"`
	ErrorKind     *ErrorKind    `json:"error_kind"`
	Error         string        `json:"error,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	DurationMS    int64         `json:"duration_ms"`
}

// Succeeded reports whether the attempt delivered.
func (a DeliveryAttempt) Succeeded() bool {
	return a.Status == AttemptSuccess
}

// OverallStatus summarizes a dispatch.
type OverallStatus string

const (
	OverallSuccess        OverallStatus = "success"
	OverallPartialSuccess OverallStatus = "partial_success"
	OverallFailure        OverallStatus = "failure"
)

// DispatchResult aggregates one final attempt per resolved channel, in binding order.
type DispatchResult struct {
	ID            string            `json:"id"`
	RouteID       string            `json:"route_id"`
	OverallStatus OverallStatus     `json:"overall_status"`
	Policy        Policy            `json:"policy"`
	Delivered     bool              `json:"delivered"`
	Attempts      []DeliveryAttempt `json:"attempts"`
	StartedAt     time.Time         `json:"started_at"`
	FinishedAt    time.Time         `json:"finished_at"`
}

// Message is the rendered, channel-ready notification.
type Message struct {
	Title    string
	Body     string
	ImageURL string
	LinkURL  string
}

// Rendered holds the output of rendering one template.
type Rendered struct {
	Title string
	Body  string
}

// aggregate derives the overall status from per-channel attempts.
func aggregate(attempts []DeliveryAttempt) OverallStatus {
	ok := 0
	for _, a := range attempts {
		if a.Succeeded() {
			ok++
		}
	}
	switch {
	case ok == 0:
		return OverallFailure
	case ok == len(attempts):
		return OverallSuccess
	default:
		return OverallPartialSuccess
	}
}

// satisfied reports whether the policy accepts the given overall status.
func (p Policy) satisfied(status OverallStatus) bool {
	if p == PolicyAll {
		return status == OverallSuccess
	}
	return status != OverallFailure
}
