package notify

import "context"

// ChannelAdapter delivers a rendered message to one provider type.
// Implementations live in infra/channel/.
type ChannelAdapter interface {
	// Type returns the channel type this adapter serves.
	Type() ChannelType

	// ValidateConfig checks a channel's configuration before it is accepted
	// into a snapshot. Errors should explain which key is wrong.
	ValidateConfig(cfg map[string]string) error

	// Send delivers msg using cfg. It must honor ctx cancellation and its
	// deadline, and return a *DeliveryError so the engine can classify it.
	Send(ctx context.Context, msg *Message, cfg map[string]string) error
}

// Renderer renders title and body templates against a context.
// Implementations live in infra/template/.
type Renderer interface {
	// Compile checks both sources of a template. Errors wrap ErrTemplateSyntax.
	Compile(tpl Template) error

	// Render executes a template. Missing variables render empty.
	// Errors wrap ErrTemplateSyntax or ErrTemplateRender.
	Render(tpl Template, data map[string]any) (Rendered, error)
}

// TemplateRetainer is implemented by renderers that cache compiled
// templates. Retain drops cached entries none of templates use.
type TemplateRetainer interface {
	Retain(templates []Template)
}

// RouteRateLimiter caps how often a route may be notified.
// Implementations live in infra/ratelimit/.
type RouteRateLimiter interface {
	Allow(ctx context.Context, routeID string) (bool, error)
}

// ResultSink receives finished dispatch results for fan-out to observers.
type ResultSink interface {
	Name() string
	Publish(ctx context.Context, result *DispatchResult) error
}
