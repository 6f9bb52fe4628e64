package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"notifyhub/internal/common"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// EngineConfig tunes the dispatch engine.
type EngineConfig struct {
	Retry RetryPolicy

	// AttemptTimeout bounds a single adapter call unless the channel sets its own.
	AttemptTimeout time.Duration

	// Concurrency caps channels delivered at once within one dispatch.
	Concurrency int

	// DefaultPolicy applies to routes that do not set a policy.
	DefaultPolicy Policy
}

// DefaultEngineConfig returns the default engine settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Retry:          DefaultRetryPolicy(),
		AttemptTimeout: 10 * time.Second,
		Concurrency:    8,
		DefaultPolicy:  PolicyAny,
	}
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithMetrics records dispatch metrics.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithSleep replaces the backoff sleep.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) EngineOption {
	return func(e *Engine) { e.sleep = fn }
}

// WithJitter replaces the backoff jitter source. fn(n) must return a value in [0, n).
func WithJitter(fn func(n int64) int64) EngineOption {
	return func(e *Engine) { e.jitter = fn }
}

// Engine resolves routes and fans a notification out to their channels.
// Each channel is rendered, sent and retried independently; one channel's
// failure never affects another.
type Engine struct {
	snapshots SnapshotProvider
	registry  *Registry
	renderer  Renderer
	cfg       EngineConfig
	metrics   *Metrics

	throttles throttles

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(n int64) int64
	now    func() time.Time
}

// NewEngine creates a dispatch engine.
func NewEngine(snapshots SnapshotProvider, registry *Registry, renderer Renderer, cfg EngineConfig, opts ...EngineOption) *Engine {
	def := DefaultEngineConfig()
	cfg.Retry = cfg.Retry.withDefaults()
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.DefaultPolicy != PolicyAll {
		cfg.DefaultPolicy = def.DefaultPolicy
	}

	e := &Engine{
		snapshots: snapshots,
		registry:  registry,
		renderer:  renderer,
		cfg:       cfg,
		sleep:     sleepContext,
		jitter:    defaultJitter,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dispatch delivers req to every enabled channel of its route and returns one
// final attempt per channel in binding order. Resolution failures return an
// error before any adapter is called; per-channel failures never do.
func (e *Engine) Dispatch(ctx context.Context, req *NotifyRequest) (*DispatchResult, error) {
	if strings.TrimSpace(req.RouteID) == "" {
		return nil, common.NewValidationError("route_id is required")
	}
	snap := e.snapshots.Current()
	if snap == nil {
		return nil, errors.New("no configuration snapshot loaded")
	}

	targets, policy, err := Resolve(snap, req.RouteID)
	if err != nil {
		return nil, err
	}
	if policy == "" {
		policy = e.cfg.DefaultPolicy
	}
	return e.run(ctx, snap, req, targets, policy), nil
}

// TestChannel sends a fixed test message to a single channel through the
// normal render, send and retry path. Disabled channels may be tested.
func (e *Engine) TestChannel(ctx context.Context, channelID string) (*DispatchResult, error) {
	snap := e.snapshots.Current()
	if snap == nil {
		return nil, errors.New("no configuration snapshot loaded")
	}
	ch, ok := snap.Channel(channelID)
	if !ok {
		return nil, common.NewNotFoundError("channel", channelID)
	}
	tpl, ok := snap.Template(DefaultTemplateID)
	if !ok {
		return nil, fmt.Errorf("default template %q missing from snapshot", DefaultTemplateID)
	}

	req := &NotifyRequest{
		Title:   "NotifyHub test",
		Content: fmt.Sprintf("Test message for channel %s (%s).", ch.ID, ch.Type),
	}
	return e.run(ctx, snap, req, []Target{{Channel: ch, Template: tpl}}, PolicyAll), nil
}

func (e *Engine) run(ctx context.Context, snap *Snapshot, req *NotifyRequest, targets []Target, policy Policy) *DispatchResult {
	log := common.Logger(ctx)
	result := &DispatchResult{
		ID:        uuid.New().String(),
		RouteID:   req.RouteID,
		Policy:    policy,
		StartedAt: e.now(),
	}

	// Each goroutine writes only its own index, which keeps binding order.
	attempts := make([]DeliveryAttempt, len(targets))

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i, t := range targets {
		data := buildContext(req, t.Channel)
		rendered, err := e.renderer.Render(t.Template, data)
		if err != nil {
			attempts[i] = e.notAttempted(t.Channel, KindTemplateRender, err)
			log.Warn("template render failed",
				"route_id", req.RouteID,
				"channel_id", t.Channel.ID,
				"template_id", t.Template.ID,
				"error", err,
			)
			continue
		}

		adapter, ok := e.registry.Lookup(t.Channel.Type)
		if !ok {
			attempts[i] = e.notAttempted(t.Channel, KindAdapterConfig,
				fmt.Errorf("%w: no adapter for channel type %q", ErrAdapterConfig, t.Channel.Type))
			continue
		}

		msg := &Message{
			Title:    rendered.Title,
			Body:     rendered.Body,
			ImageURL: req.PushImgURL,
			LinkURL:  req.PushLinkURL,
		}
		g.Go(func() error {
			attempts[i] = e.deliver(ctx, e.throttles.limiter(snap, t.Channel), t.Channel, adapter, msg)
			return nil
		})
	}
	_ = g.Wait()

	result.Attempts = attempts
	result.OverallStatus = aggregate(attempts)
	result.Delivered = policy.satisfied(result.OverallStatus)
	result.FinishedAt = e.now()

	e.metrics.observeDispatch(result)
	log.Info("dispatch complete",
		"dispatch_id", result.ID,
		"route_id", result.RouteID,
		"overall_status", result.OverallStatus,
		"delivered", result.Delivered,
		"channels", len(attempts),
		"duration", result.FinishedAt.Sub(result.StartedAt),
	)
	return result
}

// deliver sends msg to one channel, retrying transient failures, and returns
// the final attempt.
func (e *Engine) deliver(ctx context.Context, lim *rate.Limiter, ch Channel, adapter ChannelAdapter, msg *Message) DeliveryAttempt {
	log := common.Logger(ctx).With("channel_id", ch.ID, "channel_type", ch.Type)
	policy := e.cfg.Retry
	timeout := e.cfg.AttemptTimeout
	if ch.Timeout > 0 {
		timeout = ch.Timeout
	}

	start := e.now()
	var (
		last     *DeliveryError
		attempts int
	)
	for n := 1; n <= policy.MaxAttempts; n++ {
		if ctx.Err() != nil {
			break
		}
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				break
			}
		}

		attempts = n
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err := adapter.Send(attemptCtx, msg, ch.Config)
		expired := errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		cancel()

		if err == nil {
			e.metrics.observeAttempt(ch.Type, AttemptSuccess, "")
			return DeliveryAttempt{
				ChannelID:     ch.ID,
				ChannelType:   ch.Type,
				AttemptNumber: n,
				Status:        AttemptSuccess,
				Timestamp:     e.now(),
				DurationMS:    e.now().Sub(start).Milliseconds(),
			}
		}

		last = AsDeliveryError(string(ch.Type), err)
		if expired && last.Kind != KindTimeout {
			last = &DeliveryError{Provider: string(ch.Type), Kind: KindTimeout, Message: "attempt timed out after " + timeout.String(), Err: err}
		}
		e.metrics.observeAttempt(ch.Type, statusFor(last.Kind), last.Kind)
		log.Warn("delivery attempt failed",
			"attempt", n,
			"max_attempts", policy.MaxAttempts,
			"error_kind", last.Kind,
			"error", last,
		)

		if !last.Kind.Retryable() || n == policy.MaxAttempts {
			break
		}
		wait := policy.Backoff(n, last.RetryAfter, e.jitter)
		if err := e.sleep(ctx, wait); err != nil {
			break
		}
	}

	if last == nil {
		// Cancelled before the first send.
		return e.notAttempted(ch, KindUnknown, errors.New("dispatch cancelled"))
	}
	kind := last.Kind
	return DeliveryAttempt{
		ChannelID:     ch.ID,
		ChannelType:   ch.Type,
		AttemptNumber: attempts,
		Status:        statusFor(kind),
		ErrorKind:     &kind,
		Error:         last.Error(),
		Timestamp:     e.now(),
		DurationMS:    e.now().Sub(start).Milliseconds(),
	}
}

func (e *Engine) notAttempted(ch Channel, kind ErrorKind, err error) DeliveryAttempt {
	e.metrics.observeAttempt(ch.Type, AttemptFailed, kind)
	return DeliveryAttempt{
		ChannelID:     ch.ID,
		ChannelType:   ch.Type,
		AttemptNumber: 0,
		Status:        AttemptFailed,
		ErrorKind:     &kind,
		Error:         err.Error(),
		Timestamp:     e.now(),
	}
}

// throttles holds the outbound limiters of channels with a rate_per_sec.
// The set follows the newest snapshot seen: channels that were removed or
// changed rate are dropped, unchanged ones keep their bucket.
type throttles struct {
	mu       sync.Mutex
	snap     *Snapshot
	limiters map[string]*rate.Limiter // channel id -> limiter
}

func (t *throttles) limiter(snap *Snapshot, ch Channel) *rate.Limiter {
	if ch.RatePerSec <= 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if snap != t.snap && (t.snap == nil || snap.LoadedAt.After(t.snap.LoadedAt)) {
		for id, lim := range t.limiters {
			cur, ok := snap.Channel(id)
			if !ok || rate.Limit(cur.RatePerSec) != lim.Limit() {
				delete(t.limiters, id)
			}
		}
		t.snap = snap
	}
	if t.limiters == nil {
		t.limiters = make(map[string]*rate.Limiter)
	}
	if lim, ok := t.limiters[ch.ID]; ok && lim.Limit() == rate.Limit(ch.RatePerSec) {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(ch.RatePerSec), 1)
	// Dispatches still running on an older snapshot do not overwrite.
	if snap == t.snap {
		t.limiters[ch.ID] = lim
	}
	return lim
}

func statusFor(kind ErrorKind) AttemptStatus {
	if kind == KindTimeout {
		return AttemptTimedOut
	}
	return AttemptFailed
}

// buildContext assembles the render context for one channel. Built-in keys
// win over caller-supplied context keys. The caller's map is also available
// whole under ctx, for keys templates cannot name directly. The request is
// never modified.
func buildContext(req *NotifyRequest, ch Channel) map[string]any {
	data := make(map[string]any, len(req.Context)+8)
	raw := make(map[string]any, len(req.Context))
	for k, v := range req.Context {
		data[k] = v
		raw[k] = v
	}
	data["ctx"] = raw
	data["title"] = req.Title
	data["content"] = req.Content
	data["push_img_url"] = req.PushImgURL
	data["push_link_url"] = req.PushLinkURL
	data["route_id"] = req.RouteID
	data["channel_id"] = ch.ID
	data["channel_type"] = string(ch.Type)
	return data
}
