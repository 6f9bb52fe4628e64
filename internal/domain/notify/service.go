package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"notifyhub/internal/common"
)

// Enqueuer defines the contract for handing a request to the async worker.
// This allows the service to be decoupled from the specific queue implementation.
type Enqueuer interface {
	EnqueueDispatch(ctx context.Context, req *NotifyRequest) (string, error)
}

// EnqueueResponse is returned when a request is accepted for async dispatch.
type EnqueueResponse struct {
	TaskID  string `json:"task_id"`
	RouteID string `json:"route_id"`
	Status  string `json:"status"`
}

// sinkTimeout bounds publishing one result to one sink.
const sinkTimeout = 5 * time.Second

// Service orchestrates notify requests.
// Sync flow: validate → route quota → dispatch → publish result.
type Service struct {
	engine      *Engine
	snapshots   SnapshotProvider
	enqueuer    Enqueuer
	rateLimiter RouteRateLimiter
	sinks       []ResultSink
}

// NewService creates a notify service. enqueuer and rateLimiter may be nil.
func NewService(engine *Engine, snapshots SnapshotProvider, enqueuer Enqueuer, rateLimiter RouteRateLimiter, sinks ...ResultSink) *Service {
	return &Service{
		engine:      engine,
		snapshots:   snapshots,
		enqueuer:    enqueuer,
		rateLimiter: rateLimiter,
		sinks:       sinks,
	}
}

// Notify dispatches a request synchronously and returns the aggregated result.
func (s *Service) Notify(ctx context.Context, req *NotifyRequest) (*DispatchResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := s.checkQuota(ctx, req.RouteID); err != nil {
		return nil, err
	}

	result, err := s.engine.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, result)
	return result, nil
}

// Dispatch runs the engine without the route quota. Used by the worker,
// whose requests were already counted when they were enqueued.
func (s *Service) Dispatch(ctx context.Context, req *NotifyRequest) (*DispatchResult, error) {
	result, err := s.engine.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, result)
	return result, nil
}

// Enqueue validates a request, checks that its route resolves, and hands it
// to the queue for async dispatch.
func (s *Service) Enqueue(ctx context.Context, req *NotifyRequest) (*EnqueueResponse, error) {
	if s.enqueuer == nil {
		return nil, common.NewUnprocessableError("async dispatch is not configured")
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	snap := s.snapshots.Current()
	if snap == nil {
		return nil, fmt.Errorf("no configuration snapshot loaded")
	}
	if _, _, err := Resolve(snap, req.RouteID); err != nil {
		return nil, err
	}
	if err := s.checkQuota(ctx, req.RouteID); err != nil {
		return nil, err
	}

	taskID, err := s.enqueuer.EnqueueDispatch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("enqueuing dispatch: %w", err)
	}

	common.Logger(ctx).Info("dispatch enqueued", "task_id", taskID, "route_id", req.RouteID)
	return &EnqueueResponse{TaskID: taskID, RouteID: req.RouteID, Status: "queued"}, nil
}

// TestChannel sends a test message to one channel.
func (s *Service) TestChannel(ctx context.Context, channelID string) (*DispatchResult, error) {
	return s.engine.TestChannel(ctx, channelID)
}

// Routes lists configured routes.
func (s *Service) Routes() []Route {
	snap := s.snapshots.Current()
	if snap == nil {
		return []Route{}
	}
	return snap.Routes()
}

// Channels lists configured channels with secrets masked.
func (s *Service) Channels() []Channel {
	snap := s.snapshots.Current()
	if snap == nil {
		return []Channel{}
	}
	channels := snap.Channels()
	for i := range channels {
		channels[i].Config = RedactConfig(channels[i].Config)
	}
	return channels
}

func (s *Service) checkQuota(ctx context.Context, routeID string) error {
	if s.rateLimiter == nil {
		return nil
	}
	allowed, err := s.rateLimiter.Allow(ctx, routeID)
	if err != nil {
		// Fail open when the limiter backend is down.
		common.Logger(ctx).Error("route rate limit check failed, proceeding without limit", "route_id", routeID, "error", err)
		return nil
	}
	if !allowed {
		return common.NewTooManyRequestsError(fmt.Sprintf("rate limit exceeded for route: %s", routeID))
	}
	return nil
}

func (s *Service) publish(ctx context.Context, result *DispatchResult) {
	for _, sink := range s.sinks {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
		if err := sink.Publish(pubCtx, result); err != nil {
			common.Logger(ctx).Warn("result sink publish failed", "sink", sink.Name(), "dispatch_id", result.ID, "error", err)
		}
		cancel()
	}
}

func validateRequest(req *NotifyRequest) error {
	if strings.TrimSpace(req.RouteID) == "" {
		return common.NewValidationError("route_id is required")
	}
	return nil
}

// secretKeys are config keys whose values never leave the process.
var secretKeys = []string{"token", "secret", "password", "key", "webhook", "api_key"}

// RedactConfig returns a copy of cfg with credential values masked.
func RedactConfig(cfg map[string]string) map[string]string {
	if cfg == nil {
		return nil
	}
	out := make(map[string]string, len(cfg))
	for k, v := range cfg {
		out[k] = v
		lower := strings.ToLower(k)
		for _, s := range secretKeys {
			if strings.Contains(lower, s) && v != "" {
				out[k] = "******"
				break
			}
		}
	}
	return out
}
