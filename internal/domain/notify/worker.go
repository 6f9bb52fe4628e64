package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Worker processes dispatch tasks from the queue.
type Worker struct {
	service *Service
}

// NewWorker creates a new dispatch worker.
func NewWorker(service *Service) *Worker {
	return &Worker{service: service}
}

// ProcessTask runs one queued dispatch. Requests whose route no longer
// resolves are dropped without retry. A dispatch where every channel failed
// is returned as an error so asynq retries it; partial deliveries are not
// retried since that would repeat the channels that succeeded.
func (w *Worker) ProcessTask(ctx context.Context, task *asynq.Task) error {
	start := time.Now()

	req, err := ParseDispatchPayload(task.Payload())
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	result, err := w.service.Dispatch(ctx, req)
	if err != nil {
		if errors.Is(err, ErrRouteNotFound) || errors.Is(err, ErrRouteDisabled) || errors.Is(err, ErrRouteEmpty) {
			slog.Warn("dropping queued dispatch", "route_id", req.RouteID, "error", err)
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("dispatching route %s: %w", req.RouteID, err)
	}

	slog.Info("queued dispatch processed",
		"dispatch_id", result.ID,
		"route_id", result.RouteID,
		"overall_status", result.OverallStatus,
		"delivered", result.Delivered,
		"duration", time.Since(start),
	)
	if result.OverallStatus == OverallFailure {
		return fmt.Errorf("route %s: every channel failed", result.RouteID)
	}
	return nil
}
