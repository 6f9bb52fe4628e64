package queue

import (
	"context"
	"fmt"
	"time"

	"notifyhub/internal/domain/notify"

	"github.com/hibiken/asynq"
)

const queueName = "notifications"

var _ notify.Enqueuer = (*Enqueuer)(nil)

// NewClient creates a new asynq client connected to Redis.
func NewClient(redisAddr, password string, db int) *asynq.Client {
	return asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisAddr,
		Password: password,
		DB:       db,
	})
}

// NewServer creates a new asynq server connected to Redis.
func NewServer(redisAddr, password string, db int, concurrency int) *asynq.Server {
	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisAddr,
			Password: password,
			DB:       db,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				queueName: 10, // priority weight
				"default": 1,
			},
			// Channels already retry inside a dispatch, so queue-level
			// retries only cover whole-route outages: 30s, 60s, 120s, ...
			RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
				return time.Duration(30*(1<<uint(n-1))) * time.Second
			},
		},
	)
}

// Enqueuer adapts the asynq client to notify.Enqueuer.
type Enqueuer struct {
	client   *asynq.Client
	maxRetry int
}

// NewEnqueuer creates an enqueuer for dispatch tasks.
func NewEnqueuer(client *asynq.Client, maxRetry int) *Enqueuer {
	return &Enqueuer{client: client, maxRetry: maxRetry}
}

// EnqueueDispatch enqueues a dispatch task and returns its task id.
func (q *Enqueuer) EnqueueDispatch(ctx context.Context, req *notify.NotifyRequest) (string, error) {
	task, err := notify.NewDispatchTask(req)
	if err != nil {
		return "", fmt.Errorf("creating task: %w", err)
	}

	info, err := q.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(q.maxRetry),
		asynq.Queue(queueName),
	)
	if err != nil {
		return "", fmt.Errorf("enqueuing task: %w", err)
	}
	return info.ID, nil
}
