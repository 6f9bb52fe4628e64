package notify

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TaskTypeDispatch is the asynq task type for async dispatches.
const TaskTypeDispatch = "notify:dispatch"

// NewDispatchTask creates a new asynq task carrying a notify request.
func NewDispatchTask(req *NotifyRequest) (*asynq.Task, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling task payload: %w", err)
	}
	return asynq.NewTask(TaskTypeDispatch, payload), nil
}

// ParseDispatchPayload deserializes the task payload.
func ParseDispatchPayload(data []byte) (*NotifyRequest, error) {
	var req NotifyRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("unmarshaling task payload: %w", err)
	}
	return &req, nil
}
