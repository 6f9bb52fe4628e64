package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
)

func newTestTask(t *testing.T, req *NotifyRequest) *asynq.Task {
	t.Helper()
	task, err := NewDispatchTask(req)
	if err != nil {
		t.Fatalf("NewDispatchTask() error = %v", err)
	}
	return task
}

func TestWorkerProcessTask(t *testing.T) {
	sink := &fakeSink{}
	svc, a := newTestService(t, nil, &fakeLimiter{allow: false}, sink)
	w := NewWorker(svc)

	task := newTestTask(t, &NotifyRequest{RouteID: "r", Title: "queued", Context: map[string]any{"n": 1}})
	if task.Type() != TaskTypeDispatch {
		t.Errorf("task type = %q", task.Type())
	}
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask() error = %v", err)
	}
	if a.Calls() != 1 || a.Last().Title != "queued" {
		t.Errorf("sends = %d", a.Calls())
	}
	if len(sink.results) != 1 {
		t.Errorf("expected result published got %d", len(sink.results))
	}
}

func TestWorkerSkipsRetryForUnresolvableRoutes(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	w := NewWorker(svc)

	for _, id := range []string{"ghost", "off"} {
		err := w.ProcessTask(context.Background(), newTestTask(t, &NotifyRequest{RouteID: id}))
		if !errors.Is(err, asynq.SkipRetry) {
			t.Errorf("route %s: expected SkipRetry got %v", id, err)
		}
	}

	err := w.ProcessTask(context.Background(), asynq.NewTask(TaskTypeDispatch, []byte("{not json")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("bad payload: expected SkipRetry got %v", err)
	}
}

func TestWorkerRetriesOnlyTotalFailure(t *testing.T) {
	ok := newFakeAdapter(ChannelBark, succeed)
	bad := newFakeAdapter(ChannelTelegram, failWith(KindAuth))
	reg := newTestRegistry(t, ok, bad)
	holder := newTestHolder(t, reg, SnapshotData{
		Channels: []Channel{newChannel("a", ChannelBark), newChannel("b", ChannelTelegram)},
		Routes:   []Route{newRoute("partial", "a", "b"), newRoute("dead", "b")},
	})
	w := NewWorker(NewService(NewEngine(holder, reg, fakeRenderer{}, testEngineConfig()), holder, nil, nil))

	if err := w.ProcessTask(context.Background(), newTestTask(t, &NotifyRequest{RouteID: "partial"})); err != nil {
		t.Errorf("partial delivery should not be retried, got %v", err)
	}
	err := w.ProcessTask(context.Background(), newTestTask(t, &NotifyRequest{RouteID: "dead"}))
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Errorf("expected a retryable error got %v", err)
	}
}
