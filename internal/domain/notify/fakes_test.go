package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeRenderer expands "{{ key }}" placeholders and rejects "{%" blocks.
// A body containing "{{ explode }}" fails at render time.
type fakeRenderer struct{}

func (fakeRenderer) Compile(tpl Template) error {
	if strings.Contains(tpl.TitleTemplate+tpl.BodyTemplate, "{%") {
		return fmt.Errorf("%w: blocks are not supported", ErrTemplateSyntax)
	}
	return nil
}

func (fakeRenderer) Render(tpl Template, data map[string]any) (Rendered, error) {
	if strings.Contains(tpl.BodyTemplate, "{{ explode }}") {
		return Rendered{}, fmt.Errorf("%w: explode", ErrTemplateRender)
	}
	return Rendered{Title: expand(tpl.TitleTemplate, data), Body: expand(tpl.BodyTemplate, data)}, nil
}

func expand(src string, data map[string]any) string {
	for k, v := range data {
		src = strings.ReplaceAll(src, "{{ "+k+" }}", fmt.Sprint(v))
	}
	return src
}

var testBuiltins = []Template{
	{ID: DefaultTemplateID, Kind: KindGeneric, TitleTemplate: "{{ title }}", BodyTemplate: "{{ content }}"},
}

// fakeAdapter records every send. send receives the 1-based call number.
type fakeAdapter struct {
	typ      ChannelType
	validate func(cfg map[string]string) error
	send     func(ctx context.Context, n int, msg *Message) error

	mu    sync.Mutex
	calls []Message
}

func newFakeAdapter(typ ChannelType, send func(ctx context.Context, n int, msg *Message) error) *fakeAdapter {
	return &fakeAdapter{typ: typ, send: send}
}

func (f *fakeAdapter) Type() ChannelType { return f.typ }

func (f *fakeAdapter) ValidateConfig(cfg map[string]string) error {
	if f.validate == nil {
		return nil
	}
	return f.validate(cfg)
}

func (f *fakeAdapter) Send(ctx context.Context, msg *Message, _ map[string]string) error {
	f.mu.Lock()
	f.calls = append(f.calls, *msg)
	n := len(f.calls)
	f.mu.Unlock()
	if f.send == nil {
		return nil
	}
	return f.send(ctx, n, msg)
}

func (f *fakeAdapter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAdapter) Last() Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func succeed(context.Context, int, *Message) error { return nil }

// blockUntilDone simulates a provider that never answers.
func blockUntilDone(ctx context.Context, _ int, _ *Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func failWith(kind ErrorKind) func(context.Context, int, *Message) error {
	return func(context.Context, int, *Message) error {
		return NewDeliveryError("fake", kind, "forced %s", kind)
	}
}

// sleepRecorder replaces backoff sleeps and records requested waits.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

func newTestRegistry(t *testing.T, adapters ...ChannelAdapter) *Registry {
	t.Helper()
	reg, err := NewRegistry(adapters...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

func newTestHolder(t *testing.T, reg *Registry, data SnapshotData) *SnapshotHolder {
	t.Helper()
	snap, err := NewSnapshotBuilder(reg, fakeRenderer{}, testBuiltins).Build("test", data)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return NewSnapshotHolder(snap)
}

func testEngineConfig() EngineConfig {
	return EngineConfig{
		Retry:          RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 20 * time.Second},
		AttemptTimeout: time.Second,
		Concurrency:    4,
	}
}

func newChannel(id string, typ ChannelType) Channel {
	return Channel{ID: id, Type: typ, Enabled: true, Config: map[string]string{}}
}

func newRoute(id string, channelIDs ...string) Route {
	r := Route{ID: id, Enabled: true}
	for _, c := range channelIDs {
		r.Bindings = append(r.Bindings, ChannelBinding{ChannelID: c})
	}
	return r
}

func succeedFunc(context.Context, *Message, map[string]string) error { return nil }
