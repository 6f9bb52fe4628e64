package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"notifyhub/internal/domain/notify"
)

const sampleConfig = `
channels:
  - id: tg
    type: telegram
    config:
      bot_token: "123:abc"
      chat_id: 42
  - id: bark
    type: bark
    enabled: false
    timeout: 5s
    rate_per_sec: 2
    config:
      device_key: dev
routes:
  - id: r1
    policy: all
    bindings:
      - channel_id: tg
        template_id: playback
    channels: [bark]
  - id: off
    enabled: false
    channels: [tg]
templates:
  - id: playback
    kind: playback_started
    title_template: "{{ user }} started {{ title }}"
    body_template: "{{ content }}"
`

func TestFileSourceLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	src, err := NewFileSource(path)
	if err != nil {
		t.Fatalf("NewFileSource failed: %v", err)
	}
	data, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if len(data.Channels) != 2 || len(data.Routes) != 2 || len(data.Templates) != 1 {
		t.Fatalf("unexpected counts: %d channels, %d routes, %d templates", len(data.Channels), len(data.Routes), len(data.Templates))
	}

	tg := data.Channels[0]
	if !tg.Enabled {
		t.Fatal("expected channel without enabled key to be enabled")
	}
	if tg.Config["chat_id"] != "42" {
		t.Fatalf("expected numeric chat_id as string, got %q", tg.Config["chat_id"])
	}

	bark := data.Channels[1]
	if bark.Enabled || bark.Timeout != 5*time.Second || bark.RatePerSec != 2 {
		t.Fatalf("unexpected bark channel %+v", bark)
	}

	r1 := data.Routes[0]
	want := []notify.ChannelBinding{{ChannelID: "tg", TemplateID: "playback"}, {ChannelID: "bark"}}
	if len(r1.Bindings) != len(want) {
		t.Fatalf("expected %d bindings, got %+v", len(want), r1.Bindings)
	}
	for i := range want {
		if r1.Bindings[i] != want[i] {
			t.Fatalf("binding %d: expected %+v got %+v", i, want[i], r1.Bindings[i])
		}
	}
	if r1.Policy != notify.PolicyAll || !r1.Enabled {
		t.Fatalf("unexpected route %+v", r1)
	}
	if data.Routes[1].Enabled {
		t.Fatal("expected route off to be disabled")
	}
	if data.Templates[0].Kind != notify.KindPlaybackStarted {
		t.Fatalf("unexpected template kind %q", data.Templates[0].Kind)
	}
}

func TestStringifyConfig(t *testing.T) {
	got := stringifyConfig(map[string]any{
		"agent_id": float64(1000002),
		"ratio":    0.5,
		"enabled":  true,
		"name":     "x",
		"skip":     nil,
	})
	want := map[string]string{"agent_id": "1000002", "ratio": "0.5", "enabled": "true", "name": "x"}
	if len(got) != len(want) {
		t.Fatalf("expected %v got %v", want, got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s: expected %q got %q", k, v, got[k])
		}
	}
}
