package notify

import (
	"errors"
	"strings"
	"testing"
)

func TestSnapshotBuildRejectsInvalidConfiguration(t *testing.T) {
	strict := newFakeAdapter(ChannelBark, succeed)
	strict.validate = func(cfg map[string]string) error {
		if cfg["device_key"] == "" {
			return errors.New("device_key is required")
		}
		return nil
	}
	reg := newTestRegistry(t, strict)
	good := Channel{ID: "b", Type: ChannelBark, Enabled: true, Config: map[string]string{"device_key": "k"}}

	tests := []struct {
		name    string
		data    SnapshotData
		wantErr string
		is      error
	}{
		{
			name:    "unknown channel type",
			data:    SnapshotData{Channels: []Channel{{ID: "x", Type: "pager"}}},
			wantErr: "unknown channel type",
			is:      ErrAdapterConfig,
		},
		{
			name:    "adapter rejects config",
			data:    SnapshotData{Channels: []Channel{{ID: "x", Type: ChannelBark}}},
			wantErr: "device_key is required",
			is:      ErrAdapterConfig,
		},
		{
			name:    "duplicate channel",
			data:    SnapshotData{Channels: []Channel{good, good}},
			wantErr: "duplicate channel id",
		},
		{
			name:    "reserved template prefix",
			data:    SnapshotData{Templates: []Template{{ID: "builtin:mine"}}},
			wantErr: "reserved prefix",
		},
		{
			name:    "template syntax",
			data:    SnapshotData{Templates: []Template{{ID: "t", BodyTemplate: "{% if %}"}}},
			wantErr: "template \"t\"",
			is:      ErrTemplateSyntax,
		},
		{
			name:    "unknown binding channel",
			data:    SnapshotData{Routes: []Route{newRoute("r", "ghost")}},
			wantErr: "unknown channel \"ghost\"",
		},
		{
			name: "unknown binding template",
			data: SnapshotData{
				Channels: []Channel{good},
				Routes:   []Route{{ID: "r", Enabled: true, Bindings: []ChannelBinding{{ChannelID: "b", TemplateID: "nope"}}}},
			},
			wantErr: "unknown template \"nope\"",
		},
		{
			name:    "bad policy",
			data:    SnapshotData{Routes: []Route{{ID: "r", Policy: "most"}}},
			wantErr: "unknown policy",
		},
		{
			name:    "empty route id",
			data:    SnapshotData{Routes: []Route{{}}},
			wantErr: "route with empty id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSnapshotBuilder(reg, fakeRenderer{}, testBuiltins).Build("test", tt.data)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("error = %v, want errors.Is %v", err, tt.is)
			}
		})
	}
}

func TestSnapshotBuildRequiresDefaultTemplate(t *testing.T) {
	_, err := NewSnapshotBuilder(newTestRegistry(t), fakeRenderer{}, nil).Build("test", SnapshotData{})
	if err == nil {
		t.Fatal("expected an error without the default template")
	}
}

func TestSnapshotAccessorsReturnCopies(t *testing.T) {
	reg := newTestRegistry(t, newFakeAdapter(ChannelBark, succeed))
	ch := newChannel("b", ChannelBark)
	ch.Config["device_key"] = "k"
	holder := newTestHolder(t, reg, SnapshotData{
		Channels: []Channel{ch},
		Routes:   []Route{newRoute("r", "b")},
	})
	snap := holder.Current()

	// The input used to build the snapshot is not aliased.
	ch.Config["device_key"] = "changed"

	got, _ := snap.Channel("b")
	if got.Config["device_key"] != "k" {
		t.Fatalf("device_key = %q, want k", got.Config["device_key"])
	}
	got.Config["device_key"] = "mutated"
	again, _ := snap.Channel("b")
	if again.Config["device_key"] != "k" {
		t.Errorf("snapshot channel was mutated through a copy")
	}

	r, _ := snap.Route("r")
	r.Bindings[0].ChannelID = "other"
	r2, _ := snap.Route("r")
	if r2.Bindings[0].ChannelID != "b" {
		t.Errorf("snapshot route was mutated through a copy")
	}

	if _, ok := snap.Template(DefaultTemplateID); !ok {
		t.Error("expected builtin template in snapshot")
	}
	if snap.Source != "test" || snap.LoadedAt.IsZero() {
		t.Errorf("source = %q loaded_at = %v", snap.Source, snap.LoadedAt)
	}
}

func TestSnapshotHolderSwap(t *testing.T) {
	reg := newTestRegistry(t)
	b := NewSnapshotBuilder(reg, fakeRenderer{}, testBuiltins)
	first, _ := b.Build("one", SnapshotData{})
	second, _ := b.Build("two", SnapshotData{})

	h := NewSnapshotHolder(first)
	if prev := h.Swap(second); prev != first {
		t.Errorf("Swap returned %v, want first snapshot", prev)
	}
	if h.Current().Source != "two" {
		t.Errorf("current source = %q", h.Current().Source)
	}
}

func TestResolveSkipsDisabledAndDeduplicates(t *testing.T) {
	reg := newTestRegistry(t, newFakeAdapter(ChannelBark, succeed))
	off := newChannel("off", ChannelBark)
	off.Enabled = false
	r := Route{ID: "r", Enabled: true, Policy: PolicyAll, Bindings: []ChannelBinding{
		{ChannelID: "a", TemplateID: "custom"},
		{ChannelID: "off"},
		{ChannelID: "b"},
		{ChannelID: "a"},
	}}
	holder := newTestHolder(t, reg, SnapshotData{
		Channels:  []Channel{newChannel("a", ChannelBark), off, newChannel("b", ChannelBark)},
		Routes:    []Route{r},
		Templates: []Template{{ID: "custom", TitleTemplate: "{{ title }}!"}},
	})

	targets, policy, err := Resolve(holder.Current(), "r")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if policy != PolicyAll {
		t.Errorf("policy = %s", policy)
	}
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets got %d", len(targets))
	}
	if targets[0].Channel.ID != "a" || targets[0].Template.ID != "custom" {
		t.Errorf("first target = %s/%s", targets[0].Channel.ID, targets[0].Template.ID)
	}
	if targets[1].Channel.ID != "b" || targets[1].Template.ID != DefaultTemplateID {
		t.Errorf("second target = %s/%s", targets[1].Channel.ID, targets[1].Template.ID)
	}
}

func TestRegistry(t *testing.T) {
	reg := newTestRegistry(t, newFakeAdapter(ChannelTelegram, succeed), newFakeAdapter(ChannelBark, succeed))

	if err := reg.Register(newFakeAdapter(ChannelBark, succeed)); err == nil {
		t.Error("expected duplicate registration to fail")
	}
	if err := reg.RegisterFunc("pager", nil, nil); err == nil {
		t.Error("expected RegisterFunc without send to fail")
	}
	if err := reg.RegisterFunc("pager", nil, succeedFunc); err != nil {
		t.Fatalf("RegisterFunc() error = %v", err)
	}
	if _, ok := reg.Lookup("pager"); !ok {
		t.Error("expected pager adapter")
	}

	got := reg.Types()
	want := []ChannelType{ChannelBark, "pager", ChannelTelegram}
	if len(got) != len(want) {
		t.Fatalf("Types() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Types() = %v, want %v", got, want)
			break
		}
	}

	if err := reg.Validate(Channel{ID: "x", Type: "fax"}); !errors.Is(err, ErrAdapterConfig) {
		t.Errorf("Validate() error = %v, want ErrAdapterConfig", err)
	}
}
