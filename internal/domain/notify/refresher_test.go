package notify

import (
	"context"
	"errors"
	"testing"
)

type fakeSource struct {
	data SnapshotData
	err  error
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Load(context.Context) (SnapshotData, error) {
	return f.data, f.err
}

func TestRefresherKeepsPreviousSnapshotOnFailure(t *testing.T) {
	reg := newTestRegistry(t, newFakeAdapter(ChannelBark, succeed))
	builder := NewSnapshotBuilder(reg, fakeRenderer{}, testBuiltins)
	holder := NewSnapshotHolder(nil)
	src := &fakeSource{data: SnapshotData{
		Channels: []Channel{newChannel("a", ChannelBark)},
		Routes:   []Route{newRoute("r", "a")},
	}}
	r := NewRefresher(src, builder, holder, RefresherConfig{})

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	first := holder.Current()
	if first == nil || first.Source != "fake" {
		t.Fatalf("snapshot = %v", first)
	}

	src.err = errors.New("database unreachable")
	if err := r.Refresh(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
	if holder.Current() != first {
		t.Error("snapshot replaced after failed load")
	}

	src.err = nil
	src.data.Routes = append(src.data.Routes, newRoute("broken", "ghost"))
	if err := r.Refresh(context.Background()); err == nil {
		t.Fatal("expected validation error")
	}
	if holder.Current() != first {
		t.Error("snapshot replaced after invalid configuration")
	}
}

func TestRefresherRunRejectsBadSchedule(t *testing.T) {
	reg := newTestRegistry(t)
	r := NewRefresher(&fakeSource{}, NewSnapshotBuilder(reg, fakeRenderer{}, testBuiltins), NewSnapshotHolder(nil),
		RefresherConfig{Schedule: "every now and then"})

	if err := r.Run(context.Background()); err == nil {
		t.Fatal("expected schedule error")
	}
}

func TestRefresherRunStopsWithContext(t *testing.T) {
	reg := newTestRegistry(t)
	r := NewRefresher(&fakeSource{}, NewSnapshotBuilder(reg, fakeRenderer{}, testBuiltins), NewSnapshotHolder(nil),
		RefresherConfig{Schedule: "@every 1h"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

type retainingRenderer struct {
	fakeRenderer
	retained [][]Template
}

func (r *retainingRenderer) Retain(templates []Template) {
	r.retained = append(r.retained, templates)
}

func TestRefresherPrunesRendererCache(t *testing.T) {
	reg := newTestRegistry(t)
	renderer := &retainingRenderer{}
	src := &fakeSource{data: SnapshotData{
		Templates: []Template{{ID: "custom", TitleTemplate: "{{ title }}", BodyTemplate: "{{ content }}"}},
	}}
	r := NewRefresher(src, NewSnapshotBuilder(reg, renderer, testBuiltins), NewSnapshotHolder(nil), RefresherConfig{})

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if len(renderer.retained) != 1 {
		t.Fatalf("Retain called %d times, want 1", len(renderer.retained))
	}
	var ids []string
	for _, tpl := range renderer.retained[0] {
		ids = append(ids, tpl.ID)
	}
	if len(ids) != 2 || ids[0] != DefaultTemplateID || ids[1] != "custom" {
		t.Errorf("retained = %v", ids)
	}

	src.err = errors.New("database unreachable")
	if err := r.Refresh(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
	if len(renderer.retained) != 1 {
		t.Error("Retain called after a failed reload")
	}
}
