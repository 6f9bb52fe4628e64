package notify

import (
	"errors"
	"fmt"
	"log/slog"
)

// Host is the read-only surface a plugin can use. Everything it returns is a
// copy taken from the current snapshot.
type Host struct {
	snapshots SnapshotProvider
	renderer  Renderer
}

// NewHost creates a plugin host.
func NewHost(snapshots SnapshotProvider, renderer Renderer) *Host {
	return &Host{snapshots: snapshots, renderer: renderer}
}

// Render renders a template the same way dispatch does.
func (h *Host) Render(tpl Template, data map[string]any) (Rendered, error) {
	return h.renderer.Render(tpl, data)
}

// GetChannel looks up a channel by id.
func (h *Host) GetChannel(id string) (Channel, bool) {
	snap := h.snapshots.Current()
	if snap == nil {
		return Channel{}, false
	}
	return snap.Channel(id)
}

// GetRoute looks up a route by id.
func (h *Host) GetRoute(id string) (Route, bool) {
	snap := h.snapshots.Current()
	if snap == nil {
		return Route{}, false
	}
	return snap.Route(id)
}

// GetTemplate looks up a template by id.
func (h *Host) GetTemplate(id string) (Template, bool) {
	snap := h.snapshots.Current()
	if snap == nil {
		return Template{}, false
	}
	return snap.Template(id)
}

// ListChannels lists all configured channels.
func (h *Host) ListChannels() []Channel {
	snap := h.snapshots.Current()
	if snap == nil {
		return nil
	}
	return snap.Channels()
}

// ListRoutes lists all configured routes.
func (h *Host) ListRoutes() []Route {
	snap := h.snapshots.Current()
	if snap == nil {
		return nil
	}
	return snap.Routes()
}

// Plugin extends the service with new channel types.
type Plugin interface {
	Name() string
	Setup(reg *Registry, host *Host) error
}

// InstallPlugins runs Setup for each plugin. Channel types must be registered
// before the first snapshot is built, otherwise channels of that type are
// rejected.
func InstallPlugins(reg *Registry, host *Host, plugins ...Plugin) error {
	var errs []error
	for _, p := range plugins {
		if err := p.Setup(reg, host); err != nil {
			errs = append(errs, fmt.Errorf("plugin %s: %w", p.Name(), err))
			continue
		}
		slog.Info("plugin installed", "plugin", p.Name())
	}
	return errors.Join(errs...)
}
