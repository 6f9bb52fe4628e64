package notify

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultTemplateID is used for bindings that name no template.
const DefaultTemplateID = "builtin:generic"

// builtinPrefix is reserved for templates shipped with the renderer.
const builtinPrefix = "builtin:"

// SnapshotData is the raw configuration handed over by a source.
type SnapshotData struct {
	Channels  []Channel  `json:"channels" mapstructure:"channels"`
	Routes    []Route    `json:"routes" mapstructure:"routes"`
	Templates []Template `json:"templates" mapstructure:"templates"`
}

// Snapshot is an immutable, validated view of channels, routes and templates.
// Accessors hand out copies; nothing reachable from a Snapshot is ever mutated.
type Snapshot struct {
	channels  map[string]Channel
	routes    map[string]Route
	templates map[string]Template

	channelIDs []string
	routeIDs   []string

	Source   string
	LoadedAt time.Time
}

// Channel returns a copy of the channel with the given id.
func (s *Snapshot) Channel(id string) (Channel, bool) {
	ch, ok := s.channels[id]
	if !ok {
		return Channel{}, false
	}
	return cloneChannel(ch), true
}

// Route returns a copy of the route with the given id.
func (s *Snapshot) Route(id string) (Route, bool) {
	r, ok := s.routes[id]
	if !ok {
		return Route{}, false
	}
	return cloneRoute(r), true
}

// Template returns the template with the given id. Templates hold only strings.
func (s *Snapshot) Template(id string) (Template, bool) {
	t, ok := s.templates[id]
	return t, ok
}

// Channels lists all channels sorted by id.
func (s *Snapshot) Channels() []Channel {
	out := make([]Channel, 0, len(s.channelIDs))
	for _, id := range s.channelIDs {
		out = append(out, cloneChannel(s.channels[id]))
	}
	return out
}

// Routes lists all routes sorted by id.
func (s *Snapshot) Routes() []Route {
	out := make([]Route, 0, len(s.routeIDs))
	for _, id := range s.routeIDs {
		out = append(out, cloneRoute(s.routes[id]))
	}
	return out
}

// Templates returns every template, builtins included, sorted by id.
func (s *Snapshot) Templates() []Template {
	ids := slices.Sorted(maps.Keys(s.templates))
	out := make([]Template, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.templates[id])
	}
	return out
}

func cloneChannel(ch Channel) Channel {
	ch.Config = maps.Clone(ch.Config)
	return ch
}

func cloneRoute(r Route) Route {
	r.Bindings = slices.Clone(r.Bindings)
	return r
}

// SnapshotBuilder validates raw configuration into a Snapshot.
type SnapshotBuilder struct {
	registry *Registry
	renderer Renderer
	builtins []Template
}

// NewSnapshotBuilder creates a builder. builtins are added to every snapshot
// and must include DefaultTemplateID.
func NewSnapshotBuilder(registry *Registry, renderer Renderer, builtins []Template) *SnapshotBuilder {
	return &SnapshotBuilder{registry: registry, renderer: renderer, builtins: builtins}
}

// Build checks every channel config against its adapter, compiles every
// template and verifies route references. Any problem rejects the whole
// snapshot so a half-valid configuration never reaches dispatch.
func (b *SnapshotBuilder) Build(source string, data SnapshotData) (*Snapshot, error) {
	snap := &Snapshot{
		channels:  make(map[string]Channel, len(data.Channels)),
		routes:    make(map[string]Route, len(data.Routes)),
		templates: make(map[string]Template, len(data.Templates)+len(b.builtins)),
		Source:    source,
		LoadedAt:  time.Now(),
	}

	for _, t := range b.builtins {
		snap.templates[t.ID] = t
	}
	if _, ok := snap.templates[DefaultTemplateID]; !ok {
		return nil, fmt.Errorf("default template %q is not registered", DefaultTemplateID)
	}

	for _, t := range data.Templates {
		if t.ID == "" {
			return nil, fmt.Errorf("template with empty id")
		}
		if strings.HasPrefix(t.ID, builtinPrefix) {
			return nil, fmt.Errorf("template id %q uses reserved prefix %q", t.ID, builtinPrefix)
		}
		if _, dup := snap.templates[t.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %q", t.ID)
		}
		if t.Kind == "" {
			t.Kind = KindGeneric
		}
		snap.templates[t.ID] = t
	}
	for id, t := range snap.templates {
		if err := b.renderer.Compile(t); err != nil {
			return nil, fmt.Errorf("template %q: %w", id, err)
		}
	}

	for _, ch := range data.Channels {
		if ch.ID == "" {
			return nil, fmt.Errorf("channel with empty id")
		}
		if _, dup := snap.channels[ch.ID]; dup {
			return nil, fmt.Errorf("duplicate channel id %q", ch.ID)
		}
		if err := b.registry.Validate(ch); err != nil {
			return nil, fmt.Errorf("channel %q: %w", ch.ID, err)
		}
		snap.channels[ch.ID] = cloneChannel(ch)
		snap.channelIDs = append(snap.channelIDs, ch.ID)
	}

	for _, r := range data.Routes {
		if r.ID == "" {
			return nil, fmt.Errorf("route with empty id")
		}
		if _, dup := snap.routes[r.ID]; dup {
			return nil, fmt.Errorf("duplicate route id %q", r.ID)
		}
		switch r.Policy {
		case "":
		case PolicyAny, PolicyAll:
		default:
			return nil, fmt.Errorf("route %q: unknown policy %q", r.ID, r.Policy)
		}
		for _, bnd := range r.Bindings {
			if _, ok := snap.channels[bnd.ChannelID]; !ok {
				return nil, fmt.Errorf("route %q: unknown channel %q", r.ID, bnd.ChannelID)
			}
			if bnd.TemplateID != "" {
				if _, ok := snap.templates[bnd.TemplateID]; !ok {
					return nil, fmt.Errorf("route %q: unknown template %q", r.ID, bnd.TemplateID)
				}
			}
		}
		snap.routes[r.ID] = cloneRoute(r)
		snap.routeIDs = append(snap.routeIDs, r.ID)
	}

	slices.Sort(snap.channelIDs)
	slices.Sort(snap.routeIDs)
	return snap, nil
}

// SnapshotProvider hands out the snapshot a dispatch should use.
type SnapshotProvider interface {
	Current() *Snapshot
}

// SnapshotHolder publishes snapshots atomically. Readers never block.
type SnapshotHolder struct {
	cur atomic.Pointer[Snapshot]
}

// NewSnapshotHolder creates a holder, optionally seeded with a snapshot.
func NewSnapshotHolder(initial *Snapshot) *SnapshotHolder {
	h := &SnapshotHolder{}
	if initial != nil {
		h.cur.Store(initial)
	}
	return h
}

// Current returns the latest snapshot or nil before the first load.
func (h *SnapshotHolder) Current() *Snapshot {
	return h.cur.Load()
}

// Swap installs a new snapshot and returns the previous one.
func (h *SnapshotHolder) Swap(s *Snapshot) *Snapshot {
	return h.cur.Swap(s)
}
