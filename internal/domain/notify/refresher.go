package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// SnapshotSource loads raw configuration from a backing store.
// Implementations live in infra/store/.
type SnapshotSource interface {
	Name() string
	Load(ctx context.Context) (SnapshotData, error)
}

// ChangeNotifier is implemented by sources that can push change events.
type ChangeNotifier interface {
	OnChange(fn func())
}

// RefresherConfig holds configuration for the snapshot refresher.
type RefresherConfig struct {
	// Schedule is a cron spec, e.g. "@every 1m". Empty disables polling.
	Schedule string
}

// Refresher reloads configuration from its source and swaps in a new
// snapshot. A load or validation failure keeps the previous snapshot, so
// dispatch always runs against a known-good configuration.
type Refresher struct {
	source  SnapshotSource
	builder *SnapshotBuilder
	holder  *SnapshotHolder
	config  RefresherConfig

	mu sync.Mutex
}

// NewRefresher creates a new snapshot refresher.
func NewRefresher(source SnapshotSource, builder *SnapshotBuilder, holder *SnapshotHolder, cfg RefresherConfig) *Refresher {
	return &Refresher{
		source:  source,
		builder: builder,
		holder:  holder,
		config:  cfg,
	}
}

// Refresh performs one load-validate-swap cycle.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := r.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading from %s: %w", r.source.Name(), err)
	}
	snap, err := r.builder.Build(r.source.Name(), data)
	if err != nil {
		return fmt.Errorf("validating %s configuration: %w", r.source.Name(), err)
	}
	r.holder.Swap(snap)
	if rt, ok := r.builder.renderer.(TemplateRetainer); ok {
		rt.Retain(snap.Templates())
	}

	slog.Info("configuration snapshot loaded",
		"source", snap.Source,
		"channels", len(snap.channelIDs),
		"routes", len(snap.routeIDs),
		"templates", len(snap.templates),
	)
	return nil
}

// Run schedules refreshes and subscribes to source change events. It blocks
// until the context is cancelled. Should be called in a goroutine.
func (r *Refresher) Run(ctx context.Context) error {
	if n, ok := r.source.(ChangeNotifier); ok {
		n.OnChange(func() {
			if err := r.Refresh(ctx); err != nil {
				slog.Error("refresher: reload on change failed, keeping previous snapshot", "error", err)
			}
		})
	}

	if r.config.Schedule == "" {
		slog.Info("refresher started", "source", r.source.Name(), "schedule", "disabled")
		<-ctx.Done()
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(r.config.Schedule, func() {
		if err := r.Refresh(ctx); err != nil {
			slog.Error("refresher: scheduled reload failed, keeping previous snapshot", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", r.config.Schedule, err)
	}
	c.Start()
	slog.Info("refresher started", "source", r.source.Name(), "schedule", r.config.Schedule)

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("refresher stopped")
	return nil
}
