// Package app wires the dispatch core shared by the server and worker processes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"notifyhub/internal/config"
	"notifyhub/internal/domain/notify"
	"notifyhub/internal/infra/channel"
	"notifyhub/internal/infra/store"
	"notifyhub/internal/infra/template"
	"notifyhub/internal/infra/tokencache"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// Core holds the wired dispatch core.
type Core struct {
	Registry   *notify.Registry
	Renderer   *template.Engine
	Snapshots  *notify.SnapshotHolder
	Refresher  *notify.Refresher
	Engine     *notify.Engine
	Prometheus *prometheus.Registry
	Redis      *redis.Client

	closers []func() error
}

// New builds the registry, renderer, snapshot source and engine, and loads
// the first snapshot. Plugins are installed before the first load so their
// channel types validate.
func New(ctx context.Context, cfg *config.Config, plugins ...notify.Plugin) (*Core, error) {
	c := &Core{}

	c.Redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	c.closers = append(c.closers, c.Redis.Close)

	renderer, err := template.NewEngine()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("initializing template engine: %w", err)
	}
	c.Renderer = renderer

	var tokens channel.TokenCache = tokencache.NewMemory()
	if cfg.WeCom.TokenCache == "redis" {
		tokens = tokencache.NewRedis(c.Redis)
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}

	c.Registry, err = notify.NewRegistry(channel.Builtins(httpClient, tokens)...)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("registering channel adapters: %w", err)
	}

	c.Snapshots = notify.NewSnapshotHolder(nil)
	if err := notify.InstallPlugins(c.Registry, notify.NewHost(c.Snapshots, c.Renderer), plugins...); err != nil {
		c.Close()
		return nil, err
	}

	source, err := c.openSource(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}

	builder := notify.NewSnapshotBuilder(c.Registry, c.Renderer, template.Builtins())
	schedule := cfg.Snapshot.Refresh
	if _, ok := source.(notify.ChangeNotifier); ok {
		// File edits are pushed, polling is redundant.
		schedule = ""
	}
	c.Refresher = notify.NewRefresher(source, builder, c.Snapshots, notify.RefresherConfig{Schedule: schedule})
	if err := c.Refresher.Refresh(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("loading initial configuration: %w", err)
	}

	c.Prometheus = prometheus.NewRegistry()
	c.Prometheus.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c.Engine = notify.NewEngine(c.Snapshots, c.Registry, c.Renderer, notify.EngineConfig{
		Retry: notify.RetryPolicy{
			MaxAttempts: cfg.Dispatch.MaxAttempts,
			BaseDelay:   cfg.Dispatch.BaseBackoff,
			MaxDelay:    cfg.Dispatch.MaxBackoff,
		},
		AttemptTimeout: cfg.Dispatch.AttemptTimeout,
		Concurrency:    cfg.Dispatch.Concurrency,
		DefaultPolicy:  notify.Policy(cfg.Dispatch.DefaultPolicy),
	}, notify.WithMetrics(notify.NewMetrics(c.Prometheus)))

	return c, nil
}

func (c *Core) openSource(ctx context.Context, cfg *config.Config) (notify.SnapshotSource, error) {
	switch cfg.Snapshot.Source {
	case "supabase":
		src, err := store.NewSupabaseSource(cfg.Supabase.URL, cfg.Supabase.ServiceKey)
		if err != nil {
			return nil, fmt.Errorf("initializing supabase source: %w", err)
		}
		return src, nil

	case "sqlite":
		src, err := store.NewSQLiteSource(cfg.Snapshot.Path)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, src.Close)
		if cfg.Snapshot.ImportFile {
			if err := importFile(ctx, cfg.File, src); err != nil {
				return nil, err
			}
		}
		return src, nil

	default:
		if cfg.File == "" {
			return nil, errors.New("snapshot.source file requires a config file")
		}
		return store.NewFileSource(cfg.File)
	}
}

func importFile(ctx context.Context, path string, dst *store.SQLiteSource) error {
	if path == "" {
		return errors.New("snapshot.import_file is set but no config file was found")
	}
	file, err := store.NewFileSource(path)
	if err != nil {
		return err
	}
	data, err := file.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading %s for import: %w", path, err)
	}
	if err := dst.Import(ctx, data); err != nil {
		return fmt.Errorf("importing into sqlite: %w", err)
	}
	slog.Info("configuration imported into sqlite",
		"channels", len(data.Channels),
		"routes", len(data.Routes),
		"templates", len(data.Templates),
	)
	return nil
}

// Close releases every resource opened by New.
func (c *Core) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
