package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"notifyhub/internal/domain/notify"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	_ notify.SnapshotSource = (*FileSource)(nil)
	_ notify.ChangeNotifier = (*FileSource)(nil)
)

// FileSource reads channels, routes and templates from a YAML/JSON/TOML
// config file and reports edits to it.
type FileSource struct {
	mu sync.Mutex
	v  *viper.Viper
}

// NewFileSource reads the config file at path.
func NewFileSource(path string) (*FileSource, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return &FileSource{v: v}, nil
}

// Name identifies the source in logs and snapshots.
func (s *FileSource) Name() string { return "file" }

// fileChannel and fileRoute default enabled to true when the key is omitted.
type fileChannel struct {
	ID         string            `mapstructure:"id"`
	Name       string            `mapstructure:"name"`
	Type       string            `mapstructure:"type"`
	Config     map[string]string `mapstructure:"config"`
	Enabled    *bool             `mapstructure:"enabled"`
	Timeout    time.Duration     `mapstructure:"timeout"`
	RatePerSec float64           `mapstructure:"rate_per_sec"`
}

type fileRoute struct {
	ID       string                  `mapstructure:"id"`
	Name     string                  `mapstructure:"name"`
	Enabled  *bool                   `mapstructure:"enabled"`
	Policy   string                  `mapstructure:"policy"`
	Bindings []notify.ChannelBinding `mapstructure:"bindings"`
	// Channels is shorthand for bindings that use the default template.
	Channels []string `mapstructure:"channels"`
}

// Load decodes the current file contents.
func (s *FileSource) Load(_ context.Context) (notify.SnapshotData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		channels []fileChannel
		routes   []fileRoute
		data     notify.SnapshotData
	)
	if err := s.v.UnmarshalKey("channels", &channels); err != nil {
		return data, fmt.Errorf("decoding channels: %w", err)
	}
	if err := s.v.UnmarshalKey("routes", &routes); err != nil {
		return data, fmt.Errorf("decoding routes: %w", err)
	}
	if err := s.v.UnmarshalKey("templates", &data.Templates); err != nil {
		return data, fmt.Errorf("decoding templates: %w", err)
	}

	for _, c := range channels {
		data.Channels = append(data.Channels, notify.Channel{
			ID:         c.ID,
			Name:       c.Name,
			Type:       notify.ChannelType(c.Type),
			Config:     c.Config,
			Enabled:    c.Enabled == nil || *c.Enabled,
			Timeout:    c.Timeout,
			RatePerSec: c.RatePerSec,
		})
	}
	for _, r := range routes {
		bindings := r.Bindings
		for _, id := range r.Channels {
			bindings = append(bindings, notify.ChannelBinding{ChannelID: id})
		}
		data.Routes = append(data.Routes, notify.Route{
			ID:       r.ID,
			Name:     r.Name,
			Enabled:  r.Enabled == nil || *r.Enabled,
			Policy:   notify.Policy(r.Policy),
			Bindings: bindings,
		})
	}
	return data, nil
}

// OnChange watches the file and calls fn after every write.
func (s *FileSource) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		slog.Info("configuration file changed", "file", e.Name, "op", e.Op.String())
		fn()
	})
	s.v.WatchConfig()
}
