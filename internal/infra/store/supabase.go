package store

import (
	"context"
	"encoding/json"
	"fmt"

	"notifyhub/internal/domain/notify"

	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
)

var _ notify.SnapshotSource = (*SupabaseSource)(nil)

// SupabaseSource loads channels, routes and templates from Supabase tables.
type SupabaseSource struct {
	client *supa.Client
}

// NewSupabaseSource creates a new Supabase-backed configuration source.
func NewSupabaseSource(supabaseURL, serviceKey string) (*SupabaseSource, error) {
	client, err := supa.NewClient(supabaseURL, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating supabase client: %w", err)
	}
	return &SupabaseSource{client: client}, nil
}

// Name identifies the source in logs and snapshots.
func (s *SupabaseSource) Name() string { return "supabase" }

// Load reads all three tables ordered by id.
func (s *SupabaseSource) Load(ctx context.Context) (notify.SnapshotData, error) {
	var channels []channelRow
	if err := s.selectAll("channels", &channels); err != nil {
		return notify.SnapshotData{}, err
	}
	var routes []routeRow
	if err := s.selectAll("routes", &routes); err != nil {
		return notify.SnapshotData{}, err
	}
	var templates []templateRow
	if err := s.selectAll("templates", &templates); err != nil {
		return notify.SnapshotData{}, err
	}
	return rowsToData(channels, routes, templates), nil
}

func (s *SupabaseSource) selectAll(table string, dest any) error {
	data, _, err := s.client.From(table).
		Select("*", "", false).
		Order("id", &postgrest.OrderOpts{Ascending: true}).
		Execute()
	if err != nil {
		return fmt.Errorf("fetching %s: %w", table, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("parsing %s: %w", table, err)
	}
	return nil
}
