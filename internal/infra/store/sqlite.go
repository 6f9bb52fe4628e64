package store

import (
	"context"
	"fmt"

	"notifyhub/internal/domain/notify"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var _ notify.SnapshotSource = (*SQLiteSource)(nil)

// SQLiteSource loads configuration from a local SQLite database.
type SQLiteSource struct {
	db *gorm.DB
}

// NewSQLiteSource opens (and migrates) the database at path.
func NewSQLiteSource(path string) (*SQLiteSource, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	if err := db.AutoMigrate(&channelRow{}, &routeRow{}, &templateRow{}); err != nil {
		return nil, fmt.Errorf("migrating sqlite schema: %w", err)
	}
	return &SQLiteSource{db: db}, nil
}

// Name identifies the source in logs and snapshots.
func (s *SQLiteSource) Name() string { return "sqlite" }

// Load reads all three tables ordered by id.
func (s *SQLiteSource) Load(ctx context.Context) (notify.SnapshotData, error) {
	db := s.db.WithContext(ctx)

	var channels []channelRow
	if err := db.Order("id").Find(&channels).Error; err != nil {
		return notify.SnapshotData{}, fmt.Errorf("fetching channels: %w", err)
	}
	var routes []routeRow
	if err := db.Order("id").Find(&routes).Error; err != nil {
		return notify.SnapshotData{}, fmt.Errorf("fetching routes: %w", err)
	}
	var templates []templateRow
	if err := db.Order("id").Find(&templates).Error; err != nil {
		return notify.SnapshotData{}, fmt.Errorf("fetching templates: %w", err)
	}
	return rowsToData(channels, routes, templates), nil
}

// Import upserts the given configuration in one transaction. Used to seed a
// database from a config file.
func (s *SQLiteSource) Import(ctx context.Context, data notify.SnapshotData) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := tx.Clauses(clause.OnConflict{UpdateAll: true})
		for _, ch := range data.Channels {
			row := channelToRow(ch)
			if err := upsert.Create(&row).Error; err != nil {
				return fmt.Errorf("saving channel %s: %w", ch.ID, err)
			}
		}
		for _, r := range data.Routes {
			row := routeRow{ID: r.ID, Name: r.Name, Enabled: r.Enabled, Policy: string(r.Policy), Bindings: r.Bindings}
			if err := upsert.Create(&row).Error; err != nil {
				return fmt.Errorf("saving route %s: %w", r.ID, err)
			}
		}
		for _, t := range data.Templates {
			row := templateRow{ID: t.ID, Kind: string(t.Kind), TitleTemplate: t.TitleTemplate, BodyTemplate: t.BodyTemplate}
			if err := upsert.Create(&row).Error; err != nil {
				return fmt.Errorf("saving template %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

// Close releases the underlying connection pool.
func (s *SQLiteSource) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
