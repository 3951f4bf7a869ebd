// Package store is the persistence layer: one PostgreSQL database holding
// the raw catalog, the derived metric table, the aggregate table, and the
// refresh log. All access goes through Store so the pipeline never touches
// SQL directly.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const insertBatchSize = 500

// Store wraps the database handle with the catalog operations.
type Store struct {
	db *gorm.DB
}

// Connect opens the PostgreSQL database and migrates the schema.
func Connect(databaseURL string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return Open(db)
}

// Open wraps an existing database handle, migrating the schema first. It
// exists so tests can run the store against an in-memory database.
func Open(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&App{}, &GameMetric{}, &AggregateStat{}, &RefreshLog{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// KnownAppIDs returns the set of appids already in the catalog.
func (s *Store) KnownAppIDs(ctx context.Context) (map[int64]bool, error) {
	var ids []int64
	if err := s.db.WithContext(ctx).Model(&App{}).Pluck("appid", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to load known appids: %w", err)
	}
	known := make(map[int64]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	return known, nil
}

// UpsertDiscovered inserts bare catalog rows for newly discovered apps.
// Rows that already exist get their name and updated_at refreshed, so
// re-running discovery over the same pages is a no-op in effect.
func (s *Store) UpsertDiscovered(ctx context.Context, apps []App) error {
	if len(apps) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "appid"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
	}).CreateInBatches(apps, insertBatchSize).Error
	if err != nil {
		return fmt.Errorf("failed to upsert discovered apps: %w", err)
	}
	return nil
}

// AppsNeedingEnrichment returns appids that have never been fully fetched
// (no ownership data yet), oldest catalog entries first, capped at limit.
func (s *Store) AppsNeedingEnrichment(ctx context.Context, limit int) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&App{}).
		Where("owners <= 0").
		Order("created_at asc").
		Limit(limit).
		Pluck("appid", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query apps needing enrichment: %w", err)
	}
	return ids, nil
}

// AppsNeedingRefresh returns enriched appids whose data is older than the
// cutoff, biggest games first, capped at limit.
func (s *Store) AppsNeedingRefresh(ctx context.Context, cutoff time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&App{}).
		Where("owners > 0 AND updated_at < ?", cutoff).
		Order("owners desc").
		Limit(limit).
		Pluck("appid", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query apps needing refresh: %w", err)
	}
	return ids, nil
}

// Column sets for the partial write-backs. Primary columns are refreshed on
// every successful fetch; secondary columns only when the storefront ran.
var (
	primaryColumns = []string{
		"name", "developer", "publisher", "owners",
		"avg_forever_minutes", "med_forever_minutes",
		"avg_2weeks_minutes", "med_2weeks_minutes",
		"positive", "negative", "ccu",
		"price_cents", "initial_price_cents", "score_rank",
		"genres", "top_tags", "updated_at",
	}
	secondaryColumns = []string{
		"recommendations", "metacritic_score",
		"platform_windows", "platform_mac", "platform_linux",
		"dlc_count", "achievement_count", "language_count", "required_age",
	}
)

// UpdateApp writes a fetched record back to the catalog. When
// includeSecondary is false the storefront columns keep their stored values.
func (s *Store) UpdateApp(ctx context.Context, app App, includeSecondary bool) error {
	columns := primaryColumns
	if includeSecondary {
		columns = append(append([]string{}, primaryColumns...), secondaryColumns...)
	}
	app.UpdatedAt = time.Now().UTC()
	err := s.db.WithContext(ctx).Model(&App{}).
		Where("appid = ?", app.AppID).
		Select(columns).
		Updates(app).Error
	if err != nil {
		return fmt.Errorf("failed to update app %d: %w", app.AppID, err)
	}
	return nil
}

// StalenessCandidates returns the appids least recently updated before the
// cutoff, oldest first, capped at limit. These are the apps checked for
// delisting.
func (s *Store) StalenessCandidates(ctx context.Context, cutoff time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&App{}).
		Where("updated_at < ?", cutoff).
		Order("updated_at asc").
		Limit(limit).
		Pluck("appid", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query staleness candidates: %w", err)
	}
	return ids, nil
}

// DeleteApps removes the given appids from both the metric table and the
// catalog in a single transaction.
func (s *Store) DeleteApps(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("appid IN ?", ids).Delete(&GameMetric{}).Error; err != nil {
			return err
		}
		return tx.Where("appid IN ?", ids).Delete(&App{}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete %d apps: %w", len(ids), err)
	}
	return nil
}

// CatalogSnapshot returns every enriched catalog row (owners > 0).
func (s *Store) CatalogSnapshot(ctx context.Context) ([]App, error) {
	var apps []App
	if err := s.db.WithContext(ctx).Where("owners > 0").Order("appid asc").Find(&apps).Error; err != nil {
		return nil, fmt.Errorf("failed to snapshot catalog: %w", err)
	}
	return apps, nil
}

// ReplaceMetrics swaps the full content of the metric table for the given
// rows in one transaction.
func (s *Store) ReplaceMetrics(ctx context.Context, metrics []GameMetric) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&GameMetric{}).Error; err != nil {
			return err
		}
		if len(metrics) == 0 {
			return nil
		}
		return tx.CreateInBatches(metrics, insertBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("failed to replace metrics: %w", err)
	}
	return nil
}

// MetricsSnapshot returns every derived metric row.
func (s *Store) MetricsSnapshot(ctx context.Context) ([]GameMetric, error) {
	var metrics []GameMetric
	if err := s.db.WithContext(ctx).Order("appid asc").Find(&metrics).Error; err != nil {
		return nil, fmt.Errorf("failed to snapshot metrics: %w", err)
	}
	return metrics, nil
}

// ReplaceAggregates swaps one family's rows in the aggregate table in one
// transaction, leaving the other families untouched.
func (s *Store) ReplaceAggregates(ctx context.Context, family string, rows []AggregateStat) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("family = ?", family).Delete(&AggregateStat{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, insertBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("failed to replace %s aggregates: %w", family, err)
	}
	return nil
}

// Aggregates returns one family's rows ordered for presentation.
func (s *Store) Aggregates(ctx context.Context, family string) ([]AggregateStat, error) {
	var rows []AggregateStat
	err := s.db.WithContext(ctx).
		Where("family = ?", family).
		Order("sort_order asc, group_key asc, sub_key asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load %s aggregates: %w", family, err)
	}
	return rows, nil
}

// UpsertRefreshLog records a completed rebuild of one logical table.
func (s *Store) UpsertRefreshLog(ctx context.Context, name string, rowCount int64, duration time.Duration) error {
	entry := RefreshLog{
		Name:                   name,
		LastRefreshed:          time.Now().UTC(),
		RowCount:               rowCount,
		RefreshDurationSeconds: duration.Seconds(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "table_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_refreshed", "row_count", "refresh_duration_seconds"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to upsert refresh log for %s: %w", name, err)
	}
	return nil
}

// GetRefreshLog returns the refresh-log entry for one logical table, or nil
// when the table has never been rebuilt.
func (s *Store) GetRefreshLog(ctx context.Context, name string) (*RefreshLog, error) {
	var entry RefreshLog
	err := s.db.WithContext(ctx).Where("table_name = ?", name).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load refresh log for %s: %w", name, err)
	}
	return &entry, nil
}
