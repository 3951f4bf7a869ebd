package store

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	s, err := Open(db)
	if err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return s
}

func TestUpsertDiscoveredIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	apps := []App{
		{AppID: 10, Name: "Counter-Strike"},
		{AppID: 20, Name: "Team Fortress Classic"},
	}
	if err := s.UpsertDiscovered(ctx, apps); err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}
	// Same batch again, one renamed.
	apps[1].Name = "Team Fortress"
	if err := s.UpsertDiscovered(ctx, apps); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	known, err := s.KnownAppIDs(ctx)
	if err != nil {
		t.Fatalf("KnownAppIDs failed: %v", err)
	}
	if len(known) != 2 {
		t.Fatalf("Expected 2 apps after repeated upsert, got %d", len(known))
	}

	var got App
	if err := s.db.First(&got, "appid = ?", 20).Error; err != nil {
		t.Fatalf("Failed to load app: %v", err)
	}
	if got.Name != "Team Fortress" {
		t.Errorf("Expected updated name, got %q", got.Name)
	}
}

func TestAppsNeedingEnrichmentOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []App{
		{AppID: 1, Name: "a", Owners: 0, CreatedAt: base.Add(2 * time.Hour)},
		{AppID: 2, Name: "b", Owners: 0, CreatedAt: base},
		{AppID: 3, Name: "c", Owners: 50000, CreatedAt: base.Add(time.Hour)},
		{AppID: 4, Name: "d", Owners: 0, CreatedAt: base.Add(time.Hour)},
	}
	if err := s.db.Create(&rows).Error; err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	ids, err := s.AppsNeedingEnrichment(ctx, 10)
	if err != nil {
		t.Fatalf("AppsNeedingEnrichment failed: %v", err)
	}
	want := []int64{2, 4, 1}
	if len(ids) != len(want) {
		t.Fatalf("Expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("Expected oldest-first order %v, got %v", want, ids)
		}
	}

	ids, err = s.AppsNeedingEnrichment(ctx, 2)
	if err != nil {
		t.Fatalf("AppsNeedingEnrichment failed: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("Expected limit to cap results at 2, got %d", len(ids))
	}
}

func TestAppsNeedingRefreshOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	old := time.Now().Add(-10 * 24 * time.Hour)
	rows := []App{
		{AppID: 1, Name: "small", Owners: 20000, UpdatedAt: old},
		{AppID: 2, Name: "big", Owners: 5000000, UpdatedAt: old},
		{AppID: 3, Name: "fresh", Owners: 100000, UpdatedAt: time.Now()},
		{AppID: 4, Name: "unenriched", Owners: 0, UpdatedAt: old},
	}
	if err := s.db.Create(&rows).Error; err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	cutoff := time.Now().Add(-7 * 24 * time.Hour)
	ids, err := s.AppsNeedingRefresh(ctx, cutoff, 10)
	if err != nil {
		t.Fatalf("AppsNeedingRefresh failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 1 {
		t.Errorf("Expected [2 1] (owners descending, stale only), got %v", ids)
	}
}

func TestUpdateAppPartialWriteback(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	score := int64(88)
	seed := App{
		AppID: 10, Name: "Counter-Strike", Owners: 1000000,
		Recommendations: 5000, MetacriticScore: &score, PlatformWindows: true,
	}
	if err := s.db.Create(&seed).Error; err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	update := App{AppID: 10, Name: "Counter-Strike", Owners: 2000000}
	if err := s.UpdateApp(ctx, update, false); err != nil {
		t.Fatalf("UpdateApp failed: %v", err)
	}

	var got App
	if err := s.db.First(&got, "appid = ?", 10).Error; err != nil {
		t.Fatalf("Failed to load app: %v", err)
	}
	if got.Owners != 2000000 {
		t.Errorf("Primary column not updated: owners = %d", got.Owners)
	}
	if got.Recommendations != 5000 || got.MetacriticScore == nil || !got.PlatformWindows {
		t.Errorf("Primary-only update must not clobber secondary columns: %+v", got)
	}

	update.Recommendations = 9000
	update.MetacriticScore = nil
	if err := s.UpdateApp(ctx, update, true); err != nil {
		t.Fatalf("UpdateApp failed: %v", err)
	}
	if err := s.db.First(&got, "appid = ?", 10).Error; err != nil {
		t.Fatalf("Failed to load app: %v", err)
	}
	if got.Recommendations != 9000 {
		t.Errorf("Secondary column not updated: recommendations = %d", got.Recommendations)
	}
	if got.MetacriticScore != nil {
		t.Errorf("Expected metacritic score cleared, got %d", *got.MetacriticScore)
	}
}

func TestDeleteAppsRemovesBothTables(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.db.Create(&App{AppID: 10, Name: "gone", Owners: 50000}).Error; err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if err := s.db.Create(&App{AppID: 20, Name: "stays", Owners: 50000}).Error; err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	metrics := []GameMetric{{AppID: 10, Name: "gone"}, {AppID: 20, Name: "stays"}}
	if err := s.db.Create(&metrics).Error; err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	if err := s.DeleteApps(ctx, []int64{10}); err != nil {
		t.Fatalf("DeleteApps failed: %v", err)
	}

	var appCount, metricCount int64
	s.db.Model(&App{}).Count(&appCount)
	s.db.Model(&GameMetric{}).Count(&metricCount)
	if appCount != 1 || metricCount != 1 {
		t.Errorf("Expected 1 row left in each table, got apps=%d metrics=%d", appCount, metricCount)
	}

	var left App
	if err := s.db.First(&left).Error; err != nil || left.AppID != 20 {
		t.Errorf("Wrong survivor: %+v (err %v)", left, err)
	}
}

func TestCatalogSnapshotSkipsUnenriched(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rows := []App{
		{AppID: 1, Name: "enriched", Owners: 35000},
		{AppID: 2, Name: "bare"},
	}
	if err := s.db.Create(&rows).Error; err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	apps, err := s.CatalogSnapshot(ctx)
	if err != nil {
		t.Fatalf("CatalogSnapshot failed: %v", err)
	}
	if len(apps) != 1 || apps[0].AppID != 1 {
		t.Errorf("Expected only enriched rows, got %+v", apps)
	}
}

func TestReplaceMetrics(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first := []GameMetric{{AppID: 1, Name: "old a"}, {AppID: 2, Name: "old b"}}
	if err := s.ReplaceMetrics(ctx, first); err != nil {
		t.Fatalf("First replace failed: %v", err)
	}

	second := []GameMetric{
		{AppID: 2, Name: "new b", PriceUSD: 19.99, PriceCategory: "Medium ($10-$20)"},
		{AppID: 3, Name: "new c"},
	}
	if err := s.ReplaceMetrics(ctx, second); err != nil {
		t.Fatalf("Second replace failed: %v", err)
	}

	got, err := s.MetricsSnapshot(ctx)
	if err != nil {
		t.Fatalf("MetricsSnapshot failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected full replacement with 2 rows, got %d", len(got))
	}
	if got[0].AppID != 2 || got[0].Name != "new b" || got[1].AppID != 3 {
		t.Errorf("Unexpected snapshot content: %+v", got)
	}
}

func TestReplaceAggregatesPerFamily(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	tags := []AggregateStat{{Family: "tag", GroupKey: "Action", GameCount: 12}}
	genres := []AggregateStat{{Family: "genre", GroupKey: "Indie", GameCount: 30}}
	if err := s.ReplaceAggregates(ctx, "tag", tags); err != nil {
		t.Fatalf("Replace tag failed: %v", err)
	}
	if err := s.ReplaceAggregates(ctx, "genre", genres); err != nil {
		t.Fatalf("Replace genre failed: %v", err)
	}

	// Rebuilding one family leaves the other alone.
	if err := s.ReplaceAggregates(ctx, "tag", []AggregateStat{
		{Family: "tag", GroupKey: "RPG", GameCount: 15},
		{Family: "tag", GroupKey: "Strategy", GameCount: 11},
	}); err != nil {
		t.Fatalf("Rebuild tag failed: %v", err)
	}

	tagRows, err := s.Aggregates(ctx, "tag")
	if err != nil {
		t.Fatalf("Aggregates failed: %v", err)
	}
	if len(tagRows) != 2 {
		t.Errorf("Expected 2 tag rows after rebuild, got %d", len(tagRows))
	}
	genreRows, err := s.Aggregates(ctx, "genre")
	if err != nil {
		t.Fatalf("Aggregates failed: %v", err)
	}
	if len(genreRows) != 1 || genreRows[0].GroupKey != "Indie" {
		t.Errorf("Genre family should be untouched, got %+v", genreRows)
	}
}

func TestUpsertRefreshLog(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.UpsertRefreshLog(ctx, "fact_game_metrics", 100, 2*time.Second); err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}
	if err := s.UpsertRefreshLog(ctx, "fact_game_metrics", 150, 3*time.Second); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	entry, err := s.GetRefreshLog(ctx, "fact_game_metrics")
	if err != nil {
		t.Fatalf("GetRefreshLog failed: %v", err)
	}
	if entry == nil {
		t.Fatal("Expected refresh log entry")
	}
	if entry.RowCount != 150 || entry.RefreshDurationSeconds != 3 {
		t.Errorf("Expected latest values, got %+v", entry)
	}

	missing, err := s.GetRefreshLog(ctx, "agg_tag_stats")
	if err != nil {
		t.Fatalf("GetRefreshLog failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for unknown table, got %+v", missing)
	}
}

func TestDropCandidates(t *testing.T) {
	existing := []string{"appid", "name", "metacritic_score", "dlc_count", "price_usd"}
	got := dropCandidates(existing)
	if len(got) != 2 || got[0] != "metacritic_score" || got[1] != "dlc_count" {
		t.Errorf("Unexpected candidates: %v", got)
	}

	if got := dropCandidates([]string{"appid", "name"}); len(got) != 0 {
		t.Errorf("Expected no candidates, got %v", got)
	}
}
