// Package pipeline runs the catalog refresh stages: discovery of new apps,
// enrichment of bare rows, refresh of stale rows, pruning of delisted apps,
// and the analytics rebuild. Stages are independent; a failed stage is
// reported but never stops the ones after it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TosDaBoss/playintel/internal/analytics"
	"github.com/TosDaBoss/playintel/internal/config"
	"github.com/TosDaBoss/playintel/internal/fetch"
	"github.com/TosDaBoss/playintel/internal/steamspy"
	"github.com/TosDaBoss/playintel/internal/store"
)

// Lister pages through the bulk app listing.
type Lister interface {
	FetchPage(ctx context.Context, page int) ([]steamspy.AppEntry, error)
}

// Checker probes whether an app still exists upstream. Absence is (nil, nil).
type Checker interface {
	AppDetails(ctx context.Context, appid int64) (*steamspy.Details, error)
}

// Fetcher collects full records for a batch of ids.
type Fetcher interface {
	FetchBatch(ctx context.Context, ids []int64, highPriority map[int64]bool) ([]fetch.Record, error)
}

// Summary is what one run accomplished.
type Summary struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	Elapsed    time.Duration
	New        int
	Enriched   int
	Refreshed  int
	Removed    int
	MetricRows int
}

// Pipeline wires the stages to their sources and the store.
type Pipeline struct {
	cfg     config.PipelineConfig
	store   *store.Store
	lister  Lister
	checker Checker
	fetcher Fetcher
	logger  *zap.SugaredLogger
}

// New creates a pipeline.
func New(cfg config.PipelineConfig, st *store.Store, lister Lister, checker Checker, fetcher Fetcher, logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		store:   st,
		lister:  lister,
		checker: checker,
		fetcher: fetcher,
		logger:  logger,
	}
}

// Discover walks the bulk listing and inserts bare rows for unseen appids.
// It stops at the page cap, the new-app cap, or after three consecutive
// pages with nothing new. A page error ends paging but keeps what was
// already collected. Returns the number of new apps stored.
func (p *Pipeline) Discover(ctx context.Context) (int, error) {
	known, err := p.store.KnownAppIDs(ctx)
	if err != nil {
		return 0, err
	}
	p.logger.Infow("Starting discovery", "known_apps", len(known))

	var collected []store.App
	emptyStreak := 0

	for page := 0; page < p.cfg.MaxPages; page++ {
		entries, err := p.lister.FetchPage(ctx, page)
		if err != nil {
			p.logger.Warnw("Page fetch failed, stopping discovery", "page", page, "error", err)
			break
		}
		if len(entries) == 0 {
			p.logger.Infow("Reached end of listing", "page", page)
			break
		}

		newOnPage := 0
		for _, entry := range entries {
			if known[entry.AppID] {
				continue
			}
			known[entry.AppID] = true
			collected = append(collected, store.App{AppID: entry.AppID, Name: entry.Name})
			newOnPage++
			if len(collected) >= p.cfg.MaxNewPerRun {
				break
			}
		}
		p.logger.Debugw("Processed listing page", "page", page, "new", newOnPage)

		if len(collected) >= p.cfg.MaxNewPerRun {
			p.logger.Infow("Reached new-app cap", "cap", p.cfg.MaxNewPerRun)
			break
		}
		if newOnPage == 0 {
			emptyStreak++
			if emptyStreak >= 3 {
				p.logger.Info("Three pages with nothing new, stopping discovery")
				break
			}
		} else {
			emptyStreak = 0
		}
	}

	if err := p.store.UpsertDiscovered(ctx, collected); err != nil {
		return 0, err
	}
	p.logger.Infow("Discovery complete", "new_apps", len(collected))
	return len(collected), nil
}

// Enrich fills in apps that have never been fully fetched, oldest catalog
// entries first. Every enrichment consults both sources. Returns the number
// of apps updated.
func (p *Pipeline) Enrich(ctx context.Context) (int, error) {
	ids, err := p.store.AppsNeedingEnrichment(ctx, p.cfg.MaxEnrichments)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		p.logger.Info("No apps need enrichment")
		return 0, nil
	}
	p.logger.Infow("Starting enrichment", "apps", len(ids))

	highPriority := make(map[int64]bool, len(ids))
	for _, id := range ids {
		highPriority[id] = true
	}
	return p.fetchAndStore(ctx, ids, highPriority)
}

// Refresh re-fetches enriched apps whose data has gone stale, biggest games
// first. Only the top high-priority slice gets the second source. Returns
// the number of apps updated.
func (p *Pipeline) Refresh(ctx context.Context) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -p.cfg.RefreshOlderDays)
	ids, err := p.store.AppsNeedingRefresh(ctx, cutoff, p.cfg.MaxRefreshes)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		p.logger.Info("No apps need refresh")
		return 0, nil
	}

	highPriority := make(map[int64]bool, p.cfg.HighPriorityCount)
	for i, id := range ids {
		if i >= p.cfg.HighPriorityCount {
			break
		}
		highPriority[id] = true
	}
	p.logger.Infow("Starting refresh", "apps", len(ids), "high_priority", len(highPriority))

	return p.fetchAndStore(ctx, ids, highPriority)
}

func (p *Pipeline) fetchAndStore(ctx context.Context, ids []int64, highPriority map[int64]bool) (int, error) {
	records, err := p.fetcher.FetchBatch(ctx, ids, highPriority)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, rec := range records {
		app := appFromRecord(rec)
		if err := p.store.UpdateApp(ctx, app, rec.HasSecondary); err != nil {
			p.logger.Warnw("Write-back failed", "appid", app.AppID, "error", err)
			continue
		}
		updated++
	}
	p.logger.Infow("Stored fetched records", "requested", len(ids), "updated", updated)
	return updated, nil
}

// Prune checks the least recently updated apps against the primary source
// and removes the ones that have been delisted. A fetch error never removes
// an app; only a definite empty response does. Returns the number removed.
func (p *Pipeline) Prune(ctx context.Context) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -p.cfg.PruneOlderDays)
	candidates, err := p.store.StalenessCandidates(ctx, cutoff, p.cfg.PruneSampleSize)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		p.logger.Info("No stale apps to check")
		return 0, nil
	}
	p.logger.Infow("Checking stale apps for removal", "candidates", len(candidates))

	var toRemove []int64
	for _, id := range candidates {
		if len(toRemove) >= p.cfg.MaxRemovals {
			p.logger.Infow("Reached removal cap", "cap", p.cfg.MaxRemovals)
			break
		}
		details, err := p.checker.AppDetails(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return 0, err
			}
			// Ambiguous; never remove on an error.
			p.logger.Warnw("Existence check failed, keeping app", "appid", id, "error", err)
			continue
		}
		if details == nil {
			p.logger.Infow("App appears delisted", "appid", id)
			toRemove = append(toRemove, id)
		}
	}

	if err := p.store.DeleteApps(ctx, toRemove); err != nil {
		return 0, err
	}
	p.logger.Infow("Prune complete", "removed", len(toRemove))
	return len(toRemove), nil
}

// RebuildAnalytics recomputes the metric table and every aggregate family
// from the current catalog, logging each rebuild in the refresh log.
// Returns the number of metric rows produced.
func (p *Pipeline) RebuildAnalytics(ctx context.Context) (int, error) {
	start := time.Now()
	apps, err := p.store.CatalogSnapshot(ctx)
	if err != nil {
		return 0, err
	}

	metrics := analytics.DeriveMetrics(apps, time.Now().UTC())
	if err := p.store.ReplaceMetrics(ctx, metrics); err != nil {
		return 0, err
	}
	if err := p.store.UpsertRefreshLog(ctx, store.GameMetric{}.TableName(), int64(len(metrics)), time.Since(start)); err != nil {
		return 0, err
	}
	p.logger.Infow("Rebuilt metric table", "rows", len(metrics))

	snapshot, err := p.store.MetricsSnapshot(ctx)
	if err != nil {
		return len(metrics), err
	}
	for _, family := range analytics.Families {
		familyStart := time.Now()
		rows := analytics.BuildFamily(family, snapshot)
		if err := p.store.ReplaceAggregates(ctx, family, rows); err != nil {
			return len(metrics), err
		}
		table := analytics.FamilyTableName(family)
		if err := p.store.UpsertRefreshLog(ctx, table, int64(len(rows)), time.Since(familyStart)); err != nil {
			return len(metrics), err
		}
		p.logger.Infow("Rebuilt aggregate family", "family", family, "rows", len(rows))
	}

	if err := p.store.UpsertRefreshLog(ctx, "daily_refresh", 0, time.Since(start)); err != nil {
		return len(metrics), err
	}
	return len(metrics), nil
}

// Run executes every stage in order. A failed stage is logged and skipped;
// the rest still run. The returned error joins whatever went wrong.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
	}
	p.logger.Infow("Starting full run", "run_id", summary.RunID)

	var errs []error
	stageErr := func(stage string, err error) {
		p.logger.Errorw("Stage failed", "stage", stage, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", stage, err))
	}

	var err error
	if summary.New, err = p.Discover(ctx); err != nil {
		stageErr("discover", err)
	}
	if summary.Enriched, err = p.Enrich(ctx); err != nil {
		stageErr("enrich", err)
	}
	if summary.Refreshed, err = p.Refresh(ctx); err != nil {
		stageErr("refresh", err)
	}
	if summary.Removed, err = p.Prune(ctx); err != nil {
		stageErr("prune", err)
	}
	if summary.MetricRows, err = p.RebuildAnalytics(ctx); err != nil {
		stageErr("analytics", err)
	}

	summary.Elapsed = time.Since(summary.StartedAt)
	p.logger.Infow("Run complete",
		"run_id", summary.RunID,
		"new", summary.New,
		"enriched", summary.Enriched,
		"refreshed", summary.Refreshed,
		"removed", summary.Removed,
		"metric_rows", summary.MetricRows,
		"elapsed", summary.Elapsed)

	return summary, errors.Join(errs...)
}

func appFromRecord(rec fetch.Record) store.App {
	primary := rec.Primary
	app := store.App{
		AppID:             primary.AppID,
		Name:              primary.Name,
		Developer:         primary.Developer,
		Publisher:         primary.Publisher,
		Owners:            primary.Owners,
		AvgForeverMinutes: primary.AvgForeverMinutes,
		MedForeverMinutes: primary.MedForeverMinutes,
		Avg2WeeksMinutes:  primary.Avg2WeeksMinutes,
		Med2WeeksMinutes:  primary.Med2WeeksMinutes,
		Positive:          primary.Positive,
		Negative:          primary.Negative,
		CCU:               primary.CCU,
		PriceCents:        primary.PriceCents,
		InitialPriceCents: primary.InitialPriceCents,
		ScoreRank:         primary.ScoreRank,
		Genres:            primary.Genre,
		TopTags:           strings.Join(primary.TopTags, ", "),
	}
	if rec.HasSecondary {
		secondary := rec.Secondary
		app.Recommendations = secondary.Recommendations
		app.MetacriticScore = secondary.MetacriticScore
		app.PlatformWindows = secondary.PlatformWindows
		app.PlatformMac = secondary.PlatformMac
		app.PlatformLinux = secondary.PlatformLinux
		app.DLCCount = secondary.DLCCount
		app.AchievementCount = secondary.AchievementCount
		app.LanguageCount = secondary.LanguageCount
		app.RequiredAge = secondary.RequiredAge
	}
	return app
}
