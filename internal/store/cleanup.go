package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Columns of fact_game_metrics with under 20% data coverage in practice.
// They are candidates for removal once a deployment decides it no longer
// wants to carry them.
var lowCoverageColumns = []string{
	"is_free",
	"has_discount",
	"discount_percentage",
	"avg_hours_2weeks",
	"median_hours_2weeks",
	"score_rank",
	"recommendations",
	"metacritic_score",
	"platform_windows",
	"platform_mac",
	"platform_linux",
	"dlc_count",
	"achievement_count",
	"language_count",
	"required_age",
}

// dropCandidates returns the low-coverage columns that actually exist in
// the current schema, preserving the canonical order.
func dropCandidates(existing []string) []string {
	present := make(map[string]bool, len(existing))
	for _, col := range existing {
		present[col] = true
	}
	var out []string
	for _, col := range lowCoverageColumns {
		if present[col] {
			out = append(out, col)
		}
	}
	return out
}

// CleanupResult reports what a cleanup pass did (or would do in dry-run).
type CleanupResult struct {
	Candidates []string
	Dropped    []string
	Failed     []string
}

// CleanupLowCoverageColumns drops the known low-coverage columns from the
// metric table. In dry-run mode it only reports the candidates. Each DROP
// failure is logged and skipped so one stuck column never blocks the rest.
func (s *Store) CleanupLowCoverageColumns(ctx context.Context, execute bool, logger *zap.SugaredLogger) (*CleanupResult, error) {
	var existing []string
	err := s.db.WithContext(ctx).Raw(
		`SELECT column_name FROM information_schema.columns
		 WHERE table_name = ? ORDER BY ordinal_position`,
		GameMetric{}.TableName(),
	).Scan(&existing).Error
	if err != nil {
		return nil, fmt.Errorf("failed to inspect metric table schema: %w", err)
	}

	result := &CleanupResult{Candidates: dropCandidates(existing)}
	if len(result.Candidates) == 0 {
		logger.Info("No low-coverage columns present")
		return result, nil
	}

	if !execute {
		logger.Infow("Dry run, no columns dropped", "candidates", result.Candidates)
		return result, nil
	}

	for _, col := range result.Candidates {
		stmt := fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s", GameMetric{}.TableName(), col)
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			logger.Warnw("Failed to drop column", "column", col, "error", err)
			result.Failed = append(result.Failed, col)
			continue
		}
		logger.Infow("Dropped column", "column", col)
		result.Dropped = append(result.Dropped, col)
	}
	return result, nil
}
