// Package fetch coordinates detail collection across the two upstream
// sources. It runs a bounded pool of workers over a batch of app ids,
// pulling the primary record for every id and the secondary record only for
// ids the caller marks high priority.
//
// One bad id never sinks a batch: failures and absent apps are logged and
// skipped, and the batch result carries whatever succeeded.
package fetch

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/TosDaBoss/playintel/internal/steamspy"
	"github.com/TosDaBoss/playintel/internal/steamstore"
)

// PrimarySource yields the base per-app record. Absence is (nil, nil).
type PrimarySource interface {
	AppDetails(ctx context.Context, appid int64) (*steamspy.Details, error)
}

// SecondarySource yields the supplementary storefront record. Absence is
// (nil, nil).
type SecondarySource interface {
	AppDetails(ctx context.Context, appid int64) (*steamstore.Details, error)
}

// Record is one fully collected app: the primary record, plus the secondary
// record when the id was high priority and the storefront had data for it.
type Record struct {
	Primary      *steamspy.Details
	Secondary    *steamstore.Details
	HasSecondary bool
}

// Coordinator fans a batch of ids out across a bounded worker pool.
type Coordinator struct {
	primary   PrimarySource
	secondary SecondarySource
	sem       *semaphore.Weighted
	logger    *zap.SugaredLogger
}

// NewCoordinator creates a coordinator running at most concurrency
// simultaneous fetches.
func NewCoordinator(primary PrimarySource, secondary SecondarySource, concurrency int, logger *zap.SugaredLogger) *Coordinator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Coordinator{
		primary:   primary,
		secondary: secondary,
		sem:       semaphore.NewWeighted(int64(concurrency)),
		logger:    logger,
	}
}

// FetchBatch collects records for ids. Ids present in highPriority also get
// a secondary lookup. Ids whose primary record is absent or whose fetch
// failed are omitted from the result; the returned slice preserves no
// particular order. FetchBatch returns early only on context cancellation.
func (c *Coordinator) FetchBatch(ctx context.Context, ids []int64, highPriority map[int64]bool) ([]Record, error) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		records []Record
	)

	for _, id := range ids {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return records, err
		}

		wg.Add(1)
		go func(appid int64) {
			defer wg.Done()
			defer c.sem.Release(1)

			rec, ok := c.fetchOne(ctx, appid, highPriority[appid])
			if !ok {
				return
			}

			mu.Lock()
			records = append(records, rec)
			mu.Unlock()
		}(id)
	}

	wg.Wait()
	return records, ctx.Err()
}

func (c *Coordinator) fetchOne(ctx context.Context, appid int64, highPriority bool) (Record, bool) {
	primary, err := c.primary.AppDetails(ctx, appid)
	if err != nil {
		c.logger.Warnw("Primary fetch failed", "appid", appid, "error", err)
		return Record{}, false
	}
	if primary == nil {
		c.logger.Debugw("No primary data for app", "appid", appid)
		return Record{}, false
	}

	rec := Record{Primary: primary}
	if !highPriority {
		return rec, true
	}

	secondary, err := c.secondary.AppDetails(ctx, appid)
	if err != nil {
		c.logger.Warnw("Secondary fetch failed, keeping primary record", "appid", appid, "error", err)
		return rec, true
	}
	if secondary == nil {
		c.logger.Debugw("No secondary data for app", "appid", appid)
		return rec, true
	}

	rec.Secondary = secondary
	rec.HasSecondary = true
	return rec, true
}
