package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/TosDaBoss/playintel/internal/config"
	"github.com/TosDaBoss/playintel/internal/fetch"
	"github.com/TosDaBoss/playintel/internal/logging"
	"github.com/TosDaBoss/playintel/internal/notify"
	"github.com/TosDaBoss/playintel/internal/pipeline"
	"github.com/TosDaBoss/playintel/internal/steamspy"
	"github.com/TosDaBoss/playintel/internal/steamstore"
	"github.com/TosDaBoss/playintel/internal/store"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

	// Stage selectors; none set means a full run.
	runDiscover  = flag.Bool("discover", false, "Run only the discovery stage")
	runEnrich    = flag.Bool("enrich", false, "Run only the enrichment stage")
	runRefresh   = flag.Bool("refresh", false, "Run only the refresh stage")
	runPrune     = flag.Bool("prune", false, "Run only the prune stage")
	runAnalytics = flag.Bool("analytics", false, "Run only the analytics rebuild")

	cleanupColumns = flag.Bool("cleanup-columns", false, "Report (or drop) low-coverage metric columns")
	execute        = flag.Bool("execute", false, "Actually drop columns instead of the default dry run")

	// Per-run cap overrides, -1 keeps the configured value.
	maxNew     = flag.Int("max-new", -1, "Override the new-app cap for this run")
	maxEnrich  = flag.Int("max-enrich", -1, "Override the enrichment cap for this run")
	maxRefresh = flag.Int("max-refresh", -1, "Override the refresh cap for this run")
	maxPages   = flag.Int("max-pages", -1, "Override the discovery page cap for this run")
	staleDays  = flag.Int("stale-days", -1, "Override the refresh staleness threshold in days")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	st, err := store.Connect(cfg.Database.URL)
	if err != nil {
		logger.Fatalw("Failed to connect to database", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping")
		cancel()
	}()

	if *cleanupColumns {
		result, err := st.CleanupLowCoverageColumns(ctx, *execute, logger)
		if err != nil {
			logger.Fatalw("Column cleanup failed", "error", err)
		}
		logger.Infow("Column cleanup finished",
			"candidates", len(result.Candidates),
			"dropped", len(result.Dropped),
			"failed", len(result.Failed))
		return
	}

	spyClient := steamspy.NewClient(
		cfg.SteamSpy.BaseURL,
		cfg.SteamSpy.PageDelay,
		cfg.SteamSpy.AppDelay,
		cfg.SteamSpy.Timeout,
	)
	storeClient := steamstore.NewClient(
		cfg.SteamAPI.BaseURL,
		cfg.SteamAPI.Delay,
		cfg.SteamAPI.Timeout,
	)
	coordinator := fetch.NewCoordinator(spyClient, storeClient, cfg.Pipeline.Concurrency, logger)

	p := pipeline.New(cfg.Pipeline, st, spyClient, spyClient, coordinator, logger)

	if *runDiscover || *runEnrich || *runRefresh || *runPrune || *runAnalytics {
		runStages(ctx, p, logger)
		return
	}

	summary, err := p.Run(ctx)
	if err != nil {
		logger.Errorw("Run finished with errors", "error", err)
	}

	if cfg.Telegram.Enabled {
		notifier, err := notify.NewClient(
			cfg.Telegram.BotToken,
			cfg.Telegram.ChatID,
			cfg.Telegram.MaxRetries,
			cfg.Telegram.RetryDelayBase,
		)
		if err != nil {
			logger.Errorw("Failed to initialize Telegram client", "error", err)
		} else if err := notifier.SendSummary(summary); err != nil {
			logger.Errorw("Failed to send run summary", "error", err)
		}
	}

	if err != nil {
		os.Exit(1)
	}
}

func runStages(ctx context.Context, p *pipeline.Pipeline, logger *zap.SugaredLogger) {
	type stage struct {
		selected bool
		name     string
		run      func(context.Context) (int, error)
	}
	stages := []stage{
		{*runDiscover, "discover", p.Discover},
		{*runEnrich, "enrich", p.Enrich},
		{*runRefresh, "refresh", p.Refresh},
		{*runPrune, "prune", p.Prune},
		{*runAnalytics, "analytics", p.RebuildAnalytics},
	}

	failed := false
	for _, s := range stages {
		if !s.selected {
			continue
		}
		count, err := s.run(ctx)
		if err != nil {
			logger.Errorw("Stage failed", "stage", s.name, "error", err)
			failed = true
			continue
		}
		logger.Infow("Stage finished", "stage", s.name, "count", count)
	}
	if failed {
		os.Exit(1)
	}
}

func applyOverrides(cfg *config.Config) {
	if *maxNew >= 0 {
		cfg.Pipeline.MaxNewPerRun = *maxNew
	}
	if *maxEnrich >= 0 {
		cfg.Pipeline.MaxEnrichments = *maxEnrich
	}
	if *maxRefresh >= 0 {
		cfg.Pipeline.MaxRefreshes = *maxRefresh
	}
	if *maxPages >= 0 {
		cfg.Pipeline.MaxPages = *maxPages
	}
	if *staleDays >= 0 {
		cfg.Pipeline.RefreshOlderDays = *staleDays
	}
}
