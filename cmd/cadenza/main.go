// Command cadenza runs the enrichment engine: it loads pending catalog
// entities, resolves them against external providers, and persists the
// outcomes. With --watch it keeps running and picks up new work and config
// changes; without it a single batch is processed and the process exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lumehart/cadenza/internal/breaker"
	"github.com/lumehart/cadenza/internal/config"
	"github.com/lumehart/cadenza/internal/database"
	"github.com/lumehart/cadenza/internal/event"
	"github.com/lumehart/cadenza/internal/library"
	"github.com/lumehart/cadenza/internal/logging"
	"github.com/lumehart/cadenza/internal/provider"
	"github.com/lumehart/cadenza/internal/provider/deezer"
	"github.com/lumehart/cadenza/internal/provider/fanarttv"
	"github.com/lumehart/cadenza/internal/provider/musicbrainz"
	"github.com/lumehart/cadenza/internal/resolve"
	"github.com/lumehart/cadenza/internal/upkeep"
	"github.com/lumehart/cadenza/internal/version"
	"github.com/lumehart/cadenza/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		watchMode    = flag.Bool("watch", false, "keep running and process new work periodically")
		pollInterval = flag.Duration("interval", 5*time.Minute, "how often to look for pending entities in watch mode")
	)
	flag.Parse()

	configPath := os.Getenv("CADENZA_CONFIG_PATH")
	if configPath == "" {
		configPath = "/data/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logManager, logger := logging.NewManager(cfg.Logging)
	defer logManager.Close() //nolint:errcheck
	slog.SetDefault(logger)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database ready", slog.String("path", cfg.Database.Path))

	catalog := library.NewService(db)

	// Event bus carries resolution lifecycle events; the audit listener
	// writes every one to the log.
	eventBus := event.NewBus(logger, 256)
	eventBus.SubscribeAll(event.AuditLogger(logger))
	go eventBus.Start()
	defer eventBus.Stop()

	// Provider infrastructure: adapters, pacing, circuits.
	registry := provider.NewRegistry()
	registry.Register(musicbrainz.New(logger))
	registry.Register(deezer.New(logger))
	registry.Register(fanarttv.New(cfg.Providers.FanartTVAPIKey, logger))

	limiter := provider.NewRateLimiterMap(cfg.Enrichment.InterCallDelay())
	breakers := breaker.NewRegistry(cfg.Enrichment.CircuitFailureThreshold, cfg.Enrichment.CircuitCooldown())
	breakers.OnOpen(func(name breaker.Name) {
		logger.Warn("circuit opened", slog.String("provider", string(name)))
		eventBus.Publish(event.Event{
			Type: event.CircuitOpened,
			Data: map[string]any{"provider": string(name)},
		})
	})

	images := resolve.NewImageRegistry(registry, limiter, breakers, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Hot reload: logging changes apply immediately; engine settings are
	// picked up on the next batch.
	engineCfg := newConfigHolder(cfg)
	if *watchMode {
		configWatcher := watcher.NewService(configPath, eventBus, logger,
			func(next *config.Config) {
				logManager.Reconfigure(next.Logging)
				engineCfg.set(next)
			})
		go configWatcher.Start(ctx)

		// Long-running deployments also get periodic database upkeep.
		maintenance := upkeep.NewService(db, cfg.Database.Path, upkeep.Options{
			SnapshotDir: cfg.Maintenance.BackupDir,
			Retention:   cfg.Maintenance.BackupRetention,
			MaxAgeDays:  cfg.Maintenance.BackupMaxAgeDays,
		}, logger)
		snapshotEvery := time.Duration(0)
		if cfg.Maintenance.BackupEnabled {
			snapshotEvery = cfg.Maintenance.BackupInterval()
		}
		go maintenance.Run(ctx, cfg.Maintenance.OptimizeInterval(), snapshotEvery)
	}

	logger.Info("starting cadenza",
		slog.String("version", version.Version),
		slog.Bool("watch", *watchMode))

	runOnce := func() error {
		// Thresholds may have changed on reload; the cascade is rebuilt per
		// batch while circuits and rate limiters keep their state.
		current := engineCfg.get()
		cascade := resolve.NewCascade(registry, limiter, breakers, current.Enrichment.Thresholds(), logger)
		orchestrator := resolve.NewOrchestrator(cascade, images, logger)
		stats, err := runBatch(ctx, catalog, orchestrator, eventBus, current, logger)
		if err != nil {
			return err
		}
		if stats != nil {
			eventBus.Publish(event.Event{
				Type: event.BatchCompleted,
				Data: map[string]any{
					"processed":         stats.Processed,
					"auto_applied":      stats.AutoApplied,
					"queued_for_review": stats.QueuedForReview,
					"unresolved":        stats.Unresolved,
					"errors":            stats.Errors,
					"images_found":      stats.ImagesFound,
				},
			})
		}
		return nil
	}

	if err := runOnce(); err != nil {
		return err
	}
	if !*watchMode {
		return nil
	}

	ticker := time.NewTicker(*pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down", slog.Any("circuits", breakers.Snapshot()))
			return nil
		case <-ticker.C:
			if err := runOnce(); err != nil {
				logger.Error("batch run failed", "error", err)
			}
		}
	}
}

// runBatch loads one batch of pending entities and resolves them. An empty
// pool returns nil stats without touching any provider.
func runBatch(ctx context.Context, catalog *library.Service, orchestrator *resolve.Orchestrator, eventBus *event.Bus, cfg *config.Config, logger *slog.Logger) (*resolve.BatchStats, error) {
	pending, err := catalog.ListPending(ctx, cfg.Enrichment.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("listing pending entities: %w", err)
	}
	if len(pending) == 0 {
		logger.Debug("no pending entities")
		return nil, nil
	}

	logger.Info("processing batch", slog.Int("entities", len(pending)))

	opts := resolve.Options{
		MaxConcurrency:   cfg.Enrichment.MaxConcurrency,
		MetadataPriority: cfg.Enrichment.ProviderPriorityMeta,
		ImagePriority:    cfg.Enrichment.ProviderPriorityImages,
	}

	apply := func(entityID string, outcome resolve.Outcome) error {
		if err := catalog.ApplyOutcome(ctx, entityID, outcome); err != nil {
			return err
		}
		switch outcome.Status {
		case resolve.StatusResolved:
			eventBus.Publish(event.Event{
				Type: event.EntityResolved,
				Data: outcomeData(entityID, outcome),
			})
		case resolve.StatusCandidate:
			eventBus.Publish(event.Event{
				Type: event.ReviewNeeded,
				Data: outcomeData(entityID, outcome),
			})
		case resolve.StatusUnresolved, resolve.StatusError:
			eventBus.Publish(event.Event{
				Type: event.EntityUnresolved,
				Data: map[string]any{"entity_id": entityID, "status": string(outcome.Status)},
			})
		}
		return nil
	}

	return orchestrator.RunBatch(ctx, pending, opts, apply)
}

func outcomeData(entityID string, outcome resolve.Outcome) map[string]any {
	data := map[string]any{"entity_id": entityID}
	if outcome.Best != nil {
		data["provider"] = string(outcome.Best.Provider)
		data["confidence"] = outcome.Best.Confidence
		data["name"] = outcome.Best.Record.Name
	}
	return data
}
