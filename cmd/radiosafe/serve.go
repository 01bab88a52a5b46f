package main

import (
	"context"
	"time"

	"github.com/Nephrolytics-ai/radiosafe/pkg/config"
	"github.com/Nephrolytics-ai/radiosafe/pkg/ingest"
	"github.com/Nephrolytics-ai/radiosafe/pkg/logging"
	"github.com/Nephrolytics-ai/radiosafe/pkg/metrics"
	"github.com/Nephrolytics-ai/radiosafe/pkg/providers"
	"github.com/Nephrolytics-ai/radiosafe/pkg/server"
	"github.com/Nephrolytics-ai/radiosafe/pkg/session"
)

const shutdownTimeout = 10 * time.Second

func serve(ctx context.Context, cfg *config.Config, set *providers.Set) error {
	log := logging.NewLogger(ctx)
	log.Infof("providers: analysis=%s chat=%s speech=%s", set.Names.Analysis, set.Names.Chat, set.Names.Speech)

	appMetrics := metrics.NewMetrics()
	manager := session.NewManager(session.ManagerConfig{
		MaxSessions:    cfg.MaxSessions,
		SessionTimeout: cfg.SessionTimeout,
	}, session.Options{
		Providers:       set,
		Store:           openStore(ctx, cfg),
		Metrics:         appMetrics,
		AnalysisTimeout: cfg.AnalysisTimeout,
	})

	background, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	go manager.StartCleanupRoutine(background)

	if cfg.WatchDir != "" {
		watcher := ingest.NewWatcher(cfg.WatchDir, set.Analysis, logOutcome, ingest.WithTimeout(cfg.AnalysisTimeout))
		go func() {
			if err := watcher.Run(background); err != nil {
				log.Errorf("drop folder watcher stopped: %v", err)
			}
		}()
	}

	srv := server.NewServer(cfg, manager, appMetrics)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case err := <-errCh:
		manager.Shutdown(context.Background())
		return err
	case <-ctx.Done():
		log.Infof("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("error stopping server: %v", err)
	}
	log.Infof("server stopped")
	return nil
}

// openStore uses Redis when configured and reachable, memory otherwise.
func openStore(ctx context.Context, cfg *config.Config) session.Store {
	log := logging.NewLogger(ctx)
	if cfg.RedisURL == "" {
		log.Infof("REDIS_URL not set, keeping sessions in memory")
		return session.NewMemoryStore()
	}

	store, err := session.NewRedisStore(ctx, cfg.RedisURL, cfg.RedisPassword, cfg.SessionTimeout)
	if err != nil {
		log.Warnf("redis unavailable (%v), keeping sessions in memory", err)
		return session.NewMemoryStore()
	}
	log.Infof("sessions persisted to redis at %s", cfg.RedisURL)
	return store
}

func logOutcome(ctx context.Context, outcome ingest.Outcome) {
	log := logging.NewLogger(ctx).WithField("file", outcome.Path)
	if outcome.Err != nil {
		log.Errorf("analysis failed: %v", outcome.Err)
		return
	}
	log.Infof("rated %s (%s), %d flagged", outcome.Report.Badge, outcome.Report.ConfidenceLabel, outcome.Report.FlaggedCount)
}
