package internal

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fluent/fluent-logger-golang/fluent"
	"github.com/jackc/pgx/v5/pgxpool"

	"listing-ingest-service/internal/adapters/myhomefetcher"
	postgres_adapter "listing-ingest-service/internal/adapters/postgres"
	"listing-ingest-service/internal/configs"
	"listing-ingest-service/internal/contextkeys"
	"listing-ingest-service/internal/core/domain"
	"listing-ingest-service/internal/core/port"
	"listing-ingest-service/internal/core/usecase"
)

// Worker is the composition root of the multilingual enrichment
// worker. It runs enrichment cycles on a ticker until stopped.
type Worker struct {
	config       *configs.AppConfig
	dbPool       *pgxpool.Pool
	fluentClient *fluent.Fluent
	logger       port.LoggerPort

	cycle    *usecase.EnrichmentCycle
	interval time.Duration
}

func NewWorker() (*Worker, error) {
	appConfig, err := configs.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading worker configuration: %w", err)
	}
	appConfig.AppName = appConfig.AppName + "-enrichment"

	baseLogger, fluentClient, err := buildLogger(appConfig)
	if err != nil {
		return nil, err
	}
	workerLogger := baseLogger.WithFields(port.Fields{"component": "enrichment_worker"})

	dbPool, err := postgres_adapter.NewClient(context.Background(), appConfig.Database.URL)
	if err != nil {
		workerLogger.Error("Failed to connect to PostgreSQL", err, nil)
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	storage := postgres_adapter.NewPostgresStorageAdapter(dbPool, appConfig.Dedup, appConfig.Persistence)

	translator, err := myhomefetcher.NewMyhomeFetcherAdapter(appConfig.Fetcher, domain.NewRunContext(time.Now().UTC()))
	if err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("failed to initialize translation fetcher: %w", err)
	}

	cycle := usecase.NewEnrichmentCycle(
		storage, translator,
		appConfig.Enrichment.Locales,
		appConfig.Enrichment.BatchLimit,
	)

	return &Worker{
		config:       appConfig,
		dbPool:       dbPool,
		fluentClient: fluentClient,
		logger:       workerLogger,
		cycle:        cycle,
		interval:     time.Duration(appConfig.Enrichment.IntervalSeconds) * time.Second,
	}, nil
}

// Run executes cycles until SIGINT/SIGTERM. The first cycle starts
// immediately; the rest follow the ticker.
func (w *Worker) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = contextkeys.ContextWithLogger(ctx, w.logger)

	defer func() {
		if w.dbPool != nil {
			w.dbPool.Close()
		}
		w.logger.Info("Enrichment worker shut down gracefully", nil)
		if w.fluentClient != nil {
			_ = w.fluentClient.Close()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		sig := <-sigCh
		w.logger.Warn("Received signal, stopping", port.Fields{"signal": sig.String()})
		cancel()
	}()

	w.logger.Info("Enrichment worker started", port.Fields{
		"interval_s": w.interval.Seconds(),
		"locales":    w.config.Enrichment.Locales,
	})

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.cycle.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("Enrichment cycle failed", err, nil)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
}
