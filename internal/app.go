package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fluent/fluent-logger-golang/fluent"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	logger_adapter "listing-ingest-service/internal/adapters/logger"
	"listing-ingest-service/internal/adapters/myhomefetcher"
	postgres_adapter "listing-ingest-service/internal/adapters/postgres"
	rabbitmq_adapter "listing-ingest-service/internal/adapters/rabbitmq"
	"listing-ingest-service/internal/adapters/rates"
	report_adapter "listing-ingest-service/internal/adapters/report"
	"listing-ingest-service/internal/adapters/rest"
	"listing-ingest-service/internal/configs"
	"listing-ingest-service/internal/contextkeys"
	"listing-ingest-service/internal/core/domain"
	"listing-ingest-service/internal/core/port"
	"listing-ingest-service/internal/core/usecase"
)

// App wires the ingestion pipeline together. This is the composition
// root: every dependency is created and connected here.
type App struct {
	config       *configs.AppConfig
	dbPool       *pgxpool.Pool
	fluentClient *fluent.Fluent
	logger       port.LoggerPort

	pipeline     *usecase.IngestPipeline
	ndjson       *report_adapter.NDJSONReporter
	reportCloser interface{ Close() error }
	restServer   *http.Server
}

func NewApp() (*App, error) {
	appConfig, err := configs.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading application configuration: %w", err)
	}

	baseLogger, fluentClient, err := buildLogger(appConfig)
	if err != nil {
		return nil, err
	}
	appLogger := baseLogger.WithFields(port.Fields{"component": "app"})
	appLogger.Info("Logger system initialized", port.Fields{
		"fluent_enabled": appConfig.FluentBit.Enabled,
	})

	dbPool, err := postgres_adapter.NewClient(context.Background(), appConfig.Database.URL)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", err, nil)
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	appLogger.Info("Successfully connected to PostgreSQL pool", nil)

	storage := postgres_adapter.NewPostgresStorageAdapter(dbPool, appConfig.Dedup, appConfig.Persistence)

	run := domain.NewRunContext(time.Now().UTC())

	fetcher, err := myhomefetcher.NewMyhomeFetcherAdapter(appConfig.Fetcher, run)
	if err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("failed to initialize myhome fetcher: %w", err)
	}
	appLogger.Info("MyHome Fetcher Adapter initialized", nil)

	rateSource := rates.NewNBGRateSource(
		appConfig.Converter.LiveURL,
		time.Duration(appConfig.Converter.CacheTTL)*time.Second,
	)
	converter := usecase.NewCurrencyConverter(rateSource, appConfig.Converter.FallbackGEL)

	ndjson := report_adapter.NewNDJSONReporter(appConfig.Report.Dir)
	reporters := []port.RunReporterPort{ndjson}

	var reportCloser interface{ Close() error }
	if appConfig.RabbitMQ.Enabled {
		publisher, err := rabbitmq_adapter.NewRunReportPublisher(appConfig.RabbitMQ.URL, appConfig.RabbitMQ.Exchange)
		if err != nil {
			appLogger.Error("Failed to initialize RabbitMQ report publisher", err, nil)
			dbPool.Close()
			return nil, err
		}
		reporters = append(reporters, publisher)
		reportCloser = publisher
		appLogger.Info("RabbitMQ report publisher initialized", nil)
	}

	normalizer := usecase.NewNormalizer()
	dedup := usecase.NewDeduplicator(storage, appConfig.Dedup)

	pipeline := usecase.NewIngestPipeline(
		fetcher, normalizer, dedup, converter, storage,
		report_adapter.NewMultiReporter(reporters...),
		run,
		appConfig.Fetcher, appConfig.Persistence,
	)
	appLogger.Info("All use cases initialized", nil)

	restServer := &http.Server{
		Addr:    appConfig.Rest.Addr,
		Handler: rest.NewRouter(ndjson),
	}

	return &App{
		config:       appConfig,
		dbPool:       dbPool,
		fluentClient: fluentClient,
		logger:       appLogger,
		pipeline:     pipeline,
		ndjson:       ndjson,
		reportCloser: reportCloser,
		restServer:   restServer,
	}, nil
}

// Run executes one ingestion pass, serving the operational endpoints
// for its duration. SIGINT/SIGTERM stop the pipeline at the next batch
// boundary.
func (a *App) Run() error {
	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	runID := uuid.NewString()
	appCtx = contextkeys.ContextWithRunID(appCtx, runID)
	appCtx = contextkeys.ContextWithLogger(appCtx, a.logger.WithFields(port.Fields{"run_id": runID}))

	var wg sync.WaitGroup

	defer func() {
		a.logger.Info("Shutdown sequence initiated...", nil)
		wg.Wait()

		if a.reportCloser != nil {
			if err := a.reportCloser.Close(); err != nil {
				a.logger.Error("Error closing report publisher", err, nil)
			}
		}
		if a.dbPool != nil {
			a.dbPool.Close()
			a.logger.Info("PostgreSQL pool closed", nil)
		}
		a.logger.Info("Application shut down gracefully", nil)

		if a.fluentClient != nil {
			_ = a.fluentClient.Close()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		sig := <-sigCh
		a.logger.Warn("Received signal, stopping", port.Fields{"signal": sig.String()})
		cancelApp()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.logger.Info("Operational HTTP server starting", port.Fields{"addr": a.restServer.Addr})
		if err := a.restServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Operational HTTP server stopped unexpectedly", err, nil)
		}
	}()

	_, runErr := a.pipeline.Run(appCtx)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := a.restServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Error shutting down HTTP server", err, nil)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// buildLogger assembles the stdout logger plus the optional Fluent Bit
// shipper behind one multilogger.
func buildLogger(cfg *configs.AppConfig) (port.LoggerPort, *fluent.Fluent, error) {
	var activeLoggers []port.LoggerPort

	stdoutLogger := logger_adapter.NewSlogAdapter(logger_adapter.SlogConfig{
		Level:    parseLogLevel(cfg.StdoutLogger.Level),
		UseColor: true,
	})
	activeLoggers = append(activeLoggers, stdoutLogger)

	var fluentClient *fluent.Fluent
	if cfg.FluentBit.Enabled {
		var err error
		fluentClient, err = fluent.New(fluent.Config{
			FluentHost: cfg.FluentBit.Host,
			FluentPort: cfg.FluentBit.Port,
			TagPrefix:  cfg.AppName,
			Async:      true,
		})
		if err != nil {
			stdoutLogger.Error("Failed to create fluentbit client", err, nil)
			return nil, nil, fmt.Errorf("failed to create fluentbit client: %w", err)
		}

		fluentAdapter, err := logger_adapter.NewFluentLoggerAdapter(fluentClient, parseLogLevel(cfg.FluentBit.Level))
		if err != nil {
			fluentClient.Close()
			return nil, nil, err
		}
		activeLoggers = append(activeLoggers, fluentAdapter)
	}

	multiLogger, err := logger_adapter.NewMultiloggerAdapter(activeLoggers...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create multi-logger: %w", err)
	}

	return multiLogger.WithFields(port.Fields{"service_name": cfg.AppName}), fluentClient, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
