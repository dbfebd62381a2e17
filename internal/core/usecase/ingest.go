package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"listing-ingest-service/internal/configs"
	"listing-ingest-service/internal/constants"
	"listing-ingest-service/internal/contextkeys"
	"listing-ingest-service/internal/core/domain"
	"listing-ingest-service/internal/core/port"
)

// IngestPipeline runs one full ingestion pass: fetch, normalize,
// convert, deduplicate, persist, report.
type IngestPipeline struct {
	fetcher    port.ListingFetcherPort
	normalizer *Normalizer
	dedup      *Deduplicator
	converter  port.CurrencyConverterPort
	storage    port.PropertyStoragePort
	reporter   port.RunReporterPort

	concurrency int
	batchSize   int
	maxPages    int
	maxRecords  int
	cleanupDays int

	run *domain.RunContext
}

func NewIngestPipeline(
	fetcher port.ListingFetcherPort,
	normalizer *Normalizer,
	dedup *Deduplicator,
	converter port.CurrencyConverterPort,
	storage port.PropertyStoragePort,
	reporter port.RunReporterPort,
	run *domain.RunContext,
	fetcherCfg configs.FetcherConfig,
	persistCfg configs.PersistenceConfig,
) *IngestPipeline {
	return &IngestPipeline{
		run:         run,
		fetcher:     fetcher,
		normalizer:  normalizer,
		dedup:       dedup,
		converter:   converter,
		storage:     storage,
		reporter:    reporter,
		concurrency: fetcherCfg.Concurrency,
		batchSize:   persistCfg.BatchSize,
		maxPages:    fetcherCfg.MaxPages,
		maxRecords:  fetcherCfg.MaxRecords,
		cleanupDays: persistCfg.CleanupDays,
	}
}

// Run executes the pipeline until the feed is exhausted or the context
// is cancelled. The report is produced and delivered either way.
func (p *IngestPipeline) Run(ctx context.Context) (domain.RunReport, error) {
	logger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"use_case": "IngestRun",
		"source":   constants.Source,
	})
	ctx = contextkeys.ContextWithLogger(ctx, logger)

	logger.Info("ingestion run started", nil)

	if _, err := p.storage.EnsureSystemUser(ctx); err != nil {
		return domain.RunReport{}, fmt.Errorf("ensure system user: %w", err)
	}

	runErr := p.executeStages(ctx)

	if p.cleanupDays > 0 && runErr == nil {
		cutoff := time.Now().UTC().AddDate(0, 0, -p.cleanupDays)
		cleaned, err := p.storage.CleanupStale(ctx, constants.Source, cutoff)
		if err != nil {
			logger.Error("stale cleanup failed", err, nil)
		} else {
			p.run.Cleaned(cleaned)
		}
	}

	report := p.run.Snapshot(constants.Source, time.Now().UTC())

	if p.reporter != nil {
		if err := p.reporter.ReportRun(ctx, report); err != nil {
			// The run itself succeeded; a lost report is not worth
			// failing it for.
			logger.Error("run report delivery failed", err, nil)
		}
	}

	logger.Info("ingestion run finished", port.Fields{
		"pages":     report.PagesFetched,
		"raw":       report.RawSeen,
		"inserted":  report.Inserted,
		"updated":   report.Updated,
		"skipped":   report.SkippedDup,
		"invalid":   report.Invalid + report.UnmappedCode,
		"elapsed_s": report.ElapsedSec,
	})

	return report, runErr
}

func (p *IngestPipeline) executeStages(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	rawCh := make(chan domain.RawListing, p.batchSize)
	resolvedCh := make(chan domain.ResolvedListing, p.batchSize)

	g.Go(func() error {
		defer close(rawCh)
		return p.fetchStage(ctx, rawCh)
	})

	workers, ctxWorkers := errgroup.WithContext(ctx)
	for i := 0; i < p.concurrency; i++ {
		workers.Go(func() error {
			return p.processStage(ctxWorkers, rawCh, resolvedCh)
		})
	}
	g.Go(func() error {
		defer close(resolvedCh)
		return workers.Wait()
	})

	g.Go(func() error {
		return p.persistStage(ctx, resolvedCh)
	})

	return g.Wait()
}

// fetchStage walks the feed page by page; a failed page is counted
// and skipped, never fatal. The run is bounded in pages and records.
func (p *IngestPipeline) fetchStage(ctx context.Context, out chan<- domain.RawListing) error {
	logger := contextkeys.LoggerFromContext(ctx)

	cursor := port.PageCursor{Page: 1}
	pages := 0
	sent := 0
	for {
		if p.maxPages > 0 && pages >= p.maxPages {
			return nil
		}

		records, next, err := p.fetcher.FetchPage(ctx, cursor)
		if err != nil {
			if errors.Is(err, domain.ErrNoMorePages) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.run.PageFailed()
			logger.Warn("page fetch failed, skipping", port.Fields{
				"page":  cursor.Page,
				"cause": err.Error(),
			})
			if next == nil {
				return nil
			}
			cursor = *next
			pages++
			continue
		}

		p.run.PageFetched()
		p.run.RawSeen(len(records))
		pages++

		for _, r := range records {
			if p.maxRecords > 0 && sent >= p.maxRecords {
				logger.Info("record cap reached, stopping fetch", port.Fields{
					"max_records": p.maxRecords,
				})
				return nil
			}
			select {
			case out <- r:
				sent++
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if next == nil {
			return nil
		}
		cursor = *next
	}
}

func (p *IngestPipeline) processStage(ctx context.Context, in <-chan domain.RawListing, out chan<- domain.ResolvedListing) error {
	logger := contextkeys.LoggerFromContext(ctx)

	for raw := range in {
		normalized, err := p.normalizer.Normalize(raw)
		if err != nil {
			p.countRecordError(err)
			logger.Debug("record excluded", port.Fields{
				"external_id": raw.ExternalID,
				"cause":       err.Error(),
			})
			continue
		}
		p.run.Normalized(normalized)

		if normalized.Currency != "USD" {
			usd, err := p.converter.Convert(ctx, normalized.Price, normalized.Currency, "USD")
			if err != nil {
				// Conversion never excludes a record; the secondary
				// amount just stays empty.
				logger.Warn("price conversion unavailable", port.Fields{
					"external_id": normalized.ExternalID,
					"currency":    normalized.Currency,
				})
			} else {
				normalized.PriceUSD = &usd
			}
		} else {
			usd := normalized.Price
			normalized.PriceUSD = &usd
		}

		resolved, err := p.dedup.Resolve(ctx, normalized)
		if err != nil {
			return err
		}

		select {
		case out <- resolved:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// persistStage accumulates resolved listings into batches. The context
// is checked between batches, so cancellation never tears a batch.
func (p *IngestPipeline) persistStage(ctx context.Context, in <-chan domain.ResolvedListing) error {
	batch := make([]domain.ResolvedListing, 0, p.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		result, err := p.storage.UpsertBatch(ctx, batch)
		if err != nil {
			return fmt.Errorf("upsert batch of %d: %w", len(batch), err)
		}
		p.run.BatchDone(result)
		batch = batch[:0]
		return nil
	}

	for resolved := range in {
		if resolved.Decision.Kind == domain.DecisionSkip {
			p.run.BatchDone(domain.BatchResult{Skipped: 1})
			continue
		}
		batch = append(batch, resolved)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
	return flush()
}

func (p *IngestPipeline) countRecordError(err error) {
	var unmapped *domain.UnmappedCodeError
	if errors.As(err, &unmapped) {
		p.run.UnmappedCode()
		return
	}
	p.run.Invalid()
}
