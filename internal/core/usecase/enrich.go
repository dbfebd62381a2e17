package usecase

import (
	"context"
	"errors"
	"fmt"

	"listing-ingest-service/internal/contextkeys"
	"listing-ingest-service/internal/core/domain"
	"listing-ingest-service/internal/core/port"
)

// EnrichmentCycle claims untranslated rows, fetches their localized
// fields from the source and writes them back under an optimistic
// guard. A row that changed mid-cycle is requeued, not failed.
type EnrichmentCycle struct {
	storage    port.EnrichmentStoragePort
	translator port.TranslationFetcherPort
	locales    []string
	limit      int
}

func NewEnrichmentCycle(storage port.EnrichmentStoragePort, translator port.TranslationFetcherPort, locales []string, limit int) *EnrichmentCycle {
	return &EnrichmentCycle{
		storage:    storage,
		translator: translator,
		locales:    locales,
		limit:      limit,
	}
}

// CycleStats summarizes one enrichment pass.
type CycleStats struct {
	Claimed   int
	Enriched  int
	Conflicts int
	Failed    int
}

func (e *EnrichmentCycle) RunCycle(ctx context.Context) (CycleStats, error) {
	logger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"use_case": "EnrichmentCycle",
	})

	var stats CycleStats

	claimed, err := e.storage.ClaimUntranslated(ctx, e.limit)
	if err != nil {
		return stats, fmt.Errorf("claim untranslated: %w", err)
	}
	stats.Claimed = len(claimed)
	if len(claimed) == 0 {
		return stats, nil
	}

	logger.Info("enrichment cycle started", port.Fields{"claimed": len(claimed)})

	for _, row := range claimed {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		set, err := e.fetchAll(ctx, row.ExternalID)
		if err != nil {
			stats.Failed++
			logger.Warn("translation fetch failed, row deferred", port.Fields{
				"external_id": row.ExternalID,
				"cause":       err.Error(),
			})
			continue
		}

		err = e.storage.WriteBackTranslations(ctx, row.ID, row.SeenUpdatedAt, set)
		switch {
		case errors.Is(err, domain.ErrEnrichmentConflict):
			// The ingester touched the row since the claim; next
			// cycle picks it up again.
			stats.Conflicts++
			logger.Debug("write-back rejected, row requeued", port.Fields{
				"external_id": row.ExternalID,
			})
		case err != nil:
			stats.Failed++
			logger.Error("translation write-back failed", err, port.Fields{
				"external_id": row.ExternalID,
			})
		default:
			stats.Enriched++
		}
	}

	logger.Info("enrichment cycle finished", port.Fields{
		"claimed":   stats.Claimed,
		"enriched":  stats.Enriched,
		"conflicts": stats.Conflicts,
		"failed":    stats.Failed,
	})
	return stats, nil
}

func (e *EnrichmentCycle) fetchAll(ctx context.Context, externalID string) (domain.TranslationSet, error) {
	set := make(domain.TranslationSet, len(e.locales))
	for _, locale := range e.locales {
		t, err := e.translator.FetchTranslation(ctx, externalID, locale)
		if err != nil {
			return nil, fmt.Errorf("locale %s: %w", locale, err)
		}
		set[locale] = t
	}
	return set, nil
}
