package port

import (
	"context"
	"time"

	"listing-ingest-service/internal/core/domain"

	"github.com/google/uuid"
)

// PropertyStoragePort is the persistence contract of the pipeline.
type PropertyStoragePort interface {
	// FindByExternalID returns the stored row for (externalID, source)
	// or nil when absent.
	FindByExternalID(ctx context.Context, externalID, source string) (*domain.ExistingProperty, error)

	// FindCandidates returns potential duplicates for the fuzzy and
	// geo tiers: rows in the same city/district plus rows whose
	// geohash shares the candidate's prefix.
	FindCandidates(ctx context.Context, l domain.NormalizedListing) ([]domain.ExistingProperty, error)

	// UpsertBatch persists resolved listings in one transaction with
	// per-record savepoints, so a bad record fails alone.
	UpsertBatch(ctx context.Context, records []domain.ResolvedListing) (domain.BatchResult, error)

	// EnsureSystemUser creates the reserved scraper account if missing
	// and returns its id.
	EnsureSystemUser(ctx context.Context) (uuid.UUID, error)

	// CleanupStale deletes rows of the source not seen since cutoff.
	CleanupStale(ctx context.Context, source string, cutoff time.Time) (int, error)
}

// EnrichmentStoragePort is the contract of the multilingual worker.
type EnrichmentStoragePort interface {
	// ClaimUntranslated returns up to limit rows missing localized
	// fields, oldest first.
	ClaimUntranslated(ctx context.Context, limit int) ([]domain.UntranslatedProperty, error)

	// WriteBackTranslations applies the set only if the row is
	// unchanged since the claim; returns ErrEnrichmentConflict
	// otherwise.
	WriteBackTranslations(ctx context.Context, id uuid.UUID, seenUpdatedAt time.Time, set domain.TranslationSet) error
}
