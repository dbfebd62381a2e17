package port

import (
	"context"
	"listing-ingest-service/internal/core/domain"
)

// PageCursor points at the next page of the statements feed. A nil
// cursor from FetchPage means the feed is exhausted.
type PageCursor struct {
	Page int
}

// ListingFetcherPort covers everything the pipeline needs from the
// source API.
type ListingFetcherPort interface {
	// FetchPage retrieves one page of raw listings. Retries and rate
	// limiting happen behind this call.
	FetchPage(ctx context.Context, cursor PageCursor) (records []domain.RawListing, next *PageCursor, err error)
}

// TranslationFetcherPort re-fetches a single listing under a target
// locale and returns the localized text fields.
type TranslationFetcherPort interface {
	FetchTranslation(ctx context.Context, externalID string, locale string) (domain.Translation, error)
}
