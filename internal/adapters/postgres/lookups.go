package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mmcloughlin/geohash"

	"listing-ingest-service/internal/core/domain"
)

const existingColumns = `
	id, external_id, source, coalesce(address, ''), coalesce(city, ''),
	coalesce(district, ''), area, price, currency,
	coalesce(latitude, 0), coalesce(longitude, 0), owner_class,
	last_scraped, updated_at`

// FindByExternalID is the exact-identity lookup of the first dedup
// tier.
func (a *PostgresStorageAdapter) FindByExternalID(ctx context.Context, externalID, source string) (*domain.ExistingProperty, error) {
	query := fmt.Sprintf(`SELECT %s FROM properties WHERE external_id = $1 AND source = $2`, existingColumns)

	row := a.pool.QueryRow(ctx, query, externalID, source)
	existing, err := scanExisting(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by external id %s/%s: %w", externalID, source, err)
	}
	return &existing, nil
}

// FindCandidates pulls potential duplicates for the fuzzy tiers: rows
// in the same city plus rows whose geohash cell matches. The precise
// match runs in memory.
func (a *PostgresStorageAdapter) FindCandidates(ctx context.Context, l domain.NormalizedListing) ([]domain.ExistingProperty, error) {
	var cell string
	if l.Latitude != 0 || l.Longitude != 0 {
		cell = geohash.EncodeWithPrecision(l.Latitude, l.Longitude, a.geohashPrecision)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM properties
		WHERE (lower(city) = lower($1) AND ($2 = '' OR district = '' OR lower(district) = lower($2)))
		   OR ($3 <> '' AND geohash = $3)
		LIMIT $4`, existingColumns)

	rows, err := a.pool.Query(ctx, query, l.City, l.District, cell, a.candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("find candidates for %s/%s: %w", l.ExternalID, l.Source, err)
	}
	defer rows.Close()

	var out []domain.ExistingProperty
	for rows.Next() {
		existing, err := scanExisting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate row: %w", err)
		}
		out = append(out, existing)
	}
	return out, rows.Err()
}

func scanExisting(row pgx.Row) (domain.ExistingProperty, error) {
	var e domain.ExistingProperty
	var owner string
	err := row.Scan(
		&e.ID, &e.ExternalID, &e.Source, &e.Address, &e.City,
		&e.District, &e.Area, &e.Price, &e.Currency,
		&e.Latitude, &e.Longitude, &owner,
		&e.LastScraped, &e.UpdatedAt,
	)
	if err != nil {
		return e, err
	}
	e.Owner = domain.OwnerClass(owner)
	return e, nil
}
