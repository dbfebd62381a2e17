package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mmcloughlin/geohash"

	"listing-ingest-service/internal/contextkeys"
	"listing-ingest-service/internal/core/domain"
	"listing-ingest-service/internal/core/port"
	"listing-ingest-service/internal/core/usecase"
)

const upsertPropertySQL = `
	INSERT INTO properties (
		external_id, source, title, description,
		property_type, deal_type,
		price, currency, price_usd,
		area, rooms, bedrooms, bathrooms, floor, total_floors,
		address, normalized_address, city, district, urban_area,
		latitude, longitude, geohash,
		owner_class, owner_id, amenities, last_scraped, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, NOW()
	)
	ON CONFLICT (external_id, source) DO UPDATE SET
		title = EXCLUDED.title,
		description = EXCLUDED.description,
		property_type = EXCLUDED.property_type,
		deal_type = EXCLUDED.deal_type,
		price = EXCLUDED.price,
		currency = EXCLUDED.currency,
		price_usd = EXCLUDED.price_usd,
		area = EXCLUDED.area,
		rooms = EXCLUDED.rooms,
		bedrooms = EXCLUDED.bedrooms,
		bathrooms = EXCLUDED.bathrooms,
		floor = EXCLUDED.floor,
		total_floors = EXCLUDED.total_floors,
		address = EXCLUDED.address,
		normalized_address = EXCLUDED.normalized_address,
		city = EXCLUDED.city,
		district = EXCLUDED.district,
		urban_area = EXCLUDED.urban_area,
		latitude = EXCLUDED.latitude,
		longitude = EXCLUDED.longitude,
		geohash = EXCLUDED.geohash,
		owner_class = EXCLUDED.owner_class,
		owner_id = EXCLUDED.owner_id,
		amenities = EXCLUDED.amenities,
		last_scraped = EXCLUDED.last_scraped,
		updated_at = NOW()
	RETURNING id, (xmax = 0) AS inserted`

const updateMatchedPropertySQL = `
	UPDATE properties SET
		external_id = $2,
		source = $3,
		title = $4,
		description = $5,
		property_type = $6,
		deal_type = $7,
		price = $8,
		currency = $9,
		price_usd = $10,
		area = $11,
		rooms = $12,
		bedrooms = $13,
		bathrooms = $14,
		floor = $15,
		total_floors = $16,
		address = $17,
		normalized_address = $18,
		city = $19,
		district = $20,
		urban_area = $21,
		latitude = $22,
		longitude = $23,
		geohash = $24,
		owner_class = $25,
		owner_id = $26,
		amenities = $27,
		last_scraped = $28,
		updated_at = NOW()
	WHERE id = $1`

// UpsertBatch persists resolved listings inside one transaction.
// Every record runs under its own savepoint, so a constraint
// violation rolls back that record alone and the batch survives.
func (a *PostgresStorageAdapter) UpsertBatch(ctx context.Context, records []domain.ResolvedListing) (domain.BatchResult, error) {
	logger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"component":    "PostgresStorageAdapter",
		"method":       "UpsertBatch",
		"record_count": len(records),
	})

	var result domain.BatchResult
	if len(records) == 0 {
		return result, nil
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, rec := range records {
		if rec.Decision.Kind == domain.DecisionSkip {
			result.Skipped++
			continue
		}

		// pgx nests transactions with savepoints.
		sp, err := tx.Begin(ctx)
		if err != nil {
			return result, fmt.Errorf("failed to open savepoint: %w", err)
		}

		inserted, err := a.upsertOne(ctx, sp, rec)
		if err != nil {
			_ = sp.Rollback(ctx)
			result.Failed++
			logger.Error("record rejected, batch continues", err, port.Fields{
				"external_id": rec.Listing.ExternalID,
			})
			continue
		}

		if err := sp.Commit(ctx); err != nil {
			return result, fmt.Errorf("failed to release savepoint: %w", err)
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.BatchResult{}, fmt.Errorf("failed to commit batch: %w", err)
	}

	logger.Debug("batch committed", port.Fields{
		"inserted": result.Inserted,
		"updated":  result.Updated,
		"skipped":  result.Skipped,
		"failed":   result.Failed,
	})
	return result, nil
}

func (a *PostgresStorageAdapter) upsertOne(ctx context.Context, tx pgx.Tx, rec domain.ResolvedListing) (bool, error) {
	l := rec.Listing

	var cell string
	if l.Latitude != 0 || l.Longitude != 0 {
		cell = geohash.EncodeWithPrecision(l.Latitude, l.Longitude, a.geohashPrecision)
	}

	id, inserted, err := a.writeProperty(ctx, tx, rec, cell)
	if err != nil {
		return false, err
	}

	if a.storeImages {
		if err := a.replaceImages(ctx, tx, id, l.Images); err != nil {
			return false, err
		}
	}
	if err := a.upsertParameters(ctx, tx, id, l.Parameters); err != nil {
		return false, err
	}
	if rec.AppendPrice {
		if err := a.appendPrice(ctx, tx, id, l); err != nil {
			return false, err
		}
	}

	return inserted, nil
}

// writeProperty lands the property row. A fuzzy match (address or geo
// tier) rewrites the matched row in place, taking over the incoming
// identity, so the duplicate pair stays one row. Everything else goes
// through the (external_id, source) upsert.
func (a *PostgresStorageAdapter) writeProperty(ctx context.Context, tx pgx.Tx, rec domain.ResolvedListing, cell string) (uuid.UUID, bool, error) {
	l := rec.Listing
	d := rec.Decision

	if d.Kind == domain.DecisionUpdate && d.Tier != domain.TierExternalID && d.ExistingID != uuid.Nil {
		tag, err := tx.Exec(ctx, updateMatchedPropertySQL,
			d.ExistingID,
			l.ExternalID, l.Source, l.Title, l.Description,
			l.PropertyType, l.DealType,
			l.Price, l.Currency, l.PriceUSD,
			l.Area, l.Rooms, l.Bedrooms, l.Bathrooms, l.Floor, l.TotalFloors,
			l.Address, usecase.NormalizeAddress(l.Address), l.City, l.District, l.UrbanArea,
			l.Latitude, l.Longitude, cell,
			string(l.Owner), a.ownerParam(), l.Amenities, l.ScrapedAt,
		)
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("update matched property %s: %w", d.ExistingID, err)
		}
		if tag.RowsAffected() > 0 {
			return d.ExistingID, false, nil
		}
		// The matched row disappeared between dedup and persistence;
		// fall through to the identity upsert.
	}

	var id uuid.UUID
	var inserted bool
	err := tx.QueryRow(ctx, upsertPropertySQL,
		l.ExternalID, l.Source, l.Title, l.Description,
		l.PropertyType, l.DealType,
		l.Price, l.Currency, l.PriceUSD,
		l.Area, l.Rooms, l.Bedrooms, l.Bathrooms, l.Floor, l.TotalFloors,
		l.Address, usecase.NormalizeAddress(l.Address), l.City, l.District, l.UrbanArea,
		l.Latitude, l.Longitude, cell,
		string(l.Owner), a.ownerParam(), l.Amenities, l.ScrapedAt,
	).Scan(&id, &inserted)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("upsert property %s/%s: %w", l.ExternalID, l.Source, err)
	}
	return id, inserted, nil
}

// replaceImages rewrites the image set by ordinal. Exactly one primary
// survives per property.
func (a *PostgresStorageAdapter) replaceImages(ctx context.Context, tx pgx.Tx, propertyID uuid.UUID, images []domain.ImageDescriptor) error {
	if _, err := tx.Exec(ctx, `DELETE FROM property_images WHERE property_id = $1`, propertyID); err != nil {
		return fmt.Errorf("clear images for %s: %w", propertyID, err)
	}

	for _, img := range images {
		_, err := tx.Exec(ctx, `
			INSERT INTO property_images (property_id, url, ordinal, is_primary)
			VALUES ($1, $2, $3, $4)`,
			propertyID, img.URL, img.Ordinal, img.Primary,
		)
		if err != nil {
			return fmt.Errorf("insert image %d for %s: %w", img.Ordinal, propertyID, err)
		}
	}
	return nil
}

func (a *PostgresStorageAdapter) upsertParameters(ctx context.Context, tx pgx.Tx, propertyID uuid.UUID, params []domain.ParameterValue) error {
	for _, p := range params {
		_, err := tx.Exec(ctx, `
			INSERT INTO parameters (id, key, display_name)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET
				key = EXCLUDED.key,
				display_name = EXCLUDED.display_name`,
			p.ParameterID, p.Key, p.DisplayName,
		)
		if err != nil {
			return fmt.Errorf("upsert parameter %d: %w", p.ParameterID, err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO property_parameters (property_id, parameter_id, value, select_name)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (property_id, parameter_id) DO UPDATE SET
				value = EXCLUDED.value,
				select_name = EXCLUDED.select_name`,
			propertyID, p.ParameterID, p.Value, p.SelectName,
		)
		if err != nil {
			return fmt.Errorf("upsert property parameter %d for %s: %w", p.ParameterID, propertyID, err)
		}
	}
	return nil
}

// appendPrice adds a history row; unchanged prices never reach here.
func (a *PostgresStorageAdapter) appendPrice(ctx context.Context, tx pgx.Tx, propertyID uuid.UUID, l domain.NormalizedListing) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO property_prices (property_id, price, currency, price_usd, recorded_at)
		VALUES ($1, $2, $3, $4, $5)`,
		propertyID, l.Price, l.Currency, l.PriceUSD, l.ScrapedAt,
	)
	if err != nil {
		return fmt.Errorf("append price for %s: %w", propertyID, err)
	}
	return nil
}
