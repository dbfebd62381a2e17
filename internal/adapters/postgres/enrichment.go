package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"listing-ingest-service/internal/constants"
	"listing-ingest-service/internal/core/domain"
)

// ClaimUntranslated returns rows still missing localized fields,
// oldest first, together with the updated_at each was seen at.
func (a *PostgresStorageAdapter) ClaimUntranslated(ctx context.Context, limit int) ([]domain.UntranslatedProperty, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT id, external_id, updated_at
		FROM properties
		WHERE source = $1
		  AND (coalesce(title_en, '') = '' OR coalesce(title_ru, '') = '')
		ORDER BY updated_at ASC
		LIMIT $2`,
		constants.Source, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim untranslated: %w", err)
	}
	defer rows.Close()

	var out []domain.UntranslatedProperty
	for rows.Next() {
		var p domain.UntranslatedProperty
		if err := rows.Scan(&p.ID, &p.ExternalID, &p.SeenUpdatedAt); err != nil {
			return nil, fmt.Errorf("scan untranslated row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// WriteBackTranslations applies the localized fields only when the row
// is unchanged since the claim. Zero affected rows means the ingester
// got there first; the caller requeues.
func (a *PostgresStorageAdapter) WriteBackTranslations(ctx context.Context, id uuid.UUID, seenUpdatedAt time.Time, set domain.TranslationSet) error {
	en := set["en"]
	ru := set["ru"]

	tag, err := a.pool.Exec(ctx, `
		UPDATE properties SET
			title_en = NULLIF($3, ''),
			description_en = NULLIF($4, ''),
			address_en = NULLIF($5, ''),
			title_ru = NULLIF($6, ''),
			description_ru = NULLIF($7, ''),
			address_ru = NULLIF($8, ''),
			translated_at = NOW()
		WHERE id = $1 AND updated_at = $2`,
		id, seenUpdatedAt,
		en.Title, en.Description, en.Address,
		ru.Title, ru.Description, ru.Address,
	)
	if err != nil {
		return fmt.Errorf("write back translations for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEnrichmentConflict
	}
	return nil
}
