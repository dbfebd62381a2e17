package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"listing-ingest-service/internal/constants"
	"listing-ingest-service/internal/contextkeys"
	"listing-ingest-service/internal/core/port"
)

// EnsureSystemUser creates the reserved scraper account on first run
// and returns its id afterwards.
func (a *PostgresStorageAdapter) EnsureSystemUser(ctx context.Context) (uuid.UUID, error) {
	var id uuid.UUID
	err := a.pool.QueryRow(ctx,
		`SELECT id FROM users WHERE email = $1`, constants.SystemUserEmail,
	).Scan(&id)
	if err == nil {
		a.systemUserID = id
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("look up system user: %w", err)
	}

	id = uuid.New()
	_, err = a.pool.Exec(ctx, `
		INSERT INTO users (id, email, first_name, last_name, role, is_active)
		VALUES ($1, $2, 'System', 'Scraper', 'system', TRUE)
		ON CONFLICT (email) DO NOTHING`,
		id, constants.SystemUserEmail,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create system user: %w", err)
	}

	// A concurrent worker may have won the insert race.
	err = a.pool.QueryRow(ctx,
		`SELECT id FROM users WHERE email = $1`, constants.SystemUserEmail,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("re-read system user: %w", err)
	}

	a.systemUserID = id
	contextkeys.LoggerFromContext(ctx).Info("system user ensured", port.Fields{"user_id": id.String()})
	return id, nil
}

// CleanupStale removes rows of the source not seen since cutoff.
// Children go with them via FK cascade.
func (a *PostgresStorageAdapter) CleanupStale(ctx context.Context, source string, cutoff time.Time) (int, error) {
	tag, err := a.pool.Exec(ctx,
		`DELETE FROM properties WHERE source = $1 AND last_scraped < $2`,
		source, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup stale listings: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
