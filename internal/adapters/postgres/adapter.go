package postgres

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"listing-ingest-service/internal/configs"
)

// PostgresStorageAdapter implements the property storage and
// enrichment storage ports over a pgx pool.
type PostgresStorageAdapter struct {
	pool             *pgxpool.Pool
	geohashPrecision uint
	candidateLimit   int
	storeImages      bool

	// systemUserID is filled by EnsureSystemUser, which the pipeline
	// runs before any upsert; every persisted row is attributed to it.
	systemUserID uuid.UUID
}

func NewPostgresStorageAdapter(pool *pgxpool.Pool, dedupCfg configs.DedupConfig, persistCfg configs.PersistenceConfig) *PostgresStorageAdapter {
	return &PostgresStorageAdapter{
		pool:             pool,
		geohashPrecision: dedupCfg.GeohashPrecision,
		candidateLimit:   200,
		storeImages:      persistCfg.DownloadImages,
	}
}

// ownerParam yields the owning-user reference for property rows, NULL
// until EnsureSystemUser has run.
func (a *PostgresStorageAdapter) ownerParam() any {
	if a.systemUserID == uuid.Nil {
		return nil
	}
	return a.systemUserID
}
