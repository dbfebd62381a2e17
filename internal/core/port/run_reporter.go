package port

import (
	"context"
	"listing-ingest-service/internal/core/domain"
)

// RunReporterPort delivers the final run report somewhere: a file, a
// message broker, or both.
type RunReporterPort interface {
	ReportRun(ctx context.Context, report domain.RunReport) error
}
