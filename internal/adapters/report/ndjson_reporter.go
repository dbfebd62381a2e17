package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"listing-ingest-service/internal/contextkeys"
	"listing-ingest-service/internal/core/domain"
	"listing-ingest-service/internal/core/port"
)

// NDJSONReporter appends every run report as one JSON line to a file
// in the reports directory and keeps the latest report in memory for
// the operational endpoints.
type NDJSONReporter struct {
	dir string

	mu   sync.Mutex
	last *domain.RunReport
}

func NewNDJSONReporter(dir string) *NDJSONReporter {
	return &NDJSONReporter{dir: dir}
}

func (r *NDJSONReporter) ReportRun(ctx context.Context, rep domain.RunReport) error {
	r.mu.Lock()
	snapshot := rep
	r.last = &snapshot
	r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create reports dir %s: %w", r.dir, err)
	}

	path := filepath.Join(r.dir, "ingest_runs.ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open report file %s: %w", path, err)
	}
	defer f.Close()

	line, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}

	contextkeys.LoggerFromContext(ctx).Info("run report written", port.Fields{"path": path})
	return nil
}

// LastReport returns the most recent report of this process, if any.
func (r *NDJSONReporter) LastReport() (domain.RunReport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return domain.RunReport{}, false
	}
	return *r.last, true
}

// MultiReporter fans a report out to several destinations. A failing
// destination does not stop the others; the first error is returned.
type MultiReporter struct {
	reporters []port.RunReporterPort
}

func NewMultiReporter(reporters ...port.RunReporterPort) *MultiReporter {
	return &MultiReporter{reporters: reporters}
}

func (m *MultiReporter) ReportRun(ctx context.Context, rep domain.RunReport) error {
	var firstErr error
	for _, r := range m.reporters {
		if err := r.ReportRun(ctx, rep); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
