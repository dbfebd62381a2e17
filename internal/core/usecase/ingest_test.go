package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"listing-ingest-service/internal/configs"
	"listing-ingest-service/internal/core/domain"
	"listing-ingest-service/internal/core/port"
)

type fakeFetcher struct {
	pages [][]domain.RawListing
}

func (f *fakeFetcher) FetchPage(_ context.Context, cursor port.PageCursor) ([]domain.RawListing, *port.PageCursor, error) {
	idx := cursor.Page - 1
	if idx >= len(f.pages) {
		return nil, nil, domain.ErrNoMorePages
	}
	var next *port.PageCursor
	if idx+1 < len(f.pages) {
		next = &port.PageCursor{Page: cursor.Page + 1}
	}
	return f.pages[idx], next, nil
}

// pipelineStorage keeps upserted rows in memory so consecutive runs
// see each other's writes. A fuzzy update rewrites the matched row
// under the incoming identity, mirroring the persistence adapter.
type pipelineStorage struct {
	mu                 sync.Mutex
	byID               map[string]domain.ExistingProperty
	appendCount        int
	ensured            bool
	upsertBeforeEnsure bool
}

func newPipelineStorage() *pipelineStorage {
	return &pipelineStorage{byID: make(map[string]domain.ExistingProperty)}
}

func (s *pipelineStorage) FindByExternalID(_ context.Context, externalID, source string) (*domain.ExistingProperty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byID[externalID+"|"+source]; ok {
		return &e, nil
	}
	return nil, nil
}

func (s *pipelineStorage) FindCandidates(_ context.Context, _ domain.NormalizedListing) ([]domain.ExistingProperty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ExistingProperty, 0, len(s.byID))
	for _, e := range s.byID {
		out = append(out, e)
	}
	return out, nil
}

func (s *pipelineStorage) UpsertBatch(_ context.Context, records []domain.ResolvedListing) (domain.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ensured {
		s.upsertBeforeEnsure = true
	}

	var result domain.BatchResult
	for _, rec := range records {
		l := rec.Listing
		key := l.ExternalID + "|" + l.Source

		id := uuid.New()
		updated := false

		if rec.Decision.Kind == domain.DecisionUpdate && rec.Decision.Tier != domain.TierExternalID && rec.Decision.ExistingID != uuid.Nil {
			for k, e := range s.byID {
				if e.ID == rec.Decision.ExistingID {
					delete(s.byID, k)
					id = e.ID
					updated = true
					break
				}
			}
		}
		if !updated {
			if e, exists := s.byID[key]; exists {
				id = e.ID
				updated = true
			}
		}

		if updated {
			result.Updated++
		} else {
			result.Inserted++
		}
		if rec.AppendPrice {
			s.appendCount++
		}
		s.byID[key] = domain.ExistingProperty{
			ID:          id,
			ExternalID:  l.ExternalID,
			Source:      l.Source,
			Address:     l.Address,
			City:        l.City,
			District:    l.District,
			Area:        l.Area,
			Price:       l.Price,
			Currency:    l.Currency,
			Owner:       l.Owner,
			LastScraped: l.ScrapedAt,
		}
	}
	return result, nil
}

func (s *pipelineStorage) EnsureSystemUser(_ context.Context) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensured = true
	return uuid.New(), nil
}

func (s *pipelineStorage) CleanupStale(_ context.Context, _ string, _ time.Time) (int, error) {
	return 0, nil
}

type capturingReporter struct {
	mu      sync.Mutex
	reports []domain.RunReport
}

func (r *capturingReporter) ReportRun(_ context.Context, rep domain.RunReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
	return nil
}

func runPipeline(t *testing.T, storage *pipelineStorage, reporter *capturingReporter, pages [][]domain.RawListing) domain.RunReport {
	t.Helper()
	return runPipelineCfg(t, storage, reporter, pages, configs.FetcherConfig{Concurrency: 2})
}

func runPipelineCfg(t *testing.T, storage *pipelineStorage, reporter *capturingReporter, pages [][]domain.RawListing, fetcherCfg configs.FetcherConfig) domain.RunReport {
	t.Helper()

	run := domain.NewRunContext(time.Now().UTC())
	pipeline := NewIngestPipeline(
		&fakeFetcher{pages: pages},
		NewNormalizer(),
		NewDeduplicator(storage, defaultDedupConfig()),
		NewCurrencyConverter(nil, map[string]float64{"GEL": 1.0, "USD": 2.71, "EUR": 2.95}),
		storage,
		reporter,
		run,
		fetcherCfg,
		configs.PersistenceConfig{BatchSize: 2},
	)

	report, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("pipeline.Run returned error: %v", err)
	}
	return report
}

func rawWithPrice(id int64, price float64) domain.RawListing {
	raw := validRaw()
	raw.ExternalID = id
	raw.Prices = map[int]domain.RawPrice{1: {Total: price}}
	return raw
}

func TestPipelineIngestsAndReports(t *testing.T) {
	storage := newPipelineStorage()
	reporter := &capturingReporter{}

	pages := [][]domain.RawListing{
		{rawWithPrice(1, 1000), rawWithPrice(2, 2000)},
		{rawWithPrice(3, 3000)},
	}

	report := runPipeline(t, storage, reporter, pages)

	if report.PagesFetched != 2 {
		t.Errorf("PagesFetched = %d, want 2", report.PagesFetched)
	}
	if report.RawSeen != 3 || report.Normalized != 3 {
		t.Errorf("RawSeen/Normalized = %d/%d, want 3/3", report.RawSeen, report.Normalized)
	}
	if report.Inserted != 3 || report.Updated != 0 {
		t.Errorf("Inserted/Updated = %d/%d, want 3/0", report.Inserted, report.Updated)
	}
	if report.ByPropertyType["apartment"] != 3 {
		t.Errorf("ByPropertyType = %v", report.ByPropertyType)
	}
	if len(reporter.reports) != 1 {
		t.Fatalf("reporter received %d reports, want 1", len(reporter.reports))
	}
}

func TestPipelineIsIdempotent(t *testing.T) {
	storage := newPipelineStorage()
	pages := [][]domain.RawListing{{rawWithPrice(1, 1000), rawWithPrice(2, 2000)}}

	first := runPipeline(t, storage, &capturingReporter{}, pages)
	second := runPipeline(t, storage, &capturingReporter{}, pages)

	if first.Inserted != 2 {
		t.Errorf("first run Inserted = %d, want 2", first.Inserted)
	}
	if second.Inserted != 0 || second.Updated != 2 {
		t.Errorf("second run Inserted/Updated = %d/%d, want 0/2", second.Inserted, second.Updated)
	}
	if len(storage.byID) != 2 {
		t.Errorf("stored rows = %d, want 2", len(storage.byID))
	}
}

func TestPipelinePriceHistoryOnlyOnChange(t *testing.T) {
	storage := newPipelineStorage()

	// Same listing over three runs: 1000, 1000 again, then 1200.
	runPipeline(t, storage, &capturingReporter{}, [][]domain.RawListing{{rawWithPrice(1, 1000)}})
	runPipeline(t, storage, &capturingReporter{}, [][]domain.RawListing{{rawWithPrice(1, 1000)}})
	runPipeline(t, storage, &capturingReporter{}, [][]domain.RawListing{{rawWithPrice(1, 1200)}})

	if storage.appendCount != 2 {
		t.Errorf("price history rows = %d, want 2 (initial and the change)", storage.appendCount)
	}
}

func TestPipelineExcludesInvalidRecords(t *testing.T) {
	storage := newPipelineStorage()

	bad := rawWithPrice(9, 1000)
	bad.Latitude = 0.0 // outside the Georgian bounding box

	unmapped := rawWithPrice(10, 1000)
	unmapped.RealEstateTypeID = 77

	pages := [][]domain.RawListing{{rawWithPrice(1, 1000), bad, unmapped}}
	report := runPipeline(t, storage, &capturingReporter{}, pages)

	if report.Inserted != 1 {
		t.Errorf("Inserted = %d, want 1", report.Inserted)
	}
	if report.Invalid != 1 || report.UnmappedCode != 1 {
		t.Errorf("Invalid/UnmappedCode = %d/%d, want 1/1", report.Invalid, report.UnmappedCode)
	}
	if report.SuccessRate <= 0.3 || report.SuccessRate >= 0.4 {
		t.Errorf("SuccessRate = %v, want 1/3", report.SuccessRate)
	}
}

func TestPipelineStoresCanonicalPrice(t *testing.T) {
	storage := newPipelineStorage()

	runPipeline(t, storage, &capturingReporter{}, [][]domain.RawListing{{rawWithPrice(1, 1000)}})

	row, ok := storage.byID["1|myhome.ge"]
	if !ok {
		t.Fatal("row not stored")
	}
	if row.Price != 1000 || row.Currency != "GEL" {
		t.Errorf("stored price = %v %s", row.Price, row.Currency)
	}
}

func TestPipelineCollapsesFuzzyDuplicates(t *testing.T) {
	storage := newPipelineStorage()

	// Same flat relisted under a fresh external id with a slightly
	// different address spelling and a price inside the 5% band.
	first := rawWithPrice(111, 1000)
	first.Address = "Vaja-Pshavela 25"
	second := rawWithPrice(222, 1030)
	second.Address = "vaja pshavela  25"

	runPipeline(t, storage, &capturingReporter{}, [][]domain.RawListing{{first}})
	report := runPipeline(t, storage, &capturingReporter{}, [][]domain.RawListing{{second}})

	if report.Inserted != 0 || report.Updated != 1 {
		t.Errorf("second run Inserted/Updated = %d/%d, want 0/1", report.Inserted, report.Updated)
	}
	if len(storage.byID) != 1 {
		t.Fatalf("stored rows = %d, want 1 after a relisting", len(storage.byID))
	}
	row, ok := storage.byID["222|myhome.ge"]
	if !ok {
		t.Fatal("surviving row must carry the incoming external id")
	}
	if row.Price != 1030 {
		t.Errorf("surviving price = %v, want 1030", row.Price)
	}
}

func TestPipelineKeepsIndividualOwnerAcrossRelistings(t *testing.T) {
	individual := rawWithPrice(111, 1000)
	individual.UserType = "physical"
	agency := rawWithPrice(222, 1000)
	agency.UserType = "agency"
	agency.Address = "vaja pshavela 25"

	t.Run("individual arrives second", func(t *testing.T) {
		storage := newPipelineStorage()
		runPipeline(t, storage, &capturingReporter{}, [][]domain.RawListing{{agency}})
		swapped := individual
		swapped.Address = "vaja pshavela 25"
		runPipeline(t, storage, &capturingReporter{}, [][]domain.RawListing{{swapped}})

		if len(storage.byID) != 1 {
			t.Fatalf("stored rows = %d, want 1", len(storage.byID))
		}
		for _, row := range storage.byID {
			if row.Owner != domain.OwnerIndividual {
				t.Errorf("stored owner = %s, want individual", row.Owner)
			}
		}
	})

	t.Run("agency arrives second", func(t *testing.T) {
		storage := newPipelineStorage()
		runPipeline(t, storage, &capturingReporter{}, [][]domain.RawListing{{individual}})
		runPipeline(t, storage, &capturingReporter{}, [][]domain.RawListing{{agency}})

		if len(storage.byID) != 1 {
			t.Fatalf("stored rows = %d, want 1", len(storage.byID))
		}
		for _, row := range storage.byID {
			if row.Owner != domain.OwnerIndividual {
				t.Errorf("stored owner = %s, want individual", row.Owner)
			}
		}
	})
}

func TestPipelineCapsRecordsPerRun(t *testing.T) {
	storage := newPipelineStorage()
	pages := [][]domain.RawListing{
		{rawWithPrice(1, 1000), rawWithPrice(2, 2000)},
		{rawWithPrice(3, 3000), rawWithPrice(4, 4000)},
	}

	report := runPipelineCfg(t, storage, &capturingReporter{}, pages, configs.FetcherConfig{Concurrency: 2, MaxRecords: 3})

	if report.Inserted != 3 {
		t.Errorf("Inserted = %d, want 3 with a record cap of 3", report.Inserted)
	}
	if len(storage.byID) != 3 {
		t.Errorf("stored rows = %d, want 3", len(storage.byID))
	}
}

func TestPipelineEnsuresSystemUserBeforePersisting(t *testing.T) {
	storage := newPipelineStorage()

	runPipeline(t, storage, &capturingReporter{}, [][]domain.RawListing{{rawWithPrice(1, 1000)}})

	if !storage.ensured {
		t.Fatal("system account was never ensured")
	}
	if storage.upsertBeforeEnsure {
		t.Error("rows were persisted before the system account existed")
	}
}
