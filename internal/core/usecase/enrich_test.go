package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"listing-ingest-service/internal/core/domain"
)

type fakeEnrichmentStorage struct {
	rows       []domain.UntranslatedProperty
	conflictOn map[string]bool
	written    map[string]domain.TranslationSet
}

func (f *fakeEnrichmentStorage) ClaimUntranslated(_ context.Context, limit int) ([]domain.UntranslatedProperty, error) {
	if len(f.rows) > limit {
		return f.rows[:limit], nil
	}
	return f.rows, nil
}

func (f *fakeEnrichmentStorage) WriteBackTranslations(_ context.Context, id uuid.UUID, _ time.Time, set domain.TranslationSet) error {
	if f.conflictOn[id.String()] {
		return domain.ErrEnrichmentConflict
	}
	if f.written == nil {
		f.written = make(map[string]domain.TranslationSet)
	}
	f.written[id.String()] = set
	return nil
}

type fakeTranslator struct {
	failFor string
}

func (f *fakeTranslator) FetchTranslation(_ context.Context, externalID string, locale string) (domain.Translation, error) {
	if externalID == f.failFor {
		return domain.Translation{}, fmt.Errorf("statement %s unavailable", externalID)
	}
	return domain.Translation{
		Locale: locale,
		Title:  "title " + locale,
	}, nil
}

func TestEnrichmentCycleHappyPath(t *testing.T) {
	row := domain.UntranslatedProperty{ID: uuid.New(), ExternalID: "100", SeenUpdatedAt: time.Now()}
	storage := &fakeEnrichmentStorage{rows: []domain.UntranslatedProperty{row}}

	cycle := NewEnrichmentCycle(storage, &fakeTranslator{}, []string{"en", "ru"}, 10)

	stats, err := cycle.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if stats.Enriched != 1 || stats.Conflicts != 0 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want 1 enriched", stats)
	}

	set := storage.written[row.ID.String()]
	if set == nil {
		t.Fatal("no translations written")
	}
	if set["en"].Title != "title en" || set["ru"].Title != "title ru" {
		t.Errorf("written set = %+v", set)
	}
}

func TestEnrichmentCycleConflictIsRequeuedNotFailed(t *testing.T) {
	row := domain.UntranslatedProperty{ID: uuid.New(), ExternalID: "200", SeenUpdatedAt: time.Now()}
	storage := &fakeEnrichmentStorage{
		rows:       []domain.UntranslatedProperty{row},
		conflictOn: map[string]bool{row.ID.String(): true},
	}

	cycle := NewEnrichmentCycle(storage, &fakeTranslator{}, []string{"en", "ru"}, 10)

	stats, err := cycle.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("a conflict must not fail the cycle, got %v", err)
	}
	if stats.Conflicts != 1 || stats.Enriched != 0 {
		t.Errorf("stats = %+v, want 1 conflict", stats)
	}
	if len(storage.written) != 0 {
		t.Error("conflicted row must not be written")
	}
}

func TestEnrichmentCycleFetchFailureDefersRow(t *testing.T) {
	good := domain.UntranslatedProperty{ID: uuid.New(), ExternalID: "300", SeenUpdatedAt: time.Now()}
	bad := domain.UntranslatedProperty{ID: uuid.New(), ExternalID: "400", SeenUpdatedAt: time.Now()}
	storage := &fakeEnrichmentStorage{rows: []domain.UntranslatedProperty{bad, good}}

	cycle := NewEnrichmentCycle(storage, &fakeTranslator{failFor: "400"}, []string{"en"}, 10)

	stats, err := cycle.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if stats.Failed != 1 || stats.Enriched != 1 {
		t.Errorf("stats = %+v, want 1 failed and 1 enriched", stats)
	}
}

func TestEnrichmentCycleRespectsLimit(t *testing.T) {
	var rows []domain.UntranslatedProperty
	for i := 0; i < 5; i++ {
		rows = append(rows, domain.UntranslatedProperty{ID: uuid.New(), ExternalID: fmt.Sprintf("%d", i), SeenUpdatedAt: time.Now()})
	}
	storage := &fakeEnrichmentStorage{rows: rows}

	cycle := NewEnrichmentCycle(storage, &fakeTranslator{}, []string{"en"}, 2)

	stats, err := cycle.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if stats.Claimed != 2 {
		t.Errorf("Claimed = %d, want 2", stats.Claimed)
	}
}
