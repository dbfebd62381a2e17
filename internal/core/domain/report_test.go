package domain

import (
	"sync"
	"testing"
	"time"
)

func TestRunContextSnapshot(t *testing.T) {
	start := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	run := NewRunContext(start)

	run.PageFetched()
	run.PageFetched()
	run.PageFailed()
	run.Retried()
	run.RawSeen(10)
	run.Normalized(NormalizedListing{PropertyType: "apartment", DealType: "rent"})
	run.Normalized(NormalizedListing{PropertyType: "apartment", DealType: "sale"})
	run.Normalized(NormalizedListing{PropertyType: "house", DealType: "sale"})
	run.UnmappedCode()
	run.Invalid()
	run.BatchDone(BatchResult{Inserted: 2, Updated: 1, Skipped: 1})
	run.Cleaned(3)

	rep := run.Snapshot("myhome.ge", start.Add(90*time.Second))

	if rep.Source != "myhome.ge" {
		t.Errorf("Source = %q", rep.Source)
	}
	if rep.ElapsedSec != 90 {
		t.Errorf("ElapsedSec = %v, want 90", rep.ElapsedSec)
	}
	if rep.PagesFetched != 2 || rep.PagesFailed != 1 || rep.Retries != 1 {
		t.Errorf("page counters = %d/%d/%d", rep.PagesFetched, rep.PagesFailed, rep.Retries)
	}
	if rep.Normalized != 3 || rep.UnmappedCode != 1 || rep.Invalid != 1 {
		t.Errorf("normalize counters = %d/%d/%d", rep.Normalized, rep.UnmappedCode, rep.Invalid)
	}
	if rep.Inserted != 2 || rep.Updated != 1 || rep.SkippedDup != 1 || rep.Cleaned != 3 {
		t.Errorf("persist counters = %+v", rep)
	}
	if rep.ByPropertyType["apartment"] != 2 || rep.ByPropertyType["house"] != 1 {
		t.Errorf("ByPropertyType = %v", rep.ByPropertyType)
	}
	if rep.ByDealType["sale"] != 2 || rep.ByDealType["rent"] != 1 {
		t.Errorf("ByDealType = %v", rep.ByDealType)
	}
	// (2 inserted + 1 updated) / 10 raw
	if rep.SuccessRate != 0.3 {
		t.Errorf("SuccessRate = %v, want 0.3", rep.SuccessRate)
	}
}

func TestRunContextConcurrentUpdates(t *testing.T) {
	run := NewRunContext(time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run.PageFetched()
			run.RawSeen(2)
			run.Normalized(NormalizedListing{PropertyType: "apartment", DealType: "rent"})
			run.BatchDone(BatchResult{Inserted: 1})
		}()
	}
	wg.Wait()

	rep := run.Snapshot("myhome.ge", time.Now())
	if rep.PagesFetched != 50 || rep.RawSeen != 100 || rep.Normalized != 50 || rep.Inserted != 50 {
		t.Errorf("counters = %d/%d/%d/%d, want 50/100/50/50", rep.PagesFetched, rep.RawSeen, rep.Normalized, rep.Inserted)
	}
}

func TestDecisionKindString(t *testing.T) {
	if DecisionInsert.String() != "insert" || DecisionUpdate.String() != "update" || DecisionSkip.String() != "skip" {
		t.Error("DecisionKind string labels drifted")
	}
	if TierExternalID.String() != "external_id" || TierAddress.String() != "address" || TierGeo.String() != "geo" {
		t.Error("MatchTier string labels drifted")
	}
}
