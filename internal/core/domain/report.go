package domain

import (
	"sync"
	"time"
)

// RunContext accumulates counters across the concurrent stages of one
// ingestion run. Safe for use from multiple goroutines.
type RunContext struct {
	mu sync.Mutex

	startedAt time.Time

	pagesFetched int
	pagesFailed  int
	retries      int

	rawSeen      int
	normalized   int
	unmappedCode int
	invalid      int

	inserted      int
	updated       int
	skippedDup    int
	persistErrors int
	cleaned       int

	byPropertyType map[string]int
	byDealType     map[string]int
}

func NewRunContext(now time.Time) *RunContext {
	return &RunContext{
		startedAt:      now,
		byPropertyType: make(map[string]int),
		byDealType:     make(map[string]int),
	}
}

func (r *RunContext) PageFetched()  { r.add(&r.pagesFetched, 1) }
func (r *RunContext) PageFailed()   { r.add(&r.pagesFailed, 1) }
func (r *RunContext) Retried()      { r.add(&r.retries, 1) }
func (r *RunContext) RawSeen(n int) { r.add(&r.rawSeen, n) }
func (r *RunContext) UnmappedCode() { r.add(&r.unmappedCode, 1) }
func (r *RunContext) Invalid()      { r.add(&r.invalid, 1) }
func (r *RunContext) Cleaned(n int) { r.add(&r.cleaned, n) }

func (r *RunContext) Normalized(l NormalizedListing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.normalized++
	r.byPropertyType[l.PropertyType]++
	r.byDealType[l.DealType]++
}

func (r *RunContext) BatchDone(b BatchResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserted += b.Inserted
	r.updated += b.Updated
	r.skippedDup += b.Skipped
	r.persistErrors += b.Failed
}

func (r *RunContext) add(field *int, n int) {
	r.mu.Lock()
	*field += n
	r.mu.Unlock()
}

// RunReport is the immutable snapshot emitted at the end of a run.
type RunReport struct {
	Source     string    `json:"source"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	ElapsedSec float64   `json:"elapsed_sec"`

	PagesFetched int `json:"pages_fetched"`
	PagesFailed  int `json:"pages_failed"`
	Retries      int `json:"retries"`

	RawSeen      int `json:"raw_seen"`
	Normalized   int `json:"normalized"`
	UnmappedCode int `json:"unmapped_code"`
	Invalid      int `json:"invalid"`

	Inserted      int `json:"inserted"`
	Updated       int `json:"updated"`
	SkippedDup    int `json:"skipped_duplicates"`
	PersistErrors int `json:"persist_errors"`
	Cleaned       int `json:"cleaned"`

	SuccessRate float64 `json:"success_rate"`

	ByPropertyType map[string]int `json:"by_property_type"`
	ByDealType     map[string]int `json:"by_deal_type"`
}

// Snapshot freezes the counters into a report. The RunContext stays
// usable afterwards.
func (r *RunContext) Snapshot(source string, now time.Time) RunReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep := RunReport{
		Source:        source,
		StartedAt:     r.startedAt,
		FinishedAt:    now,
		ElapsedSec:    now.Sub(r.startedAt).Seconds(),
		PagesFetched:  r.pagesFetched,
		PagesFailed:   r.pagesFailed,
		Retries:       r.retries,
		RawSeen:       r.rawSeen,
		Normalized:    r.normalized,
		UnmappedCode:  r.unmappedCode,
		Invalid:       r.invalid,
		Inserted:      r.inserted,
		Updated:       r.updated,
		SkippedDup:    r.skippedDup,
		PersistErrors: r.persistErrors,
		Cleaned:       r.cleaned,

		ByPropertyType: make(map[string]int, len(r.byPropertyType)),
		ByDealType:     make(map[string]int, len(r.byDealType)),
	}
	for k, v := range r.byPropertyType {
		rep.ByPropertyType[k] = v
	}
	for k, v := range r.byDealType {
		rep.ByDealType[k] = v
	}
	if r.rawSeen > 0 {
		rep.SuccessRate = float64(r.inserted+r.updated) / float64(r.rawSeen)
	}
	return rep
}
