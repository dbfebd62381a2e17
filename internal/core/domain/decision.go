package domain

import "github.com/google/uuid"

// DecisionKind says what persistence should do with a candidate
// listing after deduplication.
type DecisionKind int

const (
	DecisionInsert DecisionKind = iota
	DecisionUpdate
	DecisionSkip
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionInsert:
		return "insert"
	case DecisionUpdate:
		return "update"
	case DecisionSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// MatchTier records which dedup tier produced the decision.
type MatchTier int

const (
	TierNone MatchTier = iota
	TierExternalID
	TierAddress
	TierGeo
)

func (t MatchTier) String() string {
	switch t {
	case TierExternalID:
		return "external_id"
	case TierAddress:
		return "address"
	case TierGeo:
		return "geo"
	default:
		return "none"
	}
}

// DedupDecision is the outcome of resolving one candidate against the
// stored corpus.
type DedupDecision struct {
	Kind       DecisionKind
	Tier       MatchTier
	ExistingID uuid.UUID
	SkipReason string
}

func InsertDecision() DedupDecision {
	return DedupDecision{Kind: DecisionInsert, Tier: TierNone}
}

func UpdateDecision(tier MatchTier, existingID uuid.UUID) DedupDecision {
	return DedupDecision{Kind: DecisionUpdate, Tier: tier, ExistingID: existingID}
}

func SkipDecision(tier MatchTier, reason string) DedupDecision {
	return DedupDecision{Kind: DecisionSkip, Tier: tier, SkipReason: reason}
}

// BatchResult aggregates the outcome of one persistence batch.
type BatchResult struct {
	Inserted int
	Updated  int
	Skipped  int
	Failed   int
}

func (r *BatchResult) Add(other BatchResult) {
	r.Inserted += other.Inserted
	r.Updated += other.Updated
	r.Skipped += other.Skipped
	r.Failed += other.Failed
}
