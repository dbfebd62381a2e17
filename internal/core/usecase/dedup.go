package usecase

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"listing-ingest-service/internal/configs"
	"listing-ingest-service/internal/contextkeys"
	"listing-ingest-service/internal/core/domain"
	"listing-ingest-service/internal/core/port"
)

// Deduplicator resolves incoming listings against the stored corpus
// through three short-circuiting tiers: exact external id, fuzzy
// address, geo proximity.
type Deduplicator struct {
	storage port.PropertyStoragePort

	enabled       bool
	ownerPriority bool
	areaTol       float64
	priceTol      float64
	coordTol      float64

	mu sync.Mutex
	// seen caches rows touched this run, keyed by external_id|source,
	// so repeats within one run resolve consistently without a
	// round-trip.
	seen map[string]domain.ExistingProperty
}

func NewDeduplicator(storage port.PropertyStoragePort, cfg configs.DedupConfig) *Deduplicator {
	return &Deduplicator{
		storage:       storage,
		enabled:       cfg.Enabled,
		ownerPriority: cfg.OwnerPriority,
		areaTol:       cfg.AreaTolerance,
		priceTol:      cfg.PriceTolerance,
		coordTol:      cfg.CoordinateTolerance,
		seen:          make(map[string]domain.ExistingProperty),
	}
}

// Resolve decides what persistence should do with the listing.
func (d *Deduplicator) Resolve(ctx context.Context, l domain.NormalizedListing) (domain.ResolvedListing, error) {
	logger := contextkeys.LoggerFromContext(ctx)

	// With dedup off, every record inserts; the identity upsert in
	// storage still keeps repeats of one external id idempotent.
	if !d.enabled {
		return domain.ResolvedListing{Listing: l, Decision: domain.InsertDecision(), AppendPrice: true}, nil
	}

	// Tier 1: exact identity.
	existing, err := d.lookupByID(ctx, l)
	if err != nil {
		return domain.ResolvedListing{}, fmt.Errorf("dedup lookup for %s/%s: %w", l.ExternalID, l.Source, err)
	}
	if existing != nil {
		resolved := domain.ResolvedListing{
			Listing:     l,
			Decision:    domain.UpdateDecision(domain.TierExternalID, existing.ID),
			AppendPrice: priceChanged(l, *existing),
		}
		d.remember(l, existing.ID)
		return resolved, nil
	}

	// Tiers 2 and 3 work over pre-fetched candidates; the match logic
	// itself is pure.
	candidates, err := d.storage.FindCandidates(ctx, l)
	if err != nil {
		return domain.ResolvedListing{}, fmt.Errorf("dedup candidates for %s/%s: %w", l.ExternalID, l.Source, err)
	}
	candidates = append(candidates, d.inRunCandidates(l)...)

	decision, appendPrice := d.decide(l, candidates)
	if decision.Kind != domain.DecisionSkip {
		d.remember(l, decision.ExistingID)
	}

	if decision.Kind == domain.DecisionSkip {
		logger.Debug("duplicate skipped", port.Fields{
			"external_id": l.ExternalID,
			"tier":        decision.Tier.String(),
			"reason":      decision.SkipReason,
		})
	}

	return domain.ResolvedListing{Listing: l, Decision: decision, AppendPrice: appendPrice}, nil
}

// decide is the pure tier-2/3 match over candidates already in hand.
func (d *Deduplicator) decide(l domain.NormalizedListing, candidates []domain.ExistingProperty) (domain.DedupDecision, bool) {
	var matches []scoredMatch

	for _, c := range candidates {
		if c.ExternalID == l.ExternalID && c.Source == l.Source {
			continue
		}
		if tier := d.matchTier(l, c); tier != domain.TierNone {
			matches = append(matches, scoredMatch{property: c, tier: tier})
		}
	}

	if len(matches) == 0 {
		return domain.InsertDecision(), true
	}

	best := d.pickBest(matches)

	if d.incomingWins(l, best.property) {
		return domain.UpdateDecision(best.tier, best.property.ID), priceChanged(l, best.property)
	}
	return domain.SkipDecision(best.tier, fmt.Sprintf("existing %s listing has priority", best.property.Owner)), false
}

type scoredMatch struct {
	property domain.ExistingProperty
	tier     domain.MatchTier
}

func (d *Deduplicator) matchTier(l domain.NormalizedListing, c domain.ExistingProperty) domain.MatchTier {
	if !d.withinTolerance(l.Area, c.Area, d.areaTol) {
		return domain.TierNone
	}
	if l.Currency != c.Currency || !d.withinTolerance(l.Price, c.Price, d.priceTol) {
		return domain.TierNone
	}

	// Tier 2: same city/district and normalized address identity.
	if sameLocality(l, c) && l.Address != "" && c.Address != "" &&
		NormalizeAddress(l.Address) == NormalizeAddress(c.Address) {
		return domain.TierAddress
	}

	// Tier 3: coordinates within tolerance.
	if hasCoordinates(l.Latitude, l.Longitude) && hasCoordinates(c.Latitude, c.Longitude) &&
		math.Abs(l.Latitude-c.Latitude) < d.coordTol &&
		math.Abs(l.Longitude-c.Longitude) < d.coordTol {
		return domain.TierGeo
	}

	return domain.TierNone
}

func (d *Deduplicator) withinTolerance(a, b, tol float64) bool {
	if a == b {
		return true
	}
	base := math.Max(math.Abs(a), math.Abs(b))
	if base == 0 {
		return true
	}
	return math.Abs(a-b)/base <= tol
}

func sameLocality(l domain.NormalizedListing, c domain.ExistingProperty) bool {
	if !strings.EqualFold(l.City, c.City) {
		return false
	}
	if l.District == "" || c.District == "" {
		return true
	}
	return strings.EqualFold(l.District, c.District)
}

func hasCoordinates(lat, lng float64) bool {
	return lat != 0 || lng != 0
}

// pickBest orders matches by address tier before geo tier, then by
// owner priority when that rule is on, then by recency.
func (d *Deduplicator) pickBest(matches []scoredMatch) scoredMatch {
	best := matches[0]
	for _, m := range matches[1:] {
		if m.tier < best.tier {
			best = m
			continue
		}
		if m.tier > best.tier {
			continue
		}
		if d.ownerPriority {
			mr, br := ownerRank(m.property.Owner), ownerRank(best.property.Owner)
			if mr != br {
				if mr > br {
					best = m
				}
				continue
			}
		}
		if m.property.LastScraped.After(best.property.LastScraped) {
			best = m
		}
	}
	return best
}

func ownerRank(o domain.OwnerClass) int {
	switch o {
	case domain.OwnerIndividual:
		return 2
	case domain.OwnerAgency:
		return 1
	default:
		return 0
	}
}

// incomingWins applies the replacement rule: an individual listing
// replaces an agency one; equal rank resolves to the fresher record,
// and the incoming record is fresher by construction. With owner
// priority off, only recency counts.
func (d *Deduplicator) incomingWins(l domain.NormalizedListing, existing domain.ExistingProperty) bool {
	if d.ownerPriority {
		ir, er := ownerRank(l.Owner), ownerRank(existing.Owner)
		if ir != er {
			return ir > er
		}
	}
	return !l.ScrapedAt.Before(existing.LastScraped)
}

func priceChanged(l domain.NormalizedListing, existing domain.ExistingProperty) bool {
	return l.Currency != existing.Currency || l.Price != existing.Price
}

func (d *Deduplicator) lookupByID(ctx context.Context, l domain.NormalizedListing) (*domain.ExistingProperty, error) {
	d.mu.Lock()
	if cached, ok := d.seen[l.ExternalID+"|"+l.Source]; ok {
		d.mu.Unlock()
		return &cached, nil
	}
	d.mu.Unlock()

	return d.storage.FindByExternalID(ctx, l.ExternalID, l.Source)
}

func (d *Deduplicator) remember(l domain.NormalizedListing, id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[l.ExternalID+"|"+l.Source] = domain.ExistingProperty{
		ID:          id,
		ExternalID:  l.ExternalID,
		Source:      l.Source,
		Address:     l.Address,
		City:        l.City,
		District:    l.District,
		Area:        l.Area,
		Price:       l.Price,
		Currency:    l.Currency,
		Latitude:    l.Latitude,
		Longitude:   l.Longitude,
		Owner:       l.Owner,
		LastScraped: l.ScrapedAt,
	}
}

// inRunCandidates exposes rows resolved earlier in this run for the
// fuzzy tiers, so intra-run duplicates collapse too.
func (d *Deduplicator) inRunCandidates(l domain.NormalizedListing) []domain.ExistingProperty {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []domain.ExistingProperty
	for _, c := range d.seen {
		if strings.EqualFold(c.City, l.City) {
			out = append(out, c)
		}
	}
	return out
}

// NormalizeAddress case-folds, strips punctuation and collapses
// whitespace, so "Vaja-Pshavela 25" and "vaja pshavela  25" compare
// equal.
func NormalizeAddress(addr string) string {
	// cases.Caser carries state, so each call folds with its own.
	folded := cases.Fold().String(addr)

	var b strings.Builder
	b.Grow(len(folded))
	lastSpace := true
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
