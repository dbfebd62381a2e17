package usecase

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"listing-ingest-service/internal/constants"
	"listing-ingest-service/internal/core/domain"
)

// Normalizer turns raw source records into validated canonical
// listings. It is pure: no I/O, deterministic for a given input.
type Normalizer struct {
	propertyTypes map[int]string
	dealTypes     map[int]string
	currencies    map[int]string
	priceRanges   map[string][2]float64

	latMin, latMax float64
	lngMin, lngMax float64

	ownerWords  []string
	agencyWords []string
}

func NewNormalizer() *Normalizer {
	return &Normalizer{
		propertyTypes: constants.PropertyTypeCodes,
		dealTypes:     constants.DealTypeCodes,
		currencies:    constants.CurrencyCodes,
		priceRanges:   constants.PriceRanges,
		latMin:        constants.LatMin,
		latMax:        constants.LatMax,
		lngMin:        constants.LngMin,
		lngMax:        constants.LngMax,
		ownerWords:    constants.OwnerIndicators,
		agencyWords:   constants.AgencyIndicators,
	}
}

// Normalize maps codes, parses loose numerics and validates the
// record. A returned error is always an UnmappedCodeError or a
// ValidationError; the caller excludes the record and counts it.
func (n *Normalizer) Normalize(raw domain.RawListing) (domain.NormalizedListing, error) {
	var out domain.NormalizedListing

	if raw.ExternalID <= 0 {
		return out, &domain.ValidationError{Field: "external_id", Reason: "missing"}
	}

	propertyType, ok := n.propertyTypes[raw.RealEstateTypeID]
	if !ok {
		return out, &domain.UnmappedCodeError{Field: "property_type", Code: raw.RealEstateTypeID}
	}
	dealType, ok := n.dealTypes[raw.DealTypeID]
	if !ok {
		return out, &domain.UnmappedCodeError{Field: "deal_type", Code: raw.DealTypeID}
	}

	price, currency, err := n.pickPrice(raw.Prices)
	if err != nil {
		return out, err
	}

	area := safeFloat(raw.Area)
	if area <= 0 {
		return out, &domain.ValidationError{Field: "area", Reason: fmt.Sprintf("must be positive, got %q", raw.Area)}
	}

	if raw.HasLocation {
		if raw.Latitude < n.latMin || raw.Latitude > n.latMax {
			return out, &domain.ValidationError{Field: "latitude", Reason: fmt.Sprintf("%.4f outside %.1f..%.1f", raw.Latitude, n.latMin, n.latMax)}
		}
		if raw.Longitude < n.lngMin || raw.Longitude > n.lngMax {
			return out, &domain.ValidationError{Field: "longitude", Reason: fmt.Sprintf("%.4f outside %.1f..%.1f", raw.Longitude, n.lngMin, n.lngMax)}
		}
	}

	floor := safeInt(raw.Floor)
	totalFloors := safeInt(raw.TotalFloors)
	if totalFloors > 0 && floor > totalFloors {
		return out, &domain.ValidationError{Field: "floor", Reason: fmt.Sprintf("%d above total floors %d", floor, totalFloors)}
	}

	scrapedAt := raw.FetchedAt
	if scrapedAt.IsZero() {
		scrapedAt = time.Now().UTC()
	}

	out = domain.NormalizedListing{
		ExternalID:   strconv.FormatInt(raw.ExternalID, 10),
		Source:       raw.Source,
		Title:        strings.TrimSpace(raw.Title),
		Description:  strings.TrimSpace(raw.Description),
		Price:        price,
		Currency:     currency,
		PropertyType: propertyType,
		DealType:     dealType,
		Area:         area,
		Rooms:        safeInt(raw.Rooms),
		Bedrooms:     safeInt(raw.Bedrooms),
		Bathrooms:    safeInt(raw.Bathrooms),
		Floor:        floor,
		TotalFloors:  totalFloors,
		Address:      strings.TrimSpace(raw.Address),
		City:         strings.TrimSpace(raw.City),
		District:     strings.TrimSpace(raw.District),
		UrbanArea:    strings.TrimSpace(raw.UrbanArea),
		Latitude:     raw.Latitude,
		Longitude:    raw.Longitude,
		Owner:        n.classifyOwner(raw),
		Amenities:    raw.Amenities,
		ScrapedAt:    scrapedAt,
	}
	if out.Source == "" {
		out.Source = constants.Source
	}

	out.Images = normalizeImages(raw.Images)
	out.Parameters = normalizeParameters(raw.Parameters)

	return out, nil
}

// pickPrice chooses the source-currency price: the entry whose
// currency code the source marks as the listing's own. GEL is
// preferred when several are present, then USD, then EUR.
func (n *Normalizer) pickPrice(prices map[int]domain.RawPrice) (float64, string, error) {
	if len(prices) == 0 {
		return 0, "", &domain.ValidationError{Field: "price", Reason: "missing"}
	}

	for _, code := range []int{1, 2, 3} {
		p, ok := prices[code]
		if !ok || p.Total <= 0 {
			continue
		}
		currency := n.currencies[code]
		if band, ok := n.priceRanges[currency]; ok {
			if p.Total < band[0] || p.Total > band[1] {
				return 0, "", &domain.ValidationError{
					Field:  "price",
					Reason: fmt.Sprintf("%.2f %s outside %.0f..%.0f", p.Total, currency, band[0], band[1]),
				}
			}
		}
		return p.Total, currency, nil
	}

	for code := range prices {
		if _, ok := n.currencies[code]; !ok {
			return 0, "", &domain.UnmappedCodeError{Field: "currency", Code: code}
		}
	}
	return 0, "", &domain.ValidationError{Field: "price", Reason: "no positive amount"}
}

// classifyOwner scans title, description and the seller name for the
// indicator word lists. A hit on both sides, or none, is unknown.
func (n *Normalizer) classifyOwner(raw domain.RawListing) domain.OwnerClass {
	if strings.EqualFold(raw.UserType, "physical") {
		return domain.OwnerIndividual
	}
	if strings.EqualFold(raw.UserType, "agency") {
		return domain.OwnerAgency
	}

	haystack := strings.ToLower(raw.Title + " " + raw.Description + " " + raw.SellerName)

	ownerHit := containsAny(haystack, n.ownerWords)
	agencyHit := containsAny(haystack, n.agencyWords)

	// Many active statements under one seller is an agency signal on
	// its own.
	if raw.StatementsCount > 5 {
		agencyHit = true
	}

	switch {
	case ownerHit && !agencyHit:
		return domain.OwnerIndividual
	case agencyHit && !ownerHit:
		return domain.OwnerAgency
	default:
		return domain.OwnerUnknown
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func normalizeImages(raws []domain.RawImage) []domain.ImageDescriptor {
	out := make([]domain.ImageDescriptor, 0, len(raws))
	primarySeen := false
	for _, img := range raws {
		url := img.LargeURL
		if url == "" {
			url = img.ThumbURL
		}
		if url == "" {
			continue
		}
		primary := img.IsMain && !primarySeen
		if primary {
			primarySeen = true
		}
		out = append(out, domain.ImageDescriptor{
			URL:     url,
			Ordinal: len(out),
			Primary: primary,
		})
	}
	// Exactly one primary per listing.
	if len(out) > 0 && !primarySeen {
		out[0].Primary = true
	}
	return out
}

func normalizeParameters(raws []domain.RawParameter) []domain.ParameterValue {
	out := make([]domain.ParameterValue, 0, len(raws))
	seen := make(map[int64]bool, len(raws))
	for _, p := range raws {
		if p.ID == 0 || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, domain.ParameterValue{
			ParameterID: p.ID,
			Key:         p.Key,
			Value:       p.Value,
			SelectName:  p.SelectName,
			DisplayName: p.DisplayName,
		})
	}
	return out
}

// safeInt parses loose source numerics: "4" is 4, "10+" is 10, empty
// or junk is 0.
func safeInt(s string) int {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "+"))
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			return int(f)
		}
		return 0
	}
	return v
}

// safeFloat is safeInt's float counterpart.
func safeFloat(s string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "+"))
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
