package domain

import (
	"time"

	"github.com/google/uuid"
)

// RawListing is the source representation of a single statement as it
// comes off the MyHome API, before any validation. It is transient and
// discarded after normalization.
type RawListing struct {
	ExternalID  int64
	Source      string
	Title       string
	Description string

	RealEstateTypeID int
	DealTypeID       int

	// Prices keyed by the source currency code (1=GEL, 2=USD, 3=EUR).
	Prices map[int]RawPrice

	Address      string
	City         string
	District     string
	UrbanArea    string
	Latitude     float64
	Longitude    float64
	HasLocation  bool

	// Numeric-ish fields arrive as strings ("4", "10+", "").
	Area        string
	Rooms       string
	Bedrooms    string
	Bathrooms   string
	Floor       string
	TotalFloors string

	SellerName      string
	UserType        string
	StatementsCount int

	Images     []RawImage
	Parameters []RawParameter
	Amenities  []string

	FetchedAt time.Time
}

type RawPrice struct {
	Total     float64
	PerSquare float64
}

type RawImage struct {
	LargeURL string
	ThumbURL string
	IsMain   bool
}

type RawParameter struct {
	ID          int64
	Key         string
	Value       string
	SelectName  string
	DisplayName string
}

// OwnerClass is the party classification of a listing.
type OwnerClass string

const (
	OwnerIndividual OwnerClass = "individual"
	OwnerAgency     OwnerClass = "agency"
	OwnerUnknown    OwnerClass = "unknown"
)

// NormalizedListing is the canonical, source-agnostic form of a
// listing that passed validation.
type NormalizedListing struct {
	ExternalID string
	Source     string

	Title       string
	Description string

	Price    float64
	Currency string
	// PriceUSD is the derived secondary-currency amount; nil until the
	// converter has run.
	PriceUSD *float64

	PropertyType string
	DealType     string

	Area        float64
	Rooms       int
	Bedrooms    int
	Bathrooms   int
	Floor       int
	TotalFloors int

	Address   string
	City      string
	District  string
	UrbanArea string
	Latitude  float64
	Longitude float64

	Owner OwnerClass

	Images     []ImageDescriptor
	Parameters []ParameterValue
	Amenities  []string

	ScrapedAt time.Time
}

type ImageDescriptor struct {
	URL     string
	Ordinal int
	Primary bool
}

type ParameterValue struct {
	ParameterID int64
	Key         string
	Value       string
	SelectName  string
	DisplayName string
}

// ExistingProperty is the stored-row summary the dedup engine works
// against. It carries only the fields the match tiers and the
// owner-priority rule need.
type ExistingProperty struct {
	ID          uuid.UUID
	ExternalID  string
	Source      string
	Address     string
	City        string
	District    string
	Area        float64
	Price       float64
	Currency    string
	Latitude    float64
	Longitude   float64
	Owner       OwnerClass
	LastScraped time.Time
	UpdatedAt   time.Time
}

// ResolvedListing is a normalized listing together with its dedup
// decision, ready for persistence.
type ResolvedListing struct {
	Listing  NormalizedListing
	Decision DedupDecision
	// AppendPrice is set when the incoming price differs from the
	// stored one (or the row is new), so persistence appends a price
	// history row.
	AppendPrice bool
}
