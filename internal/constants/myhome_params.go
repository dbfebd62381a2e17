package constants

// Source is the canonical identifier stored alongside every record
// ingested from the MyHome API.
const Source = "myhome.ge"

// StatementsEndpoint is the paginated listing search API.
const StatementsEndpoint = "https://api-statements.tnet.ge/v1/statements"

// Integer codes used by the MyHome statements API. Unknown codes are a
// normalization error, never a silent default.
var (
	PropertyTypeCodes = map[int]string{
		1: "apartment",
		2: "house",
		3: "commercial",
		4: "country_house",
		5: "land_plot",
		6: "hotel",
	}

	DealTypeCodes = map[int]string{
		1: "sale",
		2: "rent",
		3: "lease",
		4: "mortgage",
		7: "daily_rent",
	}

	CurrencyCodes = map[int]string{
		1: "GEL",
		2: "USD",
		3: "EUR",
	}
)

// Georgian bounding box. Listings geolocated outside of it are
// rejected as invalid.
const (
	LatMin = 40.0
	LatMax = 43.6
	LngMin = 39.8
	LngMax = 46.7
)

// CoordinateTolerance is roughly 10 meters at Georgian latitudes, the
// default for the geo-proximity dedup tier.
const CoordinateTolerance = 0.0001

// GeohashPrecision buckets coordinates into ~150x150m cells for
// candidate lookup. The exact distance check happens in memory.
const GeohashPrecision = 7

// Default similarity tolerances for the fuzzy dedup tiers.
const (
	AreaTolerance  = 0.02
	PriceTolerance = 0.05
)

// Static exchange rates used when the live rate source is down.
// Quoted as GEL per one unit of the foreign currency.
var FallbackRatesGEL = map[string]float64{
	"GEL": 1.0,
	"USD": 2.71,
	"EUR": 2.95,
}

// Price sanity bands per currency, inclusive.
var PriceRanges = map[string][2]float64{
	"USD": {50, 50000},
	"GEL": {135, 135000},
	"EUR": {45, 45000},
}

// Word lists used to classify the listing party. Matching is
// case-insensitive substring search over title, description and the
// seller name.
var (
	OwnerIndicators  = []string{"owner", "individual", "private", "person", "მესაკუთრე"}
	AgencyIndicators = []string{"agency", "realtor", "broker", "company", "estate", "ltd", "llc", "სააგენტო"}
)

// DefaultUserAgents is the identity rotation pool. Overridable via
// configuration.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
}

// SystemUserEmail identifies the reserved account that owns all
// scraped records.
const SystemUserEmail = "system@scraper.com"
