package configs

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"listing-ingest-service/internal/constants"
)

// DBconfig holds the database configuration.
type DBconfig struct {
	URL string
}

type FetcherConfig struct {
	BaseURL            string
	RateLimitPerMinute int
	MaxRetries         int
	PageSize           int
	MaxPages           int
	// MaxRecords caps how many raw records one run feeds downstream.
	// 0 means unlimited.
	MaxRecords  int
	UserAgents  []string
	Concurrency int
}

type DedupConfig struct {
	// Enabled turns duplicate resolution off entirely; every record
	// lands through the identity upsert.
	Enabled bool
	// OwnerPriority gates the individual-beats-agency rule; with it
	// off, ties resolve on recency alone.
	OwnerPriority       bool
	AreaTolerance       float64
	PriceTolerance      float64
	CoordinateTolerance float64
	GeohashPrecision    uint
}

type ConverterConfig struct {
	LiveURL  string
	CacheTTL int // seconds
	// FallbackGEL quotes GEL per one unit of the currency.
	FallbackGEL map[string]float64
}

type PersistenceConfig struct {
	BatchSize   int
	CleanupDays int
	// DownloadImages gates image persistence; with it off, listings
	// are stored without their image set.
	DownloadImages bool
}

type EnrichmentConfig struct {
	IntervalSeconds int
	BatchLimit      int
	Locales         []string
}

type ReportConfig struct {
	Dir string
}

type RabbitMQConfig struct {
	Enabled  bool
	URL      string
	Exchange string
}

type RestConfig struct {
	Addr string
}

type StdoutLogConfig struct {
	Level string
}

type FluentBitConfig struct {
	Host    string
	Port    int
	Enabled bool
	Level   string
}

// AppConfig holds the whole application configuration.
type AppConfig struct {
	AppName      string
	Database     DBconfig
	Fetcher      FetcherConfig
	Dedup        DedupConfig
	Converter    ConverterConfig
	Persistence  PersistenceConfig
	Enrichment   EnrichmentConfig
	Report       ReportConfig
	RabbitMQ     RabbitMQConfig
	Rest         RestConfig
	FluentBit    FluentBitConfig
	StdoutLogger StdoutLogConfig
}

// LoadConfig loads configuration from environment variables. A missing
// .env file is not an error; the environment may carry everything.
func LoadConfig(envPath ...string) (*AppConfig, error) {
	var err error
	if len(envPath) > 0 {
		err = godotenv.Load(envPath[0])
	} else {
		err = godotenv.Load()
	}
	if err != nil {
		log.Printf("Info: could not load .env file (path: %v): %v\n", envPath, err)
	}

	cfg := &AppConfig{}

	cfg.AppName = getEnvAsString("APP_NAME", "listing-ingest-service")

	cfg.Database.URL = os.Getenv("DATABASE_URL")

	cfg.Fetcher.BaseURL = getEnvAsString("MYHOME_BASE_URL", constants.StatementsEndpoint)
	cfg.Fetcher.RateLimitPerMinute = getEnvAsInt("RATE_LIMIT_PER_MINUTE", 60)
	cfg.Fetcher.MaxRetries = getEnvAsInt("FETCH_MAX_RETRIES", 3)
	cfg.Fetcher.PageSize = getEnvAsInt("FETCH_PAGE_SIZE", 30)
	cfg.Fetcher.MaxPages = getEnvAsInt("FETCH_MAX_PAGES", 0)
	cfg.Fetcher.MaxRecords = getEnvAsInt("MAX_RECORDS_PER_RUN", 0)
	cfg.Fetcher.Concurrency = getEnvAsInt("PIPELINE_CONCURRENCY", 4)
	cfg.Fetcher.UserAgents = getEnvAsSlice("FETCH_USER_AGENTS", constants.DefaultUserAgents)

	cfg.Dedup.Enabled = getEnvAsBool("SCRAPER_ENABLE_DEDUP", true)
	cfg.Dedup.OwnerPriority = getEnvAsBool("SCRAPER_OWNER_PRIORITY", true)
	cfg.Dedup.AreaTolerance = getEnvAsFloat("DEDUP_AREA_TOLERANCE", constants.AreaTolerance)
	cfg.Dedup.PriceTolerance = getEnvAsFloat("DEDUP_PRICE_TOLERANCE", constants.PriceTolerance)
	cfg.Dedup.CoordinateTolerance = getEnvAsFloat("DEDUP_COORDINATE_TOLERANCE", constants.CoordinateTolerance)
	cfg.Dedup.GeohashPrecision = uint(getEnvAsInt("DEDUP_GEOHASH_PRECISION", constants.GeohashPrecision))

	cfg.Converter.LiveURL = getEnvAsString("NBG_RATES_URL", "https://nbg.gov.ge/gw/api/ct/monetarypolicy/currencies/en/json")
	cfg.Converter.CacheTTL = getEnvAsInt("RATES_CACHE_TTL_SECONDS", 3600)
	cfg.Converter.FallbackGEL = constants.FallbackRatesGEL

	cfg.Persistence.BatchSize = getEnvAsInt("PERSIST_BATCH_SIZE", 50)
	cfg.Persistence.CleanupDays = getEnvAsInt("CLEANUP_DAYS", 0)
	cfg.Persistence.DownloadImages = getEnvAsBool("SCRAPER_DOWNLOAD_IMAGES", true)

	cfg.Enrichment.IntervalSeconds = getEnvAsInt("ENRICH_INTERVAL_SECONDS", 300)
	cfg.Enrichment.BatchLimit = getEnvAsInt("ENRICH_BATCH_LIMIT", 20)
	cfg.Enrichment.Locales = getEnvAsSlice("ENRICH_LOCALES", []string{"en", "ru"})

	cfg.Report.Dir = getEnvAsString("REPORT_DIR", "reports")

	cfg.RabbitMQ.Enabled = getEnvAsBool("RABBITMQ_ENABLED", false)
	if cfg.RabbitMQ.Enabled {
		cfg.RabbitMQ.URL = os.Getenv("RABBITMQ_URL")
		if cfg.RabbitMQ.URL == "" {
			log.Println("WARNING: RABBITMQ_ENABLED is true, but RABBITMQ_URL is not set. Disabling RabbitMQ.")
			cfg.RabbitMQ.Enabled = false
		}
		cfg.RabbitMQ.Exchange = getEnvAsString("RABBITMQ_REPORT_EXCHANGE", "ingest.reports")
	}

	cfg.Rest.Addr = getEnvAsString("REST_ADDR", ":8080")

	cfg.FluentBit.Enabled = getEnvAsBool("FLUENTBIT_ENABLED", false)
	if cfg.FluentBit.Enabled {
		cfg.FluentBit.Host = os.Getenv("FLUENTBIT_HOST")
		if cfg.FluentBit.Host == "" {
			log.Println("WARNING: FLUENTBIT_ENABLED is true, but FLUENTBIT_HOST is not set. Disabling Fluent Bit.")
			cfg.FluentBit.Enabled = false
		}
		cfg.FluentBit.Port = getEnvAsInt("FLUENTBIT_PORT", 24224)
		cfg.FluentBit.Level = getEnvAsString("FLUENTBIT_LOG_LEVEL", "info")
	}

	cfg.StdoutLogger.Level = getEnvAsString("STDOUT_LOG_LEVEL", "debug")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the service relies on.
func (c *AppConfig) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if c.Fetcher.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.Fetcher.RateLimitPerMinute)
	}
	if c.Fetcher.MaxRetries < 0 {
		return fmt.Errorf("FETCH_MAX_RETRIES must not be negative, got %d", c.Fetcher.MaxRetries)
	}
	if c.Fetcher.Concurrency <= 0 {
		return fmt.Errorf("PIPELINE_CONCURRENCY must be positive, got %d", c.Fetcher.Concurrency)
	}
	if c.Persistence.BatchSize <= 0 {
		return fmt.Errorf("PERSIST_BATCH_SIZE must be positive, got %d", c.Persistence.BatchSize)
	}
	if c.Dedup.AreaTolerance < 0 || c.Dedup.PriceTolerance < 0 {
		return fmt.Errorf("dedup tolerances must not be negative")
	}
	if c.Dedup.GeohashPrecision == 0 || c.Dedup.GeohashPrecision > 12 {
		return fmt.Errorf("DEDUP_GEOHASH_PRECISION must be in 1..12, got %d", c.Dedup.GeohashPrecision)
	}
	if c.Fetcher.MaxRecords < 0 {
		return fmt.Errorf("MAX_RECORDS_PER_RUN must not be negative, got %d", c.Fetcher.MaxRecords)
	}
	if c.Enrichment.BatchLimit <= 0 {
		return fmt.Errorf("ENRICH_BATCH_LIMIT must be positive, got %d", c.Enrichment.BatchLimit)
	}
	if len(c.Enrichment.Locales) == 0 {
		return fmt.Errorf("ENRICH_LOCALES must name at least one locale")
	}
	// The storage schema carries dedicated columns per locale; an
	// unsupported locale would be fetched and then dropped on write.
	for _, loc := range c.Enrichment.Locales {
		if loc != "en" && loc != "ru" {
			return fmt.Errorf("ENRICH_LOCALES: unsupported locale %q (supported: en, ru)", loc)
		}
	}
	return nil
}

// getEnvAsString reads an environment variable or returns the default.
func getEnvAsString(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads an environment variable as int or returns the
// default, logging when the value does not parse.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	valueInt, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: environment variable %s (value: %s) could not be parsed as int: %v. Using default value: %d\n", key, valueStr, err, defaultValue)
		return defaultValue
	}
	return valueInt
}

// getEnvAsFloat reads an environment variable as float64 or returns
// the default.
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	valueFloat, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: environment variable %s (value: %s) could not be parsed as float: %v. Using default value: %g\n", key, valueStr, err, defaultValue)
		return defaultValue
	}
	return valueFloat
}

// getEnvAsBool reads an environment variable as bool or returns the
// default.
func getEnvAsBool(key string, defaultValue bool) bool {
	valStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valBool, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Warning: environment variable %s (value: %s) could not be parsed as bool: %v. Using default value: %t\n", key, valStr, err, defaultValue)
		return defaultValue
	}
	return valBool
}

// getEnvAsSlice reads a comma-separated environment variable.
func getEnvAsSlice(key string, defaultValue []string) []string {
	valStr, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(valStr) == "" {
		return defaultValue
	}
	parts := strings.Split(valStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
