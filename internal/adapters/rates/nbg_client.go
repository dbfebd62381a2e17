package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"listing-ingest-service/internal/contextkeys"
	"listing-ingest-service/internal/core/port"
)

// NBGRateSource pulls official GEL exchange rates from the National
// Bank of Georgia JSON API and caches them for a TTL. All methods are
// safe for concurrent use.
type NBGRateSource struct {
	url    string
	ttl    time.Duration
	client *http.Client

	mu        sync.Mutex
	rates     map[string]float64
	fetchedAt time.Time
}

func NewNBGRateSource(url string, ttl time.Duration) *NBGRateSource {
	return &NBGRateSource{
		url:    url,
		ttl:    ttl,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// The NBG feed is a single-element array:
// [{"currencies": [{"code": "USD", "rate": 2.71, "quantity": 1}, ...]}]
type nbgDocument struct {
	Currencies []nbgCurrency `json:"currencies"`
}

type nbgCurrency struct {
	Code     string  `json:"code"`
	Rate     float64 `json:"rate"`
	Quantity float64 `json:"quantity"`
}

// RateGEL returns GEL per one unit of the currency.
func (s *NBGRateSource) RateGEL(ctx context.Context, currency string) (float64, error) {
	if currency == "GEL" {
		return 1.0, nil
	}

	rates, err := s.currentRates(ctx)
	if err != nil {
		return 0, err
	}

	rate, ok := rates[currency]
	if !ok {
		return 0, fmt.Errorf("NBG feed has no rate for %s", currency)
	}
	return rate, nil
}

func (s *NBGRateSource) currentRates(ctx context.Context) (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rates != nil && time.Since(s.fetchedAt) < s.ttl {
		return s.rates, nil
	}

	rates, err := s.fetch(ctx)
	if err != nil {
		// A stale cache beats no cache while the feed is down.
		if s.rates != nil {
			contextkeys.LoggerFromContext(ctx).Warn("NBG fetch failed, serving stale rates", port.Fields{
				"age_s": time.Since(s.fetchedAt).Seconds(),
				"cause": err.Error(),
			})
			return s.rates, nil
		}
		return nil, err
	}

	s.rates = rates
	s.fetchedAt = time.Now()
	return s.rates, nil
}

func (s *NBGRateSource) fetch(ctx context.Context) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build NBG request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("NBG request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("NBG returned status %d", resp.StatusCode)
	}

	var docs []nbgDocument
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decode NBG response: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("NBG response is empty")
	}

	rates := make(map[string]float64, len(docs[0].Currencies))
	for _, c := range docs[0].Currencies {
		if c.Rate <= 0 {
			continue
		}
		qty := c.Quantity
		if qty <= 0 {
			qty = 1
		}
		rates[c.Code] = c.Rate / qty
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("NBG response carried no usable rates")
	}
	return rates, nil
}
