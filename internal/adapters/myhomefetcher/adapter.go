package myhomefetcher

import (
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"

	"listing-ingest-service/internal/configs"
	"listing-ingest-service/internal/core/domain"
)

// MyhomeFetcherAdapter owns all traffic to the MyHome statements API.
// The parent collector carries the shared limit rules; every request
// runs on a clone with its own handlers.
type MyhomeFetcherAdapter struct {
	collector *colly.Collector
	baseURL   string

	// limiter paces requests from RATE_LIMIT_PER_MINUTE; Wait blocks,
	// never spins.
	limiter    *rate.Limiter
	maxRetries int
	pageSize   int

	userAgents []string
	uaCursor   atomic.Uint64

	run *domain.RunContext
}

func NewMyhomeFetcherAdapter(cfg configs.FetcherConfig, run *domain.RunContext) (*MyhomeFetcherAdapter, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("MyhomeFetcherAdapter: invalid base URL %q: %w", cfg.BaseURL, err)
	}

	c := colly.NewCollector(
		colly.AllowedDomains(u.Host, u.Hostname()),
		colly.AllowURLRevisit(),
	)

	err = c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("MyhomeFetcherAdapter: failed to set limit rule: %w", err)
	}

	perSecond := rate.Limit(float64(cfg.RateLimitPerMinute) / 60.0)

	return &MyhomeFetcherAdapter{
		collector:  c,
		baseURL:    cfg.BaseURL,
		limiter:    rate.NewLimiter(perSecond, 1),
		maxRetries: cfg.MaxRetries,
		pageSize:   cfg.PageSize,
		userAgents: cfg.UserAgents,
		run:        run,
	}, nil
}

// nextIdentity rotates through the user-agent pool round-robin.
func (a *MyhomeFetcherAdapter) nextIdentity() string {
	if len(a.userAgents) == 0 {
		return ""
	}
	n := a.uaCursor.Add(1)
	return a.userAgents[int(n-1)%len(a.userAgents)]
}

// applyHeaders sets the browser-shaped header set the API expects.
func (a *MyhomeFetcherAdapter) applyHeaders(r *colly.Request, locale string) {
	r.Headers.Set("accept", "application/json, text/plain, */*")
	r.Headers.Set("accept-language", locale+";q=0.9,ka;q=0.8")
	r.Headers.Set("locale", locale)
	r.Headers.Set("origin", "https://www.myhome.ge")
	r.Headers.Set("referer", "https://www.myhome.ge/")
	r.Headers.Set("x-website-key", "myhome")
	if ua := a.nextIdentity(); ua != "" {
		r.Headers.Set("User-Agent", ua)
	}
}

// backoffDelay grows exponentially per attempt: 1s, 2s, 4s...
func backoffDelay(attempt int) time.Duration {
	return time.Second << attempt
}
