package usecase

import (
	"context"
	"fmt"
	"math"

	"listing-ingest-service/internal/contextkeys"
	"listing-ingest-service/internal/core/domain"
	"listing-ingest-service/internal/core/port"
)

// CurrencyConverter converts listing prices through GEL as the pivot
// currency. The live source is asked first; any failure falls back
// silently to the static table, so conversion never sinks a record.
type CurrencyConverter struct {
	live        port.RateSourcePort
	fallbackGEL map[string]float64
}

func NewCurrencyConverter(live port.RateSourcePort, fallbackGEL map[string]float64) *CurrencyConverter {
	return &CurrencyConverter{live: live, fallbackGEL: fallbackGEL}
}

func (c *CurrencyConverter) Convert(ctx context.Context, amount float64, from, to string) (float64, error) {
	if from == to {
		return roundHalfUp(amount), nil
	}

	fromRate, err := c.rateGEL(ctx, from)
	if err != nil {
		return 0, err
	}
	toRate, err := c.rateGEL(ctx, to)
	if err != nil {
		return 0, err
	}

	return roundHalfUp(amount * fromRate / toRate), nil
}

func (c *CurrencyConverter) rateGEL(ctx context.Context, currency string) (float64, error) {
	if c.live != nil {
		rate, err := c.live.RateGEL(ctx, currency)
		if err == nil && rate > 0 {
			return rate, nil
		}
		if err != nil {
			logger := contextkeys.LoggerFromContext(ctx)
			logger.Warn("live rate source failed, using static rate", port.Fields{
				"currency": currency,
				"cause":    err.Error(),
			})
		}
	}

	rate, ok := c.fallbackGEL[currency]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("currency %s: %w", currency, domain.ErrConversionUnavailable)
	}
	return rate, nil
}

// roundHalfUp rounds to 2 decimals with .005 going away from zero.
func roundHalfUp(v float64) float64 {
	if v < 0 {
		return -math.Floor(-v*100+0.5) / 100
	}
	return math.Floor(v*100+0.5) / 100
}
