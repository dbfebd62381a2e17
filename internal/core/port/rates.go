package port

import "context"

// RateSourcePort supplies exchange rates quoted as GEL per one unit of
// the given currency.
type RateSourcePort interface {
	RateGEL(ctx context.Context, currency string) (float64, error)
}

// CurrencyConverterPort converts amounts between currencies. It never
// fails for the currencies the source emits; on live-rate outage it
// falls back to the static table.
type CurrencyConverterPort interface {
	Convert(ctx context.Context, amount float64, from, to string) (float64, error)
}
