package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"listing-ingest-service/internal/constants"
	"listing-ingest-service/internal/core/domain"
)

type fakeRateSource struct {
	rates map[string]float64
	err   error
	calls int
}

func (f *fakeRateSource) RateGEL(_ context.Context, currency string) (float64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if r, ok := f.rates[currency]; ok {
		return r, nil
	}
	return 0, fmt.Errorf("no rate for %s", currency)
}

func TestConvertStaticFallback(t *testing.T) {
	down := &fakeRateSource{err: fmt.Errorf("gateway timeout")}
	c := NewCurrencyConverter(down, constants.FallbackRatesGEL)

	got, err := c.Convert(context.Background(), 1000, "GEL", "USD")
	if err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}
	if got != 369.00 {
		t.Errorf("Convert(1000 GEL -> USD) = %v, want 369.00", got)
	}
}

func TestConvertLiveRatePreferred(t *testing.T) {
	live := &fakeRateSource{rates: map[string]float64{"GEL": 1.0, "USD": 2.50}}
	c := NewCurrencyConverter(live, constants.FallbackRatesGEL)

	got, err := c.Convert(context.Background(), 1000, "GEL", "USD")
	if err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}
	if got != 400.00 {
		t.Errorf("Convert with live rate = %v, want 400.00", got)
	}
	if live.calls == 0 {
		t.Error("live source was never consulted")
	}
}

func TestConvertSameCurrency(t *testing.T) {
	c := NewCurrencyConverter(nil, constants.FallbackRatesGEL)

	got, err := c.Convert(context.Background(), 1234.567, "USD", "USD")
	if err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}
	if got != 1234.57 {
		t.Errorf("same-currency conversion = %v, want 1234.57", got)
	}
}

func TestConvertToGEL(t *testing.T) {
	c := NewCurrencyConverter(nil, constants.FallbackRatesGEL)

	got, err := c.Convert(context.Background(), 100, "USD", "GEL")
	if err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}
	if got != 271.00 {
		t.Errorf("Convert(100 USD -> GEL) = %v, want 271.00", got)
	}
}

func TestConvertUnknownCurrency(t *testing.T) {
	c := NewCurrencyConverter(nil, constants.FallbackRatesGEL)

	_, err := c.Convert(context.Background(), 100, "JPY", "USD")
	if !errors.Is(err, domain.ErrConversionUnavailable) {
		t.Errorf("error = %v, want ErrConversionUnavailable", err)
	}
}

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{369.0036, 369.00},
		{369.0051, 369.01},
		{369.004999, 369.00},
		{0, 0},
		{-2.0051, -2.01},
	}
	for _, tt := range tests {
		if got := roundHalfUp(tt.in); got != tt.want {
			t.Errorf("roundHalfUp(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
