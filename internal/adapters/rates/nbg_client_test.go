package rates

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

const nbgBody = `[{"currencies": [
	{"code": "USD", "rate": 2.71, "quantity": 1},
	{"code": "EUR", "rate": 2.95, "quantity": 1},
	{"code": "JPY", "rate": 1.85, "quantity": 100}
]}]`

func TestRateGEL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, nbgBody)
	}))
	defer srv.Close()

	src := NewNBGRateSource(srv.URL, time.Hour)

	tests := []struct {
		currency string
		want     float64
	}{
		{"GEL", 1.0},
		{"USD", 2.71},
		{"EUR", 2.95},
		{"JPY", 0.0185}, // quoted per 100 units
	}
	for _, tt := range tests {
		got, err := src.RateGEL(context.Background(), tt.currency)
		if err != nil {
			t.Fatalf("RateGEL(%s) returned error: %v", tt.currency, err)
		}
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("RateGEL(%s) = %v, want %v", tt.currency, got, tt.want)
		}
	}
}

func TestRateGELUnknownCurrency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, nbgBody)
	}))
	defer srv.Close()

	src := NewNBGRateSource(srv.URL, time.Hour)
	if _, err := src.RateGEL(context.Background(), "XXX"); err == nil {
		t.Error("want error for a currency the feed does not carry")
	}
}

func TestRatesAreCachedWithinTTL(t *testing.T) {
	var mu sync.Mutex
	hits := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		fmt.Fprint(w, nbgBody)
	}))
	defer srv.Close()

	src := NewNBGRateSource(srv.URL, time.Hour)

	for i := 0; i < 5; i++ {
		if _, err := src.RateGEL(context.Background(), "USD"); err != nil {
			t.Fatalf("RateGEL returned error: %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if hits != 1 {
		t.Errorf("feed hit %d times, want 1 (cached)", hits)
	}
}

func TestStaleCacheServedOnOutage(t *testing.T) {
	var mu sync.Mutex
	failing := false

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		fail := failing
		mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, nbgBody)
	}))
	defer srv.Close()

	src := NewNBGRateSource(srv.URL, time.Nanosecond) // expire immediately

	if _, err := src.RateGEL(context.Background(), "USD"); err != nil {
		t.Fatalf("warm-up fetch failed: %v", err)
	}

	mu.Lock()
	failing = true
	mu.Unlock()

	got, err := src.RateGEL(context.Background(), "USD")
	if err != nil {
		t.Fatalf("stale cache should be served during an outage, got %v", err)
	}
	if got != 2.71 {
		t.Errorf("stale rate = %v, want 2.71", got)
	}
}

func TestErrorWhenFeedDownAndNoCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := NewNBGRateSource(srv.URL, time.Hour)
	if _, err := src.RateGEL(context.Background(), "USD"); err == nil {
		t.Error("want error when the feed is down and nothing is cached")
	}
}
