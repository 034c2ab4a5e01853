package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestPriceUSD(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simple/price" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("ids"); got != "tether" {
			t.Errorf("ids = %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tether":{"usd":0.9998}}`))
	}))
	defer srv.Close()

	feed, err := NewHTTPFeed(srv.URL, 1, time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewHTTPFeed: %v", err)
	}

	price, err := feed.PriceUSD(context.Background(), "tether")
	if err != nil {
		t.Fatalf("PriceUSD: %v", err)
	}
	if price != 0.9998 {
		t.Fatalf("price = %f, want 0.9998", price)
	}
}

func TestPriceUSDRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"matic-network":{"usd":0.52}}`))
	}))
	defer srv.Close()

	feed, err := NewHTTPFeed(srv.URL, 2, time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewHTTPFeed: %v", err)
	}

	price, err := feed.PriceUSD(context.Background(), "matic-network")
	if err != nil {
		t.Fatalf("PriceUSD: %v", err)
	}
	if price != 0.52 {
		t.Fatalf("price = %f, want 0.52", price)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestPriceUSDMissingQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	feed, err := NewHTTPFeed(srv.URL, 0, time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewHTTPFeed: %v", err)
	}
	if _, err := feed.PriceUSD(context.Background(), "unknown-token"); err == nil {
		t.Fatal("expected error for missing quote")
	}
}
