// Package pricefeed resolves token prices in USD from an external HTTP feed
// speaking the /simple/price convention. Prices feed the USD-denominated
// metrics only; on-chain amounts never depend on them.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"liquidityHub/internal/model"
)

// PriceFeed resolves a feed identifier to a USD price.
type PriceFeed interface {
	PriceUSD(ctx context.Context, feedID string) (float64, error)
}

// HTTPFeed queries a /simple/price endpoint.
type HTTPFeed struct {
	baseURL      string
	client       *http.Client
	maxRetries   int
	retryBackoff time.Duration
	logger       *zap.Logger
}

// NewHTTPFeed builds a feed client.
func NewHTTPFeed(baseURL string, maxRetries int, retryBackoff time.Duration, logger *zap.Logger) (*HTTPFeed, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("price feed url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryBackoff <= 0 {
		retryBackoff = 500 * time.Millisecond
	}
	return &HTTPFeed{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       &http.Client{Timeout: 10 * time.Second},
		maxRetries:   maxRetries,
		retryBackoff: retryBackoff,
		logger:       logger,
	}, nil
}

// PriceUSD fetches the USD price for one feed identifier.
func (f *HTTPFeed) PriceUSD(ctx context.Context, feedID string) (float64, error) {
	if feedID == "" {
		return 0, fmt.Errorf("feed id is empty: %w", model.FetchFailed)
	}

	var price float64
	err := f.withRetry(ctx, fmt.Sprintf("price %s", feedID), func() error {
		p, err := f.fetch(ctx, feedID)
		if err != nil {
			return err
		}
		price = p
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("fetch price for %s: %w", feedID, err)
	}
	return price, nil
}

func (f *HTTPFeed) fetch(ctx context.Context, feedID string) (float64, error) {
	q := url.Values{}
	q.Set("ids", feedID)
	q.Set("vs_currencies", "usd")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("price feed returned status %d", resp.StatusCode)
	}

	var payload map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode price response: %w", err)
	}

	entry, ok := payload[feedID]
	if !ok {
		return 0, fmt.Errorf("feed id %s missing from response", feedID)
	}
	price, ok := entry["usd"]
	if !ok {
		return 0, fmt.Errorf("no usd quote for %s", feedID)
	}
	return price, nil
}

func (f *HTTPFeed) withRetry(ctx context.Context, label string, fn func() error) error {
	var lastErr error
	backoff := f.retryBackoff
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			f.logger.Warn("retrying",
				zap.String("op", label),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if err := fn(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
