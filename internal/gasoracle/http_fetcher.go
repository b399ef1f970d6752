package gasoracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPFetcher retrieves gas price estimates from an ethgasstation-compatible JSON
// endpoint (fields in gwei: fast, average/standard, safeLow), the same kind of gas
// station the original's gas_station::GasPriceEstimating trait wraps.
type HTTPFetcher struct {
	url    string
	client *http.Client
}

// NewHTTPFetcher returns a Fetcher hitting url with the given request timeout.
func NewHTTPFetcher(url string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{url: url, client: &http.Client{Timeout: timeout}}
}

type gasStationResponse struct {
	Fast     decimal.Decimal `json:"fast"`
	Average  decimal.Decimal `json:"average"`
	SafeLow  decimal.Decimal `json:"safeLow"`
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (Prices, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return Prices{}, fmt.Errorf("build gas station request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Prices{}, fmt.Errorf("fetch gas station prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Prices{}, fmt.Errorf("gas station returned status %d", resp.StatusCode)
	}

	var body gasStationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Prices{}, fmt.Errorf("decode gas station response: %w", err)
	}

	return Prices{
		Fast:     body.Fast,
		Standard: body.Average,
		SafeLow:  body.SafeLow,
	}, nil
}
