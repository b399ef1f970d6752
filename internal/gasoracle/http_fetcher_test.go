package gasoracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcherParsesPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"fast": 50.0, "average": 30.0, "safeLow": 10.0}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, 0)
	prices, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(50).Equal(prices.Fast))
	assert.True(t, decimal.NewFromInt(30).Equal(prices.Standard))
	assert.True(t, decimal.NewFromInt(10).Equal(prices.SafeLow))
}

func TestHTTPFetcherPropagatesNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, 0)
	_, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
