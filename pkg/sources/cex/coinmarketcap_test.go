package cex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/pyth-publisher/pkg/logging"
	"github.com/StrathCole/pyth-publisher/pkg/sources"
)

func newCMCTestSource(t *testing.T, apiURL string) *CoinMarketCapSource {
	t.Helper()
	src, err := NewCoinMarketCapSource("coinmarket", map[string]interface{}{
		"api_url":      apiURL,
		"api_key":      "cmc-key",
		"min_interval": "1ms",
		"coins": map[string]interface{}{
			"Crypto.BTC/USD":  map[string]interface{}{"symbol": "BTC", "convert": "USD"},
			"Crypto.USDB/USD": map[string]interface{}{"symbol": "USDB", "convert": "USD"},
		},
	}, logging.NewNoopLogger())
	require.NoError(t, err)
	cmc := src.(*CoinMarketCapSource)
	cmc.SetRetry(1, 0)
	return cmc
}

func TestCoinMarketCap_UpdatePrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cmc-key", r.Header.Get("X-CMC_PRO_API_KEY"))
		assert.Equal(t, "BTC,USDB", r.URL.Query().Get("symbol"))
		assert.Equal(t, "USD", r.URL.Query().Get("convert"))
		_, _ = w.Write([]byte(`{
			"status": {"error_code": 0, "error_message": null},
			"data": {
				"BTC": {"symbol": "BTC", "quote": {"USD": {"price": 65001.98765432109876}}},
				"USDB": [{"symbol": "USDB", "quote": {"USD": {"price": 1.0001234567890123}}}]
			}
		}`))
	}))
	defer server.Close()

	src := newCMCTestSource(t, server.URL)
	require.NoError(t, src.UpdatePrice(context.Background()))

	btc, ok := src.LatestPrice("Crypto.BTC/USD")
	require.True(t, ok)
	assert.Equal(t, "65001.98765432109876", btc.String())

	usdb, ok := src.LatestPrice("Crypto.USDB/USD")
	require.True(t, ok)
	assert.Equal(t, "1.0001234567890123", usdb.String())
}

func TestCoinMarketCap_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": {"error_code": 1002, "error_message": "API key missing."}}`))
	}))
	defer server.Close()

	src := newCMCTestSource(t, server.URL)
	err := src.UpdatePrice(context.Background())
	assert.ErrorIs(t, err, sources.ErrInvalidResponse)
	assert.Contains(t, err.Error(), "API key missing.")
}

func TestCoinMarketCap_Malformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": `))
	}))
	defer server.Close()

	src := newCMCTestSource(t, server.URL)
	assert.ErrorIs(t, src.UpdatePrice(context.Background()), sources.ErrInvalidResponse)
}

func TestCoinMarketCap_MissingQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":{"error_code":0},"data":{"BTC":{"quote":{"EUR":{"price":1}}}}}`))
	}))
	defer server.Close()

	src := newCMCTestSource(t, server.URL)
	assert.ErrorIs(t, src.UpdatePrice(context.Background()), sources.ErrNoPricesExtracted)
}

func TestCoinMarketCap_RequiresAPIKey(t *testing.T) {
	t.Setenv("COINMARKET_API_KEY", "")
	_, err := NewCoinMarketCapSource("coinmarket", map[string]interface{}{
		"coins": map[string]interface{}{
			"Crypto.BTC/USD": map[string]interface{}{"symbol": "BTC", "convert": "USD"},
		},
	}, nil)
	assert.ErrorIs(t, err, sources.ErrAPIKeyRequired)
}

func TestRegistered(t *testing.T) {
	assert.True(t, sources.IsRegistered("cex", "coingecko"))
	assert.True(t, sources.IsRegistered("cex", "coinmarket"))
	assert.True(t, sources.IsRegistered("cex", "coinmarketcap"))
}
