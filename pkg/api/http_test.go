package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/pyth-publisher/pkg/agent"
	"github.com/StrathCole/pyth-publisher/pkg/aggregator"
	"github.com/StrathCole/pyth-publisher/pkg/sources"
)

type fakeStatus struct {
	connected bool
	subs      []agent.Subscription
}

func (f fakeStatus) Connected() bool                     { return f.connected }
func (f fakeStatus) Subscriptions() []agent.Subscription { return f.subs }

type readerSource struct {
	sources.Source
	name    string
	prices  map[string]decimal.Decimal
	healthy bool
	last    time.Time
}

func (r readerSource) Name() string             { return r.name }
func (r readerSource) Type() sources.SourceType { return sources.SourceTypeCEX }
func (r readerSource) IsHealthy() bool          { return r.healthy }
func (r readerSource) LastUpdate() time.Time    { return r.last }

func (r readerSource) LatestPrice(symbol string) (decimal.Decimal, bool) {
	p, ok := r.prices[symbol]
	return p, ok
}

func newTestServer(t *testing.T, connected bool) *httptest.Server {
	t.Helper()
	cg := readerSource{
		name:    "coingecko",
		prices:  map[string]decimal.Decimal{"Crypto.BTC/USD": decimal.NewFromInt(100)},
		healthy: true,
		last:    time.Unix(1700000000, 0).UTC(),
	}
	cmc := readerSource{
		name:   "coinmarket",
		prices: map[string]decimal.Decimal{"Crypto.BTC/USD": decimal.NewFromInt(102)},
	}

	mixer, err := aggregator.NewMixer(aggregator.MixerConfig{
		Sources: map[string]aggregator.PriceReader{"coingecko": cg, "coinmarket": cmc},
		Weights: map[string]map[string]decimal.Decimal{
			"Crypto.BTC/USD": {"coingecko": decimal.NewFromInt(50), "coinmarket": decimal.NewFromInt(50)},
			"Crypto.ETH/USD": {"coingecko": decimal.NewFromInt(1)},
		},
		ConfidenceRatioBps: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	status := fakeStatus{
		connected: connected,
		subs: []agent.Subscription{{
			ID:      7,
			Product: agent.Product{Symbol: "Crypto.BTC/USD", ProductAccount: "prod", PriceAccount: "price", Exponent: -8},
		}},
	}

	srv := NewServer(":0", status, mixer, []sources.Source{cg, cmc}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, true)

	var body healthResponse
	code := getJSON(t, ts.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "connected", body.RPC)
	require.Len(t, body.Sources, 2)
	assert.True(t, body.Sources[0].Healthy)
	require.NotNil(t, body.Sources[0].LastUpdate)
	assert.Equal(t, int64(1700000000), body.Sources[0].LastUpdate.Unix())
	assert.Nil(t, body.Sources[1].LastUpdate)
}

func TestHealth_Disconnected(t *testing.T) {
	ts := newTestServer(t, false)

	var body healthResponse
	code := getJSON(t, ts.URL+"/health", &body)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "disconnected", body.RPC)
}

func TestPrices(t *testing.T) {
	ts := newTestServer(t, true)

	var body []map[string]json.RawMessage
	code := getJSON(t, ts.URL+"/v1/prices", &body)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, body, 2)

	assert.JSONEq(t, `"Crypto.BTC/USD"`, string(body[0]["symbol"]))
	assert.JSONEq(t, `"101"`, string(body[0]["price"]))
	assert.JSONEq(t, `"0.101"`, string(body[0]["confidence"]))
	assert.Contains(t, string(body[0]["breakdown"]), `"ratio":"50/100"`)
	assert.NotContains(t, body[0], "error")

	assert.JSONEq(t, `"Crypto.ETH/USD"`, string(body[1]["symbol"]))
	assert.Contains(t, string(body[1]["error"]), "missing price")
	assert.NotContains(t, body[1], "price")
}

func TestSubscriptions(t *testing.T) {
	ts := newTestServer(t, true)

	var body []agent.Subscription
	code := getJSON(t, ts.URL+"/v1/subscriptions", &body)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, body, 1)
	assert.Equal(t, int64(7), body[0].ID)
	assert.Equal(t, "price", body[0].Product.PriceAccount)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, true)

	resp, err := http.Post(ts.URL+"/v1/prices", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStopWithoutStart(t *testing.T) {
	srv := NewServer(":0", fakeStatus{}, nil, nil, nil)
	assert.NoError(t, srv.Stop(context.Background()))
}
