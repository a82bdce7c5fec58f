package aggregator

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/pyth-publisher/pkg/sources"
)

type staticReader map[string]decimal.Decimal

func (r staticReader) LatestPrice(symbol string) (decimal.Decimal, bool) {
	p, ok := r[symbol]
	return p, ok
}

type convertingReader struct {
	staticReader
	links map[string]sources.Conversion
}

func (r convertingReader) Conversion(symbol string) (sources.Conversion, bool) {
	c, ok := r.links[symbol]
	return c, ok
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func btcMixer(t *testing.T, cg, cmc staticReader) *Mixer {
	t.Helper()
	m, err := NewMixer(MixerConfig{
		Sources: map[string]PriceReader{"coingecko": cg, "coinmarket": cmc},
		Weights: map[string]map[string]decimal.Decimal{
			"Crypto.BTC/USD": {"coingecko": d("50"), "coinmarket": d("50")},
		},
		ConfidenceRatioBps: d("10"),
	})
	require.NoError(t, err)
	return m
}

func TestMix_WeightedAverage(t *testing.T) {
	m := btcMixer(t,
		staticReader{"Crypto.BTC/USD": d("100")},
		staticReader{"Crypto.BTC/USD": d("102")})

	res, err := m.Mix("Crypto.BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, "101", res.Price.String())
	assert.Equal(t, "0.101", res.Confidence.String())

	require.Contains(t, res.Breakdown, "coingecko")
	assert.Equal(t, "50/100", res.Breakdown["coingecko"].Ratio)
	assert.Equal(t, "100", res.Breakdown["coingecko"].Price.String())
	assert.Equal(t, "102", res.Breakdown["coinmarket"].Price.String())

	scaled, err := res.Scale(-8)
	require.NoError(t, err)
	assert.Equal(t, int64(10100000000), scaled.Price)
	assert.Equal(t, uint64(10100000), scaled.Conf)
}

func TestMix_UnevenWeightsNoFloatDrift(t *testing.T) {
	m, err := NewMixer(MixerConfig{
		Sources: map[string]PriceReader{
			"a": staticReader{"X": d("0.1")},
			"b": staticReader{"X": d("0.2")},
		},
		Weights: map[string]map[string]decimal.Decimal{
			"X": {"a": d("1"), "b": d("3")},
		},
		ConfidenceRatioBps: d("25"),
	})
	require.NoError(t, err)

	res, err := m.Mix("X")
	require.NoError(t, err)
	assert.Equal(t, "0.175", res.Price.String())
	assert.Equal(t, "0.0004375", res.Confidence.String())
}

func TestMix_ZeroWeightStillRequiresPrice(t *testing.T) {
	m, err := NewMixer(MixerConfig{
		Sources: map[string]PriceReader{
			"a": staticReader{"X": d("10")},
			"b": staticReader{},
		},
		Weights: map[string]map[string]decimal.Decimal{"X": {"a": d("1"), "b": d("0")}},
	})
	require.NoError(t, err)

	_, err = m.Mix("X")
	assert.ErrorIs(t, err, ErrMissingPrice)
}

func TestMix_UnknownSymbol(t *testing.T) {
	m := btcMixer(t, staticReader{}, staticReader{})
	_, err := m.Mix("Crypto.ETH/USD")
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestMix_MissingPrice(t *testing.T) {
	m := btcMixer(t,
		staticReader{"Crypto.BTC/USD": d("100")},
		staticReader{})

	_, err := m.Mix("Crypto.BTC/USD")
	assert.ErrorIs(t, err, ErrMissingPrice)
	assert.Contains(t, err.Error(), "coinmarket")
}

func TestMix_Conversion(t *testing.T) {
	contracts := convertingReader{
		staticReader: staticReader{"Crypto.USDB/USD": d("0.0003")},
		links: map[string]sources.Conversion{
			"Crypto.USDB/USD": {Source: "coingecko", Symbol: "Crypto.ETH/USD"},
		},
	}
	coingecko := staticReader{"Crypto.ETH/USD": d("3000"), "Crypto.USDB/USD": d("1.2")}

	m, err := NewMixer(MixerConfig{
		Sources: map[string]PriceReader{"contracts": contracts, "coingecko": coingecko},
		Weights: map[string]map[string]decimal.Decimal{
			"Crypto.USDB/USD": {"contracts": d("1"), "coingecko": d("1")},
		},
		ConfidenceRatioBps: d("10"),
	})
	require.NoError(t, err)

	res, err := m.Mix("Crypto.USDB/USD")
	require.NoError(t, err)
	assert.Equal(t, "0.9", res.Breakdown["contracts"].Price.String())
	assert.Equal(t, "1.05", res.Price.String())
}

func TestMix_MissingConversion(t *testing.T) {
	contracts := convertingReader{
		staticReader: staticReader{"Crypto.USDB/USD": d("0.0003")},
		links: map[string]sources.Conversion{
			"Crypto.USDB/USD": {Source: "coingecko", Symbol: "Crypto.ETH/USD"},
		},
	}
	m, err := NewMixer(MixerConfig{
		Sources: map[string]PriceReader{"contracts": contracts, "coingecko": staticReader{}},
		Weights: map[string]map[string]decimal.Decimal{"Crypto.USDB/USD": {"contracts": d("1")}},
	})
	require.NoError(t, err)

	_, err = m.Mix("Crypto.USDB/USD")
	assert.ErrorIs(t, err, ErrMissingConversion)
	assert.ErrorIs(t, err, ErrMissingPrice)
}

func TestNewMixer_Validation(t *testing.T) {
	readers := map[string]PriceReader{"a": staticReader{}}

	_, err := NewMixer(MixerConfig{
		Sources: readers,
		Weights: map[string]map[string]decimal.Decimal{"X": {"missing": d("1")}},
	})
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = NewMixer(MixerConfig{
		Sources: readers,
		Weights: map[string]map[string]decimal.Decimal{"X": {"a": d("-1")}},
	})
	assert.ErrorIs(t, err, ErrInvalidWeight)

	_, err = NewMixer(MixerConfig{
		Sources: readers,
		Weights: map[string]map[string]decimal.Decimal{"X": {"a": d("0")}},
	})
	assert.ErrorIs(t, err, ErrInvalidWeight)

	_, err = NewMixer(MixerConfig{
		Sources: map[string]PriceReader{
			"contracts": convertingReader{links: map[string]sources.Conversion{"X": {Source: "nowhere", Symbol: "Y"}}},
		},
		Weights: map[string]map[string]decimal.Decimal{"X": {"contracts": d("1")}},
	})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestScale(t *testing.T) {
	tests := []struct {
		name     string
		price    string
		conf     string
		exponent int32
		want     Scaled
	}{
		{"typical", "65000.123456789", "65.000123456789", -8, Scaled{Price: 6500012345679, Conf: 6500012346}},
		{"half rounds away from zero", "1.5", "0.5", 0, Scaled{Price: 2, Conf: 1}},
		{"positive exponent", "123456", "123.456", 2, Scaled{Price: 1235, Conf: 1}},
		{"negative price", "-2.5", "0", 0, Scaled{Price: -3, Conf: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Result{Price: d(tt.price), Confidence: d(tt.conf)}.Scale(tt.exponent)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScale_Overflow(t *testing.T) {
	_, err := Result{Price: d("1e20"), Confidence: d("1")}.Scale(-8)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Result{Price: d("1"), Confidence: d("-1")}.Scale(0)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMix_ConcurrentSymbols(t *testing.T) {
	reader := staticReader{"A": d("1"), "B": d("2")}
	m, err := NewMixer(MixerConfig{
		Sources: map[string]PriceReader{"s": reader},
		Weights: map[string]map[string]decimal.Decimal{
			"A": {"s": d("1")},
			"B": {"s": d("1")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, m.Symbols())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			symbol := m.Symbols()[i%2]
			res, err := m.Mix(symbol)
			if assert.NoError(t, err) {
				assert.True(t, res.Price.Equal(reader[symbol]))
			}
		}(i)
	}
	wg.Wait()
}
