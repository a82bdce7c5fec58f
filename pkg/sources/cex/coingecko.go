package cex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/pyth-publisher/pkg/logging"
	"github.com/StrathCole/pyth-publisher/pkg/sources"
)

const (
	coingeckoAPIURL         = "https://pro-api.coingecko.com/api/v3"
	coingeckoAPIKeyHeader   = "x-cg-pro-api-key"
	coingeckoAPIKeyEnv      = "COINGECKO_API_KEY"
	coingeckoPrecision      = "18"
	coingeckoUpdateInterval = 10 * time.Second
	coingeckoMinInterval    = 2 * time.Second
)

// CoinGeckoCoin maps one symbol to a CoinGecko coin id and quote currency.
type CoinGeckoCoin struct {
	ID         string `yaml:"id"`
	VsCurrency string `yaml:"vs_currency"`
}

// CoinGeckoConfig is the config block of the coingecko source.
type CoinGeckoConfig struct {
	APIURL         string                   `yaml:"api_url"`
	APIKey         string                   `yaml:"api_key"`
	UpdateInterval sources.Seconds          `yaml:"update_interval"`
	MinInterval    sources.Seconds          `yaml:"min_interval"`
	Coins          map[string]CoinGeckoCoin `yaml:"coins"`
}

// CoinGeckoSource fetches prices from the CoinGecko simple/price API
type CoinGeckoSource struct {
	*sources.BaseSource

	apiURL string
	coins  map[string]CoinGeckoCoin
	rest   *restClient
}

// NewCoinGeckoSource creates a new CoinGecko source
func NewCoinGeckoSource(name string, config map[string]interface{}, logger *logging.Logger) (sources.Source, error) {
	var cfg CoinGeckoConfig
	if err := sources.DecodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Coins) == 0 {
		return nil, fmt.Errorf("%s: %w", name, sources.ErrNoSymbolsConfigured)
	}
	for symbol, coin := range cfg.Coins {
		if coin.ID == "" || coin.VsCurrency == "" {
			return nil, fmt.Errorf("%w: %s: coin %s needs id and vs_currency", sources.ErrInvalidConfig, name, symbol)
		}
	}

	apiKey, err := sources.ResolveAPIKey(cfg.APIKey, coingeckoAPIKeyEnv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	apiURL := coingeckoAPIURL
	if cfg.APIURL != "" {
		apiURL = strings.TrimRight(cfg.APIURL, "/")
	}
	updateInterval := coingeckoUpdateInterval
	if cfg.UpdateInterval > 0 {
		updateInterval = cfg.UpdateInterval.Duration()
	}
	minInterval := coingeckoMinInterval
	if cfg.MinInterval > 0 {
		minInterval = cfg.MinInterval.Duration()
	}

	symbols := make([]string, 0, len(cfg.Coins))
	for symbol := range cfg.Coins {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	return &CoinGeckoSource{
		BaseSource: sources.NewBaseSource(name, sources.SourceTypeCEX, symbols, updateInterval, logger),
		apiURL:     apiURL,
		coins:      cfg.Coins,
		rest:       newRESTClient(minInterval, coingeckoAPIKeyHeader, apiKey),
	}, nil
}

// Initialize performs the first fetch
func (s *CoinGeckoSource) Initialize(ctx context.Context) error {
	s.Logger().Info("Initializing CoinGecko source", "symbols", s.Symbols())
	return s.InitialFetch(ctx, s.UpdatePrice)
}

// Start begins fetching prices
func (s *CoinGeckoSource) Start(ctx context.Context) error {
	s.Logger().Info("Starting CoinGecko source", "interval", s.UpdateInterval())
	return s.Schedule("fetch_prices", s.UpdateInterval(), s.UpdatePrice)
}

// Stop halts the source and waits for an in-flight poll
func (s *CoinGeckoSource) Stop() error {
	s.StopSchedules()
	s.Logger().Info("CoinGecko source stopped")
	return nil
}

// UpdatePrice fetches every configured coin in one request
func (s *CoinGeckoSource) UpdatePrice(ctx context.Context) error {
	idSet := make(map[string]struct{})
	currencySet := make(map[string]struct{})
	for _, coin := range s.coins {
		idSet[coin.ID] = struct{}{}
		currencySet[strings.ToLower(coin.VsCurrency)] = struct{}{}
	}

	params := url.Values{}
	params.Set("ids", joinKeys(idSet))
	params.Set("vs_currencies", joinKeys(currencySet))
	params.Set("precision", coingeckoPrecision)

	body, err := s.rest.get(ctx, s.apiURL+"/simple/price", params)
	if err != nil {
		return err
	}

	batch, err := s.parse(body)
	if err != nil {
		return err
	}

	s.SetPrices(batch, time.Now())
	s.Logger().Debug("Fetched prices from CoinGecko", "count", len(batch))
	return nil
}

// parse reads {id: {currency: number}} keeping the numbers' exact text.
func (s *CoinGeckoSource) parse(body []byte) (map[string]decimal.Decimal, error) {
	var data map[string]map[string]json.Number
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: %v", sources.ErrInvalidResponse, err)
	}

	batch := make(map[string]decimal.Decimal, len(s.coins))
	for symbol, coin := range s.coins {
		raw, ok := data[coin.ID][strings.ToLower(coin.VsCurrency)]
		if !ok {
			s.Logger().Warn("CoinGecko response missing coin", "symbol", symbol, "id", coin.ID, "vs_currency", coin.VsCurrency)
			continue
		}
		price, err := decimal.NewFromString(raw.String())
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", sources.ErrInvalidResponse, coin.ID, err)
		}
		batch[symbol] = price
	}

	if len(batch) == 0 {
		return nil, sources.ErrNoPricesExtracted
	}
	return batch, nil
}

func joinKeys(set map[string]struct{}) string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}
