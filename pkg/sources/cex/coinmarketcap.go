package cex

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/StrathCole/pyth-publisher/pkg/logging"
	"github.com/StrathCole/pyth-publisher/pkg/sources"
)

const (
	coinmarketcapAPIURL         = "https://pro-api.coinmarketcap.com/v1/cryptocurrency/quotes/latest"
	coinmarketcapAPIKeyHeader   = "X-CMC_PRO_API_KEY"
	coinmarketcapAPIKeyEnv      = "COINMARKET_API_KEY"
	coinmarketcapUpdateInterval = 10 * time.Second
	coinmarketcapMinInterval    = 2 * time.Second
)

// CoinMarketCapCoin maps one symbol to a CoinMarketCap ticker and convert currency.
type CoinMarketCapCoin struct {
	Symbol  string `yaml:"symbol"`
	Convert string `yaml:"convert"`
}

// CoinMarketCapConfig is the config block of the coinmarketcap source.
type CoinMarketCapConfig struct {
	APIURL         string                       `yaml:"api_url"`
	APIKey         string                       `yaml:"api_key"`
	UpdateInterval sources.Seconds              `yaml:"update_interval"`
	MinInterval    sources.Seconds              `yaml:"min_interval"`
	Coins          map[string]CoinMarketCapCoin `yaml:"coins"`
}

// CoinMarketCapSource fetches prices from the CoinMarketCap quotes/latest API
type CoinMarketCapSource struct {
	*sources.BaseSource

	apiURL string
	coins  map[string]CoinMarketCapCoin
	rest   *restClient
}

// NewCoinMarketCapSource creates a new CoinMarketCap REST source
func NewCoinMarketCapSource(name string, config map[string]interface{}, logger *logging.Logger) (sources.Source, error) {
	var cfg CoinMarketCapConfig
	if err := sources.DecodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Coins) == 0 {
		return nil, fmt.Errorf("%s: %w", name, sources.ErrNoSymbolsConfigured)
	}
	for symbol, coin := range cfg.Coins {
		if coin.Symbol == "" || coin.Convert == "" {
			return nil, fmt.Errorf("%w: %s: coin %s needs symbol and convert", sources.ErrInvalidConfig, name, symbol)
		}
	}

	apiKey, err := sources.ResolveAPIKey(cfg.APIKey, coinmarketcapAPIKeyEnv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	apiURL := coinmarketcapAPIURL
	if cfg.APIURL != "" {
		apiURL = cfg.APIURL
	}
	updateInterval := coinmarketcapUpdateInterval
	if cfg.UpdateInterval > 0 {
		updateInterval = cfg.UpdateInterval.Duration()
	}
	minInterval := coinmarketcapMinInterval
	if cfg.MinInterval > 0 {
		minInterval = cfg.MinInterval.Duration()
	}

	symbols := make([]string, 0, len(cfg.Coins))
	for symbol := range cfg.Coins {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	return &CoinMarketCapSource{
		BaseSource: sources.NewBaseSource(name, sources.SourceTypeCEX, symbols, updateInterval, logger),
		apiURL:     apiURL,
		coins:      cfg.Coins,
		rest:       newRESTClient(minInterval, coinmarketcapAPIKeyHeader, apiKey),
	}, nil
}

// Initialize performs the first fetch
func (s *CoinMarketCapSource) Initialize(ctx context.Context) error {
	s.Logger().Info("Initializing CoinMarketCap source", "symbols", s.Symbols())
	return s.InitialFetch(ctx, s.UpdatePrice)
}

// Start begins fetching prices
func (s *CoinMarketCapSource) Start(ctx context.Context) error {
	s.Logger().Info("Starting CoinMarketCap source", "interval", s.UpdateInterval())
	return s.Schedule("fetch_prices", s.UpdateInterval(), s.UpdatePrice)
}

// Stop stops the source
func (s *CoinMarketCapSource) Stop() error {
	s.StopSchedules()
	s.Logger().Info("CoinMarketCap source stopped")
	return nil
}

// UpdatePrice fetches every configured coin in one request
func (s *CoinMarketCapSource) UpdatePrice(ctx context.Context) error {
	symbolSet := make(map[string]struct{})
	convertSet := make(map[string]struct{})
	for _, coin := range s.coins {
		symbolSet[strings.ToUpper(coin.Symbol)] = struct{}{}
		convertSet[strings.ToUpper(coin.Convert)] = struct{}{}
	}

	params := url.Values{}
	params.Set("symbol", joinKeys(symbolSet))
	params.Set("convert", joinKeys(convertSet))

	body, err := s.rest.get(ctx, s.apiURL, params)
	if err != nil {
		return err
	}

	batch, err := s.parse(body)
	if err != nil {
		return err
	}

	s.SetPrices(batch, time.Now())
	s.Logger().Debug("Fetched prices from CoinMarketCap", "count", len(batch))
	return nil
}

// parse reads data.SYMBOL.quote.CONVERT.price. The v2 API returns an array
// per symbol; the first entry is used.
func (s *CoinMarketCapSource) parse(body []byte) (map[string]decimal.Decimal, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: malformed json", sources.ErrInvalidResponse)
	}
	root := gjson.ParseBytes(body)

	if code := root.Get("status.error_code").Int(); code != 0 {
		return nil, fmt.Errorf("%w: %d: %s", sources.ErrInvalidResponse, code, root.Get("status.error_message").String())
	}

	data := root.Get("data")
	batch := make(map[string]decimal.Decimal, len(s.coins))
	for symbol, coin := range s.coins {
		entry := data.Get(gjson.Escape(strings.ToUpper(coin.Symbol)))
		if entry.IsArray() {
			entry = entry.Get("0")
		}
		price := entry.Get("quote").Get(gjson.Escape(strings.ToUpper(coin.Convert))).Get("price")
		if !price.Exists() || price.Type != gjson.Number {
			s.Logger().Warn("CoinMarketCap response missing quote", "symbol", symbol, "cmc_symbol", coin.Symbol, "convert", coin.Convert)
			continue
		}

		value, err := decimal.NewFromString(price.Raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", sources.ErrInvalidResponse, coin.Symbol, err)
		}
		batch[symbol] = value
	}

	if len(batch) == 0 {
		return nil, sources.ErrNoPricesExtracted
	}
	return batch, nil
}
